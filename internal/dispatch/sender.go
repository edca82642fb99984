package dispatch

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Message is one alert email ready to send.
type Message struct {
	To           string
	FacilityName string
	AgeClass     string
	Slots        int
}

// Subject and body follow the app's Korean notification copy.
func (m Message) Subject() string {
	return fmt.Sprintf("[자리요] %s에 빈자리가 생겼어요", m.FacilityName)
}

func (m Message) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s 반에 빈자리가 감지되었습니다.\r\n", m.FacilityName, m.AgeClass)
	if m.Slots > 0 {
		fmt.Fprintf(&b, "예상 자리 수: %d\r\n", m.Slots)
	}
	b.WriteString("앱에서 자세한 내용을 확인하세요.\r\n")
	return b.String()
}

// Sender sends one alert email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends alert emails over plain SMTP.
// Nil-safe: when not configured, Send is a no-op.
type SMTPSender struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a sender for the given SMTP endpoint. Returns nil
// when host is empty (email delivery disabled). username may be empty for
// unauthenticated relays.
func NewSMTPSender(host string, port int, from, username, password string) *SMTPSender {
	if host == "" {
		return nil
	}
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", host, port),
		from:     from,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// Send delivers one message. No retries; the dispatcher logs and moves on.
func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	if s == nil {
		return nil
	}
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		s.from, msg.To, msg.Subject(), msg.Body())
	if err := s.sendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(raw)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
