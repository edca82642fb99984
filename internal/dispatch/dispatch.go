// Package dispatch delivers turnover alerts over email, fire-and-forget.
// The detector hands alerts off through a bounded queue; a background worker
// resolves recipients and sends. Failures are logged and swallowed; the
// alert row is the durable record, delivery is best-effort.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/jariyo/jariyo-data/internal/detect"
)

const defaultBuffer = 256

// UserDirectory resolves user ids to email addresses.
type UserDirectory interface {
	UserEmail(ctx context.Context, userID string) (string, error)
}

// Dispatcher queues alerts for asynchronous email delivery. Implements
// detect.Dispatcher.
type Dispatcher struct {
	sender    Sender
	directory UserDirectory
	queue     chan detect.Alert
	logger    *slog.Logger
}

// New creates a Dispatcher. buffer <= 0 uses the default queue size.
func New(sender Sender, directory UserDirectory, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Dispatcher{
		sender:    sender,
		directory: directory,
		queue:     make(chan detect.Alert, buffer),
		logger:    logger,
	}
}

// SendAlertEmails accepts alerts for delivery without blocking and returns
// how many were queued. Alerts that do not fit in the queue are dropped with
// a warning; delivery outcomes are never reported back.
func (d *Dispatcher) SendAlertEmails(ctx context.Context, alerts []detect.Alert) int {
	queued := 0
	for _, a := range alerts {
		select {
		case d.queue <- a:
			queued++
		default:
			d.logger.Warn("dispatch queue full, dropping alert email",
				"user_id", a.UserID, "facility_id", a.FacilityID)
		}
	}
	return queued
}

// Run processes the queue until ctx is cancelled. Intended to be called
// with `go`.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Alert email dispatcher started", "buffer", cap(d.queue))
	for {
		select {
		case alert := <-d.queue:
			d.deliver(ctx, alert)
		case <-ctx.Done():
			d.logger.Info("Alert email dispatcher stopped")
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert detect.Alert) {
	email, err := d.directory.UserEmail(ctx, alert.UserID)
	if err != nil {
		d.logger.Warn("recipient lookup failed", "user_id", alert.UserID, "error", err)
		return
	}
	msg := Message{
		To:           email,
		FacilityName: alert.FacilityName,
		AgeClass:     alert.AgeClass,
		Slots:        alert.EstimatedSlots,
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.logger.Warn("alert email send failed",
			"user_id", alert.UserID, "facility_id", alert.FacilityID, "error", err)
		return
	}
	d.logger.Info("Alert email sent", "user_id", alert.UserID, "facility_id", alert.FacilityID)
}
