package cache

import (
	"testing"
	"time"
)

func TestSetAndGet(t *testing.T) {
	c := New(true)
	etag := c.Set("k", []byte(`{"a":1}`), time.Minute)
	if etag == "" {
		t.Fatal("expected an etag")
	}

	data, gotTag, ok := c.Get("k")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if string(data) != `{"a":1}` {
		t.Errorf("data = %s", data)
	}
	if gotTag != etag {
		t.Errorf("etag = %s, want %s", gotTag, etag)
	}
}

func TestExpiredEntryMisses(t *testing.T) {
	c := New(true)
	c.Set("k", []byte("v"), -time.Second)
	if _, _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestDisabledCacheIsNoOp(t *testing.T) {
	c := New(false)
	etag := c.Set("k", []byte("v"), time.Minute)
	if etag == "" {
		t.Error("disabled cache must still compute etags")
	}
	if _, _, ok := c.Get("k"); ok {
		t.Error("disabled cache must never hit")
	}
}

func TestETagMatch(t *testing.T) {
	etag := ComputeETag([]byte("payload"))
	if !CheckETagMatch(etag, etag) {
		t.Error("identical etags must match")
	}
	if CheckETagMatch("", etag) {
		t.Error("empty If-None-Match must not match")
	}
	if ComputeETag([]byte("a")) == ComputeETag([]byte("b")) {
		t.Error("different payloads must produce different etags")
	}
}

func TestEvictRemovesExpired(t *testing.T) {
	c := New(true)
	c.Set("old", []byte("v"), -time.Second)
	c.Set("fresh", []byte("v"), time.Minute)
	c.evict()

	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.entries["old"]; ok {
		t.Error("expired entry should have been evicted")
	}
	if _, ok := c.entries["fresh"]; !ok {
		t.Error("fresh entry should remain")
	}
}
