package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSlotKey(t *testing.T) {
	got := SlotKey("correa", time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC))
	if got != "lock:slot:correa:2025-01-07" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNoopLockerRunsFn(t *testing.T) {
	want := errors.New("boom")
	called := false
	err := NoopLocker{}.WithSlotLock(context.Background(), "k", func(ctx context.Context) error {
		called = true
		return want
	})
	if !called || !errors.Is(err, want) {
		t.Fatalf("called=%v err=%v", called, err)
	}
}
