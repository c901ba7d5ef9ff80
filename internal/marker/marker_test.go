package marker

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreRecordAndSeen(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "org_missing")
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Error("Seen() = true for unrecorded marker")
	}

	if err := s.Record(ctx, "org_abc"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	seen, err = s.Seen(ctx, "org_abc")
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if !seen {
		t.Error("Seen() = false for recorded marker")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if err := s.Record(ctx, "org_abc"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	now = now.Add(61 * time.Second)
	seen, err := s.Seen(ctx, "org_abc")
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Error("Seen() = true after TTL expiry")
	}
}
