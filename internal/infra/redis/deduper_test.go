package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestDeduperUsesSetNX(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	d := NewDeduper(newClient(mr), time.Minute)

	if seen, err := d.Seen(ctx, 555); err != nil || seen {
		t.Fatalf("first delivery: seen=%v err=%v", seen, err)
	}
	if seen, err := d.Seen(ctx, 555); err != nil || !seen {
		t.Fatalf("redelivery: seen=%v err=%v", seen, err)
	}

	mr.FastForward(2 * time.Minute)
	if seen, _ := d.Seen(ctx, 555); seen {
		t.Fatalf("expected marker to expire")
	}

	mr.SetError("boom")
	if _, err := d.Seen(ctx, 556); err == nil {
		t.Fatalf("expected redis error to surface")
	}
}
