package memory

import (
	"context"
	"sync"
	"testing"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if _, ok := store.Get(ctx, 7); ok {
		t.Fatalf("expected no session before first event")
	}
	session := store.GetOrCreate(ctx, 7)
	if session == nil {
		t.Fatalf("expected session")
	}
	if again := store.GetOrCreate(ctx, 7); again != session {
		t.Fatalf("expected the same session pointer for the same user")
	}
	if got, ok := store.Get(ctx, 7); !ok || got != session {
		t.Fatalf("expected session present")
	}
	snap := session.Snapshot()
	if snap.Started || len(snap.Answers) != 0 || snap.Result != "" || snap.AwaitingContact || snap.ContactReceived {
		t.Fatalf("expected zero-value session, got %+v", snap)
	}
}

func TestSessionStoreConcurrentUsers(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				store.GetOrCreate(ctx, id%16)
			}
		}(int64(i))
	}
	wg.Wait()
	if store.Len() != 16 {
		t.Fatalf("expected 16 sessions, got %d", store.Len())
	}
}
