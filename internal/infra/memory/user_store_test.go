package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"fils-quiz-bot/internal/domain"
)

func TestUserStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	if err := store.UpdatePhone(ctx, 1, "123"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	if err := store.UpsertUser(ctx, domain.User{ID: 1, Username: "ivan", FirstName: "Ivan"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	now = now.Add(time.Minute)
	if err := store.UpsertUser(ctx, domain.User{ID: 2, FirstName: "Olga"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertUser(ctx, domain.User{ID: 1, Username: "ivan_p", FirstName: "Ivan"}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	if err := store.AddSubmission(ctx, domain.Submission{UserID: 1, Model: "GOCCI", CreatedAt: now}); err != nil {
		t.Fatalf("add submission: %v", err)
	}
	if err := store.AddSubmission(ctx, domain.Submission{UserID: 1, Model: "CLOUD", CreatedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("add submission: %v", err)
	}
	if err := store.UpdatePhone(ctx, 1, "+7999"); err != nil {
		t.Fatalf("update phone: %v", err)
	}
	if err := store.IssuePromoCode(ctx, domain.PromoCode{UserID: 1, Code: "FILS1978", Amount: 5000}); err != nil {
		t.Fatalf("issue promo: %v", err)
	}

	users, err := store.ListUsers(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 || users[0].ID != 2 || users[1].ID != 1 {
		t.Fatalf("expected newest first, got %+v", users)
	}
	if users[1].Username != "ivan_p" || users[1].Phone != "+7999" || users[1].LastModel != "CLOUD" {
		t.Fatalf("unexpected summary %+v", users[1])
	}

	page, _ := store.ListUsers(ctx, 1, 1)
	if len(page) != 1 || page[0].ID != 1 {
		t.Fatalf("unexpected page %+v", page)
	}

	stats, _ := store.Stats(ctx)
	if stats.Users != 2 || stats.Submissions != 2 || stats.ByModel["CLOUD"] != 1 || stats.ByModel["GOCCI"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	promo, err := store.LatestPromoCode(ctx, 1)
	if err != nil || promo.Code != "FILS1978" {
		t.Fatalf("latest promo: %+v %v", promo, err)
	}
	if _, err := store.LatestPromoCode(ctx, 2); !errors.Is(err, domain.ErrPromoNotFound) {
		t.Fatalf("expected ErrPromoNotFound, got %v", err)
	}

	ids, _ := store.UserIDs(ctx)
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected ids %v", ids)
	}
}
