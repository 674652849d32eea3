package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fils-quiz-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }
	return store, &now
}

func TestStoreUsersAndSubmissions(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore(t)

	require.ErrorIs(t, store.UpdatePhone(ctx, 1, "+7999"), domain.ErrUserNotFound)

	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: 1, Username: "ivan", FirstName: "Ivan"}))
	*now = now.Add(time.Minute)
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: 2, FirstName: "Olga", LanguageCode: "ru"}))
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: 1, Username: "ivan_p", FirstName: "Ivan"}))

	answers := []domain.Answer{{QuestionID: 1, Option: 1}, {QuestionID: 2, Option: 3}}
	require.NoError(t, store.AddSubmission(ctx, domain.Submission{UserID: 1, Model: "GOCCI", Answers: answers, CreatedAt: *now}))
	require.NoError(t, store.AddSubmission(ctx, domain.Submission{UserID: 1, Model: "CLOUD", Answers: answers, CreatedAt: now.Add(time.Second)}))
	require.NoError(t, store.UpdatePhone(ctx, 1, "+79991234567"))

	users, err := store.ListUsers(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(2), users[0].ID)
	assert.Equal(t, "ru", users[0].LanguageCode)
	assert.Equal(t, "", users[0].LastModel)
	assert.Equal(t, "ivan_p", users[1].Username)
	assert.Equal(t, "+79991234567", users[1].Phone)
	assert.Equal(t, "CLOUD", users[1].LastModel)

	page, err := store.ListUsers(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, int64(1), page[0].ID)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 2, stats.Submissions)
	assert.Equal(t, map[string]int{"CLOUD": 1, "GOCCI": 1}, stats.ByModel)

	ids, err := store.UserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestStorePromoCodes(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore(t)
	require.NoError(t, store.UpsertUser(ctx, domain.User{ID: 5}))

	_, err := store.LatestPromoCode(ctx, 5)
	require.ErrorIs(t, err, domain.ErrPromoNotFound)

	issued := *now
	require.NoError(t, store.IssuePromoCode(ctx, domain.PromoCode{
		UserID: 5, Code: "FILS1978", Amount: 5000, IssuedAt: issued, ExpiresAt: issued.Add(720 * time.Hour),
	}))
	promo, err := store.LatestPromoCode(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "FILS1978", promo.Code)
	assert.Equal(t, 5000, promo.Amount)
	assert.True(t, promo.ExpiresAt.Equal(issued.Add(720*time.Hour)))
}
