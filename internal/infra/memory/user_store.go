package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"fils-quiz-bot/internal/domain"
)

// UserStore keeps users, submissions and promo codes in process memory. It backs the bot when no
// database is configured and is the reference behaviour for the SQL stores.
type UserStore struct {
	clock func() time.Time

	mu          sync.RWMutex
	users       map[int64]*domain.UserSummary
	submissions []domain.Submission
	promos      []domain.PromoCode
}

func NewUserStore() *UserStore {
	return &UserStore{
		clock: time.Now,
		users: make(map[int64]*domain.UserSummary),
	}
}

func (s *UserStore) UpsertUser(_ context.Context, user domain.User) error {
	now := s.clock().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.ID]; ok {
		existing.User = user
		existing.UpdatedAt = now
		existing.LastActiveAt = now
		return nil
	}
	s.users[user.ID] = &domain.UserSummary{
		User:         user,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}
	return nil
}

func (s *UserStore) AddSubmission(_ context.Context, sub domain.Submission) error {
	now := s.clock().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.Answers = append([]domain.Answer(nil), sub.Answers...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, sub)
	if u, ok := s.users[sub.UserID]; ok {
		u.LastActiveAt = now
	}
	return nil
}

func (s *UserStore) UpdatePhone(_ context.Context, userID int64, phone string) error {
	now := s.clock().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Phone = phone
	u.UpdatedAt = now
	u.LastActiveAt = now
	return nil
}

func (s *UserStore) IssuePromoCode(_ context.Context, promo domain.PromoCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos = append(s.promos, promo)
	return nil
}

// LatestPromoCode returns the most recently issued promo code of a user.
func (s *UserStore) LatestPromoCode(_ context.Context, userID int64) (domain.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.promos) - 1; i >= 0; i-- {
		if s.promos[i].UserID == userID {
			return s.promos[i], nil
		}
	}
	return domain.PromoCode{}, domain.ErrPromoNotFound
}

// ListUsers returns users newest first, each with the model of their latest submission.
func (s *UserStore) ListUsers(_ context.Context, limit, offset int) ([]domain.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserSummary, 0, len(s.users))
	for _, u := range s.users {
		summary := *u
		summary.LastModel = s.lastModelLocked(u.ID)
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if offset >= len(out) {
		return []domain.UserSummary{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *UserStore) lastModelLocked(userID int64) string {
	var (
		model  string
		latest time.Time
	)
	for _, sub := range s.submissions {
		if sub.UserID == userID && !sub.CreatedAt.Before(latest) {
			model, latest = sub.Model, sub.CreatedAt
		}
	}
	return model
}

// UserIDs returns every known user id.
func (s *UserStore) UserIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Stats counts users and submissions per model.
func (s *UserStore) Stats(_ context.Context) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.Stats{
		Users:       len(s.users),
		Submissions: len(s.submissions),
		ByModel:     make(map[string]int),
	}
	for _, sub := range s.submissions {
		stats.ByModel[sub.Model]++
	}
	return stats, nil
}
