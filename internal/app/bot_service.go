package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fils-quiz-bot/internal/domain"
	"fils-quiz-bot/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionRepository abstracts where conversation sessions live (in-memory, Redis-backed, etc).
type SessionRepository interface {
	GetOrCreate(ctx context.Context, userID int64) *Session
	Get(ctx context.Context, userID int64) (*Session, bool)
	Save(ctx context.Context, userID int64, snapshot SessionSnapshot) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// MessageSink delivers outbound messages to a chat. Delivery is best effort.
type MessageSink interface {
	Send(ctx context.Context, chatID int64, msg domain.Message) error
}

// LeadSink receives one lead per finished conversation.
type LeadSink interface {
	DeliverLead(ctx context.Context, lead domain.Lead) error
}

// UserStore persists profiles, submissions and promo codes.
type UserStore interface {
	UpsertUser(ctx context.Context, user domain.User) error
	AddSubmission(ctx context.Context, sub domain.Submission) error
	UpdatePhone(ctx context.Context, userID int64, phone string) error
	IssuePromoCode(ctx context.Context, promo domain.PromoCode) error
}

// PromoLookup is implemented by stores that can report the promo code a user was last issued.
type PromoLookup interface {
	LatestPromoCode(ctx context.Context, userID int64) (domain.PromoCode, error)
}

// BotService runs the quiz conversation: it feeds events into per-user sessions and carries out the
// resulting side effects. Collaborator failures are logged and counted, never returned.
type BotService struct {
	quizID      string
	sessions    SessionRepository
	quizzes     QuizRepository
	messages    MessageSink
	leads       LeadSink
	users       UserStore
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
	leadTimeout time.Duration

	wg sync.WaitGroup
}

// Option customizes a BotService.
type Option func(*BotService)

func WithLeadSink(sink LeadSink) Option {
	return func(s *BotService) { s.leads = sink }
}

func WithUserStore(store UserStore) Option {
	return func(s *BotService) { s.users = store }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *BotService) { s.logger = logger }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *BotService) { s.now = now }
}

func WithLeadTimeout(d time.Duration) Option {
	return func(s *BotService) { s.leadTimeout = d }
}

func NewBotService(quizID string, sessions SessionRepository, quizzes QuizRepository, messages MessageSink, opts ...Option) *BotService {
	s := &BotService{
		quizID:      quizID,
		sessions:    sessions,
		quizzes:     quizzes,
		messages:    messages,
		logger:      zap.NewNop(),
		now:         time.Now,
		newID:       uuid.NewString,
		leadTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quiz returns the content the service is serving.
func (s *BotService) Quiz(ctx context.Context) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, s.quizID)
}

// Handle applies one inbound event. The only error it returns is a failure to load quiz content;
// ignored events come back as an Outcome with Accepted == false.
func (s *BotService) Handle(ctx context.Context, ev Event) (Outcome, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, s.quizID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load quiz %s: %w", s.quizID, err)
	}

	session := s.sessions.GetOrCreate(ctx, ev.User.ID)
	out := session.Apply(quiz, ev, s.now())
	log := s.logger.With(zap.Int64("user_id", ev.User.ID), zap.Stringer("event", ev.Kind), zap.Stringer("state", out.From))
	if !out.Accepted {
		metrics.EventsTotal.WithLabelValues(ev.Kind.String(), "ignored").Inc()
		log.Debug("event ignored")
		return out, nil
	}
	metrics.EventsTotal.WithLabelValues(ev.Kind.String(), "accepted").Inc()
	log.Debug("transition", zap.Stringer("to", out.To))

	if err := s.sessions.Save(ctx, ev.User.ID, out.Snapshot); err != nil {
		s.failed(log, "save_session", err)
	}

	for _, msg := range out.Messages {
		if err := s.messages.Send(ctx, ev.ChatID, msg); err != nil {
			s.failed(log, "send_message", err)
		}
	}

	if out.Profile != nil && s.users != nil {
		if err := s.users.UpsertUser(ctx, *out.Profile); err != nil {
			s.failed(log, "upsert_user", err)
		}
	}
	if out.Submission != nil {
		metrics.RecommendationsTotal.WithLabelValues(out.Submission.Model).Inc()
		log.Info("quiz completed", zap.String("model", out.Submission.Model))
		if s.users != nil {
			if err := s.users.AddSubmission(ctx, *out.Submission); err != nil {
				s.failed(log, "add_submission", err)
			}
		}
	}
	if out.Promo != nil && s.users != nil {
		if err := s.users.IssuePromoCode(ctx, *out.Promo); err != nil {
			s.failed(log, "issue_promo_code", err)
		}
	}
	if out.Lead != nil {
		out.Lead.ID = s.newID()
		log.Info("lead captured", zap.String("lead_id", out.Lead.ID))
		s.handoff(ctx, *out.Lead)
		if s.users != nil {
			if err := s.users.UpdatePhone(ctx, out.Lead.UserID, out.Lead.Phone); err != nil {
				s.failed(log, "update_phone", err)
			}
		}
	}
	return out, nil
}

// handoff delivers the lead in the background so the user-facing acknowledgment never waits on
// operator-side infrastructure.
func (s *BotService) handoff(ctx context.Context, lead domain.Lead) {
	if s.leads == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.leadTimeout)
		defer cancel()
		lead = s.withIssuedPromo(ctx, lead)
		if err := s.leads.DeliverLead(ctx, lead); err != nil {
			s.failed(s.logger.With(zap.String("lead_id", lead.ID)), "deliver_lead", err)
		}
	}()
}

// withIssuedPromo replaces the configured promo code on the lead with the one stored for the user,
// which is what the user was actually shown.
func (s *BotService) withIssuedPromo(ctx context.Context, lead domain.Lead) domain.Lead {
	lookup, ok := s.users.(PromoLookup)
	if !ok {
		return lead
	}
	promo, err := lookup.LatestPromoCode(ctx, lead.UserID)
	switch {
	case errors.Is(err, domain.ErrPromoNotFound):
	case err != nil:
		s.failed(s.logger.With(zap.String("lead_id", lead.ID)), "latest_promo_code", err)
	default:
		lead.PromoCode = promo.Code
		lead.PromoAmount = promo.Amount
	}
	return lead
}

// Wait blocks until in-flight lead handoffs finish.
func (s *BotService) Wait() {
	s.wg.Wait()
}

func (s *BotService) failed(log *zap.Logger, operation string, err error) {
	metrics.CollaboratorFailures.WithLabelValues(operation).Inc()
	log.Warn("collaborator call failed", zap.String("operation", operation), zap.Error(err))
}
