package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fils-quiz-bot/internal/app"
	"fils-quiz-bot/internal/domain"
	"fils-quiz-bot/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []app.Event
}

func (r *recordingEvents) Handle(_ context.Context, ev app.Event) (app.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return app.Outcome{Accepted: true}, nil
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recordingAnswers struct {
	toasts []string
	err    error
}

func (r *recordingAnswers) AnswerCallbackQuery(_ context.Context, _ string, text string) error {
	r.toasts = append(r.toasts, text)
	return r.err
}

type brokenDeduper struct{}

func (brokenDeduper) Seen(context.Context, int64) (bool, error) { return false, errors.New("redis down") }

func TestUpdateHandlerDropsRedeliveries(t *testing.T) {
	events := &recordingEvents{}
	h := NewUpdateHandler(events, nil, memory.NewDeduper(time.Minute), nil)
	upd := Update{UpdateID: 7, Message: &Message{Chat: Chat{ID: 1}, From: &User{ID: 1}, Text: "/start"}}

	require.NoError(t, h.HandleUpdate(context.Background(), upd))
	require.NoError(t, h.HandleUpdate(context.Background(), upd))
	assert.Equal(t, 1, events.count())
}

func TestUpdateHandlerFailsOpenOnDedupError(t *testing.T) {
	events := &recordingEvents{}
	h := NewUpdateHandler(events, nil, brokenDeduper{}, nil)
	upd := Update{UpdateID: 7, Message: &Message{Chat: Chat{ID: 1}, From: &User{ID: 1}, Text: "/start"}}

	require.NoError(t, h.HandleUpdate(context.Background(), upd))
	assert.Equal(t, 1, events.count())
}

func TestUpdateHandlerAcksCallbacks(t *testing.T) {
	events := &recordingEvents{}
	answers := &recordingAnswers{err: errors.New("too late")}
	h := NewUpdateHandler(events, answers, nil, nil)
	ctx := context.Background()

	require.NoError(t, h.HandleUpdate(ctx, Update{UpdateID: 1, CallbackQuery: &CallbackQuery{ID: "a", From: User{ID: 1}, Data: domain.BeginCallback}}))
	require.NoError(t, h.HandleUpdate(ctx, Update{UpdateID: 2, CallbackQuery: &CallbackQuery{ID: "b", From: User{ID: 1}, Data: "q1_1"}}))
	require.NoError(t, h.HandleUpdate(ctx, Update{UpdateID: 3, CallbackQuery: &CallbackQuery{ID: "c", From: User{ID: 1}, Data: "bogus"}}))

	assert.Equal(t, []string{"Запускаем квиз…", "Выбрано ✅", ""}, answers.toasts)
	assert.Equal(t, 2, events.count(), "unknown payloads are acked but not handled")
}

type scriptedSource struct {
	mu      sync.Mutex
	batches [][]Update
	offsets []int64
	cancel  context.CancelFunc
}

func (s *scriptedSource) GetUpdates(ctx context.Context, offset int64, _ time.Duration) ([]Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets = append(s.offsets, offset)
	if len(s.batches) == 0 {
		s.cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	if batch == nil {
		return nil, errors.New("network blip")
	}
	return batch, nil
}

func TestPollerAdvancesOffset(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := func(id int64) Update {
		return Update{UpdateID: id, Message: &Message{Chat: Chat{ID: 1}, From: &User{ID: 1}, Text: "hi"}}
	}
	source := &scriptedSource{
		batches: [][]Update{{msg(100), msg(101)}, nil, {msg(102)}},
		cancel:  cancel,
	}
	events := &recordingEvents{}
	poller := NewPoller(source, NewUpdateHandler(events, nil, nil, nil), time.Second, nil)
	poller.backoff = time.Millisecond

	require.NoError(t, poller.Run(ctx))
	assert.Equal(t, 3, events.count())
	assert.Equal(t, []int64{0, 102, 102, 103}, source.offsets)
}

type textRecorder struct {
	chatID int64
	text   string
}

func (r *textRecorder) SendText(_ context.Context, chatID int64, text string) (int64, error) {
	r.chatID, r.text = chatID, text
	return 1, nil
}

func TestLeadNotifier(t *testing.T) {
	rec := &textRecorder{}
	lead := domain.Lead{UserID: 1, DisplayName: "Ivan", Phone: "+7999", Result: domain.CatalogItem{ID: "CLOUD", Title: "CLOUD"}}

	require.NoError(t, NewLeadNotifier(rec, -100).DeliverLead(context.Background(), lead))
	assert.Equal(t, int64(-100), rec.chatID)
	assert.Contains(t, rec.text, "+7999")

	require.Error(t, NewLeadNotifier(rec, 0).DeliverLead(context.Background(), lead))
}
