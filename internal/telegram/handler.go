package telegram

import (
	"context"

	"fils-quiz-bot/internal/app"
	"fils-quiz-bot/internal/metrics"
	"go.uber.org/zap"
)

// EventHandler is the conversation service.
type EventHandler interface {
	Handle(ctx context.Context, ev app.Event) (app.Outcome, error)
}

// Deduper reports whether an update id was already processed.
type Deduper interface {
	Seen(ctx context.Context, updateID int64) (bool, error)
}

// CallbackAnswerer acknowledges button taps.
type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// UpdateHandler turns raw updates into service calls. It is shared by the webhook and the poller.
type UpdateHandler struct {
	events  EventHandler
	answers CallbackAnswerer
	dedup   Deduper
	logger  *zap.Logger
}

func NewUpdateHandler(events EventHandler, answers CallbackAnswerer, dedup Deduper, logger *zap.Logger) *UpdateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UpdateHandler{events: events, answers: answers, dedup: dedup, logger: logger}
}

// HandleUpdate processes one update. Redelivered update ids are dropped. The returned error is only
// set when quiz content could not be loaded.
func (h *UpdateHandler) HandleUpdate(ctx context.Context, upd Update) error {
	log := h.logger.With(zap.Int64("update_id", upd.UpdateID))
	if h.dedup != nil && upd.UpdateID != 0 {
		seen, err := h.dedup.Seen(ctx, upd.UpdateID)
		if err != nil {
			// fail open: the update is handled
			log.Warn("dedup check failed", zap.Error(err))
		} else if seen {
			metrics.DuplicateUpdates.Inc()
			log.Debug("duplicate update dropped")
			return nil
		}
	}

	if cq := upd.CallbackQuery; cq != nil && h.answers != nil {
		if err := h.answers.AnswerCallbackQuery(ctx, cq.ID, callbackToast(cq.Data)); err != nil {
			metrics.CollaboratorFailures.WithLabelValues("answer_callback").Inc()
			log.Warn("answer callback failed", zap.Error(err))
		}
	}

	ev, ok := ToEvent(upd)
	if !ok {
		log.Debug("update ignored")
		return nil
	}
	_, err := h.events.Handle(ctx, ev)
	return err
}
