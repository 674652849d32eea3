package telegram

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// UpdateSource is the getUpdates side of the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Poller feeds long-polled updates into an UpdateHandler. Updates of one batch are handled in
// order, so a user's taps keep their sequence.
type Poller struct {
	source  UpdateSource
	handler *UpdateHandler
	timeout time.Duration
	backoff time.Duration
	logger  *zap.Logger
}

func NewPoller(source UpdateSource, handler *UpdateHandler, timeout time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{source: source, handler: handler, timeout: timeout, backoff: 2 * time.Second, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("getUpdates failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			if err := p.handler.HandleUpdate(ctx, upd); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				p.logger.Error("handle update", zap.Int64("update_id", upd.UpdateID), zap.Error(err))
			}
		}
	}
}
