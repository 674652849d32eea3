// Package delivery paces outbound chat messages and fans captured leads out to operator channels.
package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"fils-quiz-bot/internal/domain"
	"fils-quiz-bot/internal/metrics"
	"go.uber.org/zap"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("dispatcher closed")

// Deliverer performs the actual send (the Telegram client).
type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, msg domain.Message) error
}

// Delays are the pauses inserted before a message of each kind.
type Delays struct {
	Question time.Duration
	Result   time.Duration
	FollowUp time.Duration
}

func (d Delays) before(kind domain.MessageKind) time.Duration {
	switch kind {
	case domain.KindQuestion:
		return d.Question
	case domain.KindResult:
		return d.Result
	case domain.KindFollowUp:
		return d.FollowUp
	default:
		return 0
	}
}

// Dispatcher is an app.MessageSink that queues messages per chat and delivers each queue in order
// on its own goroutine, sleeping the configured delay before paced kinds. Send never waits for
// delivery.
type Dispatcher struct {
	target  Deliverer
	delays  Delays
	timeout time.Duration
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	queues map[int64]*chatQueue
}

type chatQueue struct {
	pending []domain.Message
}

func NewDispatcher(target Deliverer, delays Delays, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		target:  target,
		delays:  delays,
		timeout: 15 * time.Second,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		queues:  make(map[int64]*chatQueue),
	}
}

// Send enqueues msg for chatID.
func (d *Dispatcher) Send(_ context.Context, chatID int64, msg domain.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	q, running := d.queues[chatID]
	if !running {
		q = &chatQueue{}
		d.queues[chatID] = q
	}
	q.pending = append(q.pending, msg)
	metrics.PendingDeliveries.Inc()
	if !running {
		d.wg.Add(1)
		go d.drain(chatID, q)
	}
	return nil
}

func (d *Dispatcher) drain(chatID int64, q *chatQueue) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(q.pending) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending = q.pending[1:]
		d.mu.Unlock()

		d.deliver(chatID, msg)
		metrics.PendingDeliveries.Dec()
	}
}

func (d *Dispatcher) deliver(chatID int64, msg domain.Message) {
	if delay := d.delays.before(msg.Kind); delay > 0 {
		select {
		case <-time.After(delay):
		case <-d.ctx.Done():
		}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(d.ctx), d.timeout)
	defer cancel()

	start := time.Now()
	err := d.target.Deliver(ctx, chatID, msg)
	metrics.DeliveryDuration.WithLabelValues(msg.Kind.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CollaboratorFailures.WithLabelValues("deliver_message").Inc()
		d.logger.Warn("message delivery failed",
			zap.Int64("chat_id", chatID), zap.Stringer("kind", msg.Kind), zap.Error(err))
	}
}

// Close stops accepting messages and waits for queued ones. When ctx expires first, remaining
// delays are skipped and the queues are flushed without pauses.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
