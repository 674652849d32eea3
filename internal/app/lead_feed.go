package app

import (
	"context"
	"sync"

	"fils-quiz-bot/internal/domain"
)

// LeadFeed fans captured leads out to live subscribers (dashboard websockets) and keeps the most
// recent ones for late joiners. It is a LeadSink.
type LeadFeed struct {
	mu          sync.Mutex
	keep        int
	recent      []domain.Lead
	subscribers map[chan domain.Lead]struct{}
}

func NewLeadFeed(keep int) *LeadFeed {
	if keep <= 0 {
		keep = 20
	}
	return &LeadFeed{
		keep:        keep,
		subscribers: make(map[chan domain.Lead]struct{}),
	}
}

// DeliverLead records the lead and broadcasts it to every subscriber.
func (f *LeadFeed) DeliverLead(_ context.Context, lead domain.Lead) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recent = append(f.recent, lead)
	if len(f.recent) > f.keep {
		f.recent = f.recent[len(f.recent)-f.keep:]
	}
	for ch := range f.subscribers {
		select {
		case ch <- lead:
		default:
			// slow subscriber: drop its oldest pending lead to make room
			select {
			case <-ch:
			default:
			}
			ch <- lead
		}
	}
	return nil
}

// Recent returns the retained leads, oldest first.
func (f *LeadFeed) Recent() []domain.Lead {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Lead(nil), f.recent...)
}

// Subscribe returns a channel of new leads. The caller must invoke cancel to avoid leaks.
func (f *LeadFeed) Subscribe() (<-chan domain.Lead, func()) {
	ch := make(chan domain.Lead, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}
