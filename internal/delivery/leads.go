package delivery

import (
	"context"
	"errors"
	"fmt"

	"fils-quiz-bot/internal/domain"
	"fils-quiz-bot/internal/metrics"
)

// LeadSink receives captured leads.
type LeadSink interface {
	DeliverLead(ctx context.Context, lead domain.Lead) error
}

// NamedSink labels a sink for metrics and errors.
type NamedSink struct {
	Name string
	Sink LeadSink
}

// LeadFanOut hands every lead to all sinks. One failing sink does not stop the others; their errors
// are joined.
type LeadFanOut struct {
	sinks []NamedSink
}

func NewLeadFanOut(sinks ...NamedSink) *LeadFanOut {
	return &LeadFanOut{sinks: sinks}
}

func (f *LeadFanOut) DeliverLead(ctx context.Context, lead domain.Lead) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Sink.DeliverLead(ctx, lead); err != nil {
			metrics.LeadsTotal.WithLabelValues(s.Name, "failed").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		metrics.LeadsTotal.WithLabelValues(s.Name, "delivered").Inc()
	}
	return errors.Join(errs...)
}

// Len reports the number of configured sinks.
func (f *LeadFanOut) Len() int {
	return len(f.sinks)
}
