package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"rette/internal/core"
	"rette/internal/log"
	"rette/internal/metrics"
)

// Recorder observes confirmed payments (journal, event bus).
type Recorder interface {
	Name() string
	Record(ctx context.Context, ev core.PaymentEvent) error
}

// MultiRecorder fans an event out to every recorder in parallel. A failing
// recorder does not stop the others.
type MultiRecorder struct {
	recorders []Recorder
	metrics   *metrics.Metrics
	events    *log.StructuredLogger
}

func NewMultiRecorder(logger *log.Logger, m *metrics.Metrics, recorders ...Recorder) *MultiRecorder {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &MultiRecorder{
		recorders: recorders,
		metrics:   m,
		events:    log.NewStructuredLogger(logger),
	}
}

func (m *MultiRecorder) Name() string { return "multi" }

func (m *MultiRecorder) Len() int { return len(m.recorders) }

// Record returns the joined failures of all recorders.
func (m *MultiRecorder) Record(ctx context.Context, ev core.PaymentEvent) error {
	errs := make([]error, len(m.recorders))
	var g errgroup.Group
	for i, r := range m.recorders {
		g.Go(func() error {
			if err := r.Record(ctx, ev); err != nil {
				m.metrics.RecorderFailed(r.Name())
				fields := log.NewFields()
				fields[log.FieldEventID] = ev.EventID
				fields["recorder"] = r.Name()
				m.events.LogError(ctx, "Recorder failed", err, log.ComponentEngine, log.OpRecord, fields)
				errs[i] = fmt.Errorf("%s: %w", r.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
