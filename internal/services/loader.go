package services

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"rette/internal/core"
	"rette/internal/log"
	"rette/internal/metrics"
	"rette/internal/sheets"
)

// Loader fetches the full roster. Concurrent loads share one remote call.
type Loader struct {
	reader  sheets.RosterReader
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *log.Logger

	// generation reports the local write sequence when a fetch is issued.
	generation func() uint64
}

type fetched struct {
	roster *core.Roster
	gen    uint64
}

// NewLoader builds a loader. A nil reader means no source is configured.
func NewLoader(reader sheets.RosterReader, m *metrics.Metrics, logger *log.Logger) *Loader {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Loader{reader: reader, metrics: m, logger: logger.WithComponent(log.ComponentLoader)}
}

// Load returns core.ErrSetupRequired without any remote call when no source
// is configured, and a *core.LoadError for transport, envelope or data
// problems. An empty roster is a valid result.
func (l *Loader) Load(ctx context.Context) (*core.Roster, error) {
	r, _, err := l.load(ctx)
	return r, err
}

// load also returns the write generation observed when the shared fetch
// was issued.
func (l *Loader) load(ctx context.Context) (*core.Roster, uint64, error) {
	if l.reader == nil {
		l.metrics.ObserveLoad(metrics.ResultSetup, 0, 0)
		l.logger.InfoContext(ctx, "Roster source not configured")
		return nil, 0, core.ErrSetupRequired
	}

	v, err, shared := l.group.Do("roster", func() (any, error) {
		var gen uint64
		if l.generation != nil {
			gen = l.generation()
		}
		start := time.Now()
		cohorts, err := l.reader.FetchRoster(context.WithoutCancel(ctx))
		if err != nil {
			l.metrics.ObserveLoad(metrics.ResultFailure, 0, 0)
			return nil, &core.LoadError{Err: err}
		}
		roster, err := core.NewRoster(cohorts)
		if err != nil {
			l.metrics.ObserveLoad(metrics.ResultFailure, 0, 0)
			return nil, &core.LoadError{Err: err}
		}
		l.metrics.ObserveLoad(metrics.ResultSuccess, roster.Len(), time.Since(start))
		return fetched{roster: roster, gen: gen}, nil
	})
	if err != nil {
		l.logger.WarnContext(ctx, "Roster load failed", log.FieldError, err)
		return nil, 0, err
	}
	res := v.(fetched)
	roster := res.roster
	l.logger.InfoContext(ctx, "Roster loaded",
		log.FieldCohorts, len(roster.CohortOrder()),
		log.FieldRecords, roster.Len(),
		"shared", shared)
	return roster, res.gen, nil
}
