package services

import (
	"context"
	"slices"
	"sync"
	"time"

	"rette/internal/core"
)

var fixedNow = time.Date(2025, 11, 15, 10, 0, 0, 0, core.ReferenceLocation())

func fixedClock() time.Time { return fixedNow }

func sampleCohorts() core.Cohorts {
	return core.Cohorts{
		"Salsa": {
			{ID: 2, Name: "bob", Payment: core.Settled("")},
			{ID: 3, Name: "Alice", Payment: core.Settled("2025-09-01")},
			{ID: 4, Name: "carol", Payment: core.Settled("2025-11-02")},
		},
		"Ballet": {
			{ID: 7, Name: "Dave", Payment: core.Settled("2025-11-05")},
			{ID: 12, Name: "eve", Payment: core.Settled("2025-10-01")},
			{ID: 19, Name: "Frank", Payment: core.Settled("")},
		},
	}
}

type remoteCallLog struct {
	op   core.Operation
	ids  []int64
	date string
}

// fakeSource is a scriptable RosterSource. When gate is set, every mutation
// signals entered and then waits for gate to be closed.
type fakeSource struct {
	mu       sync.Mutex
	cohorts  core.Cohorts
	fetchErr error
	fetches  int
	confirm  string
	failFor  map[int64]error
	err      error
	calls    []remoteCallLog

	gate         chan struct{}
	entered      chan struct{}
	fetchGate    chan struct{}
	fetchEntered chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		cohorts: sampleCohorts(),
		confirm: "2025-11-15T04:30:00.000Z",
		failFor: map[int64]error{},
	}
}

func (f *fakeSource) blockMutations() {
	f.gate = make(chan struct{})
	f.entered = make(chan struct{}, 16)
}

func (f *fakeSource) FetchRoster(_ context.Context) (core.Cohorts, error) {
	if f.fetchGate != nil {
		if f.fetchEntered != nil {
			f.fetchEntered <- struct{}{}
		}
		<-f.fetchGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := core.Cohorts{}
	for k, v := range f.cohorts {
		out[k] = slices.Clone(v)
	}
	return out, nil
}

func (f *fakeSource) respond(op core.Operation, ids []int64, date string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, remoteCallLog{op: op, ids: slices.Clone(ids), date: date})
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if err := f.failFor[id]; err != nil {
			return "", err
		}
	}
	if f.err != nil {
		return "", f.err
	}
	if date != "" {
		return date + "T00:00:00.000Z", nil
	}
	return f.confirm, nil
}

func (f *fakeSource) MarkPaid(_ context.Context, id int64) (string, error) {
	return f.respond(core.OpMarkPaid, []int64{id}, "")
}

func (f *fakeSource) SetPaymentDate(_ context.Context, id int64, date string) (string, error) {
	return f.respond(core.OpSetDate, []int64{id}, date)
}

func (f *fakeSource) MarkPaidBulk(_ context.Context, ids []int64) (string, error) {
	return f.respond(core.OpMarkPaidBulk, ids, "")
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSource) lastCall() remoteCallLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type captureRecorder struct {
	mu     sync.Mutex
	name   string
	err    error
	events []core.PaymentEvent
}

func (c *captureRecorder) Name() string { return c.name }

func (c *captureRecorder) Record(_ context.Context, ev core.PaymentEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *captureRecorder) recorded() []core.PaymentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}
