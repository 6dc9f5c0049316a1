package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"rette/internal/core"
	ports "rette/internal/sheets"
)

// Store is an in-process roster source used for local runs and tests.
type Store struct {
	mu      sync.Mutex
	cohorts core.Cohorts
	now     func() time.Time
}

// Ensure interface conformance
var _ ports.RosterSource = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the time used to stamp payments.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New copies cohorts into a new store.
func New(cohorts core.Cohorts, opts ...Option) *Store {
	s := &Store{cohorts: cloneCohorts(cohorts), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

type seedFile struct {
	Cohorts map[string][]seedRecord `yaml:"cohorts"`
}

type seedRecord struct {
	ID              int64  `yaml:"id"`
	Name            string `yaml:"name"`
	LastPaymentDate string `yaml:"last_payment_date"`
	Phone           string `yaml:"phone"`
	Guardian        string `yaml:"guardian"`
}

// NewFromFile loads a YAML seed. A missing file yields an empty store.
// Explicit ids must be positive; records without an id are numbered after
// the highest explicit one, starting at row 2.
func NewFromFile(path string, opts ...Option) (*Store, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(core.Cohorts{}, opts...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	cohorts, err := parseSeed(b)
	if err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return New(cohorts, opts...), nil
}

func parseSeed(b []byte) (core.Cohorts, error) {
	var seed seedFile
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, err
	}
	next := int64(1)
	for cohort, recs := range seed.Cohorts {
		for _, r := range recs {
			if r.ID < 0 {
				return nil, fmt.Errorf("%w: %d (%s) in %q", core.ErrInvalidID, r.ID, r.Name, cohort)
			}
			next = max(next, r.ID)
		}
	}
	out := make(core.Cohorts, len(seed.Cohorts))
	// Stable numbering for id-less records.
	for _, name := range slices.Sorted(maps.Keys(seed.Cohorts)) {
		cohort := strings.TrimSpace(name)
		if cohort == "" {
			continue
		}
		for _, r := range seed.Cohorts[name] {
			id := r.ID
			if id == 0 {
				next++
				id = next
			}
			out[cohort] = append(out[cohort], core.Record{
				ID:           id,
				Name:         r.Name,
				Payment:      core.Settled(r.LastPaymentDate),
				Phone:        r.Phone,
				GuardianName: r.Guardian,
			})
		}
	}
	return out, nil
}

// FetchRoster returns a copy of the stored roster.
func (s *Store) FetchRoster(_ context.Context) (core.Cohorts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCohorts(s.cohorts), nil
}

func (s *Store) MarkPaid(_ context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stamp([]int64{id}, s.now())
}

func (s *Store) SetPaymentDate(_ context.Context, id int64, date string) (string, error) {
	t, ok := core.ParsePaymentDate(date)
	if !ok {
		return "", &ports.RemoteError{Message: fmt.Sprintf("invalid date format: %q", date)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stamp([]int64{id}, t)
}

func (s *Store) MarkPaidBulk(_ context.Context, ids []int64) (string, error) {
	if len(ids) == 0 {
		return "", errors.New("no row indexes provided for bulk update")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stamp(ids, s.now())
}

// stamp validates every id before writing any of them.
func (s *Store) stamp(ids []int64, at time.Time) (string, error) {
	type loc struct {
		cohort string
		idx    int
	}
	targets := make([]loc, 0, len(ids))
	for _, id := range ids {
		found := false
		for cohort, recs := range s.cohorts {
			for i := range recs {
				if recs[i].ID == id {
					targets = append(targets, loc{cohort, i})
					found = true
				}
			}
		}
		if !found {
			return "", &ports.RemoteError{Message: fmt.Sprintf("invalid row index: %d", id)}
		}
	}
	date := core.CanonicalDate(at)
	for _, t := range targets {
		s.cohorts[t.cohort][t.idx].Payment = core.Settled(date)
	}
	return date, nil
}

func cloneCohorts(in core.Cohorts) core.Cohorts {
	out := make(core.Cohorts, len(in))
	for k, v := range in {
		out[k] = append([]core.Record(nil), v...)
	}
	return out
}
