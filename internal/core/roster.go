package core

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Roster is an immutable snapshot of records grouped by cohort. Every
// method that changes something returns a new snapshot and leaves the
// receiver untouched; cohorts that are not affected keep sharing their
// backing slices with the previous snapshot.
type Roster struct {
	cohorts map[string][]Record
	order   []string
}

// EmptyRoster returns a roster with no cohorts.
func EmptyRoster() *Roster {
	return &Roster{cohorts: map[string][]Record{}}
}

// NewRoster copies in into a snapshot. It fails with ErrDuplicateID when an
// id appears more than once anywhere in the mapping, and with ErrInvalidID
// for ids below 1, which no caller could address.
func NewRoster(in Cohorts) (*Roster, error) {
	r := &Roster{cohorts: make(map[string][]Record, len(in))}
	seen := make(map[int64]string)
	for cohort, records := range in {
		for _, rec := range records {
			if rec.ID <= 0 {
				return nil, fmt.Errorf("%w: %d (%s) in %q", ErrInvalidID, rec.ID, rec.Name, cohort)
			}
			if prev, ok := seen[rec.ID]; ok {
				return nil, fmt.Errorf("%w: %d in %q and %q", ErrDuplicateID, rec.ID, prev, cohort)
			}
			seen[rec.ID] = cohort
		}
		r.cohorts[cohort] = slices.Clone(records)
	}
	r.order = slices.Sorted(maps.Keys(r.cohorts))
	return r, nil
}

// IsEmpty reports whether the roster has no cohorts.
func (r *Roster) IsEmpty() bool {
	return r == nil || len(r.cohorts) == 0
}

// Len returns the number of records across all cohorts.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, recs := range r.cohorts {
		n += len(recs)
	}
	return n
}

// CohortOrder returns cohort names in ascending lexical order.
func (r *Roster) CohortOrder() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.order)
}

// Records returns the records of a cohort in stored order.
func (r *Roster) Records(cohort string) []Record {
	if r == nil {
		return nil
	}
	return slices.Clone(r.cohorts[cohort])
}

// IDs returns the ids of a cohort in stored order.
func (r *Roster) IDs(cohort string) []int64 {
	if r == nil {
		return nil
	}
	recs := r.cohorts[cohort]
	ids := make([]int64, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	return ids
}

// Locate scans cohorts in CohortOrder and returns the first record with id.
func (r *Roster) Locate(id int64) (string, Record, bool) {
	if r == nil {
		return "", Record{}, false
	}
	for _, cohort := range r.order {
		for _, rec := range r.cohorts[cohort] {
			if rec.ID == id {
				return cohort, rec, true
			}
		}
	}
	return "", Record{}, false
}

// Contains reports whether id resolves in the roster.
func (r *Roster) Contains(id int64) bool {
	_, _, ok := r.Locate(id)
	return ok
}

// WithPayment returns a snapshot where only the record id has state p. An
// unknown id returns the receiver unchanged.
func (r *Roster) WithPayment(id int64, p PaymentState) *Roster {
	return r.WithPayments(map[int64]PaymentState{id: p})
}

// WithPayments applies per-id states in one new snapshot. Unknown ids are
// ignored; when nothing matches the receiver itself is returned.
func (r *Roster) WithPayments(states map[int64]PaymentState) *Roster {
	if r == nil || len(states) == 0 {
		return r
	}
	var next map[string][]Record
	for _, cohort := range r.order {
		recs := r.cohorts[cohort]
		var updated []Record
		for i, rec := range recs {
			p, ok := states[rec.ID]
			if !ok {
				continue
			}
			if updated == nil {
				updated = slices.Clone(recs)
			}
			updated[i].Payment = p
		}
		if updated == nil {
			continue
		}
		if next == nil {
			next = maps.Clone(r.cohorts)
		}
		next[cohort] = updated
	}
	if next == nil {
		return r
	}
	return &Roster{cohorts: next, order: r.order}
}

// Payments returns the current state of every listed id that resolves.
func (r *Roster) Payments(ids []int64) map[int64]PaymentState {
	out := make(map[int64]PaymentState, len(ids))
	for _, id := range ids {
		if _, rec, ok := r.Locate(id); ok {
			out[id] = rec.Payment
		}
	}
	return out
}

// Ordered returns a cohort's records with overdue records first, then by
// name using English collation. It is recomputed on every call because
// overdue status depends on now.
func (r *Roster) Ordered(cohort string, now time.Time) []Record {
	recs := r.Records(cohort)
	col := collate.New(language.English)
	slices.SortStableFunc(recs, func(a, b Record) int {
		ao, bo := a.Payment.Overdue(now), b.Payment.Overdue(now)
		switch {
		case ao && !bo:
			return -1
		case !ao && bo:
			return 1
		}
		return col.CompareString(a.Name, b.Name)
	})
	return recs
}

// Cohorts returns a copy of the underlying mapping.
func (r *Roster) Cohorts() Cohorts {
	if r == nil {
		return Cohorts{}
	}
	out := make(Cohorts, len(r.order))
	for _, cohort := range r.order {
		out[cohort] = slices.Clone(r.cohorts[cohort])
	}
	return out
}
