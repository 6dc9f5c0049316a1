package services

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// GroupState is the tri-state of a group checkbox.
type GroupState string

const (
	GroupNone    GroupState = "none"
	GroupPartial GroupState = "partial"
	GroupAll     GroupState = "all"
)

type idSet = map[int64]struct{}

// Selection is a process-wide set of record ids that cuts across cohorts.
// Every change publishes a new set, so readers see either the old or the
// new membership.
type Selection struct {
	mu  sync.Mutex
	set atomic.Pointer[idSet]
}

func NewSelection() *Selection {
	s := &Selection{}
	empty := idSet{}
	s.set.Store(&empty)
	return s
}

func (s *Selection) load() idSet { return *s.set.Load() }

func (s *Selection) update(fn func(next idSet)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := maps.Clone(s.load())
	fn(next)
	s.set.Store(&next)
}

// Toggle flips membership of id and reports whether it is now selected.
func (s *Selection) Toggle(id int64) bool {
	var selected bool
	s.update(func(next idSet) {
		if _, ok := next[id]; ok {
			delete(next, id)
			return
		}
		next[id] = struct{}{}
		selected = true
	})
	return selected
}

func (s *Selection) SelectAll(ids []int64) {
	s.update(func(next idSet) {
		for _, id := range ids {
			next[id] = struct{}{}
		}
	})
}

func (s *Selection) ClearAll(ids []int64) {
	s.update(func(next idSet) {
		for _, id := range ids {
			delete(next, id)
		}
	})
}

// ToggleAll deselects ids when every one of them is selected and selects
// the rest otherwise. A partial group always resolves to fully selected.
func (s *Selection) ToggleAll(ids []int64) GroupState {
	var state GroupState
	s.update(func(next idSet) {
		all := len(ids) > 0
		for _, id := range ids {
			if _, ok := next[id]; !ok {
				all = false
				break
			}
		}
		if all {
			for _, id := range ids {
				delete(next, id)
			}
			state = GroupNone
			return
		}
		for _, id := range ids {
			next[id] = struct{}{}
		}
		if len(ids) > 0 {
			state = GroupAll
		} else {
			state = GroupNone
		}
	})
	return state
}

// Remove drops ids from the selection; absent ids are ignored.
func (s *Selection) Remove(ids ...int64) {
	if len(ids) == 0 {
		return
	}
	s.ClearAll(ids)
}

// Retain keeps only ids for which keep returns true.
func (s *Selection) Retain(keep func(int64) bool) {
	s.update(func(next idSet) {
		maps.DeleteFunc(next, func(id int64, _ struct{}) bool { return !keep(id) })
	})
}

func (s *Selection) Contains(id int64) bool {
	_, ok := s.load()[id]
	return ok
}

func (s *Selection) Len() int { return len(s.load()) }

// CountWithin counts how many of ids are selected.
func (s *Selection) CountWithin(ids []int64) int {
	set := s.load()
	n := 0
	for _, id := range ids {
		if _, ok := set[id]; ok {
			n++
		}
	}
	return n
}

// State derives the tri-state for a group of ids.
func (s *Selection) State(ids []int64) GroupState {
	n := s.CountWithin(ids)
	switch {
	case n == 0:
		return GroupNone
	case n == len(ids):
		return GroupAll
	default:
		return GroupPartial
	}
}

// IDs returns the selected ids in ascending order.
func (s *Selection) IDs() []int64 {
	return slices.Sorted(maps.Keys(s.load()))
}
