package services

import (
	"maps"
	"slices"
	"sync"
)

// inFlight tracks ids with a mutation awaiting the remote source.
type inFlight struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

func newInFlight() *inFlight {
	return &inFlight{ids: make(map[int64]struct{})}
}

// acquire locks every id or none of them.
func (l *inFlight) acquire(ids []int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		if _, busy := l.ids[id]; busy {
			return false
		}
	}
	for _, id := range ids {
		l.ids[id] = struct{}{}
	}
	return true
}

func (l *inFlight) release(ids []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.ids, id)
	}
}

func (l *inFlight) busy(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[id]
	return ok
}

func (l *inFlight) snapshot() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Sorted(maps.Keys(l.ids))
}

// writeLog numbers local payment writes so a load can tell which records
// changed after its fetch was issued.
type writeLog struct {
	mu   sync.Mutex
	seq  uint64
	last map[int64]uint64
}

func newWriteLog() *writeLog {
	return &writeLog{last: make(map[int64]uint64)}
}

// current returns the sequence number of the latest write.
func (w *writeLog) current() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

func (w *writeLog) mark(ids []int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	for _, id := range ids {
		w.last[id] = w.seq
	}
}

// since returns the ids written after gen, in ascending order.
func (w *writeLog) since(gen uint64) []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []int64
	for id, seq := range w.last {
		if seq > gen {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
