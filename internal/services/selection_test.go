package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelection_Toggle(t *testing.T) {
	s := NewSelection()
	assert.True(t, s.Toggle(5))
	assert.True(t, s.Contains(5))
	assert.False(t, s.Toggle(5))
	assert.False(t, s.Contains(5))
	assert.Equal(t, 0, s.Len())
}

func TestSelection_ToggleAll(t *testing.T) {
	group := []int64{1, 2, 3}

	tests := []struct {
		name     string
		selected []int64
		want     GroupState
		wantIDs  []int64
	}{
		{"none selected selects all", nil, GroupAll, []int64{1, 2, 3}},
		{"partial selects the rest", []int64{2}, GroupAll, []int64{1, 2, 3}},
		{"all selected clears", []int64{1, 2, 3}, GroupNone, nil},
		{"outside ids are kept", []int64{1, 2, 3, 9}, GroupNone, []int64{9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSelection()
			s.SelectAll(tt.selected)
			assert.Equal(t, tt.want, s.ToggleAll(group))
			assert.Equal(t, tt.wantIDs, s.IDs())
		})
	}

	assert.Equal(t, GroupNone, NewSelection().ToggleAll(nil))
}

func TestSelection_State(t *testing.T) {
	s := NewSelection()
	group := []int64{1, 2, 3}
	assert.Equal(t, GroupNone, s.State(group))
	s.Toggle(2)
	assert.Equal(t, GroupPartial, s.State(group))
	assert.Equal(t, 1, s.CountWithin(group))
	s.SelectAll(group)
	assert.Equal(t, GroupAll, s.State(group))
	assert.Equal(t, GroupNone, s.State(nil))
}

func TestSelection_RemoveAndRetain(t *testing.T) {
	s := NewSelection()
	s.SelectAll([]int64{4, 8, 15, 16})
	s.Remove(8, 42)
	assert.Equal(t, []int64{4, 15, 16}, s.IDs())

	s.Retain(func(id int64) bool { return id%2 == 0 })
	assert.Equal(t, []int64{4, 16}, s.IDs())

	s.Remove()
	assert.Equal(t, 2, s.Len())
}

func TestSelection_ConcurrentToggles(t *testing.T) {
	s := NewSelection()
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Toggle(int64(i))
			_ = s.IDs()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, s.Len())
}
