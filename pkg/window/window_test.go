package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_Append(t *testing.T) {
	tests := []struct {
		capacity int
		provided []int
		expected []int
	}{
		{
			capacity: 3,
			provided: []int{10, 20, 30, 40},
			expected: []int{20, 30, 40},
		},
		{
			capacity: 3,
			provided: []int{10, 20},
			expected: []int{10, 20},
		},
		{
			capacity: 5,
			provided: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
			expected: []int{8, 9, 10, 11, 12},
		},
		{
			capacity: 1,
			provided: []int{1, 2, 3},
			expected: []int{3},
		},
		{
			capacity: 0,
			provided: []int{1, 2},
			expected: []int{2},
		},
	}

	for _, test := range tests {
		w := New[int](test.capacity)
		for _, v := range test.provided {
			w.Append(v)
		}
		assert.Equal(t, test.expected, w.Values())
		assert.Equal(t, len(test.expected), w.Len())
	}
}

func TestWindow_EvictsExactlyOne(t *testing.T) {
	w := New[string](2)

	assert.False(t, w.Append("a"))
	assert.False(t, w.Append("b"))
	assert.True(t, w.Append("c"))
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, []string{"b", "c"}, w.Values())
}

func TestWindow_FirstLast(t *testing.T) {
	w := New[int](3)

	_, ok := w.First()
	assert.False(t, ok)
	_, ok = w.Last()
	assert.False(t, ok)

	for _, v := range []int{1, 2, 3, 4} {
		w.Append(v)
	}

	first, ok := w.First()
	assert.True(t, ok)
	assert.Equal(t, 2, first)

	last, ok := w.Last()
	assert.True(t, ok)
	assert.Equal(t, 4, last)
}

func TestWindow_Clear(t *testing.T) {
	w := New[int](3)
	for _, v := range []int{1, 2, 3, 4} {
		w.Append(v)
	}

	w.Clear()
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 3, w.Cap())
	assert.Empty(t, w.Values())

	w.Append(5)
	assert.Equal(t, []int{5}, w.Values())
}

func TestWindow_ValuesIsCopy(t *testing.T) {
	w := New[int](2)
	w.Append(1)

	values := w.Values()
	values[0] = 100

	assert.Equal(t, []int{1}, w.Values())
}
