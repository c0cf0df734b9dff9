package sortedmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intLess(a, b int) bool { return a < b }

func TestSetGetDelete(t *testing.T) {
	m := New[int, string](intLess)
	m.Set(3, "c")
	m.Set(1, "a")
	m.Set(2, "b")

	v, ok := m.Get(2)
	require.True(t, ok)
	assert.Equal(t, "b", v)

	assert.Equal(t, []int{1, 2, 3}, m.Keys())

	assert.True(t, m.Delete(2))
	assert.False(t, m.Delete(2))
	assert.Equal(t, []int{1, 3}, m.Keys())
}

func TestRangeFrom(t *testing.T) {
	m := New[int, string](intLess)
	for i := 0; i < 10; i++ {
		m.Set(i, "")
	}
	var got []int
	m.RangeFrom(5, func(k int, v string) bool {
		got = append(got, k)
		return true
	})
	assert.Equal(t, []int{5, 6, 7, 8, 9}, got)
}

func TestRangeBetween(t *testing.T) {
	m := New[int, string](intLess)
	for i := 0; i < 10; i++ {
		m.Set(i, "")
	}
	var got []int
	m.RangeBetween(3, true, 6, true, func(k int, v string) bool {
		got = append(got, k)
		return true
	})
	assert.Equal(t, []int{3, 4, 5, 6}, got)
}

func TestRangeEarlyStop(t *testing.T) {
	m := New[int, string](intLess)
	for i := 0; i < 5; i++ {
		m.Set(i, "")
	}
	var got []int
	m.Range(func(k int, v string) bool {
		got = append(got, k)
		return k < 2
	})
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestClone(t *testing.T) {
	m := New[int, string](intLess)
	m.Set(1, "a")
	c := m.Clone()
	c.Set(2, "b")
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, c.Len())
}
