// Package sortedmap implements a generic sorted associative container:
// ordered iteration, point lookup, and a forward range iterator from a
// lower bound. The spec (§4.3) requires no particular balance scheme, only
// these operations; this implementation favors a compact sorted-slice with
// binary search, which keeps lookup and range-from at O(log n) and is more
// than adequate at the save-point/path-tree sizes a single document tree
// produces. Insert/delete are O(n) (slice shift) rather than O(log n) — a
// deliberate simplicity-over-asymptotics trade-off recorded in DESIGN.md.
package sortedmap

import "sort"

// Map is a sorted associative container from K to V, ordered by a
// caller-supplied Less function.
type Map[K any, V any] struct {
	less   func(a, b K) bool
	keys   []K
	values []V
}

// New creates an empty Map ordered by less.
func New[K any, V any](less func(a, b K) bool) *Map[K, V] {
	return &Map[K, V]{less: less}
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int { return len(m.keys) }

// search returns the index of the first key >= k (lower bound).
func (m *Map[K, V]) search(k K) int {
	return sort.Search(len(m.keys), func(i int) bool {
		return !m.less(m.keys[i], k)
	})
}

func (m *Map[K, V]) indexEqual(k K) (int, bool) {
	i := m.search(k)
	if i < len(m.keys) && !m.less(k, m.keys[i]) {
		return i, true
	}
	return i, false
}

// Get returns the value at k, if present.
func (m *Map[K, V]) Get(k K) (V, bool) {
	i, ok := m.indexEqual(k)
	if !ok {
		var zero V
		return zero, false
	}
	return m.values[i], true
}

// Set inserts or overwrites the value at k.
func (m *Map[K, V]) Set(k K, v V) {
	i, ok := m.indexEqual(k)
	if ok {
		m.values[i] = v
		return
	}
	m.keys = append(m.keys, k)
	copy(m.keys[i+1:], m.keys[i:len(m.keys)-1])
	m.keys[i] = k

	var zero V
	m.values = append(m.values, zero)
	copy(m.values[i+1:], m.values[i:len(m.values)-1])
	m.values[i] = v
}

// Delete removes the entry at k, if present, returning whether it existed.
func (m *Map[K, V]) Delete(k K) bool {
	i, ok := m.indexEqual(k)
	if !ok {
		return false
	}
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.values = append(m.values[:i], m.values[i+1:]...)
	return true
}

// Range iterates all entries in ascending key order. Iteration stops early
// if yield returns false.
func (m *Map[K, V]) Range(yield func(k K, v V) bool) {
	for i := range m.keys {
		if !yield(m.keys[i], m.values[i]) {
			return
		}
	}
}

// RangeFrom iterates entries with key >= lo in ascending order.
func (m *Map[K, V]) RangeFrom(lo K, yield func(k K, v V) bool) {
	start := m.search(lo)
	for i := start; i < len(m.keys); i++ {
		if !yield(m.keys[i], m.values[i]) {
			return
		}
	}
}

// RangeBetween iterates entries with lo <= key <= hi in ascending order.
// Either bound may be skipped by passing hasLo/hasHi as false.
func (m *Map[K, V]) RangeBetween(lo K, hasLo bool, hi K, hasHi bool, yield func(k K, v V) bool) {
	start := 0
	if hasLo {
		start = m.search(lo)
	}
	for i := start; i < len(m.keys); i++ {
		if hasHi && m.less(hi, m.keys[i]) {
			return
		}
		if !yield(m.keys[i], m.values[i]) {
			return
		}
	}
}

// Keys returns a copy of all keys in ascending order.
func (m *Map[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// Clone returns a shallow copy of the map (values are not deep-copied).
func (m *Map[K, V]) Clone() *Map[K, V] {
	out := &Map[K, V]{less: m.less}
	out.keys = append([]K(nil), m.keys...)
	out.values = append([]V(nil), m.values...)
	return out
}
