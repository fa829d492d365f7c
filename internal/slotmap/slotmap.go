// Package slotmap provides a free-list backed container that hands out small,
// stable integer slots for inserted values.
//
// Insert and Remove are O(1); iteration is proportional to the number of
// slots ever allocated. A slot is only meaningful while its value is
// present: once removed it goes on the free list and the next Insert
// reuses the most recently freed slot.
package slotmap

type entry[T any] struct {
	value    T
	occupied bool
}

// Map is a slot map. The zero value is ready to use. It is not safe for
// concurrent use; callers provide their own locking.
type Map[T any] struct {
	entries []entry[T]
	free    []int // LIFO
	n       int
}

// New returns an empty Map.
func New[T any]() *Map[T] {
	return &Map[T]{}
}

// Insert stores v and returns the slot it was assigned.
func (m *Map[T]) Insert(v T) int {
	m.n++
	if last := len(m.free) - 1; last >= 0 {
		slot := m.free[last]
		m.free = m.free[:last]
		m.entries[slot] = entry[T]{value: v, occupied: true}
		return slot
	}
	m.entries = append(m.entries, entry[T]{value: v, occupied: true})
	return len(m.entries) - 1
}

// Remove evicts the value at slot. ok is false if the slot is empty or out of range.
func (m *Map[T]) Remove(slot int) (v T, ok bool) {
	if !m.Contains(slot) {
		return v, false
	}
	v = m.entries[slot].value
	m.entries[slot] = entry[T]{}
	m.free = append(m.free, slot)
	m.n--
	return v, true
}

// Get returns the value at slot.
func (m *Map[T]) Get(slot int) (v T, ok bool) {
	if !m.Contains(slot) {
		return v, false
	}
	return m.entries[slot].value, true
}

// Contains reports whether slot currently holds a value.
func (m *Map[T]) Contains(slot int) bool {
	return slot >= 0 && slot < len(m.entries) && m.entries[slot].occupied
}

// Len returns the number of stored values.
func (m *Map[T]) Len() int {
	return m.n
}

// Each calls fn for every occupied slot in ascending slot order.
func (m *Map[T]) Each(fn func(slot int, v T)) {
	for i, e := range m.entries {
		if e.occupied {
			fn(i, e.value)
		}
	}
}

// Values returns a copy of the stored values in slot order.
func (m *Map[T]) Values() []T {
	out := make([]T, 0, m.n)
	m.Each(func(_ int, v T) {
		out = append(out, v)
	})
	return out
}
