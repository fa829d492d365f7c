package slotmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAssignsSequentialSlots(t *testing.T) {
	m := New[string]()

	assert.Equal(t, 0, m.Insert("a"))
	assert.Equal(t, 1, m.Insert("b"))
	assert.Equal(t, 2, m.Insert("c"))
	assert.Equal(t, 3, m.Len())

	v, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestRemoveFreesSlotForReuse(t *testing.T) {
	m := New[string]()
	m.Insert("a")
	m.Insert("b")
	m.Insert("c")

	v, ok := m.Remove(1)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 2, m.Len())
	assert.False(t, m.Contains(1))

	// Reclaimed slot is reused before growing
	assert.Equal(t, 1, m.Insert("d"))
	assert.Equal(t, 3, m.Insert("e"))
}

func TestFreeListIsLIFO(t *testing.T) {
	m := New[int]()
	for i := 0; i < 5; i++ {
		m.Insert(i)
	}

	m.Remove(0)
	m.Remove(3)

	assert.Equal(t, 3, m.Insert(10))
	assert.Equal(t, 0, m.Insert(11))
}

func TestRemoveInvalidSlot(t *testing.T) {
	m := New[int]()
	m.Insert(1)

	_, ok := m.Remove(-1)
	assert.False(t, ok)
	_, ok = m.Remove(7)
	assert.False(t, ok)

	_, ok = m.Remove(0)
	assert.True(t, ok)
	// Double removal must not push the slot twice
	_, ok = m.Remove(0)
	assert.False(t, ok)

	assert.Equal(t, 0, m.Insert(2))
	assert.Equal(t, 1, m.Insert(3))
}

func TestValuesSkipsEmptySlots(t *testing.T) {
	var m Map[string]
	m.Insert("a")
	m.Insert("b")
	m.Insert("c")
	m.Remove(1)

	assert.Equal(t, []string{"a", "c"}, m.Values())

	var slots []int
	m.Each(func(slot int, _ string) { slots = append(slots, slot) })
	assert.Equal(t, []int{0, 2}, slots)
}
