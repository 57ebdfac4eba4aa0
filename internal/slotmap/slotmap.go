// Package slotmap provides the registry storage for open databases: a
// hash map from uint32 slot ids to values, with ids handed out by the map.
// Uses open addressing with linear probing and fibonacci hashing, so
// sequential ids spread evenly.
package slotmap

// Map is an open-addressing map from slot id to V.
// The zero value is ready to use. Map is not safe for concurrent use.
type Map[V any] struct {
	buckets []bucket[V]
	count   int
	mask    uint32
	next    uint32
}

type bucket[V any] struct {
	key   uint32
	value V
	used  bool // Needed because key=0 might be valid
}

// Fibonacci hash constant: 2^32 / golden ratio
const fibHash32 = 2654435769

func (m *Map[V]) hash(key uint32) uint32 {
	return key * fibHash32
}

// Insert stores v under a fresh id and returns the id.
func (m *Map[V]) Insert(v V) uint32 {
	for {
		id := m.next
		m.next++
		if _, ok := m.Get(id); !ok {
			m.Set(id, v)
			return id
		}
	}
}

// Get returns the value for key and whether it was present.
func (m *Map[V]) Get(key uint32) (V, bool) {
	var zero V
	if len(m.buckets) == 0 {
		return zero, false
	}
	idx := m.hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		if !b.used {
			return zero, false
		}
		if b.key == key {
			return b.value, true
		}
		idx = (idx + 1) & m.mask
	}
}

// Set stores a key-value pair.
func (m *Map[V]) Set(key uint32, value V) {
	if len(m.buckets) == 0 {
		m.buckets = make([]bucket[V], 16)
		m.mask = 15
	} else if m.count >= len(m.buckets)*3/4 {
		m.grow()
	}

	idx := m.hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		if !b.used {
			b.key = key
			b.value = value
			b.used = true
			m.count++
			return
		}
		if b.key == key {
			b.value = value
			return
		}
		idx = (idx + 1) & m.mask
	}
}

// Delete removes key. Later entries of the probe chain are shifted back so
// lookups never stop early on the hole.
func (m *Map[V]) Delete(key uint32) bool {
	if len(m.buckets) == 0 {
		return false
	}
	idx := m.hash(key) & m.mask
	for {
		b := &m.buckets[idx]
		if !b.used {
			return false
		}
		if b.key == key {
			break
		}
		idx = (idx + 1) & m.mask
	}

	hole := idx
	for j := (hole + 1) & m.mask; m.buckets[j].used; j = (j + 1) & m.mask {
		home := m.hash(m.buckets[j].key) & m.mask
		// move j into the hole unless its home lies cyclically in (hole, j]
		if (j > hole && (home <= hole || home > j)) || (j < hole && home <= hole && home > j) {
			m.buckets[hole] = m.buckets[j]
			hole = j
		}
	}
	m.buckets[hole] = bucket[V]{}
	m.count--
	return true
}

// grow doubles the hash table size
func (m *Map[V]) grow() {
	oldBuckets := m.buckets
	newSize := len(oldBuckets) * 2
	m.buckets = make([]bucket[V], newSize)
	m.mask = uint32(newSize - 1)
	m.count = 0

	for i := range oldBuckets {
		if oldBuckets[i].used {
			m.Set(oldBuckets[i].key, oldBuckets[i].value)
		}
	}
}

// ForEach calls fn for every entry until fn returns false.
// fn must not modify the map.
func (m *Map[V]) ForEach(fn func(uint32, V) bool) {
	for i := range m.buckets {
		if m.buckets[i].used {
			if !fn(m.buckets[i].key, m.buckets[i].value) {
				return
			}
		}
	}
}

// Values returns a snapshot of all values.
func (m *Map[V]) Values() []V {
	out := make([]V, 0, m.count)
	m.ForEach(func(_ uint32, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Clear removes all entries but keeps the backing array.
func (m *Map[V]) Clear() {
	clear(m.buckets)
	m.count = 0
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return m.count
}
