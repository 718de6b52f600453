// Package ordmap implements the "ordered map" host primitive the cache
// relies on for QMap/SAMap (alongside the red-black tree and paged-list
// containers it's normally paired with). There is no importable
// ordered-map library anywhere in the retrieved reference pack, so this is
// a minimal sorted-slice-backed stand-in: O(log n) lookup via binary
// search, O(n) insert. Good enough for the tier sizes this cache targets,
// and it keeps the index-not-pointer discipline the rest of the cache
// follows.
package ordmap

// Ordered is the comparison contract keys must satisfy: three-way compare
// against another value of the same type, negative/zero/positive for
// less/equal/greater.
type Ordered[T any] interface {
	Compare(other T) int
}

type entry[K Ordered[K], V any] struct {
	key K
	val V
}

// Map is a sorted-slice ordered map from K to V.
type Map[K Ordered[K], V any] struct {
	entries []entry[K, V]
}

// New constructs an empty ordered map.
func New[K Ordered[K], V any]() *Map[K, V] {
	return &Map[K, V]{}
}

func (m *Map[K, V]) find(k K) (int, bool) {
	lo, hi := 0, len(m.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		switch c := m.entries[mid].key.Compare(k); {
		case c == 0:
			return mid, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// Get returns the value stored for k, if any.
func (m *Map[K, V]) Get(k K) (V, bool) {
	i, ok := m.find(k)
	if !ok {
		var zero V
		return zero, false
	}
	return m.entries[i].val, true
}

// Insert adds k -> v. The caller must already know k is absent (Add-style
// callers check with Get first); inserting a duplicate key overwrites
// nothing and instead leaves the map with two diverging entries for k, so
// this is intentionally not idempotent.
func (m *Map[K, V]) Insert(k K, v V) {
	i, _ := m.find(k)
	m.entries = append(m.entries, entry[K, V]{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry[K, V]{key: k, val: v}
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int { return len(m.entries) }

// Reset drops every entry.
func (m *Map[K, V]) Reset() { m.entries = nil }

// Keys returns the stored keys in ascending order. The returned slice
// aliases no internal state held by Map and is safe to retain.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.key
	}
	return keys
}
