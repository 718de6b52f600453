package pool

import "unsafe"

// MapNodeCost is the pool charge for a single ordered-map entry (QMap/SAMap
// node). Neither QMap nor SAMap is itself paged, but the pool is the single
// point of memory truth for all four of a tier's containers, so every new
// map entry is charged against the same budget the paged lists draw from.
const MapNodeCost = 48

// PagedList is an append-only sequence of T, growing in PageSize-aligned
// chunks drawn from a shared Pool. Indices into a PagedList are stable
// handles until the owning tier's Reset/clear.
type PagedList[T any] struct {
	pool     *Pool
	perPage  int
	elemSize int
	data     []T
}

// NewPagedList constructs a paged list over p. Elements per page is derived
// from PageSize and the element's in-memory size, with a floor of one
// element per page for oversized T.
func NewPagedList[T any](p *Pool) *PagedList[T] {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	perPage := PageSize / elemSize
	if perPage < 1 {
		perPage = 1
	}
	return &PagedList[T]{pool: p, perPage: perPage, elemSize: elemSize}
}

// Len returns the number of elements appended since the last Reset.
func (l *PagedList[T]) Len() int { return len(l.data) }

// Get returns the element at index i.
func (l *PagedList[T]) Get(i int) T { return l.data[i] }

// Set overwrites the element at index i. Used by the aligner to fill in
// SAList offsets the cache reserved on its behalf.
func (l *PagedList[T]) Set(i int, v T) { l.data[i] = v }

// Slice returns a borrowed view over [start, start+length). The slice
// aliases the list's backing storage and is invalidated by Reset.
func (l *PagedList[T]) Slice(start, length int) []T {
	return l.data[start : start+length]
}

func (l *PagedList[T]) growIfNeeded() bool {
	if len(l.data) < cap(l.data) {
		return true
	}
	if l.pool != nil && !l.pool.Reserve(l.perPage*l.elemSize) {
		return false
	}
	grown := make([]T, len(l.data), cap(l.data)+l.perPage)
	copy(grown, l.data)
	l.data = grown
	return true
}

// Append adds v to the end of the list, growing from the pool if the
// current page is full. It reports false, leaving the list unchanged, if
// the pool cannot fund the next page.
func (l *PagedList[T]) Append(v T) (int, bool) {
	if !l.growIfNeeded() {
		return 0, false
	}
	idx := len(l.data)
	l.data = append(l.data, v)
	return idx, true
}

// Reset drops every element. Pool charges are released separately via the
// shared Pool's own Reset.
func (l *PagedList[T]) Reset() {
	l.data = nil
}
