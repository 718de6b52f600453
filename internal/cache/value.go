package cache

// Invalid is the sentinel range_count/len (2^32 - 1) marking an invalid
// QVal or SAVal.
const Invalid = ^uint32(0)

// QVal is the per-query payload: a window into the owning tier's QList plus
// the running element count across every SAVal that window references.
type QVal struct {
	Offset     int
	RangeCount uint32
	EltCount   uint64
}

// Init resets v to the empty, valid zero value.
func (v *QVal) Init() {
	v.Offset = 0
	v.RangeCount = 0
	v.EltCount = 0
}

// Empty reports whether v references no ranges.
func (v QVal) Empty() bool { return v.RangeCount == 0 }

// Valid reports whether v does not carry the invalid sentinel.
func (v QVal) Valid() bool { return v.RangeCount != Invalid }

// NumRanges returns the number of SAKeys referenced by v.
func (v QVal) NumRanges() uint32 { return v.RangeCount }

// NumElts returns the sum of suffix-array range sizes across every SAVal v
// references.
func (v QVal) NumElts() uint64 { return v.EltCount }

// AddRange records one more referenced SAKey contributing deltaElts
// elements.
func (v *QVal) AddRange(deltaElts uint64) {
	v.RangeCount++
	v.EltCount += deltaElts
}

// SAVal is the per-reference-seed payload: the BWT top row plus a window
// into the owning tier's SAList holding the range's offsets.
type SAVal struct {
	Top    uint32
	Offset int
	Len    uint32
}

// Valid reports whether v does not carry the invalid sentinel.
func (v SAVal) Valid() bool { return v.Len != Invalid }
