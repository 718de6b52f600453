package cache

import "github.com/bmwiedemann/bowtie2/internal/key"

// SATuple is a materialized view of one suffix-array entry: its key, the
// BWT top row, and a borrowed slice of offsets into the owning tier's
// SAList. The slice is invalidated the moment the owning tier clears.
type SATuple struct {
	Key  key.SAKey
	Top  uint32
	Offs []uint32
}

// FromSubrange derives a tuple narrowing src to local rows [first, last).
// Precondition: 0 <= first < last <= len(src.Offs).
func FromSubrange(src SATuple, first, last int) SATuple {
	return SATuple{
		Key:  src.Key,
		Top:  src.Top + uint32(first),
		Offs: src.Offs[first:last],
	}
}

// RandSource is the minimal "uniform 32-bit random source" shape
// RandomNarrow needs from its caller. This package does not implement an
// RNG; callers bring their own.
type RandSource interface {
	Uint32() uint32
}

// RandomNarrow subsamples src down to exactly maxRows rows, drawn as one
// contiguous window starting at a uniformly random logical row and wrapping
// once if needed. It returns (nil, false) if the source doesn't have more
// than maxRows rows to begin with.
//
// dst is non-empty whenever RandomNarrow returns true, and holds at most
// len(src)+1 tuples (the wrap can split one source tuple across the end and
// the start of the window).
func RandomNarrow(src []SATuple, rng RandSource, maxRows int) ([]SATuple, bool) {
	if len(src) == 0 {
		return nil, false
	}

	total := 0
	for _, t := range src {
		total += len(t.Offs)
	}
	if total <= maxRows {
		return nil, false
	}

	off := int(rng.Uint32() % uint32(total))

	startTuple, startLocal := 0, 0
	cum := 0
	for i, t := range src {
		if off < cum+len(t.Offs) {
			startTuple = i
			startLocal = off - cum
			break
		}
		cum += len(t.Offs)
	}

	n := len(src)
	dst := make([]SATuple, 0, n+1)
	emitted := 0
	for pass := 0; pass < 2*n && emitted < maxRows; pass++ {
		i := (startTuple + pass) % n
		t := src[i]

		// The window never spans more than one full lap (total > maxRows),
		// so the only tuple ever visited twice is the start tuple: once for
		// its tail [startLocal, len) on pass 0, and once for its head
		// [0, startLocal) when the wrap comes back around to it.
		localStart, localEnd := 0, len(t.Offs)
		switch {
		case pass == 0:
			localStart = startLocal
		case i == startTuple:
			localEnd = startLocal
		}

		avail := localEnd - localStart
		if avail <= 0 {
			continue
		}

		take := avail
		if remaining := maxRows - emitted; take > remaining {
			take = remaining
		}
		dst = append(dst, FromSubrange(t, localStart, localStart+take))
		emitted += take
	}

	return dst, true
}
