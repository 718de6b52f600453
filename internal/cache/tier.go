// Package cache implements one alignment-cache tier: two ordered maps
// backed by two paged sequences over a shared pool, a monotonic version
// counter, and optional mutex protection for tiers shared across threads.
package cache

import (
	"fmt"
	"sync"

	uatomic "go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bmwiedemann/bowtie2/internal/key"
	"github.com/bmwiedemann/bowtie2/internal/ordmap"
	"github.com/bmwiedemann/bowtie2/internal/pool"
)

// AssertInvariants gates the debug-time consistency checks in
// queryQValLocked and copyLocked. Production callers leave it false; tests that want the
// check set it to true for the duration of the test.
var AssertInvariants = false

// Tier is one cache tier (current, local, or shared). The operations
// Query, QueryEx, QueryQVal, Add, AddOnTheFly, Copy, ClearCopy and Clear
// take a getLock hint: when true and the tier is shared, the method
// acquires the tier mutex for its own duration; when false, the caller must
// already hold it. The size accessors, Empty and ValidateInvariants take no
// hint and never acquire the mutex. This lets a session acquire the lock once across a
// compound operation such as clear-then-retry in ClearCopy.
type Tier struct {
	mu     sync.Mutex
	shared bool

	version uatomic.Uint64

	pool   *pool.Pool
	qMap   *ordmap.Map[key.QKey, *QVal]
	saMap  *ordmap.Map[key.SAKey, *SAVal]
	qList  *pool.PagedList[key.SAKey]
	saList *pool.PagedList[uint32]

	logger *zap.Logger
}

// NewTier constructs a tier with the given pool byte budget. shared marks
// whether the tier's mutex is actually engaged by the getLock hint; logger
// may be nil, in which case diagnostics are discarded.
func NewTier(budgetBytes int, shared bool, logger *zap.Logger) *Tier {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := pool.NewPool(budgetBytes)
	return &Tier{
		shared: shared,
		pool:   p,
		qMap:   ordmap.New[key.QKey, *QVal](),
		saMap:  ordmap.New[key.SAKey, *SAVal](),
		qList:  pool.NewPagedList[key.SAKey](p),
		saList: pool.NewPagedList[uint32](p),
		logger: logger,
	}
}

func (t *Tier) withLock(getLock bool, fn func()) {
	if getLock && t.shared {
		t.mu.Lock()
		defer t.mu.Unlock()
	}
	fn()
}

// Shared reports whether this tier engages its mutex on getLock=true calls.
func (t *Tier) Shared() bool { return t.shared }

// Version returns the tier's current version. Safe to call without holding
// the tier's lock; it only ever increases, on clear().
func (t *Tier) Version() uint64 { return t.version.Load() }

// QNumKeys returns the number of entries in the query map.
func (t *Tier) QNumKeys() int { return t.qMap.Len() }

// SANumKeys returns the number of entries in the suffix-array map.
func (t *Tier) SANumKeys() int { return t.saMap.Len() }

// QSize returns the length of the query-key paged list.
func (t *Tier) QSize() int { return t.qList.Len() }

// SASize returns the length of the suffix-array offset paged list.
func (t *Tier) SASize() int { return t.saList.Len() }

// Pool exposes the tier's backing pool for diagnostics and tests.
func (t *Tier) Pool() *pool.Pool { return t.pool }

// Empty reports whether every one of the tier's four containers is empty.
func (t *Tier) Empty() bool {
	return t.qMap.Len() == 0 && t.saMap.Len() == 0 && t.qList.Len() == 0 && t.saList.Len() == 0
}

// Query looks up qk in the query map. O(log n).
func (t *Tier) Query(qk key.QKey, getLock bool) (*QVal, bool) {
	var qv *QVal
	var ok bool
	t.withLock(getLock, func() {
		qv, ok = t.qMap.Get(qk)
	})
	return qv, ok
}

// QueryEx looks up qk and, on a hit, appends its materialized SATuples to
// out.
func (t *Tier) QueryEx(qk key.QKey, out *[]SATuple, getLock bool) bool {
	hit := false
	t.withLock(getLock, func() {
		qv, ok := t.qMap.Get(qk)
		if !ok {
			return
		}
		t.queryQValLocked(qv, out)
		hit = true
	})
	return hit
}

// QueryQVal materializes the SATuples referenced by qv into out.
func (t *Tier) QueryQVal(qv *QVal, out *[]SATuple, getLock bool) {
	t.withLock(getLock, func() {
		t.queryQValLocked(qv, out)
	})
}

func (t *Tier) queryQValLocked(qv *QVal, out *[]SATuple) {
	var prev *SATuple
	for i := qv.Offset; i < qv.Offset+int(qv.RangeCount); i++ {
		sak := t.qList.Get(i)
		sav, ok := t.saMap.Get(sak)
		if !ok {
			// Invariant 1: every SAKey referenced by a QVal window has an
			// entry in SAMap. Skip defensively outside debug builds.
			if AssertInvariants {
				panic(fmt.Sprintf("cache: QList[%d]=%v has no SAMap entry", i, sak))
			}
			continue
		}
		tup := SATuple{Key: sak, Top: sav.Top, Offs: t.saList.Slice(sav.Offset, int(sav.Len))}
		if AssertInvariants && prev != nil {
			if prev.Key == tup.Key && prev.Top == tup.Top && sameOffs(prev.Offs, tup.Offs) {
				panic("cache: consecutive duplicate SATuple in query_qval output")
			}
		}
		*out = append(*out, tup)
		prev = &(*out)[len(*out)-1]
	}
}

func sameOffs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Add inserts qk into the query map if absent. It returns a handle to the
// (possibly pre-existing) payload and whether a new node was created. A nil
// handle signals pool exhaustion.
func (t *Tier) Add(qk key.QKey, getLock bool) (qv *QVal, added bool) {
	t.withLock(getLock, func() {
		if existing, ok := t.qMap.Get(qk); ok {
			qv = existing
			return
		}
		if !t.pool.Reserve(pool.MapNodeCost) {
			return
		}
		fresh := &QVal{}
		t.qMap.Insert(qk, fresh)
		qv, added = fresh, true
	})
	return qv, added
}

// AddOnTheFly appends sak to the query's window in QList, inserting a fresh
// SAVal for sak (with bot-top reserved placeholder offsets) the first time
// it's seen, then bumps qv's counters. It reports false on pool exhaustion;
// on failure the tier may be left with orphaned QList/SAList appends — the
// caller is expected to recover via clear, not by patching up state.
func (t *Tier) AddOnTheFly(qv *QVal, sak key.SAKey, top, bot uint32, getLock bool) bool {
	ok := false
	t.withLock(getLock, func() {
		idx, appended := t.qList.Append(sak)
		if !appended {
			return
		}
		if qv.RangeCount == 0 {
			qv.Offset = idx
		}

		if _, exists := t.saMap.Get(sak); !exists {
			if !t.pool.Reserve(pool.MapNodeCost) {
				return
			}
			rangeLen := bot - top
			saOffset := t.saList.Len()
			for i := uint32(0); i < rangeLen; i++ {
				if _, appended := t.saList.Append(0); !appended {
					return
				}
			}
			t.saMap.Insert(sak, &SAVal{Top: top, Offset: saOffset, Len: rangeLen})
		}

		qv.AddRange(uint64(bot - top))
		ok = true
	})
	return ok
}

// Copy deep-clones the query entry (qk, qv) from src into self. If qk is
// already present in self, it returns true without copying anything
// (first-wins duplicate policy). It reports false on pool exhaustion.
func (t *Tier) Copy(qk key.QKey, qv *QVal, src *Tier, getLock bool) bool {
	ok := false
	t.withLock(getLock, func() {
		ok = t.copyLocked(qk, qv, src)
	})
	return ok
}

func (t *Tier) copyLocked(qk key.QKey, qv *QVal, src *Tier) bool {
	if _, exists := t.qMap.Get(qk); exists {
		return true
	}
	if !t.pool.Reserve(pool.MapNodeCost) {
		return false
	}

	newQV := &QVal{Offset: t.qList.Len()}
	for i := qv.Offset; i < qv.Offset+int(qv.RangeCount); i++ {
		sak := src.qList.Get(i)
		if _, appended := t.qList.Append(sak); !appended {
			return false
		}

		sav, exists := t.saMap.Get(sak)
		if !exists {
			srcSAV, ok := src.saMap.Get(sak)
			if !ok {
				if AssertInvariants {
					panic("cache: copy source missing SAMap entry referenced by QList")
				}
				continue
			}
			if !t.pool.Reserve(pool.MapNodeCost) {
				return false
			}
			newOffset := t.saList.Len()
			for j := srcSAV.Offset; j < srcSAV.Offset+int(srcSAV.Len); j++ {
				if _, appended := t.saList.Append(src.saList.Get(j)); !appended {
					return false
				}
			}
			sav = &SAVal{Top: srcSAV.Top, Offset: newOffset, Len: srcSAV.Len}
			t.saMap.Insert(sak, sav)
		}

		newQV.AddRange(uint64(sav.Len))
	}
	t.qMap.Insert(qk, newQV)
	return true
}

// ClearCopy attempts Copy; on failure it clears the tier and retries once,
// logging a warning if even the freshly emptied tier can't fit the entry.
// It returns true iff a clear happened.
func (t *Tier) ClearCopy(qk key.QKey, qv *QVal, src *Tier, getLock bool) bool {
	cleared := false
	t.withLock(getLock, func() {
		if t.copyLocked(qk, qv, src) {
			return
		}
		t.clearLocked()
		cleared = true
		if !t.copyLocked(qk, qv, src) {
			t.logger.Warn("cache entry does not fit in an empty tier",
				zap.Int("range_count", int(qv.RangeCount)),
				zap.Uint64("elt_count", qv.EltCount),
			)
		}
	})
	return cleared
}

func (t *Tier) clearLocked() {
	t.qMap.Reset()
	t.saMap.Reset()
	t.qList.Reset()
	t.saList.Reset()
	t.pool.Reset()
	t.version.Inc()
}

// Clear resets all four containers and the pool, bumping version. Every
// outstanding QVal/SAVal/SATuple handle into the tier is logically
// invalidated by this call.
func (t *Tier) Clear(getLock bool) {
	t.withLock(getLock, func() {
		t.clearLocked()
	})
}

// ValidateInvariants sweeps the tier's structural invariants (1-4) and
// aggregates every violation found via multierr, rather than stopping at
// the first one. Not called on any production path; meant for property
// tests.
func (t *Tier) ValidateInvariants() error {
	var err error

	for _, qk := range t.qMap.Keys() {
		qv, _ := t.qMap.Get(qk)
		if qv.Offset < 0 || qv.Offset+int(qv.RangeCount) > t.qList.Len() {
			err = multierr.Append(err, fmt.Errorf("invariant 1: QVal window [%d,%d) out of bounds of QList(len=%d)",
				qv.Offset, qv.Offset+int(qv.RangeCount), t.qList.Len()))
			continue
		}
		var lastSAK key.SAKey
		haveLast := false
		for i := qv.Offset; i < qv.Offset+int(qv.RangeCount); i++ {
			sak := t.qList.Get(i)
			if haveLast && sak.Compare(lastSAK) == 0 {
				err = multierr.Append(err, fmt.Errorf("invariant 2: consecutive duplicate SAKey at QList[%d]", i))
			}
			if _, ok := t.saMap.Get(sak); !ok {
				err = multierr.Append(err, fmt.Errorf("invariant 1: QList[%d]=%v has no SAMap entry", i, sak))
			}
			lastSAK, haveLast = sak, true
		}
	}

	for _, sak := range t.saMap.Keys() {
		sav, _ := t.saMap.Get(sak)
		if sav.Offset < 0 || sav.Offset+int(sav.Len) > t.saList.Len() {
			err = multierr.Append(err, fmt.Errorf("invariant 3: SAVal window [%d,%d) out of bounds of SAList(len=%d)",
				sav.Offset, sav.Offset+int(sav.Len), t.saList.Len()))
		}
	}

	if t.Empty() != (t.qMap.Len() == 0 && t.saMap.Len() == 0 && t.qList.Len() == 0 && t.saList.Len() == 0) {
		err = multierr.Append(err, fmt.Errorf("invariant 4: empty() disagrees with container emptiness"))
	}

	return err
}
