package session

import (
	"testing"

	"github.com/bmwiedemann/bowtie2/internal/cache"
	"github.com/bmwiedemann/bowtie2/internal/key"
)

func newTier() *cache.Tier { return cache.NewTier(1<<20, false, nil) }

func TestBeginAlignMissThenHit(t *testing.T) {
	s := New(newTier(), nil, nil, nil)

	res, qv := s.BeginAlign("ACGT")
	if res != Miss || qv != nil {
		t.Fatalf("expected Miss on first begin_align: res=%v qv=%v", res, qv)
	}
	if !s.Aligning() {
		t.Fatalf("expected active session after Miss")
	}

	if !s.AddOnTheFly("AAAA", 10, 12) {
		t.Fatalf("add_on_the_fly(AAAA) failed")
	}
	if !s.AddOnTheFly("CCCC", 100, 103) {
		t.Fatalf("add_on_the_fly(CCCC) failed")
	}

	final := s.FinishAlign()
	if final.Offset != 0 || final.RangeCount != 2 || final.EltCount != 5 {
		t.Fatalf("unexpected finish_align result: %+v", final)
	}
	if s.Aligning() {
		t.Fatalf("expected session inactive after finish_align")
	}

	res2, qv2 := s.BeginAlign("ACGT")
	if res2 != Hit {
		t.Fatalf("expected Hit on repeat begin_align: res=%v", res2)
	}
	if qv2 == nil || qv2.RangeCount != 2 || qv2.EltCount != 5 {
		t.Fatalf("unexpected cached payload on hit: %+v", qv2)
	}
}

func TestPromotionToLocalThenQueryCopy(t *testing.T) {
	local := newTier()
	s := New(newTier(), local, nil, nil)

	if res, _ := s.BeginAlign("ACGT"); res != Miss {
		t.Fatalf("expected Miss: got=%v", res)
	}
	s.AddOnTheFly("AAAA", 10, 12)
	s.AddOnTheFly("CCCC", 100, 103)
	s.FinishAlign()

	s.NextRead()

	// query_copy is a standalone probe, tried before begin_align: it must
	// find the entry in local and materialize it into the now-empty current
	// tier without the caller having reserved a slot there first.
	qv, ok := s.QueryCopy(key.FromSeq("ACGT"))
	if !ok || qv == nil {
		t.Fatalf("expected query_copy to materialize the promoted entry into current")
	}
	if qv.RangeCount != 2 || qv.EltCount != 5 {
		t.Fatalf("unexpected query_copy payload: %+v", qv)
	}

	res2, qv2 := s.BeginAlign("ACGT")
	if res2 != Hit {
		t.Fatalf("expected Hit after query_copy materialized the entry: got=%v", res2)
	}
	if qv2.RangeCount != 2 {
		t.Fatalf("unexpected hit payload: %+v", qv2)
	}
}

func TestPromotionOrderPrefersLocalOverShared(t *testing.T) {
	local := newTier()
	shared := cache.NewTier(1<<20, true, nil)
	s := New(newTier(), local, shared, nil)

	s.BeginAlign("ACGT")
	s.AddOnTheFly("AAAA", 0, 1)
	s.FinishAlign()

	if _, ok := local.Query(key.FromSeq("ACGT"), true); !ok {
		t.Fatalf("expected promotion to land in local")
	}
	if _, ok := shared.Query(key.FromSeq("ACGT"), true); ok {
		t.Fatalf("expected shared tier untouched when local is present")
	}
}

func TestBeginAlignReportsOOMOnExhaustedPool(t *testing.T) {
	// A budget too small to hold even one query-map node forces Add to
	// fail on the very first begin_align.
	tiny := cache.NewTier(1, false, nil)
	s := New(tiny, nil, nil, nil)

	res, qv := s.BeginAlign("ACGT")
	if res != OOM || qv != nil {
		t.Fatalf("expected OOM on exhausted pool: res=%v qv=%v", res, qv)
	}
	if s.Aligning() {
		t.Fatalf("expected no active session after OOM")
	}
}

func TestClearResetsAllPresentTiers(t *testing.T) {
	current, local, shared := newTier(), newTier(), cache.NewTier(1<<20, true, nil)
	s := New(current, local, shared, nil)

	s.BeginAlign("ACGT")
	s.AddOnTheFly("AAAA", 0, 1)
	s.FinishAlign()

	if local.Empty() {
		t.Fatalf("expected local populated by promotion before Clear")
	}

	s.Clear()
	if !current.Empty() || !local.Empty() || !shared.Empty() {
		t.Fatalf("expected all tiers empty after Clear")
	}
}

func TestUncacheableSeedRoutesThroughBuffer(t *testing.T) {
	current := newTier()
	s := New(current, nil, nil, nil)

	res, qv := s.BeginAlign("ACNG") // contains an ambiguous base
	if res != Miss || qv != nil {
		t.Fatalf("expected Miss for uncacheable seed: res=%v", res)
	}
	if current.QNumKeys() != 0 {
		t.Fatalf("uncacheable seed must not be indexed in the tier's query map")
	}

	if !s.AddOnTheFly("AAAA", 0, 3) {
		t.Fatalf("add_on_the_fly should still accumulate into the buffer")
	}
	final := s.FinishAlign()
	if final.RangeCount != 1 || final.EltCount != 3 {
		t.Fatalf("unexpected buffered payload: %+v", final)
	}
	if current.QNumKeys() != 0 {
		t.Fatalf("finish_align must not promote an uncacheable key")
	}
}
