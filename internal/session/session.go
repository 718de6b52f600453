// Package session implements the per-read aligning session: the
// three-tier promotion hierarchy and the begin_align/add_on_the_fly/
// finish_align/next_read state machine that coordinates a session's
// current, local, and shared cache tiers.
package session

import (
	"go.uber.org/zap"

	"github.com/bmwiedemann/bowtie2/internal/cache"
	"github.com/bmwiedemann/bowtie2/internal/key"
)

// Result is the outcome of BeginAlign.
type Result int

const (
	// Miss means the seed was not found in the current tier (or is not
	// cacheable, in which case no tier is probed); a session is now
	// active and the aligner should drive AddOnTheFly/FinishAlign.
	Miss Result = 0
	// Hit means the seed was already cached; the session was not
	// started and the caller should use the returned QVal directly.
	Hit Result = 1
	// OOM means the cache could not allocate a payload for the seed at
	// all (pool exhaustion on the current tier).
	OOM Result = -1
)

// HitTier identifies which tier satisfied a Query.
type HitTier int

const (
	HitNone HitTier = iota
	HitCurrent
	HitLocal
	HitShared
)

// Session holds the per-read state bracketed by BeginAlign...FinishAlign,
// plus non-owning references to the three tiers it coordinates. local and
// shared may be nil.
type Session struct {
	current *cache.Tier
	local   *cache.Tier
	shared  *cache.Tier

	qk         key.QKey
	qv         *cache.QVal
	qvBuf      cache.QVal
	cacheable  bool
	rangeCount uint32
	eltCount   uint64
	active     bool

	logger *zap.Logger
}

// New constructs a session over the given tiers. current must not be nil;
// local and shared may be nil. logger may be nil, in which case diagnostics
// are discarded.
func New(current, local, shared *cache.Tier, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{current: current, local: local, shared: shared, logger: logger}
}

// Aligning reports whether a session handle is currently live.
func (s *Session) Aligning() bool { return s.active }

// CurNumRanges reports the number of add_on_the_fly calls made since the
// current begin_align started.
func (s *Session) CurNumRanges() uint32 { return s.rangeCount }

// CurNumElts reports the total suffix-array elements accumulated since the
// current begin_align started.
func (s *Session) CurNumElts() uint64 { return s.eltCount }

// CurrentCache exposes the per-read tier for read-only inspection.
func (s *Session) CurrentCache() *cache.Tier { return s.current }

func (s *Session) reset() {
	s.qv = nil
	s.cacheable = false
	s.rangeCount = 0
	s.eltCount = 0
	s.active = false
}

// Query probes current, local, and shared in that order, reporting which
// tier hit (HitNone if all three miss).
func (s *Session) Query(qk key.QKey) (*cache.QVal, HitTier) {
	if qv, ok := s.current.Query(qk, true); ok {
		return qv, HitCurrent
	}
	if s.local != nil {
		if qv, ok := s.local.Query(qk, true); ok {
			return qv, HitLocal
		}
	}
	if s.shared != nil {
		if qv, ok := s.shared.Query(qk, true); ok {
			return qv, HitShared
		}
	}
	return nil, HitNone
}

// QueryCopy probes the same order as Query. On a hit in a non-current tier
// it copies the entry down into current and returns a fresh handle obtained
// by re-querying current; it returns (nil, false) on a miss or on copy
// failure.
func (s *Session) QueryCopy(qk key.QKey) (*cache.QVal, bool) {
	qv, which := s.Query(qk)
	if qv == nil {
		return nil, false
	}
	if which == HitCurrent {
		return qv, true
	}

	var src *cache.Tier
	switch which {
	case HitLocal:
		src = s.local
	case HitShared:
		src = s.shared
	}
	if !s.current.Copy(qk, qv, src, true) {
		return nil, false
	}
	fresh, ok := s.current.Query(qk, true)
	if !ok {
		return nil, false
	}
	return fresh, true
}

// BeginAlign starts a session for seq. On Hit, the returned QVal is the
// cached payload and no session is started. On Miss, the session is active
// and the caller should drive AddOnTheFly/FinishAlign. On OOM, no payload
// could be allocated at all.
func (s *Session) BeginAlign(seq string) (Result, *cache.QVal) {
	s.qk = key.FromSeq(seq)

	if s.qk.Cacheable() {
		if hit, ok := s.current.Query(s.qk, true); ok {
			s.reset()
			return Hit, hit
		}

		qv, added := s.current.Add(s.qk, true)
		if qv == nil {
			return OOM, nil
		}
		s.qv = qv
		s.cacheable = added
	} else {
		s.qvBuf = cache.QVal{}
		s.qv = &s.qvBuf
		s.cacheable = false
	}

	s.qv.Init()
	s.rangeCount, s.eltCount = 0, 0
	s.active = true
	return Miss, nil
}

// AddOnTheFly encodes rfseq as a SAKey (a reference seed, always cacheable
// by construction) and appends it to the current tier's in-progress
// payload. Precondition: a session is active. It reports false on pool
// exhaustion.
func (s *Session) AddOnTheFly(rfseq string, top, bot uint32) bool {
	sak := key.SAFromSeq(rfseq)
	if !sak.Cacheable() {
		s.logger.Error("add_on_the_fly: reference seed is not cacheable", zap.String("seed", rfseq))
		return false
	}

	if !s.current.AddOnTheFly(s.qv, sak, top, bot, true) {
		return false
	}
	s.rangeCount++
	s.eltCount += uint64(bot - top)
	return true
}

// FinishAlign promotes the assembled entry to the nearest available
// across-read tier (local first, else shared), resets the session, and
// returns a copy of the final payload.
func (s *Session) FinishAlign() cache.QVal {
	if s.qv == nil {
		s.qvBuf = cache.QVal{}
		s.qv = &s.qvBuf
	}
	if !s.qv.Valid() {
		s.qv.Init()
	}

	if s.qk.Cacheable() {
		for _, tier := range [...]*cache.Tier{s.local, s.shared} {
			if tier != nil {
				tier.ClearCopy(s.qk, s.qv, s.current, true)
				break
			}
		}
	}

	result := *s.qv
	s.reset()
	return result
}

// NextRead clears the current-read tier and resets session state.
func (s *Session) NextRead() {
	s.current.Clear(true)
	s.reset()
}

// Clear clears every tier that's present (current, and local/shared if
// non-nil).
func (s *Session) Clear() {
	s.current.Clear(true)
	if s.local != nil {
		s.local.Clear(true)
	}
	if s.shared != nil {
		s.shared.Clear(true)
	}
}
