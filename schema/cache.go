package schema

import (
	"sync/atomic"
	"time"

	"github.com/Velocidex/ordereddict"
)

// cacheEntry is one cached ClassDef at a particular level, mirroring the
// teacher's pattern of storing an exemplar value alongside bookkeeping
// (see types/scope.go's Stats for the atomic-counter idiom this package's
// CacheStats reuses).
type cacheEntry struct {
	class    *ClassDef
	err      error // a per-class compile error, re-thrown to every waiter (spec §4.2)
	expires  time.Time
	injected bool // explicit inject_class entries never expire (spec §4.2)
}

func (e *cacheEntry) expired(now time.Time) bool {
	if e.injected {
		return false
	}
	return now.After(e.expires)
}

// CacheStats snapshots the retriever's cache counters, in the same shape
// as the teacher's types.Stats.Snapshot() (types/scope.go): atomic
// counters rendered into an ordereddict.Dict so callers get stable field
// order when printing or serializing.
type CacheStats struct {
	hits            uint64
	misses          uint64
	negativeHits    uint64
	negativeInserts uint64
	batchesFired    uint64
}

func (s *CacheStats) incHit()            { atomic.AddUint64(&s.hits, 1) }
func (s *CacheStats) incMiss()           { atomic.AddUint64(&s.misses, 1) }
func (s *CacheStats) incNegativeHit()    { atomic.AddUint64(&s.negativeHits, 1) }
func (s *CacheStats) incNegativeInsert() { atomic.AddUint64(&s.negativeInserts, 1) }
func (s *CacheStats) incBatchFired()     { atomic.AddUint64(&s.batchesFired, 1) }

// Snapshot renders the current counters.
func (s *CacheStats) Snapshot() *ordereddict.Dict {
	return ordereddict.NewDict().
		Set("Hits", atomic.LoadUint64(&s.hits)).
		Set("Misses", atomic.LoadUint64(&s.misses)).
		Set("NegativeHits", atomic.LoadUint64(&s.negativeHits)).
		Set("NegativeInserts", atomic.LoadUint64(&s.negativeInserts)).
		Set("BatchesFired", atomic.LoadUint64(&s.batchesFired))
}
