package pattern

import (
	"errors"
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/lippycat/svcid/internal/logging"
)

// AnyPosition means a registration matches anywhere in the payload, not just
// at a fixed offset (spec §4.1: "position < 0 means anywhere").
const AnyPosition = -1

// ErrNotPrepared is returned by FindAll when Prepare has never been called.
var ErrNotPrepared = errors.New("pattern index: not prepared")

// Result is one aggregated hit produced by FindAll: every registration for
// the same owner collapses into a single Result with HitCount incremented
// and PatternSize pinned to the first-seen pattern's size (spec §4.1).
type Result[D comparable] struct {
	Owner       D
	PatternSize int
	HitCount    int
}

type registration[D comparable] struct {
	owner    D
	bytes    []byte
	position int
}

// Index is a prepared multi-pattern matcher over registrations owned by
// some detector-identifying type D (normally *appid.Detector). Two
// instances exist in the running system, one for TCP payloads and one for
// UDP (spec §2 item 1); which is which is a matter of construction, not of
// this type.
type Index[D comparable] struct {
	mu            sync.RWMutex
	registrations []registration[D]
	prepared      bool

	automaton *automaton
	owners    []D   // distinct owners, in first-registration order
	ownerSlot map[D]int

	// scan-scratch, reused across FindAll calls to avoid per-scan
	// allocation; safe because a single Index is only ever touched by one
	// worker's thread-local registry copy (spec §5).
	seen      *bitset.BitSet
	slotOf    []int // slot -> index into the results scratch, valid iff seen.Test(slot)
	scratch   []Result[D]
}

// New creates an empty, unprepared Index.
func New[D comparable]() *Index[D] {
	return &Index[D]{ownerSlot: make(map[D]int)}
}

// Register adds a pattern owned by owner. position == AnyPosition means the
// pattern may occur anywhere in the payload; position >= 0 requires the
// match to start at exactly that byte offset. Calling Register after
// Prepare invalidates the previous build; Prepare must be called again
// before the next FindAll (spec §4.1).
func (idx *Index[D]) Register(owner D, patternBytes []byte, position int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cp := make([]byte, len(patternBytes))
	copy(cp, patternBytes)
	idx.registrations = append(idx.registrations, registration[D]{owner: owner, bytes: cp, position: position})
	idx.prepared = false
}

// Prepare finalizes the index for querying. It must be called exactly once
// before the first FindAll, and again after any further Register calls.
func (idx *Index[D]) Prepare() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	raw := make([]rawPattern, len(idx.registrations))
	idx.owners = idx.owners[:0]
	idx.ownerSlot = make(map[D]int)

	for i, reg := range idx.registrations {
		raw[i] = rawPattern{bytes: reg.bytes}
		if _, ok := idx.ownerSlot[reg.owner]; !ok {
			idx.ownerSlot[reg.owner] = len(idx.owners)
			idx.owners = append(idx.owners, reg.owner)
		}
	}

	idx.automaton = buildAutomaton(raw)
	idx.seen = bitset.New(uint(len(idx.owners)))
	idx.slotOf = make([]int, len(idx.owners))
	idx.scratch = make([]Result[D], 0, len(idx.owners))
	idx.prepared = true

	logging.Debug("pattern index prepared", "registrations", len(idx.registrations), "owners", len(idx.owners))
	return nil
}

// FindAll scans payload and returns aggregated results sorted by precedence:
// hit_count descending, then pattern_size descending, ties broken stably
// (spec §4.1). FindAll has no allocation-failure path of its own: the Go
// runtime offers no catchable allocation failure, so a scan either
// completes or the process panics. FindAll does not cap the length of the
// payload it scans.
func (idx *Index[D]) FindAll(payload []byte) ([]Result[D], error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.prepared {
		return nil, ErrNotPrepared
	}
	if idx.automaton == nil || len(idx.owners) == 0 {
		return nil, nil
	}

	idx.seen.ClearAll()
	results := idx.scratch[:0]

	for _, m := range idx.automaton.match(payload) {
		reg := idx.registrations[m.patternIdx]
		start := m.end - len(reg.bytes)
		if reg.position != AnyPosition && start != reg.position {
			continue
		}

		slot := idx.ownerSlot[reg.owner]
		if idx.seen.Test(uint(slot)) {
			results[idx.slotOf[slot]].HitCount++
			continue
		}

		idx.seen.Set(uint(slot))
		idx.slotOf[slot] = len(results)
		results = append(results, Result[D]{
			Owner:       reg.owner,
			PatternSize: len(reg.bytes),
			HitCount:    1,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].HitCount != results[j].HitCount {
			return results[i].HitCount > results[j].HitCount
		}
		return results[i].PatternSize > results[j].PatternSize
	})

	idx.scratch = results
	out := make([]Result[D], len(results))
	copy(out, results)
	return out, nil
}

// Len returns the number of registered patterns.
func (idx *Index[D]) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.registrations)
}
