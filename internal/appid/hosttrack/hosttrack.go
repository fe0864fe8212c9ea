// Package hosttrack implements the host-tracker cache and its hysteresis
// state machine (spec §4.4). One Entry exists per {server-IP, transport,
// port, detection-level} tuple and is shared, read/write, across every
// worker thread that sees traffic to that tuple; the cache itself
// partitions storage by a hash of the key so no single lock serializes
// unrelated hosts (spec §5).
package hosttrack

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"
)

// State is one of the host-tracker's five discovery states (spec §4.4).
type State int

const (
	StateNew State = iota
	StatePort
	StatePattern
	StateBruteForce
	StateValid
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePort:
		return "port"
	case StatePattern:
		return "pattern"
	case StateBruteForce:
		return "brute_force"
	case StateValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Constants governing the hysteresis state machine (spec §4.4).
const (
	InvalidClientThreshold = 9
	MaxValidCount          = 5
	NeededDupeDetract      = 3
	InconclusiveWeight     = 3
)

// Key identifies a HostEntry. Transport and Level are plain ints supplied
// by the caller (the appid package owns the real Transport/DetectionLevel
// enums; hosttrack stays free of that dependency to avoid a cycle).
type Key struct {
	IP        string
	Transport int
	Port      uint16
	Level     int
}

// Hash returns a fast, allocation-light xxh3 hash of the key. The cache
// does not call it: xsync.Map hashes Key values itself.
func (k Key) Hash() uint64 {
	h := xxh3.New()
	_, _ = h.WriteString(k.IP)
	_, _ = h.Write([]byte{byte(k.Transport), byte(k.Port >> 8), byte(k.Port), byte(k.Level)})
	return h.Sum64()
}

// PatternMatch is one entry of a HostEntry's cached pattern-scan results
// (spec §3 "pattern_matches").
type PatternMatch[D comparable] struct {
	Detector    D
	HitCount    int
	PatternSize int
}

// Entry is the cached knowledge about one (ip, transport, port, level)
// tuple (spec §3 "HostEntry"). D is the detector-identifying type
// (*appid.Detector in production, a plain string in tests).
type Entry[D comparable] struct {
	mu sync.Mutex

	State  State
	svc    D
	svcSet bool

	PatternMatches []PatternMatch[D]
	cursor         int

	ValidCount         int
	InvalidClientCount int
	DetractCount       int
	LastInvalidClient  string
	LastDetract        string

	Searching bool
	ResetTime int64
}

// Svc returns the entry's best-known detector, if any.
func (e *Entry[D]) Svc() (D, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.svc, e.svcSet
}

func (e *Entry[D]) setSvc(d D) {
	e.svc = d
	e.svcSet = true
}

func (e *Entry[D]) clearSvc() {
	var zero D
	e.svc = zero
	e.svcSet = false
}

// IsSearching reports whether some flow is currently walking candidates
// for this entry (spec §3 "searching").
func (e *Entry[D]) IsSearching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Searching
}

// TryBeginSearch atomically claims the entry for a candidate walk and
// reports whether another flow already owned it: true if the entry was
// already searching, false for a fresh claim. Either way the entry is
// marked searching afterwards. This is the coarse
// guard spec §4.5 step 4 describes: "if another flow is already searching
// on the HostEntry, reset HostEntry to NEW; mark searching=true" — the
// reset is left to the caller, since it needs the pattern/port state
// cleared the same way a fresh NEW entry would be.
func (e *Entry[D]) TryBeginSearch() (alreadySearching bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	alreadySearching = e.Searching
	e.Searching = true
	return alreadySearching
}

// EndSearch releases the searching claim, e.g. once a detector commits or
// the candidate list is exhausted.
func (e *Entry[D]) EndSearch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Searching = false
}

// Reset restores the entry to NEW, exactly as resetFull does, for use when
// the orchestrator must interrupt an in-progress search on another flow's
// behalf (spec §4.5 step 4).
func (e *Entry[D]) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetFull()
}

// resetFull restores an entry to its NEW state, clearing every hysteresis
// counter (spec §4.4 "full reset"). Caller must hold the lock.
func (e *Entry[D]) resetFull() {
	e.State = StateNew
	e.clearSvc()
	e.InvalidClientCount = 0
	e.LastInvalidClient = ""
	e.ValidCount = 0
	e.DetractCount = 0
	e.LastDetract = ""
	e.PatternMatches = nil
	e.cursor = 0
	e.ResetTime = 0
}

// StateNow returns the entry's current state.
func (e *Entry[D]) StateNow() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.State
}

// SetSvc records d as the entry's best-known (or currently-tried) detector.
func (e *Entry[D]) SetSvc(d D) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setSvc(d)
}

// ClearSvc clears the entry's best-known detector.
func (e *Entry[D]) ClearSvc() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clearSvc()
}

// EnterPort transitions NEW -> PORT, clearing svc (spec §4.4 row 1).
func (e *Entry[D]) EnterPort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.State = StatePort
	e.clearSvc()
}

// ExhaustPort transitions PORT -> PATTERN when the port list has been
// walked with no hit. The pattern cursor is left where SetPatternMatches
// last put it, or at zero if no scan has happened yet (spec §4.4 row 2,
// §4.5.1).
func (e *Entry[D]) ExhaustPort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.State = StatePattern
	e.clearSvc()
	if e.PatternMatches == nil {
		e.cursor = 0
	}
}

// ExhaustPattern transitions PATTERN -> BRUTE_FORCE (spec §4.4 row 3).
func (e *Entry[D]) ExhaustPattern() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.State = StateBruteForce
	e.clearSvc()
}

// MarkSuccess transitions any state -> VALID on a detector SUCCESS verdict
// (spec §4.4 row 4).
func (e *Entry[D]) MarkSuccess(d D) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.State = StateValid
	e.setSvc(d)
	e.ValidCount = 1
	e.InvalidClientCount = 0
	e.DetractCount = 0
	e.LastInvalidClient = ""
	e.LastDetract = ""
	e.Searching = false
	e.ResetTime = 0
}

// RecordInvalidClient bumps the invalid-client counter ahead of a call to
// HandleFailure, exactly as the original detector core does: a repeat
// offender from the same IP costs 1, a new offending IP costs 3 (spec §7,
// "also feeds the invalid-client counter on failure, distinguishing a weird
// client from a wrong service guess"). Only called when the flow ended in
// got-incompatible state; a plain NOMATCH/FAIL from a client that was never
// flagged incompatible does not move this counter.
func (e *Entry[D]) RecordInvalidClient(clientIP string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InvalidClientCount >= InvalidClientThreshold {
		return
	}
	if e.LastInvalidClient == clientIP {
		e.InvalidClientCount++
	} else {
		e.InvalidClientCount += 3
		e.LastInvalidClient = clientIP
	}
}

// AddInconclusiveWeight adds INCONCLUSIVE_WEIGHT to the invalid-client
// counter directly, for a flow that died while still IN_PROCESS (spec
// §4.7 fail_in_process), as opposed to RecordInvalidClient's per-IP +1/+3
// bookkeeping for a live FAIL/NOT_COMPATIBLE verdict.
func (e *Entry[D]) AddInconclusiveWeight() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InvalidClientCount < InvalidClientThreshold {
		e.InvalidClientCount += InconclusiveWeight
	}
}

// HandleFailure applies the VALID-state hysteresis table and the
// port/pattern timeout rule (spec §4.4 rows 5-9). timeoutWithCandidates
// signals a PORT/PATTERN-state timeout while a non-empty candidate list was
// outstanding.
func (e *Entry[D]) HandleFailure(clientIP string, timeoutWithCandidates bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.State == StateValid:
		switch {
		case e.InvalidClientCount >= InvalidClientThreshold:
			if e.ValidCount <= 1 {
				e.resetFull()
			} else {
				e.ValidCount--
				e.LastInvalidClient = clientIP
				e.InvalidClientCount = 0
			}
		case e.InvalidClientCount == 0:
			if e.LastDetract == clientIP {
				e.DetractCount++
			} else {
				e.LastDetract = clientIP
			}
			if e.DetractCount >= NeededDupeDetract {
				if e.ValidCount <= 1 {
					e.resetFull()
				} else {
					e.ValidCount--
				}
			}
		}
	case (e.State == StatePort || e.State == StatePattern) && timeoutWithCandidates:
		e.State = StateNew
	case e.State == StateBruteForce:
		if e.InvalidClientCount > 0 && e.InvalidClientCount < InvalidClientThreshold {
			e.State = StateNew
		}
	}
}

// SetPatternMatches stores the sorted pattern-scan result for this entry
// and resets the walk cursor (spec §4.5.1 PATTERN/RESPONDER branch).
func (e *Entry[D]) SetPatternMatches(matches []PatternMatch[D]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PatternMatches = matches
	e.cursor = 0
}

// HasPatternMatches reports whether a scan has already populated the
// pattern list for this entry.
func (e *Entry[D]) HasPatternMatches() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.PatternMatches != nil
}

// NextPatternMatch advances the walk cursor, skipping entries for which
// active returns false (inactive detectors, spec §4.5.1: "advance the
// cursor skipping inactive detectors"). It returns false once the list is
// exhausted.
func (e *Entry[D]) NextPatternMatch(active func(D) bool) (D, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var zero D
	for e.cursor < len(e.PatternMatches) {
		m := e.PatternMatches[e.cursor]
		e.cursor++
		if active(m.Detector) {
			return m.Detector, true
		}
	}
	return zero, false
}

// FreePatternMatches drops the cached pattern-scan list once it is no
// longer needed (spec §4.5 step 9: freed when state reaches BRUTE_FORCE or
// VALID).
func (e *Entry[D]) FreePatternMatches() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.PatternMatches = nil
	e.cursor = 0
}

// Cache is the shared, thread-safe host-tracker (spec §2 item 4, §5).
type Cache[D comparable] struct {
	m *xsync.Map[Key, *Entry[D]]
}

// NewCache creates an empty host-tracker cache.
func NewCache[D comparable]() *Cache[D] {
	return &Cache[D]{m: xsync.NewMap[Key, *Entry[D]]()}
}

// GetOrCreate returns the Entry for key, allocating a fresh NEW-state entry
// on first touch. Concurrent first touches from different worker threads
// collapse into a single allocation (spec §5: HostEntry is the only shared
// mutable structure and a single entry may be touched by flows on
// different threads).
func (c *Cache[D]) GetOrCreate(key Key) *Entry[D] {
	e, _ := c.m.LoadOrCompute(key, func() (*Entry[D], bool) {
		return &Entry[D]{State: StateNew}, false
	})
	return e
}

// Get returns the Entry for key without creating one.
func (c *Cache[D]) Get(key Key) (*Entry[D], bool) {
	return c.m.Load(key)
}

// Size returns the number of tracked entries.
func (c *Cache[D]) Size() int {
	return c.m.Size()
}

// Range visits every entry in the cache. The visit function may be called
// from any goroutine; it must not block.
func (c *Cache[D]) Range(fn func(Key, *Entry[D]) bool) {
	c.m.Range(fn)
}
