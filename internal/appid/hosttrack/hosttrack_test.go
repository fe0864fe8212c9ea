package hosttrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntryStartsNew(t *testing.T) {
	c := NewCache[string]()
	e := c.GetOrCreate(Key{IP: "10.0.0.1", Transport: 0, Port: 179})
	assert.Equal(t, StateNew, e.StateNow())
	_, ok := e.Svc()
	assert.False(t, ok)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	c := NewCache[string]()
	key := Key{IP: "10.0.0.1", Transport: 0, Port: 80}
	a := c.GetOrCreate(key)
	b := c.GetOrCreate(key)
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.Size())
}

func TestPortLedTransitionToValid(t *testing.T) {
	// Scenario 1: a fresh entry walks NEW -> PORT -> VALID on the first
	// port-registry candidate succeeding.
	e := &Entry[string]{State: StateNew}
	e.EnterPort()
	require.Equal(t, StatePort, e.StateNow())

	e.MarkSuccess("bgp")
	assert.Equal(t, StateValid, e.StateNow())
	svc, ok := e.Svc()
	require.True(t, ok)
	assert.Equal(t, "bgp", svc)
}

func TestExhaustPortThenPattern(t *testing.T) {
	e := &Entry[string]{State: StateNew}
	e.EnterPort()
	e.ExhaustPort()
	assert.Equal(t, StatePattern, e.StateNow())

	e.ExhaustPattern()
	assert.Equal(t, StateBruteForce, e.StateNow())
	_, ok := e.Svc()
	assert.False(t, ok, "svc is cleared on every phase transition")
}

func TestRecordInvalidClientSameIPCostsOne(t *testing.T) {
	e := &Entry[string]{State: StateValid}
	e.RecordInvalidClient("1.1.1.1")
	e.RecordInvalidClient("1.1.1.1")
	assert.Equal(t, 4, e.InvalidClientCount) // 3 (new ip) + 1 (repeat)
}

func TestRecordInvalidClientNewIPCostsThree(t *testing.T) {
	e := &Entry[string]{State: StateValid}
	e.RecordInvalidClient("1.1.1.1")
	e.RecordInvalidClient("2.2.2.2")
	assert.Equal(t, 6, e.InvalidClientCount)
	assert.Equal(t, "2.2.2.2", e.LastInvalidClient)
}

func TestRecordInvalidClientCapsAtThreshold(t *testing.T) {
	e := &Entry[string]{State: StateValid}
	for i := 0; i < 10; i++ {
		e.RecordInvalidClient("1.1.1.1")
	}
	assert.LessOrEqual(t, e.InvalidClientCount, InvalidClientThreshold)
}

func TestHandleFailureValidDemotesOnRepeatIP(t *testing.T) {
	// Scenario 4: a VALID entry with ValidCount=3 sees repeated failures
	// from the *same* clean client (invalid_client_count stays 0). The
	// first failure only records last_detract; NeededDupeDetract further
	// same-IP failures are required before a single ValidCount decrement
	// fires, matching the original's HandleFailure.
	e := &Entry[string]{State: StateValid, ValidCount: 3}
	e.setSvc("http")

	e.HandleFailure("9.9.9.9", false) // records last_detract, count 0
	e.HandleFailure("9.9.9.9", false) // count 1
	e.HandleFailure("9.9.9.9", false) // count 2
	assert.Equal(t, StateValid, e.StateNow(), "not enough detracts yet")
	assert.Equal(t, 3, e.ValidCount)

	e.HandleFailure("9.9.9.9", false) // count 3 == NeededDupeDetract
	assert.Equal(t, 2, e.ValidCount, "reaching the threshold costs one ValidCount")
	assert.Equal(t, StateValid, e.StateNow())
}

func TestHandleFailureValidResetsWhenValidCountExhausted(t *testing.T) {
	e := &Entry[string]{State: StateValid, ValidCount: 1}
	e.setSvc("http")

	for i := 0; i < NeededDupeDetract+1; i++ {
		e.HandleFailure("9.9.9.9", false)
	}
	assert.Equal(t, StateNew, e.StateNow())
	_, ok := e.Svc()
	assert.False(t, ok)
}

func TestHandleFailureValidWithInvalidClientsDemotesOrResets(t *testing.T) {
	e := &Entry[string]{State: StateValid, ValidCount: 2, InvalidClientCount: InvalidClientThreshold}
	e.setSvc("http")

	e.HandleFailure("3.3.3.3", false)
	assert.Equal(t, StateValid, e.StateNow())
	assert.Equal(t, 1, e.ValidCount)
	assert.Equal(t, 0, e.InvalidClientCount)
}

func TestHandleFailureTimeoutWithCandidatesResetsToNew(t *testing.T) {
	e := &Entry[string]{State: StatePattern}
	e.HandleFailure("", true)
	assert.Equal(t, StateNew, e.StateNow())
}

func TestHandleFailureBruteForceWithModerateInvalidClientsResetsToNew(t *testing.T) {
	e := &Entry[string]{State: StateBruteForce, InvalidClientCount: 4}
	e.HandleFailure("", false)
	assert.Equal(t, StateNew, e.StateNow())
}

func TestHandleFailureBruteForceStaysWhenClientsClean(t *testing.T) {
	e := &Entry[string]{State: StateBruteForce, InvalidClientCount: 0}
	e.HandleFailure("", false)
	assert.Equal(t, StateBruteForce, e.StateNow())
}

func TestPatternMatchWalkSkipsInactive(t *testing.T) {
	e := &Entry[string]{}
	e.SetPatternMatches([]PatternMatch[string]{
		{Detector: "a", HitCount: 1, PatternSize: 4},
		{Detector: "b", HitCount: 2, PatternSize: 6},
		{Detector: "c", HitCount: 1, PatternSize: 2},
	})

	active := func(d string) bool { return d != "b" }

	d, ok := e.NextPatternMatch(active)
	require.True(t, ok)
	assert.Equal(t, "a", d)

	d, ok = e.NextPatternMatch(active)
	require.True(t, ok)
	assert.Equal(t, "c", d, "b is skipped because it is inactive")

	_, ok = e.NextPatternMatch(active)
	assert.False(t, ok, "cursor exhausted")
}

func TestFreePatternMatchesResetsCursor(t *testing.T) {
	e := &Entry[string]{}
	e.SetPatternMatches([]PatternMatch[string]{{Detector: "a"}})
	_, _ = e.NextPatternMatch(func(string) bool { return true })
	e.FreePatternMatches()
	assert.Nil(t, e.PatternMatches)
	assert.False(t, e.HasPatternMatches())
}

func TestTryBeginSearchIsExclusive(t *testing.T) {
	e := &Entry[string]{}
	already := e.TryBeginSearch()
	assert.False(t, already)

	already = e.TryBeginSearch()
	assert.True(t, already, "second claim observes the first is still active")

	e.EndSearch()
	assert.False(t, e.IsSearching())
}

func TestKeyHashIsStableForEqualKeys(t *testing.T) {
	a := Key{IP: "10.0.0.1", Transport: 0, Port: 179, Level: 0}
	b := Key{IP: "10.0.0.1", Transport: 0, Port: 179, Level: 0}
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestKeyHashDiffersOnPort(t *testing.T) {
	a := Key{IP: "10.0.0.1", Port: 80}
	b := Key{IP: "10.0.0.1", Port: 443}
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestCacheRangeVisitsAllEntries(t *testing.T) {
	c := NewCache[string]()
	c.GetOrCreate(Key{IP: "1.1.1.1", Port: 80})
	c.GetOrCreate(Key{IP: "2.2.2.2", Port: 443})

	seen := 0
	c.Range(func(Key, *Entry[string]) bool {
		seen++
		return true
	})
	assert.Equal(t, 2, seen)
}
