package appid

import (
	"context"
	"sync"

	"github.com/lippycat/svcid/pkg/flow"
)

// DetectorFlags are the capability bits a registration can carry (spec §3,
// §6 set_validator_for_app_id flags).
type DetectorFlags uint8

const (
	// FlagProvidesUser marks a detector that can extract a username.
	FlagProvidesUser DetectorFlags = 1 << iota
	// FlagAdditionalInfo marks a detector that extracts additional info
	// beyond the bare protocol identity.
	FlagAdditionalInfo
	// FlagUDPReversed marks a detector eligible for UDP-reversed discovery
	// (e.g. SNMP traps, where the "server" role is inferred from the
	// initiator side).
	FlagUDPReversed
)

// Args is the argument bundle passed to a detector's Validate callback.
// Payload is only valid for the duration of the call (spec Non-goals:
// "storing packet payloads beyond the current packet" — a detector that
// needs to remember bytes across packets must copy them into flow-scoped
// scratch via FlowDataAdd).
type Args struct {
	Payload   []byte
	Direction Direction
	Flow      *Flow
	Packet    flow.Packet
}

// ValidateFunc is a detector's synchronous validation callback. It must
// never block: the orchestration hot path assumes it returns promptly with
// a verdict (spec §5 "no operation suspends or yields within discover()").
type ValidateFunc func(ctx context.Context, args Args) Verdict

// Detector is the capability record every protocol module registers (spec
// §3, §9 "no inheritance hierarchy is required"). Its identity is the
// (Validate, UserData) pair; two registrations with the same pair are the
// same detector.
type Detector struct {
	Validate ValidateFunc
	UserData any
	Name     string
	Flags    DetectorFlags

	mu              sync.Mutex
	refCount        int
	currentRefCount int
	flowDataIndex   uint32
}

// Active reports whether the detector currently has any live registration.
// A detector's current_ref_count can be forced to zero to disable it
// without unregistering it entirely (spec §3).
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentRefCount > 0
}

// RefCount returns the total number of port/pattern registrations pointing
// at this detector.
func (d *Detector) RefCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refCount
}

// Disable zeroes current_ref_count without touching ref_count, so the
// detector stops being handed out as a candidate while remaining
// registered (spec §3: "zero disables it without unregistering").
func (d *Detector) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.currentRefCount = 0
}

func (d *Detector) incRef() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refCount++
	d.currentRefCount++
}

func (d *Detector) decRef() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.refCount > 0 {
		d.refCount--
	}
	if d.currentRefCount > 0 {
		d.currentRefCount--
	}
}

func (d *Detector) hasFlag(f DetectorFlags) bool {
	return d.Flags&f != 0
}

// FlowDataKey returns the flow_data_index this detector was assigned at
// registration (spec §4.3), the key it must use with FlowDataGet/FlowDataAdd
// and pass to IncompatibleData/FailService to free its own scratch.
func (d *Detector) FlowDataKey() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flowDataIndex
}

// Table is the set of every detector registered with a Subsystem. It is
// exclusively responsible for detector lifetime: detectors are created on
// first registration and destroyed only at subsystem shutdown (spec §3).
type Table struct {
	mu          sync.RWMutex
	byIdentity  map[detectorIdentity]*Detector
	ordered     []*Detector // static list order, then dynamic load order
	nextFlowIdx uint32
}

type detectorIdentity struct {
	fn   uintptr
	data any
}

// serviceModuleStateBit marks a flow_data_index slot as service-module
// state, so collaborators storing per-flow scratch under that index never
// collide with another module's slot (spec §4.3).
const serviceModuleStateBit uint32 = 1 << 31

// NewTable creates an empty detector table.
func NewTable() *Table {
	return &Table{byIdentity: make(map[detectorIdentity]*Detector)}
}

// GetOrCreate returns the Detector for (validate, userData), creating and
// registering it if this is the first time this pair has been seen.
func (t *Table) GetOrCreate(name string, validate ValidateFunc, userData any, flags DetectorFlags) *Detector {
	id := identityOf(validate, userData)

	t.mu.Lock()
	defer t.mu.Unlock()

	if d, ok := t.byIdentity[id]; ok {
		return d
	}

	d := &Detector{
		Validate:      validate,
		UserData:      userData,
		Name:          name,
		Flags:         flags,
		flowDataIndex: t.nextFlowIdx | serviceModuleStateBit,
	}
	t.nextFlowIdx++
	t.byIdentity[id] = d
	t.ordered = append(t.ordered, d)
	return d
}

// byName finds a registered detector by its display name. Names are not
// guaranteed unique across dynamically loaded detectors; the first match in
// registration order wins, mirroring how the static list resolves
// ambiguity by load order.
func (t *Table) byName(name string) *Detector {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, d := range t.ordered {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// nextActive returns the next active (current_ref_count > 0) detector in
// registration order, starting after last if hasLast is true, else from
// the beginning. It does not wrap: past the end of the list it reports
// false, so a detector already passed is never returned again (spec §4.5
// step 2's brute-force walk).
func (t *Table) nextActive(last *Detector, hasLast bool) (*Detector, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	start := 0
	if hasLast {
		for i, d := range t.ordered {
			if d == last {
				start = i + 1
				break
			}
		}
	}
	for i := start; i < len(t.ordered); i++ {
		if t.ordered[i].Active() {
			return t.ordered[i], true
		}
	}
	return nil, false
}

// All returns every detector in registration order.
func (t *Table) All() []*Detector {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Detector, len(t.ordered))
	copy(out, t.ordered)
	return out
}

func identityOf(fn ValidateFunc, userData any) detectorIdentity {
	return detectorIdentity{fn: funcAddr(fn), data: userData}
}
