package appid

import (
	"github.com/lippycat/svcid/internal/appid/flowctx"
	"github.com/lippycat/svcid/internal/appid/pattern"
	"github.com/lippycat/svcid/internal/appid/portreg"
)

// flow-data slots owned by the framework itself, distinct from any
// detector's flowDataIndex (which always carries serviceModuleStateBit).
// These sit in the low range so a collision with a detector's slot would
// require overflowing 2^31 detector registrations.
const (
	dhcpDataKey   uint32 = 0
	hostIPDataKey uint32 = 1
	smbDataKey    uint32 = 2
)

// DHCPInfo is the opaque DHCP fingerprint side channel (spec §6 add_dhcp).
type DHCPInfo struct {
	Option55 []byte
	Option60 []byte
	MAC      string
}

// HostIPInfo is the opaque host-info side channel (spec §6 add_host_ip).
type HostIPInfo struct {
	MAC    string
	IPv4   string
	Zone   int
	Mask   int
	Lease  uint32
	Router string
}

// SMBData is the opaque SMB dialect side channel (spec §6 add_smb_data).
type SMBData struct {
	Major uint8
	Minor uint8
	Flags uint32
}

// IniServiceApi is the down-call API a protocol module or dynamically
// loaded detector is handed on registration (spec §4.3, §6). Every method
// here is safe to call only from within that module's own Validate
// callback or its init-time registration code; it is never safe to retain
// and call from another goroutine, since the registries it touches are
// thread-local (spec §5).
type IniServiceApi interface {
	RegisterPattern(transport Transport, patternBytes []byte, position int, name string)
	AddPort(transport Transport, port uint16, reversed bool, validate ValidateFunc, userData any, flags DetectorFlags) *Detector
	RemovePorts(validate ValidateFunc, userData any)
	SetValidatorForAppID(name string, validate ValidateFunc, userData any, flags DetectorFlags) *Detector

	FlowDataGet(f *Flow, key uint32) any
	FlowDataAdd(f *Flow, key uint32, blob any, free func(any))

	AddDHCP(f *Flow, opt55, opt60 []byte, mac string)
	AddHostIP(f *Flow, mac, ipv4 string, zone, mask int, lease uint32, router string)
	AddSMBData(f *Flow, major, minor uint8, flags uint32)

	AddService(f *Flow, pkt PacketView, dir Direction, d *Detector, vendor, version string, subtypes []string) Verdict
	InProcess(f *Flow, pkt PacketView, dir Direction, d *Detector) Verdict
	IncompatibleData(f *Flow, pkt PacketView, dir Direction, d *Detector, flowDataKey uint32) Verdict
	FailService(f *Flow, pkt PacketView, dir Direction, d *Detector, flowDataKey uint32) Verdict
}

// PacketView is the minimal per-packet endpoint information the verdict
// handlers need to resolve a server endpoint (spec §4.6 "resolve the
// server endpoint using dir").
type PacketView struct {
	Src, Dst  Endpoint
	Transport Transport
}

// Endpoint is a plain (ip, port) pair, mirroring pkg/flow.Endpoint without
// importing it: the appid package only needs the two fields, not the rest
// of the packet-extraction surface.
type Endpoint struct {
	IP   string
	Port uint16
}

// View builds the PacketView a detector passes to the verdict functions
// from the Args it was handed, so a detector never needs to touch
// pkg/flow directly to report a result.
func (a Args) View() PacketView {
	return PacketView{
		Src:       Endpoint{IP: a.Packet.Src.IP, Port: a.Packet.Src.Port},
		Dst:       Endpoint{IP: a.Packet.Dst.IP, Port: a.Packet.Dst.Port},
		Transport: transportFromFlow(a.Packet.Transport),
	}
}

// api is the Subsystem-bound implementation of IniServiceApi.
type api struct {
	sub *Subsystem
}

// API returns the down-call API bound to this Subsystem, to be handed to
// every registering protocol module (spec §4.3).
func (s *Subsystem) API() IniServiceApi { return &api{sub: s} }

func (a *api) RegisterPattern(transport Transport, patternBytes []byte, position int, name string) {
	// Registration needs an owning Detector; callers register a pattern
	// only after SetValidatorForAppID, so name identifies a detector
	// already known to the table. Look it up by name among registered
	// detectors, falling back to a no-op with a log line, matching spec
	// §7 "unknown transport/registration target at registration time ->
	// log and skip that registration".
	d := a.sub.detectors.byName(name)
	if d == nil {
		a.sub.log.Warn("register_pattern: unknown detector, skipping", "detector", name)
		return
	}
	idx := a.indexFor(transport)
	if idx == nil {
		a.sub.log.Warn("register_pattern: unknown transport, skipping", "detector", name, "transport", transport)
		return
	}
	idx.Register(d, patternBytes, position)
	d.incRef()
}

func (a *api) indexFor(transport Transport) *pattern.Index[*Detector] {
	switch transport {
	case TransportTCP:
		return a.sub.patternsTCP
	case TransportUDP:
		return a.sub.patternsUDP
	default:
		return nil
	}
}

func (a *api) AddPort(transport Transport, port uint16, reversed bool, validate ValidateFunc, userData any, flags DetectorFlags) *Detector {
	d := a.sub.detectors.GetOrCreate(nameOrDefault(userData), validate, userData, flags)
	pt := portregTransport(transport)
	if reversed {
		pt = portreg.TransportUDPReversed
	}
	for cur, ok := a.sub.ports.NextByPort(pt, port, nil, false, false); ok; cur, ok = a.sub.ports.NextByPort(pt, port, cur, true, false) {
		if cur == d {
			return d
		}
	}
	a.sub.ports.Add(pt, port, d)
	d.incRef()
	return d
}

func nameOrDefault(userData any) string {
	if s, ok := userData.(string); ok {
		return s
	}
	return "detector"
}

func (a *api) RemovePorts(validate ValidateFunc, userData any) {
	id := identityOf(validate, userData)
	a.sub.detectors.mu.RLock()
	d, ok := a.sub.detectors.byIdentity[id]
	a.sub.detectors.mu.RUnlock()
	if !ok {
		return
	}
	removed := 0
	a.sub.ports.DumpPorts(func(_ portreg.Transport, _ uint16, x *Detector) {
		if x == d {
			removed++
		}
	})
	a.sub.ports.RemoveAll(d)
	for ; removed > 0; removed-- {
		d.decRef()
	}
}

func (a *api) SetValidatorForAppID(name string, validate ValidateFunc, userData any, flags DetectorFlags) *Detector {
	return a.sub.detectors.GetOrCreate(name, validate, userData, flags)
}

func (a *api) FlowDataGet(f *Flow, key uint32) any { return f.FlowDataGet(key) }

func (a *api) FlowDataAdd(f *Flow, key uint32, blob any, free func(any)) {
	f.FlowDataAdd(key, blob, free)
}

// AddDHCP stores a DHCP fingerprint once per flow; subsequent calls are
// no-ops once HAS_DHCP_FP is set (spec §6).
func (a *api) AddDHCP(f *Flow, opt55, opt60 []byte, mac string) {
	f.Lock()
	already := f.HasFlag(flowctx.FlagHasDHCPFP)
	if !already {
		f.SetFlag(flowctx.FlagHasDHCPFP)
	}
	f.Unlock()
	if already {
		return
	}
	f.FlowDataAdd(dhcpDataKey, &DHCPInfo{Option55: opt55, Option60: opt60, MAC: mac}, nil)
}

// AddHostIP rejects a zero MAC or zero IP and requires RNA mode (spec §6).
// rnaMode reflects whether this Subsystem was configured as a passive
// host-discovery ("RNA") worker; plain flow-identification workers reject
// every call.
func (a *api) AddHostIP(f *Flow, mac, ipv4 string, zone, mask int, lease uint32, router string) {
	if !a.sub.cfg.RNAMode {
		return
	}
	if mac == "" || mac == "00:00:00:00:00:00" || ipv4 == "" || ipv4 == "0.0.0.0" {
		return
	}
	f.FlowDataAdd(hostIPDataKey, &HostIPInfo{MAC: mac, IPv4: ipv4, Zone: zone, Mask: mask, Lease: lease, Router: router}, nil)
}

func (a *api) AddSMBData(f *Flow, major, minor uint8, flags uint32) {
	f.FlowDataAdd(smbDataKey, &SMBData{Major: major, Minor: minor, Flags: flags}, nil)
}

func (a *api) AddService(f *Flow, pkt PacketView, dir Direction, d *Detector, vendor, version string, subtypes []string) Verdict {
	return a.sub.addService(f, pkt, dir, d, vendor, version, subtypes)
}

func (a *api) InProcess(f *Flow, pkt PacketView, dir Direction, d *Detector) Verdict {
	return a.sub.inProcess(f, pkt, dir, d)
}

func (a *api) IncompatibleData(f *Flow, pkt PacketView, dir Direction, d *Detector, flowDataKey uint32) Verdict {
	return a.sub.incompatibleData(f, pkt, dir, d, flowDataKey)
}

func (a *api) FailService(f *Flow, pkt PacketView, dir Direction, d *Detector, flowDataKey uint32) Verdict {
	return a.sub.failService(f, pkt, dir, d, flowDataKey)
}
