package detectors

import (
	"github.com/lippycat/svcid/internal/appid"
	"github.com/lippycat/svcid/pkg/flow"
)

// fakeAPI is a minimal IniServiceApi recorder, standing in for a Subsystem
// so a detector's validate() can be exercised without wiring a full
// Subsystem/port-registry/pattern-index stack.
type fakeAPI struct {
	successCalls      int
	inProcessCalls    int
	incompatibleCalls int
	failCalls         int

	lastVendor, lastVersion string
	lastSubtypes            []string
}

func (f *fakeAPI) RegisterPattern(transport appid.Transport, patternBytes []byte, position int, name string) {
}

func (f *fakeAPI) AddPort(transport appid.Transport, port uint16, reversed bool, validate appid.ValidateFunc, userData any, flags appid.DetectorFlags) *appid.Detector {
	return &appid.Detector{Name: "fake", Flags: flags}
}

func (f *fakeAPI) RemovePorts(validate appid.ValidateFunc, userData any) {}

func (f *fakeAPI) SetValidatorForAppID(name string, validate appid.ValidateFunc, userData any, flags appid.DetectorFlags) *appid.Detector {
	return &appid.Detector{Name: name, Flags: flags}
}

func (f *fakeAPI) FlowDataGet(fl *appid.Flow, key uint32) any { return fl.FlowDataGet(key) }

func (f *fakeAPI) FlowDataAdd(fl *appid.Flow, key uint32, blob any, free func(any)) {
	fl.FlowDataAdd(key, blob, free)
}

func (f *fakeAPI) AddDHCP(fl *appid.Flow, opt55, opt60 []byte, mac string)                {}
func (f *fakeAPI) AddHostIP(fl *appid.Flow, mac, ipv4 string, zone, mask int, lease uint32, router string) {
}
func (f *fakeAPI) AddSMBData(fl *appid.Flow, major, minor uint8, flags uint32) {}

func (f *fakeAPI) AddService(fl *appid.Flow, pkt appid.PacketView, dir appid.Direction, d *appid.Detector, vendor, version string, subtypes []string) appid.Verdict {
	f.successCalls++
	f.lastVendor, f.lastVersion, f.lastSubtypes = vendor, version, subtypes
	return appid.Success
}

func (f *fakeAPI) InProcess(fl *appid.Flow, pkt appid.PacketView, dir appid.Direction, d *appid.Detector) appid.Verdict {
	f.inProcessCalls++
	return appid.InProcess
}

func (f *fakeAPI) IncompatibleData(fl *appid.Flow, pkt appid.PacketView, dir appid.Direction, d *appid.Detector, flowDataKey uint32) appid.Verdict {
	f.incompatibleCalls++
	return appid.Success
}

func (f *fakeAPI) FailService(fl *appid.Flow, pkt appid.PacketView, dir appid.Direction, d *appid.Detector, flowDataKey uint32) appid.Verdict {
	f.failCalls++
	return appid.Success
}

// newArgs builds an Args bundle for a validate() call with payload as the
// application-layer bytes of a TCP packet from client to the detector's
// well-known port.
func newArgs(payload []byte) (appid.Args, *fakeAPI) {
	fa := &fakeAPI{}
	return appid.Args{
		Payload:   payload,
		Direction: appid.DirInitiator,
		Flow:      appid.NewFlow(),
		Packet: flow.Packet{
			Src:       flow.Endpoint{IP: "10.0.0.1", Port: 40000},
			Dst:       flow.Endpoint{IP: "10.0.0.2", Port: 1},
			Transport: flow.TransportTCP,
			Payload:   payload,
		},
	}, fa
}
