package appid

import (
	"reflect"

	"github.com/lippycat/svcid/internal/appid/flowctx"
	"github.com/lippycat/svcid/internal/appid/hosttrack"
)

// Flow is the per-flow discovery context, instantiated over this package's
// concrete detector and host-entry types (spec §3 "FlowDiscoveryContext").
// The generic flowctx.Context lives in its own package so it can be reused
// without importing appid; this alias is the only place that ties it to a
// concrete detector type.
type Flow = flowctx.Context[*Detector, *hosttrack.Entry[*Detector]]

// NewFlow allocates a fresh discovery context for a newly seen flow.
func NewFlow() *Flow {
	return flowctx.New[*Detector, *hosttrack.Entry[*Detector]]()
}

// funcAddr returns the code pointer backing a ValidateFunc, used as half of
// a detector's identity (spec §3: "identity is the (validate, user_data)
// pair"). Two detectors registered with the same function value and the same
// UserData collapse into one Detector, mirroring the original's pointer
// comparison on the C function pointer.
func funcAddr(fn ValidateFunc) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
