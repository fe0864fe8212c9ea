// Package detectors holds the concrete protocol collaborators registered
// against the orchestration core, grounded on the teacher's per-protocol
// files under internal/pkg/detector/signatures/application. Each detector
// here returns a Verdict instead of a confidence-scored DetectionResult,
// matching this core's verdict-based contract.
package detectors

import (
	"github.com/lippycat/svcid/internal/appid"
)

// base is embedded by every detector below. It carries the down-call API and
// the Detector record assigned to this collaborator at registration, and
// translates the guard/state-effecting down-calls into the verdict the
// candidate loop actually needs.
//
// The down-call functions' own return values (spec §4.6, always SUCCESS on
// the guarded/swallowed path) communicate to the calling detector's internal
// logic that the side effect was applied; they are not relayed to the
// orchestrator as-is, since a swallowed fail_service must still remove this
// candidate from the walk rather than trigger an immediate commit. Success
// is the one down-call whose own return value is authoritative, since
// add_service always means a genuine commit.
type base struct {
	api appid.IniServiceApi
	det *appid.Detector
}

func (b *base) success(args appid.Args, vendor, version string, subtypes []string) appid.Verdict {
	return b.api.AddService(args.Flow, args.View(), args.Direction, b.det, vendor, version, subtypes)
}

func (b *base) inProcess(args appid.Args) appid.Verdict {
	b.api.InProcess(args.Flow, args.View(), args.Direction, b.det)
	return appid.InProcess
}

func (b *base) incompatible(args appid.Args) appid.Verdict {
	b.api.IncompatibleData(args.Flow, args.View(), args.Direction, b.det, b.det.FlowDataKey())
	return appid.NotCompatible
}

func (b *base) fail(args appid.Args) appid.Verdict {
	b.api.FailService(args.Flow, args.View(), args.Direction, b.det, b.det.FlowDataKey())
	return appid.Fail
}
