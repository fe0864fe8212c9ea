package detectors

import (
	"bytes"
	"context"

	"github.com/lippycat/svcid/internal/appid"
	"github.com/lippycat/svcid/internal/pkg/simd"
)

const bgpPort = 179

// bgpMarker is the fixed 16-byte all-ones BGP header marker (RFC 4271 §4.1).
var bgpMarker = bytes.Repeat([]byte{0xFF}, 16)

// bgpOpenVersion is the BGP-4 OPEN message version byte, which sits at
// offset 19: 16-byte marker + 2-byte length + 1-byte type. Registered as a
// fixed-position pattern rather than a port-only registration so the
// Pattern Index also has a real anywhere-vs-position-pinned exerciser.
var bgpOpenVersion = []byte{0x04}

const bgpOpenVersionOffset = 19

// bgpDetector is the pattern-registering example named by the spec's
// pattern-led candidate scenario: registered by name so its pattern can be
// added after set_validator_for_app_id, matching the down-call ordering
// spec §6 requires.
type bgpDetector struct{ base }

func registerBGP(s *appid.Subsystem) {
	api := s.API()
	d := &bgpDetector{}
	det := api.SetValidatorForAppID("BGP", d.validate, "BGP", 0)
	d.base = base{api: api, det: det}
	api.AddPort(appid.TransportTCP, bgpPort, false, d.validate, "BGP", 0)
	api.RegisterPattern(appid.TransportTCP, bgpOpenVersion, bgpOpenVersionOffset, "BGP")
}

func (d *bgpDetector) validate(ctx context.Context, args appid.Args) appid.Verdict {
	p := args.Payload
	if len(p) < 19 {
		return d.inProcess(args)
	}
	if !simd.BytesEqual(p[:16], bgpMarker) {
		return d.fail(args)
	}
	length := int(p[16])<<8 | int(p[17])
	msgType := p[18]
	if length < 19 || length > 4096 || msgType < 1 || msgType > 5 {
		return d.fail(args)
	}
	return d.success(args, "", "", nil)
}

