package detectors

import (
	"context"

	"github.com/lippycat/svcid/internal/appid"
)

const snmpTrapPort = 162

// snmpTrapDetector is the spec's worked example of a UDP-reversed
// registration: its port 162 entry goes only into the UDP-reversed table.
// The orchestrator looks that table up with the initiator's source port,
// and a commit on a flow flagged UDP-reversed records the initiator's
// (source) endpoint as the service endpoint, so the side that sends first
// is tracked as the server (spec §4.2 udp-reversed table). Validation follows the same ASN.1
// SEQUENCE/INTEGER-version walk as the teacher's SNMPSignature.
type snmpTrapDetector struct{ base }

func registerSNMPTrap(s *appid.Subsystem) {
	api := s.API()
	d := &snmpTrapDetector{}
	det := api.AddPort(appid.TransportUDP, snmpTrapPort, true, d.validate, "SNMP-TRAP", appid.FlagUDPReversed)
	d.base = base{api: api, det: det}
}

func (d *snmpTrapDetector) validate(ctx context.Context, args appid.Args) appid.Verdict {
	p := args.Payload
	if len(p) < 10 {
		return d.inProcess(args)
	}
	if p[0] != 0x30 {
		return d.fail(args)
	}

	offset, ok := snmpLengthOffset(p)
	if !ok {
		return d.fail(args)
	}
	if offset >= len(p) || p[offset] != 0x02 {
		return d.fail(args)
	}
	offset++
	if offset >= len(p) || p[offset] != 0x01 {
		return d.fail(args)
	}
	offset++
	if offset >= len(p) {
		return d.inProcess(args)
	}
	version := p[offset]
	if version > 3 {
		return d.fail(args)
	}

	return d.success(args, "", "", nil)
}

// snmpLengthOffset walks the ASN.1 SEQUENCE length field starting at
// payload[1] and returns the offset of the first byte past it.
func snmpLengthOffset(p []byte) (int, bool) {
	lengthByte := p[1]
	if lengthByte&0x80 == 0 {
		return 2, true
	}
	numLenBytes := int(lengthByte & 0x7f)
	if numLenBytes > 4 || len(p) < 2+numLenBytes {
		return 0, false
	}
	return 2 + numLenBytes, true
}

