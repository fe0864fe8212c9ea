package detectors

import (
	"context"

	"github.com/lippycat/svcid/internal/appid"
)

const telnetPort = 23

const iac = 0xFF

// telnetDetector looks for IAC option-negotiation sequences, grounded on the
// teacher's TelnetSignature.
type telnetDetector struct{ base }

func registerTelnet(s *appid.Subsystem) {
	api := s.API()
	d := &telnetDetector{}
	det := api.AddPort(appid.TransportTCP, telnetPort, false, d.validate, "Telnet", 0)
	d.base = base{api: api, det: det}
}

func (d *telnetDetector) validate(ctx context.Context, args appid.Args) appid.Verdict {
	p := args.Payload
	if len(p) < 3 {
		return d.inProcess(args)
	}

	iacCount := 0
	validCommand := false
	for i := 0; i < len(p)-1; i++ {
		if p[i] != iac {
			continue
		}
		iacCount++
		cmd := p[i+1]
		if cmd >= 240 && cmd <= 255 {
			validCommand = true
		}
	}

	if iacCount == 0 || !validCommand {
		if len(p) < 64 {
			return d.inProcess(args)
		}
		return d.fail(args)
	}

	return d.success(args, "", "", nil)
}

