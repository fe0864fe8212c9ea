package detectors

import (
	"bytes"
	"context"
	"strings"

	"github.com/lippycat/svcid/internal/appid"
	"github.com/lippycat/svcid/internal/pkg/simd"
)

const sshPort = 22

var sshPrefix = []byte("SSH-")

// sshDetector matches the version-exchange banner ("SSH-2.0-..."), grounded
// on the teacher's SSHSignature.
type sshDetector struct{ base }

func registerSSH(s *appid.Subsystem) {
	api := s.API()
	d := &sshDetector{}
	det := api.AddPort(appid.TransportTCP, sshPort, false, d.validate, "SSH", appid.FlagAdditionalInfo)
	d.base = base{api: api, det: det}
}

func (d *sshDetector) validate(ctx context.Context, args appid.Args) appid.Verdict {
	p := args.Payload
	if len(p) < 4 {
		return d.inProcess(args)
	}
	if !simd.BytesEqual(p[:4], sshPrefix) {
		return d.fail(args)
	}

	end := bytes.IndexAny(p, "\r\n")
	if end == -1 {
		if len(p) < 255 {
			return d.inProcess(args)
		}
		end = len(p)
	}

	parts := strings.SplitN(string(p[:end]), "-", 3)
	if len(parts) < 3 {
		return d.fail(args)
	}
	switch parts[1] {
	case "2.0", "1.99", "1.5":
	default:
		return d.fail(args)
	}

	software := strings.SplitN(parts[2], " ", 2)[0]
	return d.success(args, "", software, nil)
}

