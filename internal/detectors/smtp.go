package detectors

import (
	"context"
	"strconv"
	"strings"

	"github.com/lippycat/svcid/internal/appid"
)

const smtpPort = 25

var smtpCommands = []string{
	"HELO ", "EHLO ", "MAIL FROM:", "RCPT TO:", "DATA",
	"RSET", "VRFY ", "EXPN ", "HELP", "NOOP", "QUIT",
	"STARTTLS", "AUTH ", "TURN",
}

// smtpDetector applies the same response-code / command-vocabulary check as
// ftpDetector to the SMTP control channel, grounded on the teacher's
// SMTPSignature. Registering on TCP/25 also makes it reachable through the
// SSL remap table from TCP/465 (spec §4.2).
type smtpDetector struct{ base }

func registerSMTP(s *appid.Subsystem) {
	api := s.API()
	d := &smtpDetector{}
	det := api.AddPort(appid.TransportTCP, smtpPort, false, d.validate, "SMTP", 0)
	d.base = base{api: api, det: det}
}

func (d *smtpDetector) validate(ctx context.Context, args appid.Args) appid.Verdict {
	p := args.Payload
	if len(p) < 4 {
		return d.inProcess(args)
	}
	payload := string(p[:min(500, len(p))])

	if isDigit(payload[0]) && isDigit(payload[1]) && isDigit(payload[2]) &&
		(payload[3] == ' ' || payload[3] == '-') {
		code, err := strconv.Atoi(payload[:3])
		if err != nil || code < 200 || code > 599 {
			return d.fail(args)
		}
		return d.success(args, "", "", nil)
	}

	upper := strings.ToUpper(payload[:min(20, len(payload))])
	for _, cmd := range smtpCommands {
		if strings.HasPrefix(upper, cmd) {
			return d.success(args, "", "", nil)
		}
	}

	if len(p) < 20 {
		return d.inProcess(args)
	}
	return d.fail(args)
}

