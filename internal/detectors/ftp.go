package detectors

import (
	"context"
	"strconv"
	"strings"

	"github.com/lippycat/svcid/internal/appid"
)

const ftpPort = 21

var ftpCommands = []string{
	"USER ", "PASS ", "ACCT ", "CWD ", "CDUP", "SMNT ",
	"QUIT", "REIN", "PORT ", "PASV", "TYPE ", "STRU ",
	"MODE ", "RETR ", "STOR ", "STOU ", "APPE ", "ALLO ",
	"REST ", "RNFR ", "RNTO ", "ABOR", "DELE ", "RMD ",
	"MKD ", "PWD", "LIST", "NLST ", "SITE ", "SYST",
	"STAT ", "HELP", "NOOP", "FEAT", "OPTS ", "AUTH ",
	"PBSZ ", "PROT ", "EPSV", "EPRT ",
}

// ftpDetector recognizes both the 3-digit response codes and the fixed
// command vocabulary of the control channel, grounded on the teacher's
// FTPSignature. Its TCP/21 registration also seeds the Port Registry's FTP
// fast path (spec §4.2 supplement).
type ftpDetector struct{ base }

func registerFTP(s *appid.Subsystem) {
	api := s.API()
	d := &ftpDetector{}
	det := api.AddPort(appid.TransportTCP, ftpPort, false, d.validate, "FTP", 0)
	d.base = base{api: api, det: det}
}

func (d *ftpDetector) validate(ctx context.Context, args appid.Args) appid.Verdict {
	p := args.Payload
	if len(p) < 4 {
		return d.inProcess(args)
	}
	payload := string(p[:min(500, len(p))])

	if isDigit(payload[0]) && isDigit(payload[1]) && isDigit(payload[2]) &&
		(payload[3] == ' ' || payload[3] == '-') {
		code, err := strconv.Atoi(payload[:3])
		if err != nil || code < 100 || code > 599 {
			return d.fail(args)
		}
		return d.success(args, "", "", nil)
	}

	upper := strings.ToUpper(payload[:min(10, len(payload))])
	for _, cmd := range ftpCommands {
		if strings.HasPrefix(upper, cmd) {
			return d.success(args, "", "", nil)
		}
	}

	if len(p) < 20 {
		return d.inProcess(args)
	}
	return d.fail(args)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

