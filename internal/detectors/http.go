package detectors

import (
	"bytes"
	"context"
	"strings"

	"github.com/lippycat/svcid/internal/appid"
)

const httpPort = 80

var httpMethods = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("PUT "), []byte("DELETE "),
	[]byte("HEAD "), []byte("OPTIONS "), []byte("PATCH "), []byte("TRACE "),
	[]byte("CONNECT "),
}

var httpStatusPrefixes = [][]byte{
	[]byte("HTTP/1.0 "), []byte("HTTP/1.1 "), []byte("HTTP/2.0 "), []byte("HTTP/2 "),
}

// httpDetector matches the request-line/status-line prefix, grounded on the
// teacher's HTTPSignature. Full header parsing is left to the pipeline
// stage that owns the flow once this core hands off a committed verdict.
type httpDetector struct{ base }

func registerHTTP(s *appid.Subsystem) {
	api := s.API()
	d := &httpDetector{}
	det := api.AddPort(appid.TransportTCP, httpPort, false, d.validate, "HTTP", appid.FlagAdditionalInfo)
	d.base = base{api: api, det: det}
}

func (d *httpDetector) validate(ctx context.Context, args appid.Args) appid.Verdict {
	p := args.Payload
	if len(p) < 16 {
		return d.inProcess(args)
	}

	for _, m := range httpMethods {
		if bytes.HasPrefix(p, m) {
			return d.checkLine(args, p)
		}
	}
	for _, s := range httpStatusPrefixes {
		if bytes.HasPrefix(p, s) {
			return d.checkLine(args, p)
		}
	}

	if len(p) < 64 {
		return d.inProcess(args)
	}
	return d.fail(args)
}

func (d *httpDetector) checkLine(args appid.Args, p []byte) appid.Verdict {
	end := bytes.Index(p, []byte("\r\n"))
	if end == -1 {
		if len(p) < 500 {
			return d.inProcess(args)
		}
		end = len(p)
	}
	if !strings.Contains(string(p[:end]), "HTTP/") {
		return d.fail(args)
	}
	return d.success(args, "", "", nil)
}

