package detectors

import (
	"context"
	"testing"

	"github.com/lippycat/svcid/internal/appid"
	"github.com/stretchr/testify/assert"
)

func TestHTTPDetectorValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    appid.Verdict
	}{
		{"too short", []byte("GET /"), appid.InProcess},
		{"valid GET request", []byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"), appid.Success},
		{"valid response status line", []byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n"), appid.Success},
		{"method prefix but no HTTP/ marker, no CRLF yet", []byte("POST /submit-data-that-keeps-going-and-going"), appid.InProcess},
		{"not http, long enough to reject", []byte("this line has more than sixty-four bytes and no http marker anywhere in it at all"), appid.Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, fa := newArgs(tt.payload)
			d := &httpDetector{base: base{api: fa, det: &appid.Detector{Name: "HTTP"}}}
			got := d.validate(context.Background(), args)
			assert.Equal(t, tt.want, got)
		})
	}
}
