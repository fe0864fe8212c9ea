package detectors

import (
	"context"
	"testing"

	"github.com/lippycat/svcid/internal/appid"
	"github.com/stretchr/testify/assert"
)

func TestTelnetDetectorValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    appid.Verdict
	}{
		{"too short", []byte{0xFF}, appid.InProcess},
		{"valid IAC WILL ECHO", []byte{0xFF, 0xFB, 0x01}, appid.Success},
		{"valid IAC DO SUPPRESS-GA", []byte{0xFF, 0xFD, 0x03}, appid.Success},
		{"no IAC, long enough to reject", []byte("plain text with no telnet negotiation at all here, padded out past sixty-four bytes"), appid.Fail},
		{"no IAC, still short", []byte("hi!"), appid.InProcess},
		{"IAC with invalid command byte, long", append([]byte{0xFF, 0x10}, []byte("padding to push past the sixty-four byte short-payload threshold")...), appid.Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, fa := newArgs(tt.payload)
			d := &telnetDetector{base: base{api: fa, det: &appid.Detector{Name: "Telnet"}}}
			got := d.validate(context.Background(), args)
			assert.Equal(t, tt.want, got)
		})
	}
}
