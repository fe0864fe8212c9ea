package detectors

import (
	"context"
	"testing"

	"github.com/lippycat/svcid/internal/appid"
	"github.com/stretchr/testify/assert"
)

func TestSSHDetectorValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    appid.Verdict
	}{
		{"too short", []byte("SS"), appid.InProcess},
		{"valid openssh banner", []byte("SSH-2.0-OpenSSH_9.6\r\n"), appid.Success},
		{"valid banner with comment", []byte("SSH-2.0-dropbear_2022.83 foo\r\n"), appid.Success},
		{"not ssh prefix", []byte("HTTP-2.0-nope\r\n"), appid.Fail},
		{"bad protocol version", []byte("SSH-3.0-whatever\r\n"), appid.Fail},
		{"no terminator, still short", []byte("SSH-2.0-partial"), appid.InProcess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, fa := newArgs(tt.payload)
			d := &sshDetector{base: base{api: fa, det: &appid.Detector{Name: "SSH"}}}
			got := d.validate(context.Background(), args)
			assert.Equal(t, tt.want, got)
		})
	}
}
