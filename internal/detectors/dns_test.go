package detectors

import (
	"context"
	"testing"

	"github.com/lippycat/svcid/internal/appid"
	"github.com/stretchr/testify/assert"
)

func dnsHeader(flags uint16, qd, an, ns, ar uint16) []byte {
	b := make([]byte, 12)
	b[0], b[1] = 0x12, 0x34
	b[2], b[3] = byte(flags>>8), byte(flags)
	b[4], b[5] = byte(qd>>8), byte(qd)
	b[6], b[7] = byte(an>>8), byte(an)
	b[8], b[9] = byte(ns>>8), byte(ns)
	b[10], b[11] = byte(ar>>8), byte(ar)
	return b
}

func TestDNSDetectorValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    appid.Verdict
	}{
		{"too short", []byte{0x00, 0x01}, appid.InProcess},
		{"valid query", dnsHeader(0x0100, 1, 0, 0, 0), appid.Success},
		{"valid response", dnsHeader(0x8180, 1, 1, 0, 0), appid.Success},
		{"nonzero z bit", dnsHeader(0x0110, 1, 0, 0, 0), appid.Fail},
		{"query with answers", dnsHeader(0x0000, 1, 1, 0, 0), appid.Fail},
		{"no questions no response bit", dnsHeader(0x0000, 0, 0, 0, 0), appid.Fail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, fa := newArgs(tt.payload)
			d := &dnsDetector{base: base{api: fa, det: &appid.Detector{Name: "DNS"}}}
			got := d.validate(context.Background(), args)
			assert.Equal(t, tt.want, got)
		})
	}
}
