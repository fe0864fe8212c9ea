package detectors

import (
	"context"

	"github.com/lippycat/svcid/internal/appid"
)

const dnsPort = 53

// dnsDetector validates the fixed 12-byte DNS header (spec Non-goals: no
// deep record parsing, just enough to commit a verdict), grounded on the
// teacher's DNSSignature header-field checks.
type dnsDetector struct{ base }

func registerDNS(s *appid.Subsystem) {
	api := s.API()
	d := &dnsDetector{}
	det := api.SetValidatorForAppID("DNS", d.validate, "DNS", 0)
	d.base = base{api: api, det: det}
	api.AddPort(appid.TransportUDP, dnsPort, false, d.validate, "DNS", 0)
	api.AddPort(appid.TransportTCP, dnsPort, false, d.validate, "DNS", 0)
}

func (d *dnsDetector) validate(ctx context.Context, args appid.Args) appid.Verdict {
	p := args.Payload
	if len(p) < 12 {
		return d.inProcess(args)
	}

	flags := uint16(p[2])<<8 | uint16(p[3])
	qr := (flags >> 15) & 0x01
	opcode := (flags >> 11) & 0x0F
	z := (flags >> 4) & 0x07
	rcode := flags & 0x0F

	qdcount := uint16(p[4])<<8 | uint16(p[5])
	ancount := uint16(p[6])<<8 | uint16(p[7])
	nscount := uint16(p[8])<<8 | uint16(p[9])
	arcount := uint16(p[10])<<8 | uint16(p[11])

	if z != 0 || opcode > 6 || rcode > 15 {
		return d.fail(args)
	}
	if qdcount == 0 && qr == 0 {
		return d.fail(args)
	}
	if qr == 0 && (ancount > 0 || nscount > 0) {
		return d.fail(args)
	}
	if uint32(qdcount)+uint32(ancount)+uint32(nscount)+uint32(arcount) > 200 {
		return d.fail(args)
	}

	return d.success(args, "", "", nil)
}

