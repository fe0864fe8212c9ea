// Package flow extracts the endpoint and payload information the appid
// orchestrator needs from a captured packet, grounded on the teacher's
// gopacket-based buildContext (internal/pkg/detector/detector.go).
package flow

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Transport mirrors the appid package's Transport enum without importing
// it, keeping this package a pure leaf.
type Transport int

const (
	TransportUnknown Transport = iota
	TransportTCP
	TransportUDP
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "TCP"
	case TransportUDP:
		return "UDP"
	default:
		return "unknown"
	}
}

// Endpoint is the (ip, port) pair extracted from one side of a packet.
type Endpoint struct {
	IP   string
	Port uint16
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.IP, e.Port) }

// Packet is the per-packet view handed to the orchestrator: source and
// destination endpoints, transport, and the application payload bytes.
type Packet struct {
	Src, Dst  Endpoint
	Transport Transport
	Payload   []byte

	raw gopacket.Packet
}

// Raw returns the underlying gopacket.Packet, for collaborators that need
// deeper layer access than the extracted fields provide.
func (p Packet) Raw() gopacket.Packet { return p.raw }

// FromGopacket extracts a Packet view from a decoded gopacket.Packet,
// following the same layer walk as the teacher's buildContext: network
// layer for IPs, transport layer for ports, then application layer (or
// transport payload as a fallback) for the byte payload.
func FromGopacket(pkt gopacket.Packet) (Packet, bool) {
	var p Packet

	netLayer := pkt.NetworkLayer()
	if netLayer == nil {
		return Packet{}, false
	}
	switch net := netLayer.(type) {
	case *layers.IPv4:
		p.Src.IP = net.SrcIP.String()
		p.Dst.IP = net.DstIP.String()
	case *layers.IPv6:
		p.Src.IP = net.SrcIP.String()
		p.Dst.IP = net.DstIP.String()
	default:
		return Packet{}, false
	}

	transLayer := pkt.TransportLayer()
	if transLayer == nil {
		return Packet{}, false
	}
	switch trans := transLayer.(type) {
	case *layers.TCP:
		p.Transport = TransportTCP
		p.Src.Port = uint16(trans.SrcPort)
		p.Dst.Port = uint16(trans.DstPort)
	case *layers.UDP:
		p.Transport = TransportUDP
		p.Src.Port = uint16(trans.SrcPort)
		p.Dst.Port = uint16(trans.DstPort)
	default:
		return Packet{}, false
	}

	if appLayer := pkt.ApplicationLayer(); appLayer != nil {
		p.Payload = appLayer.LayerContents()
	} else {
		p.Payload = transLayer.LayerPayload()
	}

	p.raw = pkt
	return p, true
}
