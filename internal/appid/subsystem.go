package appid

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lippycat/svcid/internal/appid/hosttrack"
	"github.com/lippycat/svcid/internal/appid/pattern"
	"github.com/lippycat/svcid/internal/appid/portreg"
	"github.com/lippycat/svcid/internal/logging"
	"github.com/lippycat/svcid/internal/metrics"
)

// Subsystem is the explicit, non-global process state a worker thread binds
// to every operation (spec §9 "Global-process state maps to an explicit
// Subsystem value constructed at startup and passed into every operation.
// No hidden globals."). One Subsystem's registries (patterns, ports,
// detectors) are thread-local; only the host tracker is shared.
type Subsystem struct {
	cfg Config
	log *slog.Logger

	detectors *Table

	// ports is a single registry backing all three tables (TCP,
	// UDP-forward, UDP-reversed): spec §2 describes them as three tables
	// of one registry contract, which portreg.Registry already models.
	ports *portreg.Registry[*Detector]

	patternsTCP *pattern.Index[*Detector]
	patternsUDP *pattern.Index[*Detector]

	// hosts is the only structure shared across worker threads (spec §5,
	// §9): each Subsystem instance is thread-local but all instances in a
	// process are constructed to share the same *hosttrack.Cache.
	hosts *hosttrack.Cache[*Detector]

	metrics *metrics.Collectors
}

// New constructs a Subsystem. sharedHosts is the process-wide host-tracker
// cache every worker thread's Subsystem must share; registry is the
// Prometheus registerer metrics register against (pass a fresh
// prometheus.NewRegistry() per test to avoid collisions with other
// Subsystem instances).
func New(cfg Config, sharedHosts *hosttrack.Cache[*Detector], registry prometheus.Registerer) *Subsystem {
	return &Subsystem{
		cfg:         cfg,
		log:         logging.ForInstance(cfg.InstanceID),
		detectors:   NewTable(),
		ports:       portreg.New[*Detector](),
		patternsTCP: pattern.New[*Detector](),
		patternsUDP: pattern.New[*Detector](),
		hosts:       sharedHosts,
		metrics:     metrics.New(registry),
	}
}

// staticDetectorInit is the fixed, in-order list of protocol modules linked
// into every Subsystem (spec §4.3 "registration order... determined by the
// static list followed by dynamic load order"), grounded on the teacher's
// registry.go InitDefault() ordering.
var staticDetectorInit []func(*Subsystem)

// RegisterStatic appends constructor to the static registration list run by
// every Subsystem's Init(). Protocol packages call this from an init()
// function, mirroring the teacher's registry self-registration pattern.
func RegisterStatic(constructor func(*Subsystem)) {
	staticDetectorInit = append(staticDetectorInit, constructor)
}

// Init runs every statically-linked protocol module's registration
// constructor in order (spec §4.3). Dynamically loaded detectors are
// expected to call the same API object returned by API() after Init, so
// their registrations are naturally appended after the static ones.
func (s *Subsystem) Init() error {
	s.log.Info("initializing service identification subsystem",
		"detection_level", s.cfg.DetectionLevel, "static_modules", len(staticDetectorInit))
	for _, ctor := range staticDetectorInit {
		ctor(s)
	}
	return nil
}

// FinalizePatterns prepares both pattern indexes, sealing pattern
// registration (spec §4.1 "must be prepared exactly once before first
// query"). Detectors registered after this point via dynamic loading must
// trigger a fresh FinalizePatterns before their patterns take effect.
func (s *Subsystem) FinalizePatterns() error {
	if err := s.patternsTCP.Prepare(); err != nil {
		return fmt.Errorf("finalize TCP pattern index: %w", err)
	}
	if err := s.patternsUDP.Prepare(); err != nil {
		return fmt.Errorf("finalize UDP pattern index: %w", err)
	}
	s.log.Debug("pattern indexes finalized",
		"tcp_patterns", s.patternsTCP.Len(), "udp_patterns", s.patternsUDP.Len())
	return nil
}

// Shutdown releases the subsystem's detector table. The host tracker is not
// touched here: it is shared and outlives any single Subsystem.
func (s *Subsystem) Shutdown() {
	s.log.Info("shutting down service identification subsystem")
	s.detectors = NewTable()
}

// DumpPorts writes a human-readable listing of every port registration to w
// (spec §6 dump_ports, diagnostics only).
func (s *Subsystem) DumpPorts(w io.Writer) {
	s.ports.DumpPorts(func(transport portreg.Transport, port uint16, d *Detector) {
		fmt.Fprintf(w, "%-4s %-6d %s\n", transportLabel(transport), port, d.Name)
	})
}

// Stats is a snapshot of a Subsystem's static registration counts plus the
// shared host-tracker's occupancy, for operational diagnostics (spec §6
// dump_ports's sibling: nothing in spec.md names this, but a subsystem with
// no way to report its own size is not a complete tool).
type Stats struct {
	Detectors   int
	TCPPatterns int
	UDPPatterns int
	HostEntries int
}

// Stats reports the subsystem's current registration and cache counts.
func (s *Subsystem) Stats() Stats {
	return Stats{
		Detectors:   len(s.detectors.All()),
		TCPPatterns: s.patternsTCP.Len(),
		UDPPatterns: s.patternsUDP.Len(),
		HostEntries: s.hosts.Size(),
	}
}

func transportLabel(t portreg.Transport) string {
	switch t {
	case portreg.TransportTCP:
		return "tcp"
	case portreg.TransportUDPReversed:
		return "udp-rev"
	default:
		return "udp"
	}
}

func portregTransport(t Transport) portreg.Transport {
	if t == TransportTCP {
		return portreg.TransportTCP
	}
	return portreg.TransportUDP
}

// hostKey builds the host-tracker lookup key for (ip, transport, port),
// folding in the subsystem's configured detection level (spec §3 HostEntry
// "one per {server-IP, transport, port, detection-level}").
func (s *Subsystem) hostKey(ip string, transport Transport, port uint16) hosttrack.Key {
	return hosttrack.Key{IP: ip, Transport: int(transport), Port: port, Level: int(s.cfg.DetectionLevel)}
}
