package appid

import (
	"context"

	"github.com/lippycat/svcid/internal/appid/flowctx"
	"github.com/lippycat/svcid/internal/appid/hosttrack"
	"github.com/lippycat/svcid/internal/appid/pattern"
	"github.com/lippycat/svcid/internal/appid/portreg"
	"github.com/lippycat/svcid/pkg/flow"
)

// Discover is the per-packet entry point (spec §4.5). It resolves the
// packet's HostEntry, adopts or extends a candidate list, runs every
// current candidate, and feeds any terminal verdict back into the
// host-tracker's hysteresis state machine.
func (s *Subsystem) Discover(ctx context.Context, pkt flow.Packet, direction Direction, f *Flow) Verdict {
	if f == nil {
		return Invalid
	}
	transport := transportFromFlow(pkt.Transport)

	f.Lock()
	if !f.ServiceSet {
		if direction == DirResponder {
			f.ServiceIP, f.ServicePort = pkt.Src.IP, pkt.Src.Port
		} else {
			f.ServiceIP, f.ServicePort = pkt.Dst.IP, pkt.Dst.Port
		}
		f.ServiceSet = true
	}
	if pkt.Src.IP == f.ServiceIP {
		f.ClientIP = pkt.Dst.IP
	} else {
		f.ClientIP = pkt.Src.IP
	}
	serviceIP, servicePort := f.ServiceIP, f.ServicePort
	f.Unlock()

	host := s.hosts.GetOrCreate(s.hostKey(serviceIP, transport, servicePort))
	f.Lock()
	f.HostEntry = host
	f.Unlock()

	if !f.Chose() {
		s.pickChosenFromHost(f, host)
	}

	args := Args{Payload: pkt.Payload, Direction: direction, Flow: f, Packet: pkt}

	var verdict Verdict
	if f.Chose() {
		verdict = f.Chosen.Validate(ctx, args)
		if verdict == NotCompatible {
			f.SetFlag(flowctx.FlagGotIncompatible)
		}
	} else {
		s.extendCandidates(f, host, direction, pkt, transport, servicePort)
		verdict = s.runCandidates(ctx, f, host, args)
	}

	if verdict != InProcess && verdict != Success {
		if verdict == NotCompatible {
			f.SetFlag(flowctx.FlagGotIncompatible)
		}
		if f.HasFlag(flowctx.FlagGotIncompatible) {
			host.RecordInvalidClient(f.ClientIP)
		}
		host.HandleFailure(f.ClientIP, false)
	}

	if state := host.StateNow(); state == hosttrack.StateBruteForce || state == hosttrack.StateValid {
		host.FreePatternMatches()
	}

	s.metrics.Verdicts.WithLabelValues(protocolLabel(f), verdict.String()).Inc()
	s.metrics.LiveHostEntries.Set(float64(s.hosts.Size()))
	return verdict
}

// pickChosenFromHost implements spec §4.5 step 2: adopt the host's known
// service directly out of VALID, or claim the next brute-force candidate
// when nobody else is mid-walk on this entry.
func (s *Subsystem) pickChosenFromHost(f *Flow, host *hosttrack.Entry[*Detector]) {
	switch host.StateNow() {
	case hosttrack.StateValid:
		if svc, ok := host.Svc(); ok && svc.Active() {
			f.SetChosen(svc)
		}
	case hosttrack.StateBruteForce:
		f.Lock()
		tried := f.CandidatesTried
		f.Unlock()
		if tried == 0 && !host.IsSearching() {
			last, hasLast := host.Svc()
			if d, ok := s.detectors.nextActive(last, hasLast); ok {
				f.SetChosen(d)
			}
		}
	}
}

func containsDetector(list []*Detector, d *Detector) bool {
	for _, c := range list {
		if c == d {
			return true
		}
	}
	return false
}

// extendCandidates implements spec §4.5 step 4: allocate the candidate
// list on first touch (claiming or preempting the HostEntry's search
// slot), then pull detectors from next_service until MAX_CANDIDATES or a
// stop condition is reached.
func (s *Subsystem) extendCandidates(f *Flow, host *hosttrack.Entry[*Detector], direction Direction, pkt flow.Packet, transport Transport, servicePort uint16) {
	f.Lock()
	firstTime := f.Candidates == nil
	if firstTime {
		f.Candidates = []*Detector{}
	}
	f.Unlock()

	if firstTime {
		if host.TryBeginSearch() {
			host.Reset()
		}
	}

	for {
		f.Lock()
		tried := f.CandidatesTried
		f.Unlock()
		if tried >= flowctx.MaxCandidates {
			break
		}

		d, ok := s.nextService(host, f, direction, pkt, transport, servicePort)
		if !ok {
			break
		}

		f.Lock()
		already := containsDetector(f.Candidates, d)
		if !already {
			f.Candidates = append(f.Candidates, d)
			f.CandidatesTried++
		}
		f.Unlock()
		if already {
			break
		}
	}
}

// nextService implements spec §4.5.1.
func (s *Subsystem) nextService(host *hosttrack.Entry[*Detector], f *Flow, direction Direction, pkt flow.Packet, transport Transport, servicePort uint16) (*Detector, bool) {
	var zero *Detector

	state := host.StateNow()
	if state == hosttrack.StateNew {
		host.EnterPort()
		state = hosttrack.StatePort
	}

	if state == hosttrack.StatePort {
		last, hasLast := host.Svc()
		if d, ok := s.ports.NextByPort(portregTransport(transport), servicePort, last, hasLast, s.cfg.DetectionLevel == DetectionLevelTLS); ok {
			host.SetSvc(d)
			return d, true
		}
		host.ExhaustPort()
		state = hosttrack.StatePattern
	}

	if state != hosttrack.StatePattern {
		return zero, false
	}

	if direction == DirInitiator {
		if f.HasFlag(flowctx.FlagTriedReverseService) {
			return zero, false
		}
		f.SetFlag(flowctx.FlagTriedReverseService)

		reverseHost := s.hosts.GetOrCreate(s.hostKey(f.ClientIP, transport, pkt.Src.Port))
		if svc, ok := reverseHost.Svc(); ok && reverseHost.StateNow() == hosttrack.StateValid {
			return svc, true
		}
		if d, ok := s.ports.NextByPort(portreg.TransportUDPReversed, pkt.Src.Port, zero, false, false); ok {
			f.SetFlag(flowctx.FlagUDPReversed)
			return d, true
		}
		results, err := s.patternIndexFor(transport).FindAll(pkt.Payload)
		if err != nil {
			s.log.Warn("pattern scan failed during reverse discovery", "error", err)
			return zero, false
		}
		if len(results) == 0 {
			return zero, false
		}
		return results[0].Owner, true
	}

	// Responder direction.
	if !host.HasPatternMatches() {
		results, err := s.patternIndexFor(transport).FindAll(pkt.Payload)
		if err != nil {
			s.log.Warn("pattern scan failed", "error", err)
		}
		matches := make([]hosttrack.PatternMatch[*Detector], len(results))
		for i, r := range results {
			matches[i] = hosttrack.PatternMatch[*Detector]{Detector: r.Owner, HitCount: r.HitCount, PatternSize: r.PatternSize}
		}
		host.SetPatternMatches(matches)
	}

	d, ok := host.NextPatternMatch(func(d *Detector) bool { return d.Active() })
	if ok {
		return d, true
	}
	host.ExhaustPattern()
	return zero, false
}

func (s *Subsystem) patternIndexFor(transport Transport) *pattern.Index[*Detector] {
	if transport == TransportTCP {
		return s.patternsTCP
	}
	return s.patternsUDP
}

// runCandidates implements spec §4.5 steps 5-7: invoke every current
// candidate, prune the list by verdict, and decide whether the packet's
// terminal outcome is IN_PROCESS, SUCCESS, or a forced NOMATCH.
func (s *Subsystem) runCandidates(ctx context.Context, f *Flow, host *hosttrack.Entry[*Detector], args Args) Verdict {
	f.Lock()
	candidates := append([]*Detector(nil), f.Candidates...)
	tried := f.CandidatesTried
	f.Unlock()

	remaining := make([]*Detector, 0, len(candidates))
	for _, d := range candidates {
		v := d.Validate(ctx, args)
		switch v {
		case Success:
			if !d.Active() {
				continue
			}
			s.commitSuccess(f, host, d, f.Vendor, f.Version, f.Subtypes, len(candidates))
			return Success
		case InProcess:
			remaining = append(remaining, d)
		default:
			if v == NotCompatible {
				f.SetFlag(flowctx.FlagGotIncompatible)
			}
		}
	}

	f.Lock()
	f.Candidates = remaining
	f.Unlock()

	if len(remaining) == 0 && (tried >= flowctx.MaxCandidates || host.StateNow() == hosttrack.StateBruteForce) {
		return NoMatch
	}
	if args.Direction == DirResponder {
		return NoMatch
	}
	return InProcess
}

// commitSuccess is the shared success path used both by the plain
// candidate-walk commit (spec §4.5 step 5) and by the down-call
// AddService handler (spec §4.6), so a detector that reports success via
// either surface drives identical state.
func (s *Subsystem) commitSuccess(f *Flow, host *hosttrack.Entry[*Detector], d *Detector, vendor, version string, subtypes []string, candidateDepth int) {
	f.Lock()
	f.Vendor, f.Version, f.Subtypes = vendor, version, subtypes
	f.Unlock()

	f.SetChosen(d)
	host.MarkSuccess(d)
	host.EndSearch()
	f.SetFlag(flowctx.FlagServiceDetected)
	s.metrics.CandidateDepth.Observe(float64(candidateDepth))
}

// ensureHostEntry attaches f to the HostEntry for the flow's currently
// resolved service endpoint, creating it if necessary (spec §4.6
// in_process / incompatible_data / fail_service "ensure HostEntry exists").
func (s *Subsystem) ensureHostEntry(f *Flow, transport Transport) *hosttrack.Entry[*Detector] {
	f.Lock()
	ip, port, have := f.ServiceIP, f.ServicePort, f.ServiceSet
	existing := f.HostEntry
	f.Unlock()
	if existing != nil {
		return existing
	}
	if !have {
		return nil
	}
	host := s.hosts.GetOrCreate(s.hostKey(ip, transport, port))
	f.Lock()
	f.HostEntry = host
	f.Unlock()
	return host
}

// swallowGuard implements spec §4.6's exact guard: while a candidate walk
// is still in progress, incompatible_data/fail_service must not disturb
// host-tracker state; they swallow silently and let the walk's own
// eventual verdict drive the real transition.
func (s *Subsystem) swallowGuard(f *Flow) bool {
	f.Lock()
	defer f.Unlock()
	if f.Chose() {
		return false
	}
	if len(f.Candidates) == 0 {
		return false
	}
	if f.HostEntry == nil {
		return false
	}
	if !(len(f.Candidates) > 0 || f.CandidatesTried < flowctx.MaxCandidates) {
		return false
	}
	return f.HostEntry.StateNow() != hosttrack.StateBruteForce
}

func (s *Subsystem) addService(f *Flow, pkt PacketView, dir Direction, d *Detector, vendor, version string, subtypes []string) Verdict {
	if !d.Active() {
		return Success
	}

	f.Lock()
	reversed := f.HasFlag(flowctx.FlagUDPReversed)
	f.Unlock()

	var ep Endpoint
	switch {
	case dir == DirResponder:
		ep = pkt.Src
	case reversed:
		ep = pkt.Src
	default:
		ep = pkt.Dst
	}

	host := s.hosts.GetOrCreate(s.hostKey(ep.IP, pkt.Transport, ep.Port))
	f.Lock()
	f.HostEntry = host
	f.ServiceIP, f.ServicePort, f.ServiceSet = ep.IP, ep.Port, true
	candidateDepth := len(f.Candidates)
	f.Unlock()

	s.commitSuccess(f, host, d, vendor, version, subtypes, candidateDepth)
	return Success
}

func (s *Subsystem) inProcess(f *Flow, pkt PacketView, dir Direction, d *Detector) Verdict {
	if dir == DirInitiator {
		return InProcess
	}
	if f.HasFlag(flowctx.FlagIgnoreHost) || f.HasFlag(flowctx.FlagUDPReversed) {
		return InProcess
	}
	f.Lock()
	if !f.ServiceSet {
		f.ServiceIP, f.ServicePort, f.ServiceSet = pkt.Src.IP, pkt.Src.Port, true
	}
	f.Unlock()
	s.ensureHostEntry(f, pkt.Transport)
	return InProcess
}

func (s *Subsystem) incompatibleData(f *Flow, pkt PacketView, dir Direction, d *Detector, flowDataKey uint32) Verdict {
	f.FlowDataRemove(flowDataKey)
	if s.swallowGuard(f) {
		return Success
	}
	if dir == DirInitiator {
		f.SetFlag(flowctx.FlagIncompatible)
		return Success
	}
	f.SetFlag(flowctx.FlagServiceDetected)
	f.ClearFlag(flowctx.FlagContinue)
	f.ClearChosen()
	s.ensureHostEntry(f, pkt.Transport)
	return NotCompatible
}

func (s *Subsystem) failService(f *Flow, pkt PacketView, dir Direction, d *Detector, flowDataKey uint32) Verdict {
	f.FlowDataRemove(flowDataKey)
	if s.swallowGuard(f) {
		return Success
	}
	if dir == DirInitiator {
		return Success
	}
	f.SetFlag(flowctx.FlagServiceDetected)
	f.ClearFlag(flowctx.FlagContinue)
	f.ClearChosen()
	s.ensureHostEntry(f, pkt.Transport)
	return Fail
}

// FailInProcess tears down a flow that never committed a detector (spec
// §4.7): the flow's inconclusive result costs the HostEntry a fixed
// invalid-client weight, and the failure handler runs with the synthetic
// timeout signal.
func (s *Subsystem) FailInProcess(f *Flow) {
	if f == nil || f.Chose() {
		return
	}
	if f.HasFlag(flowctx.FlagUDPReversed) {
		return
	}
	f.Lock()
	host := f.HostEntry
	clientIP := f.ClientIP
	f.Unlock()
	if host == nil {
		return
	}
	host.AddInconclusiveWeight()
	host.HandleFailure(clientIP, true)
	f.FreeAll()
}

func transportFromFlow(t flow.Transport) Transport {
	if t == flow.TransportTCP {
		return TransportTCP
	}
	return TransportUDP
}

func protocolLabel(f *Flow) string {
	if f.Chose() {
		return f.Chosen.Name
	}
	return "unknown"
}
