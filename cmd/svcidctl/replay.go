package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lippycat/svcid/internal/appid"
	"github.com/lippycat/svcid/internal/appid/hosttrack"
	"github.com/lippycat/svcid/pkg/flow"
)

var replayCmd = &cobra.Command{
	Use:   "replay <pcap-file>...",
	Short: "feed one or more capture files through a fresh Subsystem and report the verdicts",
	Long: `replay processes each capture file against its own Subsystem instance, mirroring
the per-worker-thread registry model (spec §9): every file gets a thread-local
port/pattern/detector registry, and all files share one host-tracker cache so a
service seen in one capture can still resolve VALID for another.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	hosts := hosttrack.NewCache[*appid.Detector]()

	g, ctx := errgroup.WithContext(cmd.Context())
	results := make([]fileResult, len(args))

	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			r, err := replayFile(ctx, hosts, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		fmt.Fprintf(os.Stdout, "%s: %d packets\n", r.path, r.packets)
		for _, v := range sortedVerdicts(r.verdicts) {
			fmt.Fprintf(os.Stdout, "  %-14s %d\n", v.name, v.count)
		}
	}
	return nil
}

type fileResult struct {
	path     string
	packets  int
	verdicts map[appid.Verdict]int
}

// flowKey is the unordered 4-tuple identifying a bidirectional flow, so both
// packet directions of the same conversation share one Flow context.
type flowKey struct {
	ipA, ipB     string
	portA, portB uint16
	transport    flow.Transport
}

func newFlowKey(pkt flow.Packet) (flowKey, appid.Direction) {
	a, b := pkt.Src, pkt.Dst
	dir := appid.DirInitiator
	if a.IP > b.IP || (a.IP == b.IP && a.Port > b.Port) {
		a, b = b, a
		dir = appid.DirResponder
	}
	return flowKey{ipA: a.IP, ipB: b.IP, portA: a.Port, portB: b.Port, transport: pkt.Transport}, dir
}

func replayFile(ctx context.Context, hosts *hosttrack.Cache[*appid.Detector], path string) (fileResult, error) {
	sub := appid.New(appid.DefaultConfig(), hosts, prometheus.NewRegistry())
	if err := sub.Init(); err != nil {
		return fileResult{}, fmt.Errorf("init subsystem: %w", err)
	}
	if err := sub.FinalizePatterns(); err != nil {
		return fileResult{}, fmt.Errorf("finalize patterns: %w", err)
	}
	defer sub.Shutdown()

	f, err := os.Open(path)
	if err != nil {
		return fileResult{}, err
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return fileResult{}, fmt.Errorf("open pcap: %w", err)
	}

	flows := make(map[flowKey]*appid.Flow)
	res := fileResult{path: path, verdicts: make(map[appid.Verdict]int)}

	src := gopacket.NewPacketSource(reader, reader.LinkType())
	for pkt := range src.Packets() {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		view, ok := flow.FromGopacket(pkt)
		if !ok {
			continue
		}
		key, dir := newFlowKey(view)
		fl, ok := flows[key]
		if !ok {
			fl = appid.NewFlow()
			flows[key] = fl
		}

		verdict := sub.Discover(ctx, view, dir, fl)
		res.packets++
		res.verdicts[verdict]++
	}
	return res, nil
}

type verdictCount struct {
	name  string
	count int
}

func sortedVerdicts(m map[appid.Verdict]int) []verdictCount {
	out := make([]verdictCount, 0, len(m))
	for v, c := range m {
		out = append(out, verdictCount{name: v.String(), count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
