package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/lippycat/svcid/internal/appid"
	"github.com/lippycat/svcid/internal/appid/hosttrack"

	// blank import so every built-in collaborator's init() registers itself
	// against appid.RegisterStatic before Subsystem.Init() runs.
	_ "github.com/lippycat/svcid/internal/detectors"
)

// buildSubsystem constructs a Subsystem from the process's viper config and
// runs it through the same Init/FinalizePatterns sequence a real capture
// pipeline would, so diagnostics commands see exactly the state a live
// worker would.
func buildSubsystem() (*appid.Subsystem, error) {
	sub, _, err := buildSubsystemWithRegistry()
	return sub, err
}

// buildSubsystemWithRegistry is buildSubsystem plus the Prometheus registry
// backing it, for the serve command's /metrics endpoint.
func buildSubsystemWithRegistry() (*appid.Subsystem, *prometheus.Registry, error) {
	cfg := appid.LoadConfig(viper.GetViper())
	hosts := hosttrack.NewCache[*appid.Detector]()
	registry := prometheus.NewRegistry()
	sub := appid.New(cfg, hosts, registry)

	if err := sub.Init(); err != nil {
		return nil, nil, fmt.Errorf("init subsystem: %w", err)
	}
	if err := sub.FinalizePatterns(); err != nil {
		return nil, nil, fmt.Errorf("finalize patterns: %w", err)
	}
	return sub, registry, nil
}
