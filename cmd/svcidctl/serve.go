package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/lippycat/svcid/internal/logging"
	"github.com/lippycat/svcid/internal/metrics"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run an idle Subsystem and expose its Prometheus metrics over HTTP",
	Long: `serve builds a Subsystem the same way dump-ports and stats do, then blocks
serving /metrics so an operator can scrape the verdict/candidate-depth/host-count
collectors a live worker would expose (spec §6 ambient observability surface).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, registry, err := buildSubsystemWithRegistry()
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))

		log := logging.ForInstance(0)
		log.Info("serving metrics", "addr", serveAddr)

		srv := &http.Server{Addr: serveAddr, Handler: mux}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":9469", "address to serve /metrics on")
}
