package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dumpPortsCmd = &cobra.Command{
	Use:   "dump-ports",
	Short: "list every registered (transport, port) -> detector mapping",
	Long:  `dump-ports prints one line per port registration, in the format Subsystem.DumpPorts writes (spec §6 dump_ports).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := buildSubsystem()
		if err != nil {
			return err
		}
		defer sub.Shutdown()

		fmt.Fprintln(os.Stdout, "transport port  detector")
		sub.DumpPorts(os.Stdout)
		return nil
	},
}
