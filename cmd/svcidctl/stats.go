package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "report detector/pattern registration counts and host-tracker cache size",
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := buildSubsystem()
		if err != nil {
			return err
		}
		defer sub.Shutdown()

		st := sub.Stats()
		fmt.Printf("detectors:     %d\n", st.Detectors)
		fmt.Printf("tcp patterns:  %d\n", st.TCPPatterns)
		fmt.Printf("udp patterns:  %d\n", st.UDPPatterns)
		fmt.Printf("host entries:  %d\n", st.HostEntries)
		return nil
	},
}
