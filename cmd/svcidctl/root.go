package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lippycat/svcid/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "svcidctl",
	Short: "svcidctl inspects the service identification core",
	Long:  `svcidctl builds a Subsystem from the same tunables a real worker uses and reports its static state: registered ports, patterns, and host-tracker cache occupancy.`,
}

// Execute runs the root command, matching the teacher's cmd.Execute entry
// point convention.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.svcidctl.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable verbose per-packet tracing")
	rootCmd.PersistentFlags().Int("detection-level", 0, "0 = plain, 1 = SSL->cleartext remap")
	rootCmd.PersistentFlags().Bool("rna-mode", false, "accept add_host_ip side-channel data")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("detection_level", rootCmd.PersistentFlags().Lookup("detection-level"))
	_ = viper.BindPFlag("rna_mode", rootCmd.PersistentFlags().Lookup("rna-mode"))

	rootCmd.AddCommand(dumpPortsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".svcidctl")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}

	logging.SetDebug(viper.GetBool("debug"))
}
