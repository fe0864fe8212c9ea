package appid

import "github.com/spf13/viper"

// Config holds the tunables recognized by the subsystem (spec §6). Every
// field here is a config key a caller can also set directly, since the core
// itself never touches viper — only the CLI's config loader does.
type Config struct {
	// InstanceID identifies the worker thread for logging.
	InstanceID int
	// Debug is loaded from the `debug` key. The Subsystem does not read it;
	// the CLI applies the same key through logging.SetDebug, which lowers
	// the log level to debug.
	Debug bool
	// DetectionLevel is 0 (plain) or 1 (SSL->cleartext remap enabled).
	DetectionLevel DetectionLevel
	// DebugPort is loaded from the `debug_port` key (SPEC_FULL §3
	// debug_port). Nothing in the Subsystem or the logger reads it, so it
	// does not filter any log output.
	DebugPort uint16
	// RNAMode gates add_host_ip: only a subsystem running as a passive
	// host-discovery worker accepts host-info side-channel data (spec §6
	// "add_host_ip ... requires RNA mode").
	RNAMode bool
}

// DefaultConfig returns the zero-value tunables: instance 0, debug off,
// plain detection level, tracing every port.
func DefaultConfig() Config {
	return Config{}
}

// LoadConfig reads the subsystem's tunables from v, following the same
// AutomaticEnv + explicit-key convention as the teacher's cmd.initConfig.
// Keys not present in v keep their DefaultConfig value.
func LoadConfig(v *viper.Viper) Config {
	cfg := DefaultConfig()
	if v == nil {
		return cfg
	}
	v.SetDefault("instance_id", cfg.InstanceID)
	v.SetDefault("debug", cfg.Debug)
	v.SetDefault("detection_level", int(cfg.DetectionLevel))
	v.SetDefault("debug_port", cfg.DebugPort)
	v.SetDefault("rna_mode", cfg.RNAMode)

	cfg.InstanceID = v.GetInt("instance_id")
	cfg.Debug = v.GetBool("debug")
	if v.GetInt("detection_level") != 0 {
		cfg.DetectionLevel = DetectionLevelTLS
	}
	cfg.DebugPort = uint16(v.GetUint("debug_port"))
	cfg.RNAMode = v.GetBool("rna_mode")
	return cfg
}
