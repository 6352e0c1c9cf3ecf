package config

import "flag"

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagWorkers     = flag.Int("workers", 0, "Number of concurrent decode workers")
	flagCompression = flag.String("compression", "", "Tile compression: auto, gzip, zlib, deflate, none")
	flagNoCache     = flag.Bool("no-cache", false, "Disable the decoded tile cache")
	flagMetricsOut  = flag.String("metrics-out", "", "Write decode metrics to this file")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag command-line arguments.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagWorkers > 0 {
		cfg.Batch.Workers = *flagWorkers
	}
	if *flagCompression != "" {
		cfg.Decoder.Compression = *flagCompression
	}
	if *flagNoCache {
		cfg.Cache.Enabled = false
	}
	if *flagMetricsOut != "" {
		cfg.Metrics.Output = *flagMetricsOut
	}
}
