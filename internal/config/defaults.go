package config

const (
	defaultLogDir          = "~/.local/share/georeg/logs"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
	defaultServerSeverity  = "warning"
	defaultConnectTimeout  = 30
	defaultStartupAttempts = 10
	defaultInFlight        = 10
	defaultMaxAttempts     = 3
	defaultAttemptTimeout  = 30
	defaultMinFreeGiB      = 1

	// MaxInFlight is the hard ceiling for the frames-in-flight window.
	MaxInFlight = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: defaultLogDir,
		},
		Server: Server{
			LogSeverity:     defaultServerSeverity,
			ConnectTimeout:  defaultConnectTimeout,
			StartupAttempts: defaultStartupAttempts,
		},
		Registration: Registration{
			InFlight:       defaultInFlight,
			MaxAttempts:    defaultMaxAttempts,
			AttemptTimeout: defaultAttemptTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Preflight: Preflight{
			MinFreeGiB: defaultMinFreeGiB,
		},
	}
}
