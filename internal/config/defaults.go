package config

const (
	defaultConfigPath    = "~/.config/camliup/config.toml"
	defaultServerAddress = "localhost:3179"
	defaultBatchBytes    = 1 << 20
	defaultDataDir       = "~/.local/share/camliup"
	defaultAPIBind       = "127.0.0.1:3180"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Address: defaultServerAddress,
		},
		Upload: Upload{
			BatchBytes:    defaultBatchBytes,
			ResumeOnStart: true,
		},
		Paths: Paths{
			DataDir: defaultDataDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
