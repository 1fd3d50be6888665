package testsupport

import (
	"path/filepath"
	"testing"

	"camliup/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Upload.ResumeOnStart = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return builder.cfg
}

// WithServer points the config at a blob server address.
func WithServer(address, password string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.Address = address
		b.cfg.Server.Password = password
	}
}

// WithBatchBytes overrides the transfer request threshold.
func WithBatchBytes(n int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.BatchBytes = n
	}
}

// WithResumeOnStart toggles journal replay resumption.
func WithResumeOnStart(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.ResumeOnStart = enabled
	}
}

// WithoutAPI disables the HTTP status API.
func WithoutAPI() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIBind = ""
	}
}
