package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces overrides, e.g. CAMLIUP_SERVER.
const envPrefix = "camliup"

type envOverrides struct {
	Server   string `envconfig:"SERVER"`
	Password string `envconfig:"PASSWORD"`
	DataDir  string `envconfig:"DATA_DIR"`
	APIToken string `envconfig:"API_TOKEN"`
	LogLevel string `envconfig:"LOG_LEVEL"`
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("read environment overrides: %w", err)
	}
	if v := strings.TrimSpace(env.Server); v != "" {
		c.Server.Address = v
	}
	if env.Password != "" {
		c.Server.Password = env.Password
	}
	if v := strings.TrimSpace(env.DataDir); v != "" {
		c.Paths.DataDir = v
	}
	if env.APIToken != "" {
		c.Paths.APIToken = env.APIToken
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}
