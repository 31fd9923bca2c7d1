// Package config loads modstage configuration with a layered precedence:
// embedded defaults, then the user config file, then environment variables.
package config

import (
	_ "embed"
	"os"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/modstage/modstage/pkg/errors"
	"github.com/modstage/modstage/pkg/paths"
)

//go:embed defaults.toml
var defaultConfig []byte

// EnvAPIKey is the environment variable holding the Nexus API key.
// It takes precedence over the config file.
const EnvAPIKey = "NEXUS_API_KEY"

// Config is the resolved modstage configuration.
type Config struct {
	// APIKey authenticates against the remote content API.
	APIKey string

	// Download tuning.
	Concurrency  int
	MaxRetries   int
	RetryDelayMS int

	// DeployMode is "link" or "copy".
	DeployMode string

	// ListenAddr is the dashboard listen address.
	ListenAddr string
}

// Load reads configuration from the embedded defaults, the user config
// file (if present), and the environment.
func Load(p paths.Paths) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigParse, "failed to load default config")
	}

	cfgPath := p.ConfigFilePath()
	if _, err := os.Stat(cfgPath); err == nil {
		if err := k.Load(file.Provider(cfgPath), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "failed to load config from %s", cfgPath)
		}
	}

	cfg := &Config{
		APIKey:       k.String("api_key"),
		Concurrency:  k.Int("download.concurrency"),
		MaxRetries:   k.Int("download.max_retries"),
		RetryDelayMS: k.Int("download.retry_delay_ms"),
		DeployMode:   k.String("deploy.mode"),
		ListenAddr:   k.String("web.listen"),
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.APIKey = key
	}

	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DeployMode != "link" && cfg.DeployMode != "copy" {
		return nil, errors.Newf(errors.ErrConfigParse, "invalid deploy.mode %q (want link or copy)", cfg.DeployMode)
	}

	return cfg, nil
}

// rawBytesProvider implements koanf.Provider for in-memory TOML bytes.
type rawBytesProvider struct {
	bytes []byte
}

func (r *rawBytesProvider) ReadBytes() ([]byte, error) {
	return r.bytes, nil
}

func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New(errors.ErrInternal, "rawBytesProvider does not support Read")
}
