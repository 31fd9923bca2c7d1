package config

import (
	"os"
	"path/filepath"

	gotoml "github.com/pelletier/go-toml/v2"

	"github.com/modstage/modstage/pkg/errors"
)

// starterConfig mirrors the embedded defaults in a shape friendly to
// TOML marshalling for a user-editable starter file.
type starterConfig struct {
	APIKey   string `toml:"api_key" comment:"Nexus API key (or set NEXUS_API_KEY)"`
	Download struct {
		Concurrency  int `toml:"concurrency"`
		MaxRetries   int `toml:"max_retries"`
		RetryDelayMS int `toml:"retry_delay_ms"`
	} `toml:"download"`
	Deploy struct {
		Mode string `toml:"mode" comment:"link or copy"`
	} `toml:"deploy"`
	Web struct {
		Listen string `toml:"listen"`
	} `toml:"web"`
}

// WriteStarter writes a commented starter config file to path.
// It refuses to overwrite an existing file.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf(errors.ErrInvalidInput, "config file already exists: %s", path)
	}

	var sc starterConfig
	sc.Download.Concurrency = 3
	sc.Download.MaxRetries = 4
	sc.Download.RetryDelayMS = 1000
	sc.Deploy.Mode = "link"
	sc.Web.Listen = "127.0.0.1:8371"

	data, err := gotoml.Marshal(sc)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to marshal starter config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrLocalIO, "failed to create config directory")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, errors.ErrLocalIO, "failed to write config file")
	}
	return nil
}
