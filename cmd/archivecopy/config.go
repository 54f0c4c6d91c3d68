package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/containerd/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// envConfigFile overrides the default config file location.
const envConfigFile = "ARCHIVECOPY_TOML"

// Config is the on-disk configuration. Flags given on the command line
// take precedence over it.
type Config struct {
	Debug      bool     `toml:"debug"`
	Host       string   `toml:"host"`
	APIVersion string   `toml:"api_version"`
	Timeout    duration `toml:"timeout"`
	TLSVerify  bool     `toml:"tlsverify"`
	TLSCACert  string   `toml:"tlscacert"`
	TLSCert    string   `toml:"tlscert"`
	TLSKey     string   `toml:"tlskey"`

	Copy CopyConfig `toml:"copy"`
}

// CopyConfig holds the defaults of the cp command.
type CopyConfig struct {
	Archive            bool     `toml:"archive"`
	Gzip               bool     `toml:"gzip"`
	CopyUIDGID         bool     `toml:"copy_uidgid"`
	OverwriteDirNonDir bool     `toml:"overwrite_dir_non_dir"`
	Exclude            []string `toml:"exclude"`
	Parallel           int      `toml:"parallel"`
}

// duration is a time.Duration written as a string such as "30s".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Copy: CopyConfig{
			Gzip:     true,
			Parallel: 4,
		},
	}
}

// defaultConfigFile returns $ARCHIVECOPY_TOML, or archivecopy.toml in the
// user's config directory.
func defaultConfigFile() string {
	if v, ok := os.LookupEnv(envConfigFile); ok {
		return v
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "archivecopy", "archivecopy.toml")
}

// loadConfig reads the config file at path over the defaults. A missing file
// yields the defaults; unknown keys are rejected to catch typos.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.L.WithError(err).Debugf("Not loading config from %q", path)
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	log.L.Debugf("Loading config from %q", path)
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to load config from %q", path)
	}
	if cfg.Copy.Parallel < 1 {
		return nil, errors.Errorf("invalid config %q: copy.parallel must be at least 1, got %d", path, cfg.Copy.Parallel)
	}
	if cfg.Timeout < 0 {
		return nil, errors.Errorf("invalid config %q: timeout must not be negative, got %s", path, time.Duration(cfg.Timeout))
	}
	log.L.Debugf("Loaded config %+v", cfg)
	return cfg, nil
}
