// Package config loads server settings from a TOML file with sane defaults,
// letting environment variables override for container deployments.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddr string `toml:"listen_addr"`
	DBPath     string `toml:"db_path"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		DBPath:     "emitrack.db",
	}
}

// Load reads the TOML file at path over the defaults. A missing file is not
// an error; the defaults (plus environment overrides) apply. An empty path
// skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
			}
		}
	}

	if addr := os.Getenv("EMITRACK_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if db := os.Getenv("EMITRACK_DB_PATH"); db != "" {
		cfg.DBPath = db
	}
	return cfg, nil
}
