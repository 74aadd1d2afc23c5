package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// databaseConfig is one entry of the import_databases config list: a path
// plus an optional remainder of provider-specific options (e.g. NID name
// overrides), decoded into ProviderOptions by the mapstructure "remain" tag
// that viper.Unmarshal honours, so new database backends can add options
// without a config schema migration. The create command loads each listed
// path after the stock databases and before any --database flags.
type databaseConfig struct {
	Path            string                 `mapstructure:"path"`
	ProviderOptions map[string]interface{} `mapstructure:",remain"`
}

// config is the top-level, optional configuration document for
// vita-elf-create. Every field has a sensible default so the tool runs with
// no config file at all, driven entirely by flags.
type config struct {
	ImportDatabases []databaseConfig `mapstructure:"import_databases"`
	ModuleName      string           `mapstructure:"module_name" default:"module"`
	LogLevel        string           `mapstructure:"log_level" default:"info"`
	Report          string           `mapstructure:"report" default:"none"`
}

// loadConfig reads an optional config file at path (if non-empty) over a
// defaulted config struct. A missing path is not an error: the tool is
// expected to run from flags alone in the common case.
func loadConfig(path string) (*config, error) {
	cfg := &config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("setting config defaults: %w", err)
	}

	if path == "" {
		return cfg, nil
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %q: %w", path, err)
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// defaultDatabasePaths discovers the stock import-database JSON files
// shipped alongside the vita-elf-create executable itself, in a "db"
// subdirectory next to it. This replaces the original tool's colon-joined
// environment variable (parsed at lookup time with strtok_r, destructively
// mutating the string on every call) with a []string built once at
// startup, per spec.md's own suggestion that the placeholder-splitting
// trick be dropped wherever a language's standard library makes it
// unnecessary.
func defaultDatabasePaths() ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable for default database discovery: %w", err)
	}

	dbDir := filepath.Join(filepath.Dir(exe), "db")
	entries, err := os.ReadDir(dbDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading default database directory %q: %w", dbDir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dbDir, entry.Name()))
	}

	return paths, nil
}
