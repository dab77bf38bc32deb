package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/drpcorg/objgraph"
	"github.com/drpcorg/objgraph/storage"
	"github.com/drpcorg/objgraph/utils"
	"github.com/pkg/errors"
)

// objsh.toml key mapping.
type fileConfig struct {
	Backend   string `toml:"backend"`
	Dir       string `toml:"dir"`
	CacheSize int    `toml:"cache_size"`
	LogLevel  string `toml:"log_level"`
	History   string `toml:"history_file"`
	Sync      bool   `toml:"sync"`
}

type Config struct {
	// Backend is one of memory, dir, pebble.
	Backend   string
	Dir       string
	CacheSize int
	LogLevel  slog.Level
	History   string
	Sync      bool
}

func DefaultConfig() Config {
	return Config{
		Backend:  "pebble",
		Dir:      "objsh.db",
		LogLevel: slog.LevelWarn,
		History:  ".objsh_history",
	}
}

// loadConfig overlays the keys set in the file at path over the defaults.
// An empty path yields the defaults.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrap(err, "load objsh config")
	}
	if meta.IsDefined("backend") {
		cfg.Backend = strings.ToLower(strings.TrimSpace(raw.Backend))
	}
	if meta.IsDefined("dir") {
		cfg.Dir = strings.TrimSpace(raw.Dir)
	}
	if meta.IsDefined("cache_size") {
		cfg.CacheSize = raw.CacheSize
	}
	if meta.IsDefined("log_level") {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.TrimSpace(raw.LogLevel))); err != nil {
			return Config{}, errors.Wrap(err, "load objsh config: log_level")
		}
	}
	if meta.IsDefined("history_file") {
		cfg.History = strings.TrimSpace(raw.History)
	}
	if meta.IsDefined("sync") {
		cfg.Sync = raw.Sync
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load objsh config: unknown key %q", undecoded[0].String())
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Backend {
	case "memory":
	case "dir", "pebble":
		if c.Dir == "" {
			return fmt.Errorf("objsh config: backend %s needs dir", c.Backend)
		}
	default:
		return fmt.Errorf("objsh config: unsupported backend %q (expected memory, dir or pebble)", c.Backend)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("objsh config: negative cache_size %d", c.CacheSize)
	}
	return nil
}

// openBackend returns the configured backend and its closer.
func openBackend(cfg Config) (objgraph.Backend, func() error, error) {
	var (
		backend objgraph.Backend
		closer  = func() error { return nil }
	)
	switch cfg.Backend {
	case "memory":
		backend = storage.NewMemory()
	case "dir":
		d, err := storage.NewDir(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		backend = d
	case "pebble":
		p, err := storage.OpenPebble(cfg.Dir, storage.PebbleOptions{
			Sync:   cfg.Sync,
			Logger: utils.NewDefaultLogger(cfg.LogLevel),
		})
		if err != nil {
			return nil, nil, err
		}
		backend, closer = p, p.Close
	default:
		return nil, nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
	if cfg.CacheSize > 0 {
		c, err := storage.NewCached(backend, cfg.CacheSize)
		if err != nil {
			_ = closer()
			return nil, nil, err
		}
		backend = c
	}
	return backend, closer, nil
}
