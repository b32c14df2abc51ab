package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franksops/trickle/engine"
	"github.com/franksops/trickle/provider"
	"github.com/franksops/trickle/transport"
	"github.com/hashicorp/go-hclog"
	toml "github.com/pelletier/go-toml/v2"
)

// Link modes.
const (
	LinkInterface = "interface"
	LinkAlways    = "always"
)

const (
	defaultConfigPath  = "~/.config/trickle/config.toml"
	defaultStateDir    = "~/.local/share/trickle"
	defaultStorageRoot = "/"
	defaultLogLevel    = "info"
	defaultDialTimeout = 10 * time.Second
	defaultStorageTime = provider.DefaultS3Timeout

	journalFile = "journal.db"
)

// Config is the resolved trickle configuration.
type Config struct {
	Engine      engine.Config
	DialTimeout time.Duration
	// MemoryLimit is the budget free memory is measured against. Zero
	// leaves the memory floor to GOMEMLIMIT alone.
	MemoryLimit uint64

	// StorageRoot is a local directory or an s3://bucket/prefix URL.
	StorageRoot string
	// StorageTimeout bounds each remote storage call.
	StorageTimeout time.Duration
	StateDir       string
	LogLevel       hclog.Level
	LinkMode       string
}

type rawConfig struct {
	Engine struct {
		QueueCapacity    int    `toml:"queue_capacity"`
		DispatchInterval string `toml:"dispatch_interval"`
		MemoryFloor      uint64 `toml:"memory_floor"`
		MemoryLimit      uint64 `toml:"memory_limit"`
		ChunkSize        int    `toml:"chunk_size"`
		RequestBudget    int    `toml:"request_budget"`
		DocumentBudget   int    `toml:"document_budget"`
		UserAgent        string `toml:"user_agent"`
		Routing          string `toml:"routing"`
		DialTimeout      string `toml:"dial_timeout"`
	} `toml:"engine"`
	Storage struct {
		Root    string `toml:"root"`
		Timeout string `toml:"timeout"`
	} `toml:"storage"`
	State struct {
		Dir string `toml:"dir"`
	} `toml:"state"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
	Link struct {
		Mode string `toml:"mode"`
	} `toml:"link"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Engine:         engine.DefaultConfig(),
		DialTimeout:    defaultDialTimeout,
		StorageRoot:    defaultStorageRoot,
		StorageTimeout: defaultStorageTime,
		StateDir:       mustExpand(defaultStateDir),
		LogLevel:       hclog.Info,
		LinkMode:       LinkInterface,
	}
}

// Load locates and parses the trickle config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return raw.resolve()
}

func (raw rawConfig) resolve() (Config, error) {
	cfg := Default()
	e := &cfg.Engine

	if raw.Engine.QueueCapacity > 0 {
		e.QueueCapacity = raw.Engine.QueueCapacity
	}
	if raw.Engine.MemoryFloor > 0 {
		e.MemoryFloor = raw.Engine.MemoryFloor
	}
	cfg.MemoryLimit = raw.Engine.MemoryLimit
	if raw.Engine.ChunkSize > 0 {
		e.ChunkSize = raw.Engine.ChunkSize
	}
	if raw.Engine.RequestBudget > 0 {
		e.RequestBudget = raw.Engine.RequestBudget
	}
	if raw.Engine.DocumentBudget > 0 {
		e.DocumentBudget = raw.Engine.DocumentBudget
	}
	if ua := strings.TrimSpace(raw.Engine.UserAgent); ua != "" {
		e.UserAgent = ua
	}

	var err error
	if e.DispatchInterval, err = parseDuration("engine.dispatch_interval", raw.Engine.DispatchInterval, e.DispatchInterval); err != nil {
		return Config{}, err
	}
	if cfg.DialTimeout, err = parseDuration("engine.dial_timeout", raw.Engine.DialTimeout, cfg.DialTimeout); err != nil {
		return Config{}, err
	}
	if e.Routing, err = engine.ParseRouting(raw.Engine.Routing); err != nil {
		return Config{}, fmt.Errorf("engine.routing: %w", err)
	}

	if root := strings.TrimSpace(raw.Storage.Root); root != "" {
		if strings.HasPrefix(root, "s3://") {
			cfg.StorageRoot = root
		} else {
			cfg.StorageRoot = mustExpand(root)
		}
	}
	if cfg.StorageTimeout, err = parseDuration("storage.timeout", raw.Storage.Timeout, cfg.StorageTimeout); err != nil {
		return Config{}, err
	}
	if dir := strings.TrimSpace(raw.State.Dir); dir != "" {
		cfg.StateDir = mustExpand(dir)
	}

	if level := strings.TrimSpace(raw.Log.Level); level != "" {
		if cfg.LogLevel, err = ParseLevel(level); err != nil {
			return Config{}, err
		}
	}

	switch mode := strings.ToLower(strings.TrimSpace(raw.Link.Mode)); mode {
	case "":
	case LinkInterface, LinkAlways:
		cfg.LinkMode = mode
	default:
		return Config{}, fmt.Errorf("link.mode: unknown mode %q", raw.Link.Mode)
	}

	return cfg, nil
}

// ParseLevel parses an hclog level name such as "debug" or "warn".
func ParseLevel(s string) (hclog.Level, error) {
	level := hclog.LevelFromString(strings.TrimSpace(s))
	if level == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("log.level: unknown level %q", s)
	}
	return level, nil
}

// EngineConfig returns the engine configuration with logger attached.
func (c Config) EngineConfig(logger hclog.Logger) engine.Config {
	cfg := c.Engine
	cfg.Logger = logger
	return cfg
}

// MemoryProbe returns the probe the engine checks its memory floor with.
func (c Config) MemoryProbe() engine.MemoryProbe {
	return engine.RuntimeMemory{Limit: c.MemoryLimit}
}

// Link returns the link status provider selected by LinkMode.
func (c Config) Link() transport.LinkStatus {
	if c.LinkMode == LinkAlways {
		return transport.AlwaysUp
	}
	return transport.InterfaceLink{}
}

// JournalPath returns the path of the transfer journal database.
func (c Config) JournalPath() string {
	if strings.TrimSpace(c.StateDir) == "" {
		return mustExpand(defaultStateDir + "/" + journalFile)
	}
	return filepath.Join(c.StateDir, journalFile)
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", field, value)
	}
	return d, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
