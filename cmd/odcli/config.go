package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Application directory name used across all platforms.
const appName = "odcli"

// Config file name inside the config directory.
const configFileName = "config.toml"

// Default chunk size for chunked uploads. Must stay a multiple of 320 KiB
// per the OneDrive upload API contract.
const defaultChunkSize = 10 * 320 * 1024

// Config is the CLI configuration parsed from a TOML file.
type Config struct {
	// ClientID is the registered application ID. Required for login.
	ClientID string `toml:"client_id"`

	// Scopes requested during consumer login.
	Scopes []string `toml:"scopes"`

	// RedirectURL is the loopback OAuth redirect the login listener serves.
	RedirectURL string `toml:"redirect_url"`

	// CallbackAuthority is where the hosted account chooser redirects.
	CallbackAuthority string `toml:"callback_authority"`

	// Store selects the login-state backend: "file" or "sqlite".
	Store string `toml:"store"`

	// DataDir holds login state. Defaults to the platform data directory.
	DataDir string `toml:"data_dir"`

	// ChunkSize is the upload chunk size in bytes.
	ChunkSize int `toml:"chunk_size"`

	// LogLevel is the baseline log level: debug, info, warn, or error.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Scopes:            []string{"wl.signin", "wl.offline_access", "onedrive.readwrite"},
		RedirectURL:       "http://localhost:8400/callback",
		CallbackAuthority: "localhost:777",
		Store:             "file",
		DataDir:           DefaultDataDir(),
		ChunkSize:         defaultChunkSize,
		LogLevel:          "info",
	}
}

// Load reads and parses a TOML config file and returns the resulting Config.
// Unknown keys are fatal; silently ignoring a typo in a config file leads to
// hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// loadConfig resolves the config path from --config or the default location
// and loads it.
func loadConfig() (*Config, error) {
	path := flagConfigPath
	if path == "" {
		path = filepath.Join(DefaultConfigDir(), configFileName)
	}

	return LoadOrDefault(path)
}

func validate(cfg *Config) error {
	switch cfg.Store {
	case "file", "sqlite":
	default:
		return fmt.Errorf("store must be \"file\" or \"sqlite\", got %q", cfg.Store)
	}

	if cfg.ChunkSize <= 0 || cfg.ChunkSize%(320*1024) != 0 {
		return fmt.Errorf("chunk_size must be a positive multiple of 320 KiB, got %d", cfg.ChunkSize)
	}

	return nil
}

// DefaultConfigDir returns the platform-specific directory for config files.
// Respects XDG_CONFIG_HOME on Linux; defaults to ~/.config/odcli.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the platform-specific directory for login state.
// Respects XDG_DATA_HOME on Linux; defaults to ~/.local/share/odcli.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".local", "share", appName)
}
