package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"civitdl/internal/common/fsutil"
)

// Defaults applied by WithDefaults.
const (
	DefaultInstallPath = "~/ComfyUI"
	DefaultBaseURL     = "https://civitai.com"
	DefaultLogLevel    = "info"

	TokenStoreFile    = "file"
	TokenStoreKeyring = "keyring"
)

// Config holds user settings persisted between runs.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	APIKey      string `json:"api_key,omitempty" yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	InstallPath string `json:"install_path,omitempty" yaml:"install_path,omitempty" toml:"install_path,omitempty"`
	BaseURL     string `json:"base_url,omitempty" yaml:"base_url,omitempty" toml:"base_url,omitempty"`
	UserAgent   string `json:"user_agent,omitempty" yaml:"user_agent,omitempty" toml:"user_agent,omitempty"`
	LogLevel    string `json:"log_level,omitempty" yaml:"log_level,omitempty" toml:"log_level,omitempty"`
	TokenStore  string `json:"token_store,omitempty" yaml:"token_store,omitempty" toml:"token_store,omitempty"`
	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty" toml:"metrics_file,omitempty"`
}

// DefaultPath returns ~/.civitdl/config.toml.
func DefaultPath() (string, error) {
	return fsutil.ExpandHome("~/.civitdl/config.toml")
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// LoadOrEmpty is Load that treats a missing file as an empty Config. exists
// reports whether the file was there.
func LoadOrEmpty(path string) (cfg Config, exists bool, err error) {
	cfg, err = Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, false, nil
	}
	return cfg, err == nil, err
}

// Save writes cfg to path in the format implied by its extension. The file
// may hold the API key, so it is created with 0600 permissions.
func Save(path string, cfg Config) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	var (
		b   []byte
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(cfg)
	case ".json":
		b, err = json.MarshalIndent(cfg, "", "  ")
	case ".toml":
		b, err = toml.Marshal(cfg)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.InstallPath == "" {
		c.InstallPath = DefaultInstallPath
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.TokenStore == "" {
		c.TokenStore = TokenStoreFile
	}
	return c
}

// ApplyEnv overrides fields from CIVITDL_* variables. The API key is not
// handled here; see ResolveToken.
func (c Config) ApplyEnv(getenv func(string) string) Config {
	if v := getenv("CIVITDL_INSTALL_PATH"); v != "" {
		c.InstallPath = v
	}
	if v := getenv("CIVITDL_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := getenv("CIVITDL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return c
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	switch c.TokenStore {
	case "", TokenStoreFile, TokenStoreKeyring:
	default:
		return fmt.Errorf("token_store must be %q or %q, got %q", TokenStoreFile, TokenStoreKeyring, c.TokenStore)
	}
	return nil
}

// Reset removes the config file, and the keyring entry when the file selects
// the keyring store. removed is false when there was nothing to remove.
func Reset(path string) (removed bool, err error) {
	prev, _, _ := LoadOrEmpty(path)
	if err := os.Remove(path); err == nil {
		removed = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove config: %w", err)
	}
	if prev.TokenStore != TokenStoreKeyring {
		return removed, nil
	}
	ok, err := deleteKeyringToken()
	if err != nil {
		return removed, err
	}
	return removed || ok, nil
}

// comfyMarkers are entries found at the root of a ComfyUI checkout.
var comfyMarkers = []string{"main.py", "models", "web", "comfy"}

// LooksLikeComfyUI reports whether dir contains any ComfyUI marker.
func LooksLikeComfyUI(dir string) bool {
	root, err := fsutil.ExpandHome(dir)
	if err != nil || root == "" {
		return false
	}
	for _, m := range comfyMarkers {
		if fsutil.PathExists(filepath.Join(root, m)) {
			return true
		}
	}
	return false
}
