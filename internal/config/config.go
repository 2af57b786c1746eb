package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains local directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
}

// Bucket describes one S3-compatible endpoint and bucket.
type Bucket struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// Source describes where raw archives are listed and read from.
type Source struct {
	Bucket
	Prefix   string   `toml:"prefix"`
	Suffixes []string `toml:"suffixes"`
}

// Target describes where repacked archives are written.
type Target struct {
	Bucket
	KeyPrefix string `toml:"key_prefix"`
}

// Mirrors holds the HTTP download bases fronting the source bucket. The
// secondary base is optional and only probed after the primary fails.
type Mirrors struct {
	Primary   string `toml:"primary"`
	Secondary string `toml:"secondary"`
}

// Aria2 contains download daemon connection and transfer tuning.
type Aria2 struct {
	RPCURL                  string `toml:"rpc_url"`
	Secret                  string `toml:"secret"`
	Split                   int    `toml:"split"`
	MaxConnectionsPerServer int    `toml:"max_connections_per_server"`
	MinSplitSize            string `toml:"min_split_size"`
	MaxTries                int    `toml:"max_tries"`
	RetryWaitSeconds        int    `toml:"retry_wait_seconds"`
	PollIntervalMillis      int    `toml:"poll_interval_millis"`
	StallTimeoutSeconds     int    `toml:"stall_timeout_seconds"`
	Retries                 int    `toml:"retries"`
	RetryBackoffSeconds     int    `toml:"retry_backoff_seconds"`
}

// SevenZip contains archiver binary selection and recompression settings.
type SevenZip struct {
	Binary    string   `toml:"binary"`
	Passwords []string `toml:"passwords"`
	Format    string   `toml:"format"`
	Level     int      `toml:"level"`
}

// Catalog contains the catalog API connection.
type Catalog struct {
	BaseURL    string   `toml:"base_url"`
	Token      string   `toml:"token"`
	UploaderID string   `toml:"uploader_id"`
	Languages  []string `toml:"languages"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for reshelve.
//
// Configuration sections by subsystem:
//   - Paths: state, scratch, and log directories
//   - Source: bucket holding the raw archives plus listing filters
//   - Target: bucket receiving repacked archives
//   - Mirrors: HTTP bases the download daemon pulls from
//   - Aria2: daemon RPC endpoint and transfer tuning
//   - SevenZip: archiver binary, extraction passwords, recompression
//   - Catalog: catalog API connection and upload identity
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Source   Source   `toml:"source"`
	Target   Target   `toml:"target"`
	Mirrors  Mirrors  `toml:"mirrors"`
	Aria2    Aria2    `toml:"aria2"`
	SevenZip SevenZip `toml:"sevenzip"`
	Catalog  Catalog  `toml:"catalog"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reshelve/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reshelve.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the pipeline writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
