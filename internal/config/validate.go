package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateTarget(); err != nil {
		return err
	}
	if err := c.validateMirrors(); err != nil {
		return err
	}
	if err := c.validateAria2(); err != nil {
		return err
	}
	if err := c.validateSevenZip(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSource() error {
	if c.Source.Bucket.Bucket == "" {
		return errors.New("source.bucket must be set")
	}
	return nil
}

func (c *Config) validateTarget() error {
	if c.Target.Bucket.Bucket == "" {
		return errors.New("target.bucket must be set")
	}
	return nil
}

func (c *Config) validateMirrors() error {
	if strings.TrimSpace(c.Mirrors.Primary) == "" {
		return errors.New("mirrors.primary must be set")
	}
	return nil
}

func (c *Config) validateAria2() error {
	if strings.TrimSpace(c.Aria2.RPCURL) == "" {
		return errors.New("aria2.rpc_url must be set")
	}
	return ensurePositiveMap(map[string]int{
		"aria2.split":                      c.Aria2.Split,
		"aria2.max_connections_per_server": c.Aria2.MaxConnectionsPerServer,
		"aria2.max_tries":                  c.Aria2.MaxTries,
		"aria2.retry_wait_seconds":         c.Aria2.RetryWaitSeconds,
		"aria2.poll_interval_millis":       c.Aria2.PollIntervalMillis,
		"aria2.stall_timeout_seconds":      c.Aria2.StallTimeoutSeconds,
		"aria2.retries":                    c.Aria2.Retries,
		"aria2.retry_backoff_seconds":      c.Aria2.RetryBackoffSeconds,
	})
}

func (c *Config) validateSevenZip() error {
	switch c.SevenZip.Format {
	case "7z", "zip":
	default:
		return fmt.Errorf("sevenzip.format must be \"7z\" or \"zip\", got %q", c.SevenZip.Format)
	}
	if c.SevenZip.Level < 0 || c.SevenZip.Level > 9 {
		return errors.New("sevenzip.level must be between 0 and 9")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if strings.TrimSpace(c.Catalog.BaseURL) == "" {
		return errors.New("catalog.base_url must be set")
	}
	if strings.TrimSpace(c.Catalog.Token) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/reshelve/config.toml"
		}
		return fmt.Errorf("catalog.token is required. Set RESHELVE_CATALOG_TOKEN env var or edit %s (create with 'reshelve config init')", defaultPath)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
