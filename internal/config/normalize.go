package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeTarget()
	c.normalizeMirrors()
	c.normalizeAria2()
	c.normalizeSevenZip()
	c.normalizeCatalog()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (b *Bucket) normalize(envPrefix string) {
	b.Endpoint = strings.TrimSpace(b.Endpoint)
	b.Region = strings.TrimSpace(b.Region)
	b.Bucket = strings.TrimSpace(b.Bucket)
	b.AccessKey = strings.TrimSpace(b.AccessKey)
	b.SecretKey = strings.TrimSpace(b.SecretKey)
	if b.AccessKey == "" {
		if value, ok := os.LookupEnv(envPrefix + "_ACCESS_KEY"); ok {
			b.AccessKey = strings.TrimSpace(value)
		}
	}
	if b.SecretKey == "" {
		if value, ok := os.LookupEnv(envPrefix + "_SECRET_KEY"); ok {
			b.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeSource() {
	c.Source.Bucket.normalize("RESHELVE_SOURCE")
	c.Source.Prefix = strings.TrimSpace(c.Source.Prefix)
	suffixes := make([]string, 0, len(c.Source.Suffixes))
	seen := make(map[string]struct{}, len(c.Source.Suffixes))
	for _, suffix := range c.Source.Suffixes {
		normalized := strings.ToLower(strings.TrimSpace(suffix))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		suffixes = append(suffixes, normalized)
	}
	if len(suffixes) == 0 {
		suffixes = defaultSuffixes()
	}
	c.Source.Suffixes = suffixes
}

func (c *Config) normalizeTarget() {
	c.Target.Bucket.normalize("RESHELVE_TARGET")
	c.Target.KeyPrefix = strings.Trim(strings.TrimSpace(c.Target.KeyPrefix), "/")
	if c.Target.KeyPrefix == "" {
		c.Target.KeyPrefix = defaultTargetKeyPrefix
	}
}

func (c *Config) normalizeMirrors() {
	c.Mirrors.Primary = strings.TrimRight(strings.TrimSpace(c.Mirrors.Primary), "/")
	c.Mirrors.Secondary = strings.TrimRight(strings.TrimSpace(c.Mirrors.Secondary), "/")
}

func (c *Config) normalizeAria2() {
	c.Aria2.RPCURL = strings.TrimSpace(c.Aria2.RPCURL)
	if c.Aria2.RPCURL == "" {
		c.Aria2.RPCURL = defaultAria2RPCURL
	}
	if c.Aria2.Secret == "" {
		if value, ok := os.LookupEnv("ARIA2_RPC_SECRET"); ok {
			c.Aria2.Secret = strings.TrimSpace(value)
		}
	}
	if c.Aria2.Split <= 0 {
		c.Aria2.Split = defaultAria2Split
	}
	if c.Aria2.MaxConnectionsPerServer <= 0 {
		c.Aria2.MaxConnectionsPerServer = defaultAria2Connections
	}
	if strings.TrimSpace(c.Aria2.MinSplitSize) == "" {
		c.Aria2.MinSplitSize = defaultAria2MinSplitSize
	}
	if c.Aria2.MaxTries <= 0 {
		c.Aria2.MaxTries = defaultAria2MaxTries
	}
	if c.Aria2.RetryWaitSeconds <= 0 {
		c.Aria2.RetryWaitSeconds = defaultAria2RetryWait
	}
	if c.Aria2.PollIntervalMillis <= 0 {
		c.Aria2.PollIntervalMillis = defaultPollIntervalMillis
	}
	if c.Aria2.StallTimeoutSeconds <= 0 {
		c.Aria2.StallTimeoutSeconds = defaultStallTimeoutSeconds
	}
	if c.Aria2.Retries <= 0 {
		c.Aria2.Retries = defaultDownloadRetries
	}
	if c.Aria2.RetryBackoffSeconds <= 0 {
		c.Aria2.RetryBackoffSeconds = defaultRetryBackoffSeconds
	}
}

func (c *Config) normalizeSevenZip() {
	c.SevenZip.Binary = strings.TrimSpace(c.SevenZip.Binary)
	if c.SevenZip.Binary == "" {
		if value, ok := os.LookupEnv("RESHELVE_7Z_BINARY"); ok {
			c.SevenZip.Binary = strings.TrimSpace(value)
		}
	}
	passwords := make([]string, 0, len(c.SevenZip.Passwords))
	for _, password := range c.SevenZip.Passwords {
		if password != "" {
			passwords = append(passwords, password)
		}
	}
	c.SevenZip.Passwords = passwords
	c.SevenZip.Format = strings.ToLower(strings.TrimSpace(c.SevenZip.Format))
	if c.SevenZip.Format == "" {
		c.SevenZip.Format = defaultSevenZipFormat
	}
	if c.SevenZip.Level == 0 {
		c.SevenZip.Level = defaultSevenZipLevel
	}
}

func (c *Config) normalizeCatalog() {
	c.Catalog.BaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseURL), "/")
	c.Catalog.Token = strings.TrimSpace(c.Catalog.Token)
	if c.Catalog.Token == "" {
		if value, ok := os.LookupEnv("RESHELVE_CATALOG_TOKEN"); ok {
			c.Catalog.Token = strings.TrimSpace(value)
		}
	}
	c.Catalog.UploaderID = strings.TrimSpace(c.Catalog.UploaderID)
	if c.Catalog.UploaderID == "" {
		c.Catalog.UploaderID = defaultUploaderID
	}
	languages := make([]string, 0, len(c.Catalog.Languages))
	seen := make(map[string]struct{}, len(c.Catalog.Languages))
	for _, lang := range c.Catalog.Languages {
		normalized := strings.ToLower(strings.TrimSpace(lang))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		languages = append(languages, normalized)
	}
	if len(languages) == 0 {
		languages = defaultLanguages()
	}
	c.Catalog.Languages = languages
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
