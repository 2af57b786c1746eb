package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reshelve/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[source]
bucket = "raw"

[target]
bucket = "packed"

[mirrors]
primary = "https://mirror.example.com/"

[catalog]
base_url = "https://catalog.example.com/"
token = "secret-token"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("Load resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Aria2.Split != 16 || cfg.Aria2.StallTimeoutSeconds != 1200 {
		t.Fatalf("aria2 defaults: %+v", cfg.Aria2)
	}
	if cfg.SevenZip.Format != "7z" || cfg.SevenZip.Level != 1 {
		t.Fatalf("sevenzip defaults: %+v", cfg.SevenZip)
	}
	if cfg.Target.KeyPrefix != "games" {
		t.Fatalf("target.key_prefix default: %q", cfg.Target.KeyPrefix)
	}
	if cfg.Catalog.UploaderID != "migrate" {
		t.Fatalf("catalog.uploader_id default: %q", cfg.Catalog.UploaderID)
	}
	if len(cfg.Catalog.Languages) != 1 || cfg.Catalog.Languages[0] != "zh" {
		t.Fatalf("catalog.languages default: %v", cfg.Catalog.Languages)
	}
	if !filepath.IsAbs(cfg.Paths.StateDir) || !filepath.IsAbs(cfg.Paths.WorkDir) {
		t.Fatalf("paths not expanded: %+v", cfg.Paths)
	}
}

func TestLoadTrimsMirrorAndCatalogURLs(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if strings.HasSuffix(cfg.Mirrors.Primary, "/") {
		t.Fatalf("mirror base kept trailing slash: %q", cfg.Mirrors.Primary)
	}
	if strings.HasSuffix(cfg.Catalog.BaseURL, "/") {
		t.Fatalf("catalog base kept trailing slash: %q", cfg.Catalog.BaseURL)
	}
}

func TestLoadNormalizesSuffixes(t *testing.T) {
	// Mixed case, missing dots, duplicates, and blanks all collapse.
	content := strings.Replace(minimalConfig,
		`bucket = "raw"`,
		"bucket = \"raw\"\nsuffixes = [\"ZIP\", \".zip\", \"rar\", \"\"]", 1)
	cfg, _, _, err := config.Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{".zip", ".rar"}
	if len(cfg.Source.Suffixes) != len(want) {
		t.Fatalf("suffixes: %v", cfg.Source.Suffixes)
	}
	for i, suffix := range want {
		if cfg.Source.Suffixes[i] != suffix {
			t.Fatalf("suffixes: %v, want %v", cfg.Source.Suffixes, want)
		}
	}
}

func TestLoadRequiresCatalogToken(t *testing.T) {
	path := writeConfig(t, strings.Replace(minimalConfig, `token = "secret-token"`, "", 1))

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("Load accepted config without catalog token")
	}
}

func TestLoadRejectsBadSevenZipFormat(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[sevenzip]
format = "tar"
`)
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("Load accepted unsupported sevenzip.format")
	}
}

func TestCatalogTokenFromEnvironment(t *testing.T) {
	t.Setenv("RESHELVE_CATALOG_TOKEN", "env-token")
	path := writeConfig(t, strings.Replace(minimalConfig, `token = "secret-token"`, "", 1))

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Catalog.Token != "env-token" {
		t.Fatalf("catalog token: %q", cfg.Catalog.Token)
	}
}

func TestMissingFileUsesDefaultsButStillValidates(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.toml")
	_, _, exists, err := config.Load(missing)
	if exists {
		t.Fatal("Load reported a missing file as existing")
	}
	if err == nil {
		t.Fatal("Load with defaults alone should fail validation (no buckets)")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.WorkDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory %q missing: %v", dir, err)
		}
	}
}
