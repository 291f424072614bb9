package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/gbalink/internal/common"
	"example.com/gbalink/internal/report"
	"example.com/gbalink/internal/rules"
)

// DefaultPath is read when --config is not given. A missing default file is
// not an error.
const DefaultPath = "gbalink.yaml"

type Config struct {
	Logs          common.LogConfig `yaml:"logs"`
	Concurrency   int              `yaml:"concurrency"`
	RulePack      string           `yaml:"rulePack"`
	DefaultTarget string           `yaml:"defaultTarget"`
	Lang          string           `yaml:"lang"`
	Dex           string           `yaml:"dex"`
	AuditLog      string           `yaml:"auditLog"`
}

// Target is DefaultTarget parsed.
func (c Config) Target() rules.Platform {
	p, _ := rules.ParsePlatform(c.DefaultTarget)
	return p
}

// Language is Lang parsed.
func (c Config) Language() report.Language {
	l, _ := report.ParseLanguage(c.Lang)
	return l
}

// Default is the configuration used without a file.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.DefaultTarget == "" {
		c.DefaultTarget = string(rules.Colosseum)
	}
	if c.Lang == "" {
		c.Lang = string(report.LangEnglish)
	}
	if c.AuditLog == "" {
		c.AuditLog = filepath.Join(".", "gbalink-patches.jsonl")
	}
	if c.Logs.Directory != "" {
		if c.Logs.MaxSizeMB <= 0 {
			c.Logs.MaxSizeMB = 10
		}
		if c.Logs.MaxBackups <= 0 {
			c.Logs.MaxBackups = 3
		}
	}
}

// Load reads path. When path is DefaultPath and the file does not exist the
// defaults are returned. Relative paths inside the file are resolved against
// its directory when they exist there.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return Default(), nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" {
			return ""
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		candidate := filepath.Clean(filepath.Join(baseDir, p))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		return filepath.Clean(p)
	}
	cfg.RulePack = resolvePath(cfg.RulePack)
	cfg.Dex = resolvePath(cfg.Dex)
	if cfg.Logs.Directory != "" && !filepath.IsAbs(cfg.Logs.Directory) {
		cfg.Logs.Directory = filepath.Join(baseDir, cfg.Logs.Directory)
	}
	if cfg.AuditLog != "" && !filepath.IsAbs(cfg.AuditLog) {
		cfg.AuditLog = filepath.Join(baseDir, cfg.AuditLog)
	}
	cfg.applyDefaults()
	if _, err := rules.ParsePlatform(cfg.DefaultTarget); err != nil {
		return cfg, fmt.Errorf("config %s: defaultTarget: %w", path, err)
	}
	if _, err := report.ParseLanguage(cfg.Lang); err != nil {
		return cfg, fmt.Errorf("config %s: lang: %w", path, err)
	}
	return cfg, nil
}
