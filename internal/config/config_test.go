package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"example.com/gbalink/internal/report"
	"example.com/gbalink/internal/rules"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gbalink.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "logs:\n  directory: logs\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != runtime.NumCPU() {
		t.Fatalf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.Target() != rules.Colosseum || cfg.Language() != report.LangEnglish {
		t.Fatalf("target/lang = %s/%s", cfg.Target(), cfg.Language())
	}
	if cfg.Logs.Directory != filepath.Join(filepath.Dir(path), "logs") || cfg.Logs.MaxSizeMB != 10 || cfg.Logs.MaxBackups != 3 {
		t.Fatalf("logs = %+v", cfg.Logs)
	}
	if !strings.HasSuffix(cfg.AuditLog, "gbalink-patches.jsonl") {
		t.Fatalf("auditLog = %s", cfg.AuditLog)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, "rulePack: pack.json\ndex: missing.json\ndefaultTarget: xd\nlang: tr\nconcurrency: 2\n")
	dir := filepath.Dir(path)
	if err := os.WriteFile(filepath.Join(dir, "pack.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RulePack != filepath.Join(dir, "pack.json") {
		t.Fatalf("rulePack = %s", cfg.RulePack)
	}
	if cfg.Dex != "missing.json" {
		t.Fatalf("dex = %s", cfg.Dex)
	}
	if cfg.Target() != rules.XD || cfg.Language() != report.LangTurkish || cfg.Concurrency != 2 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"unknown field": "port: 8080\n",
		"bad target":    "defaultTarget: wii\n",
		"bad lang":      "lang: de\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}

func TestMissingDefaultFile(t *testing.T) {
	wd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v", cfg)
	}
}
