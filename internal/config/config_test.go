package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MM_CONFIG_FILE", "MM_MODE", "MM_PORT", "MM_LOG_LEVEL", "MM_GCP_PROJECT",
		"MM_GCP_LOCATION", "MM_MODEL_NAME", "MM_STORAGE_BACKEND", "MM_SQLITE_PATH",
		"MM_USE_MOCK_LLM", "MM_ANALYSIS_TIMEOUT", "MM_CAPTURE_STOP_GRACE",
		"MM_REPORT_DRIVER_LIMIT", "MM_REPORT_SUMMARY_LIMIT", "MM_REPORT_NARRATIVE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != config.ModeLocal || cfg.Port != "8080" || cfg.StorageBackend != config.BackendMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.AnalysisTimeout != 30*time.Second || cfg.CaptureStopGrace != 2*time.Second {
		t.Fatalf("unexpected timeouts %+v", cfg)
	}
	if !cfg.MockLLM() {
		t.Fatalf("local mode should default to the mock analyzer")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "mm.yaml")
	content := `
mode: gcp
gcp_project: from-file
storage_backend: sqlite
sqlite_path: /tmp/file.db
use_mock_llm: true
analysis_timeout: 10s
report_driver_limit: 4
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("MM_CONFIG_FILE", path)
	t.Setenv("MM_GCP_PROJECT", "from-env")
	t.Setenv("MM_REPORT_SUMMARY_LIMIT", "3")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != config.ModeGCP || cfg.StorageBackend != config.BackendSQLite || cfg.SQLitePath != "/tmp/file.db" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.GCPProjectID != "from-env" {
		t.Fatalf("env should win over file, got %q", cfg.GCPProjectID)
	}
	if cfg.AnalysisTimeout != 10*time.Second || cfg.ReportDriverLimit != 4 || cfg.ReportSummaryLimit != 3 {
		t.Fatalf("unexpected tuning %+v", cfg)
	}
	if !cfg.MockLLM() {
		t.Fatalf("use_mock_llm from file should hold in gcp mode")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"gcp without project":   {"MM_MODE": "gcp"},
		"unknown backend":       {"MM_STORAGE_BACKEND": "postgres"},
		"firestore w/o project": {"MM_STORAGE_BACKEND": "firestore"},
		"bad duration":          {"MM_ANALYSIS_TIMEOUT": "soon"},
		"bad int":               {"MM_REPORT_DRIVER_LIMIT": "ten"},
		"zero limit":            {"MM_REPORT_SUMMARY_LIMIT": "0"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := config.Load(); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}
