package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	Mode Mode `yaml:"mode"`

	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	GCPProjectID string `yaml:"gcp_project"`
	GCPLocation  string `yaml:"gcp_location"`
	ModelName    string `yaml:"model_name"`

	StorageBackend string `yaml:"storage_backend"` // memory, sqlite or firestore
	SQLitePath     string `yaml:"sqlite_path"`
	UseMockLLM     *bool  `yaml:"use_mock_llm"` // nil means "mock in local mode"

	AnalysisTimeout  time.Duration `yaml:"analysis_timeout"`
	CaptureStopGrace time.Duration `yaml:"capture_stop_grace"`

	ReportDriverLimit  int  `yaml:"report_driver_limit"`
	ReportSummaryLimit int  `yaml:"report_summary_limit"`
	ReportNarrative    bool `yaml:"report_narrative"`
}

// MockLLM reports whether the deterministic analyzer should be used.
func (c *Config) MockLLM() bool {
	if c.UseMockLLM != nil {
		return *c.UseMockLLM
	}
	return c.Mode == ModeLocal
}

func defaults() *Config {
	return &Config{
		Mode:               ModeLocal,
		Port:               "8080",
		LogLevel:           "info",
		GCPLocation:        "us-central1",
		ModelName:          "gemini-2.5-flash",
		StorageBackend:     BackendMemory,
		SQLitePath:         ".mindmeasure/checkins.db",
		AnalysisTimeout:    30 * time.Second,
		CaptureStopGrace:   2 * time.Second,
		ReportDriverLimit:  10,
		ReportSummaryLimit: 15,
	}
}

// Load builds the config from defaults, then the YAML file named by
// MM_CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("MM_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Mode = Mode(getEnv("MM_MODE", string(cfg.Mode)))
	cfg.Port = getEnv("MM_PORT", cfg.Port)
	cfg.LogLevel = getEnv("MM_LOG_LEVEL", cfg.LogLevel)

	cfg.GCPProjectID = getEnv("MM_GCP_PROJECT", cfg.GCPProjectID)
	cfg.GCPLocation = getEnv("MM_GCP_LOCATION", cfg.GCPLocation)
	cfg.ModelName = getEnv("MM_MODEL_NAME", cfg.ModelName)

	cfg.StorageBackend = strings.ToLower(getEnv("MM_STORAGE_BACKEND", cfg.StorageBackend))
	cfg.SQLitePath = getEnv("MM_SQLITE_PATH", cfg.SQLitePath)
	if v := os.Getenv("MM_USE_MOCK_LLM"); v != "" {
		b := parseBool(v)
		cfg.UseMockLLM = &b
	}

	var err error
	if cfg.AnalysisTimeout, err = getDurationEnv("MM_ANALYSIS_TIMEOUT", cfg.AnalysisTimeout); err != nil {
		return err
	}
	if cfg.CaptureStopGrace, err = getDurationEnv("MM_CAPTURE_STOP_GRACE", cfg.CaptureStopGrace); err != nil {
		return err
	}
	if cfg.ReportDriverLimit, err = getIntEnv("MM_REPORT_DRIVER_LIMIT", cfg.ReportDriverLimit); err != nil {
		return err
	}
	if cfg.ReportSummaryLimit, err = getIntEnv("MM_REPORT_SUMMARY_LIMIT", cfg.ReportSummaryLimit); err != nil {
		return err
	}
	cfg.ReportNarrative = getBoolEnv("MM_REPORT_NARRATIVE", cfg.ReportNarrative)
	return nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeLocal, ModeGCP:
	default:
		return fmt.Errorf("MM_MODE must be local or gcp, got %q", c.Mode)
	}
	switch c.StorageBackend {
	case BackendMemory, BackendSQLite, BackendFirestore:
	default:
		return fmt.Errorf("MM_STORAGE_BACKEND must be memory, sqlite or firestore, got %q", c.StorageBackend)
	}
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return fmt.Errorf("MM_GCP_PROJECT must be set in gcp mode")
	}
	if c.StorageBackend == BackendFirestore && c.GCPProjectID == "" {
		return fmt.Errorf("MM_GCP_PROJECT is required for the firestore backend")
	}
	if c.AnalysisTimeout <= 0 || c.CaptureStopGrace <= 0 {
		return fmt.Errorf("analysis timeout and capture stop grace must be positive")
	}
	if c.ReportDriverLimit <= 0 || c.ReportSummaryLimit <= 0 {
		return fmt.Errorf("report limits must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true")
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return parseBool(v)
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
