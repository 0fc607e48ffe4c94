package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testYAML = `
service:
  port: 9001
database:
  host: db.internal
  database: darc
scheduler:
  interval: PT2M
gate:
  confidence_threshold: 0.9
  classifiers:
    - version: v2
      endpoint: http://ml-v2:8000
    - version: v3_2
      endpoint: http://ml-v3:8000
  keywords:
    - exploit
    - zero-day
enrichment:
  script: ../txt2stix/txt2stix.py
`

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Service.Name != "darc-connector" {
		t.Errorf("Service.Name = %q, want default", cfg.Service.Name)
	}
	if cfg.Service.Port != 9001 {
		t.Errorf("Service.Port = %d, want 9001", cfg.Service.Port)
	}
	if cfg.Enrichment.PollAttempts != 4 {
		t.Errorf("PollAttempts = %d, want 4", cfg.Enrichment.PollAttempts)
	}
	if cfg.Enrichment.PollBaseDelay != time.Second {
		t.Errorf("PollBaseDelay = %v, want 1s", cfg.Enrichment.PollBaseDelay)
	}
	if cfg.Gate.ConfidenceThreshold != 0.9 {
		t.Errorf("ConfidenceThreshold = %v, want 0.9", cfg.Gate.ConfidenceThreshold)
	}

	interval, intervalErr := cfg.Scheduler.IntervalDuration()
	if intervalErr != nil {
		t.Fatalf("IntervalDuration() error: %v", intervalErr)
	}
	if interval != 2*time.Minute {
		t.Errorf("interval = %v, want 2m", interval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONNECTOR_DB_HOST", "override.internal")
	t.Setenv("CONNECTOR_GATE_THRESHOLD", "0.95")
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")

	cfg, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Host != "override.internal" {
		t.Errorf("Database.Host = %q, want env override", cfg.Database.Host)
	}
	if cfg.Gate.ConfidenceThreshold != 0.95 {
		t.Errorf("ConfidenceThreshold = %v, want 0.95", cfg.Gate.ConfidenceThreshold)
	}
	if cfg.Enrichment.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want env override", cfg.Enrichment.APIKey)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{
			name: "no classifiers",
			yaml: `
database: {host: db, database: darc}
enrichment: {script: conv.py}
`,
		},
		{
			name: "classifier missing endpoint",
			yaml: `
database: {host: db, database: darc}
gate:
  classifiers: [{version: v2}]
enrichment: {script: conv.py}
`,
		},
		{
			name: "bad interval",
			yaml: `
database: {host: db, database: darc}
scheduler: {interval: every5m}
gate:
  classifiers: [{version: v2, endpoint: http://ml:8000}]
enrichment: {script: conv.py}
`,
		},
		{
			name: "missing converter script",
			yaml: `
database: {host: db, database: darc}
gate:
  classifiers: [{version: v2, endpoint: http://ml:8000}]
`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeTestConfig(t, tc.yaml)); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}
