package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN() != "./data/textrun.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Extraction.FrameStride != 30 || cfg.Extraction.ConfidenceThreshold != 0.6 {
		t.Errorf("extraction = %+v", cfg.Extraction)
	}
	if cfg.Extraction.MinTextDuration != 0.5 || cfg.Extraction.CropFraction != 0.3 {
		t.Errorf("extraction = %+v", cfg.Extraction)
	}
	if cfg.Download.Timeout != 30*time.Minute {
		t.Errorf("download.timeout = %v", cfg.Download.Timeout)
	}
}

func TestLoadOCRBackends(t *testing.T) {
	t.Setenv("TEST_VLM_KEY", "sk-test")
	cfg, err := Load(writeConfig(t, `
ocr:
  backends:
    - name: easyocr-ch
      type: http
      base_url: http://localhost:8501
      languages: [ch_tra, en]
    - name: vlm
      type: vlm
      model: gpt-4o-mini
      api_key_env: TEST_VLM_KEY
      timeout: 45s
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.OCR.Backends) != 2 {
		t.Fatalf("backends = %+v", cfg.OCR.Backends)
	}
	if got := cfg.OCR.Backends[0].Languages; len(got) != 2 || got[0] != "ch_tra" {
		t.Errorf("languages = %v", got)
	}
	if cfg.OCR.Backends[1].APIKey != "sk-test" || cfg.OCR.Backends[1].Timeout != 45*time.Second {
		t.Errorf("vlm backend = %+v", cfg.OCR.Backends[1])
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "stride", body: "extraction:\n  frame_stride: 0\n"},
		{name: "threshold", body: "extraction:\n  confidence_threshold: 1.5\n"},
		{name: "driver", body: "database:\n  driver: mysql\n"},
		{name: "backend type", body: "ocr:\n  backends:\n    - type: tesseract\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	c := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "textrun", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=textrun sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
