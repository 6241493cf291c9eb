package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caio-sobreiro/dicomarc/dicom"
	"github.com/caio-sobreiro/dicomarc/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dicomarc.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Type != "memory" || cfg.Storage.Type != "filesystem" {
		t.Errorf("Load() = %+v, want memory backend on filesystem storage", cfg)
	}
	if len(cfg.AEs) != 1 || cfg.AEs[0].AETitle != "DICOMARC" {
		t.Errorf("AEs = %+v", cfg.AEs)
	}
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
archive:
  fuzzy_algorithm: soundex
  match_unknown: true
  always_include:
    study: [StudyDescription, "00080061"]
aes:
  - ae_title: ARCHIVE
    installed: true
    query_options: [RELATIONAL]
    max_results: 50
backend:
  type: postgres
postgres:
  dsn: postgres://localhost/archive
`)
	t.Setenv("DICOMARC_SERVER_ADDR", ":7070")
	t.Setenv("DICOMARC_LOGGING_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Server.Addr = %s, want the environment override", cfg.Server.Addr)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %s, want json", cfg.Logging.Format)
	}
	if !cfg.Archive.MatchUnknown || cfg.Archive.FuzzyAlgorithm != "soundex" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if len(cfg.AEs) != 1 || cfg.AEs[0].MaxResults != 50 {
		t.Errorf("AEs = %+v", cfg.AEs)
	}
	if cfg.Archive.JPEGQuality != 90 {
		t.Errorf("JPEGQuality = %d, want the default kept", cfg.Archive.JPEGQuality)
	}

	f, err := NewAttributeFilters(cfg.Archive)
	if err != nil {
		t.Fatalf("NewAttributeFilters() error = %v", err)
	}
	got := f.AlwaysInclude(types.QueryLevelStudy)
	want := []dicom.Tag{dicom.StudyInstanceUID, dicom.StudyDescription, dicom.ModalitiesInStudy}
	if len(got) != len(want) {
		t.Fatalf("AlwaysInclude(STUDY) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AlwaysInclude(STUDY)[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if code := f.Fuzzy().Encode("ROBERT"); code != "R163" {
		t.Errorf("Fuzzy().Encode(ROBERT) = %s, want R163", code)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown backend", "backend:\n  type: oracle\n", "Backend.Type"},
		{"postgres without dsn", "backend:\n  type: postgres\n", "postgres.dsn"},
		{"minio without bucket", "storage:\n  type: minio\nminio:\n  endpoint: localhost:9000\n", "minio.bucket"},
		{"auth without secret", "auth:\n  enabled: true\n", "auth.secret"},
		{"bad query model", "aes:\n  - ae_title: A\n    query_models: [WORKLIST]\n", "QueryModels"},
		{"malformed yaml", "server: [", "parsing config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, Logging{Level: "warn", Format: "json"})
	logger.Info("hidden")
	logger.Warn("shown", "ae_title", "ARCHIVE")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"ae_title":"ARCHIVE"`) {
		t.Errorf("json record = %s", out)
	}
}
