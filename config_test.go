package marquee

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("MARQUEE_HOME", t.TempDir())
	cfg := DefaultConfig()

	if cfg.Library != "default" {
		t.Errorf("Library = %q, want %q", cfg.Library, "default")
	}
	if cfg.SchemaVersion != "3.1.0" {
		t.Errorf("SchemaVersion = %q, want latest", cfg.SchemaVersion)
	}
	if filepath.Base(cfg.DBPath) != "library.db" {
		t.Errorf("DBPath = %q, want library.db under the library directory", cfg.DBPath)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MARQUEE_DB_PATH", "/tmp/movies.db")
	t.Setenv("MARQUEE_LIBRARY", "family/kids")
	t.Setenv("MARQUEE_SCHEMA_VERSION", "2.0.0")
	t.Setenv("MARQUEE_EXPORT_PATH", "/tmp/export.json")
	t.Setenv("MARQUEE_DEBUG", "1")
	t.Setenv("MARQUEE_DEBUG_LOG", "/tmp/debug.log")

	cfg := ConfigFromEnv()
	want := Config{
		DBPath:        "/tmp/movies.db",
		Library:       "family/kids",
		SchemaVersion: "2.0.0",
		ExportPath:    "/tmp/export.json",
		Debug:         true,
		DebugLogPath:  "/tmp/debug.log",
	}
	if cfg != want {
		t.Errorf("ConfigFromEnv() = %+v, want %+v", cfg, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"missing db path", Config{}, "DBPath"},
		{"bad library", Config{DBPath: "x.db", Library: "Bad Name"}, "Library"},
		{"unparseable version", Config{DBPath: "x.db", SchemaVersion: "three"}, "SchemaVersion"},
		{"unknown version", Config{DBPath: "x.db", SchemaVersion: "1.2.0"}, "SchemaVersion"},
		{"valid", Config{DBPath: "x.db", Library: "default", SchemaVersion: "1.1.0"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("MARQUEE_HOME", home)
	t.Setenv("MARQUEE_LIBRARY", "family/kids")

	cfg := Config{}.WithDefaults()
	if cfg.Library != "family/kids" {
		t.Errorf("Library = %q, want env value", cfg.Library)
	}
	wantDB := filepath.Join(home, "libraries", "family__kids", "library.db")
	if cfg.DBPath != wantDB {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, wantDB)
	}
	wantExport := filepath.Join(home, "libraries", "family__kids", "library-reshape-export.json")
	if cfg.ExportPath != wantExport {
		t.Errorf("ExportPath = %q, want %q", cfg.ExportPath, wantExport)
	}

	explicit := Config{DBPath: "/data/m.db", ExportPath: "/data/e.json", SchemaVersion: "1.0.0"}.WithDefaults()
	if explicit.DBPath != "/data/m.db" || explicit.ExportPath != "/data/e.json" || explicit.SchemaVersion != "1.0.0" {
		t.Errorf("WithDefaults overwrote explicit fields: %+v", explicit)
	}
}
