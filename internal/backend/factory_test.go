package backend

import (
	"context"
	"path/filepath"
	"testing"

	"scontrini/internal/config"
	"scontrini/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	cfg, err := FromAppConfig(&config.Config{DataBackend: "json", DataDir: "/tmp/x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Type != JSONBackend || cfg.DataDirectory != "/tmp/x" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Seed) != len(core.DefaultCategories()) {
		t.Fatalf("seed = %d categories, want defaults", len(cfg.Seed))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory without directory", Config{Type: MemoryBackend}, false},
		{"json without directory", Config{Type: JSONBackend}, true},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without dsn", Config{Type: PostgresBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	seed := []core.Category{{ID: "other", Name: "Other"}}

	for _, cfg := range []Config{
		{Type: MemoryBackend, Seed: seed},
		{Type: JSONBackend, Seed: seed, DataDirectory: filepath.Join(dir, "json")},
		{Type: SQLiteBackend, Seed: seed, SQLiteDBPath: filepath.Join(dir, "db", "test.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := NewFactory(nil).CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatalf("CreateBackend() error = %v", err)
			}
			defer res.Cleanup()

			if err := res.Store.Ping(ctx); err != nil {
				t.Fatalf("Ping() error = %v", err)
			}
			cats, err := res.Store.GetCategories(ctx)
			if err != nil {
				t.Fatalf("GetCategories() error = %v", err)
			}
			if len(cats) != 1 || cats[0].ID != "other" {
				t.Fatalf("categories = %+v, want seed", cats)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	want := []string{"memory", "json", "sqlite", "postgres"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
