package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.ClamAV.Binary != "clamscan" {
		t.Errorf("ClamAV.Binary = %q, want clamscan", cfg.ClamAV.Binary)
	}
	if cfg.Quarantine.DurationHours != 72 {
		t.Errorf("Quarantine.DurationHours = %d, want 72", cfg.Quarantine.DurationHours)
	}
	if cfg.Quarantine.SweepSchedule != "@every 1h" {
		t.Errorf("Quarantine.SweepSchedule = %q, want @every 1h", cfg.Quarantine.SweepSchedule)
	}
	if cfg.Pipeline.MediaRoot == "" {
		t.Error("Pipeline.MediaRoot default missing")
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("UPLOADGUARD_DB_PASSWORD", "s3cret")

	content := `
server:
  port: 9090
database:
  password: ${UPLOADGUARD_DB_PASSWORD}
pipeline:
  media_root: /srv/uploads
  categories:
    image:
      max_size_bytes: 5242880
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Password != "s3cret" {
		t.Errorf("Database.Password = %q, want expanded env value", cfg.Database.Password)
	}
	if cfg.Pipeline.MediaRoot != "/srv/uploads" {
		t.Errorf("Pipeline.MediaRoot = %q, want /srv/uploads", cfg.Pipeline.MediaRoot)
	}
	if got := cfg.Pipeline.Categories["image"].MaxSizeBytes; got != 5242880 {
		t.Errorf("image max_size_bytes = %d, want 5242880", got)
	}

	// Unset fields still pick up defaults.
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want 5432", cfg.Database.Port)
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db.internal", Port: 5432, User: "guard",
		Password: "pw", Database: "uploads", SSLMode: "require",
	}
	want := "host=db.internal port=5432 user=guard password=pw dbname=uploads sslmode=require"
	if got := db.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
