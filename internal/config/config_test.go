package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultProfile = "work"
	cfg.Graph.Backend = BackendMemory
	cfg.Replication.PageSize = 50
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Graph.Backend != BackendMemory {
		t.Errorf("Graph.Backend = %q, want %q", loaded.Graph.Backend, BackendMemory)
	}
	if loaded.Replication.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", loaded.Replication.PageSize)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("alias = \"alice\"\n[sweep]\ncron = \"0 * * * *\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Alias != "alice" {
		t.Errorf("Alias = %q, want alice", cfg.Alias)
	}
	if cfg.Sweep.Cron != "0 * * * *" {
		t.Errorf("Sweep.Cron = %q", cfg.Sweep.Cron)
	}
	if cfg.Replication.SettleQuietMS != 2000 {
		t.Errorf("SettleQuietMS = %d, want default 2000", cfg.Replication.SettleQuietMS)
	}
	if cfg.DefaultProfile != "main" {
		t.Errorf("DefaultProfile = %q, want main", cfg.DefaultProfile)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Graph.Backend != BackendRedis {
		t.Errorf("Graph.Backend = %q, want default", cfg.Graph.Backend)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestEnvOverrides(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("HUDDLE_GRAPH_BACKEND=memory\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAlias, "bob")
	t.Setenv(EnvGraphBackend, "")
	_ = os.Unsetenv(EnvGraphBackend)
	t.Setenv(EnvMetricsAddr, "127.0.0.1:9100")

	if err := LoadEnv(envPath); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("LoadEnv(missing) error = %v", err)
	}

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Alias != "bob" {
		t.Errorf("Alias = %q, want bob", cfg.Alias)
	}
	if cfg.Graph.Backend != BackendMemory {
		t.Errorf("Graph.Backend = %q, want memory from .env", cfg.Graph.Backend)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9100" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
}
