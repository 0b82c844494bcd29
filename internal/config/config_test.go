package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRuntimeConfig(t *testing.T) {
	cfg := DefaultRuntimeConfig()

	if cfg.Settings.Delimiter != ":" {
		t.Errorf("expected delimiter ':', got %q", cfg.Settings.Delimiter)
	}
	if cfg.Settings.DefaultEnvironment != "base" {
		t.Errorf("expected default_environment 'base', got %q", cfg.Settings.DefaultEnvironment)
	}
	if cfg.Storage.Kind != "filesystem" {
		t.Errorf("expected storage.kind 'filesystem', got %q", cfg.Storage.Kind)
	}
	if cfg.Output.Format != "yaml" {
		t.Errorf("expected output.format 'yaml', got %q", cfg.Output.Format)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config should validate cleanly: %v", err)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reclass-config.yaml")
	content := []byte("storage:\n  kind: git\n  git_remote: git@example.com:infra/reclass.git\noutput:\n  format: json\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Kind != "git" {
		t.Errorf("expected storage.kind 'git', got %q", cfg.Storage.Kind)
	}
	if cfg.Storage.GitRemote != "git@example.com:infra/reclass.git" {
		t.Errorf("unexpected git_remote %q", cfg.Storage.GitRemote)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("expected output.format 'json', got %q", cfg.Output.Format)
	}
	// Unset fields keep their defaults.
	if cfg.Settings.Delimiter != ":" {
		t.Errorf("expected delimiter to retain default ':', got %q", cfg.Settings.Delimiter)
	}
}

func TestLoadOverlaysTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reclass-config.toml")
	content := []byte("[storage]\nkind = \"git\"\ngit_remote = \"git@example.com:infra/reclass.git\"\n\n[output]\nformat = \"json\"\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Kind != "git" {
		t.Errorf("expected storage.kind 'git', got %q", cfg.Storage.Kind)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("expected output.format 'json', got %q", cfg.Output.Format)
	}
	// Unset fields keep their defaults.
	if cfg.Settings.Delimiter != ":" {
		t.Errorf("expected delimiter to retain default ':', got %q", cfg.Settings.Delimiter)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error loading a missing file")
	}
}
