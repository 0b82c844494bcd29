package config

import "testing"

func TestValidateValidConfig(t *testing.T) {
	if err := Validate(DefaultRuntimeConfig()); err != nil {
		t.Errorf("default config should not have validation errors: %v", err)
	}
}

func TestValidateEmptyDelimiter(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Settings.Delimiter = ""
	if err := Validate(cfg); err == nil {
		t.Error("expected a validation error for an empty delimiter")
	}
}

func TestValidateClashingSentinels(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Settings.ExportSentinelOpen = cfg.Settings.ReferenceSentinelOpen
	if err := Validate(cfg); err == nil {
		t.Error("expected a validation error for clashing open sentinels")
	}
}

func TestValidateClashingControlPrefixes(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Settings.DictKeyConstantPrefix = cfg.Settings.DictKeyOverridePrefix
	if err := Validate(cfg); err == nil {
		t.Error("expected a validation error for clashing control prefixes")
	}
}

func TestValidateStorageKind(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Storage.Kind = "s3"
	if err := Validate(cfg); err == nil {
		t.Error("expected a validation error for an unrecognized storage kind")
	}
}

func TestValidateGitRequiresRemote(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Storage.Kind = "git"
	if err := Validate(cfg); err == nil {
		t.Error("expected a validation error for a git backend with no remote")
	}
}

func TestValidateOutputFormat(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Output.Format = "toml"
	if err := Validate(cfg); err == nil {
		t.Error("expected a validation error for an unsupported output format")
	}
}
