package config

import (
	"fmt"
	"strings"

	"github.com/reclass-go/reclass/pkg/reclass"
)

// ValidationError represents a configuration validation error
// (adapted from graft's internal/config.ValidationError).
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error: field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates an entire RuntimeConfig.
func Validate(cfg *RuntimeConfig) error {
	var errs ValidationErrors
	errs = append(errs, validateSettings(&cfg.Settings)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateOutput(&cfg.Output)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateSettings(s *reclass.Settings) ValidationErrors {
	var errs ValidationErrors
	if s.Delimiter == "" {
		errs = append(errs, ValidationError{"settings.delimiter", s.Delimiter, "must not be empty"})
	}
	if s.ReferenceSentinelOpen == "" || s.ReferenceSentinelClose == "" {
		errs = append(errs, ValidationError{"settings.reference_sentinels", nil, "open and close sentinels must not be empty"})
	}
	if s.ExportSentinelOpen == "" || s.ExportSentinelClose == "" {
		errs = append(errs, ValidationError{"settings.export_sentinels", nil, "open and close sentinels must not be empty"})
	}
	if s.ReferenceSentinelOpen == s.ExportSentinelOpen {
		errs = append(errs, ValidationError{"settings.export_sentinels", s.ExportSentinelOpen, "must differ from the reference open sentinel"})
	}
	if s.DictKeyOverridePrefix == s.DictKeyConstantPrefix {
		errs = append(errs, ValidationError{"settings.dict_key_constant_prefix", s.DictKeyConstantPrefix, "must differ from the override prefix"})
	}
	if s.DefaultEnvironment == "" {
		errs = append(errs, ValidationError{"settings.default_environment", s.DefaultEnvironment, "must not be empty"})
	}
	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors
	switch s.Kind {
	case "filesystem", "git", "mixed", "":
	default:
		errs = append(errs, ValidationError{"storage.kind", s.Kind, "must be 'filesystem', 'git', or 'mixed'"})
	}
	if s.Kind == "git" && s.GitRemote == "" {
		errs = append(errs, ValidationError{"storage.git_remote", s.GitRemote, "required when storage.kind is 'git'"})
	}
	return errs
}

func validateOutput(o *OutputConfig) ValidationErrors {
	var errs ValidationErrors
	switch o.Format {
	case "yaml", "json", "":
	default:
		errs = append(errs, ValidationError{"output.format", o.Format, "must be 'yaml' or 'json'"})
	}
	return errs
}
