package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// Loader applies environment-variable overrides on top of a loaded
// RuntimeConfig, walking the struct via reflection the way the
// teacher's original loader walked its engine config (adapted from
// graft's internal/config.Loader).
type Loader struct {
	envPrefix string
}

// NewLoader returns a Loader using the RECLASS_ environment prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "RECLASS_"}
}

// LoadFromEnvironment overlays environment variables onto cfg in place.
func (l *Loader) LoadFromEnvironment(cfg *RuntimeConfig) error {
	return l.applyEnvOverrides(reflect.ValueOf(cfg).Elem(), "")
}

func (l *Loader) applyEnvOverrides(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		envName := l.envName(fieldType, prefix)

		switch field.Kind() {
		case reflect.Struct:
			newPrefix := prefix
			if newPrefix != "" {
				newPrefix += "_"
			}
			newPrefix += strings.ToUpper(fieldType.Name)
			if err := l.applyEnvOverrides(field, newPrefix); err != nil {
				return err
			}

		case reflect.String:
			if value, ok := os.LookupEnv(envName); ok {
				field.SetString(value)
			}

		case reflect.Bool:
			if value, ok := os.LookupEnv(envName); ok {
				boolVal, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("parsing bool from %s: %w", envName, err)
				}
				field.SetBool(boolVal)
			}
		}
	}

	return nil
}

func (l *Loader) envName(fieldType reflect.StructField, prefix string) string {
	name := fieldType.Tag.Get("env")
	if name == "" {
		name = strings.ToUpper(fieldType.Name)
	}
	if prefix != "" {
		return l.envPrefix + prefix + "_" + name
	}
	return l.envPrefix + name
}
