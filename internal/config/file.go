package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"cellqc/internal/errors"
)

// EnvPrefix prefixes environment overrides of analysis settings, e.g.
// CELLQC_BOXPLOT_SHRINK_FACTOR=0.9.
const EnvPrefix = "CELLQC_"

// LoadSettings starts from Defaults, overlays the YAML file at path (if any)
// and then CELLQC_* environment overrides. It does not validate.
func LoadSettings(path string) (Settings, error) {
	settings := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, errors.Wrapf(errors.ConfigInvalid(err.Error()), "reading settings file %s", path)
		}
		if err := ParseSettings(data, &settings); err != nil {
			return Settings{}, errors.Wrapf(err, "parsing settings file %s", path)
		}
	}
	if err := applyEnvOverrides(&settings, os.LookupEnv); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// ParseSettings overlays YAML option values onto s. Unknown keys are rejected.
func ParseSettings(data []byte, s *Settings) error {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("invalid YAML: %v", err))
	}
	known := settingsKeys()
	for key := range raw {
		if _, ok := known[key]; !ok {
			return errors.ConfigInvalid(fmt.Sprintf("unknown option %q", key))
		}
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("invalid option value: %v", err))
	}
	return nil
}

// settingsKeys maps each yaml option name to its field kind.
func settingsKeys() map[string]reflect.Kind {
	t := reflect.TypeOf(Settings{})
	keys := make(map[string]reflect.Kind, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		kind := f.Type.Kind()
		if kind == reflect.Ptr {
			kind = f.Type.Elem().Kind()
		}
		keys[name] = kind
	}
	return keys
}

// applyEnvOverrides renders matching environment variables as a YAML
// document and decodes it over s, so both sources share one set of rules.
// List options are comma separated.
func applyEnvOverrides(s *Settings, lookup func(string) (string, bool)) error {
	var doc strings.Builder
	for key, kind := range settingsKeys() {
		value, ok := lookup(EnvPrefix + strings.ToUpper(key))
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch kind {
		case reflect.Slice:
			var items []string
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, strconv.Quote(item))
				}
			}
			fmt.Fprintf(&doc, "%s: [%s]\n", key, strings.Join(items, ", "))
		case reflect.String:
			fmt.Fprintf(&doc, "%s: %s\n", key, strconv.Quote(value))
		default:
			fmt.Fprintf(&doc, "%s: %s\n", key, value)
		}
	}
	if doc.Len() == 0 {
		return nil
	}
	if err := yaml.Unmarshal([]byte(doc.String()), s); err != nil {
		return errors.ConfigInvalid(fmt.Sprintf("invalid %s environment override: %v", EnvPrefix, err))
	}
	return nil
}
