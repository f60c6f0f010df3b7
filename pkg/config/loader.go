package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stratumdb/stratum/pkg/errors"
)

// Load reads a YAML file into config after ${VAR} environment substitution.
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConfig, "failed to read config file %s", filePath)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConfig, "failed to parse %s", filePath)
	}

	return nil
}

// LoadFile loads, overlays onto defaults, and validates a full daemon
// configuration.
func LoadFile(filePath string) (*Config, error) {
	cfg := New()
	if err := Load(filePath, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a configuration as YAML.
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal config")
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConfig, "failed to write config file %s", filePath)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		content = content[:start] + os.Getenv(varName) + content[end+1:]
	}
	return content
}
