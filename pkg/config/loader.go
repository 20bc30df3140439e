package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. TRACTFEATURES_STORAGE_BUCKET.
const EnvPrefix = "TRACTFEATURES"

// DefaultFile is read from the working directory when no file is given.
const DefaultFile = "tractfeatures.yaml"

// Load builds the configuration from defaults, the YAML file at filePath and
// the environment. An empty filePath falls back to DefaultFile if it exists.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults go in as a config layer so every key is known to AutomaticEnv.
	defaults, err := yaml.Marshal(newDefaults(""))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal defaults")
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read defaults")
	}

	if filePath == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			filePath = DefaultFile
		}
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the --config flag
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", filePath)
		}
		content := substituteEnvVars(string(data))
		if err := v.MergeConfig(strings.NewReader(content)); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML").
				WithDetail("path", filePath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode configuration")
	}
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dump writes the effective configuration as YAML.
func Dump(w io.Writer, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// newDefaults returns the default values without derived paths and zones.
func newDefaults(root string) *Config {
	cfg := New(root)
	cfg.Root = root
	cfg.Paths = PathsConfig{}
	cfg.Storage.Raw, cfg.Storage.Clean, cfg.Storage.Curated = "", "", ""
	return cfg
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
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
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
