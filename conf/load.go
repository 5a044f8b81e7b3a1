package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/gitvan/gitvan/errors"
)

// ConfigFileName is the repository-local configuration file.
const ConfigFileName = "config.toml"

// FilePath returns the repository-local config file location for dir.
func FilePath(dir string) string {
	return filepath.Join(dir, ".gitvan", ConfigFileName)
}

// Load reads configuration for the given working directory. Resolution
// order: defaults, then <dir>/.gitvan/config.toml when present, then
// GITVAN_ environment overrides.
func Load(dir string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("GITVAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := FilePath(dir)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path. Used by the
// --config flag and by the config watcher on reload.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
