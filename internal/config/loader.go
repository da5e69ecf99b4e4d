package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"famsched/pkg/logging"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/famsched"
	configFileName = "config.yaml"
	envFileName    = ".env"
)

// osUserHomeDir is replaced in tests.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigPath returns ~/.config/famsched.
func DefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads config.yaml from configPath, or from DefaultConfigPath
// when configPath is empty. A missing file yields the defaults.
func LoadConfig(configPath string) (Config, error) {
	if configPath == "" {
		var err error
		if configPath, err = DefaultConfigPath(); err != nil {
			return Config{}, err
		}
	}

	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	if err := Validate(config); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", configFilePath, err)
	}

	config.Credentials.Dir = expandHome(config.Credentials.Dir)

	logging.Debug("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}

// Validate checks the struct tag constraints of cfg.
func Validate(cfg Config) error {
	return validator.New().Struct(cfg)
}

// LoadEnv loads .env files into the process environment without overriding
// variables that are already set. Missing files are skipped. With no
// arguments it reads ./.env and the .env in the default config directory.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = append(files, envFileName)
		if dir, err := DefaultConfigPath(); err == nil {
			files = append(files, filepath.Join(dir, envFileName))
		}
	}

	for _, file := range files {
		file = expandHome(file)
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
		logging.Debug("ConfigLoader", "Loaded environment from %s", file)
	}
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := osUserHomeDir()
	if err != nil {
		return path
	}
	return strings.Replace(path, "~", home, 1)
}
