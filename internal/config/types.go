package config

import "time"

// Config is the top-level configuration structure for famsched.
type Config struct {
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Session     SessionConfig     `yaml:"session"`
	Log         LogConfig         `yaml:"log"`
}

// APIConfig configures the backend connection.
type APIConfig struct {
	BaseURL  string        `yaml:"baseURL,omitempty" validate:"omitempty,url"`
	Platform string        `yaml:"platform,omitempty" validate:"omitempty,oneof=android ios web linux darwin windows"`
	Timeout  time.Duration `yaml:"timeout,omitempty" validate:"gt=0"`
}

// CredentialsConfig selects where tokens are persisted.
type CredentialsConfig struct {
	Backend        string `yaml:"backend,omitempty" validate:"omitempty,oneof=file keyring memory"`
	Dir            string `yaml:"dir,omitempty"`
	KeyringService string `yaml:"keyringService,omitempty"`
}

// SessionConfig configures startup session restoration.
type SessionConfig struct {
	// ValidationErrorPolicy is "propagate" (default) or "logout".
	ValidationErrorPolicy string `yaml:"validationErrorPolicy,omitempty" validate:"omitempty,oneof=propagate logout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultTimeout is the default backend request timeout.
const DefaultTimeout = 30 * time.Second

// GetDefaultConfig returns the default configuration for famsched.
func GetDefaultConfig() Config {
	return Config{
		API: APIConfig{
			Timeout: DefaultTimeout,
		},
		Credentials: CredentialsConfig{
			Backend: "file",
		},
		Session: SessionConfig{
			ValidationErrorPolicy: "propagate",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}
