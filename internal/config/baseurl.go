package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"famsched/pkg/logging"
)

const (
	// EnvAPIBaseURL overrides the configured API base URL.
	EnvAPIBaseURL = "API_BASE_URL"

	// DefaultPort is the port of the local development backend.
	DefaultPort = 8000

	// AndroidEmulatorHost is how the Android emulator reaches the host machine.
	AndroidEmulatorHost = "10.0.2.2"
)

// Base URL sources reported by ResolveBaseURL.
const (
	SourceFlag    = "flag"
	SourceEnv     = "environment"
	SourceConfig  = "config"
	SourceDefault = "default"
)

// ResolveBaseURL picks the API base URL from flagValue, the API_BASE_URL
// environment variable, cfg.BaseURL, or the platform default, in that order,
// and normalizes it.
func ResolveBaseURL(flagValue string, cfg APIConfig) (url, source string) {
	raw, source := strings.TrimSpace(flagValue), SourceFlag
	if raw == "" {
		raw, source = strings.TrimSpace(os.Getenv(EnvAPIBaseURL)), SourceEnv
	}
	if raw == "" {
		raw, source = strings.TrimSpace(cfg.BaseURL), SourceConfig
	}
	if raw == "" {
		raw, source = DefaultBaseURL(cfg.Platform), SourceDefault
	}

	url = NormalizeBaseURL(raw)
	logging.Info("Config", "Using API base URL %s (from %s)", url, source)
	return url, source
}

// DefaultBaseURL returns the development server URL for platform. An empty
// platform means the platform famsched runs on.
func DefaultBaseURL(platform string) string {
	if platform == "" {
		platform = runtime.GOOS
	}
	host := "localhost"
	if platform == "android" {
		host = AndroidEmulatorHost
	}
	return fmt.Sprintf("http://%s:%d", host, DefaultPort)
}

// NormalizeBaseURL strips trailing slashes and appends "/api" unless the URL
// already ends with it.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.HasSuffix(u, "/api") {
		u += "/api"
	}
	return u
}
