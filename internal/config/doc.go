// Package config provides configuration management for famsched.
//
// Configuration is loaded from config.yaml in a single directory. The default
// directory is ~/.config/famsched; commands accept --config-path to use
// another one. A missing file is not an error: defaults are used.
//
// # File Format
//
//	api:
//	  baseURL: https://famsched.example.com
//	  platform: android
//	  timeout: 30s
//	credentials:
//	  backend: keyring      # file (default), keyring or memory
//	  dir: ~/.config/famsched/credentials
//	session:
//	  validationErrorPolicy: propagate   # or logout
//	log:
//	  level: warn
//
// The loaded configuration is validated with struct tags; an invalid value
// fails the load with an error naming the offending field.
//
// # API Base URL
//
// ResolveBaseURL picks the backend URL from, in order: the --api-url flag,
// the API_BASE_URL environment variable (which LoadEnv may populate from
// .env files), api.baseURL in config.yaml, and finally a local development
// server on port 8000. The Android emulator reaches the host machine as
// 10.0.2.2, so platform android uses that host instead of localhost.
//
// The result is normalized to end in exactly one "/api".
package config
