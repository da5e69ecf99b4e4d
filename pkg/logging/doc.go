// Package logging provides subsystem-tagged structured logging for famsched.
//
// The package wraps log/slog. Every entry carries a "subsystem" attribute so
// output from the request client, the credential store and the CLI can be
// filtered independently:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("APIClient", "Using API base URL %s", baseURL)
//	logging.Debug("CredStore", "Loaded %s", serviceKey)
//	logging.Error("Bootstrap", err, "Token refresh failed")
//
// Credential events are additionally reported with Audit, which emits a
// "SECURITY_AUDIT:" prefixed entry with structured attributes. Token values
// must never be passed to any of these functions.
package logging
