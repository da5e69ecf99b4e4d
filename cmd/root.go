package cmd

import (
	"errors"
	"os"

	"famsched/internal/api"
	"famsched/internal/auth"
	"famsched/internal/config"
	"famsched/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates the user is not logged in or the session expired.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the backend rejected the login.
	ExitCodeAuthFailed = 3
)

// Global flags shared by all commands.
var (
	configPath        string
	apiURL            string
	logLevel          string
	credentialBackend string
	quiet             bool
)

// rootCmd represents the base command for the famsched application.
var rootCmd = &cobra.Command{
	Use:   "famsched",
	Short: "Command line client for the family scheduler",
	Long: `famsched talks to the family scheduler REST API on your behalf.

It logs you in, keeps your session alive by refreshing expired access
tokens transparently, and lets you call any API endpoint with the stored
credentials.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "famsched version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case errors.Is(err, auth.ErrInvalidCredentials):
		return ExitCodeAuthFailed
	case errors.Is(err, auth.ErrNotLoggedIn), errors.Is(err, api.ErrSessionExpired):
		return ExitCodeAuthRequired
	default:
		return ExitCodeError
	}
}

// initLogging loads .env files and configures the log level from --log-level
// or, when unset, from the config file.
func initLogging(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	level := logLevel
	if level == "" {
		if cfg, err := config.LoadConfig(configPath); err == nil {
			level = cfg.Log.Level
		}
	}
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	logging.InitForCLI(parsed, cmd.ErrOrStderr())
	return nil
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Configuration directory (default ~/.config/famsched)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL (env: API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&credentialBackend, "credential-backend", "", "Credential storage: file, keyring or memory")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
}
