package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"famsched/internal/credstore"
	"famsched/internal/session"

	"github.com/spf13/cobra"
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage your famsched session",
	Long: `Manage the session famsched uses for API calls.

Examples:
  famsched auth login                  # Log in with email and password
  famsched auth status                 # Show whether the stored session is valid
  famsched auth whoami                 # Show the logged in user
  famsched auth refresh                # Force an access token refresh
  famsched auth logout                 # Clear the stored session
  famsched auth register               # Create an account
  famsched auth password-reset request --email me@example.com`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	Long: `Clear both stored tokens.

The next command that needs the API will ask you to log in again.`,
	RunE: runAuthLogout,
}

// authRefreshCmd represents the auth refresh command
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force an access token refresh",
	Long: `Exchange the stored refresh token for a new access token.

If the refresh token is missing or rejected the session is cleared.`,
	RunE: runAuthRefresh,
}

// authWatchCmd represents the auth watch command
var authWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow session changes made by other famsched processes",
	Long: `Restore the stored session, then report every login, logout and
token refresh another famsched process writes to the credential store.

Only the file credential backend can be watched. Stop with Ctrl+C.`,
	RunE: runAuthWatch,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authWhoamiCmd)
	authCmd.AddCommand(authRegisterCmd)
	authCmd.AddCommand(authWatchCmd)
	authCmd.AddCommand(passwordResetCmd)
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	env.auth.Logout(cmd.Context())
	printf(cmd, "Logged out.\n")
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	var token string
	err = withSpinner("Refreshing token...", func() error {
		token, err = env.client.Refresh(cmd.Context())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to refresh token: %w", err)
	}

	printf(cmd, "Token refreshed successfully.\n")
	if exp, ok := session.TokenExpiry(token); ok {
		printf(cmd, "Expires:   %s\n", formatExpiry(exp))
	}
	return nil
}

func runAuthWatch(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	watcher, ok := env.store.(*credstore.FileStore)
	if !ok {
		return fmt.Errorf("credential backend %q cannot be watched", env.config.Credentials.Backend)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := env.bootstrap(ctx); err != nil {
		return err
	}
	printSessionLine(cmd, env.holder.CurrentSession())

	unsubscribe := env.holder.Subscribe(func(s session.Session) {
		printSessionLine(cmd, s)
	})
	defer unsubscribe()

	return env.auth.FollowStore(ctx, watcher)
}

func printSessionLine(cmd *cobra.Command, s session.Session) {
	if !s.IsAuthenticated {
		fmt.Fprintln(cmd.OutOrStdout(), "Session: logged out")
		return
	}
	who := s.User.DisplayName()
	if who == "" {
		who = "unknown user"
	}
	line := "Session: logged in as " + who
	if exp, ok := session.TokenExpiry(s.AccessToken); ok {
		line += ", token expires " + formatExpiry(exp)
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}
