package cmd

import (
	"fmt"
	"time"

	"famsched/internal/api"
	"famsched/internal/session"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Validate the stored session against the server and show the result.

An expired access token is refreshed once; if that fails the stored
session is cleared.`,
	RunE: runAuthStatus,
}

// authWhoamiCmd represents the auth whoami command
var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Long: `Fetch the profile of the logged in user.

Exits with code 2 when no session is stored or it has expired.`,
	RunE: runAuthWhoami,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	result, err := env.bootstrap(cmd.Context())
	if err != nil {
		return fmt.Errorf("could not verify session: %w", err)
	}

	current := env.holder.CurrentSession()

	t := newTable(cmd.OutOrStdout())
	t.AppendRow(row("API", fmt.Sprintf("%s (%s)", env.baseURL, env.baseURLSource)))
	t.AppendRow(row("Credentials", env.config.Credentials.Backend))
	if result.IsAuthenticated {
		t.AppendRow(row("Status", text.FgGreen.Sprint(result.State.String())))
		t.AppendRow(row("User", current.User.DisplayName()))
		if exp, ok := session.TokenExpiry(current.AccessToken); ok {
			t.AppendRow(row("Expires", formatExpiry(exp)))
		}
		refresh := "no"
		if current.RefreshToken != "" {
			refresh = "yes"
		}
		t.AppendRow(row("Refresh token", refresh))
	} else {
		t.AppendRow(row("Status", text.FgYellow.Sprint(result.State.String())))
	}
	t.Render()

	if !result.IsAuthenticated {
		printf(cmd, "\nTo log in, run:\n  famsched auth login\n")
	}
	return nil
}

func runAuthWhoami(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	if err := env.requireSession(cmd.Context()); err != nil {
		return err
	}

	// Through the client, so an access token that expired since bootstrap is
	// refreshed transparently.
	resp, err := env.client.Get(cmd.Context(), api.MePath, nil)
	if err != nil {
		return err
	}
	var profile session.UserProfile
	if err := resp.Decode(&profile); err != nil {
		return err
	}
	user := profile.ToUser()

	t := newTable(cmd.OutOrStdout())
	t.AppendRow(row("ID", user.ID))
	t.AppendRow(row("Email", user.Email))
	t.AppendRow(row("Name", user.DisplayName()))
	t.Render()
	return nil
}

// formatExpiry renders an expiry time with its distance from now.
func formatExpiry(exp time.Time) string {
	d := time.Until(exp).Round(time.Second)
	if d < 0 {
		return fmt.Sprintf("%s (expired %s ago)", exp.Local().Format(time.RFC3339), -d)
	}
	return fmt.Sprintf("%s (in %s)", exp.Local().Format(time.RFC3339), d)
}

