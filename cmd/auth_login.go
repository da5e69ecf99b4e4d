package cmd

import (
	"fmt"

	"famsched/internal/session"

	"github.com/spf13/cobra"
)

var (
	loginUsername      string
	loginGoogleIDToken string
	registerEmail      string
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	Long: `Log in to the family scheduler and store the session.

The password is read from the terminal without echo. Use --password-stdin
to pipe it in from a script.

With --google-id-token the ID token of a Google sign-in is exchanged for
a famsched session instead. Pass "-" to read the token from stdin.

Examples:
  famsched auth login
  famsched auth login -u parent@example.com
  gcloud auth print-identity-token | famsched auth login --google-id-token -
  pass show famsched | famsched auth login -u parent@example.com --password-stdin`,
	RunE: runAuthLogin,
}

// authRegisterCmd represents the auth register command
var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Create a family scheduler account.

If the server logs new accounts in directly the session is stored right
away; otherwise run 'famsched auth login' afterwards.`,
	RunE: runAuthRegister,
}

func init() {
	authLoginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Email address to log in with")
	authLoginCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	authLoginCmd.Flags().StringVar(&loginGoogleIDToken, "google-id-token", "", "Log in with a Google ID token (\"-\" reads it from stdin)")

	authRegisterCmd.Flags().StringVar(&registerEmail, "email", "", "Email address of the new account")
	authRegisterCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password twice from stdin")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	if loginGoogleIDToken != "" {
		if loginUsername != "" {
			return fmt.Errorf("--google-id-token and --username cannot be combined")
		}
		return runGoogleLogin(cmd, env)
	}

	username := loginUsername
	if username == "" {
		if username, err = promptLine(cmd, "Email: "); err != nil {
			return err
		}
	}
	password, err := promptPassword(cmd, "Password: ")
	if err != nil {
		return err
	}

	var user *session.User
	err = withSpinner("Logging in...", func() error {
		user, err = env.auth.Login(cmd.Context(), username, password)
		return err
	})
	if err != nil {
		return err
	}

	printf(cmd, "Logged in as %s\n", user.DisplayName())
	return nil
}

func runGoogleLogin(cmd *cobra.Command, env *environment) error {
	idToken := loginGoogleIDToken
	if idToken == "-" {
		line, err := readStdinLine(cmd)
		if err != nil {
			return fmt.Errorf("failed to read Google ID token from stdin: %w", err)
		}
		idToken = line
	}

	var user *session.User
	err := withSpinner("Signing in with Google...", func() error {
		var err error
		user, err = env.auth.LoginWithGoogle(cmd.Context(), idToken)
		return err
	})
	if err != nil {
		return err
	}

	printf(cmd, "Logged in as %s\n", user.DisplayName())
	return nil
}

func runAuthRegister(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}

	email := registerEmail
	if email == "" {
		if email, err = promptLine(cmd, "Email: "); err != nil {
			return err
		}
	}
	password, err := promptNewPassword(cmd)
	if err != nil {
		return err
	}

	user, err := env.auth.Register(cmd.Context(), email, password, password)
	if err != nil {
		return err
	}
	if user == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Account %s created. Run 'famsched auth login' to log in.\n", email)
		return nil
	}

	printf(cmd, "Account created, logged in as %s\n", user.DisplayName())
	return nil
}
