package cmd

import (
	"github.com/spf13/cobra"
)

var (
	resetEmail string
	resetUID   string
	resetToken string
)

// passwordResetCmd groups the password reset steps.
var passwordResetCmd = &cobra.Command{
	Use:   "password-reset",
	Short: "Reset a forgotten password",
	Long: `Reset a forgotten password in two steps.

'request' mails a reset link. The link carries a uid and a token; pass
both to 'confirm' together with the new password.

Examples:
  famsched auth password-reset request --email parent@example.com
  famsched auth password-reset confirm --uid MQ --token abc-123`,
}

var passwordResetRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Mail a password reset link",
	RunE:  runPasswordResetRequest,
}

var passwordResetConfirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Set a new password using the mailed uid and token",
	RunE:  runPasswordResetConfirm,
}

func init() {
	passwordResetCmd.AddCommand(passwordResetRequestCmd)
	passwordResetCmd.AddCommand(passwordResetConfirmCmd)

	passwordResetRequestCmd.Flags().StringVar(&resetEmail, "email", "", "Email address of the account")
	_ = passwordResetRequestCmd.MarkFlagRequired("email")

	passwordResetConfirmCmd.Flags().StringVar(&resetUID, "uid", "", "uid from the reset link")
	passwordResetConfirmCmd.Flags().StringVar(&resetToken, "token", "", "token from the reset link")
	passwordResetConfirmCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the new password twice from stdin")
	_ = passwordResetConfirmCmd.MarkFlagRequired("uid")
	_ = passwordResetConfirmCmd.MarkFlagRequired("token")
}

func runPasswordResetRequest(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	if err := env.auth.RequestPasswordReset(cmd.Context(), resetEmail); err != nil {
		return err
	}
	printf(cmd, "If %s has an account, a reset link is on its way.\n", resetEmail)
	return nil
}

func runPasswordResetConfirm(cmd *cobra.Command, args []string) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	password, err := promptNewPassword(cmd)
	if err != nil {
		return err
	}
	if err := env.auth.ConfirmPasswordReset(cmd.Context(), resetUID, resetToken, password); err != nil {
		return err
	}
	printf(cmd, "Password changed. Log in with 'famsched auth login'.\n")
	return nil
}
