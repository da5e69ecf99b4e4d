package cmd

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"famsched/internal/testing/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every package level flag variable between runs of
// the shared rootCmd.
func resetFlags() {
	configPath, apiURL, logLevel, credentialBackend = "", "", "", ""
	quiet, passwordStdin = false, false
	loginUsername, loginGoogleIDToken, registerEmail = "", "", ""
	resetEmail, resetUID, resetToken = "", "", ""
	apiData, apiQuery, apiShowMetrics = "", nil, false
	stdinReader = nil
}

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

type cliFixture struct {
	backend *mock.Backend
	flags   []string
}

func newCLIFixture(t *testing.T, cfg mock.BackendConfig) *cliFixture {
	t.Helper()
	t.Setenv("API_BASE_URL", "")
	mb := mock.NewBackend(t, cfg)
	return &cliFixture{
		backend: mb,
		flags:   []string{"--config-path", t.TempDir(), "--api-url", mb.URL(), "--quiet"},
	}
}

func (f *cliFixture) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return executeCommand(t, stdin, append(args, f.flags...)...)
}

func (f *cliFixture) login(t *testing.T) {
	t.Helper()
	_, err := f.run(t, mock.DefaultPassword+"\n", "auth", "login", "-u", mock.DefaultEmail, "--password-stdin")
	require.NoError(t, err)
}

func TestAuthCommandStructure(t *testing.T) {
	expected := []string{"login", "logout", "status", "refresh", "whoami", "register", "watch", "password-reset"}
	found := make(map[string]bool)
	for _, cmd := range authCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, name := range expected {
		assert.True(t, found[name], "expected subcommand %q to be registered", name)
	}
}

func TestAuthLoginWhoamiLogout(t *testing.T) {
	f := newCLIFixture(t, mock.BackendConfig{})
	f.login(t)

	out, err := f.run(t, "", "auth", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, mock.DefaultEmail)
	assert.Contains(t, out, "Pat Parent")

	out, err = f.run(t, "", "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Refresh token")
	assert.NotContains(t, out, "Unauthenticated")
	assert.Contains(t, out, f.backend.URL()+" (flag)")

	_, err = f.run(t, "", "auth", "logout")
	require.NoError(t, err)

	_, err = f.run(t, "", "auth", "whoami")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))

	out, err = f.run(t, "", "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Unauthenticated")
	assert.NotContains(t, out, "Refresh token")
}

func TestAuthLoginRejected(t *testing.T) {
	f := newCLIFixture(t, mock.BackendConfig{})

	_, err := f.run(t, "wrong\n", "auth", "login", "-u", mock.DefaultEmail, "--password-stdin")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(err))
}

func TestAuthStatusRefreshesExpiredSession(t *testing.T) {
	f := newCLIFixture(t, mock.BackendConfig{})
	f.login(t)
	f.backend.ExpireAccessTokens()

	out, err := f.run(t, "", "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Refresh token")
	assert.NotContains(t, out, "Unauthenticated")
	assert.Equal(t, 1, f.backend.RefreshCalls())
}

func TestAuthRefresh(t *testing.T) {
	f := newCLIFixture(t, mock.BackendConfig{RotateRefreshTokens: true})
	f.login(t)

	_, err := f.run(t, "", "auth", "refresh")
	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.RefreshCalls())

	// The rotated refresh token was stored, so a second refresh works too.
	_, err = f.run(t, "", "auth", "refresh")
	require.NoError(t, err)

	f.backend.RevokeRefreshTokens()
	_, err = f.run(t, "", "auth", "refresh")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestAuthLoginWithGoogle(t *testing.T) {
	f := newCLIFixture(t, mock.BackendConfig{
		GoogleAccounts: map[string]string{"google-id-token": "kid@example.com"},
	})

	_, err := f.run(t, "google-id-token\n", "auth", "login", "--google-id-token", "-")
	require.NoError(t, err)

	out, err := f.run(t, "", "auth", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "kid@example.com")

	_, err = f.run(t, "", "auth", "login", "--google-id-token", "forged")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(err))
}

func TestAuthRegister(t *testing.T) {
	f := newCLIFixture(t, mock.BackendConfig{})

	_, err := f.run(t, "pw-1\npw-2\n", "auth", "register", "--email", "kid@example.com", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passwords do not match")

	_, err = f.run(t, "pw-1\npw-1\n", "auth", "register", "--email", "kid@example.com", "--password-stdin")
	require.NoError(t, err)

	out, err := f.run(t, "", "auth", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "kid@example.com")
}

func TestAuthPasswordReset(t *testing.T) {
	f := newCLIFixture(t, mock.BackendConfig{})

	_, err := f.run(t, "", "auth", "password-reset", "request", "--email", mock.DefaultEmail)
	require.NoError(t, err)

	uid, token, ok := f.backend.ResetToken(mock.DefaultEmail)
	require.True(t, ok)

	_, err = f.run(t, "fresh-pw\nfresh-pw\n", "auth", "password-reset", "confirm", "--uid", uid, "--token", token, "--password-stdin")
	require.NoError(t, err)
	assert.Equal(t, "fresh-pw", f.backend.Password(mock.DefaultEmail))
}
