package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"famsched/internal/auth"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

// passwordStdin makes password prompts read lines from standard input instead
// of the terminal, for scripts.
var passwordStdin bool

var errPromptCancelled = errors.New("cancelled")

// promptLine asks for a visible value on the terminal.
func promptLine(cmd *cobra.Command, prompt string) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: prompt,
		Stdout: cmd.ErrOrStderr(),
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create prompt: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", errPromptCancelled
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// stdinReader is shared so several password reads consume consecutive lines.
var stdinReader *bufio.Reader

// readStdinLine reads the next line of standard input without its line ending.
func readStdinLine(cmd *cobra.Command) (string, error) {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(cmd.InOrStdin())
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptPassword asks for a secret without echo, or reads a line from stdin
// with --password-stdin.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	if passwordStdin {
		line, err := readStdinLine(cmd)
		if err != nil {
			return "", fmt.Errorf("failed to read password from stdin: %w", err)
		}
		return line, nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Stdout: cmd.ErrOrStderr(),
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create prompt: %w", err)
	}
	defer rl.Close()

	secret, err := rl.ReadPassword(prompt)
	if errors.Is(err, readline.ErrInterrupt) {
		return "", errPromptCancelled
	}
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

// promptNewPassword asks for a password twice.
func promptNewPassword(cmd *cobra.Command) (string, error) {
	password, err := promptPassword(cmd, "New password: ")
	if err != nil {
		return "", err
	}
	confirm, err := promptPassword(cmd, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", auth.ErrPasswordMismatch
	}
	return password, nil
}
