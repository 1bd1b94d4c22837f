package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mrz1836/quorum/internal/config"
	"github.com/mrz1836/quorum/internal/secure"
	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// minPassphraseLength applies to new keystore passphrases.
const minPassphraseLength = 8

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // Swappable for tests
var (
	promptPasswordFn    = promptPassword
	promptNewPasswordFn = promptNewPassword
	promptSecretFn      = promptSecret
	promptConfirmFn     = promptConfirmation
)

// out is a helper for CLI output that ignores write errors (standard pattern for CLI tools).
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}

// keystorePassphrase returns QUORUM_PASSPHRASE when set, otherwise prompts.
// The caller should zero the result.
func keystorePassphrase() ([]byte, error) {
	if p := os.Getenv(config.EnvPassphrase); p != "" {
		return []byte(p), nil
	}
	return promptPasswordFn("Keystore passphrase: ")
}

// newKeystorePassphrase is keystorePassphrase with confirmation.
func newKeystorePassphrase() ([]byte, error) {
	if p := os.Getenv(config.EnvPassphrase); p != "" {
		return checkPassphrase([]byte(p))
	}
	return promptNewPasswordFn()
}

// promptPassword prompts for a password with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(stdinFd())
	outln(os.Stderr) // Add newline after hidden input

	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}

	return password, nil
}

// promptNewPassword prompts for a new password with confirmation.
// The caller is responsible for zeroing the returned bytes after use.
func promptNewPassword() ([]byte, error) {
	password, err := promptPassword("New keystore passphrase: ")
	if err != nil {
		return nil, err
	}
	if password, err = checkPassphrase(password); err != nil {
		return nil, err
	}

	confirm, err := promptPassword("Confirm passphrase: ")
	if err != nil {
		secure.Zero(password)
		return nil, err
	}
	defer secure.Zero(confirm)

	if string(password) != string(confirm) {
		secure.Zero(password)
		return nil, qerr.WithSuggestion(qerr.ErrInvalidInput, "passphrases do not match")
	}

	return password, nil
}

func checkPassphrase(p []byte) ([]byte, error) {
	if len(p) < minPassphraseLength {
		secure.Zero(p)
		return nil, qerr.WithSuggestion(
			qerr.ErrInvalidInput,
			fmt.Sprintf("passphrase must be at least %d characters", minPassphraseLength),
		)
	}
	return p, nil
}

// promptSecret reads a mnemonic or hex private key. Input is hidden on a
// terminal and read as one line otherwise.
func promptSecret(prompt string) (string, error) {
	out(os.Stderr, "%s", prompt)

	if term.IsTerminal(stdinFd()) {
		raw, err := term.ReadPassword(stdinFd())
		outln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		defer secure.Zero(raw)
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", qerr.WithSuggestion(qerr.ErrInvalidInput, "no input provided")
	}
	return strings.TrimSpace(line), nil
}

func stdinFd() int {
	return int(os.Stdin.Fd()) //nolint:gosec // G115: Fd() fits in int on supported platforms
}

// promptConfirmation asks a yes/no question, defaulting to no.
func promptConfirmation(question string) bool {
	out(os.Stderr, "%s [y/N]: ", question)

	var response string
	if _, err := fmt.Scanln(&response); err != nil {
		return false
	}

	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
