// Package errors provides structured error handling for quorum.
// It defines the sentinel errors of the account taxonomy, exit codes,
// and helpers for adding context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes used by the quorum CLI.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input or configuration
	ExitAuth     = 3 // Authentication or signing failed
	ExitNotFound = 4 // Resource not found
	ExitState    = 5 // Operation not valid in the current state
	ExitTimeout  = 6 // Wait exceeded its deadline
)

// QuorumError is the structured error type for quorum.
type QuorumError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *QuorumError) Error() string {
	msg := e.Message

	// Details are sorted for deterministic output
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *QuorumError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for QuorumError. Two errors match when their codes match.
func (e *QuorumError) Is(target error) bool {
	var t *QuorumError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &QuorumError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &QuorumError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	// Account configuration and state errors.
	ErrConfiguration = &QuorumError{
		Code:     "CONFIGURATION_ERROR",
		Message:  "contradictory or missing account options",
		ExitCode: ExitInput,
	}

	ErrAccountNotInitialized = &QuorumError{
		Code:     "ACCOUNT_NOT_INITIALIZED",
		Message:  "smart account is not initialized",
		ExitCode: ExitState,
	}

	ErrBuilderConsumed = &QuorumError{
		Code:     "BUILDER_CONSUMED",
		Message:  "account builder has already been used",
		ExitCode: ExitState,
	}

	ErrBuilderBusy = &QuorumError{
		Code:     "BUILDER_BUSY",
		Message:  "account builder is already building",
		ExitCode: ExitState,
	}

	// Chain errors.
	ErrUnknownChain = &QuorumError{
		Code:     "UNKNOWN_CHAIN",
		Message:  "unknown chain id",
		ExitCode: ExitInput,
	}

	ErrChainNotConfigured = &QuorumError{
		Code:     "CHAIN_NOT_CONFIGURED",
		Message:  "chain is not among the configured chain options",
		ExitCode: ExitInput,
	}

	// Engine errors.
	ErrEngine = &QuorumError{
		Code:     "ENGINE_ERROR",
		Message:  "account engine failed",
		ExitCode: ExitGeneral,
	}

	ErrTimeout = &QuorumError{
		Code:     "TIMEOUT",
		Message:  "timed out waiting for transaction receipt",
		ExitCode: ExitTimeout,
	}

	ErrNotImplemented = &QuorumError{
		Code:     "NOT_IMPLEMENTED",
		Message:  "operation not implemented",
		ExitCode: ExitGeneral,
	}

	ErrNetworkError = &QuorumError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	// Transaction errors.
	ErrEmptyBatch = &QuorumError{
		Code:     "EMPTY_BATCH",
		Message:  "transaction batch is empty",
		ExitCode: ExitInput,
	}

	ErrInvalidTransaction = &QuorumError{
		Code:     "INVALID_TRANSACTION",
		Message:  "invalid transaction",
		ExitCode: ExitInput,
	}

	ErrTxRejected = &QuorumError{
		Code:     "TX_REJECTED",
		Message:  "transaction rejected by relayer",
		ExitCode: ExitGeneral,
	}

	// Key and signing errors.
	ErrInvalidKeyset = &QuorumError{
		Code:     "INVALID_KEYSET",
		Message:  "invalid keyset",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &QuorumError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrInvalidKey = &QuorumError{
		Code:     "INVALID_KEY",
		Message:  "invalid private key",
		ExitCode: ExitInput,
	}

	ErrInvalidMnemonic = &QuorumError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	ErrInvalidSignature = &QuorumError{
		Code:     "INVALID_SIGNATURE",
		Message:  "invalid signature",
		ExitCode: ExitAuth,
	}

	ErrNoSigner = &QuorumError{
		Code:     "NO_SIGNER",
		Message:  "no signer available for the master key",
		ExitCode: ExitAuth,
	}

	// Keystore errors.
	ErrKeystoreNotFound = &QuorumError{
		Code:     "KEYSTORE_NOT_FOUND",
		Message:  "keystore file not found",
		ExitCode: ExitNotFound,
	}

	ErrKeystoreExists = &QuorumError{
		Code:     "KEYSTORE_EXISTS",
		Message:  "keystore file already exists",
		ExitCode: ExitInput,
	}

	ErrDecryptionFailed = &QuorumError{
		Code:     "DECRYPTION_FAILED",
		Message:  "decryption failed - wrong password or corrupted file",
		ExitCode: ExitAuth,
	}

	// Config errors.
	ErrConfigNotFound = &QuorumError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &QuorumError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}
)

// New creates a new QuorumError with the given code and message.
func New(code, message string) *QuorumError {
	return &QuorumError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var qe *QuorumError
	if errors.As(err, &qe) {
		return &QuorumError{
			Code:       qe.Code,
			Message:    fmt.Sprintf("%s: %s", msg, qe.Message),
			Details:    qe.Details,
			Suggestion: qe.Suggestion,
			Cause:      err,
			ExitCode:   qe.ExitCode,
		}
	}

	return &QuorumError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// Engine wraps an engine failure with the name of the operation that
// produced it. The result matches ErrEngine and keeps the cause reachable.
func Engine(op string, err error) error {
	if err == nil {
		return nil
	}
	return &QuorumError{
		Code:     ErrEngine.Code,
		Message:  fmt.Sprintf("%s: %s", op, ErrEngine.Message),
		Details:  map[string]string{"operation": op},
		Cause:    err,
		ExitCode: ErrEngine.ExitCode,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var qe *QuorumError
	if errors.As(err, &qe) {
		return &QuorumError{
			Code:       qe.Code,
			Message:    qe.Message,
			Details:    details,
			Suggestion: qe.Suggestion,
			Cause:      qe.Cause,
			ExitCode:   qe.ExitCode,
		}
	}

	return &QuorumError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var qe *QuorumError
	if errors.As(err, &qe) {
		return &QuorumError{
			Code:       qe.Code,
			Message:    qe.Message,
			Details:    qe.Details,
			Suggestion: suggestion,
			Cause:      qe.Cause,
			ExitCode:   qe.ExitCode,
		}
	}

	return &QuorumError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var qe *QuorumError
	if errors.As(err, &qe) {
		return qe.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var qe *QuorumError
	if errors.As(err, &qe) {
		return qe.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
