package smartaccount

import "time"

// LogWriter receives the account's diagnostic output.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Recorder receives one sample per account operation.
type Recorder interface {
	RecordAccountOp(op string, duration time.Duration, err error)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

type nopRecorder struct{}

func (nopRecorder) RecordAccountOp(string, time.Duration, error) {}
