package harness

import (
	"errors"
	"fmt"
)

// Kind classifies why a single evaluation failed. Every kind is local to
// that evaluation; none of them stops an optimization run.
type Kind string

const (
	KindNonZeroExit   Kind = "non_zero_exit"
	KindTimeout       Kind = "timeout"
	KindParseFailure  Kind = "parse_failure"
	KindLaunchFailure Kind = "launch_failure"
	KindCanceled      Kind = "canceled"
)

// Sentinels matched by errors.Is against an *EvalError of the same kind.
var (
	ErrNonZeroExit   = errors.New("external program exited with non-zero status")
	ErrTimeout       = errors.New("external program timed out")
	ErrParseFailure  = errors.New("result artifact missing or unparsable")
	ErrLaunchFailure = errors.New("external program could not be started")
	ErrCanceled      = errors.New("evaluation canceled")
)

// EvalError is the failure of one evaluation.
type EvalError struct {
	Kind     Kind
	ExitCode int
	Detail   string
	Err      error
}

func (e *EvalError) Error() string {
	var msg string
	switch e.Kind {
	case KindNonZeroExit:
		msg = fmt.Sprintf("external program exited with code %d", e.ExitCode)
	case KindTimeout:
		msg = "external program timed out"
	case KindParseFailure:
		msg = "failed to parse result"
	case KindLaunchFailure:
		msg = "failed to launch external program"
	case KindCanceled:
		msg = "evaluation canceled"
	default:
		msg = "evaluation failed"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *EvalError) Is(target error) bool {
	switch target {
	case ErrNonZeroExit:
		return e.Kind == KindNonZeroExit
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrParseFailure:
		return e.Kind == KindParseFailure
	case ErrLaunchFailure:
		return e.Kind == KindLaunchFailure
	case ErrCanceled:
		return e.Kind == KindCanceled
	}
	return false
}

func nonZeroExit(code int, stderr string) *EvalError {
	return &EvalError{Kind: KindNonZeroExit, ExitCode: code, Detail: stderr}
}

func parseFailure(detail string, err error) *EvalError {
	return &EvalError{Kind: KindParseFailure, Detail: detail, Err: err}
}
