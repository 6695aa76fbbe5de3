package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// TransientError marks a failure worth retrying: timeouts, rate limits,
// upstream 5xx.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TerminalError marks a failure that retrying cannot fix: validation,
// auth, bad request.
type TerminalError struct {
	Op  string
	Err error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Transientf wraps an error as transient.
func Transientf(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// Terminalf wraps an error as terminal.
func Terminalf(op string, err error) error {
	return &TerminalError{Op: op, Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// Classify wraps an upstream error as transient or terminal based on its
// shape. Already-classified errors pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var transient *TransientError
	var terminal *TerminalError
	if errors.As(err, &transient) || errors.As(err, &terminal) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transientf(op, err)
	}
	if errors.Is(err, context.Canceled) {
		return Terminalf(op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transientf(op, err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 408 || apiErr.Code == 429 || apiErr.Code >= 500:
			return Transientf(op, err)
		default:
			return Terminalf(op, err)
		}
	}

	// Unknown failure shapes are retried up to the attempt cap.
	return Transientf(op, err)
}
