// Package apperr defines the error kinds a report run can fail with.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAuthentication  = errors.New("authentication failure")
	ErrNetwork         = errors.New("network failure")
	ErrDataFormat      = errors.New("data format error")
	ErrIO              = errors.New("io failure")
)

// Wrap tags err with kind. The result matches both kind and err with errors.Is.
func Wrap(kind error, err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}

// Kind returns the sentinel err was tagged with, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrInvalidArgument, ErrAuthentication, ErrNetwork, ErrDataFormat, ErrIO} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch Kind(err) {
	case ErrInvalidArgument:
		return 2
	case ErrAuthentication:
		return 3
	case ErrNetwork:
		return 4
	case ErrDataFormat:
		return 5
	case ErrIO:
		return 6
	}
	if err == nil {
		return 0
	}
	return 1
}
