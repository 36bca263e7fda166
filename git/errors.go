package git

import (
	"errors"
	"fmt"
)

// Sentinel errors that can be checked with errors.Is().
// They wrap underlying go-git errors behind a stable API.

// ErrAuthRequired is returned when an operation needs credentials that the
// configured AuthProvider could not supply.
var ErrAuthRequired = errors.New("authentication required")

// ErrNotFastForward is the cause of a *PushError whose update was rejected
// because it would overwrite remote history.
var ErrNotFastForward = errors.New("not a fast-forward")

// ErrInvalidRef is returned when a reference name, refspec or option value is
// malformed.
var ErrInvalidRef = errors.New("invalid reference")

// ErrResolveFailed is returned when no candidate name for a reference resolves
// to a commit.
var ErrResolveFailed = errors.New("cannot resolve revision")

// ErrBareRepository is returned by worktree operations on a bare repository.
var ErrBareRepository = errors.New("bare repository has no worktree")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
