package session

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidName is wrapped by ValidateName failures.
var ErrInvalidName = errors.New("invalid session name")

// Session names become directory names under sessions/, so path
// separators and dots are never allowed.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w %q: use 1-64 of a-z, 0-9, '_' or '-'", ErrInvalidName, name)
	}
	return nil
}
