package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxNameLength is the longest accepted playlist name, in characters.
const MaxNameLength = 100

var (
	ErrNameEmpty   = errors.New("must not be empty")
	ErrNameTooLong = fmt.Errorf("must be at most %d characters", MaxNameLength)
)

// ValidationError rejects user input before it reaches storage.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string { return e.Field + " " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidateName trims name and checks its length.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", &ValidationError{Field: "name", Err: ErrNameEmpty}
	case utf8.RuneCountInString(name) > MaxNameLength:
		return "", &ValidationError{Field: "name", Err: ErrNameTooLong}
	}
	return name, nil
}
