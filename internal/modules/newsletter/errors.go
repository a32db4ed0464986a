package newsletter

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSpamRejected is logged as the cause when the honeypot is filled.
	ErrSpamRejected = errors.New("newsletter: submission rejected")
	// ErrNotFound is returned by a Store when the target record is gone.
	ErrNotFound = errors.New("newsletter: subscriber not found")
	// ErrDuplicateEmail is returned by a Store when a live record with the
	// same email already exists.
	ErrDuplicateEmail = errors.New("newsletter: email already registered")
)

// ValidationError lists required fields that were missing or malformed.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "newsletter: invalid fields: " + strings.Join(e.Fields, ", ")
}

// IntegrationError wraps a store or mailer failure.
type IntegrationError struct {
	Op  string
	Err error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("newsletter: %s: %v", e.Op, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

func integrationError(op string, err error) error {
	return &IntegrationError{Op: op, Err: err}
}
