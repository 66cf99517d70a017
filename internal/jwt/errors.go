package jwt

import (
	"errors"
	"fmt"
)

// Sentinel errors for TokenValidator operations. These drive internal
// control flow and logging; the string the caller ultimately sees is
// always drawn from the pipeline's fixed Deny-message table.
var (
	// ErrEmptyToken indicates the token string was empty.
	ErrEmptyToken = errors.New("token is empty")

	// ErrTokenMalformed indicates the token could not be parsed at all.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired indicates exp <= now at parse time.
	ErrTokenExpired = errors.New("token has expired")

	// ErrClaimMissing indicates a required claim (iss, sub, aud, exp) is absent.
	ErrClaimMissing = errors.New("required claim is missing")

	// ErrUnsupportedAlgorithm indicates the token's alg header is not one
	// this validator knows how to verify.
	ErrUnsupportedAlgorithm = errors.New("signing algorithm is not supported")

	// ErrInvalidKeySet indicates the key-set blob could not be parsed.
	ErrInvalidKeySet = errors.New("key set is invalid")

	// ErrSignatureInvalid indicates signature verification failed.
	ErrSignatureInvalid = errors.New("signature is invalid")
)

// ParseError wraps a failure from TokenValidator.Parse.
type ParseError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jwt parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("jwt parse error: %s", e.Message)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error { return e.Cause }

// Is supports errors.Is against the sentinel wrapped as Cause.
func (e *ParseError) Is(target error) bool {
	_, ok := target.(*ParseError)
	return ok || errors.Is(e.Cause, target)
}

// NewParseError wraps cause as a ParseError with message.
func NewParseError(message string, cause error) *ParseError {
	return &ParseError{Message: message, Cause: cause}
}

// VerifyError wraps a failure from TokenValidator.Verify.
type VerifyError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *VerifyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jwt verify error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("jwt verify error: %s", e.Message)
}

// Unwrap returns the underlying cause.
func (e *VerifyError) Unwrap() error { return e.Cause }

// Is supports errors.Is against the sentinel wrapped as Cause.
func (e *VerifyError) Is(target error) bool {
	_, ok := target.(*VerifyError)
	return ok || errors.Is(e.Cause, target)
}

// NewVerifyError wraps cause as a VerifyError with message.
func NewVerifyError(message string, cause error) *VerifyError {
	return &VerifyError{Message: message, Cause: cause}
}
