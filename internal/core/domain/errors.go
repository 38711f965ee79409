package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrDuplicateEmail    = errors.New("user already registered")
	ErrUserNotFound      = errors.New("user not found")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrForbidden         = errors.New("access forbidden")
	ErrTooManyRequests   = errors.New("too many requests")
)

// Token errors. Verify always returns exactly one of the first three.
var (
	ErrTokenExpired            = errors.New("token has expired")
	ErrTokenInvalid            = errors.New("token is invalid")
	ErrTokenVerificationFailed = errors.New("token verification failed")
	ErrMissingToken            = errors.New("access token is required")
	ErrMissingRefreshToken     = errors.New("refresh token is required")
	ErrInvalidAudience         = errors.New("invalid audience")
	ErrRefreshFailed           = errors.New("refresh failed")
)

var (
	ErrTenantUnavailable = errors.New("tenant unavailable")
	ErrExternalProvider  = errors.New("external identity provider error")
	ErrInvalidState      = errors.New("invalid state parameter")
	ErrInternal          = errors.New("internal error")
)

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ErrNoCredential is returned by stores asked to persist a user that can
// neither sign in with a password nor with a federated identity.
var ErrNoCredential = &ValidationError{Fields: map[string]string{
	"credential": "a password or a federated identity is required",
}}

// RefreshError reports why a refresh token was rejected. It matches both
// ErrRefreshFailed and the underlying token error.
type RefreshError struct {
	Reason error
}

func (e *RefreshError) Error() string {
	return ErrRefreshFailed.Error() + ": " + e.Reason.Error()
}

func (e *RefreshError) Unwrap() []error {
	return []error{ErrRefreshFailed, e.Reason}
}
