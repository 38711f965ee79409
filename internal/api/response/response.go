// Package response renders the {code, message, type, payload} envelope and
// maps errors onto status codes and message keys for every transport.
package response

import (
	"errors"
	"net/http"

	"github.com/tenantauth/auth-backend/internal/core/domain"
)

// Message keys returned on success.
const (
	MsgRegistered        = "register_successfully"
	MsgLoggedIn          = "login_successfully"
	MsgTokenRefreshed    = "token_refreshed_successfully"
	MsgLinkGenerated     = "link_generated_successfully"
	MsgAuthenticated     = "authenticated_successfully"
	MsgPrincipalResolved = "principal_resolved"
	MsgLoggedOut         = "logout_successfully"
	MsgTenantsListed     = "tenants_listed"
)

// Envelope is the body of every HTTP response.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Payload any    `json:"payload"`
}

// Result wraps a success value as {result: v}.
type Result struct {
	Result any `json:"result"`
}

// ErrorDetail is the payload of a failed response.
type ErrorDetail struct {
	Error any `json:"error,omitempty"`
}

func Success(code int, message string, result any) Envelope {
	return Envelope{Code: code, Message: message, Payload: Result{Result: result}}
}

// Failure describes how an error is shown to clients.
type Failure struct {
	Status  int
	Message string
	Type    string
	// Known is false for errors outside the domain taxonomy; their text is
	// never shown to clients.
	Known bool
}

type rule struct {
	err     error
	status  int
	message string
	kind    string
}

// Order matters where one error matches several sentinels: RefreshError
// matches both ErrRefreshFailed and the token error, and the token error wins.
var rules = []rule{
	{domain.ErrValidation, http.StatusBadRequest, "validation_error", "validation"},
	{domain.ErrInvalidState, http.StatusBadRequest, "invalid_state", "validation"},
	{domain.ErrDuplicateEmail, http.StatusConflict, "user_already_registered", "conflict"},
	{domain.ErrUserNotFound, http.StatusUnauthorized, "user_not_found", "authentication"},
	{domain.ErrIncorrectPassword, http.StatusUnauthorized, "incorrect_password", "authentication"},
	{domain.ErrMissingToken, http.StatusUnauthorized, "access_token_required", "authentication"},
	{domain.ErrMissingRefreshToken, http.StatusUnauthorized, "refresh_token_required", "authentication"},
	{domain.ErrTokenExpired, http.StatusUnauthorized, "token_has_expired", "authentication"},
	{domain.ErrTokenInvalid, http.StatusUnauthorized, "token_is_invalid", "authentication"},
	{domain.ErrTokenVerificationFailed, http.StatusUnauthorized, "token_verification_failed", "authentication"},
	{domain.ErrInvalidAudience, http.StatusUnauthorized, "invalid_audience", "authentication"},
	{domain.ErrPrincipalNotFound, http.StatusUnauthorized, "principal_not_found", "authentication"},
	{domain.ErrRefreshFailed, http.StatusUnauthorized, "refresh_failed", "authentication"},
	{domain.ErrForbidden, http.StatusForbidden, "access_forbidden", "authorization"},
	{domain.ErrTooManyRequests, http.StatusTooManyRequests, "too_many_requests", "rate_limit"},
	{domain.ErrExternalProvider, http.StatusBadGateway, "external_provider_error", "upstream"},
	{domain.ErrTenantUnavailable, http.StatusServiceUnavailable, "tenant_unavailable", "unavailable"},
}

// Resolve maps err to its client-facing status and message key.
func Resolve(err error) Failure {
	for _, r := range rules {
		if errors.Is(err, r.err) {
			return Failure{Status: r.status, Message: r.message, Type: r.kind, Known: true}
		}
	}
	return Failure{Status: http.StatusInternalServerError, Message: "internal_server_error", Type: "internal"}
}

// Error builds the failure envelope. Validation errors carry their field
// messages; unknown errors carry nothing.
func Error(err error) (int, Envelope) {
	f := Resolve(err)
	env := Envelope{Code: f.Status, Message: f.Message, Type: f.Type, Payload: ErrorDetail{}}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr) && len(verr.Fields) > 0:
		env.Payload = ErrorDetail{Error: verr.Fields}
	case f.Known:
		env.Payload = ErrorDetail{Error: err.Error()}
	}
	return f.Status, env
}
