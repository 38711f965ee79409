package socket

import (
	"context"
	"encoding/json"

	"github.com/tenantauth/auth-backend/internal/api/request"
	"github.com/tenantauth/auth-backend/internal/api/response"
	"github.com/tenantauth/auth-backend/internal/core/domain"
)

// eventHandler answers one event with a message key and the result to wrap.
type eventHandler func(ctx context.Context, data json.RawMessage) (string, any, error)

func (sess *session) registerHandlers() {
	sess.handled[EventRegister] = sess.onRegister
	sess.handled[EventLogin] = sess.onLogin
	sess.handled[EventRefreshToken] = sess.onRefreshToken
	sess.handled[EventLogout] = sess.onLogout
	sess.handled[EventMe] = sess.onMe
}

// decode unmarshals data into v and validates it. Empty data validates the
// zero value.
func (sess *session) decode(data json.RawMessage, v any) error {
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, v); err != nil {
			return &domain.ValidationError{Fields: map[string]string{"data": "invalid payload"}}
		}
	}
	return sess.server.validator.Validate(v)
}

func (sess *session) onRegister(ctx context.Context, data json.RawMessage) (string, any, error) {
	var req request.Register
	if err := sess.decode(data, &req); err != nil {
		return "", nil, err
	}
	user, err := sess.server.auth.Register(ctx, sess.scope, req.Input())
	if err != nil {
		return "", nil, err
	}
	return response.MsgRegistered, user, nil
}

func (sess *session) onLogin(ctx context.Context, data json.RawMessage) (string, any, error) {
	var req request.Login
	if err := sess.decode(data, &req); err != nil {
		return "", nil, err
	}
	res, err := sess.server.auth.Login(ctx, sess.scope, req.Input(), sess.connection())
	if err != nil {
		return "", nil, err
	}
	return response.MsgLoggedIn, res, nil
}

// onRefreshToken uses the token in data, or the one held by the session.
func (sess *session) onRefreshToken(ctx context.Context, data json.RawMessage) (string, any, error) {
	var req request.Refresh
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &req); err != nil {
			return "", nil, &domain.ValidationError{Fields: map[string]string{"data": "invalid payload"}}
		}
	}
	if req.RefreshToken == "" {
		req.RefreshToken = sess.state.RefreshToken
	}
	if err := sess.server.validator.Validate(&req); err != nil {
		return "", nil, err
	}
	pair, err := sess.server.auth.Refresh(ctx, sess.scope, req.RefreshToken, sess.connection())
	if err != nil {
		return "", nil, err
	}
	return response.MsgTokenRefreshed, pair, nil
}

// onLogout marks the connection offline and starts a fresh session.
func (sess *session) onLogout(ctx context.Context, _ json.RawMessage) (string, any, error) {
	if err := sess.server.auth.Logout(ctx, sess.scope, sess.id); err != nil {
		return "", nil, err
	}
	*sess.state = domain.AuthSession{}
	return response.MsgLoggedOut, nil, nil
}

func (sess *session) onMe(ctx context.Context, _ json.RawMessage) (string, any, error) {
	if sess.state.AccessToken == "" {
		return "", nil, domain.ErrMissingToken
	}
	principal, err := sess.server.auth.Authenticate(ctx, sess.scope, sess.state.AccessToken)
	if err != nil {
		return "", nil, err
	}
	sess.state.SetPrincipal(principal)
	return response.MsgPrincipalResolved, principal, nil
}

func failureReason(err error) string {
	return response.Resolve(err).Message
}

func isKnown(err error) bool {
	return response.Resolve(err).Known
}
