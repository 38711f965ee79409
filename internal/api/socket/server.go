// Package socket is the persistent-connection adapter. Each websocket carries
// an AuthSession for its lifetime; clients send {event, ack, data} frames and
// receive {ack, success, message, payload} replies.
package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/tenantauth/auth-backend/internal/api/metrics"
	"github.com/tenantauth/auth-backend/internal/api/middleware"
	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
	"github.com/tenantauth/auth-backend/internal/infrastructure/queue"
)

// Handshake credential names, read from headers first and then from the
// query string.
const (
	AccessTokenKey       = "access_token"
	RefreshTokenKey      = "refresh_token"
	OrganizationTokenKey = "organization_token"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultReadLimit    = 64 << 10
	defaultEventTimeout = 10 * time.Second
)

// OfflineQueue receives the presence update of a closed connection.
type OfflineQueue interface {
	Enqueue(job queue.OfflineJob) bool
}

// Options tunes the adapter. Zero values pick the defaults.
type Options struct {
	AllowedOrigins []string
	ReadLimit      int64
	EventTimeout   time.Duration
}

// Server upgrades HTTP requests to websocket sessions.
type Server struct {
	auth      ports.AuthService
	validator echo.Validator
	offline   OfflineQueue
	log       zerolog.Logger
	upgrader  websocket.Upgrader
	readLimit int64
	timeout   time.Duration

	mu     sync.Mutex
	conns  map[string]*session
	closed bool
	wg     sync.WaitGroup
}

func NewServer(auth ports.AuthService, validator echo.Validator, offline OfflineQueue, log zerolog.Logger, opts Options) *Server {
	s := &Server{
		auth:      auth,
		validator: validator,
		offline:   offline,
		log:       log,
		readLimit: opts.ReadLimit,
		timeout:   opts.EventTimeout,
		conns:     make(map[string]*session),
	}
	if s.readLimit <= 0 {
		s.readLimit = defaultReadLimit
	}
	if s.timeout <= 0 {
		s.timeout = defaultEventTimeout
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(opts.AllowedOrigins) > 0 {
		s.upgrader.CheckOrigin = originChecker(opts.AllowedOrigins)
	}
	return s
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		if !ok {
			_, ok = set["*"]
		}
		return ok
	}
}

// Public serves /ws/auth: a token is verified only when the client offers one.
func (s *Server) Public(c echo.Context) error {
	return s.serve(c, false)
}

// Protected serves /ws: the handshake must carry a valid access token.
func (s *Server) Protected(c echo.Context) error {
	return s.serve(c, true)
}

func (s *Server) serve(c echo.Context, requireAuth bool) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.log.Debug().Err(err).Str("path", c.Path()).Msg("websocket upgrade failed")
		return nil
	}

	sess := &session{
		id:      uuid.NewString(),
		ws:      ws,
		server:  s,
		scope:   domain.GlobalScope,
		state:   &domain.AuthSession{},
		handled: make(map[string]eventHandler),
	}
	sess.registerHandlers()

	if !s.track(sess) {
		sess.close(websocket.CloseGoingAway, "server shutting down")
		return nil
	}
	defer s.untrack(sess)

	ctx := context.WithoutCancel(c.Request().Context())
	if err := sess.handshake(ctx, c.Request(), requireAuth); err != nil {
		s.log.Debug().Err(err).Str("connection_id", sess.id).Msg("socket handshake rejected")
		sess.emit(errorEvent(err))
		sess.close(websocket.ClosePolicyViolation, "authentication failed")
		return nil
	}

	metrics.SocketConnections.Inc()
	defer metrics.SocketConnections.Dec()

	s.log.Info().
		Str("connection_id", sess.id).
		Str("scope", sess.scope.String()).
		Msg("socket connected")

	sess.run(ctx)

	if !s.offline.Enqueue(queue.OfflineJob{Scope: sess.scope, ConnectionID: sess.id}) {
		s.log.Warn().Str("connection_id", sess.id).Msg("offline update not queued")
	}
	s.log.Info().Str("connection_id", sess.id).Msg("socket disconnected")
	return nil
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[sess.id] = sess
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.conns, sess.id)
	s.mu.Unlock()
	s.wg.Done()
}

// Len returns the number of open sessions.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown closes every open session with 1001 and waits until their offline
// updates have been queued, or ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	open := make([]*session, 0, len(s.conns))
	for _, sess := range s.conns {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// session is one websocket connection. Events are handled one at a time on
// the read goroutine; only writes are shared with the ping loop.
type session struct {
	id     string
	ws     *websocket.Conn
	server *Server

	scope   domain.Scope
	state   *domain.AuthSession
	handled map[string]eventHandler

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (sess *session) connection() *ports.ConnectionContext {
	return &ports.ConnectionContext{ConnectionID: sess.id, Session: sess.state}
}

// handshake resolves the organization scope and the caller, when offered.
func (sess *session) handshake(ctx context.Context, r *http.Request, requireAuth bool) error {
	auth := sess.server.auth

	sess.state.AccessToken = credential(r, AccessTokenKey)
	sess.state.RefreshToken = credential(r, RefreshTokenKey)

	if orgToken := credential(r, OrganizationTokenKey); orgToken != "" {
		_, scope, err := auth.AuthenticateOrganization(ctx, orgToken)
		if err != nil {
			metrics.TokenRejectionsTotal.WithLabelValues(failureReason(err)).Inc()
			return err
		}
		sess.scope = scope
	}

	if sess.state.AccessToken == "" {
		if requireAuth {
			return domain.ErrMissingToken
		}
		return nil
	}

	principal, err := auth.Authenticate(ctx, sess.scope, sess.state.AccessToken)
	if err != nil {
		metrics.TokenRejectionsTotal.WithLabelValues(failureReason(err)).Inc()
		return err
	}
	return auth.BindConnection(ctx, principal, sess.connection())
}

// credential reads a handshake value: the named header, a bearer
// Authorization header for the access token, then the query string.
func credential(r *http.Request, name string) string {
	if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
		return v
	}
	if name == AccessTokenKey {
		if v := middleware.BearerToken(r, ""); v != "" {
			return v
		}
	}
	return r.URL.Query().Get(name)
}

func (sess *session) run(ctx context.Context) {
	srv := sess.server
	sess.ws.SetReadLimit(srv.readLimit)
	_ = sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	sess.ws.SetPongHandler(func(string) error {
		return sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go sess.pingLoop(done)

	for {
		_, raw, err := sess.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				srv.log.Warn().Err(err).Str("connection_id", sess.id).Msg("socket read failed")
			}
			sess.close(websocket.CloseNormalClosure, "")
			return
		}

		var frame Inbound
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			sess.emit(errorEvent(&domain.ValidationError{Fields: map[string]string{"frame": "frame must be a JSON object with an event"}}))
			continue
		}
		sess.dispatch(ctx, frame)
	}
}

func (sess *session) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sess.writeMu.Lock()
			err := sess.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			sess.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// dispatch runs one event and answers it. Failures and panics are turned
// into a {success:false} ack; the connection stays open.
func (sess *session) dispatch(ctx context.Context, frame Inbound) {
	srv := sess.server
	ctx, cancel := context.WithTimeout(ctx, srv.timeout)
	defer cancel()

	message, result, err := sess.handle(ctx, frame)
	if err != nil {
		reason := failureReason(err)
		metrics.Observe(metrics.TransportSocket, frame.Event, reason)

		serr := &Error{Event: frame.Event, Err: err}
		event := srv.log.Debug()
		if !isKnown(err) {
			event = srv.log.Error()
		}
		event.Err(serr).Str("connection_id", sess.id).Str("event", frame.Event).Msg("socket event failed")

		if frame.Ack == 0 {
			sess.emit(errorEvent(err))
			return
		}
		sess.reply(failureAck(frame.Ack, err))
		return
	}

	metrics.Observe(metrics.TransportSocket, frame.Event, "ok")
	if frame.Ack != 0 {
		sess.reply(successAck(frame.Ack, message, result))
	}
}

func (sess *session) handle(ctx context.Context, frame Inbound) (message string, result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			sess.server.log.Error().
				Interface("panic", r).
				Str("connection_id", sess.id).
				Str("event", frame.Event).
				Msg("socket event panicked")
			message, result, err = "", nil, domain.ErrInternal
		}
	}()

	h, ok := sess.handled[frame.Event]
	if !ok {
		return "", nil, &domain.ValidationError{Fields: map[string]string{"event": "unknown event " + frame.Event}}
	}
	return h(ctx, frame.Data)
}

func (sess *session) reply(ack Ack) {
	sess.write(ack)
}

func (sess *session) emit(out Outbound) {
	sess.write(out)
}

func (sess *session) write(v any) {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = sess.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := sess.ws.WriteJSON(v); err != nil {
		sess.server.log.Debug().Err(err).Str("connection_id", sess.id).Msg("socket write failed")
	}
}

// close sends a close frame once and releases the connection. A pending
// ReadMessage returns an error afterwards.
func (sess *session) close(code int, text string) {
	sess.closeOnce.Do(func() {
		sess.writeMu.Lock()
		_ = sess.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
		sess.writeMu.Unlock()
		_ = sess.ws.Close()
	})
}
