package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"caretalk/internal/app"
	"caretalk/internal/attachments"
	"caretalk/internal/authclient"
	"caretalk/internal/ratelimit"
	"caretalk/internal/usertoken"
	"caretalk/internal/util"
	"caretalk/pkg/domain"
)

const defaultMessageRateLimit = 30

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                       *app.App
	Auth                      *authclient.Client
	TokenVerifier             *usertoken.Verifier
	Attachments               *attachments.Store
	RedisAddr                 string
	RedisPassword             string
	MessageRateLimitPerMinute int
	MaxAttachmentBytes        int64
}

// Server exposes the messaging HTTP endpoints.
type Server struct {
	app                *app.App
	auth               *authclient.Client
	tokenVerifier      *usertoken.Verifier
	attachments        *attachments.Store
	messageLimiter     *ratelimit.FixedWindowLimiter
	maxAttachmentBytes int64
	mux                *http.ServeMux
}

// New constructs the server with routes configured. The message limiter is
// active only when a Redis address is supplied.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an app")
	}
	if cfg.Auth == nil {
		return nil, errors.New("server requires an identity-provider client")
	}
	var limiter *ratelimit.FixedWindowLimiter
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		limit := cfg.MessageRateLimitPerMinute
		if limit <= 0 {
			limit = defaultMessageRateLimit
		}
		var err error
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "caretalk:ratelimit:message", limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init message limiter: %w", err)
		}
	}
	maxAttachmentBytes := cfg.MaxAttachmentBytes
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = 10 << 20
	}
	s := &Server{
		app:                cfg.App,
		auth:               cfg.Auth,
		tokenVerifier:      cfg.TokenVerifier,
		attachments:        cfg.Attachments,
		messageLimiter:     limiter,
		maxAttachmentBytes: maxAttachmentBytes,
		mux:                http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.Handle("GET /users/search", s.authenticated(s.handleSearchUsers))

	s.mux.Handle("POST /conversations/direct", s.authenticated(s.handleCreateDirect))
	s.mux.Handle("GET /conversations", s.authenticated(s.handleListConversations))
	s.mux.Handle("GET /conversations/{id}/messages", s.authenticated(s.handleListMessages))
	s.mux.Handle("POST /conversations/{id}/messages", s.authenticated(s.handleSendMessage))
	s.mux.Handle("DELETE /conversations/{id}/messages/{messageId}", s.authenticated(s.handleDeleteMessage))
	s.mux.Handle("PUT /conversations/{id}/read", s.authenticated(s.handleMarkRead))
	s.mux.Handle("POST /conversations/{id}/attachments", s.authenticated(s.handleUploadAttachment))

	s.mux.Handle("POST /groups", s.authenticated(s.handleCreateGroup))
	s.mux.Handle("GET /groups", s.authenticated(s.handleListGroups))
	s.mux.Handle("GET /groups/{id}", s.authenticated(s.handleGetGroup))
	s.mux.Handle("DELETE /groups/{id}", s.authenticated(s.handleDeleteGroup))
	s.mux.Handle("POST /groups/{id}/participants", s.authenticated(s.handleAddParticipants))
	s.mux.Handle("DELETE /groups/{id}/participants/{userId}", s.authenticated(s.handleRemoveParticipant))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

// authenticated resolves the caller identity before invoking the handler. The
// local signature check rejects garbage tokens cheaply; the identity provider
// stays authoritative.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "messaging.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized", "authorization token required")
			return
		}
		if s.tokenVerifier != nil {
			if _, err := s.tokenVerifier.VerifySubject(token); err != nil {
				s.audit(r, "messaging.authorize", "fail", "reason", "invalid_signature_or_claims")
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}
		}
		user, err := s.auth.Me(token)
		if err != nil {
			s.audit(r, "messaging.authorize", "fail", "reason", "auth_me_failed")
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		if err := s.app.SyncUser(user); err != nil {
			util.LoggerFromContext(r.Context()).Warn("sync user profile", "err", err, "user_id", user.ID)
		}
		s.audit(r, "messaging.authorize", "success", "user_id", user.ID)
		next(w, r, user)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
		"request_id", util.RequestIDFromRequest(r),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

// writeAppError translates the app error taxonomy to HTTP. Store failures are
// logged and reduced to a generic 500.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, app.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "err", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

// pathID parses a positive integer path segment.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", app.ErrInvalidArgument, name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryInt64(r *http.Request, name string) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
