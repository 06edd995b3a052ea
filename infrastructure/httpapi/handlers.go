package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"relaychat/auth"
	"relaychat/domain"
	"relaychat/errors"
	"relaychat/observability"
	"relaychat/repositories"
	"relaychat/resilience"
	"relaychat/services"
)

// API bundles the account and admin endpoints that live next to the
// websocket: register, login, logout, moderation and runtime stats.
type API struct {
	users    repositories.IUserRepository
	sessions repositories.ISessionRepository
	store    *resilience.Breaker
	issuer   *auth.TokenIssuer
	presence services.IPresenceService
	monitor  *observability.Monitor
	log      *slog.Logger
	now      func() time.Time
}

func NewAPI(
	users repositories.IUserRepository,
	sessions repositories.ISessionRepository,
	store *resilience.Breaker,
	issuer *auth.TokenIssuer,
	presence services.IPresenceService,
	monitor *observability.Monitor,
	log *slog.Logger,
) *API {
	return &API{
		users:    users,
		sessions: sessions,
		store:    store,
		issuer:   issuer,
		presence: presence,
		monitor:  monitor,
		log:      log,
		now:      time.Now,
	}
}

// Register installs the API routes on the given mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", a.handleRegister)
	mux.HandleFunc("POST /api/login", a.handleLogin)
	mux.HandleFunc("POST /api/logout", a.handleLogout)
	mux.HandleFunc("POST /api/admin/disconnect", a.handleAdminDisconnect)
	mux.HandleFunc("GET /api/stats", a.handleStats)
}

type registerResponse struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "malformed body", errors.CodeInternal)
		return
	}
	if err := auth.ValidateRegister(req); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error(), errors.CodeInvalidCredentials)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.log.Error("Password hashing failed", slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, "internal error", errors.CodeInternal)
		return
	}

	user := domain.User{
		ID:           uuid.NewString(),
		Nickname:     req.Nickname,
		PasswordHash: hash,
		Role:         "user",
		Status:       domain.StatusOffline,
		CreatedAt:    a.now().UTC(),
	}
	err = a.store.Do(r.Context(), func(context.Context) error {
		return a.users.CreateUser(user)
	})
	switch {
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		a.writeError(w, http.StatusConflict, "nickname already taken", errors.CodeUserAlreadyExists)
		return
	case err != nil:
		a.log.Error("User creation failed", slog.String("error", err.Error()))
		a.writeError(w, http.StatusServiceUnavailable, "store unavailable", errors.CodeOf(err))
		return
	}

	a.log.Info("User registered", slog.String("nickname", user.Nickname))
	a.writeJSON(w, http.StatusCreated, registerResponse{UserID: user.ID, Nickname: user.Nickname})
}

type loginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type loginResponse struct {
	SessionID string `json:"sessionId"`
	CSRFToken string `json:"csrfToken"`
	Token     string `json:"token"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "malformed body", errors.CodeInternal)
		return
	}

	var user domain.User
	err := a.store.Do(r.Context(), func(context.Context) error {
		var inner error
		user, inner = a.users.GetUserByNickname(req.Nickname)
		return inner
	})
	switch {
	case stderrors.Is(err, errors.ErrUserNotFound):
		a.writeError(w, http.StatusUnauthorized, "invalid credentials", errors.CodeInvalidCredentials)
		return
	case err != nil:
		a.writeError(w, http.StatusServiceUnavailable, "store unavailable", errors.CodeOf(err))
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		a.monitor.IncrAuthRejections()
		a.writeError(w, http.StatusUnauthorized, "invalid credentials", errors.CodeInvalidCredentials)
		return
	}

	if user.BanActive(a.now()) {
		a.monitor.IncrAuthRejections()
		a.writeError(w, http.StatusForbidden, "account banned: "+user.BanReason, errors.CodeBanned)
		return
	}

	session := auth.NewSession(user, r.UserAgent(), a.now())
	if err := a.store.Do(r.Context(), func(context.Context) error {
		return a.sessions.SaveSession(session)
	}); err != nil {
		a.writeError(w, http.StatusServiceUnavailable, "store unavailable", errors.CodeOf(err))
		return
	}

	token, err := a.issuer.Generate(user.ID, user.Nickname, user.Role)
	if err != nil {
		a.log.Error("Token generation failed", slog.String("error", err.Error()))
		a.writeError(w, http.StatusInternalServerError, "internal error", errors.CodeTokenGeneration)
		return
	}

	a.log.Info("User logged in", slog.String("nickname", user.Nickname))
	a.writeJSON(w, http.StatusOK, loginResponse{
		SessionID: session.ID,
		CSRFToken: session.CSRFToken,
		Token:     token,
	})
}

// handleLogout tears down the session and every live socket belonging
// to its user. The caller must present the session's CSRF token, the
// same fingerprint the websocket handshake checks.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-Session-Id")
	csrfToken := r.Header.Get("X-CSRF-Token")
	if sessionID == "" {
		a.writeError(w, http.StatusUnauthorized, "missing session", errors.CodeNoSession)
		return
	}

	var session domain.Session
	err := a.store.Do(r.Context(), func(context.Context) error {
		var inner error
		session, inner = a.sessions.GetSession(sessionID)
		return inner
	})
	switch {
	case stderrors.Is(err, errors.ErrSessionNotFound):
		// Already gone, logout is idempotent.
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		a.writeError(w, http.StatusServiceUnavailable, "store unavailable", errors.CodeOf(err))
		return
	}

	if session.CSRFToken != csrfToken {
		a.monitor.IncrAuthRejections()
		a.writeError(w, http.StatusForbidden, "fingerprint mismatch", errors.CodeCSRFMismatch)
		return
	}

	if err := a.store.Do(r.Context(), func(context.Context) error {
		return a.sessions.DeleteSession(sessionID)
	}); err != nil {
		a.writeError(w, http.StatusServiceUnavailable, "store unavailable", errors.CodeOf(err))
		return
	}

	dropped := a.presence.DisconnectUser(r.Context(), session.UserID)
	a.log.Info("User logged out",
		slog.String("nickname", session.Nickname),
		slog.Int("socketsDropped", dropped))
	w.WriteHeader(http.StatusNoContent)
}

type adminDisconnectRequest struct {
	UserID string `json:"userId"`
}

type adminDisconnectResponse struct {
	Disconnected int `json:"disconnected"`
}

func (a *API) handleAdminDisconnect(w http.ResponseWriter, r *http.Request) {
	claims, ok := a.adminClaims(r)
	if !ok {
		a.writeError(w, http.StatusForbidden, "admin role required", errors.CodeInvalidCredentials)
		return
	}

	var req adminDisconnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		a.writeError(w, http.StatusBadRequest, "malformed body", errors.CodeInternal)
		return
	}

	dropped := a.presence.DisconnectUser(r.Context(), req.UserID)
	a.log.Info("Admin disconnect",
		slog.String("admin", claims.Nickname),
		slog.String("userId", req.UserID),
		slog.Int("socketsDropped", dropped))
	a.writeJSON(w, http.StatusOK, adminDisconnectResponse{Disconnected: dropped})
}

func (a *API) handleStats(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.monitor.Snapshot())
}

func (a *API) adminClaims(r *http.Request) (*auth.CustomClaims, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return nil, false
	}
	claims, err := a.issuer.Validate(token)
	if err != nil {
		a.monitor.IncrAuthRejections()
		return nil, false
	}
	if claims.Role != "admin" {
		return nil, false
	}
	return claims, true
}

type errorResponse struct {
	Message string      `json:"message"`
	Code    errors.Code `json:"code"`
}

func (a *API) writeError(w http.ResponseWriter, status int, message string, code errors.Code) {
	a.writeJSON(w, status, errorResponse{Message: message, Code: code})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Debug("Response encoding failed", slog.String("error", err.Error()))
	}
}
