package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"zentoso/backend/internal/domain"
	"zentoso/backend/internal/identity"
	"zentoso/backend/internal/intake"
	"zentoso/backend/internal/service"
	"zentoso/backend/internal/store"
	"zentoso/backend/internal/wizard"
)

const (
	maxJSONBody  = 1 << 20
	maxHookBody  = 256 << 10
	sessionsPath = "/api/v1/wizard/sessions"
)

type API struct {
	service       *service.Service
	intake        *intake.Service
	auth          *AuthManager
	verifier      identity.Verifier
	allowedOrigin string
	logger        *zap.Logger
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

// New builds the API. A nil intake disables /hooks/quote.
func New(svc *service.Service, intakeSvc *intake.Service, auth *AuthManager, verifier identity.Verifier, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		intake:        intakeSvc,
		auth:          auth,
		verifier:      verifier,
		allowedOrigin: allowedOrigin,
		logger:        logger,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (Unix time truncated to the hour), hex encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	bucket := time.Now().UTC().Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken accepts the current or previous hour bucket.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	currentBucket := time.Now().UTC().Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(currentBucket))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(prevBucket)))
}

// attemptLimiter keeps one token bucket per client key.
type attemptLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limit:    rate.Every(window / time.Duration(max)),
		burst:    max,
		idle:     10 * window,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) > 1024 {
		for k, entry := range l.limiters {
			if now.Sub(entry.lastSeen) > l.idle {
				delete(l.limiters, k)
			}
		}
	}
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/catalog", a.handleCatalog)
	mux.HandleFunc(sessionsPath, a.handleSessions)
	mux.HandleFunc(sessionsPath+"/", a.handleSessionActions)
	mux.HandleFunc("/hooks/quote", a.handleQuoteHook)

	mux.HandleFunc("/api/v1/admin/quotes", a.requireAuth(a.handleQuotes, RoleAdmin, RoleOperator))
	mux.HandleFunc("/api/v1/admin/quotes/export.csv", a.requireAuth(a.handleQuotesExport, RoleAdmin, RoleOperator))
	mux.HandleFunc("/api/v1/admin/operators", a.requireAuth(a.handleOperators, RoleAdmin))

	return otelhttp.NewHandler(a.withMiddleware(mux), "zentoso-api")
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(authorization[len("Bearer "):]), true
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.logger.Warn("operator login failed", zap.String("username", req.Username), zap.String("client", clientKey(r)))
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleCSRFToken returns a stateless token for the X-CSRF-Token header.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// Login is called before a token can be fetched; the quote hook is called
// server to server by the wizard's webhook client.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
	"/hooks/quote",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.service.Catalog())
}

// handleSessions performs the identity handshake and opens a wizard session.
func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	token, _ := bearerToken(r)
	who, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		a.logger.Warn("identity handshake rejected", zap.String("client", clientKey(r)), zap.Error(err))
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	view, err := a.service.CreateSession(r.Context(), who)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": view, "user": who})
}

// handleSessionActions serves /api/v1/wizard/sessions/{id}[/actions|/submit|/identity].
func (a *API) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, sessionsPath+"/"), "/")
	sessionID, action, _ := strings.Cut(rest, "/")
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("session id required"))
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		view, err := a.service.View(r.Context(), sessionID)
		if err != nil {
			writeSessionError(w, sessionStatus(err), err, view)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": view})
	case "actions":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var req domain.ActionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.Apply(r.Context(), sessionID, req)
		if err != nil {
			writeSessionError(w, sessionStatus(err), err, view)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": view})
	case "submit":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		a.handleSubmit(w, r, sessionID)
	case "identity":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		a.handleReauthenticate(w, r, sessionID)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown session action"))
	}
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request, sessionID string) {
	view, err := a.service.Submit(r.Context(), sessionID)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"session": view})
		return
	}

	if limited, ok := service.IsRateLimited(err); ok {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             limited.Error(),
			"remaining_seconds": limited.Remaining,
			"session":           view,
		})
		return
	}
	if errors.Is(err, service.ErrSubmissionFailed) {
		a.logger.Error("quote submission failed", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   service.SubmissionFailedMessage,
			"session": view,
		})
		return
	}
	writeSessionError(w, sessionStatus(err), err, view)
}

// handleReauthenticate attaches a fresh LINE ID token to an existing session.
func (a *API) handleReauthenticate(w http.ResponseWriter, r *http.Request, sessionID string) {
	token, _ := bearerToken(r)
	who, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	view, err := a.service.Reauthenticate(r.Context(), sessionID, who)
	if err != nil {
		writeSessionError(w, sessionStatus(err), err, view)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": view, "user": who})
}

func sessionStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrIdentityExpired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrIdentityMismatch):
		return http.StatusForbidden
	case errors.Is(err, service.ErrSubmissionInFlight),
		errors.Is(err, service.ErrNotReady),
		errors.Is(err, wizard.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrUnknownAction), errors.Is(err, wizard.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrUnknownVehicle),
		errors.Is(err, wizard.ErrUnknownFinish),
		errors.Is(err, wizard.ErrUnknownOption):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleQuoteHook accepts the outbound webhook body under any content type.
func (a *API) handleQuoteHook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if a.intake == nil {
		writeError(w, http.StatusNotFound, errors.New("intake disabled"))
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxHookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, domain.SubmissionResponse{Success: false, Message: intake.MessageMalformed})
		return
	}

	resp, err := a.intake.Receive(r.Context(), raw)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, intake.ErrMalformed):
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.Is(err, intake.ErrCooldown):
		writeJSON(w, http.StatusTooManyRequests, resp)
	case errors.Is(err, intake.ErrIdentity):
		writeJSON(w, http.StatusUnauthorized, resp)
	default:
		a.logger.Error("intake failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, domain.SubmissionResponse{Success: false, Message: service.SubmissionFailedMessage})
	}
}

func (a *API) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	quotes, err := a.service.ListQuotes(r.Context(), limit)
	if err != nil {
		writeError(w, quoteStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes})
}

func (a *API) handleQuotesExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 500, 500)
	quotes, err := a.service.ListQuotes(r.Context(), limit)
	if err != nil {
		writeError(w, quoteStatus(err), err)
		return
	}

	body, err := quotesToCSV(quotes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"quotes-%s.csv\"", time.Now().In(jst).Format("20060102")))
	_, _ = w.Write(body)
}

func quoteStatus(err error) int {
	if errors.Is(err, service.ErrForbidden) {
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func (a *API) handleOperators(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"operators": a.auth.ListOperators(r.Context())})
	case http.MethodPost:
		var req domain.OperatorCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		account, err := a.auth.CreateOperator(r.Context(), req)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, store.ErrDuplicate) {
				status = http.StatusConflict
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"operator": account})
	default:
		writeMethodNotAllowed(w)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				a.logger.Error("panic serving request", zap.String("request_id", requestID), zap.Any("panic", p), zap.Stack("stack"))
				writeError(rec, http.StatusInternalServerError, errors.New("panic"))
			}
		}()
		next.ServeHTTP(rec, r)
		a.logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)),
		)
		if rec.status >= http.StatusInternalServerError {
			a.logger.Warn("server error response", zap.String("request_id", requestID), zap.Int("status", rec.status))
		}
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the message of 5xx responses.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeSessionError attaches the unchanged session view when there is one so
// the client can re-render without a second round trip.
func writeSessionError(w http.ResponseWriter, status int, err error, view domain.WizardView) {
	if view.SessionID == "" || status >= 500 {
		writeError(w, status, err)
		return
	}
	writeJSON(w, status, map[string]any{
		"error":   err.Error(),
		"session": view,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
