package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/ports"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/usecase"
	"github.com/dmpolyakov/ai-drive-agent/internal/observability/metrics"
)

const (
	serviceName      = "api"
	stateCookieName  = "oauth_state"
	stateCookieTTL   = 10 * time.Minute
	overloadWaitTime = 50 * time.Millisecond
)

type RouterOptions struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

type Router struct {
	agent       ports.AgentService
	memory      ports.MemoryService
	credentials *usecase.CredentialUseCase
	oauth       ports.OAuthProvider
	sessions    *SessionManager
	metrics     *metrics.HTTPServerMetrics
	options     RouterOptions
}

func NewRouter(
	agent ports.AgentService,
	memory ports.MemoryService,
	credentials *usecase.CredentialUseCase,
	oauth ports.OAuthProvider,
	sessions *SessionManager,
	m *metrics.HTTPServerMetrics,
	options RouterOptions,
) *Router {
	return &Router{
		agent:       agent,
		memory:      memory,
		credentials: credentials,
		oauth:       oauth,
		sessions:    sessions,
		metrics:     m,
		options:     options,
	}
}

func (rt *Router) Handler() http.Handler {
	limiter := newClientLimiter(rt.options.RateLimitRPS, rt.options.RateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("/auth/login", rt.authLogin)
	mux.HandleFunc("/auth/callback", rt.authCallback)
	mux.Handle("/auth/status", rt.protected(limiter, rt.authStatus))
	mux.Handle("/auth/logout", rt.protected(limiter, rt.authLogout))

	mux.Handle("/agent/command", rt.protected(limiter, rt.runCommand))
	mux.Handle("/agent/preview", rt.protected(limiter, rt.previewCommand))
	mux.Handle("/agent/confirm", rt.protected(limiter, rt.confirmPending))
	mux.Handle("/agent/reject", rt.protected(limiter, rt.rejectPending))
	mux.Handle("/agent/history", rt.protected(limiter, rt.memoryHistory))
	mux.Handle("/agent/memory/profile", rt.protected(limiter, rt.memoryProfile))
	mux.Handle("/agent/memory/recall", rt.protected(limiter, rt.memoryRecall))
	mux.Handle("/agent/memory/summaries", rt.protected(limiter, rt.memorySummaries))

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.options.MaxInFlight, overloadWaitTime)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

// protected wraps a handler with session auth, then a per-user rate
// limiter. Auth runs first so the limiter keys on the user ID.
func (rt *Router) protected(limiter *clientLimiter, handler http.HandlerFunc) http.Handler {
	return rt.sessions.authMiddleware(rateLimitMiddleware(handler, limiter))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) authLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, rt.oauth.AuthCodeURL(state), http.StatusFound)
}

func (rt *Router) authCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || state == "" || cookie.Value != state {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "oauth state mismatch"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/auth", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if strings.TrimSpace(code) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "authorization code is required"})
		return
	}

	info, err := rt.credentials.Connect(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	session, err := rt.sessions.Issue(info.UserID, info.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   session,
		"user_id": info.UserID,
		"email":   info.Email,
	})
}

func (rt *Router) authStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	userID := userIDFromContext(r.Context())
	connected := true
	if _, err := rt.credentials.Resolve(r.Context(), userID); err != nil {
		if !errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, err)
			return
		}
		connected = false
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "connected": connected})
}

func (rt *Router) authLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := rt.credentials.Disconnect(r.Context(), userIDFromContext(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

type commandRequest struct {
	Command     string            `json:"command"`
	ChatHistory []domain.ChatTurn `json:"chat_history,omitempty"`
}

func (rt *Router) runCommand(w http.ResponseWriter, r *http.Request) {
	rt.executeCommand(w, r, domain.ModeDirect)
}

func (rt *Router) previewCommand(w http.ResponseWriter, r *http.Request) {
	rt.executeCommand(w, r, domain.ModePreview)
}

func (rt *Router) executeCommand(w http.ResponseWriter, r *http.Request, mode domain.CommandMode) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "command is required"})
		return
	}

	run, err := rt.agent.Execute(r.Context(), userIDFromContext(r.Context()), domain.Command{
		Text:        req.Command,
		ChatHistory: req.ChatHistory,
	}, mode)
	if err != nil {
		writeError(w, err)
		return
	}

	rt.recordRun(string(mode), run)
	if run.Pending != nil && rt.metrics != nil {
		rt.metrics.RecordPendingStaged(serviceName)
	}
	writeJSON(w, http.StatusOK, run)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (rt *Router) confirmPending(w http.ResponseWriter, r *http.Request) {
	token, ok := rt.decodeToken(w, r)
	if !ok {
		return
	}
	run, err := rt.agent.Confirm(r.Context(), userIDFromContext(r.Context()), token)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordPendingConsumed(serviceName, "confirmed")
	}
	rt.recordRun("confirm", run)
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) rejectPending(w http.ResponseWriter, r *http.Request) {
	token, ok := rt.decodeToken(w, r)
	if !ok {
		return
	}
	if err := rt.agent.Reject(r.Context(), userIDFromContext(r.Context()), token); err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordPendingConsumed(serviceName, "rejected")
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (rt *Router) decodeToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return "", false
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return "", false
	}
	if strings.TrimSpace(req.Token) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return "", false
	}
	return req.Token, true
}

func (rt *Router) memoryHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	log, err := rt.memory.History(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": log})
}

func (rt *Router) memoryProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	profile, err := rt.memory.Profile(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (rt *Router) memoryRecall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		query = strings.TrimSpace(r.URL.Query().Get("q"))
	}
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'query' is required"})
		return
	}
	recall, err := rt.memory.Recall(r.Context(), userIDFromContext(r.Context()), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recall)
}

func (rt *Router) memorySummaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	summaries, err := rt.memory.Summaries(r.Context(), userIDFromContext(r.Context()), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

func (rt *Router) recordRun(mode string, run *domain.AgentRunResult) {
	if rt.metrics == nil || run == nil {
		return
	}
	status := string(run.Status)
	if run.FallbackReason != "" {
		status = run.FallbackReason
	}
	rt.metrics.RecordAgentRun(serviceName, mode, status, run.Iterations)
	for _, step := range run.Steps {
		rt.metrics.RecordAgentToolCall(serviceName, step.Tool, string(step.Status))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
