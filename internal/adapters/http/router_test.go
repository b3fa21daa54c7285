package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/usecase"
)

type fakeAgent struct {
	lastUserID string
	lastCmd    domain.Command
	lastMode   domain.CommandMode
	lastToken  string

	executeResult *domain.AgentRunResult
	executeErr    error
	confirmResult *domain.AgentRunResult
	confirmErr    error
	rejectErr     error
}

func (f *fakeAgent) Execute(_ context.Context, userID string, cmd domain.Command, mode domain.CommandMode) (*domain.AgentRunResult, error) {
	f.lastUserID = userID
	f.lastCmd = cmd
	f.lastMode = mode
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	if f.executeResult != nil {
		return f.executeResult, nil
	}
	return &domain.AgentRunResult{Status: domain.RunCompleted, Result: "done", Iterations: 1}, nil
}

func (f *fakeAgent) Confirm(_ context.Context, userID, token string) (*domain.AgentRunResult, error) {
	f.lastUserID = userID
	f.lastToken = token
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	if f.confirmResult != nil {
		return f.confirmResult, nil
	}
	return &domain.AgentRunResult{Status: domain.RunCompleted, Result: "confirmed"}, nil
}

func (f *fakeAgent) Reject(_ context.Context, userID, token string) error {
	f.lastUserID = userID
	f.lastToken = token
	return f.rejectErr
}

type fakeMemoryService struct {
	history   []domain.InteractionEntry
	profile   *domain.Profile
	recall    *domain.MemoryRecall
	summaries []domain.TopicSummary
	lastQuery string
	err       error
}

func (f *fakeMemoryService) History(context.Context, string) ([]domain.InteractionEntry, error) {
	return f.history, f.err
}

func (f *fakeMemoryService) Profile(context.Context, string) (*domain.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.profile == nil {
		return &domain.Profile{}, nil
	}
	return f.profile, nil
}

func (f *fakeMemoryService) Recall(_ context.Context, _ string, query string) (*domain.MemoryRecall, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.recall == nil {
		return &domain.MemoryRecall{ProfileContext: "query:" + query}, nil
	}
	return f.recall, nil
}

func (f *fakeMemoryService) Summaries(_ context.Context, _ string, query string) ([]domain.TopicSummary, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.summaries, nil
}

type fakeTokenStore struct {
	tokens map[string]domain.GoogleToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]domain.GoogleToken)}
}

func (f *fakeTokenStore) Save(_ context.Context, token domain.GoogleToken) error {
	f.tokens[token.UserID] = token
	return nil
}

func (f *fakeTokenStore) Get(_ context.Context, userID string) (*domain.GoogleToken, error) {
	token, ok := f.tokens[userID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get token", fmt.Errorf("no token for %s", userID))
	}
	return &token, nil
}

func (f *fakeTokenStore) Delete(_ context.Context, userID string) error {
	delete(f.tokens, userID)
	return nil
}

type fakeOAuth struct {
	exchangedCode string
	revoked       bool
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/consent?state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (*domain.GoogleToken, *domain.UserInfo, error) {
	f.exchangedCode = code
	token := &domain.GoogleToken{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}
	return token, &domain.UserInfo{UserID: "google-user-1", Email: "user@example.com"}, nil
}

func (f *fakeOAuth) Refresh(_ context.Context, token domain.GoogleToken) (*domain.GoogleToken, error) {
	refreshed := token
	refreshed.AccessToken = "refreshed"
	refreshed.Expiry = time.Now().Add(time.Hour)
	return &refreshed, nil
}

func (f *fakeOAuth) Revoke(context.Context, domain.GoogleToken) error {
	f.revoked = true
	return nil
}

type routerFixture struct {
	handler  http.Handler
	agent    *fakeAgent
	memory   *fakeMemoryService
	store    *fakeTokenStore
	oauth    *fakeOAuth
	sessions *SessionManager
}

func newRouterFixture(t *testing.T, options RouterOptions) *routerFixture {
	t.Helper()
	if options.RateLimitRPS == 0 {
		options.RateLimitRPS = 100
	}
	if options.RateLimitBurst == 0 {
		options.RateLimitBurst = 100
	}
	if options.MaxInFlight == 0 {
		options.MaxInFlight = 8
	}

	agent := &fakeAgent{}
	memory := &fakeMemoryService{}
	store := newFakeTokenStore()
	oauth := &fakeOAuth{}
	sessions := NewSessionManager("test-secret", time.Hour)
	credentials := usecase.NewCredentialUseCase(store, oauth)
	router := NewRouter(agent, memory, credentials, oauth, sessions, nil, options)
	return &routerFixture{
		handler:  router.Handler(),
		agent:    agent,
		memory:   memory,
		store:    store,
		oauth:    oauth,
		sessions: sessions,
	}
}

func (f *routerFixture) authedRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	token, err := f.sessions.Issue("google-user-1", "user@example.com")
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header on every response")
	}
}

func TestCommandRequiresSession(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/agent/command", strings.NewReader(`{"command":"list files"}`))
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", res.Code)
	}
}

func TestCommandExecutesDirectMode(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	res := httptest.NewRecorder()
	req := f.authedRequest(t, http.MethodPost, "/agent/command", `{"command":"create folder Reports"}`)
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if f.agent.lastMode != domain.ModeDirect {
		t.Fatalf("expected direct mode, got %q", f.agent.lastMode)
	}
	if f.agent.lastUserID != "google-user-1" {
		t.Fatalf("expected session user id, got %q", f.agent.lastUserID)
	}
	if f.agent.lastCmd.Text != "create folder Reports" {
		t.Fatalf("unexpected command text %q", f.agent.lastCmd.Text)
	}

	var run domain.AgentRunResult
	if err := json.NewDecoder(res.Body).Decode(&run); err != nil {
		t.Fatalf("decode run result: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Fatalf("expected completed status, got %q", run.Status)
	}
}

func TestPreviewReturnsPendingDescriptor(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	f.agent.executeResult = &domain.AgentRunResult{
		Status: domain.RunConfirmationRequired,
		Pending: &domain.PendingDescriptor{
			Token:       "tok-1",
			Description: "The following actions require your confirmation:\n1. delete_item",
			Plan:        []domain.ToolCall{{Name: "delete_item", Args: map[string]any{"item_id": "f1"}}},
		},
	}

	res := httptest.NewRecorder()
	req := f.authedRequest(t, http.MethodPost, "/agent/preview", `{"command":"delete the Reports folder"}`)
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if f.agent.lastMode != domain.ModePreview {
		t.Fatalf("expected preview mode, got %q", f.agent.lastMode)
	}
	var run domain.AgentRunResult
	if err := json.NewDecoder(res.Body).Decode(&run); err != nil {
		t.Fatalf("decode run result: %v", err)
	}
	if run.Pending == nil || run.Pending.Token != "tok-1" {
		t.Fatalf("expected pending descriptor with token, got %+v", run.Pending)
	}
}

func TestConfirmUnknownTokenMapsTo404(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	f.agent.confirmErr = domain.WrapError(domain.ErrNotFound, "consume pending action", fmt.Errorf("token does not exist"))

	res := httptest.NewRecorder()
	req := f.authedRequest(t, http.MethodPost, "/agent/confirm", `{"token":"gone"}`)
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for consumed token, got %d", res.Code)
	}
}

func TestRejectPassesTokenThrough(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	res := httptest.NewRecorder()
	req := f.authedRequest(t, http.MethodPost, "/agent/reject", `{"token":"tok-9"}`)
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if f.agent.lastToken != "tok-9" {
		t.Fatalf("expected token tok-9, got %q", f.agent.lastToken)
	}
}

func TestCommandRejectsBlankAndMalformedBody(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})

	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodPost, "/agent/command", `{"command":"  "}`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank command, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodPost, "/agent/command", `{broken`))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", res.Code)
	}
}

func TestCommandMethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodGet, "/agent/command", ""))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestMemoryRecallRequiresQuery(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})

	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodGet, "/agent/memory/recall", ""))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q parameter, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodGet, "/agent/memory/recall?q=solar+panels", ""))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var recall domain.MemoryRecall
	if err := json.NewDecoder(res.Body).Decode(&recall); err != nil {
		t.Fatalf("decode recall: %v", err)
	}
	if recall.ProfileContext != "query:solar panels" {
		t.Fatalf("expected query passed through, got %q", recall.ProfileContext)
	}
}

func TestMemorySummariesPassesQueryThrough(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	f.memory.summaries = []domain.TopicSummary{{Topic: "solar panels", Summary: "quote saved in Research"}}

	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodGet, "/agent/memory/summaries?query=solar", ""))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var payload struct {
		Summaries []domain.TopicSummary `json:"summaries"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(payload.Summaries) != 1 || payload.Summaries[0].Topic != "solar panels" {
		t.Fatalf("unexpected summaries payload %+v", payload.Summaries)
	}
	if f.memory.lastQuery != "solar" {
		t.Fatalf("expected query forwarded, got %q", f.memory.lastQuery)
	}
}

func TestHistoryReturnsInteractionLog(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	f.memory.history = []domain.InteractionEntry{{Command: "list files", Summary: "listed 3 files"}}

	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodGet, "/agent/history", ""))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var payload struct {
		Interactions []domain.InteractionEntry `json:"interactions"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(payload.Interactions) != 1 || payload.Interactions[0].Command != "list files" {
		t.Fatalf("unexpected history payload %+v", payload.Interactions)
	}
}

func TestAuthLoginRedirectsWithStateCookie(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if res.Code != http.StatusFound {
		t.Fatalf("expected 302 redirect, got %d", res.Code)
	}
	location := res.Header().Get("Location")
	if !strings.HasPrefix(location, "https://accounts.example.com/consent?state=") {
		t.Fatalf("unexpected redirect location %q", location)
	}
	var state string
	for _, cookie := range res.Result().Cookies() {
		if cookie.Name == stateCookieName {
			state = cookie.Value
		}
	}
	if state == "" {
		t.Fatalf("expected oauth state cookie")
	}
	if !strings.Contains(location, url.QueryEscape(state)) {
		t.Fatalf("redirect state %q does not match cookie %q", location, state)
	}
}

func TestAuthCallbackIssuesSession(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})

	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state=st-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "st-1"})
	f.handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if f.oauth.exchangedCode != "auth-code" {
		t.Fatalf("expected code exchanged, got %q", f.oauth.exchangedCode)
	}
	if _, ok := f.store.tokens["google-user-1"]; !ok {
		t.Fatalf("expected grant persisted for google-user-1")
	}

	var payload map[string]string
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode callback payload: %v", err)
	}
	userID, err := f.sessions.Verify(payload["token"])
	if err != nil {
		t.Fatalf("verify issued session: %v", err)
	}
	if userID != "google-user-1" {
		t.Fatalf("session subject mismatch: %q", userID)
	}
}

func TestAuthCallbackRejectsStateMismatch(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	res := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state=st-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "other"})
	f.handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for state mismatch, got %d", res.Code)
	}
}

func TestAuthStatusReportsDisconnected(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})

	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodGet, "/auth/status", ""))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if connected, _ := payload["connected"].(bool); connected {
		t.Fatalf("expected connected=false without a stored grant")
	}

	f.store.tokens["google-user-1"] = domain.GoogleToken{
		UserID:      "google-user-1",
		AccessToken: "live",
		Expiry:      time.Now().Add(time.Hour),
	}
	res = httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodGet, "/auth/status", ""))
	payload = map[string]any{}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if connected, _ := payload["connected"].(bool); !connected {
		t.Fatalf("expected connected=true with a stored grant")
	}
}

func TestAuthLogoutRevokesAndDeletesGrant(t *testing.T) {
	f := newRouterFixture(t, RouterOptions{})
	f.store.tokens["google-user-1"] = domain.GoogleToken{
		UserID:      "google-user-1",
		AccessToken: "live",
		Expiry:      time.Now().Add(time.Hour),
	}

	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, f.authedRequest(t, http.MethodPost, "/auth/logout", ""))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !f.oauth.revoked {
		t.Fatalf("expected upstream revoke call")
	}
	if _, ok := f.store.tokens["google-user-1"]; ok {
		t.Fatalf("expected stored grant removed")
	}
}
