package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/streak-chat/internal/core"
	"gwi.com/streak-chat/internal/store"
)

type stubCompleter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubCompleter) Complete(_ context.Context, _ []core.Turn) (*core.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &core.Completion{Text: "Ahoy!", TokensUsed: 7}, nil
}

func (s *stubCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testServer struct {
	db        *store.Store
	chat      *core.ChatService
	completer *stubCompleter
	handler   http.Handler
}

func newTestServer(t *testing.T, burst int) *testServer {
	t.Helper()
	db, err := store.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	completer := &stubCompleter{}
	chat := core.NewChatService(db, completer, core.NewRewardService(db, time.UTC), core.ChatOptions{HistoryLimit: 10})
	t.Cleanup(chat.Wait)

	h := NewAPIHandler(chat, core.NewAccountService(db, "test-secret", time.Hour), core.NewStylePackService(db))
	return &testServer{
		db:        db,
		chat:      chat,
		completer: completer,
		handler:   NewRouter(h, NewRateLimiter(0.001, burst)),
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, email string) (string, string) {
	t.Helper()
	creds := CredentialsRequest{Email: email, Password: "password123"}

	rec := s.do(t, http.MethodPost, "/api/signup", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user store.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))

	rec = s.do(t, http.MethodPost, "/api/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	return user.ID, resp["token"]
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 5)
	rec := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, 5)
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestSignupAndLoginErrors(t *testing.T) {
	s := newTestServer(t, 5)
	s.login(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/signup", "", CredentialsRequest{Email: "ada@example.com", Password: "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/login", "", CredentialsRequest{Email: "ada@example.com", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", decodeError(t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/signup", "", CredentialsRequest{Email: "bad", Password: "password123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRequiresAuthentication(t *testing.T) {
	s := newTestServer(t, 5)
	userID, _ := s.login(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/chat", "", core.TurnRequest{Message: "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec).Details)

	rec = s.do(t, http.MethodPost, "/api/chat", "not-a-token", core.TurnRequest{Message: "hi"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Zero(t, s.completer.callCount())
	convs, err := s.db.ListConversations(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestChatTurnAndReads(t *testing.T) {
	s := newTestServer(t, 5)
	_, token := s.login(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/chat", token, core.TurnRequest{Message: "Where is the treasure?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var turn struct {
		Response       string `json:"response"`
		ConversationID string `json:"conversationId"`
		TokensUsed     int    `json:"tokensUsed"`
		PointsAwarded  bool   `json:"pointsAwarded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &turn))
	assert.Equal(t, "Ahoy!", turn.Response)
	assert.Equal(t, 7, turn.TokensUsed)
	assert.True(t, turn.PointsAwarded)
	require.NotEmpty(t, turn.ConversationID)

	s.chat.Wait()

	rec = s.do(t, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile store.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, 1, profile.TotalPoints)
	assert.Equal(t, 1, profile.CurrentStreak)

	rec = s.do(t, http.MethodGet, "/api/rewards?limit=5", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []store.LedgerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, store.CategoryMessage, entries[0].Category)

	rec = s.do(t, http.MethodGet, "/api/rewards?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/conversations", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []store.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "Where is the treasure?", convs[0].Title)

	rec = s.do(t, http.MethodGet, "/api/conversations/"+turn.ConversationID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		ID       string          `json:"id"`
		Messages []store.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, turn.ConversationID, detail.ID)
	assert.Len(t, detail.Messages, 2)

	// Another user cannot see or delete it.
	_, other := s.login(t, "eve@example.com")
	rec = s.do(t, http.MethodGet, "/api/conversations/"+turn.ConversationID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/conversations/"+turn.ConversationID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/conversations/"+turn.ConversationID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/conversations/"+turn.ConversationID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatUpstreamFailure(t *testing.T) {
	s := newTestServer(t, 5)
	_, token := s.login(t, "ada@example.com")
	s.completer.err = errors.New("quota exceeded")

	rec := s.do(t, http.MethodPost, "/api/chat", token, core.TurnRequest{Message: "hi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "Failed to generate response", e.Error)
	assert.Contains(t, e.Details, "quota exceeded")
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, 5)
	_, token := s.login(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/chat", token, core.TurnRequest{Message: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatRateLimited(t *testing.T) {
	s := newTestServer(t, 1)
	_, token := s.login(t, "ada@example.com")

	rec := s.do(t, http.MethodPost, "/api/chat", token, core.TurnRequest{Message: "one"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/chat", token, core.TurnRequest{Message: "two"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 1, s.completer.callCount())

	// Buckets are per user.
	_, other := s.login(t, "eve@example.com")
	rec = s.do(t, http.MethodPost, "/api/chat", other, core.TurnRequest{Message: "three"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStylePackPurchaseFlow(t *testing.T) {
	s := newTestServer(t, 5)
	userID, token := s.login(t, "ada@example.com")

	pack := &store.StylePack{Name: "Pirate", SystemPrompt: "Talk like a pirate.", Cost: 1, IsActive: true}
	require.NoError(t, s.db.UpsertStylePack(context.Background(), pack))

	rec := s.do(t, http.MethodGet, "/api/style-packs", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var packs []store.StylePack
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &packs))
	require.Len(t, packs, 1)

	purchasePath := "/api/style-packs/" + pack.ID + "/purchase"
	rec = s.do(t, http.MethodPost, purchasePath, token, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/chat", token, core.TurnRequest{Message: "earn a point"})
	require.Equal(t, http.StatusOK, rec.Code)
	s.chat.Wait()

	rec = s.do(t, http.MethodPost, purchasePath, token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, purchasePath, token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/style-packs/"+uuid.NewString()+"/purchase", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/style-packs/purchased", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var owned []store.PurchasedStylePack
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &owned))
	require.Len(t, owned, 1)
	assert.Equal(t, "Pirate", owned[0].Name)

	p, err := s.db.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, p.TotalPoints)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{core.ErrUnauthenticated, http.StatusUnauthorized},
		{core.ErrValidation, http.StatusBadRequest},
		{core.ErrNotFound, http.StatusNotFound},
		{core.ErrConflict, http.StatusConflict},
		{core.ErrInsufficientPoints, http.StatusPaymentRequired},
		{&core.UpstreamError{Op: "generate", Err: errors.New("boom")}, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, _ := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
	}
}
