package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnj.com/jewelry-designer/internal/config"
	"pnj.com/jewelry-designer/internal/core"
	"pnj.com/jewelry-designer/internal/store"
)

type stubGateway struct {
	mu    sync.Mutex
	calls int
	reply *core.Response
	err   error
}

func (g *stubGateway) Generate(ctx context.Context, req *core.Request) (*core.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.reply, nil
}

func (g *stubGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type testServer struct {
	handler http.Handler
	gateway *stubGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig.JWTSecret = "api-test-secret"
	t.Cleanup(func() { config.AppConfig = prev })

	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	images, err := core.NewImageService(db, nil)
	require.NoError(t, err)
	registry, err := core.NewToolRegistry(core.ToolDeps{Images: images})
	require.NoError(t, err)

	gw := &stubGateway{reply: &core.Response{Text: "Hello from the assistant"}}
	users := core.NewUserService(db)
	convs := core.NewConversationService(db, images)
	chat := core.NewChatService(db, convs, images, core.NewOrchestrator(gw, registry), nil)

	h := NewAPIHandler(users, convs, images, chat)
	return &testServer{handler: NewRouter(h, "http://localhost:3000"), gateway: gw}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]any{"email": email, "password": "password123", "name": "Lan"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]any{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.Equal(t, "bearer", tok.TokenType)
	return tok.AccessToken
}

func (s *testServer) createConversation(t *testing.T, token string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/conversations", token, map[string]any{"title": "Rings"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var conv store.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	return conv.ID
}

func (s *testServer) upload(t *testing.T, token, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="ring.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/health", "", nil).Code)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jewelry_designer_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	h := CORS("*")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	h = CORS("http://localhost:3000, *")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestUsers(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "lan@example.com")

	rec := s.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]any{"email": "LAN@example.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]any{"email": "bad", "password": "x", "gender": "robot"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeError(t, rec).Fields
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
	assert.Contains(t, fields, "gender")

	rec = s.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]any{"email": "lan@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/users/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/users/me", "garbage", nil).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me store.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "lan@example.com", me.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(t, http.MethodPut, "/api/v1/users/me", token, map[string]any{"segment": "luxury"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"segment":"luxury"`)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/users/me", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/users/me", token, nil).Code)
}

func TestLoginWithPasswordForm(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "form@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader("username=form%40example.com&password=password123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "access_token")
}

func TestConversations(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "lan@example.com")
	otherToken := s.signup(t, "other@example.com")
	id := s.createConversation(t, token)
	s.createConversation(t, token)

	rec := s.do(t, http.MethodGet, "/api/v1/conversations?limit=1&offset=0", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page core.ConversationPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Conversations, 1)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/conversations?limit=101", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/conversations?offset=-1", token, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/conversations?limit=abc", token, nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/conversations/"+id, otherToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/api/v1/conversations/"+id, otherToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/conversations/missing", token, nil).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"messages":[]`)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/conversations/"+id, token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/conversations/"+id, token, nil).Code)
}

func TestImages(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "lan@example.com")
	otherToken := s.signup(t, "other@example.com")

	rec := s.upload(t, token, "image/png", []byte("png-bytes"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var img store.Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &img))

	rec = s.do(t, http.MethodGet, "/api/v1/images/"+img.ID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got store.Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, img.Data, got.Data)
	assert.Equal(t, "image/png", got.ContentType)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/v1/images/"+img.ID, otherToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/images/missing", token, nil).Code)

	assert.Equal(t, http.StatusBadRequest, s.upload(t, token, "application/pdf", []byte("%PDF")).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/images?page=1&page_size=10", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page core.ImagePage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/images/"+img.ID, token, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/images/"+img.ID, token, nil).Code)
}

func TestChat(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "lan@example.com")
	convID := s.createConversation(t, token)

	rec := s.do(t, http.MethodPost, "/api/v1/chat", token, map[string]any{
		"conversation_id": convID,
		"message":         "I want a silver ring",
		"artifact":        map[string]any{"type": "design", "design": map[string]any{"name": "Ring", "properties": map[string]any{"metal": "silver"}}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result core.ChatResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "I want a silver ring", result.UserMessage.Content)
	assert.Equal(t, "Hello from the assistant", result.AssistantMessage.Content)
	require.NotNil(t, result.AssistantMessage.Artifact)
	assert.Equal(t, "silver", result.AssistantMessage.Artifact.Design.Properties.Metal)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+convID, token, nil)
	var detail core.ConversationDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Len(t, detail.Messages, 2)
}

func TestChat_WithUploadedImage(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "lan@example.com")
	convID := s.createConversation(t, token)

	rec := s.upload(t, token, "image/png", []byte("png-bytes"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var img store.Image
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &img))

	rec = s.do(t, http.MethodPost, "/api/v1/chat", token, map[string]any{
		"conversation_id": convID,
		"message":         "make something like this",
		"images":          []string{img.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result core.ChatResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{img.ID}, result.UserMessage.Images)
	assert.Equal(t, 1, s.gateway.count())
}

func TestChat_RejectedBeforeGateway(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "lan@example.com")
	otherToken := s.signup(t, "other@example.com")
	convID := s.createConversation(t, token)

	rec := s.do(t, http.MethodPost, "/api/v1/chat", token, map[string]any{"conversation_id": convID, "message": "hi", "images": []string{"missing"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/chat", otherToken, map[string]any{"conversation_id": convID, "message": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/chat", token, map[string]any{"conversation_id": convID, "message": "hi",
		"artifact": map[string]any{"type": "design", "design": map[string]any{"properties": map[string]any{"metal": "tin"}}}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "artifact.design.properties.metal")

	rec = s.do(t, http.MethodPost, "/api/v1/chat", token, map[string]any{"conversation_id": convID, "message": "hi", "unexpected": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, s.gateway.count())
}

func TestChat_UpstreamFailure(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "lan@example.com")
	convID := s.createConversation(t, token)
	s.gateway.err = errors.New("503 from model")

	rec := s.do(t, http.MethodPost, "/api/v1/chat", token, map[string]any{"conversation_id": convID, "message": "hello?"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body upstreamResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "assistant unavailable", body.Error)
	require.NotNil(t, body.UserMessage)
	assert.Equal(t, "hello?", body.UserMessage.Content)
	require.NotNil(t, body.AssistantMessage)

	rec = s.do(t, http.MethodGet, "/api/v1/conversations/"+convID, token, nil)
	var detail core.ConversationDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Len(t, detail.Messages, 2)
}
