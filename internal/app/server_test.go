package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/samurai-chat/internal/config"
	"github.com/markdave123-py/samurai-chat/internal/core"
	db "github.com/markdave123-py/samurai-chat/internal/core/database"
	"github.com/markdave123-py/samurai-chat/internal/core/dispatcher"
	"github.com/markdave123-py/samurai-chat/internal/core/mirror"
)

type harness struct {
	t         *testing.T
	cfg       *config.Config
	router    http.Handler
	engine    *httptest.Server
	engineHit atomic.Int32
	engineUp  atomic.Bool
	lastBody  atomic.Value
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tmp := t.TempDir()
	h := &harness{t: t}
	h.engineUp.Store(true)

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.engineHit.Add(1)
		body, _ := io.ReadAll(r.Body)
		h.lastBody.Store(body)
		if !h.engineUp.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	t.Cleanup(engine.Close)
	h.engine = engine

	h.cfg = &config.Config{
		Port:                 "0",
		DatabaseDriver:       config.DriverSQLite,
		DatabaseURL:          filepath.Join(tmp, "app.db"),
		JWTSecret:            "test-secret",
		UserDataRoot:         filepath.Join(tmp, "userdata"),
		ResourcesDir:         filepath.Join(tmp, "resources"),
		MaxNameProbes:        1000,
		MaxUploadBytes:       1 << 20,
		ContextWorkers:       2,
		EngineBackend:        config.EngineWebhook,
		EngineWebhookURL:     engine.URL,
		EngineCallbackSecret: "cb-secret",
		DispatchTimeout:      2 * time.Second,
		DispatchRetries:      0,
		DispatchRetryDelay:   time.Millisecond,
	}
	require.NoError(t, h.cfg.Validate())

	dbClient, err := db.OpenSQLite(context.Background(), h.cfg.DatabaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbClient.Close() })

	fm, err := mirror.NewFileMirror(h.cfg.ResourcesDir, nil)
	require.NoError(t, err)

	factory := func(core.ResponseSink) (core.InferenceEngine, error) {
		return dispatcher.NewWebhookEngine(dispatcher.WebhookOptions{
			URL:     h.cfg.EngineWebhookURL,
			Timeout: h.cfg.DispatchTimeout,
		})
	}
	svcs, err := BuildServices(h.cfg, dbClient, fm, factory, NewLogger(h.cfg))
	require.NoError(t, err)

	h.router = NewRouter(h.cfg, svcs, NewLogger(h.cfg))
	return h
}

func (h *harness) do(req *http.Request) (int, map[string]any) {
	h.t.Helper()
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	}
	return rec.Code, body
}

func (h *harness) jsonReq(method, path, token string, v any) *http.Request {
	var buf bytes.Buffer
	if v != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(v))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (h *harness) signup(email string) string {
	h.t.Helper()
	code, body := h.do(h.jsonReq(http.MethodPost, "/api/signup", "", map[string]string{
		"email": email, "password": "correct-horse", "firstName": "Test",
	}))
	require.Equal(h.t, http.StatusCreated, code, body)
	return body["token"].(string)
}

func (h *harness) upload(token, name, content string) (int, map[string]any) {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(h.t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(h.t, err)
	require.NoError(h.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/data/user-data", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return h.do(req)
}

func (h *harness) callback(secret string, payload map[string]string) (int, map[string]any) {
	req := h.jsonReq(http.MethodPost, "/api/chat/receive-response", "", payload)
	if secret != "" {
		req.Header.Set(dispatcher.SecretHeader, secret)
	}
	return h.do(req)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	code, body := h.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	code, body := h.do(h.jsonReq(http.MethodPost, "/api/chat/turn", "", map[string]string{"userMessage": "hi"}))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthenticated", body["kind"])
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.signup("login@example.com")

	code, body := h.do(h.jsonReq(http.MethodPost, "/api/login", "", map[string]string{
		"email": "login@example.com", "password": "correct-horse",
	}))
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["token"])

	code, body = h.do(h.jsonReq(http.MethodPost, "/api/login", "", map[string]string{
		"email": "login@example.com", "password": "nope-nope-nope",
	}))
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthenticated", body["kind"])

	code, body = h.do(h.jsonReq(http.MethodPost, "/api/signup", "", map[string]string{
		"email": "login@example.com", "password": "correct-horse",
	}))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["kind"])
}

func TestUploadTurnCallbackFlow(t *testing.T) {
	h := newHarness(t)
	token := h.signup("flow@example.com")

	code, body := h.upload(token, "data.csv", "x\n1\n2\n")
	require.Equal(t, http.StatusCreated, code, body)
	file := body["file"].(map[string]any)
	assert.Equal(t, "data.csv", file["filename"])
	assert.NotContains(t, file, "pathToFile")

	code, body = h.do(h.jsonReq(http.MethodPost, "/api/chat/turn", token, map[string]string{"userMessage": "hello"}))
	require.Equal(t, http.StatusOK, code, body)
	convID := body["conversationId"].(string)
	require.NotEmpty(t, convID)
	assert.Equal(t, "hello", body["message"].(map[string]any)["content"])
	assert.Equal(t, []any{map[string]any{
		"description": "data",
		"data":        []any{map[string]any{"x": "1"}, map[string]any{"x": "2"}},
	}}, body["userContext"])
	assert.Equal(t, map[string]any{"status": "queued"}, body["acknowledgment"])

	var sent map[string]any
	require.NoError(t, json.Unmarshal(h.lastBody.Load().([]byte), &sent))
	assert.Equal(t, convID, sent["conversationId"])
	assert.Equal(t, "chat", sent["input_type"])
	assert.Equal(t, "chat", sent["output_type"])
	history := sent["userMessageHistory"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "aGVsbG8=", history[0].(map[string]any)["content"])
	assert.Equal(t, "base64", history[0].(map[string]any)["encoding"])

	code, body = h.callback("wrong", map[string]string{"responseMessage": "hi there", "conversationId": convID})
	assert.Equal(t, http.StatusUnauthorized, code, body)

	code, body = h.callback("cb-secret", map[string]string{"responseMessage": "hi there", "conversationId": convID})
	require.Equal(t, http.StatusOK, code, body)

	code, body = h.do(h.jsonReq(http.MethodGet, "/api/chat/conversation/"+convID, token, nil))
	require.Equal(t, http.StatusOK, code, body)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "hello", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
	assert.Equal(t, "hi there", msgs[1].(map[string]any)["content"])

	mirrored, err := os.ReadFile(filepath.Join(h.cfg.ResourcesDir, "response.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(mirrored))
}

func TestDispatchFailureReportsDistinctKind(t *testing.T) {
	h := newHarness(t)
	token := h.signup("down@example.com")
	h.engineUp.Store(false)

	code, body := h.do(h.jsonReq(http.MethodPost, "/api/chat/turn", token, map[string]string{"userMessage": "hello"}))
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "dispatch", body["kind"])
	convID := body["conversationId"].(string)
	require.NotEmpty(t, convID)

	code, body = h.do(h.jsonReq(http.MethodGet, "/api/chat/conversation/"+convID, token, nil))
	require.Equal(t, http.StatusOK, code)
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].(map[string]any)["content"])
}

func TestDispatchNetworkErrorKeepsUserMessage(t *testing.T) {
	h := newHarness(t)
	token := h.signup("offline@example.com")
	h.engine.Close()

	code, body := h.do(h.jsonReq(http.MethodPost, "/api/chat/turn", token, map[string]string{"userMessage": "anyone?"}))
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "dispatch", body["kind"])
	assert.Equal(t, "inference engine unavailable", body["error"])
	convID := body["conversationId"].(string)

	code, body = h.do(h.jsonReq(http.MethodGet, "/api/chat/conversation/"+convID, token, nil))
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["messages"], 1)
}

func TestConversationIsOwnerOnly(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice@example.com")
	bob := h.signup("bob@example.com")

	_, body := h.do(h.jsonReq(http.MethodPost, "/api/chat/turn", alice, map[string]string{"userMessage": "secret"}))
	convID := body["conversationId"].(string)

	code, body := h.do(h.jsonReq(http.MethodGet, "/api/chat/conversation/"+convID, bob, nil))
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["kind"])

	code, body = h.do(h.jsonReq(http.MethodPost, "/api/chat/turn", bob, map[string]string{
		"conversationId": convID, "userMessage": "let me in",
	}))
	assert.Equal(t, http.StatusForbidden, code)

	code, body = h.do(h.jsonReq(http.MethodGet, "/api/chat/conversation/missing", alice, nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["kind"])
}

func TestDataListAndDelete(t *testing.T) {
	h := newHarness(t)
	token := h.signup("data@example.com")

	for _, name := range []string{"a.csv", "a.csv", ".DS_Store"} {
		code, body := h.upload(token, name, "x\n1\n")
		require.Equal(t, http.StatusCreated, code, body)
	}

	code, body := h.do(h.jsonReq(http.MethodGet, "/api/data/user-data", token, nil))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"a.csv", "a_1.csv"}, body["files"])

	code, _ = h.do(h.jsonReq(http.MethodDelete, "/api/data/user-data/a_1.csv", token, nil))
	assert.Equal(t, http.StatusOK, code)

	code, body = h.do(h.jsonReq(http.MethodDelete, "/api/data/user-data/a_1.csv", token, nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", body["kind"])

	code, body = h.do(h.jsonReq(http.MethodGet, "/api/data/user-data", token, nil))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"a.csv"}, body["files"])
}

func TestDeleteRemovesDanglingRecord(t *testing.T) {
	h := newHarness(t)
	token := h.signup("drift@example.com")

	_, body := h.upload(token, "gone.csv", "x\n1\n")
	userDirs, err := os.ReadDir(h.cfg.UserDataRoot)
	require.NoError(t, err)
	require.Len(t, userDirs, 1)
	require.NoError(t, os.Remove(filepath.Join(h.cfg.UserDataRoot, userDirs[0].Name(), "gone.csv")))
	require.Equal(t, "gone.csv", body["file"].(map[string]any)["filename"])

	code, _ := h.do(h.jsonReq(http.MethodDelete, "/api/data/user-data/gone.csv", token, nil))
	assert.Equal(t, http.StatusOK, code)

	code, body = h.do(h.jsonReq(http.MethodGet, "/api/data/user-data", token, nil))
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["files"])
}
