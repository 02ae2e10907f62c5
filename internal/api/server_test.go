package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-rag-chatbot/internal/config"
	"github.com/JakeFAU/campus-rag-chatbot/internal/rag"
)

func TestServer_Index_ServesChatPage(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(newReadyAnswerer()), httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "/chat")
}

func TestServer_APIHealth(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(newReadyAnswerer()), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"running","message":"Test University Chatbot API","version":"1.0"}`, rec.Body.String())
}

func TestServer_Health_ReportsReadiness(t *testing.T) {
	t.Parallel()

	answerer := &mockAnswerer{}
	answerer.On("IndexLoaded").Return(true)
	answerer.On("Ready").Return(false)

	rec := serve(t, newTestServer(answerer), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy","vectorstore_loaded":true,"qa_chain_ready":false}`, rec.Body.String())
}

func TestServer_Health_WithoutService(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(nil), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy","vectorstore_loaded":false,"qa_chain_ready":false}`, rec.Body.String())
}

func TestServer_Chat_Succeeds(t *testing.T) {
	t.Parallel()

	answerer := newReadyAnswerer()
	answerer.On("Answer", mock.Anything, "What programs are offered?").
		Return(rag.Answer{Text: "Engineering and Law.", Sources: []string{"https://u.edu/a", "https://u.edu/b"}}, nil).
		Once()

	rec := serve(t, newTestServer(answerer), chatRequestWithBody(`{"message":"  What programs are offered?  "}`))

	require.Equal(t, http.StatusOK, rec.Code)
	var body chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Engineering and Law.", body.Response)
	assert.Equal(t, []string{"https://u.edu/a", "https://u.edu/b"}, body.Sources)
	assert.Equal(t, "success", body.Status)
	answerer.AssertExpectations(t)
}

func TestServer_Chat_NilSourcesEncodeAsEmptyArray(t *testing.T) {
	t.Parallel()

	answerer := newReadyAnswerer()
	answerer.On("Answer", mock.Anything, "hi").Return(rag.Answer{Text: "hello"}, nil).Once()

	rec := serve(t, newTestServer(answerer), chatRequestWithBody(`{"message":"hi"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"sources":[]`)
}

func TestServer_Chat_ValidationErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		body string
		want string
	}{
		"empty body":    {body: "", want: "No message provided"},
		"invalid json":  {body: "{invalid", want: "No message provided"},
		"missing field": {body: `{"question":"hi"}`, want: "No message provided"},
		"null message":  {body: `{"message":null}`, want: "No message provided"},
		"empty message": {body: `{"message":""}`, want: "Empty message"},
		"blank message": {body: `{"message":"   \n\t"}`, want: "Empty message"},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			answerer := newReadyAnswerer()
			rec := serve(t, newTestServer(answerer), chatRequestWithBody(tc.body))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tc.want), rec.Body.String())
			answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
		})
	}
}

func TestServer_Chat_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	answerer := newReadyAnswerer()
	body := `{"message":"` + strings.Repeat("a", maxChatBodyBytes) + `"}`

	rec := serve(t, newTestServer(answerer), chatRequestWithBody(body))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.JSONEq(t, `{"error":"Request body too large"}`, rec.Body.String())
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
}

func TestServer_Chat_FailureReturnsDetails(t *testing.T) {
	t.Parallel()

	answerer := newReadyAnswerer()
	answerer.On("Answer", mock.Anything, "hi").Return(rag.Answer{}, errors.New("generate answer: upstream down")).Once()

	rec := serve(t, newTestServer(answerer), chatRequestWithBody(`{"message":"hi"}`))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t,
		`{"error":"An error occurred processing your request","details":"generate answer: upstream down"}`,
		rec.Body.String())
}

func TestServer_Chat_EmptyQuestionFromService(t *testing.T) {
	t.Parallel()

	answerer := newReadyAnswerer()
	answerer.On("Answer", mock.Anything, "?").Return(rag.Answer{}, rag.ErrEmptyQuestion).Once()

	rec := serve(t, newTestServer(answerer), chatRequestWithBody(`{"message":"?"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Empty message")
}

func TestServer_Chat_NotReady(t *testing.T) {
	t.Parallel()

	answerer := &mockAnswerer{}
	answerer.On("Ready").Return(false)

	rec := serve(t, newTestServer(answerer), chatRequestWithBody(`{"message":"hi"}`))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "not initialized")
	answerer.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
}

func TestServer_Chat_RateLimited(t *testing.T) {
	t.Parallel()

	answerer := newReadyAnswerer()
	answerer.On("Answer", mock.Anything, "hi").Return(rag.Answer{Text: "hello"}, nil).Once()
	cfg := testConfig()
	cfg.Server.ChatRPS = 0.001
	cfg.Server.ChatBurst = 1
	server := NewServer(answerer, cfg, zap.NewNop())

	first := serve(t, server, chatRequestWithBody(`{"message":"hi"}`))
	require.Equal(t, http.StatusOK, first.Code)

	second := serve(t, server, chatRequestWithBody(`{"message":"hi"}`))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	require.Contains(t, second.Body.String(), "error")

	other := chatRequestWithBody(`{"message":""}`)
	other.RemoteAddr = "198.51.100.7:4000"
	third := serve(t, server, other)
	require.Equal(t, http.StatusBadRequest, third.Code, "other clients keep their own bucket")
	answerer.AssertExpectations(t)
}

func TestServer_QuickAnswer(t *testing.T) {
	t.Parallel()

	server := newTestServer(newReadyAnswerer())

	rec := serve(t, server, httptest.NewRequest(http.MethodGet, "/quick-answer/contact", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"response":"Call 555-0100","status":"success"}`, rec.Body.String())

	rec = serve(t, server, httptest.NewRequest(http.MethodGet, "/quick-answer/Location", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Main campus")

	rec = serve(t, server, httptest.NewRequest(http.MethodGet, "/quick-answer/fees", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"Quick answer not found"}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(newReadyAnswerer())
	serve(t, server, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	rec := serve(t, server, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_CORSPreflight(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://campus.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := serve(t, newTestServer(newReadyAnswerer()), req)

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(newReadyAnswerer()), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware_ReturnsInternalError(t *testing.T) {
	t.Parallel()

	answerer := newReadyAnswerer()
	answerer.On("Answer", mock.Anything, "boom").Run(func(mock.Arguments) {
		panic("kaboom")
	}).Return(rag.Answer{}, nil)
	cfg := testConfig()
	cfg.Server.RequestTimeout = 0

	rec := serve(t, NewServer(answerer, cfg, zap.NewNop()), chatRequestWithBody(`{"message":"boom"}`))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Parallel()

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	timeoutMiddleware(10*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "timed out")
}

func TestClientKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	require.Equal(t, "203.0.113.9", clientKey(req))

	req.RemoteAddr = "not-a-hostport"
	require.Equal(t, "not-a-hostport", clientKey(req))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}
	rw.WriteHeader(http.StatusTeapot)
	_, err := rw.Write([]byte("short and stout"))
	require.NoError(t, err)
	rw.Flush()

	require.Equal(t, http.StatusTeapot, rw.status)
	require.True(t, rec.Flushed)
}

// --- helpers/fakes ---

type mockAnswerer struct {
	mock.Mock
}

func (m *mockAnswerer) Answer(ctx context.Context, question string) (rag.Answer, error) {
	args := m.Called(ctx, question)
	answer, _ := args.Get(0).(rag.Answer)
	return answer, args.Error(1)
}

func (m *mockAnswerer) IndexLoaded() bool {
	return m.Called().Bool(0)
}

func (m *mockAnswerer) Ready() bool {
	return m.Called().Bool(0)
}

func newReadyAnswerer() *mockAnswerer {
	m := &mockAnswerer{}
	m.On("IndexLoaded").Return(true).Maybe()
	m.On("Ready").Return(true).Maybe()
	return m
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
		},
		Assistant: config.AssistantConfig{Name: "Test University"},
		QuickAnswers: config.QuickAnswersConfig{
			Contact:  "Call 555-0100",
			Location: "Main campus, 1 University Road",
		},
	}
}

func newTestServer(answerer Answerer) *Server {
	return NewServer(answerer, testConfig(), zap.NewNop())
}

func chatRequestWithBody(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(t *testing.T, server *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}
