package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/chat-insight/internal/config"
	"github.com/ashwinyue/chat-insight/internal/handler"
	"github.com/ashwinyue/chat-insight/internal/repository"
	"github.com/ashwinyue/chat-insight/internal/service"
	"github.com/ashwinyue/chat-insight/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
}

type testServer struct {
	engine   *gin.Engine
	services *service.Services
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	cfg := testutil.NewTestConfig()
	cfg.Annotator.Mode = "heuristic"
	if mutate != nil {
		mutate(cfg)
	}

	db := testutil.NewTestDB(t)
	svc, err := service.NewServices(context.Background(), cfg, service.Deps{Repos: repository.NewRepositories(db)})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	dbCheck := handler.HealthCheck{Name: "database", Check: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}
	h := handler.NewHandlers(svc, dbCheck)
	return &testServer{engine: SetupRouter(h, svc.Auth, zerolog.Nop()), services: svc}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp apiResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

const batchBody = `[{"user_ns":"u1","chat_history":[
	{"type":"in","msg_type":"text","payload":{"text":"my internet is down"},"ts":1700000000},
	{"type":"agent","msg_type":"text","payload":{"text":"please restart the modem"},"agent_id":7,"username":"Dana","ts":1700000060},
	{"type":"in","msg_type":"text","payload":{"text":"works now, close the ticket"},"ts":1700000120},
	{"type":"in","msg_type":"text","payload":{"text":"one more question"},"ts":1700000180}
]}]`

func TestIngestAndProject(t *testing.T) {
	s := newTestServer(t, nil)

	w, resp := s.do(t, http.MethodPost, "/api/v1/ingest/batches", batchBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report struct {
		Ingested int `json:"ingested"`
		Failed   int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &report))
	assert.Equal(t, 4, report.Ingested)
	assert.Zero(t, report.Failed)

	w, resp = s.do(t, http.MethodGet, "/api/v1/insights/kpis", "")
	require.Equal(t, http.StatusOK, w.Code)
	var kpis map[string]int
	require.NoError(t, json.Unmarshal(resp.Data, &kpis))
	assert.Equal(t, 2, kpis["total"])
	assert.Equal(t, 1, kpis["solved"])
	assert.Equal(t, 1, kpis["inProgress"])

	w, resp = s.do(t, http.MethodGet, "/api/v1/insights/conversations?status=solved", "")
	require.Equal(t, http.StatusOK, w.Code)
	var convs []struct {
		ID       string   `json:"id"`
		TenantID string   `json:"tenantId"`
		AgentIDs []string `json:"agentIds"`
		Messages []struct {
			SenderType string `json:"senderType"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "CONV-1", convs[0].ID)
	assert.Equal(t, "u1", convs[0].TenantID)
	assert.Equal(t, []string{"7"}, convs[0].AgentIDs)
	require.Len(t, convs[0].Messages, 3)
	assert.Equal(t, "tenant", convs[0].Messages[0].SenderType)

	w, _ = s.do(t, http.MethodGet, "/api/v1/insights/trends/sentiment?granularity=month", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodGet, "/api/v1/insights/trends/emotion?granularity=week", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, path := range []string{
		"/api/v1/insights/tenants",
		"/api/v1/insights/agents",
		"/api/v1/insights/trending-topics?limit=3",
		"/api/v1/insights/sentiment-distribution",
		"/api/v1/insights/emotion-distribution",
		"/api/v1/insights/summary",
		"/api/v1/clients/u1/conversations",
		"/api/v1/conversations/1/messages",
	} {
		w, _ := s.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestIngest_MalformedBatch(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty", ``},
		{"not json", `{"user_ns":`},
		{"missing namespace", `{"chat_history":[]}`},
		{"bad event type", `{"user_ns":"u1","chat_history":[{"type":"bot","ts":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := s.do(t, http.MethodPost, "/api/v1/ingest/batches", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, 400, resp.Code)
		})
	}
	kpis, err := s.services.Insight.KPIs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, kpis.Total)
}

func TestConversationEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodPost, "/api/v1/clients", `{"client_id":"c1","name":"Alice","date_of_birth":"1990-01-01"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, _ = s.do(t, http.MethodPost, "/api/v1/clients", `{"client_id":"c1","name":"Alice"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/clients", `{"client_id":"c2","name":"Bob","date_of_birth":"01/02/1990"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/agents", `{"agent_id":"a1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := s.do(t, http.MethodPost, "/api/v1/clients/c1/conversations", ``)
	require.Equal(t, http.StatusCreated, w.Code)
	var conv struct {
		ConversationID uint   `json:"conversation_id"`
		Status         string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &conv))
	assert.Equal(t, "in_progress", conv.Status)

	w, _ = s.do(t, http.MethodPost, "/api/v1/clients/nobody/conversations", ``)
	assert.Equal(t, http.StatusNotFound, w.Code)

	path := "/api/v1/conversations/1/messages"
	w, _ = s.do(t, http.MethodPost, path, `{"sender":"user","text":"my order is late"}`)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, _ = s.do(t, http.MethodPost, path, `{"sender":"agent","agent_id":"a1","text":"checking now"}`)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w, _ = s.do(t, http.MethodPost, path, `{"sender":"agent","agent_id":"ghost","text":"hello"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodPost, path, `{"sender":"bot","text":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodPost, path, `{"sender":"user","text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/conversations/99/messages", `{"sender":"user","text":"hi"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodPost, "/api/v1/conversations/abc/messages", `{"sender":"user","text":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = s.do(t, http.MethodPost, "/api/v1/conversations/1/close", ``)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, &conv))
	assert.Equal(t, "solved", conv.Status)

	w, _ = s.do(t, http.MethodGet, "/api/v1/clients/c1/profile", ``)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = s.do(t, http.MethodPost, "/api/v1/conversations/1/reopen", ``)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(resp.Data, &conv))
	assert.Equal(t, "in_progress", conv.Status)
}

func TestSearch_DisabledWithoutElastic(t *testing.T) {
	s := newTestServer(t, nil)
	w, resp := s.do(t, http.MethodGet, "/api/v1/search/conversations?q=router", ``)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 503, resp.Code)
}

func TestAuthOnWriteEndpoints(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Secret = "s3cret"
		cfg.Auth.Issuer = "chat-insight"
	})

	w, _ := s.do(t, http.MethodPost, "/api/v1/ingest/batches", batchBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/insights/kpis", ``)
	assert.Equal(t, http.StatusOK, w.Code)

	token, err := s.services.Auth.IssueToken("ops", time.Minute)
	require.NoError(t, err)
	w, _ = s.do(t, http.MethodPost, "/api/v1/ingest/batches", batchBody, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	w, _ := s.do(t, http.MethodGet, "/health", ``)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w, _ = s.do(t, http.MethodGet, "/metrics", ``)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat_insight_http_requests_total")
}
