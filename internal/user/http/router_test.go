package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AlibekovAA/user-directory/backend/internal/cache"
	"github.com/AlibekovAA/user-directory/backend/internal/common/clock"
	commonhttp "github.com/AlibekovAA/user-directory/backend/internal/common/http"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
	"github.com/AlibekovAA/user-directory/backend/internal/outbox"
	"github.com/AlibekovAA/user-directory/backend/internal/outbox/reprocess"
	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
	userhttp "github.com/AlibekovAA/user-directory/backend/internal/user/http"
	userrepo "github.com/AlibekovAA/user-directory/backend/internal/user/repository"
	"github.com/AlibekovAA/user-directory/backend/internal/user/service"
)

type recordingEmitter struct {
	mu             sync.Mutex
	correlationIDs []string
}

func (e *recordingEmitter) Emit(ctx context.Context, correlationID string, event *domain.ChangeEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.correlationIDs = append(e.correlationIDs, correlationID)
	return nil
}

type testServer struct {
	handler http.Handler
	emitter *recordingEmitter
	outbox  *outbox.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log, _ := logger.New("", "test", "error")

	repo := userrepo.NewMemoryRepository()
	emitter := &recordingEmitter{}
	outboxService := outbox.NewService(outbox.NewMemoryStore(), true, clock.NewRealClock(), log)
	svc := service.NewUserService(
		service.UserServiceDeps{
			Repo:     repo,
			Cache:    cache.Disabled{},
			Emitter:  emitter,
			Recorder: outboxService,
			Log:      log,
		},
		service.UserServiceConfig{StorageTimeout: time.Second, CircuitBreakerThreshold: 5, CircuitBreakerReset: time.Minute},
	)
	scheduler := reprocess.NewScheduler(outboxService, repo, emitter, outboxService, reprocess.Config{ItemsPerRun: 10}, log)

	h := userhttp.NewHandler(svc, outboxService, scheduler, userhttp.HandlerConfig{RequestTimeout: time.Second}, log)
	return &testServer{
		handler: commonhttp.BuildBaseHandler(log, h),
		emitter: emitter,
		outbox:  outboxService,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func johnDoeJr() map[string]any {
	return map[string]any{
		"username":  "johndoejr",
		"email":     "johndoejr@mail.com",
		"firstName": "John",
		"lastName":  "Doe Jr.",
	}
}

func TestUserHTTP_CreateAndGet(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/appusers", johnDoeJr(), map[string]string{"X-Request-ID": "req-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/api/appusers/johndoejr" {
		t.Errorf("expected location /api/appusers/johndoejr, got %s", loc)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-1" {
		t.Errorf("expected correlation header to be echoed, got %q", got)
	}
	if len(s.emitter.correlationIDs) != 1 || s.emitter.correlationIDs[0] != "req-1" {
		t.Errorf("expected emission under req-1, got %v", s.emitter.correlationIDs)
	}

	rec = s.do(t, http.MethodGet, "/api/appusers/JohnDoeJr", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var user map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&user); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if user["username"] != "johndoejr" || user["active"] != true || user["biography"] != nil {
		t.Errorf("unexpected user body %v", user)
	}
}

func TestUserHTTP_GetUnknownUser(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/appusers/ghost", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
}

func TestUserHTTP_CreateConflict(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/appusers", johnDoeJr(), nil)

	body := johnDoeJr()
	body["email"] = "other@mail.com"
	rec := s.do(t, http.MethodPost, "/api/appusers", body, nil)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	var resp struct {
		Title      string              `json:"title"`
		Violations []service.Violation `json:"violations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Title != "Uniqueness Constraint Violation" {
		t.Errorf("unexpected title %q", resp.Title)
	}
	if len(resp.Violations) != 1 || resp.Violations[0].Field != "username" || resp.Violations[0].Message != "Username must be unique" {
		t.Errorf("unexpected violations %v", resp.Violations)
	}
}

func TestUserHTTP_CreateValidationError(t *testing.T) {
	s := newTestServer(t)

	body := johnDoeJr()
	body["email"] = "not-an-email"
	rec := s.do(t, http.MethodPost, "/api/appusers", body, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	var env commonhttp.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if env.Code != "VALIDATION_FAILED" {
		t.Errorf("expected code VALIDATION_FAILED, got %s", env.Code)
	}
	if env.Details["field"] != "email" {
		t.Errorf("expected email field in details, got %v", env.Details)
	}
	if listed, ok := env.Details["errors"].([]any); !ok || len(listed) != 1 {
		t.Errorf("expected one listed field error, got %v", env.Details["errors"])
	}
	if env.TraceID == "" {
		t.Error("expected trace id in error envelope")
	}
}

func TestUserHTTP_InvalidJSON(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/appusers", "not json", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	var env commonhttp.ErrorEnvelope
	_ = json.NewDecoder(rec.Body).Decode(&env)
	if env.Code != commonhttp.CodeInvalidJSON {
		t.Errorf("expected code INVALID_JSON, got %s", env.Code)
	}
}

func TestUserHTTP_Update(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/appusers", johnDoeJr(), nil)

	body := johnDoeJr()
	body["firstName"] = "Johnny"
	body["active"] = false
	body["creationDate"] = "1999-01-01T00:00:00Z"
	rec := s.do(t, http.MethodPut, "/api/appusers", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var user map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&user)
	if user["firstName"] != "Johnny" || user["active"] != true {
		t.Errorf("unexpected user body %v", user)
	}
	if user["creationDate"] == "1999-01-01T00:00:00Z" {
		t.Error("expected creation date to be immutable")
	}

	body["username"] = "ghost"
	body["email"] = "ghost@mail.com"
	rec = s.do(t, http.MethodPut, "/api/appusers", body, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for unknown user, got %d", rec.Code)
	}
}

func TestUserHTTP_Disable(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/api/appusers", johnDoeJr(), nil)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPut, "/api/appusers/johndoejr/disable", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("disable %d: expected status 200, got %d", i, rec.Code)
		}
		var resp map[string]string
		_ = json.NewDecoder(rec.Body).Decode(&resp)
		if resp["username"] != "johndoejr" {
			t.Errorf("disable %d: unexpected body %v", i, resp)
		}
	}

	rec := s.do(t, http.MethodPut, "/api/appusers/ghost/disable", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
}

func TestUserHTTP_OutboxDiagnostics(t *testing.T) {
	s := newTestServer(t)
	s.outbox.Record(context.Background(), "cid-1", []byte(`{"username":"ghost","firstName":"Ghost","lastName":null,"active":true}`), "nack")

	rec := s.do(t, http.MethodGet, "/api/outbox", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var entries []map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&entries)
	if len(entries) != 1 || entries[0]["correlationId"] != "cid-1" {
		t.Fatalf("unexpected entries %v", entries)
	}

	if rec := s.do(t, http.MethodGet, "/api/outbox/1", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/outbox/99", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/outbox/abc", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/outbox/reprocess", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var report reprocess.Report
	_ = json.NewDecoder(rec.Body).Decode(&report)
	if report.Claimed != 1 || report.Missing != 1 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestUserHTTP_Health(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}
