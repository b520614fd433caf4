package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-homesim/internal/audit"
	"github.com/nerrad567/gray-logic-homesim/internal/device"
	"github.com/nerrad567/gray-logic-homesim/internal/dispatch"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-homesim/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-homesim/internal/ingest"
	"github.com/nerrad567/gray-logic-homesim/migrations"
)

// fakeSender records commands and answers with a fixed result.
type fakeSender struct {
	mu     sync.Mutex
	calls  []sentCommand
	result dispatch.Result
}

type sentCommand struct {
	id     string
	action string
	params dispatch.Params
}

func (f *fakeSender) Send(_ context.Context, rec device.Record, action string, params dispatch.Params) dispatch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentCommand{
		id:     rec.ID,
		action: action,
		params: params,
	})
	res := f.result
	res.ID = "dispatch-1"
	return res
}

// fakePublisher records shutdown publications.
type fakePublisher struct {
	mu      sync.Mutex
	keys    []string
	payload []any
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, routingKey string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, routingKey)
	f.payload = append(f.payload, payload)
	return nil
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	srv       *Server
	registry  *device.Registry
	sender    *fakeSender
	publisher *fakePublisher
	audit     *audit.SQLiteRepository
}

// newTestEnv builds a server on a real registry, ingestor and in-memory
// dispatch log.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	env := &testEnv{
		registry:  device.NewRegistry(),
		sender:    &fakeSender{result: dispatch.Result{Success: true}},
		publisher: &fakePublisher{},
		audit:     audit.NewSQLiteRepository(db.DB),
	}

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:     logging.Discard(),
		Registry:   env.registry,
		Registrar:  ingest.New(env.registry),
		Dispatcher: env.sender,
		Audit:      env.audit,
		Shutdown:   env.publisher,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	hubCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(hubCtx)

	env.srv = srv
	return env
}

func (e *testEnv) seed(t *testing.T, patches ...device.Patch) {
	t.Helper()
	for _, p := range patches {
		if _, err := e.registry.Upsert(p); err != nil {
			t.Fatalf("Upsert(%s): %v", p.ID, err)
		}
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
}

func TestNew_RequiresLoggerAndRegistry(t *testing.T) {
	if _, err := New(Deps{Registry: device.NewRegistry()}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without registry should fail")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, device.Patch{ID: "temp_1", Subtype: device.SubtypeTemperature, Temperature: device.Float(21)})

	rr := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Devices int    `json:"devices"`
	}
	decodeBody(t, rr, &body)
	if body.Status != "ok" || body.Version != "test" || body.Devices != 1 {
		t.Errorf("health = %+v", body)
	}
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t)
	env.srv.health = map[string]HealthChecker{
		"broker":   healthFunc(func(context.Context) error { return errors.New("stream lost") }),
		"database": healthFunc(func(context.Context) error { return nil }),
	}

	rr := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}

	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	decodeBody(t, rr, &body)
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if body.Components["broker"] != "stream lost" || body.Components["database"] != "ok" {
		t.Errorf("components = %v", body.Components)
	}
}

func TestStartAndClose(t *testing.T) {
	env := newTestEnv(t)

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if env.srv.Addr() == "" {
		t.Fatal("Addr() empty after Start")
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck after Start: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + env.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	first := newTestEnv(t)
	if err := first.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.srv.Close()

	_, port, _ := strings.Cut(first.srv.Addr(), ":")
	second := newTestEnv(t)
	n, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("port %q: %v", port, err)
	}
	second.srv.cfg.Port = n
	if err := second.srv.Start(context.Background()); err == nil {
		second.srv.Close()
		t.Fatal("Start on a port in use should fail")
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.CORS.AllowedOrigins = []string{"http://panel.local"}

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://panel.local")
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://evil.local")
	rr = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unknown origin = %q, want empty", got)
	}
}
