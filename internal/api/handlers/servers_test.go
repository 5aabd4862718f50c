package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Yupick/mc-simple/internal/config"
	"github.com/Yupick/mc-simple/internal/rcon"
	"github.com/Yupick/mc-simple/internal/scheduler"
	"github.com/Yupick/mc-simple/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSupervisor struct {
	mu       sync.Mutex
	status   server.Status
	startErr error
	stopErr  error
	cmdErr   error
	output   string
	calls    []string
	commands []string
	logs     []string
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{
		status: server.Status{State: server.StateRunning, Running: true, PID: 4242},
	}
}

func (f *fakeSupervisor) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSupervisor) ServerID() string { return "survival" }

func (f *fakeSupervisor) GetStatus(ctx context.Context) (server.Status, error) {
	return f.status, nil
}

func (f *fakeSupervisor) Start(ctx context.Context) error {
	f.record("start")
	return f.startErr
}

func (f *fakeSupervisor) Stop(ctx context.Context) error {
	f.record("stop")
	return f.stopErr
}

func (f *fakeSupervisor) Restart(ctx context.Context) error {
	f.record("restart")
	return nil
}

func (f *fakeSupervisor) SendCommand(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	f.commands = append(f.commands, text)
	f.mu.Unlock()
	return f.output, f.cmdErr
}

func (f *fakeSupervisor) TailLogs(n int) ([]string, error) {
	if n > 0 && n < len(f.logs) {
		return f.logs[len(f.logs)-n:], nil
	}
	return f.logs, nil
}

func (f *fakeSupervisor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

type fakePlayers struct {
	list rcon.PlayerList
	raw  string
	err  error
}

func (f *fakePlayers) List(ctx context.Context) (rcon.PlayerList, string, error) {
	return f.list, f.raw, f.err
}

type fakeEvents struct {
	events    []server.Event
	lastLimit int
}

func (f *fakeEvents) ListEvents(ctx context.Context, serverID string, limit int) ([]server.Event, error) {
	f.lastLimit = limit
	return f.events, nil
}

func newServerRouter(h *ServerHandler) *gin.Engine {
	r := gin.New()
	r.GET("/status", h.GetStatus)
	r.POST("/start", h.StartServer)
	r.POST("/stop", h.StopServer)
	r.POST("/restart", h.RestartServer)
	r.POST("/command", h.ExecuteCommand)
	r.GET("/logs", h.GetLogs)
	r.GET("/players", h.GetPlayers)
	r.GET("/events", h.GetEvents)
	return r
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestGetStatus(t *testing.T) {
	sup := newFakeSupervisor()
	r := newServerRouter(NewServerHandler(context.Background(), sup, nil, nil, nil, time.Second))

	w := doRequest(r, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["state"] != "running" || body["pid"] != float64(4242) {
		t.Errorf("unexpected status body %v", body)
	}
}

func TestLifecycleErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"already running", &server.SupervisorError{Kind: server.KindAlreadyRunning}, http.StatusBadRequest, server.KindAlreadyRunning.String()},
		{"script failed", &server.SupervisorError{Kind: server.KindExternalCommandFailed, Stderr: "no jar"}, http.StatusBadGateway, server.KindExternalCommandFailed.String()},
		{"timeout", &server.SupervisorError{Kind: server.KindTimeout}, http.StatusGatewayTimeout, server.KindTimeout.String()},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, ""},
		{"other", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := newFakeSupervisor()
			sup.startErr = tt.err
			r := newServerRouter(NewServerHandler(context.Background(), sup, nil, nil, nil, time.Second))

			w := doRequest(r, http.MethodPost, "/start", nil)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d (%s)", tt.status, w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			if body["success"] != false {
				t.Errorf("expected success=false, got %v", body)
			}
			if tt.kind != "" && body["kind"] != tt.kind {
				t.Errorf("expected kind %q, got %v", tt.kind, body["kind"])
			}
		})
	}
}

func TestLifecycleSurfacesStderr(t *testing.T) {
	sup := newFakeSupervisor()
	sup.stopErr = &server.SupervisorError{Kind: server.KindExternalCommandFailed, Stderr: "screen: no session", Stdout: "stopping"}
	r := newServerRouter(NewServerHandler(context.Background(), sup, nil, nil, nil, time.Second))

	body := decodeBody(t, doRequest(r, http.MethodPost, "/stop", nil))
	if body["stderr"] != "screen: no session" || body["stdout"] != "stopping" {
		t.Errorf("expected captured output in body, got %v", body)
	}
}

func TestLifecycleSynchronousSuccess(t *testing.T) {
	sup := newFakeSupervisor()
	r := newServerRouter(NewServerHandler(context.Background(), sup, nil, nil, nil, time.Second))

	w := doRequest(r, http.MethodPost, "/restart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["success"] != true || body["message"] != "Server restarted" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestLifecycleAsync(t *testing.T) {
	sup := newFakeSupervisor()
	h := NewServerHandler(context.Background(), sup, nil, nil, nil, time.Second)
	r := newServerRouter(h)

	w := doRequest(r, http.MethodPost, "/start?async=true", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}

	h.WaitForCompletion()
	if calls := sup.Calls(); len(calls) != 1 || calls[0] != "start" {
		t.Errorf("expected start to run in the background, got %v", calls)
	}
}

func TestExecuteCommand(t *testing.T) {
	sup := newFakeSupervisor()
	sup.output = "There are 0 of a max of 20 players online:"
	r := newServerRouter(NewServerHandler(context.Background(), sup, nil, nil, nil, time.Second))

	w := doRequest(r, http.MethodPost, "/command", CommandRequest{Command: "list"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["output"] != sup.output {
		t.Errorf("unexpected output %v", body)
	}

	if w := doRequest(r, http.MethodPost, "/command", CommandRequest{Command: "   "}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank command, got %d", w.Code)
	}
	if len(sup.commands) != 1 {
		t.Errorf("blank command must not reach the supervisor, got %v", sup.commands)
	}
}

func TestExecuteCommandErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not running", &server.SupervisorError{Kind: server.KindNotRunning}, http.StatusBadRequest},
		{"rcon down", &server.SupervisorError{Kind: server.KindCommandFailed, Err: rcon.ErrConnection}, http.StatusBadGateway},
		{"bad target", fmt.Errorf("dial: %w", rcon.ErrInvalidTarget), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sup := newFakeSupervisor()
			sup.cmdErr = tt.err
			r := newServerRouter(NewServerHandler(context.Background(), sup, nil, nil, nil, time.Second))

			if w := doRequest(r, http.MethodPost, "/command", CommandRequest{Command: "say hi"}); w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestGetLogs(t *testing.T) {
	sup := newFakeSupervisor()
	sup.logs = []string{"a", "b", "c"}
	r := newServerRouter(NewServerHandler(context.Background(), sup, nil, nil, nil, time.Second))

	body := decodeBody(t, doRequest(r, http.MethodGet, "/logs?lines=2", nil))
	if body["count"] != float64(2) {
		t.Errorf("expected 2 lines, got %v", body)
	}
	if w := doRequest(r, http.MethodGet, "/logs?lines=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric lines, got %d", w.Code)
	}

	sup.logs = []string{"[Server thread/INFO]: Steve joined the game", "[Server thread/WARN]: Can't keep up!"}
	body = decodeBody(t, doRequest(r, http.MethodGet, "/logs?filter=problems", nil))
	if body["count"] != float64(1) {
		t.Errorf("expected 1 problem line, got %v", body)
	}
	body = decodeBody(t, doRequest(r, http.MethodGet, "/logs?filter=search&q=steve", nil))
	if body["count"] != float64(1) {
		t.Errorf("expected 1 search hit, got %v", body)
	}
	if w := doRequest(r, http.MethodGet, "/logs?filter=regex&q=(", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad pattern, got %d", w.Code)
	}
}

func TestGetPlayers(t *testing.T) {
	sup := newFakeSupervisor()

	players := &fakePlayers{
		list: rcon.PlayerList{Online: 2, Max: 20, Players: []string{"Steve", "Alex"}},
		raw:  "There are 2 of a max of 20 players online: Steve, Alex",
	}
	r := newServerRouter(NewServerHandler(context.Background(), sup, players, nil, nil, time.Second))
	body := decodeBody(t, doRequest(r, http.MethodGet, "/players", nil))
	if body["parsed"] != true || body["online"] != float64(2) {
		t.Errorf("unexpected players body %v", body)
	}

	players.err = fmt.Errorf("parse: %w", rcon.ErrUnrecognizedList)
	players.raw = "Online: nobody"
	w := doRequest(r, http.MethodGet, "/players", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unparsed reply, got %d", w.Code)
	}
	body = decodeBody(t, w)
	if body["parsed"] != false || body["raw"] != "Online: nobody" {
		t.Errorf("expected raw fallback, got %v", body)
	}

	players.err = &server.SupervisorError{Kind: server.KindNotRunning}
	if w := doRequest(r, http.MethodGet, "/players", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 when stopped, got %d", w.Code)
	}
}

func TestGetPlayersNotConfigured(t *testing.T) {
	r := newServerRouter(NewServerHandler(context.Background(), newFakeSupervisor(), nil, nil, nil, time.Second))
	if w := doRequest(r, http.MethodGet, "/players", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", w.Code)
	}
}

func TestGetEvents(t *testing.T) {
	events := &fakeEvents{events: []server.Event{
		{ID: "1", ServerID: "survival", Action: server.ActionStart, Success: true},
	}}
	r := newServerRouter(NewServerHandler(context.Background(), newFakeSupervisor(), nil, events, nil, time.Second))

	body := decodeBody(t, doRequest(r, http.MethodGet, "/events?limit=5", nil))
	list, ok := body["events"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("unexpected events body %v", body)
	}
	if events.lastLimit != 5 {
		t.Errorf("expected limit 5, got %d", events.lastLimit)
	}
}

type memoryStore struct {
	schedules map[string]config.ScheduleDefinition
	saves     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{schedules: make(map[string]config.ScheduleDefinition)}
}

func (m *memoryStore) GetAll() []config.ScheduleDefinition {
	out := make([]config.ScheduleDefinition, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	return out
}

func (m *memoryStore) GetByName(name string) (config.ScheduleDefinition, bool) {
	s, ok := m.schedules[name]
	return s, ok
}

func (m *memoryStore) Add(s config.ScheduleDefinition) error {
	if err := config.ValidateSchedule(&s); err != nil {
		return err
	}
	if _, ok := m.schedules[s.Name]; ok {
		return fmt.Errorf("schedule %s already exists", s.Name)
	}
	m.schedules[s.Name] = s
	return nil
}

func (m *memoryStore) Update(s config.ScheduleDefinition) error {
	if err := config.ValidateSchedule(&s); err != nil {
		return err
	}
	m.schedules[s.Name] = s
	return nil
}

func (m *memoryStore) Delete(name string) error {
	if _, ok := m.schedules[name]; !ok {
		return fmt.Errorf("schedule %s not found", name)
	}
	delete(m.schedules, name)
	return nil
}

func (m *memoryStore) Save() error {
	m.saves++
	return nil
}

type fakeRunner struct {
	reloads int
	ran     []string
	runErr  error
}

func (f *fakeRunner) Reload() error {
	f.reloads++
	return nil
}

func (f *fakeRunner) Jobs() []scheduler.Job { return nil }

func (f *fakeRunner) RunNow(ctx context.Context, name string) error {
	f.ran = append(f.ran, name)
	return f.runErr
}

func newScheduleRouter(h *ScheduleHandler) *gin.Engine {
	r := gin.New()
	r.GET("/schedules", h.ListSchedules)
	r.POST("/schedules", h.CreateSchedule)
	r.PUT("/schedules/:name", h.UpdateSchedule)
	r.DELETE("/schedules/:name", h.DeleteSchedule)
	r.POST("/schedules/:name/run", h.RunSchedule)
	return r
}

func TestScheduleCRUD(t *testing.T) {
	store := newMemoryStore()
	runner := &fakeRunner{}
	r := newScheduleRouter(NewScheduleHandler(store, runner))

	nightly := config.ScheduleDefinition{Name: "nightly", Cron: "0 4 * * *", Action: config.ScheduleRestart, Announce: "Restarting in 1 minute", AnnounceLead: "1m"}
	if w := doRequest(r, http.MethodPost, "/schedules", nightly); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	if w := doRequest(r, http.MethodPost, "/schedules", nightly); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a duplicate, got %d", w.Code)
	}

	badCron := config.ScheduleDefinition{Name: "broken", Cron: "every day", Action: config.ScheduleStop}
	if w := doRequest(r, http.MethodPost, "/schedules", badCron); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an invalid cron, got %d", w.Code)
	}

	update := config.ScheduleDefinition{Cron: "30 4 * * *", Action: config.ScheduleRestart}
	if w := doRequest(r, http.MethodPut, "/schedules/nightly", update); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if s, _ := store.GetByName("nightly"); s.Cron != "30 4 * * *" {
		t.Errorf("expected updated cron, got %q", s.Cron)
	}
	if w := doRequest(r, http.MethodPut, "/schedules/missing", update); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	if w := doRequest(r, http.MethodDelete, "/schedules/nightly", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := doRequest(r, http.MethodDelete, "/schedules/nightly", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", w.Code)
	}

	if store.saves != 3 || runner.reloads != 3 {
		t.Errorf("expected 3 saves and reloads, got %d and %d", store.saves, runner.reloads)
	}
}

func TestRunSchedule(t *testing.T) {
	runner := &fakeRunner{}
	r := newScheduleRouter(NewScheduleHandler(newMemoryStore(), runner))

	if w := doRequest(r, http.MethodPost, "/schedules/nightly/run", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if len(runner.ran) != 1 || runner.ran[0] != "nightly" {
		t.Errorf("unexpected runs %v", runner.ran)
	}

	runner.runErr = fmt.Errorf("%w: nightly", scheduler.ErrUnknownSchedule)
	if w := doRequest(r, http.MethodPost, "/schedules/nightly/run", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	runner.runErr = &server.SupervisorError{Kind: server.KindAlreadyRunning}
	if w := doRequest(r, http.MethodPost, "/schedules/nightly/run", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSettingsUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.Default()
	h := NewSettingsHandler(cfg, path)
	r := gin.New()
	r.GET("/settings", h.GetSettings)
	r.PUT("/settings", h.UpdateSettings)

	payload := SettingsPayload{
		Security: config.SecurityConfig{
			RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 30},
			CORS:      config.CORSConfig{AllowedOrigins: []string{" https://panel.example ", ""}},
		},
		Logging: config.LoggingConfig{Level: "debug", Format: "json"},
	}
	if w := doRequest(r, http.MethodPut, "/settings", payload); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if cfg.Security.RateLimit.RequestsPerMinute != 30 || cfg.Logging.Level != "debug" {
		t.Errorf("settings not applied: %+v %+v", cfg.Security, cfg.Logging)
	}
	if got := cfg.Security.CORS.AllowedOrigins; len(got) != 1 || got[0] != "https://panel.example" {
		t.Errorf("expected normalized origins, got %v", got)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected settings to be written: %v", err)
	}

	payload.Logging.Level = "verbose"
	if w := doRequest(r, http.MethodPut, "/settings", payload); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown level, got %d", w.Code)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("rejected update must not change the config, got %q", cfg.Logging.Level)
	}
}
