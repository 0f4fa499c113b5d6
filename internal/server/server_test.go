package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"loomline/internal/config"
	"loomline/internal/db"
	"loomline/internal/engine"
	"loomline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	// No expiry so test runs are not calendar dependent.
	cfg.Auth.Users = []config.User{
		{Username: "admin", Password: "1234"},
		{Username: "locked", Password: "zzz", AccessUntil: "2000-01-01"},
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.AddProduct(context.Background(), "Knit Tee", 2); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer) map[string]string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"username": "admin",
		"password": "1234",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var body LoginResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if body.Token == "" {
		t.Fatalf("empty token")
	}
	return map[string]string{"Authorization": "Bearer " + body.Token}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/products", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", res.StatusCode)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"username": "admin", "password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"username": "locked", "password": "zzz",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expired user: status %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "access_expired") {
		t.Fatalf("expired user: want access_expired code, got %s", string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must not require auth: status %d", res.StatusCode)
	}
}

func TestOrderLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := login(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"name":     "Spring run",
		"product":  "Knit Tee",
		"urgency":  8,
		"cost":     5,
		"deadline": "2030-06-01",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var created OrderResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}
	// 8*0.4 + (10-2)*0.3 + (10-5)*0.3
	if created.Score != 7.1 {
		t.Fatalf("score = %v, want 7.1", created.Score)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/orders", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var queue []OrderResponse
	if err := json.Unmarshal(data, &queue); err != nil {
		t.Fatalf("unmarshal queue: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != created.ID {
		t.Fatalf("queue = %+v", queue)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders/"+created.ID+"/complete", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var done OrderResponse
	if err := json.Unmarshal(data, &done); err != nil {
		t.Fatalf("unmarshal completed: %v", err)
	}
	if done.Status != "completed" || done.CompletedAt == nil {
		t.Fatalf("completed order = %+v", done)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders/"+created.ID+"/complete", nil, headers)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("second complete status %d, want 422: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "invalid_state") {
		t.Fatalf("want invalid_state code, got %s", string(data))
	}
}

func TestSubmitOrderValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := login(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"name":     "bad",
		"product":  "Knit Tee",
		"urgency":  3,
		"cost":     5,
		"deadline": "not-a-date",
	}, headers)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad deadline status %d, want 400: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/products", map[string]any{
		"name":           "Knit Tee",
		"standard_hours": 2,
	}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate product status %d, want 409: %s", res.StatusCode, string(data))
	}
}

func TestSummaryEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := login(t, srv)
	client := srv.Client()

	for _, name := range []string{"a", "b"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders", map[string]any{
			"name": name, "product": "Knit Tee", "urgency": 5, "cost": 5, "deadline": "2030-06-01",
		}, headers)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("submit %s: status %d: %s", name, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/summary", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d: %s", res.StatusCode, string(data))
	}
	var summary SummaryResponse
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Counts.Open != 2 || summary.Counts.Completed != 0 {
		t.Fatalf("counts = %+v", summary.Counts)
	}
	// Two Knit Tees at 2h each against the default 5*8*5 capacity.
	if summary.PlannedHours != 4 || summary.WeeklyCapacity != 200 {
		t.Fatalf("planned=%v capacity=%v", summary.PlannedHours, summary.WeeklyCapacity)
	}
	if summary.Utilization != 0.02 {
		t.Fatalf("utilization = %v, want 0.02", summary.Utilization)
	}
}

func TestReportAndCharts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	headers := login(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orders", map[string]any{
		"name": "sheet", "product": "Knit Tee", "urgency": 6, "cost": 3, "deadline": "2030-06-01",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/report/production-order", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("report status %d: %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "sheet") || !strings.Contains(string(data), "Knit Tee") {
		t.Fatalf("report missing order line:\n%s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/charts/priority.svg", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chart status %d: %s", res.StatusCode, string(data))
	}
	if ct := res.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("chart content type %q", ct)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Fatalf("chart is not SVG")
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/report/production-order", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("report without token: status %d, want 401", res.StatusCode)
	}
}
