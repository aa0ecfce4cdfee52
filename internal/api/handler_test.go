package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/subway/internal/api"
	"github.com/gyaneshwarpardhi/subway/internal/config"
	"github.com/gyaneshwarpardhi/subway/internal/fare"
	"github.com/gyaneshwarpardhi/subway/internal/store"
	"github.com/gyaneshwarpardhi/subway/internal/transit"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	handler http.Handler
	svc     *transit.Service
	loader  *config.Loader
}

func newServer(t *testing.T, configPath string) *testServer {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(store.Options{Logger: quiet})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := transit.New(ctx, st, transit.Options{RouteCacheSize: 64, Logger: quiet})
	require.NoError(t, err)

	loader, err := config.NewLoader(configPath, quiet)
	require.NoError(t, err)
	loader.OnChange(func(cfg *config.AppConfig) error {
		lines := make([]transit.LineSpec, len(cfg.Network.Lines))
		for i, l := range cfg.Network.Lines {
			cents, err := l.FareCents()
			if err != nil {
				return err
			}
			lines[i] = transit.LineSpec{Name: l.Name, FareCents: cents, Stations: l.Stations}
		}
		return svc.Seed(ctx, lines)
	})

	return &testServer{
		handler: api.New(svc, fare.NewLedger(st), loader, quiet),
		svc:     svc,
		loader:  loader,
	}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (s *testServer) addLine(t *testing.T, name string, fare float64, stations ...string) {
	t.Helper()
	rec, body := s.do(t, http.MethodPost, "/train-line", map[string]interface{}{
		"name":     name,
		"stations": stations,
		"fare":     fare,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "Train line was created successfully.", body["message"])
}

func (s *testServer) topUp(t *testing.T, number string, amount float64) map[string]interface{} {
	t.Helper()
	rec, body := s.do(t, http.MethodPost, "/card", map[string]interface{}{"number": number, "amount": amount})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Card was created/updated successfully.", body["message"])
	return body["card"].(map[string]interface{})
}

func routeQuery(origin, destination string) string {
	q := url.Values{}
	q.Set("origin", origin)
	q.Set("destination", destination)
	return "/route?" + q.Encode()
}

func asStrings(v interface{}) []string {
	list, _ := v.([]interface{})
	out := make([]string, len(list))
	for i, s := range list {
		out[i], _ = s.(string)
	}
	return out
}

// ── Train lines ──

func TestCreateTrainLine(t *testing.T) {
	s := newServer(t, "")
	s.addLine(t, "1", 2.75, "Canal", "Houston", "Christopher", "14th")

	rec, body := s.do(t, http.MethodGet, "/train-lines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	lines := body["lines"].([]interface{})
	require.Len(t, lines, 1)
	line := lines[0].(map[string]interface{})
	assert.Equal(t, "1", line["name"])
	assert.Equal(t, 2.75, line["fare"])
}

func TestCreateTrainLine_Invalid(t *testing.T) {
	s := newServer(t, "")
	for _, body := range []interface{}{
		map[string]interface{}{"stations": []string{"A", "B"}, "fare": 1},
		map[string]interface{}{"name": "1", "fare": 1},
		map[string]interface{}{"name": "1", "stations": []string{"A", ""}, "fare": 1},
		map[string]interface{}{"name": "1", "stations": []string{"A"}, "fare": -1},
		map[string]interface{}{"name": "1", "stations": []string{"A", "B"}, "fare": 1e17},
		map[string]interface{}{"name": "1", "stations": []string{"A", "B"}, "fare": 1e300},
	} {
		rec, _ := s.do(t, http.MethodPost, "/train-line", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%v", body)
	}

	rec, body := s.do(t, http.MethodGet, "/train-lines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["lines"])

	req := httptest.NewRequest(http.MethodPost, "/train-line", bytes.NewBufferString("{not json"))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ── Cards ──

func TestCard_Create(t *testing.T) {
	s := newServer(t, "")
	card := s.topUp(t, "1234", 10)
	assert.Equal(t, 10.0, card["balance"])
	assert.Equal(t, "1234", card["number"])
}

func TestCard_AddBalance(t *testing.T) {
	s := newServer(t, "")
	s.topUp(t, "12345", 10)
	card := s.topUp(t, "12345", 5)
	assert.Equal(t, 15.0, card["balance"])
}

func TestCard_Invalid(t *testing.T) {
	s := newServer(t, "")
	for _, body := range []interface{}{
		map[string]interface{}{"amount": 10},
		map[string]interface{}{"number": "1"},
		map[string]interface{}{"number": "1", "amount": 0},
		map[string]interface{}{"number": "1", "amount": -3},
		map[string]interface{}{"number": 1, "amount": 3},
		map[string]interface{}{"number": "1", "amount": 1e17},
	} {
		rec, out := s.do(t, http.MethodPost, "/card", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "%v", body)
		assert.Equal(t, "Invalid card number or amount.", out["error"])
	}
}

func TestCard_BalanceLimit(t *testing.T) {
	s := newServer(t, "")
	// 92 top-ups of the largest accepted amount come within 1e17 cents of math.MaxInt64.
	for i := 0; i < 92; i++ {
		s.topUp(t, "12345", 1e15)
	}
	rec, out := s.do(t, http.MethodPost, "/card", map[string]interface{}{"number": "12345", "amount": 1e15})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid card number or amount.", out["error"])

	rec, out = s.do(t, http.MethodGet, "/card/12345/rides", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	card := out["card"].(map[string]interface{})
	assert.Equal(t, 9.2e16, card["balance"])
}

// ── Stations ──

func stationServer(t *testing.T) *testServer {
	s := newServer(t, "")
	s.addLine(t, "1", 2.75, "Canal", "Houston", "Christopher", "14th")
	s.topUp(t, "12345", 15)
	return s
}

func TestEnter(t *testing.T) {
	s := stationServer(t)
	rec, body := s.do(t, http.MethodPost, "/station/Houston/enter", map[string]string{"card_number": "12345"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 12.25, body["amount"])
}

func TestEnter_MinFare(t *testing.T) {
	s := stationServer(t)
	s.addLine(t, "2", 1, "Canal", "Houston", "Christopher", "14th")

	rec, body := s.do(t, http.MethodPost, "/station/Houston/enter", map[string]string{"card_number": "12345"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 14.0, body["amount"])
}

func TestEnter_Rejected(t *testing.T) {
	s := stationServer(t)
	s.addLine(t, "2", 100, "1st", "2nd", "3rd", "4th")

	tests := []struct {
		name    string
		target  string
		card    string
		code    int
		message string
	}{
		{"insufficient balance", "/station/1st/enter", "12345", http.StatusBadRequest, "Insufficient prepaid balance."},
		{"unknown station", "/station/Atlantis/enter", "12345", http.StatusBadRequest, "Station does not exist."},
		{"unknown card", "/station/Houston/enter", "999", http.StatusNotFound, "Card was not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, tt.target, map[string]string{"card_number": tt.card})
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, body["error"])
		})
	}
}

func TestEnter_StationNameWithSpace(t *testing.T) {
	s := stationServer(t)
	s.addLine(t, "E", 2.75, "Spring", "West 4th", "14th", "23rd")

	rec, body := s.do(t, http.MethodPost, "/station/West%204th/enter", map[string]string{"card_number": "12345"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 12.25, body["amount"])
}

func TestExit_NoFare(t *testing.T) {
	s := stationServer(t)
	rec, body := s.do(t, http.MethodPost, "/station/14th/exit", map[string]string{"card_number": "12345"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 15.0, body["amount"])

	rec, body = s.do(t, http.MethodPost, "/station/14th/exit", map[string]string{"card_number": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Card was not found.", body["error"])
}

func TestCardRides(t *testing.T) {
	s := stationServer(t)
	s.do(t, http.MethodPost, "/station/Canal/enter", map[string]string{"card_number": "12345"})
	s.do(t, http.MethodPost, "/station/14th/exit", map[string]string{"card_number": "12345"})

	rec, body := s.do(t, http.MethodGet, "/card/12345/rides", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 12.25, body["card"].(map[string]interface{})["balance"])
	rides := body["rides"].([]interface{})
	require.Len(t, rides, 2)
	assert.Equal(t, "enter", rides[0].(map[string]interface{})["action"])
	assert.Equal(t, 2.75, rides[0].(map[string]interface{})["fare"])
	assert.Equal(t, "exit", rides[1].(map[string]interface{})["action"])

	rec, _ = s.do(t, http.MethodGet, "/card/0000/rides", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ── Routes ──

func TestRoute(t *testing.T) {
	s := newServer(t, "")
	s.addLine(t, "1", 2.75, "Canal", "Houston", "Christopher", "14th")
	s.addLine(t, "E", 2.75, "Spring", "West 4th", "14th", "23rd")
	s.addLine(t, "G", 2.75, "Court Sq", "Greenpoint")

	tests := []struct {
		name     string
		target   string
		code     int
		route    []string
		errorMsg string
	}{
		{"already at station", routeQuery("Canal", "Canal"), http.StatusOK, []string{"Canal"}, ""},
		{"no transfers", routeQuery("Houston", "Christopher"), http.StatusOK, []string{"Houston", "Christopher"}, ""},
		{"no transfers, backwards", routeQuery("14th", "Canal"), http.StatusOK, []string{"14th", "Christopher", "Houston", "Canal"}, ""},
		{"with transfers", routeQuery("Houston", "23rd"), http.StatusOK, []string{"Houston", "Christopher", "14th", "23rd"}, ""},
		{"cannot reach station", routeQuery("Houston", "Greenpoint"), http.StatusBadRequest, nil, "No route found"},
		{"missing destination", "/route?origin=Canal", http.StatusBadRequest, nil, "Origin and destination are required."},
		{"unknown station", routeQuery("Canal", "Atlantis"), http.StatusBadRequest, nil, "Origin and destination must both exist."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodGet, tt.target, nil)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.errorMsg != "" {
				assert.Equal(t, tt.errorMsg, body["error"])
				return
			}
			assert.Equal(t, tt.route, asStrings(body["route"]))
		})
	}
}

func TestRoute_UpdatedByNewLine(t *testing.T) {
	s := newServer(t, "")
	s.addLine(t, "1", 2.75, "Canal", "Houston", "Christopher")
	s.addLine(t, "E", 2.75, "Spring", "West 4th", "14th", "23rd")

	rec, body := s.do(t, http.MethodGet, routeQuery("Houston", "23rd"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No route found", body["error"])

	s.addLine(t, "1", 2.75, "Canal", "Houston", "Christopher", "14th")
	rec, body = s.do(t, http.MethodGet, routeQuery("Houston", "23rd"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Houston", "Christopher", "14th", "23rd"}, asStrings(body["route"]))
}

// ── Operations ──

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: {lines: []}\n"), 0o644))
	s := newServer(t, path)

	require.NoError(t, os.WriteFile(path, []byte(`
network:
  lines:
    - {name: "1", fare: 2.75, stations: [Canal, Houston]}
`), 0o644))
	rec, body := s.do(t, http.MethodPost, "/admin/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["reloaded"])
	assert.Equal(t, 1.0, body["lines_count"])

	rec, body = s.do(t, http.MethodGet, routeQuery("Canal", "Houston"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Canal", "Houston"}, asStrings(body["route"]))

	require.NoError(t, os.WriteFile(path, []byte("log: {level: loud}\n"), 0o644))
	rec, body = s.do(t, http.MethodPost, "/admin/reload", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotEmpty(t, body["problems"])
}

func TestReload_ApplyFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: {lines: []}\n"), 0o644))
	s := newServer(t, path)
	s.loader.OnChange(func(*config.AppConfig) error { return errors.New("store is read-only") })

	rec, body := s.do(t, http.MethodPost, "/admin/reload", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["error"], "store is read-only")
	assert.NotContains(t, body, "reloaded")
}

func TestHealthEndpoints(t *testing.T) {
	s := newServer(t, "")
	s.addLine(t, "1", 2.75, "Canal", "Houston")

	rec, body := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = s.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	graph := body["graph"].(map[string]interface{})
	assert.Equal(t, 2.0, graph["stations"])
	assert.Equal(t, 1.0, graph["edges"])

	rec, _ = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "subway_graph_rebuilds_total")
}

func TestRequestID(t *testing.T) {
	s := newServer(t, "")

	rec, _ := s.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
