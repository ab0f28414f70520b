package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/broadcast"
	"trivia-live-service/internal/infra/memory"
	"trivia-live-service/internal/metrics"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *app.GameService) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := memory.NewSessionStore()
	hub := broadcast.NewHub(zerolog.Nop(), m, time.Second)
	repo := memory.NewQuestionSetRepository(memory.NewStaticQuestionSetLoader(memory.SampleQuestionSets()), time.Minute)
	service := app.NewGameService(store, repo, hub, app.Options{
		WatchdogInterval: time.Hour,
		Logger:           zerolog.Nop(),
		Metrics:          m,
	})

	router := NewRouter(NewGameHandler(service), NewWSHandler(service, zerolog.Nop()), zerolog.Nop(), RouterConfig{
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		for _, s := range store.List() {
			service.DeleteSession(s.ID())
		}
	})
	return server, service
}

func call(t *testing.T, server *httptest.Server, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func createGame(t *testing.T, server *httptest.Server, gameID string) {
	t.Helper()
	status, env := call(t, server, http.MethodPost, "/api/game/create", map[string]any{
		"gameId":     gameID,
		"hostId":     "host",
		"password":   "pw",
		"questions":  memory.SampleQuestionSet().Questions,
		"maxPlayers": 3,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
}

func joinGame(t *testing.T, server *httptest.Server, gameID, playerID string) {
	t.Helper()
	status, env := call(t, server, http.MethodPost, "/api/game/join", map[string]any{
		"gameId":     gameID,
		"playerId":   playerID,
		"playerName": "Player " + playerID,
		"password":   "pw",
	})
	require.Equal(t, http.StatusOK, status, env.Message)
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
