package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterConfig carries the cross-cutting pieces of the HTTP surface.
type RouterConfig struct {
	AllowedOrigins []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter mounts the game API, the WebSocket endpoint and the operational routes.
func NewRouter(games *GameHandler, ws *WSHandler, logger zerolog.Logger, cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/game", func(r chi.Router) {
		r.Post("/create", games.Create)
		r.Post("/join", games.Join)
		r.Post("/start", games.Start)
		r.Post("/question/start", games.StartQuestion)
		r.Post("/question/end", games.EndQuestion)
		r.Post("/answer", games.SubmitAnswer)
		r.Get("/results/{gameId}", games.Results)
		r.Get("/ws/{gameId}", ws.ServeWS)
		r.Get("/{gameId}", games.Get)
		r.Delete("/{gameId}", games.Delete)
	})
	return r
}
