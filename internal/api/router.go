package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", app.ChatHandler)
		r.Post("/query/analyze", app.AnalyzeQueryHandler)
		r.Get("/cache/stats", app.CacheStatsHandler)

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", app.ListVideosHandler)
			r.Route("/{videoID}", func(r chi.Router) {
				r.Get("/history", app.HistoryHandler)
				r.Delete("/history", app.ResetHistoryHandler)
				r.Get("/thumbnail", app.ThumbnailHandler)
			})
		})
	})

	return r
}
