package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(Auth)

		r.Route("/files", func(r chi.Router) {
			r.Post("/", h.UploadFile)
			r.Post("/sheets", h.ListSheets)
		})

		r.Route("/pipeline/execution", func(r chi.Router) {
			r.Post("/", h.ExecutePipeline)
			r.Get("/{job_id}/status", h.GetStatus)
			r.Get("/{job_id}/stream", h.StreamProgress)
			r.Get("/{job_id}/download", h.Download)
		})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
