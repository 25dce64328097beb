package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/trunov/mediaforge/internal/transport/handler"
)

func NewRouter(h *handler.Handler) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/media", h.UploadMedia)
		r.Get("/media", h.ListMedia)
		r.Get("/media/{id}", h.GetMedia)

		r.Post("/s3/upload-url", h.CreateUploadURL)
		r.Get("/s3/download-url", h.GetDownloadURL)

		r.Post("/tasks", h.EnqueueTask)

		r.Post("/transcode", h.SubmitTranscode)
		r.Post("/transcode/sync", h.SyncTranscode)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/{id}", h.GetJob)

		r.Get("/items", h.ListItems)
		r.Delete("/items/{itemID}", h.DeleteItem)

		r.Post("/share", h.CreateShareLink)

		r.Post("/external/webhook", h.Webhook)
	})

	r.Get("/d/{token}", h.ResolveShareLink)
	r.Get("/health", h.Health)

	return r
}
