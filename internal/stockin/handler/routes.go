package handler

import "github.com/go-chi/chi/v5"

// Routes mounts the stock-in API under the current router
func Routes(r chi.Router, sessions *SessionHandler, process *ProcessHandler) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", sessions.Start)
		r.Get("/{id}", sessions.Get)
		r.Post("/{id}/proceed", sessions.Proceed)
		r.Post("/{id}/back", sessions.Back)
		r.Post("/{id}/cancel", sessions.Cancel)
		r.Post("/{id}/batches", sessions.AllocateBatch)
		r.Post("/{id}/boxes", sessions.AllocateBoxes)
		r.Delete("/{id}/batches/{batchID}", sessions.RemoveBatch)
		r.Get("/{id}/preview", sessions.Preview)
		r.Get("/{id}/labels/{barcode}", sessions.Label)
		r.Post("/{id}/submit", sessions.Submit)
	})

	r.Post("/process", process.Process)
	r.Get("/requests/{id}/status", sessions.RequestStatus)
}
