package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/booking"
)

// Routes mounts the API under /api/v1. Health endpoints live on the runtime
// mux, not here.
func Routes(b *BookingHandler, a *AvailabilityHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.CleanPath)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/bookings", b.Create)
		r.Get("/bookings/{bookingID}", b.Get)
		r.Post("/bookings/{bookingID}/confirm", b.Confirm)
		r.Post("/bookings/{bookingID}/complete", b.Complete)
		r.Post("/bookings/{bookingID}/cancel", b.Cancel)

		r.Route("/subjects/{subjectID}", func(r chi.Router) {
			r.Get("/slots", a.Slots)
			r.Get("/conflicts", b.Conflicts)
			r.Get("/bookings", b.List)
		})

		r.Post("/normalize", a.Normalize)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, reasonNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, booking.ReasonInvalidInput, "method not allowed")
	})
	return r
}
