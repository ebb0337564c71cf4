package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	personsHandler := handlers.NewPersonsHandler(s.service)
	checkInHandler := handlers.NewCheckInHandler(s.service, s.extractor)
	attendanceHandler := handlers.NewAttendanceHandler(s.service)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Roster
		r.Get("/persons", personsHandler.List)
		r.Post("/persons", personsHandler.Create)
		r.Get("/persons/{id}", personsHandler.Get)
		r.Put("/persons/{id}", personsHandler.Update)
		r.Delete("/persons/{id}", personsHandler.Delete)

		// Scans
		r.Post("/check-in", checkInHandler.CheckIn)
		r.Post("/detect", checkInHandler.Detect)

		// Reports
		r.Get("/attendance", attendanceHandler.List)
		r.Get("/attendance/export", attendanceHandler.Export)
		r.Get("/attendance/today", attendanceHandler.Today)
		r.Get("/attendance/durations", attendanceHandler.Durations)
	})
}
