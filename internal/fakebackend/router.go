package fakebackend

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(s.recoverPanics)
	r.Use(s.record)

	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/users", func(r chi.Router) {
		r.Use(s.limitBody)

		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Post("/forgot-password", s.handleForgotPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)

			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)
			r.Put("/change-password", s.handleChangePassword)
		})
	})

	return r
}
