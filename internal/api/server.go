// Package api exposes the REST control surface for the execution monitor:
// start/stop monitoring, order lookups, operational stats, and the guarded
// cleanup endpoint. The WebSocket endpoint is mounted on the same router.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"stockswap-backend/internal/gateway"
	"stockswap-backend/internal/monitor"
)

// Retention bounds for the cleanup endpoint.
const (
	DefaultRetentionDays = 7
	MaxRetentionDays     = 90
)

// Server handles REST API and WebSocket upgrade requests.
type Server struct {
	monitor *monitor.Monitor
	hub     *gateway.Hub
	router  *mux.Router

	// TOTP secret guarding mutating admin endpoints; empty disables the guard.
	adminTOTPSecret string

	srv *http.Server
}

// NewServer creates an API server over the given monitor and hub.
func NewServer(mon *monitor.Monitor, hub *gateway.Hub, adminTOTPSecret string) *Server {
	s := &Server{
		monitor:         mon,
		hub:             hub,
		router:          mux.NewRouter(),
		adminTOTPSecret: adminTOTPSecret,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Monitoring lifecycle
	api.HandleFunc("/orders/{id}/monitor", s.handleStartMonitoring).Methods("POST")
	api.HandleFunc("/orders/{id}/monitor", s.handleStopMonitoring).Methods("DELETE")

	// Lookups
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	// Admin
	api.HandleFunc("/cleanup", s.requireTOTP(s.handleCleanup)).Methods("POST")

	// WebSocket endpoint
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.HandleWS)
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-TOTP-Code"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the API server until Stop is called.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	log.Printf("[api] server starting on %s", addr)
	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) {
	if s.srv != nil {
		s.srv.Shutdown(ctx)
	}
}
