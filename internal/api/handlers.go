package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pquerna/otp/totp"

	"stockswap-backend/internal/monitor"
	"stockswap-backend/internal/solana"
)

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// startMonitoringRequest is the POST /orders/{id}/monitor body.
type startMonitoringRequest struct {
	Maker     string            `json:"maker"`
	OrderData monitor.OrderData `json:"orderData"`
}

// cleanupRequest is the POST /cleanup body.
type cleanupRequest struct {
	RetentionDays int `json:"retentionDays"`
}

func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req startMonitoringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body", err.Error())
		return
	}
	if !solana.ValidAddress(req.Maker) {
		respondError(w, http.StatusBadRequest, "invalid maker address", "")
		return
	}

	order := s.monitor.StartMonitoring(orderID, req.Maker, req.OrderData)
	respondJSON(w, order)
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	if !s.monitor.StopMonitoring(orderID) {
		respondError(w, http.StatusConflict, "not monitoring", "order is unknown or already terminal")
		return
	}
	order, _ := s.monitor.GetOrder(orderID)
	respondJSON(w, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	order, ok := s.monitor.GetOrder(orderID)
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet != "" {
		if !solana.ValidAddress(wallet) {
			respondError(w, http.StatusBadRequest, "invalid wallet address", "")
			return
		}
		respondJSON(w, s.monitor.ActiveOrdersByMaker(wallet))
		return
	}
	respondJSON(w, s.monitor.GetActiveOrders())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := struct {
		Monitor   monitor.Statistics `json:"monitor"`
		Gateway   interface{}        `json:"gateway,omitempty"`
		LatencyMs interface{}        `json:"delivery_latency_ms,omitempty"`
	}{
		Monitor: s.monitor.GetStatistics(),
	}
	if s.hub != nil {
		stats.Gateway = s.hub.Stats()
		p50, p95, p99 := s.hub.Latency.Percentiles()
		stats.LatencyMs = map[string]float64{"p50": p50, "p95": p95, "p99": p99}
	}
	respondJSON(w, stats)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if r.Body != nil {
		// Empty body means default retention.
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.RetentionDays <= 0 {
		req.RetentionDays = DefaultRetentionDays
	}
	if req.RetentionDays > MaxRetentionDays {
		req.RetentionDays = MaxRetentionDays
	}

	removed := s.monitor.CleanupOldOrders(req.RetentionDays)
	respondJSON(w, struct {
		Removed       int `json:"removed"`
		RetentionDays int `json:"retentionDays"`
	}{removed, req.RetentionDays})
}

// requireTOTP guards mutating admin endpoints with a one-time code in the
// X-TOTP-Code header. With no secret configured the guard is a pass-through,
// which keeps local development friction-free.
func (s *Server) requireTOTP(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminTOTPSecret == "" {
			next(w, r)
			return
		}
		code := r.Header.Get("X-TOTP-Code")
		if code == "" || !totp.Validate(code, s.adminTOTPSecret) {
			respondError(w, http.StatusUnauthorized, "invalid TOTP code", "")
			return
		}
		next(w, r)
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
