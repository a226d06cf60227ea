package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"i4.energy/across/heracles/modem"
)

// SMSSender sends text messages through the modem.
type SMSSender interface {
	SendSMS(ctx context.Context, recipient, message string) modem.Status
}

// StatusReporter exposes the device loop state.
type StatusReporter interface {
	Status() DeviceStatus
}

// Server handles incoming HTTP requests for interacting with the
// configured modem instance
type Server struct {
	Logger *slog.Logger
	Modem  SMSSender
	Device StatusReporter
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sms", s.handleSMS)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)

}

// handleStatus reports connectivity, signal and telemetry counters
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Device.Status()); err != nil {
		s.Logger.Error("Failed to encode status", "error", err)
	}
}

// handleSMS processes incoming HTTP POST requests to send SMS messages
func (s *Server) handleSMS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "", http.StatusMethodNotAllowed)
		return
	}

	type SMSRequest struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}

	var req SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.To == "" || req.Message == "" {
		s.sendError(w, "both 'to' and 'message' fields are required", http.StatusBadRequest)
		return
	}

	if st := s.Modem.SendSMS(r.Context(), req.To, req.Message); st != modem.StatusOK {
		err := st.Err()
		s.Logger.Error("Failed to send SMS", "error", err, "to", req.To)
		code := http.StatusInternalServerError
		if st == modem.StatusTimeout {
			code = http.StatusGatewayTimeout
		}
		s.sendError(w, err.Error(), code)
		return
	}

	s.Logger.Info("SMS sent successfully", "to", req.To, "message_length", len(req.Message))
	w.WriteHeader(http.StatusOK)
}
