package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tareeqk/towing/internal/metrics"
	"github.com/tareeqk/towing/internal/towing"
)

// envelope is the shape of every JSON response.
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    interface{}         `json:"data,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

func respondData(w http.ResponseWriter, status int, message string, data interface{}) {
	respondJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func respondMessage(w http.ResponseWriter, status int, success bool, message string) {
	respondJSON(w, status, envelope{Success: success, Message: message})
}

func respondValidationError(w http.ResponseWriter, verr *towing.ValidationError) {
	respondJSON(w, http.StatusUnprocessableEntity, envelope{
		Success: false,
		Message: "Validation failed",
		Errors:  verr.Fields,
	})
}

// respondOperationError maps domain errors onto HTTP statuses. Anything
// unrecognized is a 500 and counts against the operation's error metric.
func (s *Server) respondOperationError(w http.ResponseWriter, operation string, err error) {
	var verr *towing.ValidationError
	switch {
	case errors.As(err, &verr):
		respondValidationError(w, verr)
	case errors.Is(err, towing.ErrNotFound):
		respondMessage(w, http.StatusNotFound, false, "Towing request not found")
	case errors.Is(err, towing.ErrUnauthorized):
		respondMessage(w, http.StatusForbidden, false, "You are not allowed to perform this action")
	case errors.Is(err, towing.ErrInvalidState):
		respondMessage(w, http.StatusUnprocessableEntity, false, "Request is not in a valid state for this action")
	default:
		metrics.OperationErrorsTotal.WithLabelValues(operation).Inc()
		log.Printf("ERROR: %s failed: %v", operation, err)
		respondMessage(w, http.StatusInternalServerError, false, "Internal server error")
	}
}
