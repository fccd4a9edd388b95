package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-coordinator/internal/coordinator"
)

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// statusForCode maps coordinator error codes to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case coordinator.CodeInvalidRequest:
		return http.StatusBadRequest
	case coordinator.CodeUnauthorized:
		return http.StatusUnauthorized
	case coordinator.CodeNotFound,
		coordinator.CodeConfigNotFound,
		coordinator.CodeRunNotFound,
		coordinator.CodeContentNotFound:
		return http.StatusNotFound
	case coordinator.CodeConfigInUse,
		coordinator.CodeRunAlreadyRunning,
		coordinator.CodeRunNotRunning,
		coordinator.CodeRunCompleted,
		coordinator.CodeInvalidRunState:
		return http.StatusConflict
	case coordinator.CodeQueueFull:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

// writeError renders the typed error envelope. Unknown errors become
// INTERNAL_ERROR.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	typed := coordinator.AsError(err)
	if typed.Code == coordinator.CodeInternal {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, statusForCode(typed.Code), errorEnvelope{
		Error: errorBody{
			Code:    typed.Code,
			Message: typed.Message,
			Details: typed.Details,
		},
	})
}

func (s *Server) writeErrorCode(w http.ResponseWriter, code, message string) {
	s.writeError(w, coordinator.Errorf(code, "%s", message))
}
