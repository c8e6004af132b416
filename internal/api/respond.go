// internal/api/respond.go
package api

import (
	"encoding/json"
	"net/http"

	apperrors "rent360-leads/internal/common/errors"
	"rent360-leads/internal/common/logger"

	"github.com/go-chi/chi/v5/middleware"
)

// Fallback messages shown to the broker when a request fails server side.
const (
	msgListFailed     = "Error al obtener recomendaciones"
	msgGenerateFailed = "Error al generar recomendaciones"
	msgUpdateFailed   = "Error al actualizar la recomendación"
	msgRateLimited    = "Demasiadas solicitudes, intenta nuevamente en un minuto"
)

type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data, meta interface{}, message string) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: data, Meta: meta, Message: message})
}

// writeError maps err to its HTTP status. Server-side failures are logged
// with the request id and answered with the generic fallback message.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, err error, fallback string) {
	stdErr := apperrors.AsStandardError(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	if status >= http.StatusInternalServerError {
		log.Error("request failed", map[string]interface{}{
			"requestId": middleware.GetReqID(r.Context()),
			"method":    r.Method,
			"path":      r.URL.Path,
			"code":      string(stdErr.Code),
			"details":   stdErr.Details,
			"error":     err,
		})
		writeJSON(w, status, response{Error: fallback, Code: string(apperrors.ErrCodeInternal)})
		return
	}

	writeJSON(w, status, response{Error: stdErr.Message, Code: string(stdErr.Code), Details: clientDetails(stdErr)})
}

func clientDetails(e *apperrors.StandardError) interface{} {
	if e.Details == "" {
		return nil
	}
	return e.Details
}
