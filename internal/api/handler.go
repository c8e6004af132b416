// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"rent360-leads/internal/common/auth"
	apperrors "rent360-leads/internal/common/errors"
	"rent360-leads/internal/common/logger"
	"rent360-leads/internal/common/validation"
	"rent360-leads/internal/models"
	"rent360-leads/internal/recommendations"

	"github.com/go-chi/chi/v5"
)

// RecommendationService is what the HTTP layer needs from the engine.
type RecommendationService interface {
	Generate(ctx context.Context, brokerID string) (models.GenerationResult, error)
	List(ctx context.Context, q recommendations.ListQuery) ([]models.LeadRecommendation, models.ListMeta, error)
	UpdateStatus(ctx context.Context, brokerID, id string, action recommendations.Action) (*models.LeadRecommendation, error)
}

type Handler struct {
	svc    RecommendationService
	logger logger.Logger
}

func NewHandler(svc RecommendationService, log logger.Logger) *Handler {
	return &Handler{svc: svc, logger: log}
}

type listParams struct {
	Status string `query:"status" validate:"omitempty,oneof=NEW VIEWED CONTACTED CONVERTED DISMISSED EXPIRED"`
	Limit  int    `query:"limit" validate:"gte=0"`
}

type updateBody struct {
	Action string `json:"action" validate:"required,oneof=view contact convert dismiss"`
}

// List handles GET /broker/discover/recommendations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())

	params := listParams{Status: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, apperrors.NewInvalidRequestError("limit must be an integer"), msgListFailed)
			return
		}
		params.Limit = n
	}
	if res := validation.Struct(params); !res.Valid {
		writeError(w, r, h.logger, apperrors.NewInvalidRequestError(strings.Join(res.GetErrorMessages(), "; ")), msgListFailed)
		return
	}

	recs, meta, err := h.svc.List(r.Context(), recommendations.ListQuery{
		BrokerID: session.UserID,
		Status:   params.Status,
		Limit:    params.Limit,
	})
	if err != nil {
		writeError(w, r, h.logger, err, msgListFailed)
		return
	}
	writeOK(w, recs, meta, "")
}

// Generate handles POST /broker/discover/recommendations.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())

	result, err := h.svc.Generate(r.Context(), session.UserID)
	if err != nil {
		writeError(w, r, h.logger, err, msgGenerateFailed)
		return
	}
	writeOK(w, result, nil, fmt.Sprintf("Se generaron %d nuevas recomendaciones", result.Generated))
}

// Update handles PATCH /broker/discover/recommendations/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	id := chi.URLParam(r, "id")

	var body updateBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	if err := dec.Decode(&body); err != nil {
		writeError(w, r, h.logger, apperrors.NewInvalidRequestError("invalid JSON body"), msgUpdateFailed)
		return
	}
	body.Action = strings.ToLower(strings.TrimSpace(body.Action))
	if res := validation.Struct(body); !res.Valid {
		writeError(w, r, h.logger, apperrors.NewInvalidRequestError(strings.Join(res.GetErrorMessages(), "; ")), msgUpdateFailed)
		return
	}

	rec, err := h.svc.UpdateStatus(r.Context(), session.UserID, id, recommendations.Action(body.Action))
	if err != nil {
		writeError(w, r, h.logger, err, msgUpdateFailed)
		return
	}
	writeOK(w, rec, nil, "Recomendación actualizada")
}
