package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dsuszek/dev-task/models"
	"github.com/dsuszek/dev-task/query"
)

// StarService is the subset of service.StarService the handlers call.
type StarService interface {
	GetByID(ctx context.Context, id int64) (*models.Star, error)
	Create(ctx context.Context, params models.CreateStarParams) (*models.Star, error)
	Update(ctx context.Context, id int64, params models.UpdateStarParams) (*models.Star, error)
	Delete(ctx context.Context, id int64) error
	Closest(ctx context.Context, n int) ([]models.Star, error)
	CountByDistance(ctx context.Context) (*query.DistanceCounts, error)
	Unique(ctx context.Context) ([]models.Star, error)
}

// StarHandler serves /api/stars.
type StarHandler struct {
	svc    StarService
	logger *zap.Logger
}

// NewStarHandler creates a StarHandler.
func NewStarHandler(svc StarService, logger *zap.Logger) *StarHandler {
	return &StarHandler{svc: svc, logger: logger.Named("star_handler")}
}

// Routes mounts the star endpoints on r. Static segments are registered
// alongside {id}; chi prefers them, so /closest never reaches GetStar.
func (h *StarHandler) Routes(r chi.Router) {
	r.Post("/", h.CreateStar)
	r.Get("/closest", h.Closest)
	r.Get("/distances", h.Distances)
	r.Get("/unique", h.Unique)
	r.Get("/{id}", h.GetStar)
	r.Put("/{id}", h.UpdateStar)
	r.Delete("/{id}", h.DeleteStar)
}

// GetStar handles GET /api/stars/{id}.
func (h *StarHandler) GetStar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	star, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, star)
}

// CreateStar handles POST /api/stars. Any id in the body is ignored.
func (h *StarHandler) CreateStar(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStarParams
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	star, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, star)
}

// UpdateStar handles PUT /api/stars/{id}.
func (h *StarHandler) UpdateStar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req models.UpdateStarParams
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	star, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, star)
}

// DeleteStar handles DELETE /api/stars/{id} and replies 200 with no body.
func (h *StarHandler) DeleteStar(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Closest handles GET /api/stars/closest?size=N. size is required.
func (h *StarHandler) Closest(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("size")
	if raw == "" {
		writeError(w, r, h.logger, badRequest("Required parameter 'size' is not present"))
		return
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, r, h.logger, badRequest("Parameter 'size' must be an integer, got "+strconv.Quote(raw)))
		return
	}
	stars, err := h.svc.Closest(r.Context(), size)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stars)
}

// Distances handles GET /api/stars/distances.
func (h *StarHandler) Distances(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.CountByDistance(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Unique handles GET /api/stars/unique.
func (h *StarHandler) Unique(w http.ResponseWriter, r *http.Request) {
	stars, err := h.svc.Unique(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stars)
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("Invalid star id " + strconv.Quote(raw))
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("Invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
