package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/doctext/internal/api/middlewares"
	"github.com/markdave123-py/doctext/internal/models"
	"github.com/markdave123-py/doctext/internal/services"
)

// DocumentUpdater is the validated write path for caller patches.
type DocumentUpdater interface {
	UpdateDocument(ctx context.Context, userID, id string, patch models.DocumentPatch) (*models.Document, error)
}

// Rescanner starts a background catch-up sweep.
type Rescanner interface {
	TriggerRescan()
}

type DocumentHandler struct {
	docs    services.ScopedDocumentStore
	updater DocumentUpdater
	rescan  Rescanner
	logger  *zap.Logger
}

func NewDocumentHandler(docs services.ScopedDocumentStore, updater DocumentUpdater, rescan Rescanner, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, updater: updater, rescan: rescan, logger: logger}
}

type dataResponse struct {
	Data any `json:"data"`
}

type listResponse struct {
	Data       []models.Document `json:"data"`
	Pagination models.Pagination `json:"pagination"`
}

func (h *DocumentHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, &APIError{Code: "UNAUTHORIZED", Message: "missing caller identity"})
	}
	return id, ok
}

// ListDocuments handles GET /api/v2/documents.
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	filter, page, err := parseListQuery(r)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	docs, pagination, err := h.docs.List(r.Context(), userID, filter, page)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: docs, Pagination: pagination})
}

func parseListQuery(r *http.Request) (models.DocumentFilter, models.PageRequest, error) {
	q := r.URL.Query()
	filter := models.DocumentFilter{
		ProcessingStatus: models.ProcessingStatus(q.Get("processing_status")),
		EntityType:       models.EntityType(q.Get("entity_type")),
		EntityID:         q.Get("entity_id"),
		Search:           strings.TrimSpace(q.Get("search")),
	}
	if filter.ProcessingStatus != "" && !filter.ProcessingStatus.Valid() {
		return filter, models.PageRequest{}, fmt.Errorf("%w: %q", models.ErrInvalidStatus, filter.ProcessingStatus)
	}
	if filter.EntityType != "" && !filter.EntityType.Valid() {
		return filter, models.PageRequest{}, NewBadRequestError("unknown entity_type", nil)
	}

	var page models.PageRequest
	var err error
	if page.Page, err = queryInt(q.Get("page")); err != nil {
		return filter, page, NewBadRequestError("page must be an integer", err)
	}
	if page.Limit, err = queryInt(q.Get("limit")); err != nil {
		return filter, page, NewBadRequestError("limit must be an integer", err)
	}
	return filter, page, nil
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// GetDocument handles GET /api/v2/documents/{id}.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	doc, err := h.docs.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: doc})
}

// UpdateDocument handles PATCH /api/v2/documents/{id}.
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var patch models.DocumentPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		WriteError(w, r, h.logger, NewBadRequestError("invalid JSON body", err))
		return
	}

	doc, err := h.updater.UpdateDocument(r.Context(), userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: doc})
}

// Stats handles GET /api/v2/documents/stats.
func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	pending, err := h.docs.CountPending(r.Context(), userID)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: map[string]int{"pending": pending}})
}

// Rescan handles POST /api/v2/documents/rescan. Platform admins only.
func (h *DocumentHandler) Rescan(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	ac, err := h.docs.Access(r.Context(), userID)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}
	if ac.Kind != models.AccessAdmin {
		WriteError(w, r, h.logger, models.ErrAccessDenied)
		return
	}

	h.rescan.TriggerRescan()
	h.logger.Info("rescan requested", zap.String("user_id", userID))
	writeJSON(w, http.StatusAccepted, dataResponse{Data: map[string]bool{"accepted": true}})
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
