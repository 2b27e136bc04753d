package generator

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/audit"
	"github.com/brokkr-io/brokkr/internal/httpserver"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Handler exposes generator principal management (spec §6).
type Handler struct {
	svc   *Service
	audit *audit.Writer
}

// NewHandler builds a generator Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer) *Handler {
	return &Handler{svc: svc, audit: auditWriter}
}

// Routes mounts the generator endpoints onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Post("/rotate", h.handleRotate)
	})
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	resp, err := h.svc.Register(r.Context(), schema, req.Name, req.Description)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "create", "generator", resp.Generator.ID, nil)
	}

	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	schema := tenant.FromContext(r.Context()).Schema
	generators, err := h.svc.List(r.Context(), schema)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, generators)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid generator id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	g, err := h.svc.Get(r.Context(), schema, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, g)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid generator id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	if err := h.svc.Delete(r.Context(), schema, id); err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "delete", "generator", id, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleRotate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid generator id")
		return
	}

	plaintext, err := h.svc.RotatePAK(r.Context(), id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, tenant.FromContext(r.Context()).Schema, "rotate_pak", "generator", id, nil)
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"pak": plaintext})
}
