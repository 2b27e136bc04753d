package stacktemplate

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/audit"
	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/httpserver"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Handler exposes stack-template versioning and instantiation (spec §4.8).
type Handler struct {
	svc   *Service
	audit *audit.Writer
}

// NewHandler builds a stacktemplate Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer) *Handler {
	return &Handler{svc: svc, audit: auditWriter}
}

// Routes mounts the template endpoints onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/instantiate", h.handleInstantiate)
	})
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var generatorID *uuid.UUID
	if p := credential.FromContext(r.Context()); p != nil && p.Type == credential.PrincipalGenerator {
		generatorID = &p.ID
	}

	schema := tenant.FromContext(r.Context()).Schema
	t, err := h.svc.Create(r.Context(), schema, generatorID, req.Name, req.TemplateContent, req.ParametersSchema, req.Labels, req.Annotations)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "create", "stack_template", t.ID, nil)
	}

	httpserver.Respond(w, http.StatusCreated, t)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	schema := tenant.FromContext(r.Context()).Schema
	templates, err := h.svc.List(r.Context(), schema)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, templates)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid template id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	t, err := h.svc.Get(r.Context(), schema, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, t)
}

func (h *Handler) handleInstantiate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid template id")
		return
	}

	var req InstantiateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	do, err := h.svc.Instantiate(r.Context(), schema, id, req.StackID, req.Parameters)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "instantiate", "stack_template", id, nil)
	}

	httpserver.Respond(w, http.StatusCreated, do)
}
