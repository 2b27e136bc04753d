package stack

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/audit"
	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/httpserver"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Handler exposes the stack and deployment-object surface of spec §4.2/§4.3.
type Handler struct {
	svc   *Service
	audit *audit.Writer
}

// NewHandler builds a stack Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer) *Handler {
	return &Handler{svc: svc, audit: auditWriter}
}

// Routes mounts the stack endpoints onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/target-state", h.handleTargetState)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Delete("/", h.handleDelete)
		r.Get("/objects", h.handleListObjects)
		r.Post("/objects", h.handleSubmitObject)
		r.Post("/targets/{agentID}", h.handleAddTarget)
		r.Post("/labels", h.handleAddLabel)
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
	st, err := h.svc.Create(r.Context(), schema, req.Name, req.Description, generatorID)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "create", "stack", st.ID, nil)
	}

	httpserver.Respond(w, http.StatusCreated, st)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	stacks, total, err := h.svc.List(r.Context(), schema, params.PageSize, params.Offset)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(stacks, params, total))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	st, err := h.svc.Get(r.Context(), schema, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, st)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	if err := h.svc.Delete(r.Context(), schema, id); err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "delete", "stack", id, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

// handleTargetState serves the reconciliation target state for the calling
// agent: the ordered deployment objects it should apply or prune, per
// spec §4.2/§4.3.
func (h *Handler) handleTargetState(w http.ResponseWriter, r *http.Request) {
	p := credential.FromContext(r.Context())
	if p == nil || p.Type != credential.PrincipalAgent {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "target state is only available to agents")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	objects, err := h.svc.TargetStateForAgent(r.Context(), schema, p.ID)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, objects)
}

func (h *Handler) handleListObjects(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	objects, err := h.svc.DeploymentObjects(r.Context(), schema, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, objects)
}

func (h *Handler) handleSubmitObject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req CreateDeploymentObjectRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	var generatorID *uuid.UUID
	if p := credential.FromContext(r.Context()); p != nil && p.Type == credential.PrincipalGenerator {
		generatorID = &p.ID
	}

	schema := tenant.FromContext(r.Context()).Schema
	do, err := h.svc.SubmitDeploymentObject(r.Context(), schema, id, req.YAMLContent, generatorID)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "submit_deployment_object", "stack", id, nil)
	}

	httpserver.Respond(w, http.StatusCreated, do)
}

func (h *Handler) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	agentID, err := uuid.Parse(chi.URLParam(r, "agentID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid agent id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	if err := h.svc.AddDirectTarget(r.Context(), schema, agentID, id); err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

type addLabelRequest struct {
	Label string `json:"label" validate:"required,max=64"`
}

func (h *Handler) handleAddLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req addLabelRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	if err := h.svc.AddLabel(r.Context(), schema, id, req.Label); err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid id")
		return uuid.UUID{}, false
	}
	return id, true
}
