package agentevent

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/httpserver"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Handler exposes the agent-facing event report endpoint and the
// admin-facing read surface (spec §4.5, §6).
type Handler struct {
	svc *Service
}

// NewHandler builds an agentevent Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the event endpoints onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleReport)
	r.Get("/deployment-objects/{id}", h.handleByDeploymentObject)
	r.Get("/agents/{id}", h.handleByAgent)
	return r
}

// handleReport accepts an agent's event report; the reporting agent is
// always the calling principal, never a caller-supplied id.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	p := credential.FromContext(r.Context())
	if p == nil || p.Type != credential.PrincipalAgent {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "only agents may report events")
		return
	}

	var req ReportRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	e, err := h.svc.Report(r.Context(), schema, p.ID, req)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, e)
}

func (h *Handler) handleByDeploymentObject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment object id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	events, err := h.svc.ByDeploymentObject(r.Context(), schema, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, events)
}

func (h *Handler) handleByAgent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid agent id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	events, err := h.svc.ByAgent(r.Context(), schema, id, 100)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, events)
}
