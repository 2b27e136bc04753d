package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/httpserver"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Handler exposes agent health reporting and admin health queries.
type Handler struct {
	svc *Service
}

// NewHandler builds a health Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the health endpoints onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleReport)
	r.Get("/deployment-objects/{id}", h.handleByDeploymentObject)
	r.Get("/stacks/{id}", h.handleByStack)
	return r
}

// handleReport accepts an agent's batch health sweep; the reporting agent
// is always the calling principal.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	p := credential.FromContext(r.Context())
	if p == nil || p.Type != credential.PrincipalAgent {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "only agents may report deployment health")
		return
	}

	var req BatchReportRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	if err := h.svc.ReportBatch(r.Context(), schema, p.ID, req.Reports); err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleByDeploymentObject(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid deployment object id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	reports, err := h.svc.ByDeploymentObject(r.Context(), schema, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, reports)
}

func (h *Handler) handleByStack(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid stack id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	reports, err := h.svc.ByStack(r.Context(), schema, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, reports)
}
