package diagnostic

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/audit"
	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/httpserver"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Handler exposes admin-facing diagnostic creation and agent-facing
// poll/claim/complete endpoints (spec §6).
type Handler struct {
	svc   *Service
	audit *audit.Writer
}

// NewHandler builds a diagnostic Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer) *Handler {
	return &Handler{svc: svc, audit: auditWriter}
}

// Routes mounts the diagnostic endpoints onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/pending", h.handleListPending)
	r.Post("/{id}/claim", h.handleClaim)
	r.Post("/{id}/complete", h.handleComplete)
	r.Get("/{id}", h.handleGet)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	dr, err := h.svc.Create(r.Context(), schema, req)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "create", "diagnostic_request", dr.ID, nil)
	}

	httpserver.Respond(w, http.StatusCreated, dr)
}

// handleListPending is polled by an agent's own reconciliation engine;
// the agent is always the calling principal.
func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	p := credential.FromContext(r.Context())
	if p == nil || p.Type != credential.PrincipalAgent {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "only agents may poll diagnostic requests")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	reqs, err := h.svc.ListPendingForAgent(r.Context(), schema, p.ID)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, reqs)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid diagnostic request id")
		return
	}

	p := credential.FromContext(r.Context())
	if p == nil || p.Type != credential.PrincipalAgent {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "only agents may claim diagnostic requests")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	dr, err := h.svc.Claim(r.Context(), schema, p.ID, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, dr)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid diagnostic request id")
		return
	}

	p := credential.FromContext(r.Context())
	if p == nil || p.Type != credential.PrincipalAgent {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "only agents may complete diagnostic requests")
		return
	}

	var req CompleteRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	res, err := h.svc.Complete(r.Context(), schema, id, p.ID, req)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "complete", "diagnostic_request", id, nil)
	}

	httpserver.Respond(w, http.StatusOK, res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid diagnostic request id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	dr, err := h.svc.Get(r.Context(), schema, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, dr)
}
