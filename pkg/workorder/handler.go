package workorder

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/audit"
	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/httpserver"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Handler exposes work-order creation, claiming and completion (spec §4.6).
type Handler struct {
	svc   *Service
	audit *audit.Writer
}

// NewHandler builds a workorder Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer) *Handler {
	return &Handler{svc: svc, audit: auditWriter}
}

// Routes mounts the work-order endpoints onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Post("/claim", h.handleClaim)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/complete", h.handleComplete)
	})
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	wo, err := h.svc.Create(r.Context(), schema, req)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "create", "work_order", wo.ID, nil)
	}

	httpserver.Respond(w, http.StatusCreated, wo)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	schema := tenant.FromContext(r.Context()).Schema
	orders, err := h.svc.List(r.Context(), schema)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, orders)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid work order id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	wo, err := h.svc.Get(r.Context(), schema, id)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, wo)
}

// handleClaim is called by the authenticated agent's own poll loop; the
// claimant is always the calling principal, never a caller-supplied id.
func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	p := credential.FromContext(r.Context())
	if p == nil || p.Type != credential.PrincipalAgent {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "only agents may claim work orders")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	wo, err := h.svc.Claim(r.Context(), schema, p.ID)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, wo)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid work order id")
		return
	}

	p := credential.FromContext(r.Context())
	if p == nil || p.Type != credential.PrincipalAgent {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "only agents may complete work orders")
		return
	}

	var req CompleteRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	if err := h.svc.Complete(r.Context(), schema, id, p.ID, req.Success, req.Message); err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "complete", "work_order", id, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
