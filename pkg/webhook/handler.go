package webhook

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/audit"
	"github.com/brokkr-io/brokkr/internal/credential"
	"github.com/brokkr-io/brokkr/internal/httpserver"
	"github.com/brokkr-io/brokkr/internal/tenant"
)

// Handler exposes subscription management and the agent-facing delivery
// poll/claim/complete endpoints (spec §4.7).
type Handler struct {
	svc   *Service
	audit *audit.Writer
}

// NewHandler builds a webhook Handler.
func NewHandler(svc *Service, auditWriter *audit.Writer) *Handler {
	return &Handler{svc: svc, audit: auditWriter}
}

// Routes mounts the webhook endpoints onto a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/subscriptions", h.handleSubscribe)
	r.Get("/subscriptions", h.handleListSubscriptions)
	r.Delete("/subscriptions/{id}", h.handleUnsubscribe)
	r.Post("/deliveries/claim", h.handleClaim)
	r.Post("/deliveries/{id}/complete", h.handleComplete)
	return r
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	sub, err := h.svc.Subscribe(r.Context(), schema, req)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "create", "webhook_subscription", sub.ID, nil)
	}

	httpserver.Respond(w, http.StatusCreated, sub)
}

func (h *Handler) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	schema := tenant.FromContext(r.Context()).Schema
	subs, err := h.svc.List(r.Context(), schema)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, subs)
}

func (h *Handler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid subscription id")
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	if err := h.svc.Unsubscribe(r.Context(), schema, id); err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, schema, "delete", "webhook_subscription", id, nil)
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

// handleClaim lets an authenticated agent claim its own label-targeted
// deliveries; any other caller (no principal restriction) claims the next
// broker-delivered delivery.
func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	schema := tenant.FromContext(r.Context()).Schema

	p := credential.FromContext(r.Context())
	if p != nil && p.Type == credential.PrincipalAgent {
		delivery, err := h.svc.ClaimForAgent(r.Context(), schema, p.ID)
		if err != nil {
			httpserver.RespondDALErr(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, delivery)
		return
	}

	delivery, err := h.svc.ClaimBroker(r.Context(), schema)
	if err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, delivery)
}

// handleComplete lets an agent report the outcome of a delivery it
// claimed. Service.Attempt performs broker-side delivery attempts without
// HTTP, but no loop in the broker claims deliveries and calls it.
func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid delivery id")
		return
	}

	p := credential.FromContext(r.Context())
	if p == nil || p.Type != credential.PrincipalAgent {
		httpserver.RespondError(w, http.StatusForbidden, "forbidden", "only agents may complete deliveries")
		return
	}

	var req struct {
		Success   bool   `json:"success"`
		LastError string `json:"last_error"`
	}
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	schema := tenant.FromContext(r.Context()).Schema
	if err := h.svc.CompleteAgentDelivery(r.Context(), schema, id, req.Success, req.LastError); err != nil {
		httpserver.RespondDALErr(w, err)
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
