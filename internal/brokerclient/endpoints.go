package brokerclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/pkg/agentevent"
	"github.com/brokkr-io/brokkr/pkg/diagnostic"
	"github.com/brokkr-io/brokkr/pkg/health"
	"github.com/brokkr-io/brokkr/pkg/stack"
	"github.com/brokkr-io/brokkr/pkg/webhook"
	"github.com/brokkr-io/brokkr/pkg/workorder"
)

// Heartbeat refreshes the agent's last_heartbeat, per spec §4.4 step 1.
func (c *Client) Heartbeat(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/agents/"+c.agentID+"/heartbeat", nil, nil, http.StatusOK)
	return err
}

// TargetState fetches the deployment objects this agent should
// reconcile toward, ordered by ascending sequence_id, per spec §4.4
// step 2.
func (c *Client) TargetState(ctx context.Context) ([]stack.DeploymentObject, error) {
	var objects []stack.DeploymentObject
	_, err := c.do(ctx, http.MethodGet, "/stacks/target-state", nil, &objects, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return objects, nil
}

// ReportEvent posts one AgentEvent for a reconciled (or pruned)
// deployment object, per spec §4.5.
func (c *Client) ReportEvent(ctx context.Context, req agentevent.ReportRequest) error {
	_, err := c.do(ctx, http.MethodPost, "/agent-events", req, nil, http.StatusCreated)
	return err
}

// ReportHealth posts a batch deployment-health sweep, per spec §4.5.
func (c *Client) ReportHealth(ctx context.Context, reports []health.ReportRequest) error {
	body := health.BatchReportRequest{Reports: reports}
	_, err := c.do(ctx, http.MethodPost, "/health", body, nil, http.StatusNoContent)
	return err
}

// ClaimWorkOrder attempts to claim the oldest eligible pending work
// order. It returns (nil, nil) when none is available (spec §4.6's
// claim(agent_id) returning None).
func (c *Client) ClaimWorkOrder(ctx context.Context) (*workorder.WorkOrder, error) {
	var wo workorder.WorkOrder
	_, err := c.do(ctx, http.MethodPost, "/work-orders/claim", nil, &wo, http.StatusOK)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &wo, nil
}

// CompleteWorkOrder reports the outcome of a claimed work order.
func (c *Client) CompleteWorkOrder(ctx context.Context, id uuid.UUID, success bool, message string) error {
	req := workorder.CompleteRequest{Success: success, Message: message}
	_, err := c.do(ctx, http.MethodPost, "/work-orders/"+id.String()+"/complete", req, nil, http.StatusNoContent)
	return err
}

// ClaimWebhookDelivery attempts to claim one of this agent's eligible
// label-targeted webhook deliveries, per spec §4.7's agent-delivery
// routing. It returns (nil, nil) when none is available. The claimed
// delivery carries its target URL and auth header decrypted, since only
// the claiming agent's cluster can route to a label-targeted
// destination.
func (c *Client) ClaimWebhookDelivery(ctx context.Context) (*webhook.AgentDelivery, error) {
	var d webhook.AgentDelivery
	_, err := c.do(ctx, http.MethodPost, "/webhooks/deliveries/claim", nil, &d, http.StatusOK)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// CompleteWebhookDelivery reports the outcome of a claimed delivery.
func (c *Client) CompleteWebhookDelivery(ctx context.Context, id uuid.UUID, success bool, lastError string) error {
	req := struct {
		Success   bool   `json:"success"`
		LastError string `json:"last_error"`
	}{Success: success, LastError: lastError}
	_, err := c.do(ctx, http.MethodPost, "/webhooks/deliveries/"+id.String()+"/complete", req, nil, http.StatusNoContent)
	return err
}

// ListPendingDiagnostics returns this agent's unexpired pending
// diagnostic requests.
func (c *Client) ListPendingDiagnostics(ctx context.Context) ([]diagnostic.Request, error) {
	var reqs []diagnostic.Request
	_, err := c.do(ctx, http.MethodGet, "/diagnostics/pending", nil, &reqs, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// ClaimDiagnostic claims one pending diagnostic request by id.
func (c *Client) ClaimDiagnostic(ctx context.Context, id uuid.UUID) (diagnostic.Request, error) {
	var req diagnostic.Request
	_, err := c.do(ctx, http.MethodPost, "/diagnostics/"+id.String()+"/claim", nil, &req, http.StatusOK)
	return req, err
}

// CompleteDiagnostic posts the agent's answer to a claimed diagnostic
// request.
func (c *Client) CompleteDiagnostic(ctx context.Context, id uuid.UUID, req diagnostic.CompleteRequest) (diagnostic.Result, error) {
	var res diagnostic.Result
	_, err := c.do(ctx, http.MethodPost, "/diagnostics/"+id.String()+"/complete", req, &res, http.StatusOK)
	return res, err
}
