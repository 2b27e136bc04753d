package reconcile

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/internal/brokerclient"
	"github.com/brokkr-io/brokkr/pkg/agentevent"
	"github.com/brokkr-io/brokkr/pkg/stack"
)

// Engine runs one reconciliation tick, per spec §4.4: heartbeat, fetch
// target state, group by stack keeping the newest object, apply or prune
// each, and report outcomes. One Engine instance belongs to one agent
// process; Tick is never called concurrently with itself (spec §4.4's
// "not preempted").
type Engine struct {
	broker  *brokerclient.Client
	applier *Applier
	logger  *slog.Logger

	applied map[uuid.UUID]uuid.UUID // stack_id -> last applied deployment_object_id
}

// NewEngine builds an Engine bound to a broker client and cluster applier.
func NewEngine(broker *brokerclient.Client, applier *Applier, logger *slog.Logger) *Engine {
	return &Engine{
		broker:  broker,
		applier: applier,
		logger:  logger,
		applied: make(map[uuid.UUID]uuid.UUID),
	}
}

// Tick runs one full reconciliation cycle (spec §4.4 steps 1-5).
func (e *Engine) Tick(ctx context.Context) error {
	if err := e.broker.Heartbeat(ctx); err != nil {
		return err
	}

	objects, err := e.broker.TargetState(ctx)
	if err != nil {
		return err
	}

	for _, obj := range selectLatestPerStack(objects, e.applied) {
		e.reconcileOne(ctx, obj)
	}
	return nil
}

// selectLatestPerStack implements spec §4.4 step 3: group by stack,
// keeping only the highest-sequence_id object that has not already been
// applied. Target state is already ordered by ascending sequence_id, so
// the last object seen per stack is the highest.
func selectLatestPerStack(objects []stack.DeploymentObject, applied map[uuid.UUID]uuid.UUID) []stack.DeploymentObject {
	latest := make(map[uuid.UUID]stack.DeploymentObject)
	for _, obj := range objects {
		latest[obj.StackID] = obj
	}

	var out []stack.DeploymentObject
	for stackID, obj := range latest {
		if applied[stackID] == obj.ID {
			continue
		}
		out = append(out, obj)
	}
	return out
}

func (e *Engine) reconcileOne(ctx context.Context, obj stack.DeploymentObject) {
	log := e.logger.With("stack_id", obj.StackID, "deployment_object_id", obj.ID)

	if obj.IsDeletionMarker {
		err := e.applier.Delete(ctx, obj.StackID, obj)
		e.reportOutcome(ctx, log, obj, err)
		return
	}

	createdNamespaces, err := e.applier.Apply(ctx, obj.StackID, obj)
	if err != nil {
		log.Error("reconciliation failed, rolling back newly created namespaces", "error", err)
		e.applier.RollbackNamespaces(ctx, createdNamespaces)
		e.reportOutcome(ctx, log, obj, err)
		return
	}
	e.reportOutcome(ctx, log, obj, nil)
}

func (e *Engine) reportOutcome(ctx context.Context, log *slog.Logger, obj stack.DeploymentObject, applyErr error) {
	status := agentevent.StatusSuccess
	message := ""
	if applyErr != nil {
		status = agentevent.StatusFailure
		message = applyErr.Error()
	} else {
		e.applied[obj.StackID] = obj.ID
	}

	id := obj.ID
	err := e.broker.ReportEvent(ctx, agentevent.ReportRequest{
		DeploymentObjectID: &id,
		EventType:          agentevent.TypeDeployment,
		Status:             status,
		Message:            message,
	})
	if err != nil {
		log.Error("reporting deployment event", "error", err)
	}
}
