package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/brokkr-io/brokkr/pkg/stack"
)

// Annotation keys the agent stamps onto every resource it applies, per spec
// §4.4 step 4 — these are how prune (step 5) and deletion-marker cleanup
// (step 4's deletion branch) find resources belonging to a stack.
const (
	AnnotationStackID  = "brokkr.io/stack-id"
	AnnotationChecksum = "brokkr.io/checksum"
)

// fieldOwner is the server-side-apply field manager Brokkr's agent uses,
// grounded on SAP-component-operator-runtime/pkg/reconciler/reconciler.go's
// ReconcilerOptions.FieldOwner (there defaulted to the reconciler's own
// name; here there is only ever one reconciler per agent process).
const fieldOwner = "brokkr-agent"

// Applier drives one deployment object's apply, prune, or delete against a
// cluster. Grounded on reconciler.go's createObject/updateObject/
// deleteObject trio, generalized from CRD-reconciler state tracking to
// Brokkr's stateless, annotation-driven model.
type Applier struct {
	client client.Client

	mu        sync.Mutex
	stackGVKs map[uuid.UUID]map[schema.GroupVersionKind]struct{}
}

// NewApplier builds an Applier bound to a cluster client.
func NewApplier(c client.Client) *Applier {
	return &Applier{
		client:    c,
		stackGVKs: make(map[uuid.UUID]map[schema.GroupVersionKind]struct{}),
	}
}

// Apply implements spec §4.4 step 4: parse, apply priority resources
// first, dry-run validate the rest, force-apply them, then prune anything
// stale. It returns the set of namespace names it newly created, so the
// caller can roll them back on a later failure within the same attempt.
func (a *Applier) Apply(ctx context.Context, stackID uuid.UUID, obj stack.DeploymentObject) (createdNamespaces []string, err error) {
	resources, err := parseMultiDocYAML(obj.YAMLContent)
	if err != nil {
		return nil, fmt.Errorf("parsing deployment object: %w", err)
	}
	a.rememberGVKs(stackID, resources)

	priority, rest := splitPriority(resources)

	for _, r := range priority {
		created, err := a.applyOne(ctx, stackID, obj.YAMLChecksum, r, false)
		if err != nil {
			return createdNamespaces, fmt.Errorf("applying priority resource %s: %w", describe(r), err)
		}
		if created && r.GetKind() == "Namespace" {
			createdNamespaces = append(createdNamespaces, r.GetName())
		}
	}

	for _, r := range rest {
		if _, err := a.applyOne(ctx, stackID, obj.YAMLChecksum, r, true); err != nil {
			return createdNamespaces, fmt.Errorf("dry-run validating %s: %w", describe(r), err)
		}
	}

	for _, r := range rest {
		if _, err := a.applyOne(ctx, stackID, obj.YAMLChecksum, r, false); err != nil {
			return createdNamespaces, fmt.Errorf("applying %s: %w", describe(r), err)
		}
	}

	if err := a.prune(ctx, stackID, obj.YAMLChecksum); err != nil {
		return createdNamespaces, fmt.Errorf("pruning stale resources: %w", err)
	}

	return createdNamespaces, nil
}

// ApplyOneOff force-applies a standalone manifest that isn't part of any
// stack's desired state — the work-order executor's use of it (spec
// §4.6: work orders carry opaque, one-shot yaml_content, not a stack_id).
// It reuses applyOne's dry-run-then-force-SSA path but skips stack
// annotation stamping and pruning, since a one-off task has no stack to
// prune against.
func (a *Applier) ApplyOneOff(ctx context.Context, yamlContent string) error {
	resources, err := parseMultiDocYAML(yamlContent)
	if err != nil {
		return fmt.Errorf("parsing work order manifest: %w", err)
	}

	priority, rest := splitPriority(resources)
	for _, r := range append(priority, rest...) {
		if _, err := a.applyOne(ctx, uuid.Nil, "", r, true); err != nil {
			return fmt.Errorf("dry-run validating %s: %w", describe(r), err)
		}
	}
	for _, r := range append(priority, rest...) {
		if _, err := a.applyOne(ctx, uuid.Nil, "", r, false); err != nil {
			return fmt.Errorf("applying %s: %w", describe(r), err)
		}
	}
	return nil
}

// RollbackNamespaces deletes namespaces newly created during a failed
// attempt, per spec §4.4 step 5: "do not touch pre-existing namespaces or
// successfully applied resources".
func (a *Applier) RollbackNamespaces(ctx context.Context, names []string) {
	for _, name := range names {
		ns := &unstructured.Unstructured{}
		ns.SetAPIVersion("v1")
		ns.SetKind("Namespace")
		ns.SetName(name)
		_, _ = retry(ctx, func() (struct{}, error) {
			delErr := a.client.Delete(ctx, ns)
			if apierrors.IsNotFound(delErr) {
				return struct{}{}, nil
			}
			if isTransient(delErr) {
				return struct{}{}, delErr
			}
			return struct{}{}, permanent(delErr)
		})
	}
}

// applyOne server-side-applies one resource with force, stamping the
// stack-id/checksum annotations when stackID is not uuid.Nil (spec §4.4
// steps 3-4). When dryRun is true
// it performs the same patch with DryRunAll, per step 3. It reports
// whether the resource did not previously exist (meaningless for dry-run
// calls, which the caller ignores).
func (a *Applier) applyOne(ctx context.Context, stackID uuid.UUID, checksum string, obj *unstructured.Unstructured, dryRun bool) (created bool, err error) {
	if !dryRun {
		existing := obj.DeepCopy()
		getErr := a.client.Get(ctx, client.ObjectKeyFromObject(obj), existing)
		created = apierrors.IsNotFound(getErr)
	}

	stamped := obj.DeepCopy()
	if stackID != uuid.Nil {
		setAnnotation(stamped, AnnotationStackID, stackID.String())
		setAnnotation(stamped, AnnotationChecksum, checksum)
	}
	stamped.SetManagedFields(nil)

	opts := []client.PatchOption{client.FieldOwner(fieldOwner), client.ForceOwnership}
	if dryRun {
		opts = append(opts, client.DryRunAll)
	}

	_, err = retry(ctx, func() (struct{}, error) {
		applyErr := a.client.Patch(ctx, stamped, client.Apply, opts...)
		if isTransient(applyErr) {
			return struct{}{}, applyErr
		}
		return struct{}{}, permanent(applyErr)
	})
	return created, err
}

// prune implements spec §4.4 step 5: delete resources stamped with this
// stack's id whose checksum no longer matches the object just applied,
// skipping owner-referenced ones. It searches every kind this Applier has
// ever applied for the stack (knownGVKs), not just the kinds named by the
// object just applied, so a resource kind dropped entirely from one
// version of a stack's YAML to the next is still found and pruned.
func (a *Applier) prune(ctx context.Context, stackID uuid.UUID, currentChecksum string) error {
	live, err := a.listByStackID(ctx, stackID, a.knownGVKs(stackID))
	if err != nil {
		return err
	}

	for _, r := range live {
		if r.GetAnnotations()[AnnotationChecksum] == currentChecksum {
			continue
		}
		if hasOwnerReference(r) {
			continue
		}
		if err := a.deleteOne(ctx, r); err != nil {
			return fmt.Errorf("pruning %s: %w", describe(r), err)
		}
	}
	return nil
}

// Delete implements the is_deletion_marker branch of spec §4.4 step 4:
// enumerate every resource stamped with this stack's id, across every
// resource kind this Applier has ever applied for the stack, and delete
// it, skipping owner-referenced resources left for Kubernetes garbage
// collection. A deletion marker's own yaml_content is always empty (it
// carries no resources of its own), so the search set must come from
// knownGVKs rather than from parsing obj here.
func (a *Applier) Delete(ctx context.Context, stackID uuid.UUID, obj stack.DeploymentObject) error {
	live, err := a.listByStackID(ctx, stackID, a.knownGVKs(stackID))
	if err != nil {
		return err
	}
	for _, r := range live {
		if hasOwnerReference(r) {
			continue
		}
		if err := a.deleteOne(ctx, r); err != nil {
			return fmt.Errorf("deleting %s: %w", describe(r), err)
		}
	}
	return nil
}

func (a *Applier) deleteOne(ctx context.Context, obj *unstructured.Unstructured) error {
	_, err := retry(ctx, func() (struct{}, error) {
		delErr := a.client.Delete(ctx, obj)
		if apierrors.IsNotFound(delErr) {
			return struct{}{}, nil
		}
		if isTransient(delErr) {
			return struct{}{}, delErr
		}
		return struct{}{}, permanent(delErr)
	})
	return err
}

// listByStackID enumerates resources of the given kinds bearing the
// brokkr.io/stack-id annotation. Callers pass knownGVKs(stackID) (rather
// than a fixed cluster-wide discovery sweep) since a resource this agent
// stamped with a stack id can only ever be one of the kinds that stack's
// deployment objects have ever named.
func (a *Applier) listByStackID(ctx context.Context, stackID uuid.UUID, gvks []schema.GroupVersionKind) ([]*unstructured.Unstructured, error) {
	var out []*unstructured.Unstructured
	for _, gvk := range gvks {
		list := &unstructured.UnstructuredList{}
		list.SetAPIVersion(gvk.GroupVersion().String())
		list.SetKind(gvk.Kind + "List")

		if err := a.client.List(ctx, list); err != nil {
			if apierrors.IsNotFound(err) || apierrors.IsForbidden(err) {
				continue
			}
			return nil, fmt.Errorf("listing %s: %w", gvk.Kind, err)
		}
		for i := range list.Items {
			item := &list.Items[i]
			if item.GetAnnotations()[AnnotationStackID] == stackID.String() {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

// parseMultiDocYAML implements spec §4.4 step 4.1, grounded on
// internal/helm.Chart.render's utilyaml.NewYAMLToJSONDecoder loop.
func parseMultiDocYAML(content string) ([]*unstructured.Unstructured, error) {
	decoder := utilyaml.NewYAMLToJSONDecoder(bytes.NewBufferString(content))
	var out []*unstructured.Unstructured
	for {
		obj := &unstructured.Unstructured{}
		if err := decoder.Decode(&obj.Object); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if obj.Object == nil {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}

// splitPriority separates Namespace/CustomResourceDefinition resources
// (applied first, per spec §4.4 step 2) from everything else, preserving
// relative order within each group.
func splitPriority(resources []*unstructured.Unstructured) (priority, rest []*unstructured.Unstructured) {
	for _, r := range resources {
		if isPriorityKind(r) {
			priority = append(priority, r)
		} else {
			rest = append(rest, r)
		}
	}
	return priority, rest
}

// isPriorityKind mirrors reconciler/util.go's isNamespace/isCrd
// GroupKind-equality checks.
func isPriorityKind(obj *unstructured.Unstructured) bool {
	gk := obj.GroupVersionKind().GroupKind()
	return gk == (schema.GroupKind{Group: "", Kind: "Namespace"}) ||
		gk == (schema.GroupKind{Group: "apiextensions.k8s.io", Kind: "CustomResourceDefinition"})
}

// rememberGVKs records every resource kind named by resources as having
// been applied for stackID, accumulating across ticks rather than
// replacing — so prune and Delete can still find a kind that a later
// version of the stack's YAML stopped naming, or (for Delete) that the
// always-empty deletion marker never names at all.
func (a *Applier) rememberGVKs(stackID uuid.UUID, resources []*unstructured.Unstructured) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := a.stackGVKs[stackID]
	if set == nil {
		set = make(map[schema.GroupVersionKind]struct{})
		a.stackGVKs[stackID] = set
	}
	for _, gvk := range gvksOf(resources) {
		set[gvk] = struct{}{}
	}
}

// knownGVKs returns every resource kind this Applier has ever applied for
// stackID.
func (a *Applier) knownGVKs(stackID uuid.UUID) []schema.GroupVersionKind {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := a.stackGVKs[stackID]
	out := make([]schema.GroupVersionKind, 0, len(set))
	for gvk := range set {
		out = append(out, gvk)
	}
	return out
}

func gvksOf(resources []*unstructured.Unstructured) []schema.GroupVersionKind {
	seen := map[schema.GroupVersionKind]bool{}
	var out []schema.GroupVersionKind
	for _, r := range resources {
		gvk := r.GroupVersionKind()
		if !seen[gvk] {
			seen[gvk] = true
			out = append(out, gvk)
		}
	}
	return out
}

func hasOwnerReference(obj *unstructured.Unstructured) bool {
	return len(obj.GetOwnerReferences()) > 0
}

func setAnnotation(obj *unstructured.Unstructured, key, value string) {
	annotations := obj.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[key] = value
	obj.SetAnnotations(annotations)
}

func describe(obj *unstructured.Unstructured) string {
	return fmt.Sprintf("%s %s/%s", obj.GetKind(), obj.GetNamespace(), obj.GetName())
}
