package reconcile

import (
	"testing"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/brokkr-io/brokkr/pkg/stack"
)

func newFakeClient(t *testing.T, objs ...client.Object) client.Client {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		t.Fatalf("registering scheme: %v", err)
	}
	return fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
}

func configMap(name, namespace string, annotations map[string]string) *unstructured.Unstructured {
	cm := &unstructured.Unstructured{}
	cm.SetAPIVersion("v1")
	cm.SetKind("ConfigMap")
	cm.SetName(name)
	cm.SetNamespace(namespace)
	cm.SetAnnotations(annotations)
	return cm
}

func getConfigMap(t *testing.T, c client.Client, name, namespace string) error {
	t.Helper()
	var out unstructured.Unstructured
	out.SetAPIVersion("v1")
	out.SetKind("ConfigMap")
	return c.Get(t.Context(), client.ObjectKey{Name: name, Namespace: namespace}, &out)
}

func stacked(stackID uuid.UUID, checksum string) map[string]string {
	m := map[string]string{AnnotationStackID: stackID.String()}
	if checksum != "" {
		m[AnnotationChecksum] = checksum
	}
	return m
}

// TestPrune_FindsKindDroppedFromLatestVersion exercises the bug the
// broker/agent split makes easy to reintroduce: a resource kind a stack's
// earlier YAML named but its latest version no longer does must still be
// discoverable for pruning, which requires the accumulated knownGVKs set
// rather than gvksOf() on the object just applied.
func TestPrune_FindsKindDroppedFromLatestVersion(t *testing.T) {
	stackID := uuid.New()
	ctx := t.Context()

	stale := configMap("cm-v1", "default", stacked(stackID, "v1"))
	fresh := configMap("cm-v2", "default", stacked(stackID, "v2"))
	c := newFakeClient(t, stale, fresh)

	applier := NewApplier(c)
	// v2's YAML no longer names cm-v1 (a ConfigMap); knownGVKs must still
	// carry ConfigMap from when v1 was applied on an earlier tick.
	applier.rememberGVKs(stackID, []*unstructured.Unstructured{stale})

	if err := applier.prune(ctx, stackID, "v2"); err != nil {
		t.Fatalf("prune() error = %v", err)
	}

	if err := getConfigMap(t, c, "cm-v1", "default"); err == nil {
		t.Error("cm-v1 should have been pruned once it stopped matching the current checksum")
	}
	if err := getConfigMap(t, c, "cm-v2", "default"); err != nil {
		t.Errorf("cm-v2 matches the current checksum and should survive, Get() error = %v", err)
	}
}

func TestApplier_Delete_RemovesEveryKnownKindForStack(t *testing.T) {
	stackID := uuid.New()
	otherStack := uuid.New()
	ctx := t.Context()

	cm := configMap("cm1", "default", stacked(stackID, "abc"))
	otherCm := configMap("cm-other-stack", "default", stacked(otherStack, "abc"))

	c := newFakeClient(t, cm, otherCm)
	applier := NewApplier(c)
	applier.rememberGVKs(stackID, []*unstructured.Unstructured{cm})
	applier.rememberGVKs(otherStack, []*unstructured.Unstructured{otherCm})

	marker := stack.DeploymentObject{ID: uuid.New(), StackID: stackID, IsDeletionMarker: true}
	if err := applier.Delete(ctx, stackID, marker); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if err := getConfigMap(t, c, "cm1", "default"); err == nil {
		t.Error("cm1 should have been deleted by Delete()")
	}
	if err := getConfigMap(t, c, "cm-other-stack", "default"); err != nil {
		t.Errorf("cm-other-stack belongs to a different stack and should survive, Get() error = %v", err)
	}
}

func TestApplier_Delete_SkipsOwnerReferencedResources(t *testing.T) {
	stackID := uuid.New()
	ctx := t.Context()

	owned := configMap("cm-owned", "default", stacked(stackID, "abc"))
	owned.SetOwnerReferences([]metav1.OwnerReference{
		{APIVersion: "v1", Kind: "ConfigMap", Name: "parent", UID: "parent-uid"},
	})

	c := newFakeClient(t, owned)
	applier := NewApplier(c)
	applier.rememberGVKs(stackID, []*unstructured.Unstructured{owned})

	marker := stack.DeploymentObject{ID: uuid.New(), StackID: stackID, IsDeletionMarker: true}
	if err := applier.Delete(ctx, stackID, marker); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if err := getConfigMap(t, c, "cm-owned", "default"); err != nil {
		t.Errorf("owner-referenced resource should be left for garbage collection, Get() error = %v", err)
	}
}

func TestApplier_Delete_NoKnownGVKsIsANoop(t *testing.T) {
	stackID := uuid.New()
	ctx := t.Context()

	applier := NewApplier(newFakeClient(t))
	marker := stack.DeploymentObject{ID: uuid.New(), StackID: stackID, IsDeletionMarker: true}
	if err := applier.Delete(ctx, stackID, marker); err != nil {
		t.Fatalf("Delete() error = %v, want nil for a stack with no recorded kinds", err)
	}
}

func TestKnownGVKs_AccumulatesAcrossCalls(t *testing.T) {
	stackID := uuid.New()
	applier := NewApplier(newFakeClient(t))

	cm := configMap("cm1", "default", nil)
	ns := &unstructured.Unstructured{}
	ns.SetAPIVersion("v1")
	ns.SetKind("Namespace")
	ns.SetName("ns1")

	applier.rememberGVKs(stackID, []*unstructured.Unstructured{cm})
	applier.rememberGVKs(stackID, []*unstructured.Unstructured{ns})

	got := applier.knownGVKs(stackID)
	if len(got) != 2 {
		t.Fatalf("knownGVKs() = %v, want 2 entries accumulated across both calls", got)
	}
}
