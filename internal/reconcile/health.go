package reconcile

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/brokkr-io/brokkr/pkg/health"
	"github.com/brokkr-io/brokkr/pkg/stack"
)

// degradedConditions is spec §4.5's DEGRADED_CONDITIONS set verbatim:
// container waiting/terminated reasons that mean a pod is stuck, not
// merely starting up.
var degradedConditions = map[string]bool{
	"ImagePullBackOff":           true,
	"ErrImagePull":               true,
	"CrashLoopBackOff":           true,
	"CreateContainerConfigError": true,
	"InvalidImageName":           true,
	"OOMKilled":                  true,
	"RunContainerError":          true,
	"ContainerCannotRun":         true,
}

// pendingConditions realizes spec §4.5's PENDING_CONDITIONS set, which the
// spec names but never enumerates — resolved in DESIGN.md as the
// self-resolving "still starting" reasons, distinct from the stuck
// reasons in degradedConditions.
var pendingConditions = map[string]bool{
	"ContainerCreating": true,
	"PodInitializing":   true,
}

// HealthChecker implements spec §4.5: for every deployment object the
// agent has applied, locate its owned pods and classify them into
// healthy/degraded/failing/unknown.
type HealthChecker struct {
	client client.Client
}

// NewHealthChecker builds a HealthChecker bound to a cluster client.
func NewHealthChecker(c client.Client) *HealthChecker {
	return &HealthChecker{client: c}
}

// Check classifies one deployment object's health, per spec §4.5 steps
// 1-3. It returns the report the caller should submit via
// pkg/health.ReportRequest.
func (h *HealthChecker) Check(ctx context.Context, obj stack.DeploymentObject) (health.ReportRequest, error) {
	resources, err := parseMultiDocYAML(obj.YAMLContent)
	if err != nil {
		return health.ReportRequest{}, fmt.Errorf("parsing deployment object: %w", err)
	}

	var pods []corev1.Pod
	var resourceNames []string
	sawSelector := false

	for _, r := range resources {
		selector, ok, _ := unstructured.NestedStringMap(r.Object, "spec", "selector", "matchLabels")
		if !ok || len(selector) == 0 {
			continue
		}
		sawSelector = true
		resourceNames = append(resourceNames, describe(r))

		list := &corev1.PodList{}
		if err := h.client.List(ctx, list, client.InNamespace(r.GetNamespace()), client.MatchingLabels(selector)); err != nil {
			return health.ReportRequest{
				DeploymentObjectID: obj.ID,
				Status:             health.StatusUnknown,
				Summary:            health.Summary{Resources: resourceNames},
			}, nil
		}
		pods = append(pods, list.Items...)
	}

	if !sawSelector {
		return health.ReportRequest{
			DeploymentObjectID: obj.ID,
			Status:             health.StatusUnknown,
			Summary:            health.Summary{Resources: resourceNames},
		}, nil
	}

	status, ready, conditions := classify(pods)
	return health.ReportRequest{
		DeploymentObjectID: obj.ID,
		Status:             status,
		Summary: health.Summary{
			PodsReady:  ready,
			PodsTotal:  len(pods),
			Conditions: conditions,
			Resources:  resourceNames,
		},
	}, nil
}

// classify implements spec §4.5 step 3's decision table.
func classify(pods []corev1.Pod) (status health.Status, ready int, conditions []string) {
	if len(pods) == 0 {
		return health.StatusUnknown, 0, nil
	}

	seen := map[string]bool{}
	hasBadCondition := false

	for _, pod := range pods {
		if isPodReady(pod) {
			ready++
		}
		for _, reason := range podConditionReasons(pod) {
			if !seen[reason] {
				seen[reason] = true
				conditions = append(conditions, reason)
			}
			if degradedConditions[reason] || pendingConditions[reason] {
				hasBadCondition = true
			}
		}
	}

	switch {
	case ready == len(pods) && !hasBadCondition:
		return health.StatusHealthy, ready, conditions
	case ready > 0:
		return health.StatusDegraded, ready, conditions
	default:
		// ready == 0: expected pods but none ready, per spec §4.5 step 3.
		return health.StatusFailing, ready, conditions
	}
}

func isPodReady(pod corev1.Pod) bool {
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

// podConditionReasons collects every container waiting/terminated reason
// plus the pod's own phase, per spec §4.5 step 2.
func podConditionReasons(pod corev1.Pod) []string {
	var reasons []string
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			reasons = append(reasons, cs.State.Waiting.Reason)
		}
		if cs.State.Terminated != nil && cs.State.Terminated.Reason != "" {
			reasons = append(reasons, cs.State.Terminated.Reason)
		}
	}
	if pod.Status.Phase == corev1.PodPending && len(pod.Status.ContainerStatuses) == 0 {
		reasons = append(reasons, "ContainerCreating")
	}
	if pod.Status.Phase == corev1.PodFailed {
		reasons = append(reasons, "Failed")
	}
	return reasons
}
