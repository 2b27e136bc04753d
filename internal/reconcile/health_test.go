package reconcile

import (
	"testing"

	corev1 "k8s.io/api/core/v1"

	"github.com/brokkr-io/brokkr/pkg/health"
)

func readyPod() corev1.Pod {
	return corev1.Pod{
		Status: corev1.PodStatus{
			Phase:      corev1.PodRunning,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionTrue}},
		},
	}
}

func notReadyPod(phase corev1.PodPhase, reasons ...string) corev1.Pod {
	pod := corev1.Pod{
		Status: corev1.PodStatus{
			Phase:      phase,
			Conditions: []corev1.PodCondition{{Type: corev1.PodReady, Status: corev1.ConditionFalse}},
		},
	}
	for _, r := range reasons {
		pod.Status.ContainerStatuses = append(pod.Status.ContainerStatuses, corev1.ContainerStatus{
			State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: r}},
		})
	}
	return pod
}

func TestClassify_NoPods(t *testing.T) {
	status, ready, conditions := classify(nil)
	if status != health.StatusUnknown {
		t.Errorf("status = %v, want %v", status, health.StatusUnknown)
	}
	if ready != 0 || conditions != nil {
		t.Errorf("ready = %d, conditions = %v, want 0, nil", ready, conditions)
	}
}

func TestClassify_AllReadyNoConditions(t *testing.T) {
	pods := []corev1.Pod{readyPod(), readyPod()}
	status, ready, conditions := classify(pods)
	if status != health.StatusHealthy {
		t.Errorf("status = %v, want %v", status, health.StatusHealthy)
	}
	if ready != 2 {
		t.Errorf("ready = %d, want 2", ready)
	}
	if len(conditions) != 0 {
		t.Errorf("conditions = %v, want empty", conditions)
	}
}

func TestClassify_SomeReadyWithBadCondition(t *testing.T) {
	pods := []corev1.Pod{readyPod(), notReadyPod(corev1.PodRunning, "CrashLoopBackOff")}
	status, ready, conditions := classify(pods)
	if status != health.StatusDegraded {
		t.Errorf("status = %v, want %v", status, health.StatusDegraded)
	}
	if ready != 1 {
		t.Errorf("ready = %d, want 1", ready)
	}
	if len(conditions) != 1 || conditions[0] != "CrashLoopBackOff" {
		t.Errorf("conditions = %v, want [CrashLoopBackOff]", conditions)
	}
}

func TestClassify_NoneReadyIsFailing(t *testing.T) {
	pods := []corev1.Pod{
		notReadyPod(corev1.PodRunning, "ImagePullBackOff"),
		notReadyPod(corev1.PodRunning, "OOMKilled"),
	}
	status, ready, _ := classify(pods)
	if status != health.StatusFailing {
		t.Errorf("status = %v, want %v", status, health.StatusFailing)
	}
	if ready != 0 {
		t.Errorf("ready = %d, want 0", ready)
	}
}

func TestClassify_PendingConditionStillCountsAsBad(t *testing.T) {
	// A pending pod with a starting-up reason degrades the group once any
	// other pod is ready, per spec §4.5 step 3, but alone with no ready
	// pods it is "failing" the same as a stuck condition would be.
	pods := []corev1.Pod{notReadyPod(corev1.PodPending)}
	status, _, conditions := classify(pods)
	if status != health.StatusFailing {
		t.Errorf("status = %v, want %v", status, health.StatusFailing)
	}
	if len(conditions) != 1 || conditions[0] != "ContainerCreating" {
		t.Errorf("conditions = %v, want [ContainerCreating]", conditions)
	}
}

func TestIsPodReady(t *testing.T) {
	if !isPodReady(readyPod()) {
		t.Error("isPodReady() should be true for a pod with PodReady=True")
	}
	if isPodReady(notReadyPod(corev1.PodRunning)) {
		t.Error("isPodReady() should be false for a pod with PodReady=False")
	}
	if isPodReady(corev1.Pod{}) {
		t.Error("isPodReady() should be false with no conditions at all")
	}
}

func TestPodConditionReasons(t *testing.T) {
	pod := notReadyPod(corev1.PodRunning, "CrashLoopBackOff", "ImagePullBackOff")
	reasons := podConditionReasons(pod)
	if len(reasons) != 2 {
		t.Fatalf("got %d reasons, want 2: %v", len(reasons), reasons)
	}
}

func TestPodConditionReasons_PendingNoContainerStatuses(t *testing.T) {
	pod := corev1.Pod{Status: corev1.PodStatus{Phase: corev1.PodPending}}
	reasons := podConditionReasons(pod)
	if len(reasons) != 1 || reasons[0] != "ContainerCreating" {
		t.Errorf("reasons = %v, want [ContainerCreating]", reasons)
	}
}

func TestPodConditionReasons_Failed(t *testing.T) {
	pod := corev1.Pod{Status: corev1.PodStatus{Phase: corev1.PodFailed}}
	reasons := podConditionReasons(pod)
	if len(reasons) != 1 || reasons[0] != "Failed" {
		t.Errorf("reasons = %v, want [Failed]", reasons)
	}
}
