package reconcile

import (
	"bytes"
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Diagnostics answers the three on-demand request kinds spec §6 names:
// pod listing, event listing, and log tailing. These need the typed
// client-go Interface (for the pod logs subresource's byte stream),
// unlike Applier/HealthChecker, which only ever need the
// controller-runtime client's generic CRUD.
type Diagnostics struct {
	clientset kubernetes.Interface
}

// NewDiagnostics builds a Diagnostics bound to the cluster described by
// kubeconfigPath (empty falls back to in-cluster config, same convention
// as NewClient).
func NewDiagnostics(kubeconfigPath string) (*Diagnostics, error) {
	config, err := restConfig(kubeconfigPath)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes clientset: %w", err)
	}
	return &Diagnostics{clientset: clientset}, nil
}

// PodListParams names the namespace and optional label selector a
// pod_list request scopes to.
type PodListParams struct {
	Namespace     string `json:"namespace"`
	LabelSelector string `json:"label_selector,omitempty"`
}

// PodList answers a diagnostic.KindPodList request.
func (d *Diagnostics) PodList(ctx context.Context, params PodListParams) ([]corev1.Pod, error) {
	list, err := d.clientset.CoreV1().Pods(params.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: params.LabelSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}
	return list.Items, nil
}

// EventsListParams names the namespace an events_list request scopes to.
type EventsListParams struct {
	Namespace string `json:"namespace"`
}

// EventsList answers a diagnostic.KindEventsList request.
func (d *Diagnostics) EventsList(ctx context.Context, params EventsListParams) ([]corev1.Event, error) {
	list, err := d.clientset.CoreV1().Events(params.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return list.Items, nil
}

// LogTailParams names the pod/container a log_tail request targets, and
// how many trailing lines to return.
type LogTailParams struct {
	Namespace string `json:"namespace"`
	Pod       string `json:"pod"`
	Container string `json:"container,omitempty"`
	TailLines int64  `json:"tail_lines,omitempty"`
}

const defaultTailLines = 200

// LogTail answers a diagnostic.KindLogTail request with the pod's
// trailing log output.
func (d *Diagnostics) LogTail(ctx context.Context, params LogTailParams) (string, error) {
	tailLines := params.TailLines
	if tailLines <= 0 {
		tailLines = defaultTailLines
	}

	req := d.clientset.CoreV1().Pods(params.Namespace).GetLogs(params.Pod, &corev1.PodLogOptions{
		Container: params.Container,
		TailLines: &tailLines,
	})

	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("opening log stream: %w", err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return "", fmt.Errorf("reading log stream: %w", err)
	}
	return buf.String(), nil
}
