// Package reconcile is the agent-side Kubernetes engine: applying and
// pruning deployment objects (spec §4.4) and classifying pod health (spec
// §4.5) against whatever cluster the agent's kubeconfig points at.
//
// Client construction is grounded on
// SAP-component-operator-runtime/clm/cmd/util.go's getClient and
// internal/cluster/factory.go's NewClientFactory: read the kubeconfig file,
// turn it into a *rest.Config, register the built-in scheme, and build a
// controller-runtime client.Client. Brokkr agents only ever operate on
// unstructured.Unstructured objects, so no CRD/apiregistration scheme types
// are registered — the client-go scheme is enough to talk to the API server
// and to list typed Pods/Namespaces for health checks.
package reconcile

import (
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// NewClient builds a controller-runtime client for the cluster described by
// kubeconfigPath. An empty path falls back to in-cluster config, the normal
// case for an agent running as a pod inside the cluster it reconciles.
func NewClient(kubeconfigPath string) (client.Client, error) {
	config, err := restConfig(kubeconfigPath)
	if err != nil {
		return nil, err
	}

	scheme := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("registering scheme: %w", err)
	}

	c, err := client.New(config, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("building kubernetes client: %w", err)
	}
	return c, nil
}

func restConfig(kubeconfigPath string) (*rest.Config, error) {
	if kubeconfigPath == "" {
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("loading in-cluster config: %w", err)
		}
		return config, nil
	}

	raw, err := os.ReadFile(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading kubeconfig: %w", err)
	}
	config, err := clientcmd.RESTConfigFromKubeConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing kubeconfig: %w", err)
	}
	return config, nil
}
