// Package roster produces the per-tick snapshot of pods belonging to this
// database workload, and derives the two address forms a pod can be
// referred to by in the replica set configuration.
package roster

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lattice-io/mongo-replset-controller/internal/errs"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Pod is an observation of one peer, fresh per tick and discarded at tick
// end.
type Pod struct {
	Name      string
	Namespace string
	Running   bool
	PodIP     string // empty if the orchestrator has not assigned one yet
}

// AddressConfig carries the pieces needed to compute a Pod's stable DNS
// endpoint, mirroring the k8sMongoServiceName/k8sClusterDomain/mongoPort
// configuration options.
type AddressConfig struct {
	MongoPort      int
	ServiceName    string // empty disables stable endpoints entirely
	ClusterDomain  string
	LocalNamespace string
}

// IPEndpoint returns podIP:mongoPort, or "" if the pod has no IP yet.
func (p Pod) IPEndpoint(cfg AddressConfig) string {
	if p.PodIP == "" {
		return ""
	}
	return joinHostPort(p.PodIP, cfg.MongoPort)
}

// StableEndpoint returns <name>.<serviceName>.<namespace>.svc.<clusterDomain>:<mongoPort>,
// or "" if no service name is configured or the pod's name or namespace is
// empty.
func (p Pod) StableEndpoint(cfg AddressConfig) string {
	if cfg.ServiceName == "" || p.Name == "" || p.Namespace == "" {
		return ""
	}
	host := strings.Join([]string{p.Name, cfg.ServiceName, p.Namespace, "svc", cfg.ClusterDomain}, ".")
	return joinHostPort(host, cfg.MongoPort)
}

// PreferredAddress returns the stable endpoint if one is available, else the
// IP endpoint. Both may be "" if the pod has neither an IP nor stable
// metadata.
func (p Pod) PreferredAddress(cfg AddressConfig) string {
	if stable := p.StableEndpoint(cfg); stable != "" {
		return stable
	}
	return p.IPEndpoint(cfg)
}

func joinHostPort(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

// Lister lists the pods belonging to this database workload.
type Lister interface {
	ListPods(ctx context.Context) ([]Pod, error)
}

// KubeLister lists pods through a client-go typed clientset, matching a
// namespace and label selector.
type KubeLister struct {
	Client        kubernetes.Interface
	Namespace     string
	LabelSelector string
}

// ListPods returns every pod in the workload's namespace matching the
// configured label selector, regardless of phase. Callers apply the
// Running/podIP filter themselves (see RunningWithIP); this adapter's job
// is only to expose what the orchestrator currently knows.
func (l *KubeLister) ListPods(ctx context.Context) ([]Pod, error) {
	list, err := l.Client.CoreV1().Pods(l.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: l.LabelSelector,
	})
	if err != nil {
		return nil, &errs.OrchestratorUnavailable{Cause: fmt.Errorf("listing pods in %q: %w", l.Namespace, err)}
	}

	pods := make([]Pod, 0, len(list.Items))
	for _, item := range list.Items {
		pods = append(pods, Pod{
			Name:      item.Name,
			Namespace: item.Namespace,
			Running:   item.Status.Phase == corev1.PodRunning,
			PodIP:     item.Status.PodIP,
		})
	}

	return pods, nil
}

// RunningWithIP filters pods to those the reconciler is allowed to
// consider: Running phase and a non-empty podIP. A pod that has been
// scheduled but hasn't reported an IP yet, or that is not Running, is
// excluded before any election or membership decision runs, even when its
// stable endpoint could be computed from its name and namespace.
func RunningWithIP(pods []Pod) []Pod {
	filtered := make([]Pod, 0, len(pods))
	for _, p := range pods {
		if p.Running && p.PodIP != "" {
			filtered = append(filtered, p)
		}
	}
	return filtered
}
