// Package hostidentity resolves and caches the local pod's network address
// once at startup. It supplies the self-identifier the election compares
// candidates against.
package hostidentity

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/lattice-io/mongo-replset-controller/internal/errs"
	"k8s.io/klog/v2"
)

// HostIdentity is the local pod's resolved address. Created once at
// startup by Init and never mutated afterward.
type HostIdentity struct {
	IP       string
	Endpoint string
}

// Init determines the local host name from the operating environment,
// resolves it to an IPv4 address through the system resolver, and returns
// the identity with endpoint = ip ":" mongoPort. Idempotent: calling it
// again simply produces a fresh, independent value.
func Init(ctx context.Context, mongoPort int) (HostIdentity, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return HostIdentity{}, &errs.InitFailure{Cause: fmt.Errorf("reading hostname: %w", err)}
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return HostIdentity{}, &errs.InitFailure{Cause: fmt.Errorf("resolving hostname %q: %w", hostname, err)}
	}

	var ip net.IP
	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			ip = v4
			break
		}
	}
	if ip == nil {
		return HostIdentity{}, &errs.InitFailure{Cause: fmt.Errorf("no IPv4 address found for hostname %q", hostname)}
	}

	identity := HostIdentity{
		IP:       ip.String(),
		Endpoint: net.JoinHostPort(ip.String(), strconv.Itoa(mongoPort)),
	}

	klog.InfoS("Resolved host identity", "hostname", hostname, "ip", identity.IP, "endpoint", identity.Endpoint)

	return identity, nil
}
