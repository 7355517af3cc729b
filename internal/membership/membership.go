// Package membership computes the set difference between the live pod
// roster and the replica set's current member list: which addresses need
// adding, and which stale members need evicting.
package membership

import (
	"time"

	"github.com/lattice-io/mongo-replset-controller/internal/mongoclient"
	"github.com/lattice-io/mongo-replset-controller/internal/roster"
	"k8s.io/klog/v2"
)

// AddrToAdd returns, in roster order, the preferred address of every
// Running pod not already represented in members. A pod is already
// represented if either of its two possible endpoint forms matches an
// existing member's name.
func AddrToAdd(pods []roster.Pod, members []mongoclient.ReplicaSetMember, cfg roster.AddressConfig) []string {
	existing := make(map[string]bool, len(members))
	for _, m := range members {
		existing[m.Name] = true
	}

	var toAdd []string
	for _, p := range pods {
		if !p.Running {
			continue
		}
		ip := p.IPEndpoint(cfg)
		stable := p.StableEndpoint(cfg)
		if ip == "" && stable == "" {
			continue
		}
		if existing[ip] || existing[stable] {
			continue
		}

		addr := stable
		if addr == "" {
			addr = ip
		}
		klog.V(2).InfoS("Pod not yet a replica set member", "pod", p.Name, "address", addr)
		toAdd = append(toAdd, addr)
	}

	return toAdd
}

// AddrToRemove returns, in member order, the name of every member that has
// been unhealthy for longer than unhealthySeconds. A member merely unhealthy
// but recently heard-from is retained: both conditions must hold.
func AddrToRemove(members []mongoclient.ReplicaSetMember, unhealthySeconds time.Duration, now time.Time) []string {
	var toRemove []string
	for _, m := range members {
		if m.Health {
			continue
		}
		if now.Sub(m.LastHeartbeatRecv) <= unhealthySeconds {
			continue
		}
		klog.V(2).InfoS("Member unhealthy past grace period", "member", m.Name, "lastHeartbeatRecv", m.LastHeartbeatRecv)
		toRemove = append(toRemove, m.Name)
	}
	return toRemove
}
