// Package election implements the leaderless, coordination-free tiebreaker
// used to pick which pod initializes the replica set: whichever candidate
// has the numerically lowest IPv4 address.
package election

import (
	"encoding/binary"
	"net"
	"sort"

	"github.com/lattice-io/mongo-replset-controller/internal/roster"
)

// PodElection reports whether hostIP is the elected initiator among pods.
// Every pod in the process's roster runs this same computation against the
// same input and agrees without communicating: sort candidates by IP treated
// as a big-endian uint32, ascending, and the winner is index 0.
//
// Pods without a parseable IPv4 address sort last and can never win.
func PodElection(pods []roster.Pod, hostIP string) bool {
	if len(pods) == 0 {
		return false
	}

	candidates := make([]roster.Pod, len(pods))
	copy(candidates, pods)

	sort.Slice(candidates, func(i, j int) bool {
		ki, oki := ipKey(candidates[i].PodIP)
		kj, okj := ipKey(candidates[j].PodIP)
		if oki != okj {
			return oki // parseable IPs sort before unparseable ones
		}
		return ki < kj
	})

	return candidates[0].PodIP == hostIP
}

func ipKey(ip string) (uint32, bool) {
	v4 := net.ParseIP(ip).To4()
	if v4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(v4), true
}
