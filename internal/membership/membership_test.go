package membership

import (
	"testing"
	"time"

	"github.com/lattice-io/mongo-replset-controller/internal/mongoclient"
	"github.com/lattice-io/mongo-replset-controller/internal/roster"
)

var cfg = roster.AddressConfig{
	MongoPort:     27017,
	ServiceName:   "mongo-headless",
	ClusterDomain: "cluster.local",
}

func TestAddrToAddPrefersStableEndpoint(t *testing.T) {
	pods := []roster.Pod{
		{Name: "mongo-0", Namespace: "db", Running: true, PodIP: "10.0.0.1"},
	}

	got := AddrToAdd(pods, nil, cfg)
	want := "mongo-0.mongo-headless.db.svc.cluster.local:27017"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("AddrToAdd() = %v, want [%q]", got, want)
	}
}

func TestAddrToAddSkipsExistingMembersByEitherForm(t *testing.T) {
	pods := []roster.Pod{
		{Name: "mongo-0", Namespace: "db", Running: true, PodIP: "10.0.0.1"},
		{Name: "mongo-1", Namespace: "db", Running: true, PodIP: "10.0.0.2"},
	}
	members := []mongoclient.ReplicaSetMember{
		{Name: "mongo-0.mongo-headless.db.svc.cluster.local:27017"},
		{Name: "10.0.0.2:27017"},
	}

	got := AddrToAdd(pods, members, cfg)
	if len(got) != 0 {
		t.Fatalf("AddrToAdd() = %v, want empty (both pods already members)", got)
	}
}

func TestAddrToAddOnlyNewPod(t *testing.T) {
	pods := []roster.Pod{
		{Name: "mongo-0", Namespace: "db", Running: true, PodIP: "10.0.0.1"},
		{Name: "mongo-1", Namespace: "db", Running: true, PodIP: "10.0.0.2"},
	}
	members := []mongoclient.ReplicaSetMember{
		{Name: "mongo-0.mongo-headless.db.svc.cluster.local:27017"},
	}

	got := AddrToAdd(pods, members, cfg)
	want := "mongo-1.mongo-headless.db.svc.cluster.local:27017"
	if len(got) != 1 || got[0] != want {
		t.Fatalf("AddrToAdd() = %v, want [%q]", got, want)
	}
}

func TestAddrToAddFallsBackToIPWithoutServiceName(t *testing.T) {
	noStable := roster.AddressConfig{MongoPort: 27017}
	pods := []roster.Pod{
		{Name: "mongo-0", Namespace: "db", Running: true, PodIP: "10.0.0.1"},
	}

	got := AddrToAdd(pods, nil, noStable)
	if len(got) != 1 || got[0] != "10.0.0.1:27017" {
		t.Fatalf("AddrToAdd() = %v, want [10.0.0.1:27017]", got)
	}
}

func TestAddrToRemoveRequiresBothConditions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	members := []mongoclient.ReplicaSetMember{
		{Name: "10.0.0.9:27017", Health: false, LastHeartbeatRecv: now.Add(-120 * time.Second)},
		{Name: "10.0.0.8:27017", Health: false, LastHeartbeatRecv: now.Add(-30 * time.Second)},
		{Name: "10.0.0.7:27017", Health: true, LastHeartbeatRecv: now.Add(-500 * time.Second)},
	}

	got := AddrToRemove(members, 60*time.Second, now)
	if len(got) != 1 || got[0] != "10.0.0.9:27017" {
		t.Fatalf("AddrToRemove() = %v, want [10.0.0.9:27017]", got)
	}
}

func TestAddrToRemoveEmptyWhenAllHealthy(t *testing.T) {
	now := time.Now()
	members := []mongoclient.ReplicaSetMember{
		{Name: "10.0.0.1:27017", Health: true},
		{Name: "10.0.0.2:27017", Health: true},
	}

	got := AddrToRemove(members, 60*time.Second, now)
	if len(got) != 0 {
		t.Fatalf("AddrToRemove() = %v, want empty", got)
	}
}
