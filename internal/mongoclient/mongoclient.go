// Package mongoclient wraps go.mongodb.org/mongo-driver with the narrow set
// of replica-set administration calls the reconciler needs: reading status,
// initiating a set, reconfiguring membership, and probing a peer.
package mongoclient

import (
	"context"
	"fmt"
	"time"

	"github.com/lattice-io/mongo-replset-controller/internal/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"k8s.io/klog/v2"
)

// Well-known replSetGetStatus/replSetInitiate error codes. See MongoDB's
// error_codes.yml; the names are the ones the wire protocol reports.
const (
	codeNotYetInitialized      = 94
	codeInvalidReplicaSetConfig = 93
)

// Member states as reported in replSetGetStatus's members[].state. Only the
// primary state is inspected by this codebase; the rest are recorded here
// for completeness and for tests that assert on classification.
const (
	StatePrimary    = 1
	StateSecondary  = 2
	StateRecovering = 3
	StateStartup2   = 5
	StateUnknown    = 6
	StateArbiter    = 7
	StateDown       = 8
	StateRollback   = 9
	StateRemoved    = 10
)

// ReplicaSetMember is one entry of replSetGetStatus's members array.
type ReplicaSetMember struct {
	Name              string
	State             int
	Self              bool
	Health            bool
	LastHeartbeatRecv time.Time
}

// ReplicaSetStatus is the successful decode of replSetGetStatus.
type ReplicaSetStatus struct {
	Members []ReplicaSetMember
}

// Primary returns the member reported as primary (state == StatePrimary),
// if any.
func (s ReplicaSetStatus) Primary() (ReplicaSetMember, bool) {
	for _, m := range s.Members {
		if m.State == StatePrimary {
			return m, true
		}
	}
	return ReplicaSetMember{}, false
}

// StatusOutcome is the tagged variant replSetGetStatus classifies into:
// Ok(Status) | NotYetInitialized | InvalidConfig. The fourth branch of the
// conceptual variant, Other(error), is represented by ReplSetStatus's error
// return instead of a StatusOutcome value — an unclassified failure aborts
// the tick, so there is no case where a caller needs to switch on it.
type StatusOutcome struct {
	Kind   StatusKind
	Status ReplicaSetStatus // valid when Kind == StatusOK
}

// StatusKind distinguishes the branches of the ReplicaSetStatus tagged
// variant.
type StatusKind int

const (
	// StatusOK means the node reported a healthy replica-set status.
	StatusOK StatusKind = iota
	// StatusNotYetInitialized means the node has never joined a set.
	StatusNotYetInitialized
	// StatusInvalidConfig means the node is configured but the config
	// is not currently valid (e.g. quorum lost).
	StatusInvalidConfig
)

// Client is the management-session surface the reconciler consumes.
// MongoClient is the production implementation; tests supply fakes.
type Client interface {
	ReplSetStatus(ctx context.Context) (StatusOutcome, error)
	InitReplSet(ctx context.Context, seedAddress string) error
	AddNewReplSetMembers(ctx context.Context, toAdd, toRemove []string, force bool) error
	IsInReplSet(ctx context.Context, peerEndpoint string) (bool, error)
	Close(ctx context.Context) error
}

// MongoClient is a thin per-tick wrapper around a single *mongo.Client
// session, opened by Dial and released by Close.
type MongoClient struct {
	driver   *mongo.Client
	endpoint string
}

var _ Client = (*MongoClient)(nil)

// Dial opens a management session against endpoint.
func Dial(ctx context.Context, endpoint string) (*MongoClient, error) {
	uri := fmt.Sprintf("mongodb://%s/?connect=direct", endpoint)
	driver, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(5*time.Second))
	if err != nil {
		return nil, &errs.DatabaseUnavailable{Cause: fmt.Errorf("connecting to %s: %w", endpoint, err)}
	}
	if err := driver.Ping(ctx, readpref.Primary()); err != nil {
		_ = driver.Disconnect(ctx)
		return nil, &errs.DatabaseUnavailable{Cause: fmt.Errorf("pinging %s: %w", endpoint, err)}
	}
	return &MongoClient{driver: driver, endpoint: endpoint}, nil
}

// Close releases the underlying session. Safe to call once per MongoClient.
func (c *MongoClient) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	return c.driver.Disconnect(ctx)
}

// ReplSetStatus runs replSetGetStatus and classifies the result.
func (c *MongoClient) ReplSetStatus(ctx context.Context) (StatusOutcome, error) {
	var raw bson.M
	err := c.driver.Database("admin").RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}).Decode(&raw)
	if err == nil {
		status, decodeErr := decodeStatus(raw)
		if decodeErr != nil {
			return StatusOutcome{}, &errs.StatusFailure{Cause: decodeErr}
		}
		return StatusOutcome{Kind: StatusOK, Status: status}, nil
	}

	code, ok := commandErrorCode(err)
	if !ok {
		return StatusOutcome{}, &errs.StatusFailure{Cause: err}
	}

	switch code {
	case codeNotYetInitialized:
		return StatusOutcome{Kind: StatusNotYetInitialized}, nil
	case codeInvalidReplicaSetConfig:
		return StatusOutcome{Kind: StatusInvalidConfig}, nil
	default:
		return StatusOutcome{}, &errs.StatusFailure{Cause: err}
	}
}

// commandErrorCode extracts the numeric code from a mongo.CommandError,
// which is how the driver surfaces replSetGetStatus's 93/94 responses.
func commandErrorCode(err error) (int, bool) {
	var cmdErr mongo.CommandError
	if ok := asCommandError(err, &cmdErr); ok {
		return int(cmdErr.Code), true
	}
	return 0, false
}

func asCommandError(err error, target *mongo.CommandError) bool {
	if cmdErr, ok := err.(mongo.CommandError); ok {
		*target = cmdErr
		return true
	}
	return false
}

func decodeStatus(raw bson.M) (ReplicaSetStatus, error) {
	rawMembers, ok := raw["members"].(primitive.A)
	if !ok {
		return ReplicaSetStatus{}, fmt.Errorf("replSetGetStatus reply missing members array")
	}

	members := make([]ReplicaSetMember, 0, len(rawMembers))
	for _, entry := range rawMembers {
		m, ok := entry.(bson.M)
		if !ok {
			continue
		}
		members = append(members, ReplicaSetMember{
			Name:              stringField(m, "name"),
			State:             intField(m, "state"),
			Self:              boolField(m, "self"),
			Health:            m["health"] == float64(1) || m["health"] == int32(1),
			LastHeartbeatRecv: timeField(m, "lastHeartbeatRecv"),
		})
	}

	return ReplicaSetStatus{Members: members}, nil
}

func stringField(m bson.M, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m bson.M, key string) int {
	switch v := m[key].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func boolField(m bson.M, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func timeField(m bson.M, key string) time.Time {
	switch v := m[key].(type) {
	case primitive.DateTime:
		return v.Time()
	case time.Time:
		return v
	default:
		return time.Time{}
	}
}

// InitReplSet runs replSetInitiate with a single seed member.
func (c *MongoClient) InitReplSet(ctx context.Context, seedAddress string) error {
	cfg := bson.M{
		"_id": "rs0",
		"members": []bson.M{
			{"_id": 0, "host": seedAddress},
		},
	}
	err := c.driver.Database("admin").RunCommand(ctx, bson.D{{Key: "replSetInitiate", Value: cfg}}).Err()
	if err != nil {
		return &errs.MutationFailure{Cause: fmt.Errorf("replSetInitiate(seed=%s): %w", seedAddress, err)}
	}
	klog.InfoS("Initialized replica set", "seed", seedAddress)
	return nil
}

// AddNewReplSetMembers reads the current config, applies toAdd/toRemove, and
// runs replSetReconfig. Addresses in toAdd that already name a host in the
// config are skipped, and addresses in toRemove that name no host have no
// effect. force bypasses the driver's usual requirement that a
// primary drive the reconfiguration.
func (c *MongoClient) AddNewReplSetMembers(ctx context.Context, toAdd, toRemove []string, force bool) error {
	var cfgReply bson.M
	if err := c.driver.Database("admin").RunCommand(ctx, bson.D{{Key: "replSetGetConfig", Value: 1}}).Decode(&cfgReply); err != nil {
		return &errs.MutationFailure{Cause: fmt.Errorf("replSetGetConfig: %w", err)}
	}

	config, ok := cfgReply["config"].(bson.M)
	if !ok {
		return &errs.MutationFailure{Cause: fmt.Errorf("replSetGetConfig reply missing config document")}
	}

	members, _ := config["members"].(primitive.A)
	remove := make(map[string]bool, len(toRemove))
	for _, addr := range toRemove {
		remove[addr] = true
	}

	kept := make([]interface{}, 0, len(members))
	present := make(map[string]bool, len(members))
	maxID := -1
	for _, entry := range members {
		m, ok := entry.(bson.M)
		if !ok {
			continue
		}
		host, _ := m["host"].(string)
		if remove[host] {
			continue
		}
		if id := intField(m, "_id"); id > maxID {
			maxID = id
		}
		present[host] = true
		kept = append(kept, m)
	}

	for _, addr := range toAdd {
		if present[addr] {
			continue
		}
		present[addr] = true
		maxID++
		kept = append(kept, bson.M{"_id": maxID, "host": addr})
	}

	config["members"] = kept
	if v, ok := config["version"].(int32); ok {
		config["version"] = v + 1
	} else {
		config["version"] = intField(config, "version") + 1
	}

	cmd := bson.D{
		{Key: "replSetReconfig", Value: config},
		{Key: "force", Value: force},
	}
	if err := c.driver.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		return &errs.MutationFailure{Cause: fmt.Errorf("replSetReconfig(add=%v, remove=%v, force=%v): %w", toAdd, toRemove, force, err)}
	}

	klog.InfoS("Reconfigured replica set", "added", toAdd, "removed", toRemove, "force", force)
	return nil
}

// IsInReplSet dials peerEndpoint independently and asks whether it
// considers itself an initialized member of a replica set.
func (c *MongoClient) IsInReplSet(ctx context.Context, peerEndpoint string) (bool, error) {
	peer, err := Dial(ctx, peerEndpoint)
	if err != nil {
		return false, &errs.ProbeFailure{Cause: err}
	}
	defer peer.Close(ctx)

	outcome, err := peer.ReplSetStatus(ctx)
	if err != nil {
		return false, &errs.ProbeFailure{Cause: err}
	}

	return outcome.Kind == StatusOK || outcome.Kind == StatusInvalidConfig, nil
}
