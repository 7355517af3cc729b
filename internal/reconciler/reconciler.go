// Package reconciler drives the per-tick reconciliation loop: it lists the
// pod roster, reads local replica-set status, delegates to election and
// membership diff, and issues mutation commands back to the database.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lattice-io/mongo-replset-controller/internal/election"
	"github.com/lattice-io/mongo-replset-controller/internal/errs"
	"github.com/lattice-io/mongo-replset-controller/internal/hostidentity"
	"github.com/lattice-io/mongo-replset-controller/internal/membership"
	"github.com/lattice-io/mongo-replset-controller/internal/metrics"
	"github.com/lattice-io/mongo-replset-controller/internal/mongoclient"
	"github.com/lattice-io/mongo-replset-controller/internal/roster"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// TickOutcome classifies what a single tick did, for logging and metrics.
type TickOutcome int

const (
	NoOp TickOutcome = iota
	Initialized
	Reconfigured
	ForcedReconfigured
	TickError
)

func (o TickOutcome) String() string {
	switch o {
	case NoOp:
		return "noop"
	case Initialized:
		return "initialized"
	case Reconfigured:
		return "reconfigured"
	case ForcedReconfigured:
		return "forced_reconfigured"
	case TickError:
		return "error"
	default:
		return "unknown"
	}
}

// DatabaseDialer opens a management session against a Mongo endpoint. In
// production this is mongoclient.Dial; tests substitute a fake.
type DatabaseDialer func(ctx context.Context, endpoint string) (mongoclient.Client, error)

// Config holds the reconciler's tunables, sourced from internal/config.
type Config struct {
	LoopSleep        time.Duration
	UnhealthySeconds time.Duration
	Addr             roster.AddressConfig
}

// Reconciler is the tick driver. Construct with New, call Init once, then
// run Workloop in its own goroutine.
type Reconciler struct {
	identity hostidentity.HostIdentity
	lister   roster.Lister
	dial     DatabaseDialer
	cfg      Config
	metrics  *metrics.Metrics
}

// New builds a Reconciler. identity must already be populated by
// hostidentity.Init.
func New(identity hostidentity.HostIdentity, lister roster.Lister, dial DatabaseDialer, cfg Config, m *metrics.Metrics) *Reconciler {
	return &Reconciler{identity: identity, lister: lister, dial: dial, cfg: cfg, metrics: m}
}

// Init validates that the reconciler has everything it needs before
// Workloop starts. HostIdentity resolution itself happens earlier, in
// main, via hostidentity.Init; this just asserts the precondition holds.
func (r *Reconciler) Init() error {
	if r.identity.Endpoint == "" {
		return &errs.InitFailure{Cause: fmt.Errorf("reconciler constructed with an empty host identity")}
	}
	return nil
}

// Workloop runs ticks serially until ctx is cancelled: an immediate first
// tick to establish state, then, after each tick ends, a select over a
// LoopSleep timer and ctx.Done, so LoopSleep is the delay between the end
// of one tick and the start of the next.
func (r *Reconciler) Workloop(ctx context.Context) {
	klog.InfoS("Starting reconciliation loop", "endpoint", r.identity.Endpoint, "loopSleep", r.cfg.LoopSleep)

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			klog.Info("Context cancelled, stopping reconciliation loop")
			return
		case <-time.After(r.cfg.LoopSleep):
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	start := time.Now()
	outcome, err := r.runTick(ctx)
	if err != nil {
		outcome = TickError
		klog.ErrorS(err, "Tick failed")
	}

	if r.metrics != nil {
		r.metrics.TickOutcomesTotal.WithLabelValues(outcome.String()).Inc()
		r.metrics.TickDuration.WithLabelValues(outcome.String()).Observe(time.Since(start).Seconds())
	}

	klog.V(2).InfoS("Tick complete", "outcome", outcome.String(), "duration", time.Since(start))
}

// runTick acquires the peer roster and local replica-set status, classifies
// the status into InSet/NotInSet/InvalidSet, and dispatches to the matching
// handler. Acquisition is serial and short-circuits: the database session
// is only opened once the roster listing succeeds.
func (r *Reconciler) runTick(ctx context.Context) (TickOutcome, error) {
	pods, err := r.lister.ListPods(ctx)
	if err != nil {
		return TickError, &errs.OrchestratorUnavailable{Cause: err}
	}

	pods = roster.RunningWithIP(pods)
	if r.metrics != nil {
		r.metrics.RosterSize.Set(float64(len(pods)))
	}
	if len(pods) == 0 {
		klog.V(2).Info("No running pods with an IP; nothing to reconcile")
		return NoOp, nil
	}

	client, err := r.dial(ctx, r.identity.Endpoint)
	if err != nil {
		return TickError, &errs.DatabaseUnavailable{Cause: err}
	}
	defer client.Close(ctx)

	outcome, err := client.ReplSetStatus(ctx)
	if err != nil {
		return TickError, err
	}

	switch outcome.Kind {
	case mongoclient.StatusOK:
		if r.metrics != nil {
			r.metrics.ReplicaSetSize.Set(float64(len(outcome.Status.Members)))
		}
		return r.handleInSet(ctx, client, pods, outcome.Status)
	case mongoclient.StatusNotYetInitialized:
		return r.handleNotInSet(ctx, client, pods)
	case mongoclient.StatusInvalidConfig:
		return r.handleInvalidSet(ctx, client, pods, outcome.Status)
	default:
		return TickError, &errs.StatusFailure{Cause: fmt.Errorf("unclassified status outcome")}
	}
}

func (r *Reconciler) handleInSet(ctx context.Context, client mongoclient.Client, pods []roster.Pod, status mongoclient.ReplicaSetStatus) (TickOutcome, error) {
	primary, hasPrimary := status.Primary()

	if hasPrimary && !primary.Self {
		return NoOp, nil
	}

	if hasPrimary && primary.Self {
		return r.primaryWork(ctx, client, pods, status.Members, false)
	}

	if r.metrics != nil {
		r.metrics.ElectionsTotal.WithLabelValues("no_primary").Inc()
	}
	if !election.PodElection(pods, r.identity.IP) {
		return NoOp, nil
	}
	if r.metrics != nil {
		r.metrics.ElectionsWon.WithLabelValues("no_primary").Inc()
	}

	return r.primaryWork(ctx, client, pods, status.Members, true)
}

func (r *Reconciler) primaryWork(ctx context.Context, client mongoclient.Client, pods []roster.Pod, members []mongoclient.ReplicaSetMember, force bool) (TickOutcome, error) {
	toAdd := membership.AddrToAdd(pods, members, r.cfg.Addr)
	toRemove := membership.AddrToRemove(members, r.cfg.UnhealthySeconds, time.Now())

	if !force && len(toAdd) == 0 && len(toRemove) == 0 {
		return NoOp, nil
	}

	if err := client.AddNewReplSetMembers(ctx, toAdd, toRemove, force); err != nil {
		kind := "reconfigure"
		if force {
			kind = "forced_reconfigure"
		}
		if r.metrics != nil {
			r.metrics.ReconfigurationsTotal.WithLabelValues(kind, "error").Inc()
		}
		return TickError, err
	}

	kind := "reconfigure"
	outcome := Reconfigured
	if force {
		kind = "forced_reconfigure"
		outcome = ForcedReconfigured
	}
	if r.metrics != nil {
		r.metrics.ReconfigurationsTotal.WithLabelValues(kind, "ok").Inc()
	}
	return outcome, nil
}

func (r *Reconciler) handleNotInSet(ctx context.Context, client mongoclient.Client, pods []roster.Pod) (TickOutcome, error) {
	anyInSet, err := r.probePeers(ctx, client, pods)
	if err != nil {
		return TickError, &errs.ProbeFailure{Cause: err}
	}
	if anyInSet {
		return NoOp, nil
	}

	if r.metrics != nil {
		r.metrics.ElectionsTotal.WithLabelValues("not_in_set").Inc()
	}
	if !election.PodElection(pods, r.identity.IP) {
		return NoOp, nil
	}
	if r.metrics != nil {
		r.metrics.ElectionsWon.WithLabelValues("not_in_set").Inc()
	}

	seed := r.seedAddress(pods)
	if err := client.InitReplSet(ctx, seed); err != nil {
		if r.metrics != nil {
			r.metrics.ReconfigurationsTotal.WithLabelValues("initiate", "error").Inc()
		}
		return TickError, err
	}
	if r.metrics != nil {
		r.metrics.ReconfigurationsTotal.WithLabelValues("initiate", "ok").Inc()
	}
	return Initialized, nil
}

// seedAddress returns the address to seed the replica set with when this
// pod has won the no-set election. It always uses this pod's own address:
// seeding with a peer's address (even pods[0]'s, when the election winner
// happens not to be pods[0] due to the IP-uniqueness invariant being
// violated) would produce a set whose sole member is unreachable from the
// node that just initiated it.
func (r *Reconciler) seedAddress(pods []roster.Pod) string {
	for _, p := range pods {
		if p.PodIP != r.identity.IP {
			continue
		}
		if stable := p.StableEndpoint(r.cfg.Addr); stable != "" {
			return stable
		}
		break
	}
	return r.identity.Endpoint
}

func (r *Reconciler) handleInvalidSet(ctx context.Context, client mongoclient.Client, pods []roster.Pod, status mongoclient.ReplicaSetStatus) (TickOutcome, error) {
	if r.metrics != nil {
		r.metrics.ElectionsTotal.WithLabelValues("invalid_config").Inc()
	}
	if !election.PodElection(pods, r.identity.IP) {
		return NoOp, nil
	}
	if r.metrics != nil {
		r.metrics.ElectionsWon.WithLabelValues("invalid_config").Inc()
	}

	return r.primaryWork(ctx, client, pods, status.Members, true)
}

// probePeers fans out IsInReplSet probes to every peer concurrently and
// joins all results before returning: a mutex-guarded accumulator, not
// errgroup's usual cancel-on-first-error, because the caller needs to know
// whether any peer answered true, not just the first answer.
func (r *Reconciler) probePeers(ctx context.Context, client mongoclient.Client, pods []roster.Pod) (bool, error) {
	var (
		mu     sync.Mutex
		anyYes bool
	)

	var g errgroup.Group
	for _, p := range pods {
		if p.PodIP == r.identity.IP {
			continue
		}
		p := p
		g.Go(func() error {
			inSet, err := client.IsInReplSet(ctx, p.IPEndpoint(r.cfg.Addr))
			if err != nil {
				return fmt.Errorf("probing %s: %w", p.Name, err)
			}
			if inSet {
				mu.Lock()
				anyYes = true
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return false, err
	}
	return anyYes, nil
}
