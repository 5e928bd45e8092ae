package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/provider"
	"github.com/stratus-io/stratus/internal/state"
	"github.com/stratus-io/stratus/providers/local"
)

// destroyRecorder wraps the local provider and records the resource type of
// every successful Destroy call, in call order.
type destroyRecorder struct {
	*local.Provider
	mu    sync.Mutex
	order []string
}

func (d *destroyRecorder) Destroy(ctx context.Context, resourceType, id string) error {
	if err := d.Provider.Destroy(ctx, resourceType, id); err != nil {
		return err
	}
	d.mu.Lock()
	d.order = append(d.order, resourceType)
	d.mu.Unlock()
	return nil
}

func TestApply_ResolvesReferencesFromProducers(t *testing.T) {
	eng, prov, store := newTestEngine()
	ctx := context.Background()

	plan, err := eng.Plan(ctx, networkConfig())
	require.NoError(t, err)

	report := eng.Apply(ctx, plan)
	assert.Equal(t, 0, report.ExitCode())

	succeeded, failed, skipped := report.Counts()
	assert.Equal(t, 2, succeeded)
	assert.Zero(t, failed)
	assert.Zero(t, skipped)

	net, err := store.Get(ctx, "compute.Network.main")
	require.NoError(t, err)
	require.NotNil(t, net)
	assert.True(t, prov.Live(net.ID))

	// The subnet's stored attributes hold the producer's realized
	// self_link, not the symbolic reference.
	subnet, err := store.Get(ctx, "compute.Subnet.app")
	require.NoError(t, err)
	require.NotNil(t, subnet)
	assert.Equal(t, net.Attributes["self_link"], subnet.Attributes["network"])
	assert.Equal(t, []string{"compute.Network.main"}, subnet.Dependencies)
}

func TestApply_FailureSkipsDependentsOnly(t *testing.T) {
	bang := errors.New("quota exceeded for networks")
	eng, _, store := newTestEngine(local.WithCreateFailure("main", bang))
	ctx := context.Background()

	cfg := networkConfig()
	cfg.Resources = append(cfg.Resources, testResource("dns.Zone", "public", map[string]any{
		"domain": "example.com",
	}))

	plan, err := eng.Plan(ctx, cfg)
	require.NoError(t, err)

	report := eng.Apply(ctx, plan)
	assert.Equal(t, 1, report.ExitCode())

	netRes := report.Result("compute.Network.main")
	require.NotNil(t, netRes)
	assert.Equal(t, ir.OutcomeFailed, netRes.Outcome)
	assert.Contains(t, netRes.Err, "quota exceeded")

	// The dependent is skipped and never attempted.
	subnetRes := report.Result("compute.Subnet.app")
	require.NotNil(t, subnetRes)
	assert.Equal(t, ir.OutcomeSkipped, subnetRes.Outcome)
	assert.Contains(t, subnetRes.SkippedBecause, "compute.Network.main")

	rec, err := store.Get(ctx, "compute.Subnet.app")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// The independent branch still runs to completion.
	zoneRes := report.Result("dns.Zone.public")
	require.NotNil(t, zoneRes)
	assert.Equal(t, ir.OutcomeSuccess, zoneRes.Outcome)
}

func TestApply_FailureLeavesSuccessfulStatePersisted(t *testing.T) {
	bang := errors.New("disk full")
	eng, _, store := newTestEngine(local.WithCreateFailure("app", bang))
	ctx := context.Background()

	plan, err := eng.Plan(ctx, networkConfig())
	require.NoError(t, err)

	report := eng.Apply(ctx, plan)
	assert.Equal(t, 1, report.ExitCode())

	// The producer succeeded before the consumer failed; its record must
	// survive the run so the next plan does not recreate it.
	net, err := store.Get(ctx, "compute.Network.main")
	require.NoError(t, err)
	require.NotNil(t, net)

	plan, err = eng.Plan(ctx, networkConfig())
	require.NoError(t, err)
	assert.Equal(t, ir.ActionNoOp, planItem(t, plan, "compute.Network.main").Action)
	assert.Equal(t, ir.ActionCreate, planItem(t, plan, "compute.Subnet.app").Action)
}

func TestApply_DestroyRemovesStateAndObjects(t *testing.T) {
	eng, prov, store := newTestEngine()
	ctx := context.Background()

	plan, err := eng.Plan(ctx, networkConfig())
	require.NoError(t, err)
	require.Equal(t, 0, eng.Apply(ctx, plan).ExitCode())

	net, err := store.Get(ctx, "compute.Network.main")
	require.NoError(t, err)

	plan, err = eng.Plan(ctx, &ir.Config{})
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Summary.Destroy)

	report := eng.Apply(ctx, plan)
	assert.Equal(t, 0, report.ExitCode())

	assert.False(t, prov.Live(net.ID))
	records, corrupt, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, corrupt)
}

func TestApply_DestroysDependentsBeforeDependencies(t *testing.T) {
	rec := &destroyRecorder{Provider: local.New()}
	registry := provider.NewRegistry()
	registry.Put("local", rec)
	eng := New(registry, state.NewMemStore())
	ctx := context.Background()

	plan, err := eng.Plan(ctx, networkConfig())
	require.NoError(t, err)
	require.Equal(t, 0, eng.Apply(ctx, plan).ExitCode())

	plan, err = eng.Plan(ctx, &ir.Config{})
	require.NoError(t, err)
	require.Equal(t, 2, plan.Summary.Destroy)

	report := eng.Apply(ctx, plan)
	assert.Equal(t, 0, report.ExitCode())

	// The subnet depends on the network, so it must be destroyed first.
	assert.Equal(t, []string{"compute.Subnet", "compute.Network"}, rec.order)
}

func TestApply_FailedDestroySkipsItsDependency(t *testing.T) {
	bang := errors.New("subnet still has attachments")
	eng, prov, store := newTestEngine(local.WithDestroyFailure("app", bang))
	ctx := context.Background()

	plan, err := eng.Plan(ctx, networkConfig())
	require.NoError(t, err)
	require.Equal(t, 0, eng.Apply(ctx, plan).ExitCode())

	net, err := store.Get(ctx, "compute.Network.main")
	require.NoError(t, err)
	require.NotNil(t, net)

	plan, err = eng.Plan(ctx, &ir.Config{})
	require.NoError(t, err)
	require.Equal(t, 2, plan.Summary.Destroy)

	report := eng.Apply(ctx, plan)
	assert.Equal(t, 1, report.ExitCode())

	subnetRes := report.Result("compute.Subnet.app")
	require.NotNil(t, subnetRes)
	assert.Equal(t, ir.OutcomeFailed, subnetRes.Outcome)
	assert.Contains(t, subnetRes.Err, "attachments")

	// The network's destroy is never attempted while its dependent is
	// still standing.
	netRes := report.Result("compute.Network.main")
	require.NotNil(t, netRes)
	assert.Equal(t, ir.OutcomeSkipped, netRes.Outcome)
	assert.Contains(t, netRes.SkippedBecause, "compute.Subnet.app")

	assert.True(t, prov.Live(net.ID))
	rec, err := store.Get(ctx, "compute.Network.main")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestApply_ReplaceAssignsNewID(t *testing.T) {
	eng, prov, store := newTestEngine(local.WithImmutable("compute.Network", "cidr"))
	ctx := context.Background()
	cfg := networkConfig()

	plan, err := eng.Plan(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 0, eng.Apply(ctx, plan).ExitCode())

	before, err := store.Get(ctx, "compute.Network.main")
	require.NoError(t, err)

	cfg.Resources[0].Attributes["cidr"] = "10.9.0.0/16"
	plan, err = eng.Plan(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, ir.ActionReplace, planItem(t, plan, "compute.Network.main").Action)

	report := eng.Apply(ctx, plan)
	assert.Equal(t, 0, report.ExitCode())

	after, err := store.Get(ctx, "compute.Network.main")
	require.NoError(t, err)
	assert.NotEqual(t, before.ID, after.ID)
	assert.False(t, prov.Live(before.ID))
	assert.True(t, prov.Live(after.ID))
	assert.Equal(t, "10.9.0.0/16", after.Attributes["cidr"])
}

func TestApply_UpdatePreservesID(t *testing.T) {
	eng, _, store := newTestEngine()
	ctx := context.Background()
	cfg := networkConfig()

	plan, err := eng.Plan(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 0, eng.Apply(ctx, plan).ExitCode())

	before, err := store.Get(ctx, "compute.Subnet.app")
	require.NoError(t, err)

	cfg.Resources[1].Attributes["cidr"] = "10.0.2.0/24"
	plan, err = eng.Plan(ctx, cfg)
	require.NoError(t, err)

	report := eng.Apply(ctx, plan)
	assert.Equal(t, 0, report.ExitCode())

	after, err := store.Get(ctx, "compute.Subnet.app")
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "10.0.2.0/24", after.Attributes["cidr"])
}

func TestApply_CancelledRunSkipsEverything(t *testing.T) {
	eng, prov, _ := newTestEngine()

	plan, err := eng.Plan(context.Background(), networkConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := eng.Apply(ctx, plan)
	_, failed, skipped := report.Counts()
	assert.Zero(t, failed)
	assert.Equal(t, 2, skipped)
	assert.False(t, prov.Live("local-main-1"))
}

func TestApply_BlockedResourcesReportedSkipped(t *testing.T) {
	eng, _, store := newTestEngine()
	ctx := context.Background()
	cfg := networkConfig()

	plan, err := eng.Plan(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, 0, eng.Apply(ctx, plan).ExitCode())

	store.Corrupt("compute.Network.main")

	plan, err = eng.Plan(ctx, cfg)
	require.NoError(t, err)

	report := eng.Apply(ctx, plan)
	assert.Equal(t, 0, report.ExitCode())

	netRes := report.Result("compute.Network.main")
	require.NotNil(t, netRes)
	assert.Equal(t, ir.OutcomeSkipped, netRes.Outcome)
	assert.Contains(t, netRes.SkippedBecause, "corrupt")
}

func TestApply_ProgressEvents(t *testing.T) {
	eng, _, _ := newTestEngine()
	ctx := context.Background()

	plan, err := eng.Plan(ctx, networkConfig())
	require.NoError(t, err)

	var mu sync.Mutex
	var completed int
	report := eng.ApplyWithCallback(ctx, plan, func(event ApplyEvent) {
		mu.Lock()
		defer mu.Unlock()
		if event.Status == "completed" {
			completed++
		}
	})

	assert.Equal(t, 0, report.ExitCode())
	assert.Equal(t, 2, completed)
}

func TestRunReport_Render(t *testing.T) {
	report := NewRunReport()
	report.record(&ir.ApplyResult{Addr: "a.A.ok", Action: ir.ActionCreate, Outcome: ir.OutcomeSuccess})
	report.record(&ir.ApplyResult{Addr: "a.A.bad", Action: ir.ActionCreate, Outcome: ir.OutcomeFailed, Err: "boom"})
	report.record(&ir.ApplyResult{Addr: "a.A.child", Action: ir.ActionCreate, Outcome: ir.OutcomeSkipped, SkippedBecause: "cannot apply because a.A.bad was not applied"})

	assert.Equal(t, 1, report.ExitCode())

	out := report.Render()
	assert.Contains(t, out, "1 succeeded, 1 failed, 1 skipped")
	assert.Contains(t, out, "a.A.bad")
	assert.Contains(t, out, "infrastructure untouched")
}
