package cycle_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/cig/store"
	"github.com/agrilink/cig-engine/cycle"
	"github.com/agrilink/cig-engine/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("cycle-%d", n)
	}
}

// assignAt places n Maize records of quantity q into locality 1 at time at.
func assignAt(t *testing.T, mem *store.Memory, at time.Time, n int, q int64) cig.GroupID {
	t.Helper()
	mem.Now = func() time.Time { return at }
	recs := make([]cig.ProduceRecord, n)
	for i := range recs {
		recs[i] = mem.AddRecord(cig.ProduceRecord{
			FarmID: 1, LocalityID: 1, Commodity: "Maize", Quantity: decimal.NewFromInt(q),
		})
	}
	result, err := cig.NewAssigner(mem).AssignMany(context.Background(), recs)
	require.NoError(t, err)
	return result.Assignments[0].GroupID
}

// =============================================================================
// ENSURE CYCLE
// =============================================================================

func TestEnsureCycle_OpensOnce(t *testing.T) {
	// GIVEN: A group with 3 records of 20 units assigned in April
	// WHEN: EnsureCycle is called twice
	// THEN: One open cycle for the long-rains season totals 60
	mem := store.NewMemory()
	gid := assignAt(t, mem, date(2025, 4, 2), 3, 20)
	r := cycle.New(mem, cig.DefaultSeasons, cycle.WithIDs(sequentialIDs()))

	c, created, err := r.EnsureCycle(context.Background(), gid, date(2025, 4, 15))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "cycle-1", c.ID)
	assert.Equal(t, date(2025, 3, 1), c.Period.Start)
	assert.Equal(t, date(2025, 9, 1), c.Period.End)
	assert.True(t, decimal.NewFromInt(60).Equal(c.TotalUnits))

	again, created, err := r.EnsureCycle(context.Background(), gid, date(2025, 5, 1))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)
	assert.Len(t, mem.Cycles(gid), 1)
}

func TestEnsureCycle_UnknownGroup(t *testing.T) {
	mem := store.NewMemory()
	r := cycle.New(mem, cig.DefaultSeasons)

	_, _, err := r.EnsureCycle(context.Background(), 404, date(2025, 4, 1))
	assert.ErrorIs(t, err, cig.ErrNotFound)
}

// =============================================================================
// ROLLOVER
// =============================================================================

func TestRollover_ClosesEndedCycle(t *testing.T) {
	// GIVEN: An open long-rains cycle, with records in both seasons
	// WHEN: Rollover runs in October
	// THEN: The long-rains cycle closes with its own total and a short-rains cycle opens
	mem := store.NewMemory()
	gid := assignAt(t, mem, date(2025, 4, 2), 3, 20)
	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheus(reg, "test")
	r := cycle.New(mem, cig.DefaultSeasons, cycle.WithIDs(sequentialIDs()), cycle.WithMetrics(rec))

	_, _, err := r.EnsureCycle(context.Background(), gid, date(2025, 4, 2))
	require.NoError(t, err)
	assignAt(t, mem, date(2025, 9, 10), 2, 5)

	res, err := r.Rollover(context.Background(), date(2025, 10, 1))
	require.NoError(t, err)
	assert.Equal(t, cycle.Result{Groups: 1, Closed: 1, Opened: 1}, res)

	cycles := mem.Cycles(gid)
	require.Len(t, cycles, 2)
	assert.Equal(t, cig.CycleClosed, cycles[0].Status)
	assert.True(t, decimal.NewFromInt(60).Equal(cycles[0].TotalUnits))
	require.NotNil(t, cycles[0].ClosedAt)
	assert.Equal(t, cig.CycleOpen, cycles[1].Status)
	assert.Equal(t, date(2025, 9, 1), cycles[1].Period.Start)
	assert.True(t, decimal.NewFromInt(10).Equal(cycles[1].TotalUnits))

	n, err := testutil.GatherAndCount(reg, "test_cycle_rollovers_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRollover_ExactBoundaryCloses(t *testing.T) {
	// Periods are half-open: at == End means ended.
	mem := store.NewMemory()
	gid := assignAt(t, mem, date(2025, 4, 2), 1, 1)
	r := cycle.New(mem, cig.DefaultSeasons)
	_, _, err := r.EnsureCycle(context.Background(), gid, date(2025, 4, 2))
	require.NoError(t, err)

	res, err := r.Rollover(context.Background(), date(2025, 8, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)

	res, err = r.Rollover(context.Background(), date(2025, 9, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)
}

func TestRollover_OpensMissingAndSkipsIdleSeasons(t *testing.T) {
	// GIVEN: A group with no cycle, and later a cycle left open for two years
	// THEN: Rollover opens the missing cycle, then jumps to the current season
	mem := store.NewMemory()
	gid := assignAt(t, mem, date(2024, 3, 5), 1, 7)
	r := cycle.New(mem, cig.DefaultSeasons)

	res, err := r.Rollover(context.Background(), date(2024, 3, 6))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Opened)
	assert.Zero(t, res.Closed)

	_, err = r.Rollover(context.Background(), date(2026, 4, 1))
	require.NoError(t, err)

	cycles := mem.Cycles(gid)
	require.Len(t, cycles, 2)
	assert.Equal(t, date(2026, 3, 1), cycles[1].Period.Start)
	assert.True(t, cycles[1].TotalUnits.IsZero())
}

// failingSums fails SumQuantity for one group.
type failingSums struct {
	*store.Memory
	group cig.GroupID
}

var errSum = errors.New("sum unavailable")

func (f failingSums) WithCycleTx(ctx context.Context, fn func(cig.CycleStore) error) error {
	return f.Memory.WithCycleTx(ctx, func(s cig.CycleStore) error {
		return fn(failingView{CycleStore: s, group: f.group})
	})
}

type failingView struct {
	cig.CycleStore
	group cig.GroupID
}

func (v failingView) SumQuantity(ctx context.Context, id cig.GroupID, p cig.Period) (decimal.Decimal, error) {
	if id == v.group {
		return decimal.Zero, errSum
	}
	return v.CycleStore.SumQuantity(ctx, id, p)
}

func TestRollover_OneGroupFailing_OthersProceed(t *testing.T) {
	mem := store.NewMemory()
	mem.Now = func() time.Time { return date(2025, 4, 1) }
	maize := mem.AddRecord(cig.ProduceRecord{LocalityID: 1, Commodity: "Maize", Quantity: decimal.NewFromInt(1)})
	beans := mem.AddRecord(cig.ProduceRecord{LocalityID: 1, Commodity: "Beans", Quantity: decimal.NewFromInt(1)})
	result, err := cig.NewAssigner(mem).AssignMany(context.Background(), []cig.ProduceRecord{maize, beans})
	require.NoError(t, err)

	bad := result.Assignments[0].GroupID
	r := cycle.New(failingSums{Memory: mem, group: bad}, cig.DefaultSeasons)

	res, err := r.Rollover(context.Background(), date(2025, 4, 2))
	assert.ErrorIs(t, err, errSum)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Opened)
	assert.Empty(t, mem.Cycles(bad))
	assert.Len(t, mem.Cycles(result.Assignments[1].GroupID), 1)
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func TestRecompute_RefreshesRunningTotal(t *testing.T) {
	mem := store.NewMemory()
	gid := assignAt(t, mem, date(2025, 4, 2), 2, 10)
	r := cycle.New(mem, cig.DefaultSeasons)
	_, _, err := r.EnsureCycle(context.Background(), gid, date(2025, 4, 2))
	require.NoError(t, err)

	assignAt(t, mem, date(2025, 5, 2), 1, 15)
	c, err := r.Recompute(context.Background(), gid)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(35).Equal(c.TotalUnits), "total=%s", c.TotalUnits)
}

func TestRecompute_NoOpenCycle(t *testing.T) {
	mem := store.NewMemory()
	gid := assignAt(t, mem, date(2025, 4, 2), 1, 10)

	_, err := cycle.New(mem, cig.DefaultSeasons).Recompute(context.Background(), gid)
	assert.ErrorIs(t, err, cig.ErrNotFound)
}
