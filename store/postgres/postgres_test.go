package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/store/postgres"
	"github.com/agrilink/cig-engine/store/sqldb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"WHERE a = ? AND b = ?", "WHERE a = $1 AND b = $2"},
		{"WHERE a = '?' AND b = ?", "WHERE a = '?' AND b = $1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, postgres.Rebind(tt.in))
	}
}

// newTestStore connects to CIG_POSTGRES_DSN and empties the database.
func newTestStore(t *testing.T) *sqldb.Store {
	t.Helper()
	dsn := os.Getenv("CIG_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CIG_POSTGRES_DSN not set")
	}
	store, err := postgres.New(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, store.Reset(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgres_ConcurrentBatchesRespectCapacity(t *testing.T) {
	// GIVEN: 8 batches of 23 Maize records for one locality
	// WHEN: Assigned concurrently
	// THEN: The advisory lock serializes them into 35-record groups
	store := newTestStore(t)
	ctx := context.Background()

	county, err := store.CreateCounty(ctx, "Machakos")
	require.NoError(t, err)
	ward, err := store.CreateWard(ctx, county.ID, "Mwala")
	require.NoError(t, err)
	loc, err := store.CreateLocality(ctx, ward.ID, "Kibauni")
	require.NoError(t, err)
	farmer, err := store.CreateFarmer(ctx, sqldb.Farmer{Username: "wanjiru"})
	require.NoError(t, err)
	farm, err := store.CreateFarm(ctx, sqldb.Farm{FarmerID: farmer.ID, Name: "Plot", LocalityID: &loc.ID})
	require.NoError(t, err)

	batches := make([][]cig.ProduceRecord, 8)
	for b := range batches {
		for i := 0; i < 23; i++ {
			rec, err := store.CreateProduce(ctx, sqldb.NewProduce{FarmID: farm.ID, Commodity: "Maize", Quantity: decimal.NewFromInt(5)})
			require.NoError(t, err)
			batches[b] = append(batches[b], rec)
		}
	}

	assigner := cig.NewAssigner(store)
	var wg sync.WaitGroup
	errs := make([]error, len(batches))
	for b := range batches {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			_, errs[b] = assigner.AssignMany(ctx, batches[b])
		}(b)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	groups, err := store.FindGroups(ctx, cig.GroupKey{LocalityID: loc.ID, Commodity: "Maize"})
	require.NoError(t, err)
	require.Len(t, groups, 6)
	total := 0
	for i, g := range groups {
		assert.Equal(t, i+1, g.Seq)
		assert.LessOrEqual(t, g.MemberCount, cig.Capacity)
		total += g.MemberCount
	}
	assert.Equal(t, 8*23, total)
}

func TestPostgres_DuplicateSeqIsConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	county, err := store.CreateCounty(ctx, "Kitui")
	require.NoError(t, err)
	ward, err := store.CreateWard(ctx, county.ID, "Mutomo")
	require.NoError(t, err)
	loc, err := store.CreateLocality(ctx, ward.ID, "Ikutha")
	require.NoError(t, err)

	key := cig.GroupKey{LocalityID: loc.ID, Commodity: "Beans"}
	_, err = store.CreateGroup(ctx, key, 1)
	require.NoError(t, err)
	_, err = store.CreateGroup(ctx, key, 1)
	assert.ErrorIs(t, err, cig.ErrDuplicateGroup)
}

func TestPostgres_OppositeKeyOrderDoesNotDeadlock(t *testing.T) {
	// GIVEN: Two batches over the same two keys, listed in opposite order
	// WHEN: Assigned concurrently, many times over
	// THEN: Both succeed; keys are locked in one order whatever the input order
	store := newTestStore(t)
	ctx := context.Background()

	county, err := store.CreateCounty(ctx, "Machakos")
	require.NoError(t, err)
	ward, err := store.CreateWard(ctx, county.ID, "Mwala")
	require.NoError(t, err)
	loc, err := store.CreateLocality(ctx, ward.ID, "Kibauni")
	require.NoError(t, err)
	farmer, err := store.CreateFarmer(ctx, sqldb.Farmer{Username: "otieno"})
	require.NoError(t, err)
	farm, err := store.CreateFarm(ctx, sqldb.Farm{FarmerID: farmer.ID, Name: "Plot", LocalityID: &loc.ID})
	require.NoError(t, err)

	add := func(commodity cig.Commodity) cig.ProduceRecord {
		rec, err := store.CreateProduce(ctx, sqldb.NewProduce{FarmID: farm.ID, Commodity: commodity, Quantity: decimal.NewFromInt(1)})
		require.NoError(t, err)
		return rec
	}

	assigner := cig.NewAssigner(store)
	for round := 0; round < 10; round++ {
		ab := []cig.ProduceRecord{add("Maize"), add("Beans")}
		ba := []cig.ProduceRecord{add("Beans"), add("Maize")}

		var eg errgroup.Group
		eg.Go(func() error { _, err := assigner.AssignMany(ctx, ab); return err })
		eg.Go(func() error { _, err := assigner.AssignMany(ctx, ba); return err })
		require.NoError(t, eg.Wait(), "round %d", round)
	}

	unassigned, err := store.ListProduce(ctx, sqldb.ProduceFilter{Unassigned: true})
	require.NoError(t, err)
	assert.Empty(t, unassigned)
}
