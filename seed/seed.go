/*
Package seed generates demo data for a county.

PURPOSE:
  Populates the registry with a county, its wards and localities, farmers,
  farms and produce, then assigns the produce to groups. One locality is a
  hotspot with more Maize farms than a single group can hold, so the demo
  always shows a group filling up and a second one opening.

DEFAULTS:
  County:     "Machakos County"
  Wards:      40, named "Ward <w>"
  Localities: 5 per ward, named "Locality <w>-<l>"
  Farms:      10 per locality, 40 in the hotspot (Locality 1-1)
  Produce:    hotspot farms grow Maize plus 0-2 others; every other farm
              grows 1-3 of Maize, Beans, Cabbage, Chicken, Dairy
  Quantity:   10-100 per record

IDEMPOTENCE:
  Geography and farmers are get-or-create by name and username. A farmer
  that already exists gets no new farm or produce, so re-running only fills
  gaps.

ASSIGNMENT:
  Each locality's new produce is assigned with one AssignMany call, retried
  on conflict. Up to Workers localities are written at once; random draws
  are made before any writes so a fixed Rand gives the same data for any
  worker count.

SEE ALSO:
  - store/sqldb: Registry CRUD
  - cig/assigner.go: AssignMany
*/
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/store/sqldb"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultCommodities are the produce types the generator draws from.
var DefaultCommodities = []cig.Commodity{"Maize", "Beans", "Cabbage", "Chicken", "Dairy"}

// Options shapes the generated data.
type Options struct {
	County            string
	Wards             int
	LocalitiesPerWard int
	FarmsPerLocality  int
	HotspotFarms      int
	HotspotCommodity  cig.Commodity
	Commodities       []cig.Commodity
	MinQuantity       int
	MaxQuantity       int
	ConflictRetries   int

	// Workers bounds how many localities are written concurrently.
	Workers int

	// Rand drives every random choice. Nil seeds from the clock.
	Rand *rand.Rand
}

// DefaultOptions mirrors the demo dataset.
func DefaultOptions() Options {
	return Options{
		County:            "Machakos County",
		Wards:             40,
		LocalitiesPerWard: 5,
		FarmsPerLocality:  10,
		HotspotFarms:      40,
		HotspotCommodity:  "Maize",
		Commodities:       DefaultCommodities,
		MinQuantity:       10,
		MaxQuantity:       100,
		ConflictRetries:   3,
		Workers:           1,
	}
}

// Report counts what a run created.
type Report struct {
	County         string `json:"county"`
	Wards          int    `json:"wards"`
	Localities     int    `json:"localities"`
	FarmersCreated int    `json:"farmers_created"`
	FarmsCreated   int    `json:"farms_created"`
	RecordsCreated int    `json:"records_created"`
	GroupsCreated  int    `json:"groups_created"`
}

// Generator writes demo data through the store and the assigner.
type Generator struct {
	store    *sqldb.Store
	assigner *cig.Assigner
	opts     Options
	rng      *rand.Rand
	logger   *zap.Logger
}

// New creates a Generator. Zero-valued options fall back to DefaultOptions.
func New(store *sqldb.Store, assigner *cig.Assigner, opts Options, logger *zap.Logger) *Generator {
	def := DefaultOptions()
	if opts.County == "" {
		opts.County = def.County
	}
	if opts.Wards <= 0 {
		opts.Wards = def.Wards
	}
	if opts.LocalitiesPerWard <= 0 {
		opts.LocalitiesPerWard = def.LocalitiesPerWard
	}
	if opts.FarmsPerLocality <= 0 {
		opts.FarmsPerLocality = def.FarmsPerLocality
	}
	if opts.HotspotFarms <= 0 {
		opts.HotspotFarms = def.HotspotFarms
	}
	if opts.HotspotCommodity == "" {
		opts.HotspotCommodity = def.HotspotCommodity
	}
	if len(opts.Commodities) == 0 {
		opts.Commodities = def.Commodities
	}
	if opts.MinQuantity <= 0 {
		opts.MinQuantity = def.MinQuantity
	}
	if opts.MaxQuantity < opts.MinQuantity {
		opts.MaxQuantity = max(def.MaxQuantity, opts.MinQuantity)
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: store, assigner: assigner, opts: opts, rng: rng, logger: logger}
}

// farmPlan is one farm's pre-drawn produce.
type farmPlan struct {
	commodities []cig.Commodity
	quantities  []int
}

// localityPlan is everything the generator will write for one locality.
type localityPlan struct {
	ward  sqldb.Ward
	w, l  int
	farms []farmPlan
}

// Run generates the dataset.
func (g *Generator) Run(ctx context.Context) (Report, error) {
	rep := Report{County: g.opts.County}
	county, created, err := g.store.GetOrCreateCounty(ctx, g.opts.County)
	if err != nil {
		return rep, fmt.Errorf("county %q: %w", g.opts.County, err)
	}
	if created {
		g.logger.Info("created county", zap.String("county", county.Name))
	}

	// Random draws happen up front so the output does not depend on worker
	// scheduling.
	var plans []localityPlan
	for w := 1; w <= g.opts.Wards; w++ {
		ward, _, err := g.store.GetOrCreateWard(ctx, county.ID, fmt.Sprintf("Ward %d", w))
		if err != nil {
			return rep, fmt.Errorf("ward %d: %w", w, err)
		}
		rep.Wards++
		for l := 1; l <= g.opts.LocalitiesPerWard; l++ {
			plans = append(plans, g.plan(ward, w, l))
		}
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.Workers)
	for _, p := range plans {
		eg.Go(func() error {
			part, err := g.seedLocality(egCtx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			rep.Localities++
			rep.FarmersCreated += part.FarmersCreated
			rep.FarmsCreated += part.FarmsCreated
			rep.RecordsCreated += part.RecordsCreated
			rep.GroupsCreated += part.GroupsCreated
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return rep, err
	}

	g.logger.Info("seed complete",
		zap.String("county", rep.County),
		zap.Int("localities", rep.Localities),
		zap.Int("farms_created", rep.FarmsCreated),
		zap.Int("records_created", rep.RecordsCreated),
		zap.Int("groups_created", rep.GroupsCreated))
	return rep, nil
}

func (g *Generator) plan(ward sqldb.Ward, w, l int) localityPlan {
	hotspot := w == 1 && l == 1
	n := g.opts.FarmsPerLocality
	if hotspot {
		n = g.opts.HotspotFarms
	}
	p := localityPlan{ward: ward, w: w, l: l, farms: make([]farmPlan, n)}
	for i := range p.farms {
		commodities := g.pickCommodities(hotspot)
		quantities := make([]int, len(commodities))
		for j := range quantities {
			quantities[j] = g.quantity()
		}
		p.farms[i] = farmPlan{commodities: commodities, quantities: quantities}
	}
	return p
}

// seedLocality writes one locality's registry rows in a transaction, then
// assigns the new produce with a single AssignMany.
func (g *Generator) seedLocality(ctx context.Context, p localityPlan) (Report, error) {
	var (
		rep     Report
		records []cig.ProduceRecord
	)
	err := g.store.InTx(ctx, func(tx *sqldb.Store) error {
		loc, _, err := tx.GetOrCreateLocality(ctx, p.ward.ID, fmt.Sprintf("Locality %d-%d", p.w, p.l))
		if err != nil {
			return fmt.Errorf("locality %d-%d: %w", p.w, p.l, err)
		}

		for i, fp := range p.farms {
			f := i + 1
			username := fmt.Sprintf("farmer_%d_%d_%d", p.w, p.l, f)
			farmer, created, err := tx.GetOrCreateFarmer(ctx, sqldb.Farmer{
				Username:      username,
				Email:         username + "@example.com",
				ContactNumber: "0712345678",
			})
			if err != nil {
				return fmt.Errorf("farmer %s: %w", username, err)
			}
			if !created {
				continue
			}
			rep.FarmersCreated++

			farm, err := tx.CreateFarm(ctx, sqldb.Farm{
				FarmerID:   farmer.ID,
				Name:       fmt.Sprintf("Farm %d-%d-%d", p.w, p.l, f),
				LocalityID: &loc.ID,
			})
			if err != nil {
				return fmt.Errorf("farm for %s: %w", username, err)
			}
			rep.FarmsCreated++

			for j, commodity := range fp.commodities {
				rec, err := tx.CreateProduce(ctx, sqldb.NewProduce{
					FarmID:    farm.ID,
					Commodity: commodity,
					Quantity:  decimal.NewFromInt(int64(fp.quantities[j])),
				})
				if err != nil {
					return fmt.Errorf("produce for farm %d: %w", farm.ID, err)
				}
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil || len(records) == 0 {
		return rep, err
	}

	var result cig.BatchResult
	err = cig.Retry(ctx, g.opts.ConflictRetries, func() error {
		var err error
		result, err = g.assigner.AssignMany(ctx, records)
		return err
	})
	if err != nil {
		return rep, fmt.Errorf("assign locality %d-%d: %w", p.w, p.l, err)
	}
	rep.RecordsCreated = len(records)
	rep.GroupsCreated = len(result.GroupsCreated)
	g.logger.Debug("seeded locality",
		zap.String("locality", fmt.Sprintf("%d-%d", p.w, p.l)),
		zap.Int("records", len(records)),
		zap.Int("groups_created", len(result.GroupsCreated)))
	return rep, nil
}

// pickCommodities draws a farm's produce types without repeats.
func (g *Generator) pickCommodities(hotspot bool) []cig.Commodity {
	if hotspot {
		others := make([]cig.Commodity, 0, len(g.opts.Commodities))
		for _, c := range g.opts.Commodities {
			if c != g.opts.HotspotCommodity {
				others = append(others, c)
			}
		}
		extra := min(g.rng.Intn(3), len(others))
		return append([]cig.Commodity{g.opts.HotspotCommodity}, g.sample(others, extra)...)
	}
	n := min(1+g.rng.Intn(3), len(g.opts.Commodities))
	return g.sample(g.opts.Commodities, n)
}

func (g *Generator) sample(from []cig.Commodity, k int) []cig.Commodity {
	out := make([]cig.Commodity, 0, k)
	for _, i := range g.rng.Perm(len(from))[:k] {
		out = append(out, from[i])
	}
	return out
}

func (g *Generator) quantity() int {
	return g.opts.MinQuantity + g.rng.Intn(g.opts.MaxQuantity-g.opts.MinQuantity+1)
}
