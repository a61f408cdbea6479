/*
scenarios.go - Demo datasets and admin operations

PURPOSE:
  Loads pre-built datasets that populate the registry and run assignment,
  so the group overflow behaviour can be seen without manual data entry.
  Also exposes the manual cycle rollover and a free-form seed endpoint.

AVAILABLE SCENARIOS:
  machakos-demo:  Full county: 40 wards, 5 localities each, hotspot in 1-1
  hotspot:        One locality with 40 Maize farms (groups of 35 and 5)
  small-county:   3 wards, 2 localities each, 4 farms per locality

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Run the seed generator with the scenario's shape
 3. Run a rollover so every new group has an open cycle

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "hotspot", "seed": 42}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add its options to scenarioOptions

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - seed/seed.go: The generator
  - cycle/roller.go: Rollover
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/agrilink/cig-engine/seed"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "machakos-demo",
		Name:        "Machakos Demo",
		Description: "Full county with 200 localities; Locality 1-1 overflows its Maize group",
	},
	{
		ID:          "hotspot",
		Name:        "Hotspot Locality",
		Description: "One locality with 40 Maize farms, filling one group and opening a second",
	},
	{
		ID:          "small-county",
		Name:        "Small County",
		Description: "Three wards with a few farms each; every group stays under capacity",
	},
}

func scenarioOptions(id string) (seed.Options, bool) {
	opts := seed.DefaultOptions()
	switch id {
	case "machakos-demo":
	case "hotspot":
		opts.Wards = 1
		opts.LocalitiesPerWard = 1
	case "small-county":
		opts.County = "Small County"
		opts.Wards = 3
		opts.LocalitiesPerWard = 2
		opts.FarmsPerLocality = 4
		opts.HotspotFarms = 4
	default:
		return seed.Options{}, false
	}
	return opts, true
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Custom seed"})
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	opts, ok := scenarioOptions(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	if req.Seed != 0 {
		opts.Rand = rand.New(rand.NewSource(req.Seed))
	}
	resp, err := h.seed(ctx, opts)
	if err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	resp.Scenario = req.ScenarioID
	writeJSON(w, http.StatusOK, resp)
}

// ResetDatabase deletes all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// ADMIN
// =============================================================================

// Seed generates demo data with a caller-chosen shape. Existing data is kept
// unless reset is set; farmers that already exist are skipped.
// POST /api/admin/seed
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Wards < 0 || req.LocalitiesPerWard < 0 || req.FarmsPerLocality < 0 || req.HotspotFarms < 0 {
		writeError(w, http.StatusBadRequest, "Invalid seed shape", errors.New("counts must not be negative"))
		return
	}

	ctx := r.Context()
	if req.Reset {
		if err := h.reset(ctx); err != nil {
			h.fail(w, r, "Failed to reset database", err)
			return
		}
	}
	opts := seed.Options{
		Wards:             req.Wards,
		LocalitiesPerWard: req.LocalitiesPerWard,
		FarmsPerLocality:  req.FarmsPerLocality,
		HotspotFarms:      req.HotspotFarms,
	}
	if req.Seed != 0 {
		opts.Rand = rand.New(rand.NewSource(req.Seed))
	}
	resp, err := h.seed(ctx, opts)
	if err != nil {
		h.fail(w, r, "Failed to seed", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = "custom"
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// TriggerRollover closes ended cycles and opens current ones.
// POST /api/admin/rollover {"at": "2026-09-01T00:00:00Z"}
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	at := h.Now()
	if raw := strings.TrimSpace(req.At); raw != "" {
		parsed, err := parseInstant(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid rollover time", err)
			return
		}
		at = parsed
	}

	res, err := h.Roller.Rollover(r.Context(), at)
	resp := RolloverResponse{At: at.UTC(), Result: res}
	if err != nil {
		if res.Groups == 0 {
			h.fail(w, r, "Rollover failed", err)
			return
		}
		// Groups roll independently; report partial failures alongside counts.
		for _, e := range unjoin(err) {
			resp.Errors = append(resp.Errors, e.Error())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	h.Logger.Info("database reset")
	return nil
}

// seed runs the generator, then a rollover so new groups get cycles.
func (h *Handler) seed(ctx context.Context, opts seed.Options) (SeedResponse, error) {
	opts.ConflictRetries = h.ConflictRetries
	rep, err := seed.New(h.Store, h.Assigner, opts, h.Logger).Run(ctx)
	if err != nil {
		return SeedResponse{Report: rep}, err
	}
	resp := SeedResponse{Report: rep}
	if h.Roller != nil {
		res, err := h.Roller.Rollover(ctx, h.Now())
		if err != nil {
			h.Logger.Warn("post-seed rollover incomplete", zap.Error(err))
		}
		resp.Rollover = &res
	}
	return resp, nil
}

// parseInstant accepts RFC 3339 timestamps or plain dates (UTC midnight).
func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 or YYYY-MM-DD, got %q", s)
	}
	return t, nil
}

func unjoin(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
