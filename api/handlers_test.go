/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Registry CRUD and error mapping
- Single and bulk produce assignment through the router
- Cycle bookkeeping after assignment, correction and deletion
- Health and metrics endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/cycle"
	"github.com/agrilink/cig-engine/metrics"
	"github.com/agrilink/cig-engine/store/sqldb"
	"github.com/agrilink/cig-engine/store/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.April, 10, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t        *testing.T
	handler  *Handler
	router   *chi.Mux
	registry *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return testNow }

	store, err := sqlite.New(ctx, ":memory:", sqldb.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheus(reg, "cig")
	assigner := cig.NewAssigner(store, cig.WithMetrics(rec))
	roller := cycle.New(store, cig.DefaultSeasons, cycle.WithMetrics(rec))

	h := NewHandler(store, assigner, roller, nil)
	h.Now = clock
	return &testServer{
		t:        t,
		handler:  h,
		router:   NewRouter(h, RouterOptions{Gatherer: reg}),
		registry: reg,
	}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

// locatedFarm creates county, ward, locality, farmer and farm; returns the farm ID.
func (s *testServer) locatedFarm(locality string) int64 {
	s.t.Helper()
	county := decodeBody[CountyDTO](s.t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/counties", NameRequest{Name: "Machakos " + locality})))
	ward := decodeBody[WardDTO](s.t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/wards", NameRequest{Name: "Ward 1", CountyID: county.ID})))
	loc := decodeBody[LocalityDTO](s.t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/localities", NameRequest{Name: locality, WardID: ward.ID})))
	farmer := decodeBody[FarmerDTO](s.t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/farmers", FarmerRequest{Username: "farmer_" + locality})))
	farm := decodeBody[FarmDTO](s.t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/farms", FarmRequest{FarmerID: farmer.ID, Name: "Farm " + locality, LocalityID: &loc.ID})))
	return farm.ID
}

func (s *testServer) mustStatus(status int, rr *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	s.t.Helper()
	require.Equal(s.t, status, rr.Code, rr.Body.String())
	return rr
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestRegistry_CRUDAndErrorMapping(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: A county
	county := decodeBody[CountyDTO](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/counties", NameRequest{Name: "Machakos County"})))
	assert.Equal(t, "Machakos County", county.Name)

	// WHEN/THEN: Duplicate names conflict, blank names are rejected
	s.mustStatus(http.StatusConflict, s.do("POST", "/api/counties", NameRequest{Name: "Machakos County"}))
	s.mustStatus(http.StatusBadRequest, s.do("POST", "/api/counties", NameRequest{Name: "  "}))

	// Unknown parent is a client error, missing rows are 404, bad ids are 400
	s.mustStatus(http.StatusBadRequest, s.do("POST", "/api/wards", NameRequest{Name: "Ward 1", CountyID: 999}))
	s.mustStatus(http.StatusNotFound, s.do("GET", "/api/counties/999", nil))
	s.mustStatus(http.StatusBadRequest, s.do("GET", "/api/counties/abc", nil))

	// Unknown JSON fields are rejected
	s.mustStatus(http.StatusBadRequest, s.do("POST", "/api/counties", map[string]string{"title": "x"}))

	// Rename and list
	renamed := decodeBody[CountyDTO](t, s.mustStatus(http.StatusOK,
		s.do("PUT", fmt.Sprintf("/api/counties/%d", county.ID), NameRequest{Name: "Kitui County"})))
	assert.Equal(t, "Kitui County", renamed.Name)

	ward := decodeBody[WardDTO](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/wards", NameRequest{Name: "Ward 1", CountyID: county.ID})))
	wards := decodeBody[[]WardDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/wards?county_id=%d", county.ID), nil)))
	require.Len(t, wards, 1)
	assert.Equal(t, ward.ID, wards[0].ID)

	// Deleting the county cascades to its wards
	s.mustStatus(http.StatusNoContent, s.do("DELETE", fmt.Sprintf("/api/counties/%d", county.ID), nil))
	s.mustStatus(http.StatusNotFound, s.do("GET", fmt.Sprintf("/api/wards/%d", ward.ID), nil))
}

func TestFarms_FilterByFarmer(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")

	farm := decodeBody[FarmDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/farms/%d", farmID), nil)))
	require.NotNil(t, farm.LocalityID)

	farms := decodeBody[[]FarmDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/farms?farmer_id=%d", farm.FarmerID), nil)))
	assert.Len(t, farms, 1)

	none := decodeBody[[]FarmDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/farms?farmer_id=%d", farm.FarmerID+100), nil)))
	assert.Empty(t, none)
}

// =============================================================================
// PRODUCE
// =============================================================================

func TestCreateProduce_OverflowOpensSecondGroup(t *testing.T) {
	// GIVEN: A located farm
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")

	// WHEN: 36 Maize records are submitted one at a time
	var last AssignedProduceResponse
	for i := 0; i < cig.Capacity+1; i++ {
		rr := s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{
			FarmID: farmID, Commodity: "Maize", Quantity: decimal.NewFromInt(10),
		}))
		last = decodeBody[AssignedProduceResponse](t, rr)
		if i == 0 {
			assert.True(t, last.Assignment.GroupCreated)
			assert.Equal(t, "Kivaani_Maize_CIG_1", last.Assignment.GroupName)
		}
	}

	// THEN: The 36th opens group 2
	assert.Equal(t, 2, last.Assignment.Seq)
	assert.True(t, last.Assignment.GroupCreated)
	assert.Equal(t, "Kivaani_Maize_CIG_2", last.Assignment.GroupName)
	require.NotNil(t, last.Produce.GroupID)
	assert.Equal(t, last.Assignment.GroupID, *last.Produce.GroupID)

	groups := decodeBody[[]GroupDTO](t, s.mustStatus(http.StatusOK, s.do("GET", "/api/cigs?commodity=Maize", nil)))
	require.Len(t, groups, 2)
	assert.Equal(t, cig.Capacity, groups[0].MemberCount)
	assert.Equal(t, 1, groups[1].MemberCount)
	assert.Equal(t, cig.Capacity, groups[0].Capacity)

	// The first group's open cycle tracks every assigned record
	cycles := decodeBody[[]CycleDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/cigs/%d/cycles", groups[0].ID), nil)))
	require.Len(t, cycles, 1)
	assert.Equal(t, "open", cycles[0].Status)
	assert.True(t, decimal.NewFromInt(350).Equal(cycles[0].TotalUnits), cycles[0].TotalUnits.String())
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), cycles[0].PeriodStart)
}

func TestCreateProduce_FarmWithoutLocality(t *testing.T) {
	s := newTestServer(t)
	farmer := decodeBody[FarmerDTO](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/farmers", FarmerRequest{Username: "nomad"})))
	farm := decodeBody[FarmDTO](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/farms", FarmRequest{FarmerID: farmer.ID, Name: "Roaming"})))

	rr := s.do("POST", "/api/produces", ProduceRequest{FarmID: farm.ID, Commodity: "Maize", Quantity: decimal.NewFromInt(5)})
	s.mustStatus(http.StatusBadRequest, rr)
	assert.Contains(t, decodeBody[ErrorResponse](t, rr).Details, "locality")

	records := decodeBody[[]ProduceDTO](t, s.mustStatus(http.StatusOK, s.do("GET", "/api/produces", nil)))
	assert.Empty(t, records)
}

func TestCreateProduce_Validation(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")

	tests := []struct {
		name string
		req  ProduceRequest
		want int
	}{
		{"blank commodity", ProduceRequest{FarmID: farmID, Commodity: " ", Quantity: decimal.NewFromInt(1)}, http.StatusBadRequest},
		{"negative quantity", ProduceRequest{FarmID: farmID, Commodity: "Beans", Quantity: decimal.NewFromInt(-1)}, http.StatusBadRequest},
		{"missing farm", ProduceRequest{Commodity: "Beans", Quantity: decimal.NewFromInt(1)}, http.StatusBadRequest},
		{"unknown farm", ProduceRequest{FarmID: farmID + 50, Commodity: "Beans", Quantity: decimal.NewFromInt(1)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.mustStatus(tt.want, s.do("POST", "/api/produces", tt.req))
		})
	}
}

func TestBulkCreateProduce_AssignsInOneBatch(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")

	req := BulkProduceRequest{}
	for i := 0; i < 40; i++ {
		req.Records = append(req.Records, ProduceRequest{FarmID: farmID, Commodity: "Maize", Quantity: decimal.NewFromInt(2)})
	}
	req.Records = append(req.Records, ProduceRequest{FarmID: farmID, Commodity: "Dairy", Quantity: decimal.NewFromInt(7)})

	resp := decodeBody[BatchResponse](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces/bulk", req)))
	assert.NotEmpty(t, resp.BatchID)
	require.Len(t, resp.Assignments, 41)
	require.Len(t, resp.Records, 41)
	assert.Equal(t, 3, resp.GroupsCreated)
	assert.Equal(t, 1, resp.Assignments[cig.Capacity-1].Seq)
	assert.Equal(t, 2, resp.Assignments[cig.Capacity].Seq)
	assert.Equal(t, "Kivaani_Maize_CIG_2", resp.Assignments[cig.Capacity].GroupName)
	assert.Equal(t, "Kivaani_Dairy_CIG_1", resp.Assignments[40].GroupName)
	for _, rec := range resp.Records {
		assert.NotNil(t, rec.GroupID)
	}

	// Every touched group has an open cycle
	cycles := decodeBody[[]CycleDTO](t, s.mustStatus(http.StatusOK, s.do("GET", "/api/cycles", nil)))
	assert.Len(t, cycles, 3)
}

func TestBulkCreateProduce_RejectsWholeBatch(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")

	s.mustStatus(http.StatusBadRequest, s.do("POST", "/api/produces/bulk", BulkProduceRequest{}))

	rr := s.do("POST", "/api/produces/bulk", BulkProduceRequest{Records: []ProduceRequest{
		{FarmID: farmID, Commodity: "Maize", Quantity: decimal.NewFromInt(1)},
		{FarmID: farmID + 99, Commodity: "Maize", Quantity: decimal.NewFromInt(1)},
	}})
	s.mustStatus(http.StatusBadRequest, rr)
	assert.Contains(t, decodeBody[ErrorResponse](t, rr).Details, "records[1]")

	records := decodeBody[[]ProduceDTO](t, s.mustStatus(http.StatusOK, s.do("GET", "/api/produces", nil)))
	assert.Empty(t, records)
}

func TestDeleteProduce_FreesSlotAndRecomputes(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")

	var first AssignedProduceResponse
	for i := 0; i < cig.Capacity; i++ {
		rr := s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{
			FarmID: farmID, Commodity: "Beans", Quantity: decimal.NewFromInt(4),
		}))
		if i == 0 {
			first = decodeBody[AssignedProduceResponse](t, rr)
		}
	}

	// WHEN: One member is removed
	s.mustStatus(http.StatusNoContent, s.do("DELETE", fmt.Sprintf("/api/produces/%d", first.Produce.ID), nil))
	s.mustStatus(http.StatusNotFound, s.do("GET", fmt.Sprintf("/api/produces/%d", first.Produce.ID), nil))

	// THEN: The next record reuses group 1 and the cycle total drops
	next := decodeBody[AssignedProduceResponse](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{
		FarmID: farmID, Commodity: "Beans", Quantity: decimal.NewFromInt(1),
	})))
	assert.Equal(t, 1, next.Assignment.Seq)
	assert.False(t, next.Assignment.GroupCreated)

	members := decodeBody[[]ProduceDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/cigs/%d/members", next.Assignment.GroupID), nil)))
	assert.Len(t, members, cig.Capacity)

	cycles := decodeBody[[]CycleDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/cigs/%d/cycles", next.Assignment.GroupID), nil)))
	require.Len(t, cycles, 1)
	assert.True(t, decimal.NewFromInt(34*4+1).Equal(cycles[0].TotalUnits), cycles[0].TotalUnits.String())
}

func TestUpdateProduce_CorrectsQuantity(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")

	created := decodeBody[AssignedProduceResponse](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{
		FarmID: farmID, Commodity: "Chicken", Quantity: decimal.NewFromInt(10),
	})))

	updated := decodeBody[ProduceDTO](t, s.mustStatus(http.StatusOK, s.do("PUT",
		fmt.Sprintf("/api/produces/%d", created.Produce.ID), QuantityRequest{Quantity: decimal.RequireFromString("12.5")})))
	assert.Equal(t, "12.5", updated.Quantity.String())
	assert.Equal(t, created.Assignment.GroupID, *updated.GroupID)

	cycles := decodeBody[[]CycleDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/cigs/%d/cycles", created.Assignment.GroupID), nil)))
	require.Len(t, cycles, 1)
	assert.Equal(t, "12.5", cycles[0].TotalUnits.String())

	s.mustStatus(http.StatusNotFound, s.do("PUT", "/api/produces/9999", QuantityRequest{Quantity: decimal.NewFromInt(1)}))
}

func TestAssignProduce_AlreadyAssigned(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")

	created := decodeBody[AssignedProduceResponse](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{
		FarmID: farmID, Commodity: "Maize", Quantity: decimal.NewFromInt(1),
	})))
	s.mustStatus(http.StatusBadRequest, s.do("POST", fmt.Sprintf("/api/produces/%d/assign", created.Produce.ID), nil))
	s.mustStatus(http.StatusNotFound, s.do("POST", "/api/produces/9999/assign", nil))
}

func TestListProduce_Filters(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")
	for _, c := range []string{"Maize", "Beans", "Maize"} {
		s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{FarmID: farmID, Commodity: c, Quantity: decimal.NewFromInt(1)}))
	}

	maize := decodeBody[[]ProduceDTO](t, s.mustStatus(http.StatusOK, s.do("GET", "/api/produces?commodity=Maize", nil)))
	assert.Len(t, maize, 2)

	pending := decodeBody[[]ProduceDTO](t, s.mustStatus(http.StatusOK, s.do("GET", "/api/produces?unassigned=true", nil)))
	assert.Empty(t, pending)

	s.mustStatus(http.StatusBadRequest, s.do("GET", "/api/produces?unassigned=maybe", nil))
	s.mustStatus(http.StatusBadRequest, s.do("GET", "/api/produces?farm_id=-1", nil))
}

// =============================================================================
// CYCLES & ADMIN
// =============================================================================

func TestTriggerRollover_ClosesEndedSeason(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")
	created := decodeBody[AssignedProduceResponse](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{
		FarmID: farmID, Commodity: "Maize", Quantity: decimal.NewFromInt(30),
	})))

	// Before the season ends nothing changes
	early := decodeBody[RolloverResponse](t, s.mustStatus(http.StatusOK, s.do("POST", "/api/admin/rollover", nil)))
	assert.Equal(t, cycle.Result{Groups: 1, Unchanged: 1}, early.Result)

	// At the boundary the long-rains cycle closes and short rains opens
	resp := decodeBody[RolloverResponse](t, s.mustStatus(http.StatusOK, s.do("POST", "/api/admin/rollover", RolloverRequest{At: "2026-09-01"})))
	assert.Equal(t, cycle.Result{Groups: 1, Closed: 1, Opened: 1}, resp.Result)
	assert.Empty(t, resp.Errors)

	cycles := decodeBody[[]CycleDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/cigs/%d/cycles", created.Assignment.GroupID), nil)))
	require.Len(t, cycles, 2)
	assert.Equal(t, "open", cycles[0].Status)
	assert.Equal(t, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), cycles[0].PeriodStart)
	assert.Equal(t, "closed", cycles[1].Status)
	assert.Equal(t, "30", cycles[1].TotalUnits.String())

	s.mustStatus(http.StatusBadRequest, s.do("POST", "/api/admin/rollover", RolloverRequest{At: "next tuesday"}))
}

func TestRecomputeCycle_NoOpenCycle(t *testing.T) {
	s := newTestServer(t)
	s.mustStatus(http.StatusNotFound, s.do("POST", "/api/cigs/42/cycles/recompute", nil))
	s.mustStatus(http.StatusNotFound, s.do("GET", "/api/cigs/42/cycles", nil))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")
	s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{FarmID: farmID, Commodity: "Maize", Quantity: decimal.NewFromInt(1)}))

	health := decodeBody[HealthResponse](t, s.mustStatus(http.StatusOK, s.do("GET", "/healthz", nil)))
	assert.Equal(t, "ok", health.Status)

	rr := s.mustStatus(http.StatusOK, s.do("GET", "/metrics", nil))
	assert.Contains(t, rr.Body.String(), "cig_assign_groups_created_total 1")
	assert.Contains(t, rr.Body.String(), `cig_assign_records_total{path="single"} 1`)
}

func TestRequestID_Echoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/counties", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestFarmMove_AssignedProduceStaysInItsGroup(t *testing.T) {
	// GIVEN: A farm in Kivaani with 3 assigned Maize records
	s := newTestServer(t)
	farmID := s.locatedFarm("Kivaani")
	for i := 0; i < 3; i++ {
		s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{
			FarmID: farmID, Commodity: "Maize", Quantity: decimal.NewFromInt(10),
		}))
	}
	farm := decodeBody[FarmDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/farms/%d", farmID), nil)))
	require.NotNil(t, farm.LocalityID)
	oldLoc := decodeBody[LocalityDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/localities/%d", *farm.LocalityID), nil)))

	// WHEN: The farm moves to Kithimani
	newLoc := decodeBody[LocalityDTO](t, s.mustStatus(http.StatusCreated,
		s.do("POST", "/api/localities", NameRequest{Name: "Kithimani", WardID: oldLoc.WardID})))
	s.mustStatus(http.StatusOK, s.do("PUT", fmt.Sprintf("/api/farms/%d", farmID), FarmRequest{
		FarmerID: farm.FarmerID, Name: farm.Name, LocalityID: &newLoc.ID,
	}))

	// THEN: Every assigned record keeps the key of its group
	records := decodeBody[[]ProduceDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/produces?farm_id=%d", farmID), nil)))
	require.Len(t, records, 3)
	for _, rec := range records {
		require.NotNil(t, rec.GroupID)
		g := decodeBody[GroupDTO](t, s.mustStatus(http.StatusOK, s.do("GET", fmt.Sprintf("/api/cigs/%d", *rec.GroupID), nil)))
		assert.Equal(t, g.LocalityID, rec.LocalityID)
		assert.Equal(t, oldLoc.ID, rec.LocalityID)
	}

	// AND: New produce joins a group in the new locality
	resp := decodeBody[AssignedProduceResponse](t, s.mustStatus(http.StatusCreated, s.do("POST", "/api/produces", ProduceRequest{
		FarmID: farmID, Commodity: "Maize", Quantity: decimal.NewFromInt(4),
	})))
	assert.Equal(t, newLoc.ID, resp.Produce.LocalityID)
	assert.Equal(t, "Kithimani_Maize_CIG_1", resp.Assignment.GroupName)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"precondition", &cig.PreconditionError{Field: "locality"}, http.StatusBadRequest},
		{"invalid reference", fmt.Errorf("farm: %w", sqldb.ErrInvalidReference), http.StatusBadRequest},
		{"not found", fmt.Errorf("record 1: %w", cig.ErrNotFound), http.StatusNotFound},
		{"duplicate", fmt.Errorf("county: %w", sqldb.ErrDuplicate), http.StatusConflict},
		{"conflict", &cig.ConflictError{Err: cig.ErrGroupFull}, http.StatusConflict},
		{"record linked", &cig.PreconditionError{Field: "group", Err: cig.ErrRecordLinked}, http.StatusBadRequest},
		{"integrity", &cig.DataIntegrityError{Count: 36}, http.StatusInternalServerError},
		{"storage", &cig.StorageError{Err: errors.New("disk full")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
