/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  store records and the cig domain types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

QUANTITIES:
  decimal.Decimal fields are written as JSON strings ("12.5") and accept
  either strings or numbers on input.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go, registry.go, produce.go, groups.go: Use these types
*/
package api

import (
	"time"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/cycle"
	"github.com/agrilink/cig-engine/seed"
	"github.com/agrilink/cig-engine/store/sqldb"
	"github.com/shopspring/decimal"
)

// =============================================================================
// GEOGRAPHY
// =============================================================================

type CountyDTO struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type WardDTO struct {
	ID        int64     `json:"id"`
	CountyID  int64     `json:"county_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type LocalityDTO struct {
	ID        int64     `json:"id"`
	WardID    int64     `json:"ward_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NameRequest creates or renames a county, ward or locality.
type NameRequest struct {
	Name     string `json:"name"`
	CountyID int64  `json:"county_id,omitempty"`
	WardID   int64  `json:"ward_id,omitempty"`
}

func toCountyDTO(c sqldb.County) CountyDTO {
	return CountyDTO{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

func toWardDTO(w sqldb.Ward) WardDTO {
	return WardDTO{ID: w.ID, CountyID: w.CountyID, Name: w.Name, CreatedAt: w.CreatedAt}
}

func toLocalityDTO(l sqldb.Locality) LocalityDTO {
	return LocalityDTO{ID: int64(l.ID), WardID: l.WardID, Name: l.Name, CreatedAt: l.CreatedAt}
}

// =============================================================================
// FARMERS & FARMS
// =============================================================================

type FarmerDTO struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email,omitempty"`
	ContactNumber string    `json:"contact_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type FarmerRequest struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	ContactNumber string `json:"contact_number"`
}

type FarmDTO struct {
	ID         int64     `json:"id"`
	FarmerID   int64     `json:"farmer_id"`
	Name       string    `json:"name"`
	LocalityID *int64    `json:"locality_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type FarmRequest struct {
	FarmerID   int64  `json:"farmer_id"`
	Name       string `json:"name"`
	LocalityID *int64 `json:"locality_id"`
}

func toFarmerDTO(f sqldb.Farmer) FarmerDTO {
	return FarmerDTO{ID: f.ID, Username: f.Username, Email: f.Email, ContactNumber: f.ContactNumber, CreatedAt: f.CreatedAt}
}

func toFarmDTO(f sqldb.Farm) FarmDTO {
	dto := FarmDTO{ID: int64(f.ID), FarmerID: f.FarmerID, Name: f.Name, CreatedAt: f.CreatedAt}
	if f.LocalityID != nil {
		id := int64(*f.LocalityID)
		dto.LocalityID = &id
	}
	return dto
}

// =============================================================================
// PRODUCE
// =============================================================================

type ProduceDTO struct {
	ID         int64           `json:"id"`
	FarmID     int64           `json:"farm_id"`
	LocalityID int64           `json:"locality_id,omitempty"`
	Commodity  string          `json:"commodity"`
	Quantity   decimal.Decimal `json:"quantity"`
	GroupID    *int64          `json:"group_id"`
	AssignedAt *time.Time      `json:"assigned_at"`
	CreatedAt  time.Time       `json:"created_at"`
}

type ProduceRequest struct {
	FarmID    int64           `json:"farm_id"`
	Commodity string          `json:"commodity"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type BulkProduceRequest struct {
	Records []ProduceRequest `json:"records"`
}

type QuantityRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// AssignmentDTO reports where a record was placed.
type AssignmentDTO struct {
	RecordID     int64  `json:"record_id"`
	GroupID      int64  `json:"group_id"`
	Seq          int    `json:"seq"`
	GroupCreated bool   `json:"group_created"`
	GroupName    string `json:"group_name,omitempty"`
}

// AssignedProduceResponse is returned after a single record is created and assigned.
type AssignedProduceResponse struct {
	Produce    ProduceDTO    `json:"produce"`
	Assignment AssignmentDTO `json:"assignment"`
}

// BatchResponse is returned by the bulk endpoint.
type BatchResponse struct {
	BatchID       string          `json:"batch_id"`
	Records       []ProduceDTO    `json:"records"`
	Assignments   []AssignmentDTO `json:"assignments"`
	GroupsCreated int             `json:"groups_created"`
}

func toProduceDTO(r cig.ProduceRecord) ProduceDTO {
	dto := ProduceDTO{
		ID:         int64(r.ID),
		FarmID:     int64(r.FarmID),
		LocalityID: int64(r.LocalityID),
		Commodity:  string(r.Commodity),
		Quantity:   r.Quantity,
		AssignedAt: r.AssignedAt,
		CreatedAt:  r.CreatedAt,
	}
	if r.GroupID != nil {
		id := int64(*r.GroupID)
		dto.GroupID = &id
	}
	return dto
}

func toAssignmentDTO(a cig.Assignment) AssignmentDTO {
	return AssignmentDTO{
		RecordID:     int64(a.RecordID),
		GroupID:      int64(a.GroupID),
		Seq:          a.Seq,
		GroupCreated: a.Created,
	}
}

// =============================================================================
// GROUPS & CYCLES
// =============================================================================

type GroupDTO struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	LocalityID  int64     `json:"locality_id"`
	Locality    string    `json:"locality"`
	Commodity   string    `json:"commodity"`
	Seq         int       `json:"seq"`
	MemberCount int       `json:"member_count"`
	Capacity    int       `json:"capacity"`
	CreatedAt   time.Time `json:"created_at"`
}

func toGroupDTO(v sqldb.GroupView) GroupDTO {
	return GroupDTO{
		ID:          int64(v.ID),
		Name:        v.DisplayName(),
		LocalityID:  int64(v.Key.LocalityID),
		Locality:    v.LocalityName,
		Commodity:   string(v.Key.Commodity),
		Seq:         v.Seq,
		MemberCount: v.MemberCount,
		Capacity:    cig.Capacity,
		CreatedAt:   v.CreatedAt,
	}
}

type CycleDTO struct {
	ID          string          `json:"id"`
	GroupID     int64           `json:"group_id"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	TotalUnits  decimal.Decimal `json:"total_units"`
	Status      string          `json:"status"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
}

func toCycleDTO(c cig.Cycle) CycleDTO {
	return CycleDTO{
		ID:          c.ID,
		GroupID:     int64(c.GroupID),
		PeriodStart: c.Period.Start,
		PeriodEnd:   c.Period.End,
		TotalUnits:  c.TotalUnits,
		Status:      string(c.Status),
		ClosedAt:    c.ClosedAt,
	}
}

// =============================================================================
// ADMIN
// =============================================================================

// RolloverRequest optionally pins the rollover clock. Empty means now.
type RolloverRequest struct {
	At string `json:"at,omitempty"`
}

type RolloverResponse struct {
	At     time.Time    `json:"at"`
	Result cycle.Result `json:"result"`
	Errors []string     `json:"errors,omitempty"`
}

// SeedRequest overrides the demo dataset shape. Zero values use defaults.
type SeedRequest struct {
	Wards             int   `json:"wards"`
	LocalitiesPerWard int   `json:"localities_per_ward"`
	FarmsPerLocality  int   `json:"farms_per_locality"`
	HotspotFarms      int   `json:"hotspot_farms"`
	Seed              int64 `json:"seed"`
	Reset             bool  `json:"reset"`
}

// ScenarioDTO describes a loadable demo dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Seed       int64  `json:"seed,omitempty"`
}

// SeedResponse reports what a seed or scenario load created.
type SeedResponse struct {
	Scenario string        `json:"scenario,omitempty"`
	Report   seed.Report   `json:"report"`
	Rollover *cycle.Result `json:"rollover,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
