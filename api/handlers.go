/*
handlers.go - HTTP API handlers for the CIG engine

PURPOSE:
  Exposes the registry, produce assignment, groups and cycles via REST.
  Handles HTTP request/response, JSON serialization, and delegates to the
  store, the assigner and the cycle roller.

ENDPOINTS:
  Registry (registry.go):
    /api/counties, /api/wards, /api/localities, /api/farmers, /api/farms
    GET list, POST create, GET/PUT/DELETE /{id}

  Produce (produce.go):
    GET    /api/produces               List (farm_id, group_id, locality_id, commodity, unassigned)
    POST   /api/produces               Create and assign one record
    POST   /api/produces/bulk          Create and assign many records in one batch
    GET    /api/produces/{id}          Get record
    PUT    /api/produces/{id}          Correct quantity
    DELETE /api/produces/{id}          Delete record, freeing its slot
    POST   /api/produces/{id}/assign   Assign a pending record

  Groups & cycles (groups.go):
    GET    /api/cigs                   List (locality_id, commodity)
    GET    /api/cigs/{id}              Get group
    GET    /api/cigs/{id}/members      Records in the group
    GET    /api/cigs/{id}/cycles       Cycles of the group
    POST   /api/cigs/{id}/cycles/recompute  Refresh the open cycle total
    GET    /api/cycles                 All cycles

  Admin & scenarios (scenarios.go):
    POST   /api/admin/rollover         Run a cycle rollover
    POST   /api/admin/seed             Generate demo data with custom shape
    GET    /api/admin/scheduler        Rollover scheduler status
    GET    /api/scenarios              List demo datasets
    GET    /api/scenarios/current      Last loaded dataset
    POST   /api/scenarios/load         Reset and load a dataset
    POST   /api/scenarios/reset        Delete all data (dev only)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unknown parent rows
  - 404: Resource not found
  - 409: Duplicate names, assignment conflicts that outlived retries
  - 500: Storage failures, capacity integrity violations

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/cycle"
	"github.com/agrilink/cig-engine/store/sqldb"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqldb.Store
	Assigner *cig.Assigner
	Roller   *cycle.Roller
	Logger   *zap.Logger

	// Scheduler is optional; it only feeds the status endpoint.
	Scheduler *RolloverScheduler

	// ConflictRetries bounds re-runs of an assignment that lost a race.
	ConflictRetries int

	// Now is the clock for cycle bookkeeping. Defaults to time.Now.
	Now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler with default retries and clock.
func NewHandler(store *sqldb.Store, assigner *cig.Assigner, roller *cycle.Roller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:           store,
		Assigner:        assigner,
		Roller:          roller,
		Logger:          logger,
		ConflictRetries: 3,
		Now:             time.Now,
	}
}

// Health reports whether the database answers.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Database: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Database: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain and store errors onto HTTP status codes.
func statusFor(err error) int {
	var integrity *cig.DataIntegrityError
	switch {
	case errors.As(err, &integrity):
		return http.StatusInternalServerError
	case cig.IsClientError(err), errors.Is(err, sqldb.ErrInvalidReference):
		return http.StatusBadRequest
	case cig.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, sqldb.ErrDuplicate), cig.IsRetryable(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err with the mapped status, logging server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message,
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)),
			zap.Error(err))
	}
	writeError(w, status, message, err)
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// idParam parses a positive integer URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// queryID parses an optional positive integer query parameter. Absent is zero.
func queryID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// required trims s and rejects an empty value.
func required(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	return s, nil
}
