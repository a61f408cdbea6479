package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/store/sqldb"
	"go.uber.org/zap"
)

// =============================================================================
// PRODUCE HANDLERS
// =============================================================================

// ListProduce returns records filtered by farm_id, group_id, locality_id,
// commodity and unassigned=true.
func (h *Handler) ListProduce(w http.ResponseWriter, r *http.Request) {
	var filter sqldb.ProduceFilter
	for name, dst := range map[string]*int64{
		"farm_id":     (*int64)(&filter.FarmID),
		"group_id":    (*int64)(&filter.GroupID),
		"locality_id": (*int64)(&filter.LocalityID),
	} {
		id, err := queryID(r, name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid filter", err)
			return
		}
		*dst = id
	}
	filter.Commodity = cig.Commodity(strings.TrimSpace(r.URL.Query().Get("commodity")))
	if raw := r.URL.Query().Get("unassigned"); raw != "" {
		unassigned, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid filter", fmt.Errorf("invalid unassigned %q", raw))
			return
		}
		filter.Unassigned = unassigned
	}

	records, err := h.Store.ListProduce(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to list produce", err)
		return
	}
	dtos := make([]ProduceDTO, len(records))
	for i, rec := range records {
		dtos[i] = toProduceDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetProduce(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid record id", err)
		return
	}
	rec, err := h.Store.GetProduce(r.Context(), cig.RecordID(id))
	if err != nil {
		h.fail(w, r, "Record not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toProduceDTO(rec))
}

// CreateProduce persists a record and assigns it to a group.
// POST /api/produces
func (h *Handler) CreateProduce(w http.ResponseWriter, r *http.Request) {
	var req ProduceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	in, err := validateProduce(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid produce record", err)
		return
	}

	ctx := r.Context()
	var rec cig.ProduceRecord
	err = h.Store.InTx(ctx, func(tx *sqldb.Store) error {
		if err := checkFarmLocated(ctx, tx, in.FarmID); err != nil {
			return err
		}
		var err error
		rec, err = tx.CreateProduce(ctx, in)
		return err
	})
	if err != nil {
		h.fail(w, r, "Failed to create record", err)
		return
	}

	a, err := h.assignOne(ctx, rec)
	if err != nil {
		// The record stays pending and can be assigned later.
		h.fail(w, r, "Record created but not assigned", err)
		return
	}
	h.respondAssigned(w, r, rec.ID, a, http.StatusCreated)
}

// AssignProduce assigns a record that is still pending.
// POST /api/produces/{id}/assign
func (h *Handler) AssignProduce(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid record id", err)
		return
	}
	rec, err := h.Store.GetProduce(r.Context(), cig.RecordID(id))
	if err != nil {
		h.fail(w, r, "Record not found", err)
		return
	}
	a, err := h.assignOne(r.Context(), rec)
	if err != nil {
		h.fail(w, r, "Failed to assign record", err)
		return
	}
	h.respondAssigned(w, r, rec.ID, a, http.StatusOK)
}

// BulkCreateProduce persists many records and assigns them in one batch.
// If the batch cannot be assigned the records are removed again.
// POST /api/produces/bulk
func (h *Handler) BulkCreateProduce(w http.ResponseWriter, r *http.Request) {
	var req BulkProduceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid batch", errors.New("records is empty"))
		return
	}
	inputs := make([]sqldb.NewProduce, len(req.Records))
	for i, item := range req.Records {
		in, err := validateProduce(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid produce record", fmt.Errorf("records[%d]: %w", i, err))
			return
		}
		inputs[i] = in
	}

	ctx := r.Context()
	records := make([]cig.ProduceRecord, 0, len(inputs))
	err := h.Store.InTx(ctx, func(tx *sqldb.Store) error {
		checked := make(map[cig.FarmID]bool)
		for i, in := range inputs {
			if !checked[in.FarmID] {
				if err := checkFarmLocated(ctx, tx, in.FarmID); err != nil {
					return fmt.Errorf("records[%d]: %w", i, err)
				}
				checked[in.FarmID] = true
			}
			rec, err := tx.CreateProduce(ctx, in)
			if err != nil {
				return fmt.Errorf("records[%d]: %w", i, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		h.fail(w, r, "Failed to create records", err)
		return
	}

	var result cig.BatchResult
	err = cig.Retry(ctx, h.ConflictRetries, func() error {
		var err error
		result, err = h.Assigner.AssignMany(ctx, records)
		return err
	})
	if err != nil {
		h.discard(ctx, records)
		h.fail(w, r, "Failed to assign batch", err)
		return
	}

	touched := make(map[cig.GroupID]bool)
	for _, a := range result.Assignments {
		if !touched[a.GroupID] {
			touched[a.GroupID] = true
			h.refreshCycle(ctx, a.GroupID)
		}
	}
	names := h.groupNames(ctx, result.Assignments)
	resp := BatchResponse{
		BatchID:       result.BatchID,
		Records:       make([]ProduceDTO, 0, len(records)),
		Assignments:   make([]AssignmentDTO, len(result.Assignments)),
		GroupsCreated: len(result.GroupsCreated),
	}
	for i, a := range result.Assignments {
		dto := toAssignmentDTO(a)
		dto.GroupName = names[a.GroupID]
		resp.Assignments[i] = dto
	}
	for _, rec := range records {
		fresh, err := h.Store.GetProduce(ctx, rec.ID)
		if err != nil {
			h.fail(w, r, "Failed to load record", err)
			return
		}
		resp.Records = append(resp.Records, toProduceDTO(fresh))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// UpdateProduce corrects a record's quantity. The open cycle of its group
// is recomputed.
// PUT /api/produces/{id}
func (h *Handler) UpdateProduce(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid record id", err)
		return
	}
	var req QuantityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Quantity.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid quantity", errors.New("quantity must not be negative"))
		return
	}

	ctx := r.Context()
	if err := h.Store.UpdateQuantity(ctx, cig.RecordID(id), req.Quantity); err != nil {
		h.fail(w, r, "Failed to update record", err)
		return
	}
	rec, err := h.Store.GetProduce(ctx, cig.RecordID(id))
	if err != nil {
		h.fail(w, r, "Record not found", err)
		return
	}
	if rec.GroupID != nil {
		h.recompute(ctx, *rec.GroupID)
	}
	writeJSON(w, http.StatusOK, toProduceDTO(rec))
}

// DeleteProduce removes a record, freeing its slot in the group.
// DELETE /api/produces/{id}
func (h *Handler) DeleteProduce(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid record id", err)
		return
	}
	ctx := r.Context()
	rec, err := h.Store.GetProduce(ctx, cig.RecordID(id))
	if err != nil {
		h.fail(w, r, "Record not found", err)
		return
	}
	if err := h.Store.DeleteProduce(ctx, rec.ID); err != nil {
		h.fail(w, r, "Failed to delete record", err)
		return
	}
	if rec.GroupID != nil {
		h.recompute(ctx, *rec.GroupID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ASSIGNMENT HELPERS
// =============================================================================

func validateProduce(req ProduceRequest) (sqldb.NewProduce, error) {
	commodity := strings.TrimSpace(req.Commodity)
	switch {
	case req.FarmID <= 0:
		return sqldb.NewProduce{}, errors.New("farm_id is required")
	case commodity == "":
		return sqldb.NewProduce{}, errors.New("commodity is required")
	case req.Quantity.IsNegative():
		return sqldb.NewProduce{}, errors.New("quantity must not be negative")
	}
	return sqldb.NewProduce{
		FarmID:    cig.FarmID(req.FarmID),
		Commodity: cig.Commodity(commodity),
		Quantity:  req.Quantity,
	}, nil
}

// checkFarmLocated rejects farms without a locality before any record is written.
func checkFarmLocated(ctx context.Context, tx *sqldb.Store, id cig.FarmID) error {
	farm, err := tx.GetFarm(ctx, id)
	if err != nil {
		if cig.IsNotFound(err) {
			return fmt.Errorf("%w: farm %d", sqldb.ErrInvalidReference, id)
		}
		return err
	}
	if farm.LocalityID == nil {
		return &cig.PreconditionError{Field: "locality", Reason: fmt.Sprintf("farm %d has no locality", id)}
	}
	return nil
}

func (h *Handler) assignOne(ctx context.Context, rec cig.ProduceRecord) (cig.Assignment, error) {
	var a cig.Assignment
	err := cig.Retry(ctx, h.ConflictRetries, func() error {
		var err error
		a, err = h.Assigner.AssignOne(ctx, rec)
		return err
	})
	if err != nil {
		return cig.Assignment{}, err
	}
	h.refreshCycle(ctx, a.GroupID)
	return a, nil
}

func (h *Handler) respondAssigned(w http.ResponseWriter, r *http.Request, id cig.RecordID, a cig.Assignment, status int) {
	rec, err := h.Store.GetProduce(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to load record", err)
		return
	}
	dto := toAssignmentDTO(a)
	dto.GroupName = h.groupNames(r.Context(), []cig.Assignment{a})[a.GroupID]
	writeJSON(w, status, AssignedProduceResponse{Produce: toProduceDTO(rec), Assignment: dto})
}

// refreshCycle opens the group's cycle if it has none, otherwise refreshes
// its running total. Failures are logged; the next rollover repairs them.
func (h *Handler) refreshCycle(ctx context.Context, groupID cig.GroupID) {
	if h.Roller == nil {
		return
	}
	_, created, err := h.Roller.EnsureCycle(ctx, groupID, h.Now())
	if err != nil {
		h.Logger.Warn("ensure cycle failed", zap.Int64("group_id", int64(groupID)), zap.Error(err))
		return
	}
	if !created {
		h.recompute(ctx, groupID)
	}
}

// recompute refreshes the open cycle total after a quantity change.
func (h *Handler) recompute(ctx context.Context, groupID cig.GroupID) {
	if h.Roller == nil {
		return
	}
	if _, err := h.Roller.Recompute(ctx, groupID); err != nil && !cig.IsNotFound(err) {
		h.Logger.Warn("recompute cycle failed", zap.Int64("group_id", int64(groupID)), zap.Error(err))
	}
}

// groupNames resolves display names for the groups in as.
func (h *Handler) groupNames(ctx context.Context, as []cig.Assignment) map[cig.GroupID]string {
	names := make(map[cig.GroupID]string)
	for _, a := range as {
		if _, ok := names[a.GroupID]; ok {
			continue
		}
		v, err := h.Store.GetGroup(ctx, a.GroupID)
		if err != nil {
			h.Logger.Warn("group lookup failed", zap.Int64("group_id", int64(a.GroupID)), zap.Error(err))
			names[a.GroupID] = ""
			continue
		}
		names[a.GroupID] = v.DisplayName()
	}
	return names
}

// discard removes records whose batch could not be assigned.
func (h *Handler) discard(ctx context.Context, records []cig.ProduceRecord) {
	for _, rec := range records {
		if err := h.Store.DeleteProduce(ctx, rec.ID); err != nil {
			h.Logger.Warn("discard record failed", zap.Int64("record_id", int64(rec.ID)), zap.Error(err))
		}
	}
}
