package api

import (
	"net/http"
	"strings"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/store/sqldb"
)

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns groups ordered by locality, commodity and seq.
// GET /api/cigs?locality_id=&commodity=
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	localityID, err := queryID(r, "locality_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	views, err := h.Store.ListGroupViews(r.Context(), sqldb.GroupFilter{
		LocalityID: cig.LocalityID(localityID),
		Commodity:  cig.Commodity(strings.TrimSpace(r.URL.Query().Get("commodity"))),
	})
	if err != nil {
		h.fail(w, r, "Failed to list groups", err)
		return
	}
	dtos := make([]GroupDTO, len(views))
	for i, v := range views {
		dtos[i] = toGroupDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group id", err)
		return
	}
	v, err := h.Store.GetGroup(r.Context(), cig.GroupID(id))
	if err != nil {
		h.fail(w, r, "Group not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(v))
}

// GroupMembers returns the records linked to a group.
// GET /api/cigs/{id}/members
func (h *Handler) GroupMembers(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group id", err)
		return
	}
	ctx := r.Context()
	if _, err := h.Store.GetGroup(ctx, cig.GroupID(id)); err != nil {
		h.fail(w, r, "Group not found", err)
		return
	}
	records, err := h.Store.ListProduce(ctx, sqldb.ProduceFilter{GroupID: cig.GroupID(id)})
	if err != nil {
		h.fail(w, r, "Failed to list members", err)
		return
	}
	dtos := make([]ProduceDTO, len(records))
	for i, rec := range records {
		dtos[i] = toProduceDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// GroupCycles returns a group's cycles, newest period first.
// GET /api/cigs/{id}/cycles
func (h *Handler) GroupCycles(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group id", err)
		return
	}
	ctx := r.Context()
	if _, err := h.Store.GetGroup(ctx, cig.GroupID(id)); err != nil {
		h.fail(w, r, "Group not found", err)
		return
	}
	h.writeCycles(w, r, cig.GroupID(id))
}

// ListCycles returns the cycles of every group.
// GET /api/cycles
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	h.writeCycles(w, r, 0)
}

func (h *Handler) writeCycles(w http.ResponseWriter, r *http.Request, groupID cig.GroupID) {
	cycles, err := h.Store.ListCycles(r.Context(), groupID)
	if err != nil {
		h.fail(w, r, "Failed to list cycles", err)
		return
	}
	dtos := make([]CycleDTO, len(cycles))
	for i, c := range cycles {
		dtos[i] = toCycleDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecomputeCycle refreshes the running total of a group's open cycle.
// POST /api/cigs/{id}/cycles/recompute
func (h *Handler) RecomputeCycle(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid group id", err)
		return
	}
	c, err := h.Roller.Recompute(r.Context(), cig.GroupID(id))
	if err != nil {
		h.fail(w, r, "Failed to recompute cycle", err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(c))
}
