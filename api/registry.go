package api

import (
	"net/http"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/store/sqldb"
)

// =============================================================================
// COUNTY HANDLERS
// =============================================================================

func (h *Handler) ListCounties(w http.ResponseWriter, r *http.Request) {
	counties, err := h.Store.ListCounties(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list counties", err)
		return
	}
	dtos := make([]CountyDTO, len(counties))
	for i, c := range counties {
		dtos[i] = toCountyDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateCounty(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	name, err := required("name", req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid county", err)
		return
	}
	c, err := h.Store.CreateCounty(r.Context(), name)
	if err != nil {
		h.fail(w, r, "Failed to create county", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCountyDTO(c))
}

func (h *Handler) GetCounty(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid county id", err)
		return
	}
	c, err := h.Store.GetCounty(r.Context(), id)
	if err != nil {
		h.fail(w, r, "County not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toCountyDTO(c))
}

func (h *Handler) UpdateCounty(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid county id", err)
		return
	}
	var req NameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	name, err := required("name", req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid county", err)
		return
	}
	if err := h.Store.RenameCounty(r.Context(), id, name); err != nil {
		h.fail(w, r, "Failed to update county", err)
		return
	}
	c, err := h.Store.GetCounty(r.Context(), id)
	if err != nil {
		h.fail(w, r, "County not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toCountyDTO(c))
}

func (h *Handler) DeleteCounty(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid county id", err)
		return
	}
	if err := h.Store.DeleteCounty(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete county", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// WARD HANDLERS
// =============================================================================

// ListWards returns wards, optionally filtered by county_id.
func (h *Handler) ListWards(w http.ResponseWriter, r *http.Request) {
	countyID, err := queryID(r, "county_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	wards, err := h.Store.ListWards(r.Context(), countyID)
	if err != nil {
		h.fail(w, r, "Failed to list wards", err)
		return
	}
	dtos := make([]WardDTO, len(wards))
	for i, wd := range wards {
		dtos[i] = toWardDTO(wd)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateWard(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	name, err := required("name", req.Name)
	if err != nil || req.CountyID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid ward: name and county_id are required", err)
		return
	}
	wd, err := h.Store.CreateWard(r.Context(), req.CountyID, name)
	if err != nil {
		h.fail(w, r, "Failed to create ward", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWardDTO(wd))
}

func (h *Handler) GetWard(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ward id", err)
		return
	}
	wd, err := h.Store.GetWard(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Ward not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toWardDTO(wd))
}

func (h *Handler) UpdateWard(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ward id", err)
		return
	}
	var req NameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	name, err := required("name", req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ward", err)
		return
	}
	if err := h.Store.RenameWard(r.Context(), id, name); err != nil {
		h.fail(w, r, "Failed to update ward", err)
		return
	}
	wd, err := h.Store.GetWard(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Ward not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toWardDTO(wd))
}

func (h *Handler) DeleteWard(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid ward id", err)
		return
	}
	if err := h.Store.DeleteWard(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete ward", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LOCALITY HANDLERS
// =============================================================================

// ListLocalities returns localities, optionally filtered by ward_id.
func (h *Handler) ListLocalities(w http.ResponseWriter, r *http.Request) {
	wardID, err := queryID(r, "ward_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	locs, err := h.Store.ListLocalities(r.Context(), wardID)
	if err != nil {
		h.fail(w, r, "Failed to list localities", err)
		return
	}
	dtos := make([]LocalityDTO, len(locs))
	for i, l := range locs {
		dtos[i] = toLocalityDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLocality(w http.ResponseWriter, r *http.Request) {
	var req NameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	name, err := required("name", req.Name)
	if err != nil || req.WardID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid locality: name and ward_id are required", err)
		return
	}
	l, err := h.Store.CreateLocality(r.Context(), req.WardID, name)
	if err != nil {
		h.fail(w, r, "Failed to create locality", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLocalityDTO(l))
}

func (h *Handler) GetLocality(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid locality id", err)
		return
	}
	l, err := h.Store.GetLocality(r.Context(), cig.LocalityID(id))
	if err != nil {
		h.fail(w, r, "Locality not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toLocalityDTO(l))
}

func (h *Handler) UpdateLocality(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid locality id", err)
		return
	}
	var req NameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	name, err := required("name", req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid locality", err)
		return
	}
	if err := h.Store.RenameLocality(r.Context(), cig.LocalityID(id), name); err != nil {
		h.fail(w, r, "Failed to update locality", err)
		return
	}
	l, err := h.Store.GetLocality(r.Context(), cig.LocalityID(id))
	if err != nil {
		h.fail(w, r, "Locality not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toLocalityDTO(l))
}

// DeleteLocality removes the locality and its groups. Farms there keep
// existing without a locality.
func (h *Handler) DeleteLocality(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid locality id", err)
		return
	}
	if err := h.Store.DeleteLocality(r.Context(), cig.LocalityID(id)); err != nil {
		h.fail(w, r, "Failed to delete locality", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// FARMER HANDLERS
// =============================================================================

func (h *Handler) ListFarmers(w http.ResponseWriter, r *http.Request) {
	farmers, err := h.Store.ListFarmers(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list farmers", err)
		return
	}
	dtos := make([]FarmerDTO, len(farmers))
	for i, f := range farmers {
		dtos[i] = toFarmerDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateFarmer(w http.ResponseWriter, r *http.Request) {
	var req FarmerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	username, err := required("username", req.Username)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farmer", err)
		return
	}
	f, err := h.Store.CreateFarmer(r.Context(), sqldb.Farmer{
		Username:      username,
		Email:         req.Email,
		ContactNumber: req.ContactNumber,
	})
	if err != nil {
		h.fail(w, r, "Failed to create farmer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFarmerDTO(f))
}

func (h *Handler) GetFarmer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farmer id", err)
		return
	}
	f, err := h.Store.GetFarmer(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Farmer not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerDTO(f))
}

func (h *Handler) UpdateFarmer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farmer id", err)
		return
	}
	var req FarmerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	username, err := required("username", req.Username)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farmer", err)
		return
	}
	f := sqldb.Farmer{ID: id, Username: username, Email: req.Email, ContactNumber: req.ContactNumber}
	if err := h.Store.UpdateFarmer(r.Context(), f); err != nil {
		h.fail(w, r, "Failed to update farmer", err)
		return
	}
	f, err = h.Store.GetFarmer(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Farmer not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmerDTO(f))
}

func (h *Handler) DeleteFarmer(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farmer id", err)
		return
	}
	if err := h.Store.DeleteFarmer(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete farmer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// FARM HANDLERS
// =============================================================================

// ListFarms returns farms, optionally filtered by farmer_id and locality_id.
func (h *Handler) ListFarms(w http.ResponseWriter, r *http.Request) {
	farmerID, err := queryID(r, "farmer_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	localityID, err := queryID(r, "locality_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	farms, err := h.Store.ListFarms(r.Context(), sqldb.FarmFilter{FarmerID: farmerID, LocalityID: cig.LocalityID(localityID)})
	if err != nil {
		h.fail(w, r, "Failed to list farms", err)
		return
	}
	dtos := make([]FarmDTO, len(farms))
	for i, f := range farms {
		dtos[i] = toFarmDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func farmFromRequest(req FarmRequest) (sqldb.Farm, error) {
	name, err := required("name", req.Name)
	if err != nil {
		return sqldb.Farm{}, err
	}
	f := sqldb.Farm{FarmerID: req.FarmerID, Name: name}
	if req.LocalityID != nil {
		id := cig.LocalityID(*req.LocalityID)
		f.LocalityID = &id
	}
	return f, nil
}

func (h *Handler) CreateFarm(w http.ResponseWriter, r *http.Request) {
	var req FarmRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	f, err := farmFromRequest(req)
	if err != nil || f.FarmerID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid farm: name and farmer_id are required", err)
		return
	}
	f, err = h.Store.CreateFarm(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to create farm", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFarmDTO(f))
}

func (h *Handler) GetFarm(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farm id", err)
		return
	}
	f, err := h.Store.GetFarm(r.Context(), cig.FarmID(id))
	if err != nil {
		h.fail(w, r, "Farm not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmDTO(f))
}

// UpdateFarm renames or relocates a farm. Records already assigned keep
// their groups.
func (h *Handler) UpdateFarm(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farm id", err)
		return
	}
	var req FarmRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	f, err := farmFromRequest(req)
	if err != nil || f.FarmerID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid farm: name and farmer_id are required", err)
		return
	}
	f.ID = cig.FarmID(id)
	if err := h.Store.UpdateFarm(r.Context(), f); err != nil {
		h.fail(w, r, "Failed to update farm", err)
		return
	}
	f, err = h.Store.GetFarm(r.Context(), f.ID)
	if err != nil {
		h.fail(w, r, "Farm not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toFarmDTO(f))
}

func (h *Handler) DeleteFarm(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid farm id", err)
		return
	}
	if err := h.Store.DeleteFarm(r.Context(), cig.FarmID(id)); err != nil {
		h.fail(w, r, "Failed to delete farm", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
