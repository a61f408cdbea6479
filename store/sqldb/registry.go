package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agrilink/cig-engine/cig"
)

// =============================================================================
// RECORDS
// =============================================================================

type County struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

type Ward struct {
	ID        int64
	CountyID  int64
	Name      string
	CreatedAt time.Time
}

type Locality struct {
	ID        cig.LocalityID
	WardID    int64
	Name      string
	CreatedAt time.Time
}

type Farmer struct {
	ID            int64
	Username      string
	Email         string
	ContactNumber string
	CreatedAt     time.Time
}

// Farm belongs to a farmer. LocalityID is nil once its locality is deleted;
// produce from such a farm cannot be assigned.
type Farm struct {
	ID         cig.FarmID
	FarmerID   int64
	Name       string
	LocalityID *cig.LocalityID
	CreatedAt  time.Time
}

// =============================================================================
// COUNTIES
// =============================================================================

func (c conn) CreateCounty(ctx context.Context, name string) (County, error) {
	now := c.stamp()
	id, err := c.insert(ctx,
		`INSERT INTO counties (name, created_at) VALUES (?, ?) RETURNING id`, name, now)
	if err != nil {
		return County{}, c.uniqueAs(err, "county", name)
	}
	return County{ID: id, Name: name, CreatedAt: parseTime(now)}, nil
}

func (c conn) GetCounty(ctx context.Context, id int64) (County, error) {
	var (
		out County
		at  string
	)
	err := c.queryRow(ctx, `SELECT id, name, created_at FROM counties WHERE id = ?`, id).
		Scan(&out.ID, &out.Name, &at)
	if err != nil {
		return County{}, c.notFound(err, "county", id)
	}
	out.CreatedAt = parseTime(at)
	return out, nil
}

func (c conn) ListCounties(ctx context.Context) ([]County, error) {
	rows, err := c.query(ctx, `SELECT id, name, created_at FROM counties ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []County
	for rows.Next() {
		var (
			cty County
			at  string
		)
		if err := rows.Scan(&cty.ID, &cty.Name, &at); err != nil {
			return nil, err
		}
		cty.CreatedAt = parseTime(at)
		out = append(out, cty)
	}
	return out, rows.Err()
}

func (c conn) RenameCounty(ctx context.Context, id int64, name string) error {
	res, err := c.exec(ctx, `UPDATE counties SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return c.uniqueAs(err, "county", name)
	}
	return c.affectOne(res, nil, "county", id)
}

// DeleteCounty removes the county and, by cascade, its wards, localities and
// their groups. Farms in those localities keep existing without a locality.
func (c conn) DeleteCounty(ctx context.Context, id int64) error {
	res, err := c.exec(ctx, `DELETE FROM counties WHERE id = ?`, id)
	return c.affectOne(res, err, "county", id)
}

// GetOrCreateCounty returns the county named name, creating it if needed.
func (c conn) GetOrCreateCounty(ctx context.Context, name string) (County, bool, error) {
	var id int64
	err := c.queryRow(ctx, `SELECT id FROM counties WHERE name = ?`, name).Scan(&id)
	switch {
	case err == nil:
		cty, err := c.GetCounty(ctx, id)
		return cty, false, err
	case !errors.Is(err, sql.ErrNoRows):
		return County{}, false, err
	}
	cty, err := c.CreateCounty(ctx, name)
	return cty, err == nil, err
}

// =============================================================================
// WARDS
// =============================================================================

func (c conn) CreateWard(ctx context.Context, countyID int64, name string) (Ward, error) {
	now := c.stamp()
	id, err := c.insert(ctx,
		`INSERT INTO wards (county_id, name, created_at) VALUES (?, ?, ?) RETURNING id`,
		countyID, name, now)
	if err != nil {
		return Ward{}, c.uniqueAs(err, "ward", name)
	}
	return Ward{ID: id, CountyID: countyID, Name: name, CreatedAt: parseTime(now)}, nil
}

func (c conn) GetWard(ctx context.Context, id int64) (Ward, error) {
	var (
		w  Ward
		at string
	)
	err := c.queryRow(ctx, `SELECT id, county_id, name, created_at FROM wards WHERE id = ?`, id).
		Scan(&w.ID, &w.CountyID, &w.Name, &at)
	if err != nil {
		return Ward{}, c.notFound(err, "ward", id)
	}
	w.CreatedAt = parseTime(at)
	return w, nil
}

// ListWards lists wards, optionally restricted to one county.
func (c conn) ListWards(ctx context.Context, countyID int64) ([]Ward, error) {
	q := `SELECT id, county_id, name, created_at FROM wards`
	var args []any
	if countyID > 0 {
		q += ` WHERE county_id = ?`
		args = append(args, countyID)
	}
	rows, err := c.query(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ward
	for rows.Next() {
		var (
			w  Ward
			at string
		)
		if err := rows.Scan(&w.ID, &w.CountyID, &w.Name, &at); err != nil {
			return nil, err
		}
		w.CreatedAt = parseTime(at)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (c conn) RenameWard(ctx context.Context, id int64, name string) error {
	res, err := c.exec(ctx, `UPDATE wards SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return c.uniqueAs(err, "ward", name)
	}
	return c.affectOne(res, nil, "ward", id)
}

func (c conn) DeleteWard(ctx context.Context, id int64) error {
	res, err := c.exec(ctx, `DELETE FROM wards WHERE id = ?`, id)
	return c.affectOne(res, err, "ward", id)
}

func (c conn) GetOrCreateWard(ctx context.Context, countyID int64, name string) (Ward, bool, error) {
	var id int64
	err := c.queryRow(ctx, `SELECT id FROM wards WHERE county_id = ? AND name = ?`, countyID, name).Scan(&id)
	switch {
	case err == nil:
		w, err := c.GetWard(ctx, id)
		return w, false, err
	case !errors.Is(err, sql.ErrNoRows):
		return Ward{}, false, err
	}
	w, err := c.CreateWard(ctx, countyID, name)
	return w, err == nil, err
}

// =============================================================================
// LOCALITIES
// =============================================================================

func (c conn) CreateLocality(ctx context.Context, wardID int64, name string) (Locality, error) {
	now := c.stamp()
	id, err := c.insert(ctx,
		`INSERT INTO localities (ward_id, name, created_at) VALUES (?, ?, ?) RETURNING id`,
		wardID, name, now)
	if err != nil {
		return Locality{}, c.uniqueAs(err, "locality", name)
	}
	return Locality{ID: cig.LocalityID(id), WardID: wardID, Name: name, CreatedAt: parseTime(now)}, nil
}

func (c conn) GetLocality(ctx context.Context, id cig.LocalityID) (Locality, error) {
	var (
		l  Locality
		at string
	)
	err := c.queryRow(ctx, `SELECT id, ward_id, name, created_at FROM localities WHERE id = ?`, id).
		Scan(&l.ID, &l.WardID, &l.Name, &at)
	if err != nil {
		return Locality{}, c.notFound(err, "locality", int64(id))
	}
	l.CreatedAt = parseTime(at)
	return l, nil
}

// ListLocalities lists localities, optionally restricted to one ward.
func (c conn) ListLocalities(ctx context.Context, wardID int64) ([]Locality, error) {
	q := `SELECT id, ward_id, name, created_at FROM localities`
	var args []any
	if wardID > 0 {
		q += ` WHERE ward_id = ?`
		args = append(args, wardID)
	}
	rows, err := c.query(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Locality
	for rows.Next() {
		var (
			l  Locality
			at string
		)
		if err := rows.Scan(&l.ID, &l.WardID, &l.Name, &at); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTime(at)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (c conn) RenameLocality(ctx context.Context, id cig.LocalityID, name string) error {
	res, err := c.exec(ctx, `UPDATE localities SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return c.uniqueAs(err, "locality", name)
	}
	return c.affectOne(res, nil, "locality", int64(id))
}

// DeleteLocality removes the locality and its groups. Produce in those groups
// is unlinked and farms located there lose their locality.
func (c conn) DeleteLocality(ctx context.Context, id cig.LocalityID) error {
	res, err := c.exec(ctx, `DELETE FROM localities WHERE id = ?`, id)
	return c.affectOne(res, err, "locality", int64(id))
}

func (c conn) GetOrCreateLocality(ctx context.Context, wardID int64, name string) (Locality, bool, error) {
	var id int64
	err := c.queryRow(ctx, `SELECT id FROM localities WHERE ward_id = ? AND name = ?`, wardID, name).Scan(&id)
	switch {
	case err == nil:
		l, err := c.GetLocality(ctx, cig.LocalityID(id))
		return l, false, err
	case !errors.Is(err, sql.ErrNoRows):
		return Locality{}, false, err
	}
	l, err := c.CreateLocality(ctx, wardID, name)
	return l, err == nil, err
}

// =============================================================================
// FARMERS
// =============================================================================

const farmerColumns = `id, username, email, contact_number, created_at`

func scanFarmer(row interface{ Scan(...any) error }) (Farmer, error) {
	var (
		f            Farmer
		email, phone sql.NullString
		at           string
	)
	if err := row.Scan(&f.ID, &f.Username, &email, &phone, &at); err != nil {
		return Farmer{}, err
	}
	f.Email = email.String
	f.ContactNumber = phone.String
	f.CreatedAt = parseTime(at)
	return f, nil
}

func (c conn) CreateFarmer(ctx context.Context, f Farmer) (Farmer, error) {
	now := c.stamp()
	id, err := c.insert(ctx,
		`INSERT INTO farmers (username, email, contact_number, created_at)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		f.Username, nullString(f.Email), nullString(f.ContactNumber), now)
	if err != nil {
		return Farmer{}, c.uniqueAs(err, "farmer", f.Username)
	}
	f.ID = id
	f.CreatedAt = parseTime(now)
	return f, nil
}

func (c conn) GetFarmer(ctx context.Context, id int64) (Farmer, error) {
	f, err := scanFarmer(c.queryRow(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE id = ?`, id))
	if err != nil {
		return Farmer{}, c.notFound(err, "farmer", id)
	}
	return f, nil
}

func (c conn) GetFarmerByUsername(ctx context.Context, username string) (Farmer, error) {
	f, err := scanFarmer(c.queryRow(ctx, `SELECT `+farmerColumns+` FROM farmers WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return Farmer{}, fmt.Errorf("farmer %q: %w", username, cig.ErrNotFound)
	}
	return f, err
}

func (c conn) ListFarmers(ctx context.Context) ([]Farmer, error) {
	rows, err := c.query(ctx, `SELECT `+farmerColumns+` FROM farmers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Farmer
	for rows.Next() {
		f, err := scanFarmer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (c conn) UpdateFarmer(ctx context.Context, f Farmer) error {
	res, err := c.exec(ctx,
		`UPDATE farmers SET username = ?, email = ?, contact_number = ? WHERE id = ?`,
		f.Username, nullString(f.Email), nullString(f.ContactNumber), f.ID)
	if err != nil {
		return c.uniqueAs(err, "farmer", f.Username)
	}
	return c.affectOne(res, nil, "farmer", f.ID)
}

// DeleteFarmer removes the farmer with their farms and produce.
func (c conn) DeleteFarmer(ctx context.Context, id int64) error {
	res, err := c.exec(ctx, `DELETE FROM farmers WHERE id = ?`, id)
	if err := c.affectOne(res, err, "farmer", id); err != nil {
		return err
	}
	return c.refreshMemberCounts(ctx)
}

// GetOrCreateFarmer returns the farmer with f.Username, creating it from f if needed.
func (c conn) GetOrCreateFarmer(ctx context.Context, f Farmer) (Farmer, bool, error) {
	existing, err := c.GetFarmerByUsername(ctx, f.Username)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, cig.ErrNotFound):
		return Farmer{}, false, err
	}
	created, err := c.CreateFarmer(ctx, f)
	return created, err == nil, err
}

// =============================================================================
// FARMS
// =============================================================================

const farmColumns = `id, farmer_id, name, locality_id, created_at`

func scanFarm(row interface{ Scan(...any) error }) (Farm, error) {
	var (
		f        Farm
		locality sql.NullInt64
		at       string
	)
	if err := row.Scan(&f.ID, &f.FarmerID, &f.Name, &locality, &at); err != nil {
		return Farm{}, err
	}
	if locality.Valid {
		id := cig.LocalityID(locality.Int64)
		f.LocalityID = &id
	}
	f.CreatedAt = parseTime(at)
	return f, nil
}

func localityArg(id *cig.LocalityID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	v := int64(*id)
	return nullInt64(&v)
}

func (c conn) CreateFarm(ctx context.Context, f Farm) (Farm, error) {
	now := c.stamp()
	id, err := c.insert(ctx,
		`INSERT INTO farms (farmer_id, name, locality_id, created_at)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		f.FarmerID, f.Name, localityArg(f.LocalityID), now)
	if err != nil {
		return Farm{}, err
	}
	f.ID = cig.FarmID(id)
	f.CreatedAt = parseTime(now)
	return f, nil
}

func (c conn) GetFarm(ctx context.Context, id cig.FarmID) (Farm, error) {
	f, err := scanFarm(c.queryRow(ctx, `SELECT `+farmColumns+` FROM farms WHERE id = ?`, id))
	if err != nil {
		return Farm{}, c.notFound(err, "farm", int64(id))
	}
	return f, nil
}

// FarmFilter narrows ListFarms. Zero fields match everything.
type FarmFilter struct {
	FarmerID   int64
	LocalityID cig.LocalityID
}

func (c conn) ListFarms(ctx context.Context, filter FarmFilter) ([]Farm, error) {
	q := `SELECT ` + farmColumns + ` FROM farms WHERE 1 = 1`
	var args []any
	if filter.FarmerID > 0 {
		q += ` AND farmer_id = ?`
		args = append(args, filter.FarmerID)
	}
	if filter.LocalityID > 0 {
		q += ` AND locality_id = ?`
		args = append(args, filter.LocalityID)
	}
	rows, err := c.query(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Farm
	for rows.Next() {
		f, err := scanFarm(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFarm renames or relocates a farm. Pending produce moves with the
// farm; produce already linked keeps its group and its locality.
func (s *Store) UpdateFarm(ctx context.Context, f Farm) error {
	return s.inTx(ctx, func(c conn) error {
		res, err := c.exec(ctx,
			`UPDATE farms SET farmer_id = ?, name = ?, locality_id = ? WHERE id = ?`,
			f.FarmerID, f.Name, localityArg(f.LocalityID), f.ID)
		if err := c.affectOne(res, err, "farm", int64(f.ID)); err != nil {
			return err
		}
		_, err = c.exec(ctx,
			`UPDATE produce SET locality_id = ? WHERE farm_id = ? AND group_id IS NULL`,
			localityArg(f.LocalityID), f.ID)
		return err
	})
}

// DeleteFarm removes the farm and its produce.
func (c conn) DeleteFarm(ctx context.Context, id cig.FarmID) error {
	res, err := c.exec(ctx, `DELETE FROM farms WHERE id = ?`, id)
	if err := c.affectOne(res, err, "farm", int64(id)); err != nil {
		return err
	}
	return c.refreshMemberCounts(ctx)
}

// GetOrCreateFarm finds a farm by owner and name, creating it from f if needed.
func (c conn) GetOrCreateFarm(ctx context.Context, f Farm) (Farm, bool, error) {
	existing, err := scanFarm(c.queryRow(ctx,
		`SELECT `+farmColumns+` FROM farms WHERE farmer_id = ? AND name = ?`, f.FarmerID, f.Name))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return Farm{}, false, err
	}
	created, err := c.CreateFarm(ctx, f)
	return created, err == nil, err
}

// =============================================================================
// HELPERS
// =============================================================================

func (c conn) notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, cig.ErrNotFound)
	}
	return err
}

// ErrDuplicate is returned when a name or username is already taken.
var ErrDuplicate = errors.New("already exists")

func (c conn) uniqueAs(err error, what, name string) error {
	if c.dialect.IsUniqueViolation(err) {
		return fmt.Errorf("%s %q: %w", what, name, ErrDuplicate)
	}
	return c.classify(err)
}

// refreshMemberCounts resyncs cached member counts after cascading deletes.
func (c conn) refreshMemberCounts(ctx context.Context) error {
	_, err := c.exec(ctx,
		`UPDATE cig_groups SET member_count =
		   (SELECT COUNT(*) FROM produce p WHERE p.group_id = cig_groups.id)`)
	return err
}
