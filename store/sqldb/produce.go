package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/agrilink/cig-engine/cig"
	"github.com/shopspring/decimal"
)

// =============================================================================
// PRODUCE
// =============================================================================

// A record's locality is copied from its farm on insert. Pending records
// follow the farm when it moves; linked records keep the locality of their
// group.
const produceSelect = `SELECT p.id, p.farm_id, p.locality_id, p.commodity, p.quantity,
	p.group_id, p.assigned_at, p.created_at
	FROM produce p`

func scanProduce(row interface{ Scan(...any) error }) (cig.ProduceRecord, error) {
	var (
		r          cig.ProduceRecord
		locality   sql.NullInt64
		quantity   string
		group      sql.NullInt64
		assignedAt sql.NullString
		createdAt  string
	)
	if err := row.Scan(&r.ID, &r.FarmID, &locality, &r.Commodity, &quantity, &group, &assignedAt, &createdAt); err != nil {
		return cig.ProduceRecord{}, err
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return cig.ProduceRecord{}, fmt.Errorf("record %d quantity %q: %w", r.ID, quantity, err)
	}
	r.Quantity = q
	if locality.Valid {
		r.LocalityID = cig.LocalityID(locality.Int64)
	}
	if group.Valid {
		id := cig.GroupID(group.Int64)
		r.GroupID = &id
	}
	r.AssignedAt = parseNullTime(assignedAt)
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

// NewProduce is the input for CreateProduce.
type NewProduce struct {
	FarmID    cig.FarmID
	Commodity cig.Commodity
	Quantity  decimal.Decimal
}

// CreateProduce persists an unassigned record in its farm's current
// locality.
func (c conn) CreateProduce(ctx context.Context, in NewProduce) (cig.ProduceRecord, error) {
	commodity := cig.Commodity(strings.TrimSpace(string(in.Commodity)))
	id, err := c.insert(ctx,
		`INSERT INTO produce (farm_id, locality_id, commodity, quantity, created_at)
		 VALUES (?, (SELECT locality_id FROM farms WHERE id = ?), ?, ?, ?) RETURNING id`,
		in.FarmID, in.FarmID, string(commodity), in.Quantity.String(), c.stamp())
	if err != nil {
		return cig.ProduceRecord{}, err
	}
	return c.GetProduce(ctx, cig.RecordID(id))
}

func (c conn) GetProduce(ctx context.Context, id cig.RecordID) (cig.ProduceRecord, error) {
	r, err := scanProduce(c.queryRow(ctx, produceSelect+` WHERE p.id = ?`, id))
	if err != nil {
		return cig.ProduceRecord{}, c.notFound(err, "record", int64(id))
	}
	return r, nil
}

// ProduceFilter narrows ListProduce. Zero fields match everything.
type ProduceFilter struct {
	FarmID     cig.FarmID
	GroupID    cig.GroupID
	LocalityID cig.LocalityID
	Commodity  cig.Commodity
	Unassigned bool
}

func (c conn) ListProduce(ctx context.Context, filter ProduceFilter) ([]cig.ProduceRecord, error) {
	q := produceSelect + ` WHERE 1 = 1`
	var args []any
	if filter.FarmID > 0 {
		q += ` AND p.farm_id = ?`
		args = append(args, filter.FarmID)
	}
	if filter.GroupID > 0 {
		q += ` AND p.group_id = ?`
		args = append(args, filter.GroupID)
	}
	if filter.LocalityID > 0 {
		q += ` AND p.locality_id = ?`
		args = append(args, filter.LocalityID)
	}
	if filter.Commodity != "" {
		q += ` AND p.commodity = ?`
		args = append(args, string(filter.Commodity))
	}
	if filter.Unassigned {
		q += ` AND p.group_id IS NULL`
	}
	rows, err := c.query(ctx, q+` ORDER BY p.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cig.ProduceRecord
	for rows.Next() {
		r, err := scanProduce(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateQuantity corrects a record's quantity. Commodity and farm are fixed
// once the record exists, since they decide its group.
func (c conn) UpdateQuantity(ctx context.Context, id cig.RecordID, q decimal.Decimal) error {
	res, err := c.exec(ctx, `UPDATE produce SET quantity = ? WHERE id = ?`, q.String(), id)
	return c.affectOne(res, err, "record", int64(id))
}

// DeleteProduce removes a record and frees its group slot.
func (c conn) DeleteProduce(ctx context.Context, id cig.RecordID) error {
	res, err := c.exec(ctx, `DELETE FROM produce WHERE id = ?`, id)
	if err := c.affectOne(res, err, "record", int64(id)); err != nil {
		return err
	}
	return c.refreshMemberCounts(ctx)
}

// =============================================================================
// GROUP VIEWS
// =============================================================================

// GroupView is a group joined with its locality name.
type GroupView struct {
	cig.Group
	LocalityName string
}

// DisplayName renders "<Locality>_<Commodity>_CIG_<seq>".
func (v GroupView) DisplayName() string {
	return v.Group.Name(v.LocalityName)
}

// GroupFilter narrows ListGroupViews. Zero fields match everything.
type GroupFilter struct {
	LocalityID cig.LocalityID
	Commodity  cig.Commodity
}

const groupViewSelect = `SELECT g.id, g.locality_id, g.commodity, g.seq, g.member_count, g.created_at, l.name
	FROM cig_groups g JOIN localities l ON l.id = g.locality_id`

func scanGroupView(row interface{ Scan(...any) error }) (GroupView, error) {
	var (
		v  GroupView
		at string
	)
	if err := row.Scan(&v.ID, &v.Key.LocalityID, &v.Key.Commodity, &v.Seq, &v.MemberCount, &at, &v.LocalityName); err != nil {
		return GroupView{}, err
	}
	v.CreatedAt = parseTime(at)
	return v, nil
}

func (c conn) GetGroup(ctx context.Context, id cig.GroupID) (GroupView, error) {
	v, err := scanGroupView(c.queryRow(ctx, groupViewSelect+` WHERE g.id = ?`, id))
	if err != nil {
		return GroupView{}, c.notFound(err, "group", int64(id))
	}
	return v, nil
}

func (c conn) ListGroupViews(ctx context.Context, filter GroupFilter) ([]GroupView, error) {
	q := groupViewSelect + ` WHERE 1 = 1`
	var args []any
	if filter.LocalityID > 0 {
		q += ` AND g.locality_id = ?`
		args = append(args, filter.LocalityID)
	}
	if filter.Commodity != "" {
		q += ` AND g.commodity = ?`
		args = append(args, string(filter.Commodity))
	}
	rows, err := c.query(ctx, q+` ORDER BY g.locality_id, g.commodity, g.seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GroupView
	for rows.Next() {
		v, err := scanGroupView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset deletes every row, children first. Used by tests and the seed command.
func (c conn) Reset(ctx context.Context) error {
	for _, table := range []string{"cycles", "produce", "cig_groups", "farms", "farmers", "localities", "wards", "counties"} {
		if _, err := c.exec(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}
