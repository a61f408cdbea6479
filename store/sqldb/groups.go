package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agrilink/cig-engine/cig"
	"github.com/shopspring/decimal"
)

// =============================================================================
// GROUP STORE
// =============================================================================

const groupColumns = `id, locality_id, commodity, seq, member_count, created_at`

func scanGroup(row interface{ Scan(...any) error }) (cig.Group, error) {
	var (
		g         cig.Group
		createdAt string
	)
	if err := row.Scan(&g.ID, &g.Key.LocalityID, &g.Key.Commodity, &g.Seq, &g.MemberCount, &createdAt); err != nil {
		return cig.Group{}, err
	}
	g.CreatedAt = parseTime(createdAt)
	return g, nil
}

func collectGroups(rows *sql.Rows) ([]cig.Group, error) {
	defer rows.Close()
	var groups []cig.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// FindGroups lists the groups of key in ascending seq order. Inside a
// transaction on a multi-writer engine it first takes the key's lock.
func (c conn) FindGroups(ctx context.Context, key cig.GroupKey) ([]cig.Group, error) {
	if c.tx != nil && c.dialect.LockKey != nil {
		if err := c.dialect.LockKey(ctx, c.tx, key); err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, c.classify(err))
		}
	}
	rows, err := c.query(ctx,
		`SELECT `+groupColumns+` FROM cig_groups
		 WHERE locality_id = ? AND commodity = ?
		 ORDER BY seq ASC`,
		key.LocalityID, string(key.Commodity))
	if err != nil {
		return nil, c.classify(err)
	}
	return collectGroups(rows)
}

// CountMembers counts linked produce rows. member_count is a cached copy and
// is never trusted for capacity decisions.
func (c conn) CountMembers(ctx context.Context, groupID cig.GroupID) (int, error) {
	var n int
	err := c.queryRow(ctx, `SELECT COUNT(*) FROM produce WHERE group_id = ?`, groupID).Scan(&n)
	return n, c.classify(err)
}

func (c conn) CreateGroup(ctx context.Context, key cig.GroupKey, seq int) (cig.Group, error) {
	g := cig.Group{Key: key, Seq: seq, CreatedAt: parseTime(c.stamp())}
	id, err := c.insert(ctx,
		`INSERT INTO cig_groups (locality_id, commodity, seq, member_count, created_at)
		 VALUES (?, ?, ?, 0, ?) RETURNING id`,
		key.LocalityID, string(key.Commodity), seq, formatTime(g.CreatedAt))
	if err != nil {
		if c.dialect.IsUniqueViolation(err) {
			return cig.Group{}, fmt.Errorf("%s seq %d: %w", key, seq, cig.ErrDuplicateGroup)
		}
		return cig.Group{}, err
	}
	g.ID = cig.GroupID(id)
	return g, nil
}

// LinkRecord claims a slot in the group, then stamps the record. Both writes
// happen in the caller's transaction when there is one.
func (c conn) LinkRecord(ctx context.Context, recordID cig.RecordID, groupID cig.GroupID) error {
	var (
		current sql.NullInt64
		sameKey bool
	)
	err := c.queryRow(ctx,
		`SELECT p.group_id, EXISTS (SELECT 1 FROM cig_groups g
		         WHERE g.id = ? AND g.locality_id = p.locality_id AND g.commodity = p.commodity)
		 FROM produce p WHERE p.id = ?`, groupID, recordID).Scan(&current, &sameKey)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record %d: %w", recordID, cig.ErrNotFound)
	}
	if err != nil {
		return c.classify(err)
	}
	if current.Valid {
		if cig.GroupID(current.Int64) == groupID {
			return nil
		}
		return fmt.Errorf("record %d in group %d: %w", recordID, current.Int64, cig.ErrRecordLinked)
	}
	if !sameKey {
		var exists int
		err := c.queryRow(ctx, `SELECT 1 FROM cig_groups WHERE id = ?`, groupID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("group %d: %w", groupID, cig.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("record %d, group %d: %w", recordID, groupID, cig.ErrKeyMismatch)
	}

	res, err := c.exec(ctx,
		`UPDATE cig_groups
		 SET member_count = (SELECT COUNT(*) FROM produce WHERE group_id = ?) + 1
		 WHERE id = ? AND (SELECT COUNT(*) FROM produce WHERE group_id = ?) < ?`,
		groupID, groupID, groupID, cig.Capacity)
	if err != nil {
		return c.classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := c.queryRow(ctx, `SELECT 1 FROM cig_groups WHERE id = ?`, groupID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("group %d: %w", groupID, cig.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("group %d: %w", groupID, cig.ErrGroupFull)
	}

	// Re-checked in the write so a concurrent farm move cannot slip between.
	res, err = c.exec(ctx,
		`UPDATE produce SET group_id = ?, assigned_at = ?
		 WHERE id = ? AND group_id IS NULL
		   AND EXISTS (SELECT 1 FROM cig_groups g
		               WHERE g.id = ? AND g.locality_id = produce.locality_id
		                 AND g.commodity = produce.commodity)`,
		groupID, c.stamp(), recordID, groupID)
	if err != nil {
		return c.classify(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		err := c.queryRow(ctx, `SELECT group_id FROM produce WHERE id = ?`, recordID).Scan(&current)
		if err != nil {
			return c.notFound(err, "record", int64(recordID))
		}
		if current.Valid {
			return fmt.Errorf("record %d: %w", recordID, cig.ErrRecordLinked)
		}
		return fmt.Errorf("record %d, group %d: %w", recordID, groupID, cig.ErrKeyMismatch)
	}
	return nil
}

// =============================================================================
// CYCLE STORE
// =============================================================================

// ListGroups returns every group ordered by key then seq.
func (c conn) ListGroups(ctx context.Context) ([]cig.Group, error) {
	rows, err := c.query(ctx,
		`SELECT `+groupColumns+` FROM cig_groups ORDER BY locality_id, commodity, seq`)
	if err != nil {
		return nil, err
	}
	return collectGroups(rows)
}

const cycleColumns = `id, group_id, period_start, period_end, total_units, status, closed_at, created_at`

func scanCycle(row interface{ Scan(...any) error }) (cig.Cycle, error) {
	var (
		cy                      cig.Cycle
		start, end, total, stat string
		createdAt               string
		closedAt                sql.NullString
	)
	if err := row.Scan(&cy.ID, &cy.GroupID, &start, &end, &total, &stat, &closedAt, &createdAt); err != nil {
		return cig.Cycle{}, err
	}
	units, err := decimal.NewFromString(total)
	if err != nil {
		return cig.Cycle{}, fmt.Errorf("cycle %s total_units: %w", cy.ID, err)
	}
	cy.Period = cig.Period{Start: parseTime(start), End: parseTime(end)}
	cy.TotalUnits = units
	cy.Status = cig.CycleStatus(stat)
	cy.ClosedAt = parseNullTime(closedAt)
	cy.CreatedAt = parseTime(createdAt)
	return cy, nil
}

// OpenCycle returns the group's open cycle, or nil when it has none.
func (c conn) OpenCycle(ctx context.Context, groupID cig.GroupID) (*cig.Cycle, error) {
	row := c.queryRow(ctx,
		`SELECT `+cycleColumns+` FROM cycles WHERE group_id = ? AND status = ?`,
		groupID, string(cig.CycleOpen))
	cy, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cy, nil
}

// SaveCycle inserts or updates a cycle by ID.
func (c conn) SaveCycle(ctx context.Context, cy cig.Cycle) error {
	var closedAt sql.NullString
	if cy.ClosedAt != nil {
		closedAt = nullString(formatTime(*cy.ClosedAt))
	}
	createdAt := cy.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.now()
	}
	_, err := c.exec(ctx,
		`INSERT INTO cycles (`+cycleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   period_start = excluded.period_start,
		   period_end = excluded.period_end,
		   total_units = excluded.total_units,
		   status = excluded.status,
		   closed_at = excluded.closed_at`,
		cy.ID, cy.GroupID,
		formatTime(cy.Period.Start), formatTime(cy.Period.End),
		cy.TotalUnits.String(), string(cy.Status), closedAt, formatTime(createdAt))
	if err != nil {
		if c.dialect.IsUniqueViolation(err) {
			return fmt.Errorf("group %d already has an open cycle: %w", cy.GroupID, cig.ErrConflict)
		}
		return c.classify(err)
	}
	return nil
}

// SumQuantity totals the quantities of records assigned to the group within
// the half-open period.
func (c conn) SumQuantity(ctx context.Context, groupID cig.GroupID, period cig.Period) (decimal.Decimal, error) {
	rows, err := c.query(ctx,
		`SELECT quantity FROM produce
		 WHERE group_id = ? AND assigned_at >= ? AND assigned_at < ?`,
		groupID, formatTime(period.Start), formatTime(period.End))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		q, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("group %d quantity %q: %w", groupID, raw, err)
		}
		total = total.Add(q)
	}
	return total, rows.Err()
}

// ListCycles returns cycles newest period first. groupID zero lists all groups.
func (c conn) ListCycles(ctx context.Context, groupID cig.GroupID) ([]cig.Cycle, error) {
	q := `SELECT ` + cycleColumns + ` FROM cycles`
	var args []any
	if groupID > 0 {
		q += ` WHERE group_id = ?`
		args = append(args, groupID)
	}
	q += ` ORDER BY period_start DESC, group_id ASC`

	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []cig.Cycle
	for rows.Next() {
		cy, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cy)
	}
	return out, rows.Err()
}
