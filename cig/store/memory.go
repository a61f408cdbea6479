// Package store provides an in-memory implementation of the cig store contracts.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agrilink/cig-engine/cig"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Op names a store operation for call counting and fault injection.
type Op string

const (
	OpFindGroups   Op = "find_groups"
	OpCountMembers Op = "count_members"
	OpCreateGroup  Op = "create_group"
	OpLinkRecord   Op = "link_record"
)

// Calls counts store operations since creation or the last ResetCalls.
type Calls struct {
	FindGroups   int
	CountMembers int
	CreateGroup  int
	LinkRecord   int
}

type fault struct {
	after int
	err   error
}

// Memory implements cig.TxGroupStore and cig.TxCycleStore.
// WithTx holds the store lock for the whole unit of work, so transactions
// are fully serialized.
type Memory struct {
	mu sync.Mutex

	groups  map[cig.GroupID]cig.Group
	byKey   map[cig.GroupKey][]cig.GroupID
	records map[cig.RecordID]cig.ProduceRecord
	cycles  map[string]cig.Cycle
	nextGID cig.GroupID
	nextRID cig.RecordID

	calls  Calls
	faults map[Op]fault

	// Now stamps links and new groups. Defaults to time.Now.
	Now func() time.Time
}

var (
	_ cig.TxGroupStore = (*Memory)(nil)
	_ cig.TxCycleStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		groups:  make(map[cig.GroupID]cig.Group),
		byKey:   make(map[cig.GroupKey][]cig.GroupID),
		records: make(map[cig.RecordID]cig.ProduceRecord),
		cycles:  make(map[string]cig.Cycle),
		faults:  make(map[Op]fault),
		Now:     time.Now,
	}
}

// =============================================================================
// TEST HELPERS
// =============================================================================

// AddRecord stores a produce record, assigning an ID when it has none.
func (m *Memory) AddRecord(rec cig.ProduceRecord) cig.ProduceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == 0 {
		m.nextRID++
		rec.ID = m.nextRID
	} else if rec.ID > m.nextRID {
		m.nextRID = rec.ID
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.Now().UTC()
	}
	m.records[rec.ID] = rec
	return rec
}

// Record returns the stored copy of a record.
func (m *Memory) Record(id cig.RecordID) (cig.ProduceRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec, ok
}

// Groups returns the groups of key in ascending Seq order.
func (m *Memory) Groups(key cig.GroupKey) []cig.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(key)
}

// SetMemberCount overwrites a group's stored count, bypassing the capacity guard.
func (m *Memory) SetMemberCount(id cig.GroupID, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.groups[id]
	g.MemberCount = n
	m.groups[id] = g
}

// Calls returns the operation counters.
func (m *Memory) Calls() Calls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = Calls{}
}

// FailOn makes op return err once it has succeeded `after` times.
// A nil err clears the fault.
func (m *Memory) FailOn(op Op, after int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = fault{after: after, err: err}
}

func (m *Memory) injected(op Op, count int) error {
	f, ok := m.faults[op]
	if ok && count > f.after {
		return f.err
	}
	return nil
}

// =============================================================================
// GROUP STORE (cig.GroupStore interface)
// =============================================================================

func (m *Memory) FindGroups(ctx context.Context, key cig.GroupKey) ([]cig.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findGroupsLocked(ctx, key)
}

func (m *Memory) CountMembers(ctx context.Context, id cig.GroupID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(ctx, id)
}

func (m *Memory) CreateGroup(ctx context.Context, key cig.GroupKey, seq int) (cig.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(ctx, key, seq)
}

func (m *Memory) LinkRecord(ctx context.Context, recordID cig.RecordID, groupID cig.GroupID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.linkLocked(ctx, recordID, groupID)
}

func (m *Memory) findGroupsLocked(ctx context.Context, key cig.GroupKey) ([]cig.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.FindGroups++
	if err := m.injected(OpFindGroups, m.calls.FindGroups); err != nil {
		return nil, err
	}
	return m.findLocked(key), nil
}

func (m *Memory) findLocked(key cig.GroupKey) []cig.Group {
	ids := m.byKey[key]
	result := make([]cig.Group, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.groups[id])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result
}

func (m *Memory) countLocked(ctx context.Context, id cig.GroupID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.calls.CountMembers++
	if err := m.injected(OpCountMembers, m.calls.CountMembers); err != nil {
		return 0, err
	}
	g, ok := m.groups[id]
	if !ok {
		return 0, fmt.Errorf("group %d: %w", id, cig.ErrNotFound)
	}
	return g.MemberCount, nil
}

func (m *Memory) createLocked(ctx context.Context, key cig.GroupKey, seq int) (cig.Group, error) {
	if err := ctx.Err(); err != nil {
		return cig.Group{}, err
	}
	m.calls.CreateGroup++
	if err := m.injected(OpCreateGroup, m.calls.CreateGroup); err != nil {
		return cig.Group{}, err
	}
	if seq <= 0 {
		return cig.Group{}, fmt.Errorf("invalid group sequence %d", seq)
	}
	for _, id := range m.byKey[key] {
		if m.groups[id].Seq == seq {
			return cig.Group{}, cig.ErrDuplicateGroup
		}
	}

	m.nextGID++
	g := cig.Group{ID: m.nextGID, Key: key, Seq: seq, CreatedAt: m.Now().UTC()}
	m.groups[g.ID] = g
	m.byKey[key] = append(m.byKey[key], g.ID)
	return g, nil
}

func (m *Memory) linkLocked(ctx context.Context, recordID cig.RecordID, groupID cig.GroupID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.calls.LinkRecord++
	if err := m.injected(OpLinkRecord, m.calls.LinkRecord); err != nil {
		return err
	}

	rec, ok := m.records[recordID]
	if !ok {
		return fmt.Errorf("record %d: %w", recordID, cig.ErrNotFound)
	}
	g, ok := m.groups[groupID]
	if !ok {
		return fmt.Errorf("group %d: %w", groupID, cig.ErrNotFound)
	}
	if rec.GroupID != nil {
		if *rec.GroupID == groupID {
			return nil
		}
		return cig.ErrRecordLinked
	}
	if rec.Key() != g.Key {
		return fmt.Errorf("record %d, group %d: %w", recordID, groupID, cig.ErrKeyMismatch)
	}
	if !cig.HasRoom(g.MemberCount) {
		return cig.ErrGroupFull
	}

	g.MemberCount++
	m.groups[groupID] = g

	gid := groupID
	now := m.Now().UTC()
	rec.GroupID = &gid
	rec.AssignedAt = &now
	m.records[recordID] = rec
	return nil
}

// =============================================================================
// CYCLE STORE (cig.CycleStore interface)
// =============================================================================

func (m *Memory) ListGroups(ctx context.Context) ([]cig.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listGroupsLocked(ctx)
}

func (m *Memory) OpenCycle(ctx context.Context, id cig.GroupID) (*cig.Cycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCycleLocked(ctx, id)
}

func (m *Memory) SaveCycle(ctx context.Context, c cig.Cycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCycleLocked(ctx, c)
}

func (m *Memory) SumQuantity(ctx context.Context, id cig.GroupID, period cig.Period) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sumLocked(ctx, id, period)
}

// Cycles returns every cycle of a group, oldest period first.
func (m *Memory) Cycles(id cig.GroupID) []cig.Cycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []cig.Cycle
	for _, c := range m.cycles {
		if c.GroupID == id {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Period.Start.Before(result[j].Period.Start) })
	return result
}

func (m *Memory) listGroupsLocked(ctx context.Context) ([]cig.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]cig.Group, 0, len(m.groups))
	for _, g := range m.groups {
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Key.LocalityID != b.Key.LocalityID {
			return a.Key.LocalityID < b.Key.LocalityID
		}
		if a.Key.Commodity != b.Key.Commodity {
			return a.Key.Commodity < b.Key.Commodity
		}
		return a.Seq < b.Seq
	})
	return result, nil
}

func (m *Memory) openCycleLocked(ctx context.Context, id cig.GroupID) (*cig.Cycle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, c := range m.cycles {
		if c.GroupID == id && c.Status == cig.CycleOpen {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (m *Memory) saveCycleLocked(ctx context.Context, c cig.Cycle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.groups[c.GroupID]; !ok {
		return fmt.Errorf("group %d: %w", c.GroupID, cig.ErrNotFound)
	}
	if c.Status == cig.CycleOpen {
		for id, other := range m.cycles {
			if id != c.ID && other.GroupID == c.GroupID && other.Status == cig.CycleOpen {
				return fmt.Errorf("group %d already has an open cycle: %w", c.GroupID, cig.ErrConflict)
			}
		}
	}
	m.cycles[c.ID] = c
	return nil
}

func (m *Memory) sumLocked(ctx context.Context, id cig.GroupID, period cig.Period) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, rec := range m.records {
		if rec.GroupID == nil || *rec.GroupID != id || rec.AssignedAt == nil {
			continue
		}
		if period.Contains(*rec.AssignedAt) {
			total = total.Add(rec.Quantity)
		}
	}
	return total, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// Simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(cig.GroupStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// WithCycleTx executes fn within a transaction.
func (m *Memory) WithCycleTx(ctx context.Context, fn func(cig.CycleStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	groups  map[cig.GroupID]cig.Group
	byKey   map[cig.GroupKey][]cig.GroupID
	records map[cig.RecordID]cig.ProduceRecord
	cycles  map[string]cig.Cycle
	nextGID cig.GroupID
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		groups:  make(map[cig.GroupID]cig.Group, len(m.groups)),
		byKey:   make(map[cig.GroupKey][]cig.GroupID, len(m.byKey)),
		records: make(map[cig.RecordID]cig.ProduceRecord, len(m.records)),
		cycles:  make(map[string]cig.Cycle, len(m.cycles)),
		nextGID: m.nextGID,
	}
	for k, v := range m.groups {
		s.groups[k] = v
	}
	for k, v := range m.byKey {
		s.byKey[k] = append([]cig.GroupID(nil), v...)
	}
	for k, v := range m.records {
		s.records[k] = v
	}
	for k, v := range m.cycles {
		s.cycles[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.groups = s.groups
	m.byKey = s.byKey
	m.records = s.records
	m.cycles = s.cycles
	m.nextGID = s.nextGID
}

// txView is the store handed to WithTx callbacks. The parent lock is held.
type txView struct {
	parent *Memory
}

func (v *txView) FindGroups(ctx context.Context, key cig.GroupKey) ([]cig.Group, error) {
	return v.parent.findGroupsLocked(ctx, key)
}

func (v *txView) CountMembers(ctx context.Context, id cig.GroupID) (int, error) {
	return v.parent.countLocked(ctx, id)
}

func (v *txView) CreateGroup(ctx context.Context, key cig.GroupKey, seq int) (cig.Group, error) {
	return v.parent.createLocked(ctx, key, seq)
}

func (v *txView) LinkRecord(ctx context.Context, recordID cig.RecordID, groupID cig.GroupID) error {
	return v.parent.linkLocked(ctx, recordID, groupID)
}

func (v *txView) ListGroups(ctx context.Context) ([]cig.Group, error) {
	return v.parent.listGroupsLocked(ctx)
}

func (v *txView) OpenCycle(ctx context.Context, id cig.GroupID) (*cig.Cycle, error) {
	return v.parent.openCycleLocked(ctx, id)
}

func (v *txView) SaveCycle(ctx context.Context, c cig.Cycle) error {
	return v.parent.saveCycleLocked(ctx, c)
}

func (v *txView) SumQuantity(ctx context.Context, id cig.GroupID, period cig.Period) (decimal.Decimal, error) {
	return v.parent.sumLocked(ctx, id, period)
}
