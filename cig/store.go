/*
store.go - Persistence contracts for group assignment

PURPOSE:
  Defines the boundary between the assigner and the relational store.
  The assigner never touches SQL; it speaks only these interfaces.

KEY INTERFACES:
  GroupStore:   findGroups / countMembers / createGroup / linkRecord
  TxGroupStore: GroupStore plus one atomic unit of work per call
  CycleStore:   sumQuantity and cycle bookkeeping (rollover collaborator)

ORDERING CONTRACT:
  FindGroups returns groups in ascending Seq order. The first-fit scan relies
  on it; implementations must ORDER BY seq explicitly.

ISOLATION CONTRACT:
  Inside WithTx, writes for one GroupKey are serialized against other
  transactions. LinkRecord refuses to push a group past Capacity
  (ErrGroupFull) and CreateGroup refuses a taken Seq (ErrDuplicateGroup),
  so a lost race surfaces as a conflict instead of an over-full group.

IMPLEMENTATIONS:
  - cig/store/memory.go: In-memory, for tests
  - store/sqldb: SQLite and PostgreSQL
*/
package cig

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GROUP STORE
// =============================================================================

type GroupStore interface {
	// FindGroups returns the groups of key ordered by ascending Seq.
	FindGroups(ctx context.Context, key GroupKey) ([]Group, error)

	// CountMembers returns the current number of records linked to the group.
	CountMembers(ctx context.Context, groupID GroupID) (int, error)

	// CreateGroup persists a new group. Returns ErrDuplicateGroup if seq is taken.
	CreateGroup(ctx context.Context, key GroupKey, seq int) (Group, error)

	// LinkRecord sets the record's group and increments the member count.
	// Re-linking to the same group is a no-op. Returns ErrGroupFull when the
	// group is at Capacity, ErrRecordLinked when the record has another group
	// and ErrKeyMismatch when the record's stored key differs from the group's.
	LinkRecord(ctx context.Context, recordID RecordID, groupID GroupID) error
}

// TxGroupStore runs a unit of work atomically.
type TxGroupStore interface {
	GroupStore

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed store is rolled back.
	WithTx(ctx context.Context, fn func(GroupStore) error) error
}

// =============================================================================
// CYCLE STORE - Used by the rollover collaborator, not the assigner
// =============================================================================

type CycleStore interface {
	// ListGroups returns every group, ordered by key then Seq.
	ListGroups(ctx context.Context) ([]Group, error)

	// OpenCycle returns the group's open cycle, or nil if it has none.
	OpenCycle(ctx context.Context, groupID GroupID) (*Cycle, error)

	// SaveCycle inserts or updates a cycle by ID.
	SaveCycle(ctx context.Context, c Cycle) error

	// SumQuantity totals the quantity of records linked to the group
	// whose assignment time falls inside period.
	SumQuantity(ctx context.Context, groupID GroupID, period Period) (decimal.Decimal, error)
}

// TxCycleStore runs a rollover step atomically.
type TxCycleStore interface {
	CycleStore
	WithCycleTx(ctx context.Context, fn func(CycleStore) error) error
}
