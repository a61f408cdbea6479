/*
Package cig provides the Common Interest Group assignment engine.

PURPOSE:
  Farms that grow the same commodity in the same locality are clustered into
  Common Interest Groups (CIGs). Every produce record is placed in exactly one
  group, and no group ever holds more than Capacity records.

KEY CONCEPTS IN THIS FILE (types.go):
  - GroupKey: the (locality, commodity) partition a record belongs to
  - Group: a numbered, capacity-bounded bin inside one GroupKey
  - ProduceRecord: a farm's produce entry, linked to a group exactly once
  - Assignment: the outcome of placing one record

DESIGN PRINCIPLES:
  1. Partitioning: a record only ever lands in a group of its own GroupKey
  2. First fit: groups are scanned oldest first (ascending Seq)
  3. Fill before create: a new group opens only when every existing one is full
  4. Immutability: once linked, a record never moves to another group

USAGE:
  assigner := cig.NewAssigner(store)
  result, err := assigner.AssignMany(ctx, records)

SEE ALSO:
  - assigner.go: AssignOne / AssignMany
  - cache.go: Per-batch capacity cache
  - store.go: Persistence contracts
*/
package cig

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Capacity is the maximum number of produce records in one group.
const Capacity = 35

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	LocalityID int64
	GroupID    int64
	RecordID   int64
	FarmID     int64
)

// Commodity is a produce type such as "Maize" or "Dairy".
type Commodity string

// =============================================================================
// GROUP KEY - Bin packing partition
// =============================================================================

// GroupKey identifies the partition a record is packed into.
// Assignment never mixes records across keys.
type GroupKey struct {
	LocalityID LocalityID
	Commodity  Commodity
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%d/%s", k.LocalityID, k.Commodity)
}

// Valid reports whether both halves of the key are present.
func (k GroupKey) Valid() bool {
	return k.LocalityID > 0 && strings.TrimSpace(string(k.Commodity)) != ""
}

// =============================================================================
// GROUP
// =============================================================================

// Group is a capacity-bounded cluster of produce records sharing a GroupKey.
type Group struct {
	ID  GroupID
	Key GroupKey

	// Seq is 1-based and unique within Key, assigned in creation order.
	Seq int

	// MemberCount is the count as of when the group was read.
	// Use GroupStore.CountMembers for the live value.
	MemberCount int

	CreatedAt time.Time
}

// HasRoom reports whether count leaves space for one more member.
func HasRoom(count int) bool {
	return count < Capacity
}

// Name renders the display name used by the registry, e.g. "Kithimani_Maize_CIG_2".
func (g Group) Name(localityName string) string {
	return fmt.Sprintf("%s_%s_CIG_%d", localityName, g.Key.Commodity, g.Seq)
}

// =============================================================================
// PRODUCE RECORD
// =============================================================================

// ProduceRecord is a farm's produce entry.
// LocalityID is resolved from the farm; zero means the farm has no locality.
type ProduceRecord struct {
	ID         RecordID
	FarmID     FarmID
	LocalityID LocalityID
	Commodity  Commodity
	Quantity   decimal.Decimal

	GroupID    *GroupID // nil until assigned, then immutable
	AssignedAt *time.Time
	CreatedAt  time.Time
}

// Key returns the record's partition.
func (r ProduceRecord) Key() GroupKey {
	return GroupKey{LocalityID: r.LocalityID, Commodity: r.Commodity}
}

// Assigned reports whether the record already belongs to a group.
func (r ProduceRecord) Assigned() bool {
	return r.GroupID != nil
}

// =============================================================================
// ASSIGNMENT RESULT
// =============================================================================

// Assignment records where one produce record was placed.
type Assignment struct {
	RecordID RecordID
	GroupID  GroupID
	Key      GroupKey
	Seq      int

	// Created is true when this record caused the group to be opened.
	Created bool
}

// BatchResult summarizes one AssignMany call.
type BatchResult struct {
	BatchID     string
	Assignments []Assignment // in input order

	// GroupLists is the number of FindGroups queries issued,
	// equal to the number of distinct keys in the batch.
	GroupLists    int
	GroupsCreated []Group
}
