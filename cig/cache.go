/*
cache.go - Per-batch capacity cache

PURPOSE:
  AssignMany must not ask the store for member counts once per record: doing
  so costs one count query per existing group per record, quadratic in the
  number of records sharing a key. The cache loads each key's groups and
  counts once, then tracks placements in memory.

SCOPE:
  A capacityCache lives for exactly one AssignMany call and is owned by it.
  Sharing it across calls would let stale counts overfill groups when batches
  run concurrently.

LAYOUT:
  key -> [{group, count}, ...] in ascending Seq order

LOCK ORDER:
  AssignMany loads every key of the batch before planning, in lockOrder.
  Stores that lock a key on FindGroups then acquire locks in one global
  order, so two batches over the same keys cannot deadlock.
*/
package cig

import (
	"cmp"
	"context"
	"slices"
)

type slot struct {
	group Group
	count int
}

type capacityCache struct {
	store   GroupStore
	entries map[GroupKey][]*slot
	lists   int
}

func newCapacityCache(store GroupStore) *capacityCache {
	return &capacityCache{
		store:   store,
		entries: make(map[GroupKey][]*slot),
	}
}

// load returns the slots for key, querying the store the first time only.
func (c *capacityCache) load(ctx context.Context, key GroupKey) ([]*slot, error) {
	if slots, ok := c.entries[key]; ok {
		return slots, nil
	}

	groups, err := c.store.FindGroups(ctx, key)
	if err != nil {
		return nil, err
	}
	c.lists++

	slots := make([]*slot, 0, len(groups))
	for _, g := range groups {
		count, err := c.store.CountMembers(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		if count > Capacity {
			return nil, &DataIntegrityError{Key: key, GroupID: g.ID, Seq: g.Seq, Count: count}
		}
		slots = append(slots, &slot{group: g, count: count})
	}
	c.entries[key] = slots
	return slots, nil
}

// lockOrder returns the first record of each distinct key, sorted by
// locality then commodity.
func lockOrder(records []ProduceRecord) []ProduceRecord {
	seen := make(map[GroupKey]bool, len(records))
	var out []ProduceRecord
	for _, rec := range records {
		if key := rec.Key(); !seen[key] {
			seen[key] = true
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b ProduceRecord) int {
		return cmp.Or(
			cmp.Compare(a.LocalityID, b.LocalityID),
			cmp.Compare(a.Commodity, b.Commodity),
		)
	})
	return out
}

// firstFit returns the oldest slot with room, or nil.
func firstFit(slots []*slot) *slot {
	for _, s := range slots {
		if HasRoom(s.count) {
			return s
		}
	}
	return nil
}

// open records a newly created group as holding one member.
func (c *capacityCache) open(key GroupKey, g Group) *slot {
	s := &slot{group: g, count: 1}
	c.entries[key] = append(c.entries[key], s)
	return s
}

// nextSeq is the sequence number for the next group of key.
func (c *capacityCache) nextSeq(key GroupKey) int {
	slots := c.entries[key]
	if len(slots) == 0 {
		return 1
	}
	return slots[len(slots)-1].group.Seq + 1
}

// nextSeq for an ascending group listing. Equal to len(groups)+1 while
// sequences are gap free; never reuses a taken number if they are not.
func nextSeq(groups []Group) int {
	if len(groups) == 0 {
		return 1
	}
	return groups[len(groups)-1].Seq + 1
}
