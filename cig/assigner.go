/*
assigner.go - Capacity-bounded group assignment

PURPOSE:
  Places produce records into Common Interest Groups. Within a GroupKey,
  groups are bins of size Capacity, filled first-fit in ascending Seq order.

ALGORITHM (per record):
  1. Resolve the groups of the record's key, oldest first
  2. Pick the first group whose member count is below Capacity
  3. If none has room, open group Seq = last Seq + 1 (1 for a new key)
  4. Link the record to the chosen group

TWO ENTRY POINTS:
  AssignOne:  one record, live counts, one transaction
  AssignMany: many records, one transaction, one capacity cache.
              FindGroups and CountMembers run once per distinct key, no matter
              how many records share it, in sorted key order before planning. Counts are tracked in memory while
              the batch is planned; links are written after the scan.

  Given the same store state and input order, both produce identical
  memberships.

ATOMICITY:
  Each call is one WithTx unit of work. A failure anywhere rolls back every
  group created and every link written by that call.

ERRORS:
  PreconditionError  - invalid record, nothing was written
  StorageError       - store failure, rolled back
  ConflictError      - lost a race (ErrGroupFull / ErrDuplicateGroup, deadlock), rolled back
  DataIntegrityError - a group of the key is already over Capacity

SEE ALSO:
  - cache.go: The per-batch capacity cache
  - store.go: GroupStore / TxGroupStore contracts
*/
package cig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agrilink/cig-engine/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultBatchTimeout bounds how long one AssignMany transaction may hold the store.
const DefaultBatchTimeout = 30 * time.Second

// Assigner maps produce records to groups under the capacity invariant.
// It holds no state between calls and is safe for concurrent use.
type Assigner struct {
	store        TxGroupStore
	logger       *zap.Logger
	metrics      metrics.Recorder
	batchTimeout time.Duration
}

// Option configures an Assigner.
type Option func(*Assigner)

func WithLogger(l *zap.Logger) Option {
	return func(a *Assigner) {
		if l != nil {
			a.logger = l
		}
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(a *Assigner) {
		if r != nil {
			a.metrics = r
		}
	}
}

// WithBatchTimeout bounds each AssignMany call. Zero or negative disables the bound.
func WithBatchTimeout(d time.Duration) Option {
	return func(a *Assigner) { a.batchTimeout = d }
}

// NewAssigner creates an assigner over store.
func NewAssigner(store TxGroupStore, opts ...Option) *Assigner {
	a := &Assigner{
		store:        store,
		logger:       zap.NewNop(),
		metrics:      metrics.NewNop(),
		batchTimeout: DefaultBatchTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// =============================================================================
// SINGLE RECORD
// =============================================================================

// AssignOne places a single persisted, unassigned record.
func (a *Assigner) AssignOne(ctx context.Context, rec ProduceRecord) (Assignment, error) {
	if err := validateRecord(rec); err != nil {
		return Assignment{}, err
	}

	var (
		out     Assignment
		created *Group
		lists   int
	)
	err := a.store.WithTx(ctx, func(s GroupStore) error {
		key := rec.Key()
		groups, err := s.FindGroups(ctx, key)
		if err != nil {
			return storeError("find groups", rec, err)
		}
		lists++

		for _, g := range groups {
			count, err := s.CountMembers(ctx, g.ID)
			if err != nil {
				return storeError("count members", rec, err)
			}
			if count > Capacity {
				return &DataIntegrityError{Key: key, GroupID: g.ID, Seq: g.Seq, Count: count}
			}
			if !HasRoom(count) {
				continue
			}
			if err := s.LinkRecord(ctx, rec.ID, g.ID); err != nil {
				return storeError("link record", rec, err)
			}
			out = Assignment{RecordID: rec.ID, GroupID: g.ID, Key: key, Seq: g.Seq}
			return nil
		}

		g, err := s.CreateGroup(ctx, key, nextSeq(groups))
		if err != nil {
			return storeError("create group", rec, err)
		}
		if err := s.LinkRecord(ctx, rec.ID, g.ID); err != nil {
			return storeError("link record", rec, err)
		}
		created = &g
		out = Assignment{RecordID: rec.ID, GroupID: g.ID, Key: key, Seq: g.Seq, Created: true}
		return nil
	})
	for i := 0; i < lists; i++ {
		a.metrics.GroupListed()
	}
	if err != nil {
		return Assignment{}, a.fail(storeError("transaction", rec, err), zap.Int64("record_id", int64(rec.ID)))
	}

	if created != nil {
		a.metrics.GroupCreated()
		a.logger.Info("opened group",
			zap.String("key", created.Key.String()),
			zap.Int("seq", created.Seq),
			zap.Int64("group_id", int64(created.ID)))
	}
	a.metrics.RecordsAssigned(metrics.PathSingle, 1)
	return out, nil
}

// =============================================================================
// BATCH
// =============================================================================

// AssignMany places records in input order within a single transaction.
// Records must be persisted, unassigned and distinct.
func (a *Assigner) AssignMany(ctx context.Context, records []ProduceRecord) (BatchResult, error) {
	result := BatchResult{BatchID: uuid.NewString()}
	if len(records) == 0 {
		return result, nil
	}
	if err := validateBatch(records); err != nil {
		return BatchResult{}, err
	}

	if a.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.batchTimeout)
		defer cancel()
	}

	log := a.logger.With(zap.String("batch_id", result.BatchID))
	log.Debug("assigning batch", zap.Int("records", len(records)))
	start := time.Now()

	var lists int
	err := a.store.WithTx(ctx, func(s GroupStore) error {
		cache := newCapacityCache(s)
		defer func() { lists = cache.lists }()

		for _, rec := range lockOrder(records) {
			if _, err := cache.load(ctx, rec.Key()); err != nil {
				return storeError("load groups", rec, err)
			}
		}

		plan := make([]Assignment, len(records))
		var created []Group

		for i, rec := range records {
			key := rec.Key()
			slots, err := cache.load(ctx, key)
			if err != nil {
				return storeError("load groups", rec, err)
			}

			if target := firstFit(slots); target != nil {
				target.count++
				plan[i] = Assignment{RecordID: rec.ID, GroupID: target.group.ID, Key: key, Seq: target.group.Seq}
				continue
			}

			g, err := s.CreateGroup(ctx, key, cache.nextSeq(key))
			if err != nil {
				return storeError("create group", rec, err)
			}
			cache.open(key, g)
			created = append(created, g)
			plan[i] = Assignment{RecordID: rec.ID, GroupID: g.ID, Key: key, Seq: g.Seq, Created: true}
		}

		for i, as := range plan {
			if err := s.LinkRecord(ctx, as.RecordID, as.GroupID); err != nil {
				return storeError("link record", records[i], err)
			}
		}

		result.Assignments = plan
		result.GroupsCreated = created
		return nil
	})
	for i := 0; i < lists; i++ {
		a.metrics.GroupListed()
	}
	result.GroupLists = lists
	if err != nil {
		return BatchResult{}, a.fail(storeError("transaction", ProduceRecord{}, err), zap.String("batch_id", result.BatchID))
	}

	elapsed := time.Since(start)
	for _, g := range result.GroupsCreated {
		a.metrics.GroupCreated()
		log.Info("opened group",
			zap.String("key", g.Key.String()),
			zap.Int("seq", g.Seq),
			zap.Int64("group_id", int64(g.ID)))
	}
	a.metrics.RecordsAssigned(metrics.PathBatch, len(records))
	a.metrics.BatchFinished(len(records), elapsed)
	log.Debug("batch assigned",
		zap.Int("records", len(records)),
		zap.Int("group_lists", lists),
		zap.Int("groups_created", len(result.GroupsCreated)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// fail records and logs err, then returns it.
func (a *Assigner) fail(err error, fields ...zap.Field) error {
	var integrity *DataIntegrityError
	switch {
	case errors.As(err, &integrity):
		a.metrics.IntegrityViolation()
		a.logger.Error("group over capacity", append(fields,
			zap.String("key", integrity.Key.String()),
			zap.Int64("group_id", int64(integrity.GroupID)),
			zap.Int("seq", integrity.Seq),
			zap.Int("count", integrity.Count))...)
	case errors.Is(err, ErrConflict):
		a.metrics.Conflict()
		a.logger.Warn("assignment conflict", append(fields, zap.Error(err))...)
	default:
		a.logger.Error("assignment failed", append(fields, zap.Error(err))...)
	}
	return err
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateRecord(rec ProduceRecord) error {
	switch {
	case rec.ID <= 0:
		return &PreconditionError{RecordID: rec.ID, Field: "id", Reason: "record must be persisted"}
	case rec.LocalityID <= 0:
		return &PreconditionError{RecordID: rec.ID, Field: "locality", Reason: "farm has no locality"}
	case strings.TrimSpace(string(rec.Commodity)) == "":
		return &PreconditionError{RecordID: rec.ID, Field: "commodity", Reason: "commodity is blank"}
	case rec.Assigned():
		return &PreconditionError{RecordID: rec.ID, Field: "group",
			Reason: fmt.Sprintf("already assigned to group %d", *rec.GroupID)}
	}
	return nil
}

func validateBatch(records []ProduceRecord) error {
	seen := make(map[RecordID]bool, len(records))
	for _, rec := range records {
		if err := validateRecord(rec); err != nil {
			return err
		}
		if seen[rec.ID] {
			return &PreconditionError{RecordID: rec.ID, Field: "id", Reason: "duplicate record in batch"}
		}
		seen[rec.ID] = true
	}
	return nil
}
