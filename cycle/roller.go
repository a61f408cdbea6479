/*
Package cycle keeps per-group seasonal aggregates.

PURPOSE:
  Every group carries one open Cycle covering the current season. When the
  season ends, rollover freezes the cycle's total and opens the next one.

OPERATIONS:
  EnsureCycle: Open the cycle containing a timestamp if the group has none
  Rollover:    Close ended cycles and open their successors, one group per transaction
  Recompute:   Refresh an open cycle's running total

TOTALS:
  TotalUnits is the sum of quantities of records linked to the group whose
  assigned_at falls in the cycle period [Start, End).

FAILURE ISOLATION:
  Rollover keeps going when one group fails. The failures are counted in
  Result.Failed and returned joined.

SEE ALSO:
  - cig/cycle.go: Period, SeasonCalendar, Cycle
  - api/scheduler.go: Periodic rollover
*/
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrilink/cig-engine/cig"
	"github.com/agrilink/cig-engine/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result counts what one Rollover did.
type Result struct {
	Groups    int `json:"groups"`
	Closed    int `json:"closed"`
	Opened    int `json:"opened"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// Roller opens, closes and refreshes cycles.
type Roller struct {
	store    cig.TxCycleStore
	calendar cig.SeasonCalendar
	logger   *zap.Logger
	metrics  metrics.Recorder
	newID    func() string
}

type Option func(*Roller)

func WithLogger(l *zap.Logger) Option {
	return func(r *Roller) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Roller) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithIDs overrides cycle ID generation. Intended for tests.
func WithIDs(newID func() string) Option {
	return func(r *Roller) { r.newID = newID }
}

// New creates a Roller over store using calendar.
func New(store cig.TxCycleStore, calendar cig.SeasonCalendar, opts ...Option) *Roller {
	r := &Roller{
		store:    store,
		calendar: calendar,
		logger:   zap.NewNop(),
		metrics:  metrics.NewNop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Calendar returns the season calendar in use.
func (r *Roller) Calendar() cig.SeasonCalendar { return r.calendar }

// EnsureCycle returns the group's open cycle, opening one for the season
// containing at when there is none. The bool reports whether it was created.
func (r *Roller) EnsureCycle(ctx context.Context, groupID cig.GroupID, at time.Time) (cig.Cycle, bool, error) {
	var (
		out     cig.Cycle
		created bool
	)
	err := r.store.WithCycleTx(ctx, func(s cig.CycleStore) error {
		open, err := s.OpenCycle(ctx, groupID)
		if err != nil {
			return err
		}
		if open != nil {
			out = *open
			return nil
		}
		out, err = r.open(ctx, s, groupID, r.calendar.PeriodFor(at), at)
		created = err == nil
		return err
	})
	if err != nil {
		return cig.Cycle{}, false, fmt.Errorf("ensure cycle for group %d: %w", groupID, err)
	}
	if created {
		r.logger.Debug("opened cycle",
			zap.Int64("group_id", int64(groupID)),
			zap.Stringer("period", out.Period))
	}
	return out, created, nil
}

// Rollover closes every open cycle whose period ended at or before at and
// opens the cycle for the season containing at. Groups without a cycle get one.
func (r *Roller) Rollover(ctx context.Context, at time.Time) (Result, error) {
	groups, err := r.store.ListGroups(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list groups: %w", err)
	}

	res := Result{Groups: len(groups)}
	var errs []error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		outcome, err := r.rollGroup(ctx, g.ID, at)
		r.metrics.Rollover(outcome)
		switch outcome {
		case metrics.OutcomeClosed:
			res.Closed++
			res.Opened++
		case metrics.OutcomeOpened:
			res.Opened++
		case metrics.OutcomeUnchanged:
			res.Unchanged++
		default:
			res.Failed++
			r.logger.Error("rollover failed",
				zap.Int64("group_id", int64(g.ID)),
				zap.String("key", g.Key.String()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("group %d: %w", g.ID, err))
		}
	}

	r.logger.Info("rollover finished",
		zap.Time("at", at),
		zap.Int("groups", res.Groups),
		zap.Int("closed", res.Closed),
		zap.Int("opened", res.Opened),
		zap.Int("failed", res.Failed))
	return res, errors.Join(errs...)
}

func (r *Roller) rollGroup(ctx context.Context, groupID cig.GroupID, at time.Time) (string, error) {
	outcome := metrics.OutcomeUnchanged
	err := r.store.WithCycleTx(ctx, func(s cig.CycleStore) error {
		open, err := s.OpenCycle(ctx, groupID)
		if err != nil {
			return err
		}
		if open == nil {
			if _, err := r.open(ctx, s, groupID, r.calendar.PeriodFor(at), at); err != nil {
				return err
			}
			outcome = metrics.OutcomeOpened
			return nil
		}
		if !open.Period.Ended(at) {
			return nil
		}

		total, err := s.SumQuantity(ctx, groupID, open.Period)
		if err != nil {
			return err
		}
		closedAt := at
		open.TotalUnits = total
		open.Status = cig.CycleClosed
		open.ClosedAt = &closedAt
		if err := s.SaveCycle(ctx, *open); err != nil {
			return err
		}

		// Seasons with no activity in between are skipped.
		next := r.calendar.PeriodFor(at)
		if _, err := r.open(ctx, s, groupID, next, at); err != nil {
			return err
		}
		r.logger.Info("closed cycle",
			zap.Int64("group_id", int64(groupID)),
			zap.Stringer("period", open.Period),
			zap.String("total_units", total.String()),
			zap.Stringer("next", next))
		outcome = metrics.OutcomeClosed
		return nil
	})
	if err != nil {
		return metrics.OutcomeFailed, err
	}
	return outcome, nil
}

// Recompute refreshes the running total of the group's open cycle.
func (r *Roller) Recompute(ctx context.Context, groupID cig.GroupID) (cig.Cycle, error) {
	var out cig.Cycle
	err := r.store.WithCycleTx(ctx, func(s cig.CycleStore) error {
		open, err := s.OpenCycle(ctx, groupID)
		if err != nil {
			return err
		}
		if open == nil {
			return fmt.Errorf("open cycle for group %d: %w", groupID, cig.ErrNotFound)
		}
		total, err := s.SumQuantity(ctx, groupID, open.Period)
		if err != nil {
			return err
		}
		open.TotalUnits = total
		if err := s.SaveCycle(ctx, *open); err != nil {
			return err
		}
		out = *open
		return nil
	})
	return out, err
}

func (r *Roller) open(ctx context.Context, s cig.CycleStore, groupID cig.GroupID, period cig.Period, at time.Time) (cig.Cycle, error) {
	total, err := s.SumQuantity(ctx, groupID, period)
	if err != nil {
		return cig.Cycle{}, err
	}
	c := cig.Cycle{
		ID:         r.newID(),
		GroupID:    groupID,
		Period:     period,
		TotalUnits: total,
		Status:     cig.CycleOpen,
		CreatedAt:  at,
	}
	if err := s.SaveCycle(ctx, c); err != nil {
		return cig.Cycle{}, err
	}
	return c, nil
}
