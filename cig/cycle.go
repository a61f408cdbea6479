package cig

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD - Season boundary for cycle aggregates
// =============================================================================

// Period is the half-open interval [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Ended returns true if the period is over at t.
func (p Period) Ended(t time.Time) bool {
	return !t.Before(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + ")"
}

// SeasonCalendar cuts the year into fixed-length seasons of Months months,
// aligned so that one season starts on the first of AnchorMonth.
//
// Examples:
//   - Months=6, AnchorMonth=March: long rains Mar-Aug, short rains Sep-Feb
//   - Months=12, AnchorMonth=January: calendar year
type SeasonCalendar struct {
	Months      int
	AnchorMonth time.Month
}

// DefaultSeasons is the two-season calendar of the bimodal rainfall regions.
var DefaultSeasons = SeasonCalendar{Months: 6, AnchorMonth: time.March}

// PeriodFor returns the season containing t.
func (c SeasonCalendar) PeriodFor(t time.Time) Period {
	months := c.Months
	if months <= 0 || months > 12 {
		months = 12
	}
	anchor := c.AnchorMonth
	if anchor < time.January || anchor > time.December {
		anchor = time.January
	}

	t = t.UTC()
	// Months elapsed since the anchor of year 0, then floor to a season boundary.
	elapsed := t.Year()*12 + int(t.Month()) - int(anchor)
	offset := elapsed % months
	if offset < 0 {
		offset += months
	}
	startIndex := elapsed - offset + int(anchor) - 1
	start := time.Date(startIndex/12, time.Month(startIndex%12+1), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, months, 0)}
}

// Next returns the season after p.
func (c SeasonCalendar) Next(p Period) Period {
	return c.PeriodFor(p.End)
}

// =============================================================================
// CYCLE - A group's aggregate over one season
// =============================================================================

type CycleStatus string

const (
	CycleOpen   CycleStatus = "open"
	CycleClosed CycleStatus = "closed"
)

// Cycle summarizes a group's accumulated quantity over one period.
// Each group has at most one open cycle; rollover closes it and opens the next.
type Cycle struct {
	ID         string
	GroupID    GroupID
	Period     Period
	TotalUnits decimal.Decimal
	Status     CycleStatus
	ClosedAt   *time.Time
	CreatedAt  time.Time
}
