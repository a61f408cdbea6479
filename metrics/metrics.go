// Package metrics instruments group assignment and cycle rollover.
//
// Components accept a Recorder and default to Nop when none is given, so the
// engine never depends on a metrics backend being configured.
package metrics

import "time"

// Assignment paths, used as the "path" label.
const (
	PathSingle = "single"
	PathBatch  = "batch"
)

// Rollover outcomes, used as the "outcome" label.
const (
	OutcomeClosed    = "closed"
	OutcomeOpened    = "opened"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// Recorder receives assignment and rollover events.
type Recorder interface {
	GroupListed()
	GroupCreated()
	RecordsAssigned(path string, n int)
	Conflict()
	IntegrityViolation()
	BatchFinished(records int, d time.Duration)
	Rollover(outcome string)
}

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func NewNop() Nop { return Nop{} }

func (Nop) GroupListed() {}
func (Nop) GroupCreated() {}
func (Nop) RecordsAssigned(string, int) {}
func (Nop) Conflict() {}
func (Nop) IntegrityViolation() {}
func (Nop) BatchFinished(int, time.Duration) {}
func (Nop) Rollover(string) {}
