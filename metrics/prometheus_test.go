package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_CountsAssignmentEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.GroupListed()
	p.GroupListed()
	p.GroupCreated()
	p.RecordsAssigned(PathBatch, 35)
	p.RecordsAssigned(PathSingle, 1)
	p.Conflict()
	p.BatchFinished(35, 20*time.Millisecond)
	p.Rollover(OutcomeClosed)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.groupLists))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.groupsCreated))
	assert.Equal(t, 35.0, testutil.ToFloat64(p.recordsAssigned.WithLabelValues(PathBatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.recordsAssigned.WithLabelValues(PathSingle)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.conflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.rollovers.WithLabelValues(OutcomeClosed)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_assign_batch_duration_seconds")
	assert.Contains(t, names, "test_cycle_rollovers_total")
}

func TestPrometheus_DefaultNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "")
	p.IntegrityViolation()

	n, err := testutil.GatherAndCount(reg, "cig_assign_integrity_violations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = NewNop()
	r.GroupListed()
	r.BatchFinished(10, time.Second)
	r.Rollover(OutcomeFailed)
}
