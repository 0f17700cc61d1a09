package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.RecordPoint(OutcomeSucceeded)
	m.RecordPoint(OutcomeSucceeded)
	m.RecordPoint(OutcomeFailed)
	m.RecordPhase(PhaseObserve, 5*time.Second)
	m.SetHosts(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.points.WithLabelValues(OutcomeSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.points.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.hosts))
	assert.Equal(t, 1, testutil.CollectAndCount(m.phaseDuration))
}

func TestWriteToTextfile(t *testing.T) {
	m := New()
	m.RecordPoint(OutcomeFailed)
	path := filepath.Join(t.TempDir(), "results", "metrics.prom")

	require.NoError(t, m.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ktbench_sweep_points{outcome="failed"} 1`)
}
