package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	ok, failed int
}

func (r *recordingObserver) ObserveJob(task string, err error) {
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer := &recordingObserver{}
	metrics := NewMetrics(reg, observer)

	require.NoError(t, metrics.Track("fx:refresh").End(nil))
	boom := errors.New("feed down")
	require.ErrorIs(t, metrics.Track("fx:refresh").End(boom), boom)

	assert.Equal(t, 1, observer.ok)
	assert.Equal(t, 1, observer.failed)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.duration))
	assert.Greater(t, testutil.ToFloat64(metrics.lastSuccess.WithLabelValues("fx:refresh")), 0.0)
}

func TestTrackerWithoutMetrics(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("fx:refresh").End(boom), boom)

	unregistered := NewMetrics(nil, nil)
	assert.NoError(t, unregistered.Track("fx:refresh").End(nil))
}
