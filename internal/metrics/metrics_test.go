package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(reg)
	require.NoError(t, err)

	r.Observe("query", OutcomeOK, 10*time.Millisecond)
	r.Observe("query", OutcomeOK, 20*time.Millisecond)
	r.Observe("update", OutcomeRejected, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.calls.WithLabelValues("query", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.calls.WithLabelValues("update", OutcomeRejected)))

	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))

	expected := `
# HELP odatamongo_calls_total Number of adapter verb calls by outcome.
# TYPE odatamongo_calls_total counter
odatamongo_calls_total{outcome="ok",verb="query"} 2
odatamongo_calls_total{outcome="rejected",verb="update"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "odatamongo_calls_total"))
}

func TestRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
	assert.Panics(t, func() { MustNew(reg) })
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() { r.Observe("query", OutcomeOK, time.Second) })
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := MustNew(reg)
	r.Observe("remove", OutcomeError, 5*time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))

	out := buf.String()
	assert.Contains(t, out, "# TYPE odatamongo_calls_total counter\n")
	assert.Contains(t, out, `odatamongo_calls_total{outcome="error",verb="remove"} 1`)
	assert.Contains(t, out, `odatamongo_call_duration_seconds_count{verb="remove"} 1`)

	parsed, err := (&expfmt.TextParser{}).TextToMetricFamilies(strings.NewReader(out))
	require.NoError(t, err)
	assert.Contains(t, parsed, "odatamongo_calls_total")
	assert.Contains(t, parsed, "odatamongo_call_duration_seconds")
}
