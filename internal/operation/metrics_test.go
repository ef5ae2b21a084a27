package operation

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsAttemptsAndOutcome(t *testing.T) {
	params := testParams()
	params.Actor = "metrics-actor"
	params.Operation = "Probe"
	params.Retry = IntPtr(2)

	attemptsBefore := testutil.ToFloat64(attemptsTotal.WithLabelValues("metrics-actor", "Probe"))
	retriesBefore := testutil.ToFloat64(outcomesTotal.WithLabelValues("metrics-actor", "Probe", "FAILURE_RETRIES"))

	_, err := await(t, New(params, &scripted{results: []Result{Failure}}, testOptions()...).Start(context.Background()))
	require.NoError(t, err)

	assert.Equal(t, attemptsBefore+3, testutil.ToFloat64(attemptsTotal.WithLabelValues("metrics-actor", "Probe")))
	assert.Equal(t, retriesBefore+1, testutil.ToFloat64(outcomesTotal.WithLabelValues("metrics-actor", "Probe", "FAILURE_RETRIES")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(operationDuration), 1)
}
