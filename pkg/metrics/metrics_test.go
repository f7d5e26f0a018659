package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-balance-ledger/pkg/metrics"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.TransactionsProcessed.WithLabelValues("mutex").Inc()
	m.TransactionsRejected.WithLabelValues("mutex", "program_error").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsProcessed.WithLabelValues("mutex")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransactionsRejected.WithLabelValues("mutex", "program_error")))

	count, err := testutil.GatherAndCount(reg, "balance_ledger_transactions_processed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNew_TwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)
	assert.Panics(t, func() { metrics.New(reg) })
}
