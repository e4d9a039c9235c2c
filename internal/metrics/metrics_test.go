package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Operation("journal", "create")
	m.Operation("journal", "create")
	m.AuditAppended("read")
	m.DecryptFailed("finance")
	m.KeyUnavailable()
	m.Exported("csv", 3)

	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("journal", "create")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.auditEntries.WithLabelValues("read")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.decryptFailures.WithLabelValues("finance")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.keyUnavailable))
	require.Equal(t, 3.0, testutil.ToFloat64(m.exportedRecords.WithLabelValues("csv")))
}

func TestSnapshot(t *testing.T) {
	m := New()
	m.Operation("finance", "delete")
	m.KeyUnavailable()

	lines, err := m.Snapshot()
	require.NoError(t, err)
	require.Equal(t, []string{
		`vault_key_unavailable_total 1`,
		`vault_operations_total{action="delete",module="finance"} 1`,
	}, lines)
}
