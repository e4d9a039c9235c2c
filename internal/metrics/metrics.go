// Package metrics keeps in-process Prometheus counters for vault activity.
// The registry is private to the process; there is no HTTP exporter.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	reg *prometheus.Registry

	operations      *prometheus.CounterVec
	auditEntries    *prometheus.CounterVec
	decryptFailures *prometheus.CounterVec
	keyUnavailable  prometheus.Counter
	exportedRecords *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "operations_total",
			Help:      "Completed store operations by module and action.",
		}, []string{"module", "action"}),
		auditEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "audit_entries_total",
			Help:      "Audit entries committed by action.",
		}, []string{"action"}),
		decryptFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "decrypt_failures_total",
			Help:      "Sealed fields rejected by the codec.",
		}, []string{"module"}),
		keyUnavailable: f.NewCounter(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "key_unavailable_total",
			Help:      "Operations refused because the master key was unavailable.",
		}),
		exportedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vault",
			Name:      "exported_records_total",
			Help:      "Records written to export artifacts by format.",
		}, []string{"format"}),
	}
}

func (m *Metrics) Operation(module, action string) {
	m.operations.WithLabelValues(module, action).Inc()
}

func (m *Metrics) AuditAppended(action string) {
	m.auditEntries.WithLabelValues(action).Inc()
}

func (m *Metrics) DecryptFailed(module string) {
	m.decryptFailures.WithLabelValues(module).Inc()
}

func (m *Metrics) KeyUnavailable() {
	m.keyUnavailable.Inc()
}

func (m *Metrics) Exported(format string, n int) {
	m.exportedRecords.WithLabelValues(format).Add(float64(n))
}

// Snapshot renders every non-zero series as "name{labels} value" lines,
// sorted, for display.
func (m *Metrics) Snapshot() ([]string, error) {
	families, err := m.reg.Gather()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, mf := range families {
		for _, s := range mf.GetMetric() {
			v := s.GetCounter().GetValue()
			if v == 0 {
				continue
			}
			labels := make([]string, 0, len(s.GetLabel()))
			for _, lp := range s.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			out = append(out, fmt.Sprintf("%s %g", name, v))
		}
	}
	sort.Strings(out)
	return out, nil
}
