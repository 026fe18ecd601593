package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics records document-store and change-bus activity. It satisfies
// docstore.Recorder.
type StoreMetrics struct {
	mutations *prometheus.CounterVec
	events    *prometheus.CounterVec
}

// NewStoreMetrics registers the store metrics on the provided registerer.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		return &StoreMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_mutations_total",
		Help: "Document store mutations by table and verb.",
	}, []string{"table", "verb"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docstore_events_delivered_total",
		Help: "Change feed events delivered to subscribers, by table.",
	}, []string{"table"})
	reg.MustRegister(mutations, events)
	return &StoreMetrics{
		mutations: mutations,
		events:    events,
	}
}

// Mutation counts a successful mutation on the named table.
func (s *StoreMetrics) Mutation(table, verb string) {
	if s == nil || s.mutations == nil {
		return
	}
	s.mutations.WithLabelValues(normalizeLabel(table), normalizeLabel(verb)).Inc()
}

// EventDelivered counts one subscriber callback invocation.
func (s *StoreMetrics) EventDelivered(table string) {
	if s == nil || s.events == nil {
		return
	}
	s.events.WithLabelValues(normalizeLabel(table)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
