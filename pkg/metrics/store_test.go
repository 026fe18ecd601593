package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStoreMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetrics(reg)

	m.Mutation("deliveries", "insert")
	m.Mutation("deliveries", "insert")
	m.Mutation("Deliveries ", "UPDATE")
	m.EventDelivered("deliveries")

	if got := testutil.ToFloat64(m.mutations.WithLabelValues("deliveries", "insert")); got != 2 {
		t.Fatalf("expected 2 inserts, got %v", got)
	}
	if got := testutil.ToFloat64(m.mutations.WithLabelValues("deliveries", "update")); got != 1 {
		t.Fatalf("labels should normalize, got %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("deliveries")); got != 1 {
		t.Fatalf("expected 1 delivered event, got %v", got)
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	m := NewStoreMetrics(nil)
	m.Mutation("deliveries", "insert")
	m.EventDelivered("deliveries")

	var zero *StoreMetrics
	zero.Mutation("deliveries", "insert")
	zero.EventDelivered("deliveries")
}
