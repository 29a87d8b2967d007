package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestMetrics_RecordLedgerWrite(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordLedgerWrite("set", "success")
	metrics.RecordLedgerWrite("add", "error")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var writes *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "test_ledger_writes_total" {
			writes = mf
		}
	}
	if writes == nil {
		t.Fatal("Expected test_ledger_writes_total to be registered")
	}
	if len(writes.GetMetric()) != 2 {
		t.Errorf("Expected 2 label combinations, got %d", len(writes.GetMetric()))
	}
}

func TestMetrics_RecordLedgerWriteDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordLedgerWriteDuration("set", 25*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected duration metric to be recorded")
	}
}

func TestMetrics_RecordBalance(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordBalance(1000)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected balance metric to be recorded")
	}
}
