package fsstats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/FlorianSauer/fragstore/meta"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestObserveSetsGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.Observe(meta.Stats{
		CompoundCount: 3,
		FragmentCount: 10,
		SavedBytes:    1024,
	})

	if v := gaugeValue(t, r.compoundCount); v != 3 {
		t.Fatalf("compoundCount = %v, want 3", v)
	}
	if v := gaugeValue(t, r.savedBytes); v != 1024 {
		t.Fatalf("savedBytes = %v, want 1024", v)
	}
}

func TestNilRegistryMethodsAreNoOps(t *testing.T) {
	var r *Registry
	r.CompoundSaved()
	r.CompoundLoaded()
	r.GCRun()
	r.ManipulatedHit()
	r.GCReclaimed(1, 2)
}
