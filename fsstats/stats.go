// Package fsstats registers the Prometheus counters and gauges behind
// engine.Statistics, following the "*.n" counter / "*.size" byte count
// naming convention exported as Prometheus metrics.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package fsstats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/FlorianSauer/fragstore/meta"
)

// Registry wraps the Prometheus collectors fed by Observe. One Registry
// per Engine.
type Registry struct {
	compoundCount       prometheus.Gauge
	uniqueCompoundCount prometheus.Gauge
	fragmentCount       prometheus.Gauge
	resourceCount       prometheus.Gauge

	compoundSize prometheus.Gauge
	fragmentSize prometheus.Gauge
	resourceSize prometheus.Gauge

	multipleUsedCount prometheus.Gauge
	savedBytes        prometheus.Gauge

	compoundSaves   prometheus.Counter
	compoundLoads   prometheus.Counter
	gcRuns          prometheus.Counter
	gcFragsDeleted  prometheus.Counter
	gcResDeleted    prometheus.Counter
	manipulatedHits prometheus.Counter
}

// NewRegistry constructs a Registry and registers every collector against
// reg (pass prometheus.DefaultRegisterer for the global registry, or a
// fresh prometheus.NewRegistry() in tests).
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		compoundCount:       newGauge("fragstore_compound_n", "live compound count"),
		uniqueCompoundCount: newGauge("fragstore_compound_unique_n", "deduplicated live compound count"),
		fragmentCount:       newGauge("fragstore_fragment_n", "fragment count"),
		resourceCount:       newGauge("fragstore_resource_n", "resource count"),
		compoundSize:        newGauge("fragstore_compound_size", "total compound byte size"),
		fragmentSize:        newGauge("fragstore_fragment_size", "total fragment byte size"),
		resourceSize:        newGauge("fragstore_resource_size", "total resource byte size"),
		multipleUsedCount:   newGauge("fragstore_fragment_multiuse_n", "excess duplicate fragment references"),
		savedBytes:          newGauge("fragstore_saved_bytes", "bytes saved by deduplication"),

		compoundSaves:   newCounter("fragstore_compound_save_n", "compound save operations"),
		compoundLoads:   newCounter("fragstore_compound_load_n", "compound load operations"),
		gcRuns:          newCounter("fragstore_gc_run_n", "collectGarbage invocations"),
		gcFragsDeleted:  newCounter("fragstore_gc_fragment_deleted_n", "fragments deleted by collectGarbage"),
		gcResDeleted:    newCounter("fragstore_gc_resource_deleted_n", "resources deleted by collectGarbage"),
		manipulatedHits: newCounter("fragstore_manipulated_n", "ResourceManipulated/FragmentManipulated/CompoundManipulated detections"),
	}
	for _, c := range []prometheus.Collector{
		r.compoundCount, r.uniqueCompoundCount, r.fragmentCount, r.resourceCount,
		r.compoundSize, r.fragmentSize, r.resourceSize,
		r.multipleUsedCount, r.savedBytes,
		r.compoundSaves, r.compoundLoads, r.gcRuns, r.gcFragsDeleted, r.gcResDeleted, r.manipulatedHits,
	} {
		reg.MustRegister(c)
	}
	return r
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// Observe sets every gauge from a fresh meta.Stats snapshot (typically
// polled on a timer, the way a capacity refresher would).
func (r *Registry) Observe(s meta.Stats) {
	if r == nil {
		return
	}
	r.compoundCount.Set(float64(s.CompoundCount))
	r.uniqueCompoundCount.Set(float64(s.UniqueCompoundCount))
	r.fragmentCount.Set(float64(s.FragmentCount))
	r.resourceCount.Set(float64(s.ResourceCount))
	r.compoundSize.Set(float64(s.TotalCompoundSize))
	r.fragmentSize.Set(float64(s.TotalFragmentSize))
	r.resourceSize.Set(float64(s.TotalResourceSize))
	r.multipleUsedCount.Set(float64(s.MultipleUsedCount))
	r.savedBytes.Set(float64(s.SavedBytes))
}

// Every method below is nil-safe: a nil *Registry is a valid no-op stats
// sink, so callers needn't branch on whether stats were configured.

func (r *Registry) CompoundSaved() {
	if r != nil {
		r.compoundSaves.Inc()
	}
}

func (r *Registry) CompoundLoaded() {
	if r != nil {
		r.compoundLoads.Inc()
	}
}

func (r *Registry) GCRun() {
	if r != nil {
		r.gcRuns.Inc()
	}
}

func (r *Registry) ManipulatedHit() {
	if r != nil {
		r.manipulatedHits.Inc()
	}
}

func (r *Registry) GCReclaimed(fragments, resources int) {
	if r == nil {
		return
	}
	r.gcFragsDeleted.Add(float64(fragments))
	r.gcResDeleted.Add(float64(resources))
}
