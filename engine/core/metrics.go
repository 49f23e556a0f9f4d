package core

import (
	"sync"
	"sync/atomic"
)

// MetricsState counts binding work for the lifetime of the process.
type MetricsState struct {
	DescriptorSetsFlushed atomic.Uint64
	DescriptorWrites      atomic.Uint64
	DescriptorCopies      atomic.Uint64
	DummyWrites           atomic.Uint64
	PipelinesBuilt        atomic.Uint64
	PipelineLayoutsBuilt  atomic.Uint64
	TemporaryFallbacks    atomic.Uint64
	UnmappedBindings      atomic.Uint64
}

type MetricsSnapshot struct {
	DescriptorSetsFlushed uint64
	DescriptorWrites      uint64
	DescriptorCopies      uint64
	DummyWrites           uint64
	PipelinesBuilt        uint64
	PipelineLayoutsBuilt  uint64
	TemporaryFallbacks    uint64
	UnmappedBindings      uint64
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil

func metrics() *MetricsState {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{}
	})
	return metricsState
}

func MetricsDescriptorFlush(writes, copies int) {
	m := metrics()
	m.DescriptorSetsFlushed.Add(1)
	m.DescriptorWrites.Add(uint64(writes))
	m.DescriptorCopies.Add(uint64(copies))
}

func MetricsDummyWrites(count int) {
	metrics().DummyWrites.Add(uint64(count))
}

func MetricsPipelineBuilt() {
	metrics().PipelinesBuilt.Add(1)
}

func MetricsPipelineLayoutBuilt() {
	metrics().PipelineLayoutsBuilt.Add(1)
}

func MetricsTemporaryFallback() {
	metrics().TemporaryFallbacks.Add(1)
}

func MetricsUnmappedBinding() {
	metrics().UnmappedBindings.Add(1)
}

func MetricsSnapshotNow() MetricsSnapshot {
	m := metrics()
	return MetricsSnapshot{
		DescriptorSetsFlushed: m.DescriptorSetsFlushed.Load(),
		DescriptorWrites:      m.DescriptorWrites.Load(),
		DescriptorCopies:      m.DescriptorCopies.Load(),
		DummyWrites:           m.DummyWrites.Load(),
		PipelinesBuilt:        m.PipelinesBuilt.Load(),
		PipelineLayoutsBuilt:  m.PipelineLayoutsBuilt.Load(),
		TemporaryFallbacks:    m.TemporaryFallbacks.Load(),
		UnmappedBindings:      m.UnmappedBindings.Load(),
	}
}
