package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAccumulate(t *testing.T) {
	before := MetricsSnapshotNow()

	MetricsDescriptorFlush(3, 2)
	MetricsDummyWrites(4)
	MetricsPipelineBuilt()
	MetricsPipelineLayoutBuilt()
	MetricsTemporaryFallback()
	MetricsUnmappedBinding()

	after := MetricsSnapshotNow()
	assert.GreaterOrEqual(t, after.DescriptorSetsFlushed-before.DescriptorSetsFlushed, uint64(1))
	assert.GreaterOrEqual(t, after.DescriptorWrites-before.DescriptorWrites, uint64(3))
	assert.GreaterOrEqual(t, after.DescriptorCopies-before.DescriptorCopies, uint64(2))
	assert.GreaterOrEqual(t, after.DummyWrites-before.DummyWrites, uint64(4))
	assert.GreaterOrEqual(t, after.PipelinesBuilt-before.PipelinesBuilt, uint64(1))
	assert.GreaterOrEqual(t, after.PipelineLayoutsBuilt-before.PipelineLayoutsBuilt, uint64(1))
	assert.GreaterOrEqual(t, after.TemporaryFallbacks-before.TemporaryFallbacks, uint64(1))
	assert.GreaterOrEqual(t, after.UnmappedBindings-before.UnmappedBindings, uint64(1))
}
