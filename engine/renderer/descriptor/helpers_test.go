package descriptor

import (
	"testing"

	"github.com/spaghettifunk/vkbind/engine/renderer/headless"
	"github.com/spaghettifunk/vkbind/engine/renderer/metadata"
	"github.com/stretchr/testify/require"
)

func newTestPools(t *testing.T) (*GlobalPools, *headless.Device) {
	t.Helper()
	device := headless.NewDevice(metadata.DefaultDeviceLimits())
	pools, err := NewGlobalPools(device, DefaultPendingWrites)
	require.NoError(t, err)
	return pools, device
}

func allocate(t *testing.T, pools *GlobalPools, layout *CompiledDescriptorSetLayout) metadata.DescriptorSetHandle {
	t.Helper()
	set, err := pools.DescriptorPool.Allocate(layout.Handle)
	require.NoError(t, err)
	return set
}
