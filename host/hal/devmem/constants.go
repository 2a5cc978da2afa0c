package devmem

// =============================================================================
// System Paths
// =============================================================================

// DevMemPath is the physical memory device node.
const DevMemPath = "/dev/mem"

// SysfsUDMABufPath is the base path of u-dma-buf devices in sysfs.
const SysfsUDMABufPath = "/sys/class/u-dma-buf"

// DevfsPath is the directory holding u-dma-buf device nodes.
const DevfsPath = "/dev"

// DefaultBufferName is the first u-dma-buf device.
const DefaultBufferName = "udmabuf0"

// =============================================================================
// Register Window
// =============================================================================

// DefaultWindowSize covers the register file and the relocated data FIFO
// of a DesignWare MMC controller.
const DefaultWindowSize = 0x1000

// =============================================================================
// u-dma-buf Attributes
// =============================================================================

// u-dma-buf sysfs attribute names.
const (
	attrPhysAddr      = "phys_addr"
	attrSize          = "size"
	attrSyncOffset    = "sync_offset"
	attrSyncSize      = "sync_size"
	attrSyncDirection = "sync_direction"
	attrSyncForCPU    = "sync_for_cpu"
)

// syncFromDevice is the DMA_FROM_DEVICE direction for sync_direction.
const syncFromDevice = 2

// allocAlign is the minimum alignment of allocations that are not a power
// of two in size.
const allocAlign = 64
