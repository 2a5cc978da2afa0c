package hal

import (
	"fmt"
	"time"
)

// Direction indicates which way data moves across the bus.
type Direction uint8

// Transfer directions.
const (
	DirectionRead  Direction = iota // Card to host memory
	DirectionWrite                  // Host memory to card
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	switch d {
	case DirectionRead:
		return "read"
	case DirectionWrite:
		return "write"
	default:
		return "unknown"
	}
}

// RegisterBus provides access to the controller's 32-bit register file.
//
// Offsets are relative to the controller base address. Accesses are assumed
// atomic and non-blocking. A faulting read is indistinguishable from a
// register that reads as zero.
type RegisterBus interface {
	// Read32 reads the 32-bit register at offset.
	Read32(offset uint32) uint32

	// Write32 writes value to the 32-bit register at offset.
	Write32(offset uint32, value uint32)
}

// WideBus is implemented by register buses that can issue 16-bit and 64-bit
// accesses. The data FIFO of a controller whose native width is not 32 bits
// must be accessed at that width; the host engine type-asserts for this
// interface when such a controller is probed.
type WideBus interface {
	RegisterBus

	Read16(offset uint32) uint16
	Write16(offset uint32, value uint16)
	Read64(offset uint32) uint64
	Write64(offset uint32, value uint64)
}

// Region is a block of physically contiguous, DMA-coherent memory.
type Region struct {
	Bytes []byte // CPU view of the memory
	Phys  uint64 // Bus address of Bytes[0]
}

// Len returns the size of the region in bytes.
func (r Region) Len() int {
	return len(r.Bytes)
}

// Segment returns the n bytes at offset off as a transfer segment.
// Panics if the range falls outside the region.
func (r Region) Segment(off, n int) Segment {
	if off < 0 || n < 0 || off+n > len(r.Bytes) {
		panic(fmt.Sprintf("hal: segment [%d:%d] outside region of %d bytes", off, off+n, len(r.Bytes)))
	}
	return Segment{Buf: r.Bytes[off : off+n], Phys: r.Phys + uint64(off)}
}

// Segment is one contiguous piece of a transfer buffer.
//
// Buf is used by the PIO path and for cache maintenance; Phys is what the
// DMA engines hand to hardware. A segment produced by [Region.Segment]
// carries both.
type Segment struct {
	Buf  []byte
	Phys uint64
}

// Len returns the segment length in bytes.
func (s Segment) Len() int {
	return len(s.Buf)
}

// Allocator hands out DMA-coherent memory.
type Allocator interface {
	// AllocateCoherent returns a zeroed region of at least size bytes,
	// aligned to size when size is a power of two.
	AllocateCoherent(size int) (Region, error)

	// Free returns a region obtained from AllocateCoherent.
	Free(r Region) error
}

// Clock is a monotonic tick source used for every bounded poll loop.
type Clock interface {
	// Ticks returns the current tick count. It may wrap.
	Ticks() uint64

	// TicksFor converts a duration to a tick count.
	TicksFor(d time.Duration) uint64
}

// CacheMaintainer keeps CPU caches coherent with buffers written by an
// external DMA master. Implementations are optional; descriptor DMA and PIO
// never need them.
type CacheMaintainer interface {
	// InvalidateForCPU discards cached lines covering seg so the CPU
	// observes data written by the device.
	InvalidateForCPU(seg Segment)
}

// ExternalDMA is a system DMA controller wired to the host controller's
// FIFO handshake lines.
type ExternalDMA interface {
	// Start programs the DMA controller to move segs to or from the data
	// FIFO at fifoPhys.
	Start(dir Direction, segs []Segment, fifoPhys uint64) error

	// Terminate aborts any transfer in progress. It must be safe to call
	// when nothing is running.
	Terminate()
}
