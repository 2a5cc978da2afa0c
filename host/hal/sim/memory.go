package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// DefaultMemoryBase is the bus address of the first byte of simulated RAM.
// It sits below 4 GiB so 32-bit descriptors can reach it.
const DefaultMemoryBase = 0x4000_0000

// ErrAllocationFailed is returned by [Memory.AllocateCoherent] when a
// failure was injected with [Memory.FailAllocations].
var ErrAllocationFailed = errors.New("sim: injected allocation failure")

// Memory is a flat block of simulated physical RAM. It implements
// [hal.Allocator] with a bump allocator and lets the simulated DMA masters
// resolve bus addresses back to bytes.
type Memory struct {
	mu    sync.Mutex
	base  uint64
	ram   []byte
	next  int
	live  int
	fails int
}

// NewMemory returns size bytes of simulated RAM starting at bus address base.
func NewMemory(base uint64, size int) *Memory {
	return &Memory{base: base, ram: make([]byte, size)}
}

// Base returns the bus address of the first byte.
func (m *Memory) Base() uint64 { return m.base }

// FailAllocations makes the next n calls to AllocateCoherent fail.
func (m *Memory) FailAllocations(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fails = n
}

// Live returns the number of regions allocated and not yet freed.
func (m *Memory) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// AllocateCoherent returns a zeroed region of size bytes. Power-of-two
// sizes are aligned to their size, anything else to 8 bytes.
func (m *Memory) AllocateCoherent(size int) (hal.Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fails > 0 {
		m.fails--
		return hal.Region{}, ErrAllocationFailed
	}
	if size <= 0 {
		return hal.Region{}, fmt.Errorf("%w: size %d", pkg.ErrInvalidParameter, size)
	}

	align := 8
	if size&(size-1) == 0 && size > align {
		align = size
	}
	off := (m.next + align - 1) &^ (align - 1)
	if off+size > len(m.ram) {
		return hal.Region{}, fmt.Errorf("%w: %d bytes requested, %d free",
			pkg.ErrNoMemory, size, len(m.ram)-off)
	}
	m.next = off + size
	m.live++

	b := m.ram[off : off+size : off+size]
	clear(b)
	return hal.Region{Bytes: b, Phys: m.base + uint64(off)}, nil
}

// Free releases a region. The bump allocator never reuses space.
func (m *Memory) Free(r hal.Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Bytes == nil {
		return nil
	}
	if m.live == 0 {
		return fmt.Errorf("%w: free without allocation", pkg.ErrInvalidParameter)
	}
	m.live--
	return nil
}

// Slice returns the n bytes at bus address phys, or nil if any of them
// fall outside the simulated RAM.
func (m *Memory) Slice(phys uint64, n int) []byte {
	if phys < m.base || n < 0 {
		return nil
	}
	off := phys - m.base
	if off > uint64(len(m.ram)) || uint64(n) > uint64(len(m.ram))-off {
		return nil
	}
	return m.ram[off : off+uint64(n)]
}
