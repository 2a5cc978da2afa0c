//go:build linux

package devmem

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// Bus is a controller register window mapped from physical memory. It
// implements [hal.WideBus].
//
// Offsets must be naturally aligned to the access width. An offset outside
// the window panics.
type Bus struct {
	mem   []byte // page-aligned mapping
	delta int    // offset of the window base within mem
	size  int
}

var _ hal.WideBus = (*Bus)(nil)

// OpenBus maps size bytes of physical memory at base through /dev/mem.
func OpenBus(base uint64, size int) (*Bus, error) {
	return openBus(DevMemPath, base, size)
}

func openBus(path string, base uint64, size int) (*Bus, error) {
	if size <= 0 {
		size = DefaultWindowSize
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	defer unix.Close(fd)

	page := uint64(unix.Getpagesize())
	start := base &^ (page - 1)
	delta := int(base - start)
	length := (delta + size + int(page) - 1) &^ (int(page) - 1)

	mem, err := unix.Mmap(fd, int64(start), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s at %#x: %w", path, start, err)
	}

	pkg.LogDebug(pkg.ComponentHAL, "register window mapped",
		"base", pkg.Hex(base),
		"size", size)
	return &Bus{mem: mem, delta: delta, size: size}, nil
}

// Close unmaps the register window.
func (b *Bus) Close() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}

// Size returns the window size in bytes.
func (b *Bus) Size() int { return b.size }

func (b *Bus) ptr(off uint32, n int) unsafe.Pointer {
	if int(off)+n > b.size {
		panic(fmt.Sprintf("devmem: access [%#x:%#x] outside %#x-byte window", off, int(off)+n, b.size))
	}
	return unsafe.Pointer(&b.mem[b.delta+int(off)])
}

// Read32 implements [hal.RegisterBus].
func (b *Bus) Read32(off uint32) uint32 {
	return atomic.LoadUint32((*uint32)(b.ptr(off, 4)))
}

// Write32 implements [hal.RegisterBus].
func (b *Bus) Write32(off uint32, v uint32) {
	atomic.StoreUint32((*uint32)(b.ptr(off, 4)), v)
}

// Read16 implements [hal.WideBus].
func (b *Bus) Read16(off uint32) uint16 {
	return *(*uint16)(b.ptr(off, 2))
}

// Write16 implements [hal.WideBus].
func (b *Bus) Write16(off uint32, v uint16) {
	*(*uint16)(b.ptr(off, 2)) = v
}

// Read64 implements [hal.WideBus].
func (b *Bus) Read64(off uint32) uint64 {
	return atomic.LoadUint64((*uint64)(b.ptr(off, 8)))
}

// Write64 implements [hal.WideBus].
func (b *Bus) Write64(off uint32, v uint64) {
	atomic.StoreUint64((*uint64)(b.ptr(off, 8)), v)
}
