//go:build linux

package devmem

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// Config locates a u-dma-buf device. Zero fields take their defaults.
type Config struct {
	// Name is the device name, e.g. "udmabuf0".
	Name string

	// SysfsRoot is the u-dma-buf class directory.
	SysfsRoot string

	// DevRoot is the directory holding the device node.
	DevRoot string
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = DefaultBufferName
	}
	if c.SysfsRoot == "" {
		c.SysfsRoot = SysfsUDMABufPath
	}
	if c.DevRoot == "" {
		c.DevRoot = DevfsPath
	}
}

// Buffer is a physically contiguous region reserved by u-dma-buf. It
// implements [hal.Allocator] and [hal.CacheMaintainer].
type Buffer struct {
	mu    sync.Mutex
	cfg   Config
	phys  uint64
	mem   []byte
	arena arena
}

var (
	_ hal.Allocator       = (*Buffer)(nil)
	_ hal.CacheMaintainer = (*Buffer)(nil)
)

// OpenBuffer maps the u-dma-buf device described by cfg.
func OpenBuffer(cfg Config) (*Buffer, error) {
	cfg.setDefaults()

	phys, err := readSysfsHex(bufferAttr(cfg.SysfsRoot, cfg.Name, attrPhysAddr))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	size, err := readSysfsUint(bufferAttr(cfg.SysfsRoot, cfg.Name, attrSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	if size == 0 {
		return nil, fmt.Errorf("%s: %w: zero-sized buffer", cfg.Name, pkg.ErrNoMemory)
	}

	path := filepath.Join(cfg.DevRoot, cfg.Name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	pkg.LogDebug(pkg.ComponentHAL, "DMA buffer mapped",
		"name", cfg.Name,
		"phys", pkg.Hex(phys),
		"size", size)
	return &Buffer{
		cfg:   cfg,
		phys:  phys,
		mem:   mem,
		arena: arena{size: int(size)},
	}, nil
}

// Close unmaps the buffer. Regions handed out become invalid.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}

// Phys returns the bus address of the buffer.
func (b *Buffer) Phys() uint64 { return b.phys }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int { return b.arena.size }

// AllocateCoherent implements [hal.Allocator].
func (b *Buffer) AllocateCoherent(size int) (hal.Region, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mem == nil {
		return hal.Region{}, fmt.Errorf("%w: buffer closed", pkg.ErrNoMemory)
	}

	off, err := b.arena.alloc(size)
	if err != nil {
		return hal.Region{}, err
	}
	mem := b.mem[off : off+size : off+size]
	clear(mem)
	return hal.Region{Bytes: mem, Phys: b.phys + uint64(off)}, nil
}

// Free implements [hal.Allocator]. Space is reclaimed once every region
// has been freed.
func (b *Buffer) Free(r hal.Region) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.contains(r.Phys, r.Len()) {
		return fmt.Errorf("%w: region %#x not from this buffer", pkg.ErrInvalidParameter, r.Phys)
	}
	b.arena.free()
	return nil
}

// InvalidateForCPU implements [hal.CacheMaintainer].
func (b *Buffer) InvalidateForCPU(seg hal.Segment) {
	if !b.contains(seg.Phys, seg.Len()) {
		pkg.LogWarn(pkg.ComponentHAL, "cache sync outside DMA buffer",
			"phys", pkg.Hex(seg.Phys),
			"len", seg.Len())
		return
	}

	attr := func(name string) string { return bufferAttr(b.cfg.SysfsRoot, b.cfg.Name, name) }
	steps := []struct {
		name string
		v    uint64
	}{
		{attrSyncOffset, seg.Phys - b.phys},
		{attrSyncSize, uint64(seg.Len())},
		{attrSyncDirection, syncFromDevice},
		{attrSyncForCPU, 1},
	}
	for _, s := range steps {
		if err := writeSysfsUint(attr(s.name), s.v); err != nil {
			pkg.LogWarn(pkg.ComponentHAL, "cache sync failed",
				"attr", s.name,
				"error", err)
			return
		}
	}
}

func (b *Buffer) contains(phys uint64, n int) bool {
	return phys >= b.phys && phys+uint64(n) <= b.phys+uint64(b.arena.size)
}

// =============================================================================
// Bump Arena
// =============================================================================

// arena hands out offsets from a fixed-size buffer. Power-of-two sizes are
// aligned to their size, everything else to allocAlign.
type arena struct {
	size int
	next int
	live int
}

func (a *arena) alloc(size int) (int, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: allocation of %d bytes", pkg.ErrInvalidParameter, size)
	}
	align := allocAlign
	if bits.OnesCount(uint(size)) == 1 && size > align {
		align = size
	}
	off := (a.next + align - 1) &^ (align - 1)
	if off+size > a.size {
		return 0, fmt.Errorf("%w: %d bytes requested, %d free", pkg.ErrNoMemory, size, max(a.size-off, 0))
	}
	a.next = off + size
	a.live++
	return off, nil
}

func (a *arena) free() {
	if a.live > 0 {
		a.live--
	}
	if a.live == 0 {
		a.next = 0
	}
}
