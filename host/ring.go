package host

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/pkg"
)

// Descriptor control bits (DES0).
const (
	DescDIC = 1 << 1  // Disable interrupt on completion
	DescLD  = 1 << 2  // Last descriptor of a transfer
	DescFD  = 1 << 3  // First descriptor of a transfer
	DescCH  = 1 << 4  // Second address is the next descriptor
	DescER  = 1 << 5  // End of ring
	DescCES = 1 << 30 // Card error summary
	DescOWN = 1 << 31 // Owned by the IDMAC
)

const (
	// RingBytes is the size of the coherent region holding a ring.
	RingBytes = 4096

	// DescDataLength is the largest buffer one descriptor may describe.
	DescDataLength = 0x1000

	descSizeMask = 0x1fff

	// descOwnTimeout bounds the wait for the IDMAC to hand back a
	// descriptor that is still marked as owned.
	descOwnTimeout = 100 * time.Microsecond
)

// DescriptorFormat selects the descriptor layout of a ring.
type DescriptorFormat uint8

// Descriptor formats.
const (
	Format32 DescriptorFormat = iota // 16-byte descriptors, 32-bit addresses
	Format64                         // 32-byte descriptors, 64-bit addresses
)

// Size returns the descriptor size in bytes.
func (f DescriptorFormat) Size() int {
	if f == Format64 {
		return 32
	}
	return 16
}

// String returns the format name.
func (f DescriptorFormat) String() string {
	if f == Format64 {
		return "64-bit"
	}
	return "32-bit"
}

// Descriptor is one IDMAC descriptor: either [Descriptor32] or [Descriptor64].
type Descriptor interface {
	// Flags returns the DES0 control word.
	Flags() uint32

	// BufferSize returns the buffer 1 size field.
	BufferSize() uint32

	// Buffer returns the buffer 1 bus address.
	Buffer() uint64

	// Next returns the bus address of the next descriptor.
	Next() uint64

	format() DescriptorFormat
	encode(b []byte)
}

// Descriptor32 is the IDMAC descriptor for 32-bit addressing.
type Descriptor32 struct {
	Des0 uint32 // Control and status
	Des1 uint32 // Buffer sizes
	Des2 uint32 // Buffer 1 address
	Des3 uint32 // Next descriptor address
}

func (d Descriptor32) Flags() uint32            { return d.Des0 }
func (d Descriptor32) BufferSize() uint32       { return d.Des1 & descSizeMask }
func (d Descriptor32) Buffer() uint64           { return uint64(d.Des2) }
func (d Descriptor32) Next() uint64             { return uint64(d.Des3) }
func (d Descriptor32) format() DescriptorFormat { return Format32 }

func (d Descriptor32) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], d.Des0)
	binary.LittleEndian.PutUint32(b[4:], d.Des1)
	binary.LittleEndian.PutUint32(b[8:], d.Des2)
	binary.LittleEndian.PutUint32(b[12:], d.Des3)
}

// Descriptor64 is the IDMAC descriptor for 64-bit addressing.
type Descriptor64 struct {
	Des0 uint32 // Control and status
	Des1 uint32 // Reserved
	Des2 uint32 // Buffer sizes
	Des3 uint32 // Reserved
	Des4 uint32 // Buffer 1 address [31:0]
	Des5 uint32 // Buffer 1 address [63:32]
	Des6 uint32 // Next descriptor address [31:0]
	Des7 uint32 // Next descriptor address [63:32]
}

func (d Descriptor64) Flags() uint32            { return d.Des0 }
func (d Descriptor64) BufferSize() uint32       { return d.Des2 & descSizeMask }
func (d Descriptor64) Buffer() uint64           { return uint64(d.Des5)<<32 | uint64(d.Des4) }
func (d Descriptor64) Next() uint64             { return uint64(d.Des7)<<32 | uint64(d.Des6) }
func (d Descriptor64) format() DescriptorFormat { return Format64 }

func (d Descriptor64) encode(b []byte) {
	for i, w := range [8]uint32{d.Des0, d.Des1, d.Des2, d.Des3, d.Des4, d.Des5, d.Des6, d.Des7} {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
}

// DecodeDescriptor reads a descriptor of format f from b.
func DecodeDescriptor(f DescriptorFormat, b []byte) Descriptor {
	le := binary.LittleEndian
	if f == Format64 {
		return Descriptor64{
			Des0: le.Uint32(b[0:]), Des1: le.Uint32(b[4:]),
			Des2: le.Uint32(b[8:]), Des3: le.Uint32(b[12:]),
			Des4: le.Uint32(b[16:]), Des5: le.Uint32(b[20:]),
			Des6: le.Uint32(b[24:]), Des7: le.Uint32(b[28:]),
		}
	}
	return Descriptor32{
		Des0: le.Uint32(b[0:]), Des1: le.Uint32(b[4:]),
		Des2: le.Uint32(b[8:]), Des3: le.Uint32(b[12:]),
	}
}

// Ring is a circular, chained IDMAC descriptor list in coherent memory.
//
// The descriptor format is fixed when the ring is allocated. The last
// descriptor links back to the first and is the only one carrying DescER.
type Ring struct {
	mem    hal.Allocator
	clk    hal.Clock
	region hal.Region
	format DescriptorFormat
	n      int
}

// NewRing allocates one page of coherent memory and links it into a ring
// of descriptors of the given format.
func NewRing(mem hal.Allocator, clk hal.Clock, format DescriptorFormat) (*Ring, error) {
	if mem == nil {
		return nil, fmt.Errorf("%w: no allocator", pkg.ErrNoMemory)
	}
	region, err := mem.AllocateCoherent(RingBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrNoMemory, err)
	}
	if region.Len() < RingBytes {
		mem.Free(region)
		return nil, fmt.Errorf("%w: ring region is %d bytes", pkg.ErrNoMemory, region.Len())
	}
	if format == Format32 && region.Phys+RingBytes > 1<<32 {
		mem.Free(region)
		return nil, fmt.Errorf("%w: ring at %#x not reachable with 32-bit descriptors",
			pkg.ErrInvalidParameter, region.Phys)
	}

	r := &Ring{
		mem:    mem,
		clk:    clk,
		region: region,
		format: format,
		n:      RingBytes / format.Size(),
	}
	r.link()
	return r, nil
}

// Len returns the number of descriptors in the ring.
func (r *Ring) Len() int { return r.n }

// Format returns the descriptor format of the ring.
func (r *Ring) Format() DescriptorFormat { return r.format }

// Base returns the bus address of the first descriptor.
func (r *Ring) Base() uint64 { return r.region.Phys }

// Addr returns the bus address of descriptor i.
func (r *Ring) Addr(i int) uint64 {
	return r.region.Phys + uint64(i*r.format.Size())
}

// Index returns the ring index of the descriptor at bus address addr.
func (r *Ring) Index(addr uint64) (int, bool) {
	if addr < r.region.Phys {
		return 0, false
	}
	off := addr - r.region.Phys
	size := uint64(r.format.Size())
	if off%size != 0 || off/size >= uint64(r.n) {
		return 0, false
	}
	return int(off / size), true
}

// Descriptor decodes descriptor i.
func (r *Ring) Descriptor(i int) Descriptor {
	return DecodeDescriptor(r.format, r.slot(i))
}

func (r *Ring) slot(i int) []byte {
	size := r.format.Size()
	return r.region.Bytes[i*size : (i+1)*size]
}

func (r *Ring) store(i int, d Descriptor) {
	d.encode(r.slot(i))
}

// descriptor builds descriptor i of the ring's format. A zero size leaves
// the buffer fields clear.
func (r *Ring) descriptor(i int, flags, size uint32, buf uint64) Descriptor {
	next := r.Addr((i + 1) % r.n)
	if i == r.n-1 {
		flags |= DescER
	}
	if r.format == Format64 {
		return Descriptor64{
			Des0: flags,
			Des2: size & descSizeMask,
			Des4: uint32(buf),
			Des5: uint32(buf >> 32),
			Des6: uint32(next),
			Des7: uint32(next >> 32),
		}
	}
	return Descriptor32{
		Des0: flags,
		Des1: size & descSizeMask,
		Des2: uint32(buf),
		Des3: uint32(next),
	}
}

// link forward-links every descriptor, wraps the last one to the first and
// clears all ownership, size and buffer fields.
func (r *Ring) link() {
	for i := 0; i < r.n; i++ {
		r.store(i, r.descriptor(i, 0, 0, 0))
	}
}

// Release returns every descriptor to the CPU and relinks the ring.
func (r *Ring) Release() {
	r.link()
}

// Prepare fills descriptors for the first total bytes of segs, starting at
// descriptor 0, and hands them to the IDMAC. Segments longer than
// [DescDataLength] are split across several descriptors. Returns the number
// of descriptors used.
func (r *Ring) Prepare(segs []hal.Segment, total int) (int, error) {
	if total <= 0 {
		return 0, pkg.ErrInvalidParameter
	}

	i := 0
	remain := total
	for _, seg := range segs {
		if remain == 0 {
			break
		}
		length := min(seg.Len(), remain)
		remain -= length
		addr := seg.Phys
		if r.format == Format32 && addr+uint64(length) > 1<<32 {
			r.link()
			return 0, fmt.Errorf("%w: segment at %#x beyond 32-bit descriptor reach",
				pkg.ErrInvalidParameter, addr)
		}

		for length > 0 {
			if i == r.n {
				r.link()
				return 0, fmt.Errorf("%w: transfer needs more than %d descriptors",
					pkg.ErrNoResources, r.n)
			}
			if !r.waitReleased(i) {
				r.link()
				return 0, fmt.Errorf("%w: descriptor %d still owned by IDMAC", pkg.ErrBusy, i)
			}

			n := min(length, DescDataLength)
			r.store(i, r.descriptor(i, DescOWN|DescDIC|DescCH, uint32(n), addr))
			addr += uint64(n)
			length -= n
			i++
		}
	}
	if remain > 0 || i == 0 {
		r.link()
		return 0, fmt.Errorf("%w: segments hold %d of %d bytes",
			pkg.ErrInvalidParameter, total-remain, total)
	}

	r.setFlags(0, DescFD, 0)
	r.setFlags(i-1, DescLD, DescCH|DescDIC)
	return i, nil
}

// setFlags sets and clears DES0 bits of descriptor i in place.
func (r *Ring) setFlags(i int, set, clear uint32) {
	b := r.slot(i)
	des0 := binary.LittleEndian.Uint32(b)
	binary.LittleEndian.PutUint32(b, des0&^clear|set)
}

// waitReleased polls until descriptor i is no longer owned by the IDMAC.
func (r *Ring) waitReleased(i int) bool {
	owned := func() bool { return r.Descriptor(i).Flags()&DescOWN != 0 }
	if !owned() {
		return true
	}
	if r.clk == nil {
		return false
	}
	deadline := r.clk.Ticks() + r.clk.TicksFor(descOwnTimeout)
	for before(r.clk.Ticks(), deadline) {
		if !owned() {
			return true
		}
	}
	return !owned()
}

// Free releases the ring's coherent memory. The ring must not be used after.
func (r *Ring) Free() error {
	if r.region.Bytes == nil {
		return nil
	}
	err := r.mem.Free(r.region)
	r.region = hal.Region{}
	r.n = 0
	return err
}
