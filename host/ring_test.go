package host

import (
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/host/hal/sim"
	"github.com/ardnew/softmmc/pkg"
)

func newTestRing(t *testing.T, format DescriptorFormat) (*Ring, *sim.Memory) {
	t.Helper()
	mem := sim.NewMemory(sim.DefaultMemoryBase, 1<<20)
	r, err := NewRing(mem, sim.NewClock(0, 10*time.Microsecond), format)
	if err != nil {
		t.Fatalf("NewRing(%v): %v", format, err)
	}
	return r, mem
}

// =============================================================================
// Ring Layout Tests
// =============================================================================

func TestRing_Layout(t *testing.T) {
	tests := []struct {
		format DescriptorFormat
		n      int
	}{
		{Format32, 256},
		{Format64, 128},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			r, _ := newTestRing(t, tt.format)

			if r.Len() != tt.n {
				t.Fatalf("Len() = %d, want %d", r.Len(), tt.n)
			}
			if r.Base()%RingBytes != 0 {
				t.Errorf("Base() = %#x not page aligned", r.Base())
			}

			er := 0
			for i := range r.Len() {
				d := r.Descriptor(i)
				if d.Flags()&DescER != 0 {
					er++
					if i != r.Len()-1 {
						t.Errorf("descriptor %d carries end-of-ring", i)
					}
				}
				if d.Flags()&DescOWN != 0 || d.BufferSize() != 0 || d.Buffer() != 0 {
					t.Errorf("descriptor %d not cleared: %+v", i, d)
				}
			}
			if er != 1 {
				t.Errorf("%d descriptors carry end-of-ring, want 1", er)
			}
		})
	}
}

func TestRing_Cycle(t *testing.T) {
	for _, format := range []DescriptorFormat{Format32, Format64} {
		t.Run(format.String(), func(t *testing.T) {
			r, _ := newTestRing(t, format)

			addr := r.Base()
			seen := make(map[int]bool)
			for hop := range r.Len() {
				i, ok := r.Index(addr)
				if !ok {
					t.Fatalf("hop %d: %#x is not a descriptor address", hop, addr)
				}
				if seen[i] {
					t.Fatalf("hop %d: descriptor %d visited twice", hop, i)
				}
				seen[i] = true
				addr = r.Descriptor(i).Next()
			}
			if addr != r.Base() {
				t.Errorf("after %d hops at %#x, want %#x", r.Len(), addr, r.Base())
			}
		})
	}
}

func TestRing_Index(t *testing.T) {
	r, _ := newTestRing(t, Format64)

	if i, ok := r.Index(r.Addr(5)); !ok || i != 5 {
		t.Errorf("Index(Addr(5)) = %d, %v", i, ok)
	}
	for _, addr := range []uint64{r.Base() - 32, r.Base() + 4, r.Base() + RingBytes} {
		if _, ok := r.Index(addr); ok {
			t.Errorf("Index(%#x) accepted", addr)
		}
	}
}

// =============================================================================
// NewRing Tests
// =============================================================================

func TestNewRing_Errors(t *testing.T) {
	clk := sim.NewClock(0, time.Microsecond)

	if _, err := NewRing(nil, clk, Format32); !errors.Is(err, pkg.ErrNoMemory) {
		t.Errorf("nil allocator: %v", err)
	}

	mem := sim.NewMemory(sim.DefaultMemoryBase, 1<<16)
	mem.FailAllocations(1)
	if _, err := NewRing(mem, clk, Format32); !errors.Is(err, pkg.ErrNoMemory) {
		t.Errorf("failed allocation: %v", err)
	}

	high := sim.NewMemory(0x2_0000_0000, 1<<16)
	if _, err := NewRing(high, clk, Format32); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("32-bit ring above 4 GiB: %v", err)
	}
	if high.Live() != 0 {
		t.Errorf("rejected ring leaked its region")
	}
	if _, err := NewRing(high, clk, Format64); err != nil {
		t.Errorf("64-bit ring above 4 GiB: %v", err)
	}
}

func TestRing_Free(t *testing.T) {
	r, mem := newTestRing(t, Format32)
	if err := r.Free(); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if mem.Live() != 0 {
		t.Errorf("Live() = %d after Free", mem.Live())
	}
	if err := r.Free(); err != nil {
		t.Errorf("second Free: %v", err)
	}
}

// =============================================================================
// Prepare Tests
// =============================================================================

func TestRing_PrepareSplitsSegments(t *testing.T) {
	for _, format := range []DescriptorFormat{Format32, Format64} {
		t.Run(format.String(), func(t *testing.T) {
			r, mem := newTestRing(t, format)
			buf, _ := mem.AllocateCoherent(16384)

			segs := []hal.Segment{buf.Segment(0, 10000), buf.Segment(12288, 512)}
			n, err := r.Prepare(segs, 10512)
			if err != nil {
				t.Fatalf("Prepare: %v", err)
			}
			if n != 4 {
				t.Fatalf("Prepare used %d descriptors, want 4", n)
			}

			want := []struct {
				flags uint32
				size  uint32
				buf   uint64
			}{
				{DescOWN | DescDIC | DescCH | DescFD, 4096, buf.Phys},
				{DescOWN | DescDIC | DescCH, 4096, buf.Phys + 4096},
				{DescOWN | DescDIC | DescCH, 1808, buf.Phys + 8192},
				{DescOWN | DescLD, 512, buf.Phys + 12288},
			}
			for i, w := range want {
				d := r.Descriptor(i)
				if d.Flags() != w.flags {
					t.Errorf("descriptor %d flags = %#x, want %#x", i, d.Flags(), w.flags)
				}
				if d.BufferSize() != w.size {
					t.Errorf("descriptor %d size = %d, want %d", i, d.BufferSize(), w.size)
				}
				if d.Buffer() != w.buf {
					t.Errorf("descriptor %d buffer = %#x, want %#x", i, d.Buffer(), w.buf)
				}
				if d.Next() != r.Addr(i+1) {
					t.Errorf("descriptor %d next = %#x, want %#x", i, d.Next(), r.Addr(i+1))
				}
			}
			if r.Descriptor(n).Flags()&DescOWN != 0 {
				t.Error("descriptor past the transfer handed to the IDMAC")
			}
			if r.Descriptor(r.Len()-1).Flags()&DescER == 0 {
				t.Error("end-of-ring lost by Prepare")
			}

			r.Release()
			for i := range n {
				if r.Descriptor(i).Flags()&DescOWN != 0 {
					t.Errorf("descriptor %d still owned after Release", i)
				}
			}
		})
	}
}

func TestRing_PrepareTrimsToTotal(t *testing.T) {
	r, mem := newTestRing(t, Format32)
	buf, _ := mem.AllocateCoherent(4096)

	n, err := r.Prepare([]hal.Segment{buf.Segment(0, 2048), buf.Segment(2048, 2048)}, 1024)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if n != 1 || r.Descriptor(0).BufferSize() != 1024 {
		t.Errorf("n = %d, size = %d; want one 1024-byte descriptor", n, r.Descriptor(0).BufferSize())
	}
	if r.Descriptor(0).Flags()&(DescFD|DescLD) != DescFD|DescLD {
		t.Errorf("single descriptor flags = %#x, want FD|LD", r.Descriptor(0).Flags())
	}
}

func TestRing_PrepareErrors(t *testing.T) {
	r, mem := newTestRing(t, Format64)
	buf, _ := mem.AllocateCoherent(8192)

	many := make([]hal.Segment, r.Len()+1)
	for i := range many {
		many[i] = buf.Segment(i*16, 16)
	}

	tests := []struct {
		name  string
		segs  []hal.Segment
		total int
		err   error
	}{
		{"zero length", []hal.Segment{buf.Segment(0, 16)}, 0, pkg.ErrInvalidParameter},
		{"short segments", []hal.Segment{buf.Segment(0, 16)}, 32, pkg.ErrInvalidParameter},
		{"no segments", nil, 16, pkg.ErrInvalidParameter},
		{"ring overflow", many, 16 * len(many), pkg.ErrNoResources},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Prepare(tt.segs, tt.total); !errors.Is(err, tt.err) {
				t.Fatalf("Prepare error = %v, want %v", err, tt.err)
			}
			for i := range r.Len() {
				if r.Descriptor(i).Flags()&DescOWN != 0 {
					t.Fatalf("descriptor %d left owned after failed Prepare", i)
				}
			}
		})
	}
}

func TestRing_Prepare32BitReach(t *testing.T) {
	r, _ := newTestRing(t, Format32)
	seg := hal.Segment{Buf: make([]byte, 64), Phys: 0x1_0000_0000}

	if _, err := r.Prepare([]hal.Segment{seg}, 64); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Prepare above 4 GiB = %v, want ErrInvalidParameter", err)
	}
}

func TestRing_PrepareWhileOwned(t *testing.T) {
	r, mem := newTestRing(t, Format32)
	buf, _ := mem.AllocateCoherent(64)
	segs := []hal.Segment{buf.Segment(0, 64)}

	if _, err := r.Prepare(segs, 64); err != nil {
		t.Fatalf("first Prepare: %v", err)
	}
	if _, err := r.Prepare(segs, 64); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("Prepare over owned descriptors = %v, want ErrBusy", err)
	}
	if _, err := r.Prepare(segs, 64); err != nil {
		t.Errorf("Prepare after relink: %v", err)
	}
}

// =============================================================================
// Descriptor Tests
// =============================================================================

func TestDescriptor_Decode(t *testing.T) {
	b := make([]byte, 32)
	Descriptor64{Des0: DescOWN | DescLD, Des2: 5<<13 | 512, Des4: 0x1000, Des5: 0x2, Des6: 0x40, Des7: 0x3}.encode(b)

	d := DecodeDescriptor(Format64, b)
	if d.BufferSize() != 512 {
		t.Errorf("BufferSize() = %d, want size field only", d.BufferSize())
	}
	if d.Buffer() != 0x2_0000_1000 {
		t.Errorf("Buffer() = %#x", d.Buffer())
	}
	if d.Next() != 0x3_0000_0040 {
		t.Errorf("Next() = %#x", d.Next())
	}
	if _, ok := d.(Descriptor64); !ok {
		t.Errorf("decoded %T, want Descriptor64", d)
	}

	d = DecodeDescriptor(Format32, b[:16])
	if _, ok := d.(Descriptor32); !ok {
		t.Errorf("decoded %T, want Descriptor32", d)
	}
}
