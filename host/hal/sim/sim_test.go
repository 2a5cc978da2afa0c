package sim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/host/reg"
)

// =============================================================================
// Memory Tests
// =============================================================================

func TestMemoryAllocateAligned(t *testing.T) {
	m := NewMemory(DefaultMemoryBase, 64*1024)

	a, err := m.AllocateCoherent(24)
	if err != nil {
		t.Fatalf("AllocateCoherent(24): %v", err)
	}
	b, err := m.AllocateCoherent(4096)
	if err != nil {
		t.Fatalf("AllocateCoherent(4096): %v", err)
	}

	if a.Phys != DefaultMemoryBase {
		t.Errorf("first region at %#x, want %#x", a.Phys, DefaultMemoryBase)
	}
	if b.Phys%4096 != 0 {
		t.Errorf("page region at %#x not page aligned", b.Phys)
	}
	if b.Len() != 4096 {
		t.Errorf("page region is %d bytes", b.Len())
	}
	if m.Live() != 2 {
		t.Errorf("Live() = %d, want 2", m.Live())
	}

	b.Bytes[0] = 0xa5
	if got := m.Slice(b.Phys, 1); got[0] != 0xa5 {
		t.Errorf("Slice does not alias region memory")
	}

	if err := m.Free(a); err != nil {
		t.Errorf("Free: %v", err)
	}
	if m.Live() != 1 {
		t.Errorf("Live() after Free = %d, want 1", m.Live())
	}
}

func TestMemoryFailAllocations(t *testing.T) {
	m := NewMemory(DefaultMemoryBase, 8192)
	m.FailAllocations(1)

	if _, err := m.AllocateCoherent(64); !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("first allocation error = %v, want ErrAllocationFailed", err)
	}
	if _, err := m.AllocateCoherent(64); err != nil {
		t.Fatalf("second allocation: %v", err)
	}
	if _, err := m.AllocateCoherent(16384); err == nil {
		t.Fatal("oversized allocation succeeded")
	}
}

func TestMemorySliceBounds(t *testing.T) {
	m := NewMemory(0x1000, 256)

	tests := []struct {
		name string
		phys uint64
		n    int
		ok   bool
	}{
		{"start", 0x1000, 16, true},
		{"whole", 0x1000, 256, true},
		{"end", 0x10f0, 16, true},
		{"below", 0x0ff0, 16, false},
		{"past end", 0x10f8, 16, false},
		{"far", 0xffff_0000, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Slice(tt.phys, tt.n)
			if (got != nil) != tt.ok {
				t.Errorf("Slice(%#x, %d) = %v, want ok=%v", tt.phys, tt.n, got != nil, tt.ok)
			}
		})
	}
}

// =============================================================================
// Clock Tests
// =============================================================================

func TestClockSteps(t *testing.T) {
	c := NewClock(100, time.Millisecond)

	if got := c.Ticks(); got != 100 {
		t.Errorf("first Ticks() = %d, want 100", got)
	}
	if got := c.Peek(); got != 100+uint64(time.Millisecond) {
		t.Errorf("Peek() = %d", got)
	}
	if got := c.Last(); got != 100 {
		t.Errorf("Last() = %d, want 100", got)
	}

	c.Advance(time.Second)
	if got := c.Ticks(); got != 100+uint64(time.Millisecond+time.Second) {
		t.Errorf("Ticks() after Advance = %d", got)
	}
	if got := c.TicksFor(-time.Second); got != 0 {
		t.Errorf("TicksFor(negative) = %d", got)
	}
}

// =============================================================================
// Media Tests
// =============================================================================

func TestMediaBlocks(t *testing.T) {
	m := NewMedia(4*DefaultBlockSize, DefaultBlockSize)
	if m.BlockCount() != 4 {
		t.Fatalf("BlockCount() = %d, want 4", m.BlockCount())
	}

	block := bytes.Repeat([]byte{0x5a}, DefaultBlockSize)
	if _, err := m.WriteBlocks(2, 1, block); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
	got := make([]byte, DefaultBlockSize)
	if _, err := m.ReadBlocks(2, 1, got); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if !bytes.Equal(got, block) {
		t.Error("block read back differs")
	}

	if _, err := m.ReadBlocks(0, 1, got[:10]); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("short buffer error = %v", err)
	}

	m.SetReadOnly(true)
	if _, err := m.WriteAt([]byte{1}, 0); !errors.Is(err, os.ErrPermission) {
		t.Errorf("write to read-only media error = %v", err)
	}

	m.SetPresent(false)
	if _, err := m.ReadAt(got, 0); err == nil {
		t.Error("read from absent media succeeded")
	}
}

// =============================================================================
// Controller Tests
// =============================================================================

func TestControllerCapabilities(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		width  uint32
		mode   uint32
		addr64 bool
		offset uint32
	}{
		{"16-bit PIO old", Config{DataWidthCode: 0, TransMode: 3, Version: 0x210a}, 0, 3, false, reg.DataOffset},
		{"32-bit IDMAC", Config{DataWidthCode: 1, TransMode: 0, Version: 0x240a}, 1, 0, false, reg.DataOffset240a},
		{"64-bit IDMAC64", Config{DataWidthCode: 2, TransMode: 0, Addr64: true, Version: 0x290a}, 2, 0, true, reg.DataOffset240a},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(tt.cfg)
			hcon := c.Read32(reg.HCON)
			if got := reg.HconDataWidth(hcon); got != tt.width {
				t.Errorf("width code = %d, want %d", got, tt.width)
			}
			if got := reg.HconTransMode(hcon); got != tt.mode {
				t.Errorf("trans mode = %d, want %d", got, tt.mode)
			}
			if got := reg.HconAddrConfig(hcon); got != tt.addr64 {
				t.Errorf("addr config = %v, want %v", got, tt.addr64)
			}
			if c.DataOffset() != tt.offset {
				t.Errorf("DataOffset() = %#x, want %#x", c.DataOffset(), tt.offset)
			}
			if got := reg.FIFOThRxWmark(c.Read32(reg.FIFOTH)); got != 31 {
				t.Errorf("power-on RX watermark = %d, want 31", got)
			}
		})
	}
}

func TestControllerResetBits(t *testing.T) {
	c := NewController(Config{StuckResetBits: reg.CtrlFIFOReset})

	c.Write32(reg.CTRL, reg.CtrlIntEnable|reg.CtrlAllResetFlags)
	ctrl := c.Read32(reg.CTRL)
	if ctrl&reg.CtrlFIFOReset == 0 {
		t.Error("stuck FIFO reset bit cleared")
	}
	if ctrl&(reg.CtrlReset|reg.CtrlDMAReset) != 0 {
		t.Errorf("self-clearing reset bits still set: %#x", ctrl)
	}
	if ctrl&reg.CtrlIntEnable == 0 {
		t.Error("non-reset bits lost")
	}
}

func TestControllerInterruptAck(t *testing.T) {
	c := NewController(Config{})
	c.Write32(reg.INTMASK, reg.IntCD)
	c.Write32(reg.CTRL, reg.CtrlIntEnable)

	c.RemoveCard()
	if !c.Asserted() {
		t.Fatal("card removal did not assert the interrupt line")
	}
	select {
	case <-c.IRQ():
	default:
		t.Error("no IRQ event delivered")
	}
	if c.Read32(reg.CDETECT)&1 == 0 {
		t.Error("CDETECT reports card present after removal")
	}
	if got := c.Read32(reg.MINTSTS); got != reg.IntCD {
		t.Errorf("MINTSTS = %#x, want CD", got)
	}

	c.Write32(reg.RINTSTS, reg.IntCD)
	if c.Asserted() {
		t.Error("interrupt line still asserted after ack")
	}
	if !errors.Is(c.StartRead(0), ErrNoCard) {
		t.Error("data phase started without a card")
	}
}

func TestControllerPIORead(t *testing.T) {
	media := NewMedia(4096, DefaultBlockSize)
	want := make([]byte, 10)
	for i := range want {
		want[i] = byte(i + 1)
	}
	media.WriteAt(want, 0)

	c := NewController(Config{DataWidthCode: reg.HDataWidth32, FIFODepth: 2, Media: media})
	c.Write32(reg.FIFOTH, reg.FIFOTh(2, 0, 1))
	c.Write32(reg.BYTCNT, uint32(len(want)))
	if err := c.StartRead(0); err != nil {
		t.Fatalf("StartRead: %v", err)
	}
	if c.FIFOCount() != 2 {
		t.Fatalf("FIFO holds %d units, want 2", c.FIFOCount())
	}
	if c.Reg(reg.RINTSTS)&reg.IntRXDR == 0 {
		t.Error("RXDR not raised above the watermark")
	}

	var got []byte
	for range 3 {
		v := c.Read32(c.DataOffset())
		got = append(got, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	if !bytes.Equal(got[:10], want) {
		t.Errorf("FIFO data = %x, want %x", got[:10], want)
	}
	if got[10] != 0 || got[11] != 0 {
		t.Error("final unit not zero padded")
	}
	if c.Reg(reg.RINTSTS)&reg.IntDataOver == 0 {
		t.Error("DATA_OVER not raised")
	}
}

func TestControllerPIOWrite(t *testing.T) {
	c := NewController(Config{DataWidthCode: reg.HDataWidth16})
	c.Write32(reg.BYTCNT, 5)
	if err := c.StartWrite(100); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}
	if c.Reg(reg.RINTSTS)&reg.IntTXDR == 0 {
		t.Fatal("TXDR not raised for write")
	}

	for _, v := range []uint16{0x0201, 0x0403, 0x0005} {
		c.Write16(c.DataOffset(), v)
	}
	if c.Reg(reg.RINTSTS)&reg.IntDataOver == 0 {
		t.Fatal("DATA_OVER not raised")
	}
	got := make([]byte, 6)
	c.Media().ReadAt(got, 100)
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 0}) {
		t.Errorf("card data = %x", got)
	}
}

func TestControllerIDMACWalk(t *testing.T) {
	mem := NewMemory(DefaultMemoryBase, 64*1024)
	media := NewMedia(4096, DefaultBlockSize)
	media.WriteAt(bytes.Repeat([]byte{0xc3}, 64), 0)
	c := NewController(Config{Memory: mem, Media: media})

	ring, _ := mem.AllocateCoherent(4096)
	data, _ := mem.AllocateCoherent(64)

	// One 32-bit descriptor: OWN|FD|LD|ER, 64 bytes, chained to itself.
	d := ring.Bytes[:16]
	binary.LittleEndian.PutUint32(d[0:], descOWN|descFD|descLD|descER)
	binary.LittleEndian.PutUint32(d[4:], 64)
	binary.LittleEndian.PutUint32(d[8:], uint32(data.Phys))
	binary.LittleEndian.PutUint32(d[12:], uint32(ring.Phys))

	c.Write32(reg.DBADDR, uint32(ring.Phys))
	c.Write32(reg.IDINTEN, reg.IdmacNI|reg.IdmacRI|reg.IdmacTI)
	c.Write32(reg.CTRL, reg.CtrlUseIDMAC)
	c.Write32(reg.BMOD, reg.BmodDE|reg.BmodFB)
	c.Write32(reg.BYTCNT, 64)
	c.Write32(reg.PLDMND, 1)

	if err := c.StartRead(0); err != nil {
		t.Fatalf("StartRead: %v", err)
	}
	if !bytes.Equal(data.Bytes, bytes.Repeat([]byte{0xc3}, 64)) {
		t.Error("IDMAC did not fill the buffer")
	}
	if c.Reg(reg.IDSTS)&reg.IdmacRI == 0 {
		t.Error("IDSTS RI not set")
	}
	if binary.LittleEndian.Uint32(d)&descOWN != 0 {
		t.Error("descriptor still owned by IDMAC")
	}

	// The descriptor now belongs to the CPU, so a second run stops short.
	c.Write32(reg.IDSTS, reg.IdmacIntClear)
	c.StartRead(0)
	if c.Reg(reg.IDSTS)&(reg.IdmacDU|reg.IdmacAI) != reg.IdmacDU|reg.IdmacAI {
		t.Errorf("IDSTS = %#x, want DU|AI", c.Reg(reg.IDSTS))
	}
}

func TestControllerExternalDMA(t *testing.T) {
	mem := NewMemory(DefaultMemoryBase, 64*1024)
	c := NewController(Config{TransMode: reg.TransModeGDMA, Memory: mem})
	dmac := NewDMAC()
	c.AttachDMAC(dmac)

	buf, _ := mem.AllocateCoherent(32)
	copy(buf.Bytes, bytes.Repeat([]byte{0x77}, 32))

	c.Write32(reg.BYTCNT, 32)
	c.Write32(reg.CTRL, reg.CtrlDMAEnable)
	if err := c.StartWrite(0); !errors.Is(err, ErrNotArmed) {
		t.Fatalf("unarmed StartWrite error = %v", err)
	}

	if err := dmac.Start(hal.DirectionWrite, []hal.Segment{buf.Segment(0, 32)}, 0x1200); err != nil {
		t.Fatalf("DMAC Start: %v", err)
	}
	if err := c.StartWrite(512); err != nil {
		t.Fatalf("StartWrite: %v", err)
	}
	got := make([]byte, 32)
	c.Media().ReadAt(got, 512)
	if !bytes.Equal(got, buf.Bytes) {
		t.Error("external DMA did not reach the card")
	}
	if dmac.FIFOAddr() != 0x1200 {
		t.Errorf("FIFOAddr() = %#x", dmac.FIFOAddr())
	}
	if starts, _, _ := dmac.Stats(); starts != 1 {
		t.Errorf("starts = %d, want 1", starts)
	}
}

func TestControllerInjectError(t *testing.T) {
	c := NewController(Config{})
	c.Write32(reg.BYTCNT, 512)
	c.InjectError(reg.IntDCRC, 0)
	if err := c.StartRead(0); err != nil {
		t.Fatalf("StartRead: %v", err)
	}
	if c.Reg(reg.RINTSTS)&reg.IntDCRC == 0 {
		t.Error("injected DCRC not raised")
	}
	if c.Reg(reg.RINTSTS)&reg.IntDataOver != 0 {
		t.Error("failed data phase raised DATA_OVER")
	}
}
