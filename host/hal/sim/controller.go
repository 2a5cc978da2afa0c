package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/host/reg"
	"github.com/ardnew/softmmc/pkg"
)

// IDMAC descriptor DES0 bits as the simulated DMA master decodes them.
const (
	descDIC = 1 << 1
	descLD  = 1 << 2
	descFD  = 1 << 3
	descCH  = 1 << 4
	descER  = 1 << 5
	descOWN = 1 << 31

	descSizeMask = 0x1fff

	// maxDescriptorWalk bounds one IDMAC run through a corrupt ring.
	maxDescriptorWalk = 1024
)

// Errors returned by the data-phase helpers.
var (
	ErrNoDataLength = errors.New("sim: BYTCNT is zero")
	ErrNotArmed     = errors.New("sim: external DMA not armed")
	ErrNoCard       = errors.New("sim: no card inserted")
)

// Config describes the synthesized hardware of a simulated controller.
type Config struct {
	// DataWidthCode is HCON[9:7]: 0 16-bit, 1 32-bit, 2 64-bit.
	// Reserved codes give a 32-bit FIFO.
	DataWidthCode uint32

	// TransMode is HCON[17:16]: 0 IDMAC, 1 or 2 external DMA, 3 none.
	TransMode uint32

	// Addr64 sets HCON[27], selecting 64-bit IDMAC descriptors.
	Addr64 bool

	// Version is VERID[15:0].
	Version uint32

	// FIFODepth is the data FIFO depth in access units.
	FIFODepth uint32

	// StuckResetBits are CTRL reset bits that never self-clear.
	StuckResetBits uint32

	// Memory backs DMA transfers. Defaults to 1 MiB at DefaultMemoryBase.
	Memory *Memory

	// Media is the inserted card. Defaults to 1 MiB of 512-byte blocks.
	Media *Media
}

// DefaultConfig returns a 32-bit IDMAC controller of version 2.70a with a
// 32-entry FIFO.
func DefaultConfig() Config {
	return Config{
		DataWidthCode: reg.HDataWidth32,
		TransMode:     reg.TransModeIDMA,
		Version:       0x270a,
		FIFODepth:     32,
	}
}

type phase uint8

const (
	phaseIdle phase = iota
	phaseRead
	phaseWrite
)

// Controller is a register-level model of a DesignWare MMC controller and
// its card. It implements [hal.WideBus].
//
// Data moves once a test plays the command layer and calls
// [Controller.StartRead] or [Controller.StartWrite] after the host armed
// the transfer. DMA transfers complete synchronously inside that call; PIO
// transfers stream through the FIFO as the host services it.
type Controller struct {
	mu   sync.Mutex
	cfg  Config
	mem  *Memory
	card *Media
	dmac *DMAC

	regs       map[uint32]uint32
	writes     map[uint32]int
	unit       int
	dataOffset uint32

	fifo     []uint64
	phase    phase
	src      []byte // read data not yet in the FIFO
	sink     []byte // write data received so far
	length   int
	mediaOff int64

	injectRaw   uint32
	injectIDMAC uint32

	irq chan struct{}
}

// NewController powers up a controller with the given configuration.
func NewController(cfg Config) *Controller {
	if cfg.FIFODepth == 0 {
		cfg.FIFODepth = 32
	}
	if cfg.Memory == nil {
		cfg.Memory = NewMemory(DefaultMemoryBase, 1<<20)
	}
	if cfg.Media == nil {
		cfg.Media = NewMedia(1<<20, DefaultBlockSize)
	}

	c := &Controller{
		cfg:    cfg,
		mem:    cfg.Memory,
		card:   cfg.Media,
		regs:   make(map[uint32]uint32),
		writes: make(map[uint32]int),
		irq:    make(chan struct{}, 1),
	}

	switch cfg.DataWidthCode {
	case reg.HDataWidth16:
		c.unit = 2
	case reg.HDataWidth64:
		c.unit = 8
	default:
		c.unit = 4
	}
	c.dataOffset = reg.DataOffset
	if cfg.Version >= reg.Version240a {
		c.dataOffset = reg.DataOffset240a
	}

	hcon := reg.SetField(uint32(0), 7, 3, cfg.DataWidthCode)
	hcon = reg.SetField(hcon, 16, 2, cfg.TransMode)
	if cfg.Addr64 {
		hcon = reg.SetField(hcon, 27, 1, 1)
	}
	c.regs[reg.HCON] = hcon
	c.regs[reg.VERID] = 0x5342<<16 | cfg.Version&0xffff
	c.regs[reg.FIFOTH] = reg.FIFOTh(0, cfg.FIFODepth-1, 0)
	if !c.card.IsPresent() {
		c.regs[reg.CDETECT] = 1
	}

	pkg.LogDebug(pkg.ComponentSim, "controller powered up",
		"hcon", fmt.Sprintf("%#08x", hcon),
		"verid", fmt.Sprintf("%#08x", c.regs[reg.VERID]),
		"fifoDepth", cfg.FIFODepth)
	return c
}

// Memory returns the simulated RAM used for DMA.
func (c *Controller) Memory() *Memory { return c.mem }

// Media returns the simulated card storage.
func (c *Controller) Media() *Media { return c.card }

// DataOffset returns the offset of the data FIFO register.
func (c *Controller) DataOffset() uint32 { return c.dataOffset }

// AttachDMAC connects an external DMA controller to the FIFO handshake.
func (c *Controller) AttachDMAC(d *DMAC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dmac = d
}

// IRQ returns a channel that receives a value whenever the interrupt line
// becomes asserted. Check [Controller.Asserted] for the current level.
func (c *Controller) IRQ() <-chan struct{} { return c.irq }

// Asserted reports the level of the interrupt line.
func (c *Controller) Asserted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.asserted()
}

func (c *Controller) asserted() bool {
	if c.regs[reg.CTRL]&reg.CtrlIntEnable != 0 && c.regs[reg.RINTSTS]&c.regs[reg.INTMASK] != 0 {
		return true
	}
	return c.regs[c.idstsOff()]&(c.regs[c.idintenOff()]|reg.IdmacAI) != 0
}

func (c *Controller) notify() {
	if !c.asserted() {
		return
	}
	select {
	case c.irq <- struct{}{}:
	default:
	}
}

// Reg returns a register value without access side effects.
func (c *Controller) Reg(offset uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[offset]
}

// Writes returns how many times the register at offset was written.
func (c *Controller) Writes(offset uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[offset]
}

// FIFOCount returns the number of units in the data FIFO.
func (c *Controller) FIFOCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fifo)
}

func (c *Controller) idstsOff() uint32 {
	if c.cfg.Addr64 {
		return reg.IDSTS64
	}
	return reg.IDSTS
}

func (c *Controller) idintenOff() uint32 {
	if c.cfg.Addr64 {
		return reg.IDINTEN64
	}
	return reg.IDINTEN
}

func (c *Controller) dbaddr() uint64 {
	if c.cfg.Addr64 {
		return uint64(c.regs[reg.DBADDRU])<<32 | uint64(c.regs[reg.DBADDRL])
	}
	return uint64(c.regs[reg.DBADDR])
}

// =============================================================================
// Register bus
// =============================================================================

// Read32 implements [hal.RegisterBus].
func (c *Controller) Read32(offset uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case offset >= c.dataOffset:
		return uint32(c.pop())
	case offset == reg.MINTSTS:
		return c.regs[reg.RINTSTS] & c.regs[reg.INTMASK]
	case offset == reg.STATUS:
		return reg.SetField(uint32(0), 17, 13, uint32(len(c.fifo)))
	default:
		return c.regs[offset]
	}
}

// Write32 implements [hal.RegisterBus].
func (c *Controller) Write32(offset, value uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes[offset]++

	switch {
	case offset >= c.dataOffset:
		c.push(uint64(value))
	case offset == reg.CTRL:
		c.writeCtrl(value)
	case offset == reg.RINTSTS:
		c.regs[reg.RINTSTS] &^= value
	case offset == c.idstsOff():
		c.regs[offset] &^= value
	case offset == reg.BMOD:
		// Software reset self-clears.
		c.regs[reg.BMOD] = value &^ reg.BmodSWReset
	default:
		c.regs[offset] = value
	}
	c.notify()
}

// Read16 implements [hal.WideBus].
func (c *Controller) Read16(offset uint32) uint16 {
	if offset >= c.dataOffset {
		c.mu.Lock()
		defer c.mu.Unlock()
		return uint16(c.pop())
	}
	return uint16(c.Read32(offset))
}

// Write16 implements [hal.WideBus].
func (c *Controller) Write16(offset uint32, value uint16) {
	c.Write32(offset, uint32(value))
}

// Read64 implements [hal.WideBus].
func (c *Controller) Read64(offset uint32) uint64 {
	if offset >= c.dataOffset {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.pop()
	}
	return uint64(c.Read32(offset)) | uint64(c.Read32(offset+4))<<32
}

// Write64 implements [hal.WideBus].
func (c *Controller) Write64(offset uint32, value uint64) {
	if offset >= c.dataOffset {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.writes[offset]++
		c.push(value)
		c.notify()
		return
	}
	c.Write32(offset, uint32(value))
	c.Write32(offset+4, uint32(value>>32))
}

func (c *Controller) writeCtrl(value uint32) {
	if value&reg.CtrlReset != 0 {
		c.phase = phaseIdle
		c.fifo = nil
	}
	if value&reg.CtrlFIFOReset != 0 {
		c.fifo = nil
	}
	selfClear := uint32(reg.CtrlAllResetFlags) &^ c.cfg.StuckResetBits
	c.regs[reg.CTRL] = value &^ selfClear
}

// =============================================================================
// Card side
// =============================================================================

// InjectError makes the next data phase end with the given RINTSTS and
// IDSTS error bits instead of moving data.
func (c *Controller) InjectError(raw, idsts uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.injectRaw = raw
	c.injectIDMAC = idsts
}

// StartRead begins a read data phase of BYTCNT bytes from card offset off,
// as the command layer would by issuing a read command.
func (c *Controller) StartRead(off int64) error {
	return c.start(phaseRead, off)
}

// StartWrite begins a write data phase of BYTCNT bytes to card offset off.
func (c *Controller) StartWrite(off int64) error {
	return c.start(phaseWrite, off)
}

func (c *Controller) start(p phase, off int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.notify()

	if !c.card.IsPresent() {
		return ErrNoCard
	}
	n := int(c.regs[reg.BYTCNT])
	if n == 0 {
		return ErrNoDataLength
	}

	c.length = n
	c.mediaOff = off
	c.sink = c.sink[:0]
	c.src = nil
	if p == phaseRead {
		c.src = make([]byte, n)
		if _, err := c.card.ReadAt(c.src, off); err != nil {
			return err
		}
	}
	c.phase = p

	if c.injectRaw|c.injectIDMAC != 0 {
		c.regs[reg.RINTSTS] |= c.injectRaw
		if c.injectIDMAC != 0 {
			c.regs[c.idstsOff()] |= c.injectIDMAC | reg.IdmacAI
		}
		c.injectRaw, c.injectIDMAC = 0, 0
		c.phase = phaseIdle
		return nil
	}

	ctrl := c.regs[reg.CTRL]
	switch {
	case ctrl&reg.CtrlUseIDMAC != 0 && c.regs[reg.BMOD]&reg.BmodDE != 0:
		c.runIDMAC()
	case ctrl&reg.CtrlDMAEnable != 0:
		return c.runEDMAC()
	default:
		c.pump()
	}
	return nil
}

// RemoveCard pulls the card: the data phase stops and a card-detect
// interrupt is raised.
func (c *Controller) RemoveCard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.card.SetPresent(false)
	c.regs[reg.CDETECT] = 1
	c.regs[reg.RINTSTS] |= reg.IntCD
	c.phase = phaseIdle
	c.fifo = nil
	c.notify()
}

// InsertCard reinserts the card and raises a card-detect interrupt.
func (c *Controller) InsertCard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.card.SetPresent(true)
	c.regs[reg.CDETECT] = 0
	c.regs[reg.RINTSTS] |= reg.IntCD
	c.notify()
}

// finish ends the data phase and raises DATA_OVER.
func (c *Controller) finish() {
	if c.phase == phaseWrite {
		if _, err := c.card.WriteAt(c.sink[:min(len(c.sink), c.length)], c.mediaOff); err != nil {
			pkg.LogWarn(pkg.ComponentSim, "card write failed", "error", err)
			c.regs[reg.RINTSTS] |= reg.IntEBE
		}
	}
	c.phase = phaseIdle
	c.regs[reg.RINTSTS] |= reg.IntDataOver
}

// move transfers one DMA buffer between memory and the card stream.
func (c *Controller) move(buf []byte) {
	if c.phase == phaseRead {
		n := copy(buf, c.src)
		c.src = c.src[n:]
		return
	}
	n := min(len(buf), c.length-len(c.sink))
	c.sink = append(c.sink, buf[:n]...)
}

// =============================================================================
// DMA masters
// =============================================================================

func (c *Controller) runIDMAC() {
	size := 16
	if c.cfg.Addr64 {
		size = 32
	}
	base := c.dbaddr()
	addr := base

	for range maxDescriptorWalk {
		d := c.mem.Slice(addr, size)
		if d == nil {
			c.abortIDMAC(reg.IdmacFBE)
			return
		}
		des0 := binary.LittleEndian.Uint32(d)
		if des0&descOWN == 0 {
			c.abortIDMAC(reg.IdmacDU)
			return
		}

		var n int
		var buf, next uint64
		if c.cfg.Addr64 {
			n = int(binary.LittleEndian.Uint32(d[8:]) & descSizeMask)
			buf = binary.LittleEndian.Uint64(d[16:])
			next = binary.LittleEndian.Uint64(d[24:])
		} else {
			n = int(binary.LittleEndian.Uint32(d[4:]) & descSizeMask)
			buf = uint64(binary.LittleEndian.Uint32(d[8:]))
			next = uint64(binary.LittleEndian.Uint32(d[12:]))
		}
		data := c.mem.Slice(buf, n)
		if data == nil {
			c.abortIDMAC(reg.IdmacFBE)
			return
		}
		c.move(data)
		binary.LittleEndian.PutUint32(d, des0&^descOWN)

		if des0&descLD != 0 {
			done := uint32(reg.IdmacRI)
			if c.phase == phaseWrite {
				done = reg.IdmacTI
			}
			c.finish()
			c.regs[c.idstsOff()] |= done | reg.IdmacNI
			return
		}
		switch {
		case des0&descCH != 0:
			addr = next
		case des0&descER != 0:
			addr = base
		default:
			addr += uint64(size)
		}
	}
	c.abortIDMAC(reg.IdmacDU)
}

func (c *Controller) abortIDMAC(bits uint32) {
	pkg.LogDebug(pkg.ComponentSim, "IDMAC abort", "idsts", bits)
	c.phase = phaseIdle
	c.regs[c.idstsOff()] |= bits | reg.IdmacAI
}

func (c *Controller) runEDMAC() error {
	if c.dmac == nil {
		c.phase = phaseIdle
		return ErrNotArmed
	}
	dir := hal.DirectionRead
	if c.phase == phaseWrite {
		dir = hal.DirectionWrite
	}
	segs, ok := c.dmac.take(dir)
	if !ok {
		c.phase = phaseIdle
		return ErrNotArmed
	}
	for _, s := range segs {
		c.move(s.Buf)
	}
	c.finish()
	return nil
}

// =============================================================================
// FIFO
// =============================================================================

// pop removes one unit from the FIFO. An empty FIFO reads as zero.
func (c *Controller) pop() uint64 {
	if len(c.fifo) == 0 {
		return 0
	}
	v := c.fifo[0]
	c.fifo = c.fifo[1:]
	c.pump()
	return v
}

func (c *Controller) push(v uint64) {
	if c.unit < 8 {
		v &= 1<<(8*c.unit) - 1
	}
	c.fifo = append(c.fifo, v)
	c.pump()
}

// pump moves data between the card and the FIFO for a PIO data phase and
// updates the FIFO request interrupts.
func (c *Controller) pump() {
	switch c.phase {
	case phaseRead:
		var u [8]byte
		for uint32(len(c.fifo)) < c.cfg.FIFODepth && len(c.src) > 0 {
			u = [8]byte{}
			n := copy(u[:c.unit], c.src)
			c.src = c.src[n:]
			c.fifo = append(c.fifo, binary.LittleEndian.Uint64(u[:]))
		}
		if len(c.src) == 0 {
			c.finish()
		}
		rx := reg.FIFOThRxWmark(c.regs[reg.FIFOTH])
		if uint32(len(c.fifo)) > rx || (c.phase == phaseIdle && len(c.fifo) > 0) {
			c.regs[reg.RINTSTS] |= reg.IntRXDR
		}

	case phaseWrite:
		var u [8]byte
		for _, v := range c.fifo {
			binary.LittleEndian.PutUint64(u[:], v)
			n := min(c.unit, c.length-len(c.sink))
			c.sink = append(c.sink, u[:n]...)
		}
		c.fifo = c.fifo[:0]
		if len(c.sink) >= c.length {
			c.finish()
			return
		}
		c.regs[reg.RINTSTS] |= reg.IntTXDR
	}
}
