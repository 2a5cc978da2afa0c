package host

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/softmmc/host/hal"
)

// DefaultResetTimeout bounds every controller reset poll.
const DefaultResetTimeout = 1000 * time.Millisecond

// Config carries the platform collaborators and tunables of a [Host].
type Config struct {
	// Allocator provides coherent memory for the descriptor ring.
	// Without one the controller runs in PIO mode.
	Allocator hal.Allocator

	// Clock bounds all poll loops. Defaults to [hal.NewSystemClock].
	Clock hal.Clock

	// ResetTimeout bounds controller, FIFO and DMA resets.
	// Defaults to [DefaultResetTimeout].
	ResetTimeout time.Duration

	// ExternalDMA is the system DMA controller used when the controller
	// is synthesized with a DMA handshake interface. Without one such a
	// controller falls back to PIO.
	ExternalDMA hal.ExternalDMA

	// Cache invalidates CPU caches after external DMA reads. Optional.
	Cache hal.CacheMaintainer

	// BasePhys is the bus address of the controller register file. The
	// external DMA controller addresses the data FIFO relative to it.
	BasePhys uint64

	// OnDataComplete is invoked after a transfer finishes so the upper
	// layer can proceed (send STOP, wait for busy release). It is not
	// invoked for transfers aborted by [Host.CancelActive].
	OnDataComplete func(*Transfer)
}

// DefaultConfig returns a configuration with default timeouts and the
// system clock.
func DefaultConfig() Config {
	return Config{
		Clock:        hal.NewSystemClock(),
		ResetTimeout: DefaultResetTimeout,
	}
}

// Host is the data-path state of one DesignWare MMC controller instance.
//
// A Host serves one transfer at a time. Calls into it are expected to be
// serialized by the owner, except that [Host.OnComplete] may race with
// [Host.CancelActive].
type Host struct {
	bus hal.RegisterBus
	cfg Config
	clk hal.Clock

	// Fixed at probe.
	width      AccessWidth
	fifoDepth  uint32
	fifoth     uint32
	version    uint32
	dataOffset uint32
	mode       TransferMode
	engine     dmaEngine
	probed     bool
	warnings   []error

	intmask uint32
	part    partialBuffer
	active  atomic.Pointer[Transfer]
	state   atomic.Uint32

	// teardownMu orders engine cleanup between completion and cancellation.
	teardownMu sync.Mutex
}

// New creates a host for the controller behind bus. Zero-valued fields of
// cfg take their defaults.
func New(bus hal.RegisterBus, cfg Config) *Host {
	if cfg.Clock == nil {
		cfg.Clock = hal.NewSystemClock()
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	return &Host{
		bus: bus,
		cfg: cfg,
		clk: cfg.Clock,
	}
}

// Close stops any DMA activity and frees the descriptor ring.
func (h *Host) Close() error {
	h.CancelActive()
	if h.engine == nil {
		return nil
	}
	err := h.engine.exit()
	h.engine = nil
	return err
}

// Width returns the native FIFO access width.
func (h *Host) Width() AccessWidth { return h.width }

// Mode returns the selected transfer mode.
func (h *Host) Mode() TransferMode { return h.mode }

// FIFODepth returns the FIFO depth in access units.
func (h *Host) FIFODepth() uint32 { return h.fifoDepth }

// FIFOThreshold returns the FIFOTH value programmed at probe.
func (h *Host) FIFOThreshold() uint32 { return h.fifoth }

// Version returns the controller version ID.
func (h *Host) Version() uint32 { return h.version }

// DataOffset returns the offset of the data FIFO register.
func (h *Host) DataOffset() uint32 { return h.dataOffset }

// Ring returns the descriptor ring, or nil when not in IDMAC mode.
func (h *Host) Ring() *Ring {
	if d, ok := h.engine.(*idmac); ok {
		return d.ring
	}
	return nil
}

// Warnings returns the non-fatal conditions recorded during probe.
func (h *Host) Warnings() []error {
	return append([]error(nil), h.warnings...)
}

// State returns the state of the transfer state machine.
func (h *Host) State() TransferState {
	return TransferState(h.state.Load())
}

// Active returns the outstanding transfer, or nil.
func (h *Host) Active() *Transfer {
	return h.active.Load()
}

func (h *Host) setState(s TransferState) {
	h.state.Store(uint32(s))
}

func (h *Host) warn(err error) {
	h.warnings = append(h.warnings, err)
}

// before reports whether tick a is earlier than tick b, tolerating wrap.
func before(a, b uint64) bool {
	return int64(a-b) < 0
}
