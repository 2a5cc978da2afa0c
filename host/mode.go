package host

import (
	"fmt"

	"github.com/ardnew/softmmc/host/reg"
	"github.com/ardnew/softmmc/pkg"
)

// dmaEngine is the operation set shared by the internal and external DMA
// paths.
type dmaEngine interface {
	// init prepares the engine once at probe.
	init() error

	// start arms the engine for t and kicks it off.
	start(t *Transfer) error

	// stop disables the engine. Safe to call when idle.
	stop()

	// sync makes data written by the engine visible to the CPU.
	sync(t *Transfer)

	// cleanup returns per-transfer resources after completion.
	cleanup()

	// exit releases everything init acquired.
	exit() error
}

// initDMA selects the transfer mode from HCON[17:16] and initializes the
// matching engine. Any failure degrades the controller to PIO.
//
//	0: internal DMA (IDMAC)
//	1: DesignWare DMA handshake interface
//	2: generic DMA handshake interface
//	3: no DMA interface
func (h *Host) initDMA() {
	hcon := h.bus.Read32(reg.HCON)

	switch reg.HconTransMode(hcon) {
	case reg.TransModeIDMA:
		format := Format32
		if reg.HconAddrConfig(hcon) {
			format = Format64
		}
		pkg.LogInfo(pkg.ComponentDMA, "IDMAC supports "+format.String()+" address mode")
		h.mode = ModeIDMAC
		h.engine = &idmac{h: h, format: format}
		pkg.LogInfo(pkg.ComponentDMA, "using internal DMA controller")

	case reg.TransModeDWDMA, reg.TransModeGDMA:
		if h.cfg.ExternalDMA == nil {
			h.fallbackPIO(fmt.Errorf("%w: no external DMA controller configured", pkg.ErrDMAInit))
			return
		}
		h.mode = ModeEDMAC
		h.engine = &edmac{h: h}
		pkg.LogInfo(pkg.ComponentDMA, "using external DMA controller")

	default:
		h.mode = ModePIO
		h.engine = nil
		pkg.LogInfo(pkg.ComponentDMA, "using PIO mode")
		return
	}

	if err := h.engine.init(); err != nil {
		h.fallbackPIO(fmt.Errorf("%w: %w", pkg.ErrDMAInit, err))
	}
}

// fallbackPIO abandons DMA for the lifetime of the host.
func (h *Host) fallbackPIO(err error) {
	pkg.LogError(pkg.ComponentDMA, "unable to initialize DMA controller, using PIO mode",
		"error", err)
	h.warn(err)
	if h.engine != nil {
		h.engine.exit()
	}
	h.engine = nil
	h.mode = ModePIO
}
