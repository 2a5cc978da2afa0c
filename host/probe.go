package host

import (
	"fmt"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/host/reg"
	"github.com/ardnew/softmmc/pkg"
)

// Probe brings the controller up: it detects the FIFO access width, resets
// every block, selects a transfer mode, programs thresholds, timeouts and
// interrupt masks, and locates the data FIFO.
//
// Only a reset timeout fails the probe. A reserved width code or a DMA
// setup failure is logged, recorded in [Host.Warnings] and worked around.
func (h *Host) Probe() error {
	if h.probed {
		return pkg.ErrAlreadyProbed
	}

	h.detectWidth()

	if !h.Reset(reg.CtrlAllResetFlags, 0) {
		return fmt.Errorf("%w: %w", pkg.ErrNoDevice, pkg.ErrResetTimeout)
	}

	h.initDMA()

	// Clear and mask everything while the rest is programmed.
	h.bus.Write32(reg.RINTSTS, reg.IntAll)
	h.bus.Write32(reg.INTMASK, 0)
	h.bus.Write32(reg.TMOUT, 0xffffffff)

	// The power-on RX watermark is depth-1. A bootloader may have
	// rewritten it the same way, so it is trusted as the depth source.
	fifoth := h.bus.Read32(reg.FIFOTH)
	h.fifoDepth = reg.FIFOThRxWmark(fifoth) + 1
	h.fifoth = reg.FIFOTh(0x2, h.fifoDepth/2-1, h.fifoDepth/2)
	h.bus.Write32(reg.FIFOTH, h.fifoth)

	// Card clock stays off until the command layer configures it.
	h.bus.Write32(reg.CLKENA, 0)
	h.bus.Write32(reg.CLKSRC, 0)

	h.version = reg.VersionID(h.bus.Read32(reg.VERID))
	if h.version < reg.Version240a {
		h.dataOffset = reg.DataOffset
	} else {
		h.dataOffset = reg.DataOffset240a
	}
	pkg.LogInfo(pkg.ComponentHost, "controller version",
		"verid", fmt.Sprintf("%04x", h.version),
		"data", pkg.Hex(h.dataOffset))

	h.intmask = reg.IntCmdDone | reg.IntDataOver | reg.IntTXDR | reg.IntRXDR |
		reg.IntCD | reg.IntDataErrors | reg.IntCmdErrors
	h.bus.Write32(reg.INTMASK, h.intmask)
	h.bus.Write32(reg.CTRL, reg.CtrlIntEnable)

	h.part.reset(h.width.Bytes())
	h.setState(StateIdle)
	h.probed = true

	pkg.LogInfo(pkg.ComponentHost, "DW MMC controller ready",
		"width", h.width,
		"fifoDepth", h.fifoDepth,
		"mode", h.mode)
	return nil
}

// detectWidth decodes HCON[9:7]. Reserved codes fall back to 32-bit access.
func (h *Host) detectWidth() {
	switch code := reg.HconDataWidth(h.bus.Read32(reg.HCON)); code {
	case reg.HDataWidth16:
		h.width = AccessWidth16
	case reg.HDataWidth64:
		h.width = AccessWidth64
	default:
		if code != reg.HDataWidth32 {
			pkg.LogWarn(pkg.ComponentHost, "HCON reports a reserved host data width, defaulting to 32-bit access",
				"code", code)
			h.warn(fmt.Errorf("%w: code %d", pkg.ErrUnsupportedWidth, code))
		}
		h.width = AccessWidth32
	}

	if h.width != AccessWidth32 {
		if _, ok := h.bus.(hal.WideBus); !ok {
			pkg.LogWarn(pkg.ComponentPIO, "register bus cannot issue FIFO-width accesses",
				"width", h.width)
			h.warn(fmt.Errorf("%w: %s FIFO on a 32-bit bus", pkg.ErrNotSupported, h.width))
		}
	}
}
