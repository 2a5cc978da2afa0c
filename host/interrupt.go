package host

import (
	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/host/reg"
	"github.com/ardnew/softmmc/pkg"
)

// HandleInterrupt services the controller interrupt line. The platform
// calls it whenever the line is asserted.
//
// Data error flags end the active transfer with a [*TransferError]. FIFO
// requests are served by PIO. Completion is taken from DATA_OVER for PIO and
// external DMA, and from the IDMAC receive/transmit interrupts for the
// descriptor ring. A card-detect change with the card gone cancels the
// active transfer.
func (h *Host) HandleInterrupt() {
	pending := h.bus.Read32(reg.MINTSTS)

	if pending&reg.IntCD != 0 {
		h.bus.Write32(reg.RINTSTS, reg.IntCD)
		if h.bus.Read32(reg.CDETECT)&1 != 0 {
			pkg.LogInfo(pkg.ComponentHost, "card removed")
			h.CancelActive()
			return
		}
	}

	if cmd := pending & (reg.IntCmdDone | reg.IntCmdErrors); cmd != 0 {
		h.bus.Write32(reg.RINTSTS, cmd)
	}

	if errs := pending & reg.IntDataErrors; errs != 0 {
		h.bus.Write32(reg.RINTSTS, errs|reg.IntDataOver|reg.IntRXDR|reg.IntTXDR)
		h.fail(errs, 0)
		return
	}

	if d, ok := h.engine.(*idmac); ok {
		if h.handleIDMAC(d) {
			return
		}
	}

	t := h.active.Load()

	if pending&reg.IntRXDR != 0 {
		if t != nil && !t.usedDMA && t.Direction == hal.DirectionRead {
			h.readDataPIO(t)
		} else {
			h.bus.Write32(reg.RINTSTS, reg.IntRXDR)
		}
	}
	if pending&reg.IntTXDR != 0 {
		if t != nil && !t.usedDMA && t.Direction == hal.DirectionWrite {
			h.writeDataPIO(t)
		} else {
			h.bus.Write32(reg.RINTSTS, reg.IntTXDR)
		}
	}

	if pending&reg.IntDataOver != 0 {
		h.bus.Write32(reg.RINTSTS, reg.IntDataOver)
		switch {
		case t == nil:
		case !t.usedDMA:
			if t.Direction == hal.DirectionRead {
				h.readDataPIO(t)
			}
			h.complete(nil)
		case h.mode == ModeEDMAC:
			h.complete(nil)
		}
	}
}

// handleIDMAC services the IDMAC status register. Returns true if the
// active transfer was finalized.
func (h *Host) handleIDMAC(d *idmac) bool {
	sts := d.statusReg()
	idsts := h.bus.Read32(sts)

	if errs := idsts & (reg.IdmacFBE | reg.IdmacDU | reg.IdmacCES); errs != 0 {
		h.bus.Write32(sts, errs|reg.IdmacAI)
		h.fail(0, errs)
		return true
	}
	if done := idsts & (reg.IdmacRI | reg.IdmacTI); done != 0 {
		h.bus.Write32(sts, done|reg.IdmacNI)
		h.bus.Write32(reg.RINTSTS, reg.IntDataOver)
		h.OnComplete()
		return true
	}
	return false
}

// fail ends the active transfer with the error flags observed. The engine
// is stopped and cleaned up whether or not a transfer is outstanding.
func (h *Host) fail(raw, idsts uint32) {
	terr := &TransferError{Status: classify(raw, idsts), Raw: raw, IDMAC: idsts}
	pkg.LogError(pkg.ComponentHost, "data transfer error",
		"status", terr.Status,
		"rintsts", raw,
		"idsts", idsts)

	t := h.active.Load()
	switch {
	case t == nil:
	case t.usedDMA:
		h.engine.stop()
	default:
		h.Reset(reg.CtrlFIFOReset, 0)
	}
	h.complete(terr)
}
