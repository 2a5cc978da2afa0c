package host

import (
	"github.com/ardnew/softmmc/host/reg"
	"github.com/ardnew/softmmc/pkg"
)

// idmac drives the controller's internal descriptor DMA.
type idmac struct {
	h      *Host
	format DescriptorFormat
	ring   *Ring
}

func (d *idmac) init() error {
	h := d.h
	ring, err := NewRing(h.cfg.Allocator, h.clk, d.format)
	if err != nil {
		return err
	}
	d.ring = ring

	h.resetIDMAC()

	// Only transmit/receive complete and the normal summary interrupt.
	if d.format == Format64 {
		h.bus.Write32(reg.IDSTS64, reg.IdmacIntClear)
		h.bus.Write32(reg.IDINTEN64, reg.IdmacNI|reg.IdmacRI|reg.IdmacTI)
		h.bus.Write32(reg.DBADDRL, uint32(ring.Base()))
		h.bus.Write32(reg.DBADDRU, uint32(ring.Base()>>32))
	} else {
		h.bus.Write32(reg.IDSTS, reg.IdmacIntClear)
		h.bus.Write32(reg.IDINTEN, reg.IdmacNI|reg.IdmacRI|reg.IdmacTI)
		h.bus.Write32(reg.DBADDR, uint32(ring.Base()))
	}

	pkg.LogDebug(pkg.ComponentDMA, "descriptor ring ready",
		"entries", ring.Len(),
		"format", d.format,
		"base", pkg.Hex(ring.Base()))
	return nil
}

func (d *idmac) start(t *Transfer) error {
	h := d.h
	n, err := d.ring.Prepare(t.Segments, t.Length)
	if err != nil {
		return err
	}

	// Make sure no PIO leftovers sit in the DMA interface.
	if !h.Reset(reg.CtrlDMAReset, 0) {
		d.ring.Release()
		return pkg.ErrResetTimeout
	}
	h.resetIDMAC()

	ctrl := h.bus.Read32(reg.CTRL)
	h.bus.Write32(reg.CTRL, ctrl|reg.CtrlUseIDMAC|reg.CtrlDMAEnable)

	bmod := h.bus.Read32(reg.BMOD)
	h.bus.Write32(reg.BMOD, bmod|reg.BmodDE|reg.BmodFB)
	h.setState(StateArmed)

	h.bus.Write32(reg.PLDMND, 1)
	pkg.LogDebug(pkg.ComponentDMA, "IDMAC started",
		"dir", t.Direction,
		"bytes", t.Length,
		"descriptors", n)
	return nil
}

func (d *idmac) stop() {
	h := d.h
	ctrl := h.bus.Read32(reg.CTRL)
	ctrl &^= reg.CtrlUseIDMAC | reg.CtrlDMAEnable
	h.bus.Write32(reg.CTRL, ctrl|reg.CtrlDMAReset)

	bmod := h.bus.Read32(reg.BMOD)
	h.bus.Write32(reg.BMOD, bmod&^(reg.BmodDE|reg.BmodFB))
	h.resetIDMAC()
}

func (d *idmac) sync(*Transfer) {}

func (d *idmac) cleanup() {
	d.h.bus.Write32(d.statusReg(), reg.IdmacIntClear)
	if d.ring != nil {
		d.ring.Release()
	}
}

func (d *idmac) exit() error {
	if d.ring == nil {
		return nil
	}
	err := d.ring.Free()
	d.ring = nil
	return err
}

// statusReg returns the IDSTS offset for the ring's addressing mode.
func (d *idmac) statusReg() uint32 {
	if d.format == Format64 {
		return reg.IDSTS64
	}
	return reg.IDSTS
}
