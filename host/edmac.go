package host

import (
	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/host/reg"
	"github.com/ardnew/softmmc/pkg"
)

// edmac hands transfers to a system DMA controller that services the data
// FIFO through the controller's handshake interface.
type edmac struct {
	h *Host
}

func (d *edmac) init() error {
	if d.h.cfg.ExternalDMA == nil {
		return pkg.ErrNotSupported
	}
	return nil
}

func (d *edmac) start(t *Transfer) error {
	h := d.h
	if !h.Reset(reg.CtrlDMAReset|reg.CtrlFIFOReset, 0) {
		return pkg.ErrResetTimeout
	}

	fifo := h.cfg.BasePhys + uint64(h.dataOffset)
	if err := h.cfg.ExternalDMA.Start(t.Direction, t.dmaSegments(), fifo); err != nil {
		return err
	}
	h.setState(StateArmed)

	ctrl := h.bus.Read32(reg.CTRL)
	h.bus.Write32(reg.CTRL, ctrl|reg.CtrlDMAEnable)
	pkg.LogDebug(pkg.ComponentDMA, "external DMA started",
		"dir", t.Direction,
		"bytes", t.Length)
	return nil
}

func (d *edmac) stop() {
	h := d.h
	h.cfg.ExternalDMA.Terminate()
	ctrl := h.bus.Read32(reg.CTRL)
	h.bus.Write32(reg.CTRL, ctrl&^reg.CtrlDMAEnable|reg.CtrlDMAReset)
}

// sync invalidates CPU cache lines over a read's destination buffers.
func (d *edmac) sync(t *Transfer) {
	if t == nil || t.Direction != hal.DirectionRead || d.h.cfg.Cache == nil {
		return
	}
	for _, seg := range t.dmaSegments() {
		d.h.cfg.Cache.InvalidateForCPU(seg)
	}
}

func (d *edmac) cleanup() {}

func (d *edmac) exit() error {
	return nil
}
