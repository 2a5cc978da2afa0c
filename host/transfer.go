package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/host/reg"
	"github.com/ardnew/softmmc/pkg"
)

// Transfer is one data transfer between host memory and the card.
type Transfer struct {
	// Direction of the data phase.
	Direction hal.Direction

	// Length is the total number of bytes to move.
	Length int

	// Segments hold the data. Only the first Length bytes are used.
	Segments []hal.Segment

	usedDMA bool
	moved   int // bytes through the FIFO (PIO) or confirmed by DMA
	seg     int // PIO cursor: current segment
	off     int // PIO cursor: offset in current segment

	err  error
	done chan struct{}
	once sync.Once
}

func newTransfer(dir hal.Direction, total int, segs []hal.Segment) *Transfer {
	return &Transfer{
		Direction: dir,
		Length:    total,
		Segments:  segs,
		done:      make(chan struct{}),
	}
}

// Done returns a channel closed when the transfer finishes or is aborted.
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// Err returns the transfer outcome. Valid after Done is closed.
func (t *Transfer) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the transfer finishes or ctx is done.
func (t *Transfer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return t.err
	}
}

// IsComplete returns true if the transfer has finished.
func (t *Transfer) IsComplete() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// UsedDMA reports whether the transfer ran on a DMA engine.
func (t *Transfer) UsedDMA() bool {
	return t.usedDMA
}

// BytesTransferred returns the number of bytes moved so far.
func (t *Transfer) BytesTransferred() int {
	return t.moved
}

// Status classifies the transfer outcome.
func (t *Transfer) Status() pkg.TransferStatus {
	err := t.Err()
	if err == nil {
		return pkg.TransferStatusSuccess
	}
	var terr *TransferError
	if errors.As(err, &terr) {
		return terr.Status
	}
	if errors.Is(err, pkg.ErrCardRemoved) {
		return pkg.TransferStatusCancelled
	}
	return pkg.TransferStatusError
}

// finish records the outcome and releases waiters exactly once.
func (t *Transfer) finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// dmaSegments returns the segments trimmed to the transfer length.
func (t *Transfer) dmaSegments() []hal.Segment {
	out := make([]hal.Segment, 0, len(t.Segments))
	remain := t.Length
	for _, s := range t.Segments {
		if remain == 0 {
			break
		}
		n := min(s.Len(), remain)
		out = append(out, hal.Segment{Buf: s.Buf[:n], Phys: s.Phys})
		remain -= n
	}
	return out
}

// next returns up to max bytes of segment memory at the PIO cursor and
// advances the cursor past them.
func (t *Transfer) next(max int) []byte {
	for t.seg < len(t.Segments) {
		buf := t.Segments[t.seg].Buf
		if t.off < len(buf) {
			n := min(max, len(buf)-t.off, t.Length-t.moved)
			b := buf[t.off : t.off+n]
			t.off += n
			return b
		}
		t.seg++
		t.off = 0
	}
	return nil
}

// remaining returns the bytes still to move.
func (t *Transfer) remaining() int {
	return t.Length - t.moved
}

// TransferError reports hardware error flags observed during a transfer.
type TransferError struct {
	Status pkg.TransferStatus
	Raw    uint32 // RINTSTS error bits
	IDMAC  uint32 // IDSTS error bits
}

// Error implements error.
func (e *TransferError) Error() string {
	return fmt.Sprintf("%v: %s (rintsts %#x, idsts %#x)", pkg.ErrTransfer, e.Status, e.Raw, e.IDMAC)
}

// Unwrap exposes both [pkg.ErrTransfer] and the status-specific sentinel.
func (e *TransferError) Unwrap() []error {
	return []error{pkg.ErrTransfer, e.Status.Error()}
}

// classify maps controller error bits to a transfer status.
func classify(raw, idsts uint32) pkg.TransferStatus {
	switch {
	case idsts&reg.IdmacFBE != 0:
		return pkg.TransferStatusBusError
	case raw&(reg.IntDRTO|reg.IntHTO) != 0:
		return pkg.TransferStatusTimeout
	case raw&reg.IntDCRC != 0:
		return pkg.TransferStatusCRC
	case raw&reg.IntSBE != 0:
		return pkg.TransferStatusStartBit
	case raw&reg.IntEBE != 0:
		return pkg.TransferStatusEndBit
	case raw&reg.IntFRUN != 0:
		return pkg.TransferStatusOverrun
	default:
		return pkg.TransferStatusError
	}
}

// SubmitTransfer starts a data transfer of total bytes over segs.
//
// The transfer uses the probed DMA engine when the request is large and
// word aligned, and PIO otherwise; a DMA start failure also falls back to
// PIO. The caller issues the data command once SubmitTransfer returns and
// waits on the returned Transfer. Returns [pkg.ErrBusy] while another
// transfer is outstanding.
func (h *Host) SubmitTransfer(dir hal.Direction, total int, segs []hal.Segment) (*Transfer, error) {
	if !h.probed {
		return nil, pkg.ErrNotProbed
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: length %d", pkg.ErrInvalidParameter, total)
	}
	capacity := 0
	for _, s := range segs {
		capacity += s.Len()
	}
	if capacity < total {
		return nil, fmt.Errorf("%w: segments hold %d of %d bytes", pkg.ErrInvalidParameter, capacity, total)
	}

	t := newTransfer(dir, total, segs)
	if !h.active.CompareAndSwap(nil, t) {
		return nil, pkg.ErrBusy
	}

	h.part.reset(h.width.Bytes())
	h.bus.Write32(reg.BYTCNT, uint32(total))

	if h.engine != nil && dmaEligible(t) {
		h.setIntMask(h.intmask &^ (reg.IntRXDR | reg.IntTXDR))
		err := h.engine.start(t)
		if err == nil {
			t.usedDMA = true
			h.setState(StateRunning)
			return t, nil
		}
		pkg.LogWarn(pkg.ComponentDMA, "DMA start failed, falling back to PIO",
			"error", err)
		h.engine.stop()
	}

	h.startPIO()
	h.setState(StateRunning)
	return t, nil
}

// dmaEligible reports whether t can run on a DMA engine. Short transfers
// and buffers not aligned to 32 bits go through PIO.
func dmaEligible(t *Transfer) bool {
	if t.Length < dmaThreshold {
		return false
	}
	for _, s := range t.dmaSegments() {
		if s.Phys&3 != 0 || s.Len()&3 != 0 {
			return false
		}
	}
	return true
}

// startPIO routes the data phase through the FIFO data register.
func (h *Host) startPIO() {
	ctrl := h.bus.Read32(reg.CTRL)
	h.bus.Write32(reg.CTRL, ctrl&^(reg.CtrlDMAEnable|reg.CtrlUseIDMAC))
	h.setIntMask(h.intmask | reg.IntRXDR | reg.IntTXDR)
}

func (h *Host) setIntMask(mask uint32) {
	h.intmask = mask
	h.bus.Write32(reg.INTMASK, mask)
}

// OnComplete finalizes the active transfer after the hardware signalled
// completion. It syncs external DMA buffers, runs engine cleanup, and then,
// if the transfer was not cancelled in the meantime, reports the outcome.
// Calling it with no transfer outstanding only performs cleanup.
func (h *Host) OnComplete() {
	h.complete(nil)
}

func (h *Host) complete(fault error) {
	h.teardownMu.Lock()
	if h.engine != nil {
		if t := h.active.Load(); t != nil && t.usedDMA {
			h.engine.sync(t)
		}
		h.engine.cleanup()
	}

	t := h.active.Swap(nil)
	if t == nil {
		h.part.clear()
		h.teardownMu.Unlock()
		h.setState(StateIdle)
		return
	}

	err := fault
	if err == nil {
		if t.usedDMA {
			t.moved = t.Length
		}
		err = h.checkResidue(t)
	}
	h.part.clear()
	h.teardownMu.Unlock()

	h.setState(StateCompleted)
	pkg.LogDebug(pkg.ComponentHost, "transfer complete",
		"dir", t.Direction,
		"bytes", t.moved,
		"dma", t.usedDMA,
		"error", err)
	t.finish(err)
	if h.cfg.OnDataComplete != nil {
		h.cfg.OnDataComplete(t)
	}
	if h.active.Load() == nil {
		h.setState(StateIdle)
	}
}

// checkResidue verifies that the staging buffer holds nothing that belongs
// to the transfer. A read may leave the padding of its final FIFO unit.
func (h *Host) checkResidue(t *Transfer) error {
	if t.usedDMA {
		return nil
	}
	if t.moved != t.Length {
		return fmt.Errorf("%w: moved %d of %d bytes", pkg.ErrProtocol, t.moved, t.Length)
	}
	want := 0
	if t.Direction == hal.DirectionRead {
		unit := h.width.Bytes()
		want = (unit - t.Length%unit) % unit
	}
	if h.part.count != want {
		return fmt.Errorf("%w: %d staged bytes left at completion", pkg.ErrProtocol, h.part.count)
	}
	return nil
}

// CancelActive aborts the outstanding transfer, typically because the card
// was removed. The engine is stopped and cleaned up, waiters see
// [pkg.ErrCardRemoved], and no completion is reported to the upper layer.
// Returns false if nothing was outstanding.
func (h *Host) CancelActive() bool {
	t := h.active.Swap(nil)
	if t == nil {
		return false
	}
	h.teardown()
	pkg.LogInfo(pkg.ComponentHost, "transfer cancelled",
		"dir", t.Direction,
		"bytes", t.moved)
	t.finish(pkg.ErrCardRemoved)
	return true
}

// teardown stops and cleans up the engine and returns to Idle.
func (h *Host) teardown() {
	h.teardownMu.Lock()
	defer h.teardownMu.Unlock()
	if h.engine != nil {
		h.engine.stop()
		h.engine.cleanup()
	}
	h.part.clear()
	h.setState(StateIdle)
}
