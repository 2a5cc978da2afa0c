package host

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/softmmc/host/hal"
	"github.com/ardnew/softmmc/host/reg"
	"github.com/ardnew/softmmc/pkg"
)

// fifoWrite pushes one access unit to the data FIFO.
func (h *Host) fifoWrite(unit []byte) {
	off := h.dataOffset
	wide, _ := h.bus.(hal.WideBus)
	switch h.width {
	case AccessWidth16:
		v := binary.LittleEndian.Uint16(unit)
		if wide != nil {
			wide.Write16(off, v)
		} else {
			h.bus.Write32(off, uint32(v))
		}
	case AccessWidth64:
		v := binary.LittleEndian.Uint64(unit)
		if wide != nil {
			wide.Write64(off, v)
		} else {
			h.bus.Write32(off, uint32(v))
			h.bus.Write32(off+4, uint32(v>>32))
		}
	default:
		h.bus.Write32(off, binary.LittleEndian.Uint32(unit))
	}
}

// fifoRead pops one access unit from the data FIFO.
func (h *Host) fifoRead(unit []byte) {
	off := h.dataOffset
	wide, _ := h.bus.(hal.WideBus)
	switch h.width {
	case AccessWidth16:
		var v uint16
		if wide != nil {
			v = wide.Read16(off)
		} else {
			v = uint16(h.bus.Read32(off))
		}
		binary.LittleEndian.PutUint16(unit, v)
	case AccessWidth64:
		var v uint64
		if wide != nil {
			v = wide.Read64(off)
		} else {
			v = uint64(h.bus.Read32(off)) | uint64(h.bus.Read32(off+4))<<32
		}
		binary.LittleEndian.PutUint64(unit, v)
	default:
		binary.LittleEndian.PutUint32(unit, h.bus.Read32(off))
	}
}

// pushData writes b to the FIFO. A pending partial unit is topped up and
// flushed first, whole units go out directly and a short tail is staged.
// The staged tail is flushed padded once the transfer length is reached.
func (h *Host) pushData(t *Transfer, b []byte) {
	unit := h.width.Bytes()
	n := len(b)

	if h.part.count > 0 {
		b = b[h.part.stage(b):]
		if h.part.full() {
			h.fifoWrite(h.part.unit())
			h.part.clear()
		}
	}
	for len(b) >= unit {
		h.fifoWrite(b[:unit])
		b = b[unit:]
	}
	if len(b) > 0 {
		h.part.set(b)
	}

	t.moved += n
	if t.moved == t.Length && h.part.count > 0 {
		h.fifoWrite(h.part.unit())
		h.part.clear()
	}
}

// pullData fills b from the FIFO. Leftover bytes of the previous unit are
// used first; a short tail pulls one more unit and keeps its remainder.
func (h *Host) pullData(t *Transfer, b []byte) {
	unit := h.width.Bytes()
	n := len(b)

	b = b[h.part.drain(b):]
	for len(b) >= unit {
		h.fifoRead(b[:unit])
		b = b[unit:]
	}
	if len(b) > 0 {
		h.fifoRead(h.part.unit())
		h.part.finalizeFill(b, len(b))
	}

	t.moved += n
}

// readDataPIO moves everything the FIFO currently holds into the transfer
// segments.
func (h *Host) readDataPIO(t *Transfer) {
	shift := h.width.Shift()
	for {
		status := h.bus.Read32(reg.STATUS)
		avail := int(reg.StatusFIFOCount(status))<<shift + h.part.count
		n := min(t.remaining(), avail)
		if n == 0 {
			break
		}
		for n > 0 {
			b := t.next(n)
			if len(b) == 0 {
				return
			}
			h.pullData(t, b)
			n -= len(b)
		}
	}
	h.bus.Write32(reg.RINTSTS, reg.IntRXDR)
}

// writeDataPIO fills the free FIFO space from the transfer segments.
func (h *Host) writeDataPIO(t *Transfer) {
	shift := h.width.Shift()
	for {
		used := reg.StatusFIFOCount(h.bus.Read32(reg.STATUS))
		if used >= h.fifoDepth {
			break
		}
		room := int(h.fifoDepth-used)<<shift - h.part.count
		n := min(t.remaining(), room)
		if n <= 0 {
			break
		}
		for n > 0 {
			b := t.next(n)
			if len(b) == 0 {
				return
			}
			h.pushData(t, b)
			n -= len(b)
		}
	}
	h.bus.Write32(reg.RINTSTS, reg.IntTXDR)
}

// pioTransfer returns the active transfer if it runs in PIO mode in the
// given direction.
func (h *Host) pioTransfer(dir hal.Direction) (*Transfer, error) {
	if !h.probed {
		return nil, pkg.ErrNotProbed
	}
	t := h.active.Load()
	if t == nil {
		return nil, pkg.ErrNoTransfer
	}
	if t.usedDMA {
		return nil, fmt.Errorf("%w: transfer runs on DMA", pkg.ErrInvalidParameter)
	}
	if t.Direction != dir {
		return nil, fmt.Errorf("%w: transfer direction is %s", pkg.ErrInvalidParameter, t.Direction)
	}
	return t, nil
}

// PushBytes writes b to the data FIFO on behalf of the active PIO write
// transfer, staging any bytes that do not fill an access unit. The bytes
// are copied into the transfer segments at the PIO cursor, so interrupt
// servicing resumes after them. Bytes past the transfer length are not
// written. The caller ensures the FIFO has room.
func (h *Host) PushBytes(b []byte) (int, error) {
	t, err := h.pioTransfer(hal.DirectionWrite)
	if err != nil {
		return 0, err
	}
	n := 0
	for n < len(b) && t.remaining() > 0 {
		dst := t.next(len(b) - n)
		if len(dst) == 0 {
			break
		}
		copy(dst, b[n:])
		h.pushData(t, dst)
		n += len(dst)
	}
	return n, nil
}

// PullBytes reads into b from the data FIFO on behalf of the active PIO
// read transfer, serving staged leftover bytes first. The data also lands
// in the transfer segments at the PIO cursor, so interrupt servicing
// resumes after it. At most the bytes remaining in the transfer are read.
// The caller ensures the FIFO holds enough data.
func (h *Host) PullBytes(b []byte) (int, error) {
	t, err := h.pioTransfer(hal.DirectionRead)
	if err != nil {
		return 0, err
	}
	n := 0
	for n < len(b) && t.remaining() > 0 {
		dst := t.next(len(b) - n)
		if len(dst) == 0 {
			break
		}
		h.pullData(t, dst)
		n += copy(b[n:], dst)
	}
	return n, nil
}
