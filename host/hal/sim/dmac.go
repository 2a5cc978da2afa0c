package sim

import (
	"sync"

	"github.com/ardnew/softmmc/host/hal"
)

// DMAC is a simulated system DMA controller attached to the host
// controller's FIFO handshake. It implements [hal.ExternalDMA] and
// [hal.CacheMaintainer]. Data moves when the controller runs the data phase.
type DMAC struct {
	mu          sync.Mutex
	dir         hal.Direction
	segs        []hal.Segment
	fifo        uint64
	armed       bool
	starts      int
	terminates  int
	invalidated int
	failStart   error
}

// NewDMAC returns an idle DMA controller.
func NewDMAC() *DMAC {
	return &DMAC{}
}

// FailStart makes the next Start return err.
func (d *DMAC) FailStart(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failStart = err
}

// Start implements [hal.ExternalDMA].
func (d *DMAC) Start(dir hal.Direction, segs []hal.Segment, fifoPhys uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failStart; err != nil {
		d.failStart = nil
		return err
	}
	d.dir = dir
	d.segs = append([]hal.Segment(nil), segs...)
	d.fifo = fifoPhys
	d.armed = true
	d.starts++
	return nil
}

// Terminate implements [hal.ExternalDMA].
func (d *DMAC) Terminate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.armed = false
	d.segs = nil
	d.terminates++
}

// InvalidateForCPU implements [hal.CacheMaintainer].
func (d *DMAC) InvalidateForCPU(hal.Segment) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidated++
}

// FIFOAddr returns the FIFO bus address given to the last Start.
func (d *DMAC) FIFOAddr() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fifo
}

// Stats returns the number of Start, Terminate and InvalidateForCPU calls.
func (d *DMAC) Stats() (starts, terminates, invalidated int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts, d.terminates, d.invalidated
}

// take hands the armed segments to the controller and disarms.
func (d *DMAC) take(dir hal.Direction) ([]hal.Segment, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.armed || d.dir != dir {
		return nil, false
	}
	segs := d.segs
	d.segs = nil
	d.armed = false
	return segs, true
}
