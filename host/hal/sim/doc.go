// Package sim provides an in-process DesignWare MMC controller for tests
// and examples.
//
// A [Controller] models the register file, the data FIFO, the internal
// descriptor DMA master and card detect, backed by a [Memory] that stands
// in for physical RAM and a [Media] that stands in for the card. A [DMAC]
// models a system DMA controller on the FIFO handshake, and [Clock] is a
// stepping tick source for deterministic timeouts.
//
// The simulator plays no part in command handling. A test submits a
// transfer to the host and then calls [Controller.StartRead] or
// [Controller.StartWrite] the way the command layer would issue a data
// command:
//
//	mem := sim.NewMemory(sim.DefaultMemoryBase, 1<<20)
//	ctl := sim.NewController(sim.Config{Memory: mem, FIFODepth: 32})
//	h := host.New(ctl, host.Config{Allocator: mem})
//	if err := h.Probe(); err != nil {
//		return err
//	}
//	buf, _ := mem.AllocateCoherent(4096)
//	t, _ := h.SubmitTransfer(hal.DirectionRead, 4096, []hal.Segment{buf.Segment(0, 4096)})
//	ctl.StartRead(0)
//	for ctl.Asserted() {
//		h.HandleInterrupt()
//	}
//	err := t.Wait(ctx)
package sim
