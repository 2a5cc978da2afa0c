// Package host implements the data path of a Synopsys DesignWare MMC host
// controller in pure Go.
//
// It is platform-agnostic and reaches the hardware only through the
// interfaces in [github.com/ardnew/softmmc/host/hal]: a register bus, a
// coherent memory allocator, a tick clock and, optionally, a system DMA
// controller with cache maintenance. Command sequencing, card enumeration
// and clock switching belong to the layer above; this package moves the
// data of one command at a time.
//
// # Architecture
//
// The engine is organized into several parts:
//
//   - Probe detects the FIFO width and version and resets the controller
//   - Mode selection picks internal DMA, external DMA or PIO once
//   - Ring manages the IDMAC descriptor chain in coherent memory
//   - Transfer tracks one data phase from submit to completion
//   - HandleInterrupt services the controller interrupt line
//
// # Transfer Modes
//
// The mode is fixed at probe from the controller's synthesis options:
//
//   - IDMAC: the controller walks a descriptor ring itself
//   - EDMAC: a system DMA controller services the FIFO handshake
//   - PIO: the CPU copies through the data register
//
// A DMA-capable host still runs short or unaligned requests through PIO,
// and any DMA setup failure degrades the host to PIO for good.
//
// # FIFO Access
//
// The data FIFO is accessed in units of its native width (16, 32 or 64
// bits). Requests of any byte length are supported: bytes that do not fill
// a unit are staged between calls, and the last unit of a write is padded.
//
// # Example
//
//	h := host.New(bus, host.Config{Allocator: mem})
//	if err := h.Probe(); err != nil {
//	    log.Fatal(err)
//	}
//
//	t, err := h.SubmitTransfer(hal.DirectionRead, 512, segs)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// issue the read command, then from the IRQ handler:
//	//     h.HandleInterrupt()
//	err = t.Wait(ctx)
//
// A register-level controller model for testing is available in
// [github.com/ardnew/softmmc/host/hal/sim].
package host
