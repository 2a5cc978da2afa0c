// Package hal defines the collaborator interfaces of the softmmc host core.
//
// The host engine never touches hardware directly. Everything it needs from
// the platform arrives through a handful of narrow interfaces:
//
//   - [RegisterBus]: 32-bit reads and writes at offsets from the controller base
//   - [WideBus]: optional 16/64-bit accesses for the data FIFO
//   - [Allocator]: physically contiguous, DMA-coherent memory
//   - [Clock]: a monotonic tick source bounding every poll loop
//   - [CacheMaintainer]: optional cache invalidation for external DMA reads
//   - [ExternalDMA]: optional system DMA controller for handshake mode
//
// Interrupt delivery is not an interface: the platform calls
// host.Host.HandleInterrupt from whatever context services the IRQ line.
//
// # Implementing a HAL
//
//  1. Map the controller registers and implement [RegisterBus]
//     (and [WideBus] when the controller FIFO is 16 or 64 bits wide)
//  2. Provide an [Allocator] for descriptor rings and data buffers
//  3. Supply a [Clock]; [SystemClock] suits hosted environments
//  4. Route the controller interrupt to host.Host.HandleInterrupt
//
// # Example
//
//	type mmio struct{ base []uint32 }
//
//	func (m *mmio) Read32(off uint32) uint32     { return atomic.LoadUint32(&m.base[off/4]) }
//	func (m *mmio) Write32(off uint32, v uint32) { atomic.StoreUint32(&m.base[off/4], v) }
//
// A simulated controller for tests is available in
// [github.com/ardnew/softmmc/host/hal/sim], and a Linux /dev/mem backend in
// [github.com/ardnew/softmmc/host/hal/devmem].
package hal
