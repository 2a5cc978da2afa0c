// Package devmem provides a Linux backend for the softmmc host core using
// /dev/mem for the controller registers and the u-dma-buf driver for
// DMA-coherent memory.
//
// It is pure Go with no cgo dependencies. The register window is mapped
// with mmap(2) and accessed with single loads and stores of the requested
// width; buffers come from a contiguous region reserved by u-dma-buf and
// are carved up by a bump allocator.
//
// # Requirements
//
// The process needs read/write access to /dev/mem (usually root, and a
// kernel without CONFIG_STRICT_DEVMEM covering the controller window) and
// to the u-dma-buf device node. The controller must not be bound to a
// kernel driver while this backend owns it.
//
// # Cache Maintenance
//
// [Buffer] implements hal.CacheMaintainer through the sync_for_cpu
// attributes of u-dma-buf, for use with an external DMA controller.
// Descriptor DMA and PIO do not need it.
package devmem
