// Package prof provides on-demand profiling for softmmc tools.
//
// It wraps [runtime/pprof] and is conditionally compiled using the
// "profile" build tag:
//
//	go build -tags profile ./examples/sim-hal/transfer
//
// Without the tag every exported function is a no-op, so profiling hooks
// can stay in example binaries at no cost.
//
//	prof.StartCPU("cpu.prof")
//	defer prof.StopCPU()
//	// ... run transfers ...
//	prof.Write(prof.ProfileHeap, "heap.prof")
//
// [ProfileCPU] cannot be used with [Write]; use [StartCPU]/[StopCPU].
package prof
