//go:build !profile

package prof

// Profiling errors (never returned by the stubs).
var (
	ErrCPUProfileActive    error
	ErrCPUProfileNotActive error
	ErrInvalidProfile      error
)

// Profile names a pprof profile.
type Profile string

// Profile names.
const (
	ProfileCPU       Profile = "cpu"
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// Enabled reports whether the binary was built with the "profile" tag.
func Enabled() bool { return false }

// StartCPU is a no-op when built without the "profile" tag.
func StartCPU(_ string) error { return nil }

// StopCPU is a no-op when built without the "profile" tag.
func StopCPU() {}

// Write is a no-op when built without the "profile" tag.
func Write(_ Profile, _ string) error { return nil }
