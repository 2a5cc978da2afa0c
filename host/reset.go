package host

import (
	"time"

	"github.com/ardnew/softmmc/host/reg"
	"github.com/ardnew/softmmc/pkg"
)

// Reset sets the reset bits in mask and waits for the controller to clear
// them. A non-positive timeout uses the configured reset timeout. Returns
// false if the bits are still set when the deadline passes; the call never
// outlives the deadline by more than one poll.
func (h *Host) Reset(mask uint32, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = h.cfg.ResetTimeout
	}

	ctrl := h.bus.Read32(reg.CTRL)
	h.bus.Write32(reg.CTRL, ctrl|mask)

	deadline := h.clk.Ticks() + h.clk.TicksFor(timeout)
	for {
		ctrl = h.bus.Read32(reg.CTRL)
		if ctrl&mask == 0 {
			return true
		}
		if !before(h.clk.Ticks(), deadline) {
			break
		}
	}

	pkg.LogError(pkg.ComponentReset, "timeout resetting block",
		"mask", pkg.Hex(mask),
		"pending", pkg.Hex(ctrl&mask),
		"timeout", timeout)
	return false
}

// resetIDMAC issues a software reset of the internal DMA controller.
// The bit self-clears; nothing waits on it.
func (h *Host) resetIDMAC() {
	bmod := h.bus.Read32(reg.BMOD)
	h.bus.Write32(reg.BMOD, bmod|reg.BmodSWReset)
}
