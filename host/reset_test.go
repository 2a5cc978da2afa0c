package host

import (
	"testing"
	"time"

	"github.com/ardnew/softmmc/host/hal/sim"
	"github.com/ardnew/softmmc/host/reg"
)

// =============================================================================
// Reset Tests
// =============================================================================

func TestReset_Clears(t *testing.T) {
	ctl := sim.NewController(sim.Config{})
	clk := sim.NewClock(0, time.Millisecond)
	h := New(ctl, Config{Clock: clk})

	if !h.Reset(reg.CtrlAllResetFlags, 10*time.Millisecond) {
		t.Fatal("Reset() = false for self-clearing bits")
	}
	if clk.Last() > uint64(time.Millisecond) {
		t.Errorf("Reset polled until %v", time.Duration(clk.Last()))
	}
	if ctl.Reg(reg.CTRL)&reg.CtrlAllResetFlags != 0 {
		t.Errorf("CTRL = %#x", ctl.Reg(reg.CTRL))
	}
}

func TestReset_TimeoutBound(t *testing.T) {
	tests := []struct {
		name    string
		step    time.Duration
		timeout time.Duration
	}{
		{"1ms step", time.Millisecond, 10 * time.Millisecond},
		{"uneven step", 3 * time.Millisecond, 10 * time.Millisecond},
		{"step past timeout", 25 * time.Millisecond, 10 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := sim.NewController(sim.Config{StuckResetBits: reg.CtrlFIFOReset})
			clk := sim.NewClock(1000, tt.step)
			h := New(ctl, Config{Clock: clk})

			start := clk.Peek()
			if h.Reset(reg.CtrlFIFOReset, tt.timeout) {
				t.Fatal("Reset() = true for a stuck bit")
			}

			elapsed := time.Duration(clk.Last() - start)
			if elapsed < tt.timeout {
				t.Errorf("gave up after %v, before the %v timeout", elapsed, tt.timeout)
			}
			if elapsed > tt.timeout+tt.step {
				t.Errorf("gave up after %v, later than timeout plus one poll (%v)", elapsed, tt.timeout+tt.step)
			}
		})
	}
}

func TestReset_DefaultTimeout(t *testing.T) {
	ctl := sim.NewController(sim.Config{StuckResetBits: reg.CtrlDMAReset})
	clk := sim.NewClock(0, time.Millisecond)
	h := New(ctl, Config{Clock: clk, ResetTimeout: 5 * time.Millisecond})

	if h.Reset(reg.CtrlDMAReset, 0) {
		t.Fatal("Reset() = true for a stuck bit")
	}
	if got := time.Duration(clk.Last()); got != 5*time.Millisecond {
		t.Errorf("gave up at %v, want 5ms", got)
	}
}

func TestReset_ClockWrap(t *testing.T) {
	ctl := sim.NewController(sim.Config{StuckResetBits: reg.CtrlReset})
	clk := sim.NewClock(^uint64(0)-uint64(2*time.Millisecond), time.Millisecond)
	h := New(ctl, Config{Clock: clk})

	start := clk.Peek()
	if h.Reset(reg.CtrlReset, 5*time.Millisecond) {
		t.Fatal("Reset() = true for a stuck bit")
	}
	if elapsed := time.Duration(clk.Last() - start); elapsed != 5*time.Millisecond {
		t.Errorf("gave up after %v across the tick wrap, want 5ms", elapsed)
	}
}

func TestResetIDMAC(t *testing.T) {
	ctl := sim.NewController(sim.Config{})
	h := New(ctl, Config{})

	ctl.Write32(reg.BMOD, reg.BmodDE)
	h.resetIDMAC()
	if ctl.Writes(reg.BMOD) != 2 {
		t.Errorf("BMOD written %d times, want 2", ctl.Writes(reg.BMOD))
	}
	if got := ctl.Reg(reg.BMOD); got != reg.BmodDE {
		t.Errorf("BMOD = %#x, want DE kept and SWR self-cleared", got)
	}
}
