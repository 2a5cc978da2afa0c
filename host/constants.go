package host

import "fmt"

// AccessWidth is the native width of the controller's data FIFO.
type AccessWidth uint8

// Access widths in bits.
const (
	AccessWidth8  AccessWidth = 8
	AccessWidth16 AccessWidth = 16
	AccessWidth32 AccessWidth = 32
	AccessWidth64 AccessWidth = 64
)

// Bytes returns the width of one FIFO access unit in bytes.
func (w AccessWidth) Bytes() int {
	return int(w) / 8
}

// Shift returns log2 of [AccessWidth.Bytes].
func (w AccessWidth) Shift() uint {
	switch w {
	case AccessWidth16:
		return 1
	case AccessWidth32:
		return 2
	case AccessWidth64:
		return 3
	default:
		return 0
	}
}

// String returns a human-readable width.
func (w AccessWidth) String() string {
	return fmt.Sprintf("%d-bit", w)
}

// TransferMode selects how data moves between memory and the FIFO.
type TransferMode uint8

// Transfer modes.
const (
	ModePIO   TransferMode = iota // CPU copies through the data register
	ModeIDMAC                     // Internal descriptor DMA
	ModeEDMAC                     // External DMA controller via handshake
)

// String returns a human-readable mode name.
func (m TransferMode) String() string {
	switch m {
	case ModePIO:
		return "PIO"
	case ModeIDMAC:
		return "IDMAC"
	case ModeEDMAC:
		return "EDMAC"
	default:
		return fmt.Sprintf("Unknown Mode (%d)", m)
	}
}

// TransferState is the state of the single-transfer state machine.
//
//	Idle -> Armed -> Running -> Completed -> Idle
//	Running -> Idle (card removed)
type TransferState uint32

// Transfer states.
const (
	StateIdle      TransferState = iota // No transfer outstanding
	StateArmed                          // Descriptors linked, DMA enabled
	StateRunning                        // Poll demand issued or PIO under way
	StateCompleted                      // Completion handled, cleanup run
)

// String returns a human-readable state description.
func (s TransferState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateArmed:
		return "Armed"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}

// dmaThreshold is the shortest transfer worth setting up DMA for.
const dmaThreshold = 16
