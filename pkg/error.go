package pkg

import "errors"

// Controller bring-up errors.
var (
	// ErrResetTimeout indicates the controller never cleared its reset bits.
	ErrResetTimeout = errors.New("reset timeout")

	// ErrNoDevice indicates the controller did not respond during probe.
	ErrNoDevice = errors.New("device not responding")

	// ErrDMAInit indicates the DMA engine could not be initialized.
	// The controller falls back to PIO when this occurs.
	ErrDMAInit = errors.New("dma initialization failed")

	// ErrUnsupportedWidth indicates a reserved host data width encoding.
	ErrUnsupportedWidth = errors.New("unsupported host data width")

	// ErrAlreadyProbed indicates the controller has already been probed.
	ErrAlreadyProbed = errors.New("already probed")

	// ErrNotProbed indicates the controller has not been probed.
	ErrNotProbed = errors.New("not probed")
)

// Data transfer errors.
var (
	// ErrTransfer indicates the controller flagged an error during a transfer.
	ErrTransfer = errors.New("transfer error")

	// ErrCardRemoved indicates the card was removed while a transfer was active.
	ErrCardRemoved = errors.New("card removed")

	// ErrTimeout indicates a data read or host timeout.
	ErrTimeout = errors.New("transfer timeout")

	// ErrCRC indicates a data CRC error.
	ErrCRC = errors.New("CRC error")

	// ErrStartBit indicates a start bit error on the data lines.
	ErrStartBit = errors.New("start bit error")

	// ErrEndBit indicates a missing end bit or write CRC status error.
	ErrEndBit = errors.New("end bit error")

	// ErrOverrun indicates a FIFO overrun or underrun.
	ErrOverrun = errors.New("fifo overrun")

	// ErrBusError indicates the DMA engine reported a fatal bus error.
	ErrBusError = errors.New("dma bus error")

	// ErrProtocol indicates a violation of the transfer protocol, such as
	// staged bytes left over when a transfer completes.
	ErrProtocol = errors.New("protocol error")

	// ErrNoTransfer indicates no transfer is outstanding.
	ErrNoTransfer = errors.New("no active transfer")

	// ErrBusy indicates a transfer is already outstanding.
	ErrBusy = errors.New("controller busy")

	// ErrNotSupported indicates an unsupported operation or access width.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoResources indicates the descriptor ring cannot hold the request.
	ErrNoResources = errors.New("no resources available")

	// ErrNoMemory indicates coherent memory could not be allocated.
	ErrNoMemory = errors.New("insufficient memory")
)

// TransferStatus represents the completion status of a data transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess   TransferStatus = iota // Transfer completed successfully
	TransferStatusError                           // Transfer failed with an unclassified error
	TransferStatusTimeout                         // Data read or host timeout
	TransferStatusCRC                             // Data CRC error
	TransferStatusStartBit                        // Start bit error
	TransferStatusEndBit                          // End bit error
	TransferStatusOverrun                         // FIFO overrun/underrun
	TransferStatusBusError                        // DMA fatal bus error
	TransferStatusCancelled                       // Transfer aborted by card removal
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusTimeout:
		return "timeout"
	case TransferStatusCRC:
		return "crc"
	case TransferStatusStartBit:
		return "start-bit"
	case TransferStatusEndBit:
		return "end-bit"
	case TransferStatusOverrun:
		return "overrun"
	case TransferStatusBusError:
		return "bus-error"
	case TransferStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusTimeout:
		return ErrTimeout
	case TransferStatusCRC:
		return ErrCRC
	case TransferStatusStartBit:
		return ErrStartBit
	case TransferStatusEndBit:
		return ErrEndBit
	case TransferStatusOverrun:
		return ErrOverrun
	case TransferStatusBusError:
		return ErrBusError
	case TransferStatusCancelled:
		return ErrCardRemoved
	default:
		return ErrTransfer
	}
}
