// Package reg describes the DesignWare MMC host controller register file.
//
// Offsets are byte offsets from the controller base. Bit fields are read and
// written through accessor functions over raw integers rather than overlaid
// structs, so the register width and bit positions stay explicit.
package reg

import "golang.org/x/exp/constraints"

// Register offsets.
const (
	CTRL    = 0x000 // Control
	PWREN   = 0x004 // Power enable
	CLKDIV  = 0x008 // Clock divider
	CLKSRC  = 0x00c // Clock source
	CLKENA  = 0x010 // Clock enable
	TMOUT   = 0x014 // Response/data timeout
	CTYPE   = 0x018 // Card bus width
	BLKSIZ  = 0x01c // Block size
	BYTCNT  = 0x020 // Byte count
	INTMASK = 0x024 // Interrupt mask
	CMDARG  = 0x028 // Command argument
	CMD     = 0x02c // Command
	MINTSTS = 0x040 // Masked interrupt status
	RINTSTS = 0x044 // Raw interrupt status (write 1 to clear)
	STATUS  = 0x048 // Status
	FIFOTH  = 0x04c // FIFO threshold watermarks
	CDETECT = 0x050 // Card detect (bit clear = card present)
	WRTPRT  = 0x054 // Write protect
	TCBCNT  = 0x05c // Transferred CIU card byte count
	TBBCNT  = 0x060 // Transferred host to BIU-FIFO byte count
	VERID   = 0x06c // Version ID
	HCON    = 0x070 // Hardware configuration
	BMOD    = 0x080 // IDMAC bus mode
	PLDMND  = 0x084 // IDMAC poll demand

	// 32-bit IDMAC addressing.
	DBADDR  = 0x088 // Descriptor list base address
	IDSTS   = 0x08c // IDMAC status
	IDINTEN = 0x090 // IDMAC interrupt enable

	// 64-bit IDMAC addressing.
	DBADDRL   = 0x088 // Descriptor list base address [31:0]
	DBADDRU   = 0x08c // Descriptor list base address [63:32]
	IDSTS64   = 0x090 // IDMAC status
	IDINTEN64 = 0x094 // IDMAC interrupt enable

	// Data FIFO, relocated in controller version 2.40a.
	DataOffset     = 0x100
	DataOffset240a = 0x200
)

// Version240a is the first controller version with the relocated data FIFO.
const Version240a = 0x240a

// CTRL bits.
const (
	CtrlReset         = 1 << 0 // Controller reset
	CtrlFIFOReset     = 1 << 1 // FIFO reset
	CtrlDMAReset      = 1 << 2 // DMA interface reset
	CtrlIntEnable     = 1 << 4 // Global interrupt enable
	CtrlDMAEnable     = 1 << 5 // External DMA handshake enable
	CtrlUseIDMAC      = 1 << 25
	CtrlAllResetFlags = CtrlReset | CtrlFIFOReset | CtrlDMAReset
)

// Interrupt bits shared by INTMASK, MINTSTS and RINTSTS.
const (
	IntCD       = 1 << 0  // Card detect
	IntRespErr  = 1 << 1  // Response error
	IntCmdDone  = 1 << 2  // Command done
	IntDataOver = 1 << 3  // Data transfer over
	IntTXDR     = 1 << 4  // Transmit FIFO data request
	IntRXDR     = 1 << 5  // Receive FIFO data request
	IntRCRC     = 1 << 6  // Response CRC error
	IntDCRC     = 1 << 7  // Data CRC error
	IntRTO      = 1 << 8  // Response timeout
	IntDRTO     = 1 << 9  // Data read timeout
	IntHTO      = 1 << 10 // Data starvation by host timeout
	IntFRUN     = 1 << 11 // FIFO underrun/overrun
	IntHLE      = 1 << 12 // Hardware locked write error
	IntSBE      = 1 << 13 // Start bit error
	IntACD      = 1 << 14 // Auto command done
	IntEBE      = 1 << 15 // End bit error

	IntDataErrors = IntDRTO | IntDCRC | IntHTO | IntSBE | IntEBE | IntFRUN
	IntCmdErrors  = IntRTO | IntRCRC | IntRespErr | IntHLE
	IntAll        = 0xffffffff
)

// BMOD bits.
const (
	BmodSWReset = 1 << 0 // IDMAC software reset, self-clearing
	BmodFB      = 1 << 1 // Fixed burst
	BmodDE      = 1 << 7 // IDMAC enable
)

// IDSTS and IDINTEN bits.
const (
	IdmacTI  = 1 << 0 // Transmit complete
	IdmacRI  = 1 << 1 // Receive complete
	IdmacFBE = 1 << 2 // Fatal bus error
	IdmacDU  = 1 << 4 // Descriptor unavailable
	IdmacCES = 1 << 5 // Card error summary
	IdmacNI  = 1 << 8 // Normal interrupt summary
	IdmacAI  = 1 << 9 // Abnormal interrupt summary

	IdmacIntClear = IdmacAI | IdmacNI | IdmacCES | IdmacDU | IdmacFBE | IdmacRI | IdmacTI
)

// HCON transfer-mode field values.
const (
	TransModeIDMA    = 0 // Internal DMA block
	TransModeDWDMA   = 1 // DesignWare DMA handshake interface
	TransModeGDMA    = 2 // Generic DMA handshake interface
	TransModeNonDWDM = 3 // No DMA interface; PIO only
)

// HCON host data width field values.
const (
	HDataWidth16 = 0
	HDataWidth32 = 1
	HDataWidth64 = 2
)

// Field extracts width bits of v starting at bit shift.
func Field[T constraints.Unsigned](v T, shift, width uint) T {
	return (v >> shift) & (T(1)<<width - 1)
}

// SetField returns v with width bits at shift replaced by x.
func SetField[T constraints.Unsigned](v T, shift, width uint, x T) T {
	mask := (T(1)<<width - 1) << shift
	return v&^mask | (x<<shift)&mask
}

// HconDataWidth returns the host data width code, HCON[9:7].
func HconDataWidth(hcon uint32) uint32 { return Field(hcon, 7, 3) }

// HconTransMode returns the DMA interface code, HCON[17:16].
func HconTransMode(hcon uint32) uint32 { return Field(hcon, 16, 2) }

// HconAddrConfig reports whether the IDMAC uses 64-bit addressing, HCON[27].
func HconAddrConfig(hcon uint32) bool { return Field(hcon, 27, 1) == 1 }

// FIFOThRxWmark returns the receive watermark, FIFOTH[27:16].
func FIFOThRxWmark(fifoth uint32) uint32 { return Field(fifoth, 16, 12) }

// FIFOThTxWmark returns the transmit watermark, FIFOTH[11:0].
func FIFOThTxWmark(fifoth uint32) uint32 { return Field(fifoth, 0, 12) }

// FIFOThMsize returns the DMA multiple-transaction size code, FIFOTH[30:28].
func FIFOThMsize(fifoth uint32) uint32 { return Field(fifoth, 28, 3) }

// FIFOTh packs a FIFOTH value.
func FIFOTh(msize, rx, tx uint32) uint32 {
	var v uint32
	v = SetField(v, 28, 3, msize)
	v = SetField(v, 16, 12, rx)
	v = SetField(v, 0, 12, tx)
	return v
}

// StatusFIFOCount returns the number of filled FIFO locations, STATUS[29:17].
func StatusFIFOCount(status uint32) uint32 { return Field(status, 17, 13) }

// VersionID returns the version field, VERID[15:0].
func VersionID(verid uint32) uint32 { return Field(verid, 0, 16) }
