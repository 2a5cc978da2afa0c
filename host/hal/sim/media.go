package sim

import (
	"io"
	"os"
	"sync"
)

// DefaultBlockSize is the block size of simulated cards.
const DefaultBlockSize = 512

// Media is the in-memory storage behind a simulated card.
type Media struct {
	data      []byte
	blockSize uint32
	readOnly  bool
	present   bool
	mutex     sync.RWMutex
}

// NewMedia creates card storage of size bytes.
func NewMedia(size uint64, blockSize uint32) *Media {
	return &Media{
		data:      make([]byte, size),
		blockSize: blockSize,
		present:   true,
	}
}

// BlockSize returns the block size.
func (m *Media) BlockSize() uint32 {
	return m.blockSize
}

// BlockCount returns the number of blocks.
func (m *Media) BlockCount() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return uint64(len(m.data)) / uint64(m.blockSize)
}

// Size returns the capacity in bytes.
func (m *Media) Size() int64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return int64(len(m.data))
}

// ReadAt implements io.ReaderAt.
func (m *Media) ReadAt(p []byte, off int64) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if !m.present {
		return 0, io.ErrUnexpectedEOF
	}
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (m *Media) WriteAt(p []byte, off int64) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.present {
		return 0, io.ErrUnexpectedEOF
	}
	if m.readOnly {
		return 0, os.ErrPermission
	}
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, io.ErrShortWrite
	}
	return copy(m.data[off:], p), nil
}

// ReadBlocks reads blocks starting at lba into buf.
// Returns number of blocks read or error.
func (m *Media) ReadBlocks(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	length := int(blocks) * int(m.blockSize)
	if len(buf) < length {
		return 0, io.ErrShortBuffer
	}
	if _, err := m.ReadAt(buf[:length], int64(lba)*int64(m.blockSize)); err != nil {
		return 0, err
	}
	return blocks, nil
}

// WriteBlocks writes blocks from buf starting at lba.
// Returns number of blocks written or error.
func (m *Media) WriteBlocks(lba uint64, blocks uint32, buf []byte) (uint32, error) {
	length := int(blocks) * int(m.blockSize)
	if len(buf) < length {
		return 0, io.ErrShortBuffer
	}
	if _, err := m.WriteAt(buf[:length], int64(lba)*int64(m.blockSize)); err != nil {
		return 0, err
	}
	return blocks, nil
}

// IsReadOnly returns whether the card is write protected.
func (m *Media) IsReadOnly() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.readOnly
}

// SetReadOnly sets the write-protect flag.
func (m *Media) SetReadOnly(readOnly bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.readOnly = readOnly
}

// IsPresent returns whether the card is inserted.
func (m *Media) IsPresent() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.present
}

// SetPresent sets the card presence flag.
func (m *Media) SetPresent(present bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.present = present
}
