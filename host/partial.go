package host

// maxUnit is the widest FIFO access unit in bytes (64-bit controllers).
const maxUnit = 8

// partialBuffer holds bytes that do not fill a whole FIFO access unit.
//
// During a push it accumulates the head of a unit until it can be flushed;
// during a pull it holds the unread tail of the last unit read from the FIFO.
// buf[start:start+count] are the valid bytes, and 0 <= count <= size always.
type partialBuffer struct {
	buf   [maxUnit]byte
	size  int // access unit in bytes
	start int
	count int
}

// reset empties the buffer and sets the unit size for a new transfer.
func (p *partialBuffer) reset(size int) {
	p.size = size
	p.start = 0
	p.count = 0
	p.buf = [maxUnit]byte{}
}

// stage appends bytes to the pending push unit, stopping at the unit
// boundary. Returns the number of bytes taken from b.
func (p *partialBuffer) stage(b []byte) int {
	n := copy(p.buf[p.count:p.size], b)
	p.count += n
	return n
}

// set replaces the pending push unit with b, which must be shorter than a
// unit. Unused bytes are zeroed so a padded flush writes no stale data.
func (p *partialBuffer) set(b []byte) {
	p.buf = [maxUnit]byte{}
	p.start = 0
	p.count = copy(p.buf[:p.size], b)
}

// drain copies leftover pulled bytes into b. Returns the number copied.
func (p *partialBuffer) drain(b []byte) int {
	n := min(len(b), p.count)
	if n == 0 {
		return 0
	}
	copy(b, p.buf[p.start:p.start+n])
	p.start += n
	p.count -= n
	return n
}

// finalizeFill is called right after a whole unit was read into p.unit().
// It hands the first n bytes to b and keeps the rest for the next drain.
func (p *partialBuffer) finalizeFill(b []byte, n int) {
	copy(b[:n], p.buf[:n])
	p.start = n
	p.count = p.size - n
}

// full reports whether the pending push unit is complete.
func (p *partialBuffer) full() bool {
	return p.count == p.size
}

// unit returns the whole access unit backing the buffer.
func (p *partialBuffer) unit() []byte {
	return p.buf[:p.size]
}

// clear drops any staged bytes.
func (p *partialBuffer) clear() {
	p.start = 0
	p.count = 0
}
