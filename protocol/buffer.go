package protocol

import "bytes"

var crlf = []byte("\r\n")

// buffer accumulates fed bytes. Everything before pos has been consumed.
type buffer struct {
	buf []byte
	pos int

	// discarded counts bytes dropped from the front by compaction.
	discarded int
}

func (b *buffer) write(p []byte) {
	b.buf = append(b.buf, p...)
}

func (b *buffer) len() int {
	return len(b.buf) - b.pos
}

func (b *buffer) readByte() (byte, bool) {
	if b.pos >= len(b.buf) {
		return 0, false
	}

	c := b.buf[b.pos]
	b.pos++

	return c, true
}

// readLine returns the bytes up to the next CRLF and consumes them together with
// the CRLF. The returned slice aliases the buffer.
func (b *buffer) readLine() ([]byte, bool) {
	i := bytes.Index(b.buf[b.pos:], crlf)
	if i < 0 {
		return nil, false
	}

	line := b.buf[b.pos : b.pos+i]
	b.pos += i + len(crlf)

	return line, true
}

// next consumes n bytes. The caller checks len() first.
func (b *buffer) next(n int) []byte {
	p := b.buf[b.pos : b.pos+n]
	b.pos += n

	return p
}

// compact drops consumed bytes once at least threshold of them piled up.
func (b *buffer) compact(threshold int) {
	if b.pos < threshold {
		return
	}

	n := copy(b.buf, b.buf[b.pos:])
	b.buf = b.buf[:n]
	b.discarded += b.pos
	b.pos = 0
}

// release resets a fully consumed buffer, freeing it when its capacity exceeds
// maxBuf. A negative maxBuf keeps any capacity.
func (b *buffer) release(maxBuf int) {
	if b.len() != 0 {
		return
	}

	if maxBuf >= 0 && cap(b.buf) > maxBuf {
		b.buf = nil
	} else {
		b.buf = b.buf[:0]
	}

	b.discarded += b.pos
	b.pos = 0
}

// offset is the stream position of the read cursor.
func (b *buffer) offset() int {
	return b.discarded + b.pos
}

func (b *buffer) reset() {
	b.buf = nil
	b.pos = 0
	b.discarded = 0
}
