package frame

import (
	"encoding/binary"
	"fmt"
)

// reader is a bounds-checked cursor over a body. The first failure sticks;
// later reads return zero values so decoders can be written straight-line.
type reader struct {
	b      []byte
	off    int
	err    error
	errOff int
}

func (r *reader) fail(format string, args ...any) {
	if r.err != nil {
		return
	}
	r.err = fmt.Errorf("%w: "+format, append([]any{ErrInvalidStructure}, args...)...)
	r.errOff = r.off
}

func (r *reader) remaining() int {
	return len(r.b) - r.off
}

func (r *reader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if r.remaining() < n {
		r.fail("%s needs %d bytes, %d left", what, n, r.remaining())
		return false
	}
	return true
}

func (r *reader) u8(what string) uint8 {
	if !r.need(1, what) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u16(what string) uint16 {
	if !r.need(2, what) { //nolint:mnd // uint16
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

// take returns the next n bytes without copying.
func (r *reader) take(n int, what string) []byte {
	if !r.need(n, what) {
		return nil
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

// rest returns all remaining bytes without copying.
func (r *reader) rest() []byte {
	if r.err != nil {
		return nil
	}
	v := r.b[r.off:]
	r.off = len(r.b)
	return v
}

// skipRest discards trailing bytes.
func (r *reader) skipRest() {
	r.off = len(r.b)
}

// structLength reads a structure length octet and checks it against want.
func (r *reader) structLength(want int, what string) bool {
	if !r.need(want, what) {
		return false
	}
	if got := int(r.b[r.off]); got != want {
		r.fail("%s structure length %d, want %d", what, got, want)
		return false
	}
	return true
}

func (r *reader) expectEnd() {
	if r.err == nil && r.remaining() != 0 {
		r.fail("%d trailing bytes", r.remaining())
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
