// Package octets provides little-endian typed accessors over raw byte
// windows, matching the wire layout HCI, L2CAP, ATT and SMP all share.
package octets

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ErrShortBuffer is returned whenever a read or write would run past the
// end of the underlying window.
var ErrShortBuffer = fmt.Errorf("octets: short buffer")

// Reader is a read-only little-endian view over a byte slice. All bounds
// checks happen here, at the window edge.
type Reader struct {
	b []byte
	o int
}

// NewReader wraps b for little-endian reads starting at offset 0.
func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.b) - r.o }

// Bytes returns the remaining unread bytes without advancing the offset.
func (r *Reader) Bytes() []byte { return r.b[r.o:] }

func (r *Reader) need(n int) error {
	if r.Len() < n {
		return ErrShortBuffer
	}
	return nil
}

// U8 reads one byte and advances.
func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.o]
	r.o++
	return v, nil
}

// U16 reads a little-endian uint16 and advances.
func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.b[r.o:])
	r.o += 2
	return v, nil
}

// U32 reads a little-endian uint32 and advances.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.b[r.o:])
	r.o += 4
	return v, nil
}

// U64 reads a little-endian uint64 and advances.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.b[r.o:])
	r.o += 8
	return v, nil
}

// EUI48 reads a 6-byte Bluetooth device address, on-wire order, and
// returns it as a net.HardwareAddr in conventional display order.
func (r *Reader) EUI48() (net.HardwareAddr, error) {
	if err := r.need(6); err != nil {
		return nil, err
	}
	a := make(net.HardwareAddr, 6)
	for i := 0; i < 6; i++ {
		a[i] = r.b[r.o+5-i]
	}
	r.o += 6
	return a, nil
}

// Raw reads n raw bytes and advances.
func (r *Reader) Raw(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.b[r.o : r.o+n]
	r.o += n
	return v, nil
}

// Skip advances the offset by n without returning the skipped bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.o += n
	return nil
}

// CString reads a NUL-terminated string up to the window's end, returning
// the string without its terminator. If no NUL is found, the whole
// remainder is returned (EIR/HCI name fields are sometimes unterminated
// when they fill the field exactly).
func (r *Reader) CString(maxLen int) (string, error) {
	if err := r.need(0); err != nil {
		return "", err
	}
	n := maxLen
	if rem := r.Len(); n > rem {
		n = rem
	}
	buf := r.b[r.o : r.o+n]
	end := n
	for i, c := range buf {
		if c == 0 {
			end = i
			break
		}
	}
	r.o += n
	return string(buf[:end]), nil
}

// Writer is a growable little-endian byte builder.
type Writer struct {
	b []byte
}

// NewWriter returns an empty Writer with capacity hint cap.
func NewWriter(capHint int) *Writer { return &Writer{b: make([]byte, 0, capHint)} }

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte { return w.b }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.b) }

// PutU8 appends one byte.
func (w *Writer) PutU8(v uint8) *Writer {
	w.b = append(w.b, v)
	return w
}

// PutU16 appends a little-endian uint16.
func (w *Writer) PutU16(v uint16) *Writer {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
	return w
}

// PutU32 appends a little-endian uint32.
func (w *Writer) PutU32(v uint32) *Writer {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
	return w
}

// PutU64 appends a little-endian uint64.
func (w *Writer) PutU64(v uint64) *Writer {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
	return w
}

// PutEUI48 appends a 6-byte Bluetooth device address in on-wire order.
func (w *Writer) PutEUI48(a net.HardwareAddr) *Writer {
	var tmp [6]byte
	for i := 0; i < 6; i++ {
		tmp[i] = a[5-i]
	}
	w.b = append(w.b, tmp[:]...)
	return w
}

// PutRaw appends b verbatim.
func (w *Writer) PutRaw(b []byte) *Writer {
	w.b = append(w.b, b...)
	return w
}
