package octets

import (
	"net"
	"testing"
)

func TestU16RoundTrip(t *testing.T) {
	w := NewWriter(2)
	w.PutU16(0xBEEF)
	r := NewReader(w.Bytes())
	v, err := r.U16()
	if err != nil {
		t.Fatalf("U16: %v", err)
	}
	if v != 0xBEEF {
		t.Fatalf("got %04X, want BEEF", v)
	}
}

func TestEUI48RoundTrip(t *testing.T) {
	addr := net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	w := NewWriter(6)
	w.PutEUI48(addr)
	r := NewReader(w.Bytes())
	got, err := r.EUI48()
	if err != nil {
		t.Fatalf("EUI48: %v", err)
	}
	if got.String() != addr.String() {
		t.Fatalf("got %s, want %s", got, addr)
	}
}

func TestShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.U16(); err != ErrShortBuffer {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestCStringUnterminated(t *testing.T) {
	r := NewReader([]byte("Sensor"))
	s, err := r.CString(6)
	if err != nil {
		t.Fatalf("CString: %v", err)
	}
	if s != "Sensor" {
		t.Fatalf("got %q", s)
	}
}

func TestCStringTerminated(t *testing.T) {
	r := NewReader([]byte("Sensor\x00\x00"))
	s, err := r.CString(8)
	if err != nil {
		t.Fatalf("CString: %v", err)
	}
	if s != "Sensor" {
		t.Fatalf("got %q", s)
	}
}
