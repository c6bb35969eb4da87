// Package buuid implements Bluetooth's 16/32/128-bit UUIDs, including
// promotion of the short forms into the 128-bit BASE_UUID space.
//
// Grounded on github.com/currantlabs/ble's uuid.go (byte order, known-name
// table) extended with 32-bit width and base-UUID promotion per spec
// section 4.1.
package buuid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Width is the declared bit-width of a UUID, which is significant for
// strict equality independent of its promoted 128-bit form.
type Width int

// Recognized widths.
const (
	Width16  Width = 2
	Width32  Width = 4
	Width128 Width = 16
)

// BaseUUID is the Bluetooth SIG base UUID that 16- and 32-bit UUIDs are
// promoted into: 00000000-0000-1000-8000-00805F9B34FB, stored in on-wire
// (little-endian) byte order.
var BaseUUID = [16]byte{
	0xFB, 0x34, 0x9B, 0x5F, 0x80, 0x00, 0x00, 0x80,
	0x00, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// DefaultInsertOctet is the byte offset within the on-wire (little-endian)
// 128-bit value where a promoted 16/32-bit UUID's little-endian bytes are
// inserted.
const DefaultInsertOctet = 12

// UUID is a Bluetooth UUID holding its bytes in on-wire (little-endian)
// order, at its original declared width.
type UUID struct {
	b []byte
}

// UUID16 constructs a 16-bit UUID from i (e.g. 0x1800).
func UUID16(i uint16) UUID {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return UUID{b}
}

// UUID32 constructs a 32-bit UUID from i.
func UUID32(i uint32) UUID {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, i)
	return UUID{b}
}

// UUID128 wraps a raw 16-byte on-wire UUID.
func UUID128(b [16]byte) UUID {
	cp := make([]byte, 16)
	copy(cp, b[:])
	return UUID{cp}
}

// Parse parses a standard hex/dash UUID string ("1800" or
// "34DA3AD1-7110-41A1-B1EF-4430F509CDE7") into a UUID at the width implied
// by its length.
func Parse(s string) (UUID, error) {
	s = strings.ReplaceAll(s, "-", "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return UUID{}, err
	}
	switch len(raw) {
	case 2, 4, 16:
	default:
		return UUID{}, fmt.Errorf("buuid: invalid length %d for %q", len(raw), s)
	}
	return UUID{reverse(raw)}, nil
}

// MustParse is Parse but panics on error; reserved for literal constants.
func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Width reports the UUID's declared bit-width.
func (u UUID) Width() Width { return Width(len(u.b)) }

// Bytes returns the on-wire (little-endian) bytes at the declared width.
func (u UUID) Bytes() []byte { return u.b }

// String renders the UUID in big-endian hex, dashed at 128-bit width.
func (u UUID) String() string {
	be := reverse(u.b)
	if len(be) != 16 {
		return fmt.Sprintf("%X", be)
	}
	return fmt.Sprintf("%08X-%04X-%04X-%04X-%012X", be[0:4], be[4:6], be[6:8], be[8:10], be[10:16])
}

// Promote returns the 128-bit form of u: if u is already 128-bit it is
// returned unchanged; otherwise its little-endian bytes are copied into a
// copy of the on-wire base array starting at insertOctet.
func (u UUID) Promote(base [16]byte, insertOctet int) UUID {
	if u.Width() == Width128 {
		return u
	}
	out := base
	copy(out[insertOctet:insertOctet+len(u.b)], u.b)
	return UUID128(out)
}

// ToUUID16 extracts the 16-bit form of a 128-bit UUID promoted at
// insertOctet from base, or ok=false if u does not match base outside the
// promoted window.
func (u UUID) ToUUID16(base [16]byte, insertOctet int) (val uint16, ok bool) {
	if u.Width() != Width128 {
		if u.Width() == Width16 {
			return binary.LittleEndian.Uint16(u.b), true
		}
		return 0, false
	}
	be := reverse(u.b)
	baseBE := reverse(base[:])
	lo := len(baseBE) - insertOctet - 2
	hi := len(baseBE) - insertOctet
	for i := range be {
		if i < lo || i >= hi {
			if be[i] != baseBE[i] {
				return 0, false
			}
		}
	}
	v := uint16(be[lo])<<8 | uint16(be[lo+1])
	return v, true
}

// Equal reports whether u and v are the same width and the same value;
// unlike Equivalent it never promotes either side.
func (u UUID) Equal(v UUID) bool {
	if len(u.b) != len(v.b) {
		return false
	}
	for i := range u.b {
		if u.b[i] != v.b[i] {
			return false
		}
	}
	return true
}

// Equivalent reports whether u and v denote the same UUID once both are
// promoted to 128 bits using base/insertOctet. Per spec 4.1, plain Equal
// requires matching widths; Equivalent is the explicit promoted
// comparison.
func (u UUID) Equivalent(v UUID, base [16]byte, insertOctet int) bool {
	return u.Promote(base, insertOctet).Equal(v.Promote(base, insertOctet))
}

func reverse(b []byte) []byte {
	n := len(b)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = b[n-1-i]
	}
	return out
}

// Name returns the assigned name of a well-known 16-bit UUID (service,
// characteristic or descriptor), or "" if unknown.
func Name(u UUID) string {
	return knownNames[strings.ToUpper(u.String())]
}

var knownNames = map[string]string{
	"1800": "Generic Access",
	"1801": "Generic Attribute",
	"180A": "Device Information",
	"180D": "Heart Rate",
	"180F": "Battery Service",
	"2800": "Primary Service",
	"2801": "Secondary Service",
	"2802": "Include",
	"2803": "Characteristic",
	"2900": "Characteristic Extended Properties",
	"2901": "Characteristic User Description",
	"2902": "Client Characteristic Configuration",
	"2903": "Server Characteristic Configuration",
	"2A00": "Device Name",
	"2A01": "Appearance",
	"2A19": "Battery Level",
	"2A37": "Heart Rate Measurement",
}
