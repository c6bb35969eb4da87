// Package btaddr implements AddressAndType, spec section 3's identity key
// for every remote device: an EUI-48 paired with an address-type, with a
// derived random-address subtype.
package btaddr

import (
	"fmt"
	"net"
)

// Type is the address-type half of AddressAndType.
type Type uint8

// Address types (spec section 3).
const (
	BREDR     Type = 0x00
	LEPublic  Type = 0x01
	LERandom  Type = 0x02
)

func (t Type) String() string {
	switch t {
	case BREDR:
		return "BR/EDR"
	case LEPublic:
		return "LE_PUBLIC"
	case LERandom:
		return "LE_RANDOM"
	default:
		return fmt.Sprintf("Type(%d)", t)
	}
}

// RandomSubType further classifies a LERandom address by its top two bits
// [Vol 6, Part B, 1.3].
type RandomSubType uint8

const (
	// NotRandom applies to BREDR/LEPublic addresses.
	NotRandom RandomSubType = iota
	UnresolvablePrivate
	ResolvablePrivate
	StaticPublic
)

// DeriveRandomSubType inspects the top two bits of the address's most
// significant octet.
func DeriveRandomSubType(addr net.HardwareAddr) RandomSubType {
	if len(addr) != 6 {
		return NotRandom
	}
	switch addr[0] >> 6 {
	case 0b00:
		return UnresolvablePrivate
	case 0b01:
		return ResolvablePrivate
	case 0b11:
		return StaticPublic
	default:
		return StaticPublic // reserved top bits; treat conservatively as static
	}
}

// AddressAndType is value-equal and hashable by (Address, AddrType); it is
// the identity of a remote device (spec section 3).
type AddressAndType struct {
	Address net.HardwareAddr
	AddrType Type
}

// New normalizes addr to a 6-byte copy so AddressAndType values compare
// safely as map keys via Key().
func New(addr net.HardwareAddr, t Type) AddressAndType {
	a := make(net.HardwareAddr, 6)
	copy(a, addr)
	return AddressAndType{Address: a, AddrType: t}
}

// RandomSubType reports the derived random-address subtype, or NotRandom
// if AddrType is not LERandom.
func (a AddressAndType) RandomSubType() RandomSubType {
	if a.AddrType != LERandom {
		return NotRandom
	}
	return DeriveRandomSubType(a.Address)
}

// Key is a comparable, hashable representation suitable for map keys.
type Key [7]byte

// Key returns the comparable form of a.
func (a AddressAndType) Key() Key {
	var k Key
	copy(k[:6], a.Address)
	k[6] = byte(a.AddrType)
	return k
}

// Equal reports value equality by (Address, AddrType).
func (a AddressAndType) Equal(b AddressAndType) bool {
	return a.Key() == b.Key()
}

// String renders "aa:bb:cc:dd:ee:ff/LE_PUBLIC".
func (a AddressAndType) String() string {
	return fmt.Sprintf("%s/%s", a.Address, a.AddrType)
}

// HCIAddrType maps AddrType to the wire LE address type used in HCI
// commands (LE_PUBLIC=0x00, LE_RANDOM=0x01); RESOLVABLE_PRIVATE is treated
// as RANDOM for the create-conn command per spec section 4.6.
func (a AddressAndType) HCIAddrType() uint8 {
	if a.AddrType == LEPublic {
		return 0x00
	}
	return 0x01
}
