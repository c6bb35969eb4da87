// Package smp implements the Security Manager Protocol pairing state
// machine of spec component C7: PDU codec, the canonical state
// transition table, mode derivation, key capture, and the passkey/numeric
// auto-response fallback. Grounded on
// github.com/currantlabs/ble's linux/hci/smp.go for the PDU opcode table
// and ACL/L2CAP SMP-CID framing shape (that file's handleSMP always
// replies pairingFailed; the state machine body here follows the
// transition table instead) and on direct_bt's SMPHandler.cpp/BTDevice.cpp
// for the ordering between HCI-sourced synthetic events and on-wire PDUs.
package smp

import (
	"fmt"

	"github.com/gothel-btcore/btcore/octets"
)

// Opcode identifies an SMP PDU's first octet [Vol 3, Part H, 3.3].
type Opcode uint8

const (
	OpPairingRequest           Opcode = 0x01
	OpPairingResponse          Opcode = 0x02
	OpPairingConfirm           Opcode = 0x03
	OpPairingRandom            Opcode = 0x04
	OpPairingFailed            Opcode = 0x05
	OpEncryptionInformation    Opcode = 0x06
	OpMasterIdentification     Opcode = 0x07
	OpIdentityInformation      Opcode = 0x08
	OpIdentityAddressInformation Opcode = 0x09
	OpSigningInformation       Opcode = 0x0A
	OpSecurityRequest          Opcode = 0x0B
	OpPairingPublicKey         Opcode = 0x0C
	OpPairingDHKeyCheck        Opcode = 0x0D
	OpPairingKeypress          Opcode = 0x0E
)

func (o Opcode) String() string {
	switch o {
	case OpPairingRequest:
		return "PAIRING_REQUEST"
	case OpPairingResponse:
		return "PAIRING_RESPONSE"
	case OpPairingConfirm:
		return "PAIRING_CONFIRM"
	case OpPairingRandom:
		return "PAIRING_RANDOM"
	case OpPairingFailed:
		return "PAIRING_FAILED"
	case OpEncryptionInformation:
		return "ENCRYPTION_INFORMATION"
	case OpMasterIdentification:
		return "MASTER_IDENTIFICATION"
	case OpIdentityInformation:
		return "IDENTITY_INFORMATION"
	case OpIdentityAddressInformation:
		return "IDENTITY_ADDRESS_INFORMATION"
	case OpSigningInformation:
		return "SIGNING_INFORMATION"
	case OpSecurityRequest:
		return "SECURITY_REQUEST"
	case OpPairingPublicKey:
		return "PAIRING_PUBLIC_KEY"
	case OpPairingDHKeyCheck:
		return "PAIRING_DHKEY_CHECK"
	case OpPairingKeypress:
		return "PAIRING_KEYPRESS"
	default:
		return fmt.Sprintf("Opcode(0x%02X)", uint8(o))
	}
}

// AuthReq bits [Vol 3, Part H, 3.5.1].
const (
	AuthReqBonding       uint8 = 1 << 0
	AuthReqMITM          uint8 = 1 << 2
	AuthReqSC            uint8 = 1 << 3
	AuthReqKeypress      uint8 = 1 << 4
)

// KeyDist bits, shared by the initiator/responder key distribution
// fields of Pairing Request/Response.
const (
	KeyDistEnc  uint8 = 1 << 0
	KeyDistID   uint8 = 1 << 1
	KeyDistSign uint8 = 1 << 2
	KeyDistLink uint8 = 1 << 3
)

// PairingRequest is the Pairing Request/Response PDU body (opcode byte
// already stripped); both PDUs share this layout [Vol 3, Part H, 3.5.1].
type PairingRequest []byte

func NewPairingRequest(b []byte) (PairingRequest, error) {
	if len(b) != 6 {
		return nil, fmt.Errorf("smp: bad pairing request/response length %d", len(b))
	}
	return PairingRequest(b), nil
}

func (p PairingRequest) IOCapability() uint8            { return p[0] }
func (p PairingRequest) OOBDataFlag() uint8              { return p[1] }
func (p PairingRequest) AuthReq() uint8                  { return p[2] }
func (p PairingRequest) MaxEncKeySize() uint8            { return p[3] }
func (p PairingRequest) InitiatorKeyDistribution() uint8 { return p[4] }
func (p PairingRequest) ResponderKeyDistribution() uint8 { return p[5] }

// MarshalPairing builds a Pairing Request/Response body.
func MarshalPairing(ioCap, oob, authReq, maxEncSize, initKeys, respKeys uint8) []byte {
	return octets.NewWriter(6).
		PutU8(ioCap).PutU8(oob).PutU8(authReq).PutU8(maxEncSize).PutU8(initKeys).PutU8(respKeys).
		Bytes()
}

// PairingConfirm/PairingRandom carry a single 16-byte value.
type Value16 []byte

func NewValue16(b []byte) (Value16, error) {
	if len(b) != 16 {
		return nil, fmt.Errorf("smp: bad 16-byte value length %d", len(b))
	}
	return Value16(b), nil
}

func (v Value16) Bytes() [16]byte {
	var out [16]byte
	copy(out[:], v)
	return out
}

// PairingFailed carries a one-byte reason code [Vol 3, Part H, 3.5.5].
type PairingFailed []byte

func NewPairingFailed(b []byte) (PairingFailed, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("smp: bad pairing failed length %d", len(b))
	}
	return PairingFailed(b), nil
}

func (p PairingFailed) Reason() uint8 { return p[0] }

// EncryptionInformation carries a 16-byte LTK.
type EncryptionInformation = Value16

// MasterIdentification carries EDIV (2 bytes) and Rand (8 bytes).
type MasterIdentification []byte

func NewMasterIdentification(b []byte) (MasterIdentification, error) {
	if len(b) != 10 {
		return nil, fmt.Errorf("smp: bad master identification length %d", len(b))
	}
	return MasterIdentification(b), nil
}

func (m MasterIdentification) EDIV() uint16 { return uint16(m[0]) | uint16(m[1])<<8 }
func (m MasterIdentification) Rand() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(m[2+i]) << (8 * i)
	}
	return v
}

// IdentityInformation carries a 16-byte IRK.
type IdentityInformation = Value16

// IdentityAddressInformation carries the address-type (1 byte) and EUI-48
// (6 bytes, wire order) the IRK resolves to.
type IdentityAddressInformation []byte

func NewIdentityAddressInformation(b []byte) (IdentityAddressInformation, error) {
	if len(b) != 7 {
		return nil, fmt.Errorf("smp: bad identity address information length %d", len(b))
	}
	return IdentityAddressInformation(b), nil
}

func (a IdentityAddressInformation) AddrType() uint8 { return a[0] }
func (a IdentityAddressInformation) Address() [6]byte {
	var out [6]byte
	copy(out[:], a[1:])
	return out
}

// SigningInformation carries a 16-byte CSRK.
type SigningInformation = Value16

// SecurityRequest carries a single AuthReq byte.
type SecurityRequest []byte

func NewSecurityRequest(b []byte) (SecurityRequest, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("smp: bad security request length %d", len(b))
	}
	return SecurityRequest(b), nil
}

func (s SecurityRequest) AuthReq() uint8 { return s[0] }

// MarshalFailed builds a Pairing Failed PDU body for reason.
func MarshalFailed(reason uint8) []byte {
	return []byte{reason}
}

// MarshalValue16 builds a PDU body carrying a single 16-byte value
// (Pairing Confirm, Pairing Random, Encryption/Identity/Signing
// Information).
func MarshalValue16(v [16]byte) []byte {
	out := make([]byte, 16)
	copy(out, v[:])
	return out
}

// MarshalMasterIdentification builds a Master Identification PDU body.
func MarshalMasterIdentification(ediv uint16, rand uint64) []byte {
	return octets.NewWriter(10).PutU16(ediv).PutU64(rand).Bytes()
}

// MarshalIdentityAddressInformation builds an Identity Address
// Information PDU body.
func MarshalIdentityAddressInformation(addrType uint8, addr [6]byte) []byte {
	return octets.NewWriter(7).PutU8(addrType).PutRaw(addr[:]).Bytes()
}

// MarshalSecurityRequest builds a Security Request PDU body.
func MarshalSecurityRequest(authReq uint8) []byte {
	return []byte{authReq}
}

// PairingFailedReasons, from [Vol 3, Part H, 3.5.5, Table 3.7].
const (
	ReasonPasskeyEntryFailed        uint8 = 0x01
	ReasonOOBNotAvailable           uint8 = 0x02
	ReasonAuthenticationRequirements uint8 = 0x03
	ReasonConfirmValueFailed        uint8 = 0x04
	ReasonPairingNotSupported       uint8 = 0x05
	ReasonEncryptionKeySize         uint8 = 0x06
	ReasonCommandNotSupported       uint8 = 0x07
	ReasonUnspecifiedReason         uint8 = 0x08
	ReasonRepeatedAttempts          uint8 = 0x09
	ReasonInvalidParameters         uint8 = 0x0A
	ReasonDHKeyCheckFailed          uint8 = 0x0B
	ReasonNumericComparisonFailed   uint8 = 0x0C
)
