// Package att implements the L2CAP/ATT bring-up of spec component C8:
// effective security-level computation, ATT channel open, MTU exchange,
// and the GATT-client bootstrap hook (interface only, service discovery
// itself is out of this module's scope). Grounded on
// github.com/currantlabs/ble's linux/att package for the PDU view shape
// (att_gen.go's byte-slice-with-accessors pattern), reduced to the one
// PDU pair this module actually drives end to end.
package att

import (
	"fmt"

	"github.com/gothel-btcore/btcore/octets"
)

// Opcode identifies an ATT PDU's first octet [Vol 3, Part F, 3.3].
type Opcode uint8

const (
	OpErrorResponse       Opcode = 0x01
	OpExchangeMTURequest  Opcode = 0x02
	OpExchangeMTUResponse Opcode = 0x03
)

// DefaultMTU is the minimum ATT_MTU every implementation must support
// [Vol 3, Part F, 3.2.8].
const DefaultMTU = 23

// ErrorResponse is the Error Response PDU body (opcode byte stripped).
type ErrorResponse []byte

func NewErrorResponse(b []byte) (ErrorResponse, error) {
	if len(b) != 4 {
		return nil, fmt.Errorf("att: bad error response length %d", len(b))
	}
	return ErrorResponse(b), nil
}

func (r ErrorResponse) RequestOpcodeInError() uint8  { return r[0] }
func (r ErrorResponse) AttributeInError() uint16     { return uint16(r[1]) | uint16(r[2])<<8 }
func (r ErrorResponse) ErrorCode() uint8              { return r[3] }

// ExchangeMTURequest/Response carry a single 16-bit MTU value.
type ExchangeMTU []byte

func NewExchangeMTU(b []byte) (ExchangeMTU, error) {
	if len(b) != 2 {
		return nil, fmt.Errorf("att: bad exchange mtu length %d", len(b))
	}
	return ExchangeMTU(b), nil
}

func (m ExchangeMTU) MTU() uint16 { return uint16(m[0]) | uint16(m[1])<<8 }

// MarshalExchangeMTURequest builds an Exchange MTU Request PDU.
func MarshalExchangeMTURequest(clientMTU uint16) []byte {
	return buildPDU(OpExchangeMTURequest, octets.NewWriter(2).PutU16(clientMTU).Bytes())
}

// MarshalExchangeMTUResponse builds an Exchange MTU Response PDU.
func MarshalExchangeMTUResponse(serverMTU uint16) []byte {
	return buildPDU(OpExchangeMTUResponse, octets.NewWriter(2).PutU16(serverMTU).Bytes())
}

func buildPDU(op Opcode, body []byte) []byte {
	out := make([]byte, 1+len(body))
	out[0] = byte(op)
	copy(out[1:], body)
	return out
}

// NegotiatedMTU picks the smaller of the two exchanged values, never
// below DefaultMTU [Vol 3, Part F, 3.4.2.1].
func NegotiatedMTU(clientMTU, serverMTU uint16) uint16 {
	m := clientMTU
	if serverMTU < m {
		m = serverMTU
	}
	if m < DefaultMTU {
		m = DefaultMTU
	}
	return m
}
