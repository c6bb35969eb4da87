package hci

import (
	"fmt"

	"github.com/gothel-btcore/btcore/hci/cmd"
	"github.com/gothel-btcore/btcore/octets"
)

// FrameCommand builds a full HCI command frame: packet-type, opcode,
// parameter-length, parameters (spec section 4.2).
func FrameCommand(c cmd.Command) []byte {
	params := c.Marshal()
	w := octets.NewWriter(4 + len(params))
	w.PutU8(PktTypeCommand).PutU16(c.OpCode()).PutU8(uint8(len(params))).PutRaw(params)
	return w.Bytes()
}

// l2capFrame is the minimal L2CAP Basic-mode header: 16-bit length, 16-bit
// CID, followed by the payload (spec section 4.2).
type l2capFrame struct {
	cid     uint16
	payload []byte
}

func parseL2CAP(b []byte) (l2capFrame, error) {
	r := octets.NewReader(b)
	length, err := r.U16()
	if err != nil {
		return l2capFrame{}, err
	}
	cid, err := r.U16()
	if err != nil {
		return l2capFrame{}, err
	}
	payload, err := r.Raw(int(length))
	if err != nil {
		return l2capFrame{}, fmt.Errorf("hci: truncated l2cap frame: %w", err)
	}
	return l2capFrame{cid: cid, payload: payload}, nil
}

func frameL2CAP(cid uint16, payload []byte) []byte {
	w := octets.NewWriter(4 + len(payload))
	w.PutU16(uint16(len(payload))).PutU16(cid).PutRaw(payload)
	return w.Bytes()
}

// aclHeader is the ACL data packet header: 16-bit handle+flags, 16-bit
// data total length (spec section 4.2).
type aclHeader struct {
	handle uint16
	pb     uint8
	bc     uint8
	length uint16
}

func parseACLHeader(b []byte) (aclHeader, []byte, error) {
	r := octets.NewReader(b)
	hf, err := r.U16()
	if err != nil {
		return aclHeader{}, nil, err
	}
	length, err := r.U16()
	if err != nil {
		return aclHeader{}, nil, err
	}
	rest, err := r.Raw(int(length))
	if err != nil {
		return aclHeader{}, nil, fmt.Errorf("hci: truncated acl packet: %w", err)
	}
	return aclHeader{
		handle: hf & 0x0FFF,
		pb:     uint8((hf >> 12) & 0x3),
		bc:     uint8((hf >> 14) & 0x3),
		length: length,
	}, rest, nil
}

func frameACL(handle uint16, pb uint8, payload []byte) []byte {
	hf := (handle & 0x0FFF) | uint16(pb)<<12
	w := octets.NewWriter(5 + len(payload))
	w.PutU8(PktTypeACLData).PutU16(hf).PutU16(uint16(len(payload))).PutRaw(payload)
	return w.Bytes()
}
