// Package cmd implements the HCI command parameter structs the core
// issues, per spec section 4.3's opcode surface. Grounded on
// github.com/currantlabs/ble's linux/hci/cmd package: each command is a
// plain struct with OpCode()/Len()/Marshal(), marshaled field-by-field in
// wire (little-endian) order via the shared octets writer instead of
// encoding/binary's struct reflection, since several commands carry
// variable-width address/bitmask fields cmd_gen.go's pure-struct approach
// does not (advertising data length-prefixed payloads).
package cmd

import "github.com/gothel-btcore/btcore/octets"

// Command is satisfied by every HCI command parameter struct.
type Command interface {
	OpCode() uint16
	Len() int
	Marshal() []byte
}

// ReturnParams is satisfied by every HCI command complete/status return
// parameter struct.
type ReturnParams interface {
	Unmarshal(b []byte) error
}

const (
	opDisconnect                        = 0x01<<10 | 0x0006
	opSetEventMask                       = 0x03<<10 | 0x0001
	opReadBDADDR                         = 0x04<<10 | 0x0009
	opReadBufferSize                     = 0x04<<10 | 0x0005
	opLESetEventMask                     = 0x08<<10 | 0x0001
	opLEReadBufferSize                   = 0x08<<10 | 0x0002
	opLESetAdvertisingParameters         = 0x08<<10 | 0x0006
	opLESetAdvertisingData               = 0x08<<10 | 0x0008
	opLESetAdvertiseEnable                = 0x08<<10 | 0x000A
	opLESetScanParameters                = 0x08<<10 | 0x000B
	opLESetScanEnable                    = 0x08<<10 | 0x000C
	opLECreateConnection                = 0x08<<10 | 0x000D
	opLECreateConnectionCancel          = 0x08<<10 | 0x000E
	opLEStartEncryption                  = 0x08<<10 | 0x0019
	opLELongTermKeyRequestReply          = 0x08<<10 | 0x001A
	opLELongTermKeyRequestNegativeReply = 0x08<<10 | 0x001B
)

// Disconnect implements Disconnect (0x01|0x0006) [Vol 2, Part E, 7.1.6].
type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c *Disconnect) OpCode() uint16 { return opDisconnect }
func (c *Disconnect) Len() int       { return 3 }
func (c *Disconnect) Marshal() []byte {
	return octets.NewWriter(3).PutU16(c.ConnectionHandle).PutU8(c.Reason).Bytes()
}

// SetEventMask implements Set Event Mask (0x03|0x0001).
type SetEventMask struct {
	EventMask uint64
}

func (c *SetEventMask) OpCode() uint16 { return opSetEventMask }
func (c *SetEventMask) Len() int       { return 8 }
func (c *SetEventMask) Marshal() []byte {
	return octets.NewWriter(8).PutU64(c.EventMask).Bytes()
}

// ReadBDADDR implements Read BD_ADDR (0x04|0x0009).
type ReadBDADDR struct{}

func (c *ReadBDADDR) OpCode() uint16   { return opReadBDADDR }
func (c *ReadBDADDR) Len() int         { return 0 }
func (c *ReadBDADDR) Marshal() []byte  { return nil }

// ReadBDADDRRP is the return parameters of ReadBDADDR.
type ReadBDADDRRP struct {
	Status uint8
	BDADDR [6]byte
}

func (rp *ReadBDADDRRP) Unmarshal(b []byte) error {
	r := octets.NewReader(b)
	status, err := r.U8()
	if err != nil {
		return err
	}
	addr, err := r.Raw(6)
	if err != nil {
		return err
	}
	rp.Status = status
	copy(rp.BDADDR[:], addr)
	return nil
}

// ReadBufferSize implements Read Buffer Size (0x04|0x0005).
type ReadBufferSize struct{}

func (c *ReadBufferSize) OpCode() uint16  { return opReadBufferSize }
func (c *ReadBufferSize) Len() int        { return 0 }
func (c *ReadBufferSize) Marshal() []byte { return nil }

// LESetEventMask implements LE Set Event Mask (0x08|0x0001).
type LESetEventMask struct {
	LEEventMask uint64
}

func (c *LESetEventMask) OpCode() uint16 { return opLESetEventMask }
func (c *LESetEventMask) Len() int       { return 8 }
func (c *LESetEventMask) Marshal() []byte {
	return octets.NewWriter(8).PutU64(c.LEEventMask).Bytes()
}

// LEReadBufferSize implements LE Read Buffer Size (0x08|0x0002).
type LEReadBufferSize struct{}

func (c *LEReadBufferSize) OpCode() uint16  { return opLEReadBufferSize }
func (c *LEReadBufferSize) Len() int        { return 0 }
func (c *LEReadBufferSize) Marshal() []byte { return nil }

// LEReadBufferSizeRP is the return parameters of LEReadBufferSize.
type LEReadBufferSizeRP struct {
	Status                   uint8
	HCLEDataPacketLength     uint16
	HCTotalNumLEDataPackets  uint8
}

func (rp *LEReadBufferSizeRP) Unmarshal(b []byte) error {
	r := octets.NewReader(b)
	var err error
	if rp.Status, err = r.U8(); err != nil {
		return err
	}
	if rp.HCLEDataPacketLength, err = r.U16(); err != nil {
		return err
	}
	if rp.HCTotalNumLEDataPackets, err = r.U8(); err != nil {
		return err
	}
	return nil
}

// LESetScanParameters implements LE Set Scan Parameters (0x08|0x000B).
// Interval/Window are in 0.625ms units per spec section 6.3.
type LESetScanParameters struct {
	LEScanType           uint8
	LEScanInterval       uint16
	LEScanWindow         uint16
	OwnAddressType       uint8
	ScanningFilterPolicy uint8
}

func (c *LESetScanParameters) OpCode() uint16 { return opLESetScanParameters }
func (c *LESetScanParameters) Len() int       { return 7 }
func (c *LESetScanParameters) Marshal() []byte {
	return octets.NewWriter(7).
		PutU8(c.LEScanType).
		PutU16(c.LEScanInterval).
		PutU16(c.LEScanWindow).
		PutU8(c.OwnAddressType).
		PutU8(c.ScanningFilterPolicy).
		Bytes()
}

// LESetScanEnable implements LE Set Scan Enable (0x08|0x000C).
type LESetScanEnable struct {
	LEScanEnable     uint8
	FilterDuplicates uint8
}

func (c *LESetScanEnable) OpCode() uint16 { return opLESetScanEnable }
func (c *LESetScanEnable) Len() int       { return 2 }
func (c *LESetScanEnable) Marshal() []byte {
	return octets.NewWriter(2).PutU8(c.LEScanEnable).PutU8(c.FilterDuplicates).Bytes()
}

// LECreateConnection implements LE Create Connection (0x08|0x000D).
// All interval/window/latency/timeout fields are native HCI units, per
// spec section 6.3.
type LECreateConnection struct {
	LEScanInterval        uint16
	LEScanWindow          uint16
	InitiatorFilterPolicy uint8
	PeerAddressType       uint8
	PeerAddress           [6]byte
	OwnAddressType        uint8
	ConnIntervalMin       uint16
	ConnIntervalMax       uint16
	ConnLatency           uint16
	SupervisionTimeout    uint16
	MinimumCELength       uint16
	MaximumCELength       uint16
}

func (c *LECreateConnection) OpCode() uint16 { return opLECreateConnection }
func (c *LECreateConnection) Len() int       { return 25 }
func (c *LECreateConnection) Marshal() []byte {
	return octets.NewWriter(25).
		PutU16(c.LEScanInterval).
		PutU16(c.LEScanWindow).
		PutU8(c.InitiatorFilterPolicy).
		PutU8(c.PeerAddressType).
		PutRaw(c.PeerAddress[:]).
		PutU8(c.OwnAddressType).
		PutU16(c.ConnIntervalMin).
		PutU16(c.ConnIntervalMax).
		PutU16(c.ConnLatency).
		PutU16(c.SupervisionTimeout).
		PutU16(c.MinimumCELength).
		PutU16(c.MaximumCELength).
		Bytes()
}

// LECreateConnectionCancel implements LE Create Connection Cancel
// (0x08|0x000E).
type LECreateConnectionCancel struct{}

func (c *LECreateConnectionCancel) OpCode() uint16  { return opLECreateConnectionCancel }
func (c *LECreateConnectionCancel) Len() int        { return 0 }
func (c *LECreateConnectionCancel) Marshal() []byte { return nil }

// LESetAdvertisingParameters implements LE Set Advertising Parameters
// (0x08|0x0006). Interval fields are 0.625ms units per spec section 6.3.
type LESetAdvertisingParameters struct {
	AdvertisingIntervalMin uint16
	AdvertisingIntervalMax uint16
	AdvertisingType        uint8
	OwnAddressType         uint8
	PeerAddressType        uint8
	PeerAddress            [6]byte
	AdvertisingChannelMap  uint8
	AdvertisingFilterPolicy uint8
}

func (c *LESetAdvertisingParameters) OpCode() uint16 { return opLESetAdvertisingParameters }
func (c *LESetAdvertisingParameters) Len() int        { return 15 }
func (c *LESetAdvertisingParameters) Marshal() []byte {
	return octets.NewWriter(15).
		PutU16(c.AdvertisingIntervalMin).
		PutU16(c.AdvertisingIntervalMax).
		PutU8(c.AdvertisingType).
		PutU8(c.OwnAddressType).
		PutU8(c.PeerAddressType).
		PutRaw(c.PeerAddress[:]).
		PutU8(c.AdvertisingChannelMap).
		PutU8(c.AdvertisingFilterPolicy).
		Bytes()
}

// LESetAdvertisingData implements LE Set Advertising Data (0x08|0x0008).
type LESetAdvertisingData struct {
	AdvertisingDataLength uint8
	AdvertisingData       [31]byte
}

func (c *LESetAdvertisingData) OpCode() uint16 { return opLESetAdvertisingData }
func (c *LESetAdvertisingData) Len() int        { return 32 }
func (c *LESetAdvertisingData) Marshal() []byte {
	return octets.NewWriter(32).PutU8(c.AdvertisingDataLength).PutRaw(c.AdvertisingData[:]).Bytes()
}

// LESetAdvertiseEnable implements LE Set Advertise Enable (0x08|0x000A).
type LESetAdvertiseEnable struct {
	AdvertisingEnable uint8
}

func (c *LESetAdvertiseEnable) OpCode() uint16  { return opLESetAdvertiseEnable }
func (c *LESetAdvertiseEnable) Len() int        { return 1 }
func (c *LESetAdvertiseEnable) Marshal() []byte { return octets.NewWriter(1).PutU8(c.AdvertisingEnable).Bytes() }

// LEStartEncryption implements LE Start Encryption (0x08|0x0019).
type LEStartEncryption struct {
	ConnectionHandle       uint16
	RandomNumber           uint64
	EncryptedDiversifier   uint16
	LongTermKey            [16]byte
}

func (c *LEStartEncryption) OpCode() uint16 { return opLEStartEncryption }
func (c *LEStartEncryption) Len() int       { return 28 }
func (c *LEStartEncryption) Marshal() []byte {
	return octets.NewWriter(28).
		PutU16(c.ConnectionHandle).
		PutU64(c.RandomNumber).
		PutU16(c.EncryptedDiversifier).
		PutRaw(c.LongTermKey[:]).
		Bytes()
}

// LELongTermKeyRequestReply implements LE Long Term Key Request Reply
// (0x08|0x001A).
type LELongTermKeyRequestReply struct {
	ConnectionHandle uint16
	LongTermKey      [16]byte
}

func (c *LELongTermKeyRequestReply) OpCode() uint16 { return opLELongTermKeyRequestReply }
func (c *LELongTermKeyRequestReply) Len() int        { return 18 }
func (c *LELongTermKeyRequestReply) Marshal() []byte {
	return octets.NewWriter(18).PutU16(c.ConnectionHandle).PutRaw(c.LongTermKey[:]).Bytes()
}

// LELongTermKeyRequestNegativeReply implements LE Long Term Key Request
// Negative Reply (0x08|0x001B).
type LELongTermKeyRequestNegativeReply struct {
	ConnectionHandle uint16
}

func (c *LELongTermKeyRequestNegativeReply) OpCode() uint16 {
	return opLELongTermKeyRequestNegativeReply
}
func (c *LELongTermKeyRequestNegativeReply) Len() int { return 2 }
func (c *LELongTermKeyRequestNegativeReply) Marshal() []byte {
	return octets.NewWriter(2).PutU16(c.ConnectionHandle).Bytes()
}
