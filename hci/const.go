package hci

// Packet types, the first octet of every frame crossing the HCI socket.
// Grounded on github.com/currantlabs/ble's linux/hci/const.go.
const (
	PktTypeCommand uint8 = 0x01
	PktTypeACLData uint8 = 0x02
	PktTypeSCOData uint8 = 0x03
	PktTypeEvent   uint8 = 0x04
)

// L2CAP fixed channel identifiers used on LE-U logical links
// [Vol 3, Part A, 2.1].
const (
	CIDAtt    uint16 = 0x0004
	CIDSignal uint16 = 0x0005
	CIDSMP    uint16 = 0x0006
)

// Event codes the core subscribes to (spec 4.3).
const (
	EvtDisconnectionComplete       uint8 = 0x05
	EvtEncryptionChange            uint8 = 0x08
	EvtReadRemoteVersionComplete   uint8 = 0x0C
	EvtCommandComplete             uint8 = 0x0E
	EvtCommandStatus               uint8 = 0x0F
	EvtHardwareError               uint8 = 0x10
	EvtNumberOfCompletedPackets    uint8 = 0x13
	EvtEncryptionKeyRefreshComplete uint8 = 0x30
	EvtLEMeta                      uint8 = 0x3E

	// BR/EDR connection complete; only relevant when the adapter also
	// drives classic links.
	EvtConnectionComplete uint8 = 0x03
)

// LE meta-event subcodes.
const (
	SubEvtLEConnectionComplete          uint8 = 0x01
	SubEvtLEAdvertisingReport           uint8 = 0x02
	SubEvtLEConnectionUpdateComplete    uint8 = 0x03
	SubEvtLEReadRemoteFeaturesComplete  uint8 = 0x04
	SubEvtLELongTermKeyRequest          uint8 = 0x05
)

// Link roles as reported by LE_Connection_Complete.
const (
	RoleMaster uint8 = 0x00
	RoleSlave  uint8 = 0x01
)

// Own/peer LE address types as used on the wire (not to be confused with
// btaddr.Type and btaddr.RandomSubType, which additionally distinguish
// random sub-kinds).
const (
	AddrLEPublic uint8 = 0x00
	AddrLERandom uint8 = 0x01
)

// Advertising report event types [Vol 4, Part E, 7.7.65.2].
const (
	AdvIndEvt        uint8 = 0x00
	AdvDirectIndEvt  uint8 = 0x01
	AdvScanIndEvt    uint8 = 0x02
	AdvNonconnIndEvt uint8 = 0x03
	AdvScanRspEvt    uint8 = 0x04
)

// OpCode builds a 16-bit HCI opcode from an OGF (opcode group field) and
// OCF (opcode command field), per [Vol 2, Part E, 5.4.1].
func OpCode(ogf uint8, ocf uint16) uint16 {
	return uint16(ogf)<<10 | ocf
}

// Opcodes the core actually issues (spec 4.3's opcode bitmask surface).
var (
	OpDisconnect                       = OpCode(0x01, 0x0006)
	OpSetEventMask                     = OpCode(0x03, 0x0001)
	OpReadBDADDR                       = OpCode(0x04, 0x0009)
	OpReadBufferSize                   = OpCode(0x04, 0x0005)
	OpLESetEventMask                   = OpCode(0x08, 0x0001)
	OpLEReadBufferSize                 = OpCode(0x08, 0x0002)
	OpLESetAdvertisingParameters       = OpCode(0x08, 0x0006)
	OpLESetAdvertisingData             = OpCode(0x08, 0x0008)
	OpLESetScanResponseData            = OpCode(0x08, 0x0009)
	OpLESetAdvertiseEnable             = OpCode(0x08, 0x000A)
	OpLESetScanParameters              = OpCode(0x08, 0x000B)
	OpLESetScanEnable                  = OpCode(0x08, 0x000C)
	OpLECreateConnection               = OpCode(0x08, 0x000D)
	OpLECreateConnectionCancel         = OpCode(0x08, 0x000E)
	OpLEStartEncryption                = OpCode(0x08, 0x0019)
	OpLELongTermKeyRequestReply        = OpCode(0x08, 0x001A)
	OpLELongTermKeyRequestNegativeReply = OpCode(0x08, 0x001B)
)
