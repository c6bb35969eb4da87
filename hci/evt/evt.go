// Package evt implements typed views over HCI event parameter bytes.
// Grounded on github.com/currantlabs/ble's linux/hci/evt package, which
// represents each event as a byte-slice type with accessor methods
// instead of a parsed struct, so the reader never copies; this package
// follows the same shape but validates parameter length up front via
// NewXxx constructors, per spec section 4.2's "structured-view helper
// that validates event-type and parameter size before exposing a typed
// payload".
package evt

import (
	"fmt"

	"github.com/gothel-btcore/btcore/octets"
)

// CommandComplete is the HCI_Command_Complete event payload (after the
// event-code/length header has been stripped).
type CommandComplete []byte

// NewCommandComplete validates and wraps b.
func NewCommandComplete(b []byte) (CommandComplete, error) {
	if len(b) < 3 {
		return nil, fmt.Errorf("evt: short CommandComplete")
	}
	return CommandComplete(b), nil
}

func (e CommandComplete) NumHCICommandPackets() uint8 { return e[0] }
func (e CommandComplete) CommandOpcode() uint16        { return uint16(e[1]) | uint16(e[2])<<8 }
func (e CommandComplete) ReturnParameters() []byte     { return e[3:] }

// CommandStatus is the HCI_Command_Status event payload.
type CommandStatus []byte

// NewCommandStatus validates and wraps b.
func NewCommandStatus(b []byte) (CommandStatus, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("evt: short CommandStatus")
	}
	return CommandStatus(b), nil
}

func (e CommandStatus) Status() uint8                 { return e[0] }
func (e CommandStatus) NumHCICommandPackets() uint8    { return e[1] }
func (e CommandStatus) CommandOpcode() uint16          { return uint16(e[2]) | uint16(e[3])<<8 }

// DisconnectionComplete is the HCI_Disconnection_Complete event payload.
type DisconnectionComplete []byte

func NewDisconnectionComplete(b []byte) (DisconnectionComplete, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("evt: short DisconnectionComplete")
	}
	return DisconnectionComplete(b), nil
}

func (e DisconnectionComplete) Status() uint8           { return e[0] }
func (e DisconnectionComplete) ConnectionHandle() uint16 { return uint16(e[1]) | uint16(e[2])<<8 }
func (e DisconnectionComplete) Reason() uint8            { return e[3] }

// LEConnectionComplete is the LE_Connection_Complete meta-subevent
// payload (subcode byte already stripped).
type LEConnectionComplete []byte

func NewLEConnectionComplete(b []byte) (LEConnectionComplete, error) {
	if len(b) < 18 {
		return nil, fmt.Errorf("evt: short LEConnectionComplete")
	}
	return LEConnectionComplete(b), nil
}

func (e LEConnectionComplete) Status() uint8           { return e[0] }
func (e LEConnectionComplete) ConnectionHandle() uint16 { return uint16(e[1]) | uint16(e[2])<<8 }
func (e LEConnectionComplete) Role() uint8              { return e[3] }
func (e LEConnectionComplete) PeerAddressType() uint8   { return e[4] }
func (e LEConnectionComplete) PeerAddress() [6]byte {
	var a [6]byte
	copy(a[:], e[5:11])
	return a
}
func (e LEConnectionComplete) ConnInterval() uint16      { return uint16(e[11]) | uint16(e[12])<<8 }
func (e LEConnectionComplete) ConnLatency() uint16       { return uint16(e[13]) | uint16(e[14])<<8 }
func (e LEConnectionComplete) SupervisionTimeout() uint16 { return uint16(e[15]) | uint16(e[16])<<8 }
func (e LEConnectionComplete) MasterClockAccuracy() uint8 { return e[17] }

// LEAdvertisingReport is the LE_Advertising_Report meta-subevent payload,
// which may carry several reports back to back.
type LEAdvertisingReport []byte

func NewLEAdvertisingReport(b []byte) (LEAdvertisingReport, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("evt: short LEAdvertisingReport")
	}
	return LEAdvertisingReport(b), nil
}

func (e LEAdvertisingReport) NumReports() uint8 { return e[0] }

// Report describes one embedded advertising report at index i.
type Report struct {
	EventType   uint8
	AddressType uint8
	Address     [6]byte
	Data        []byte
	RSSI        int8
}

// Reports parses every embedded report; spec 4.3 requires one DEVICE_FOUND
// MgmtEvent per embedded EIR.
func (e LEAdvertisingReport) Reports() ([]Report, error) {
	n := int(e.NumReports())
	r := octets.NewReader(e[1:])
	evtTypes := make([]uint8, n)
	addrTypes := make([]uint8, n)
	addrs := make([][6]byte, n)
	lens := make([]uint8, n)
	for i := 0; i < n; i++ {
		v, err := r.U8()
		if err != nil {
			return nil, err
		}
		evtTypes[i] = v
	}
	for i := 0; i < n; i++ {
		v, err := r.U8()
		if err != nil {
			return nil, err
		}
		addrTypes[i] = v
	}
	for i := 0; i < n; i++ {
		raw, err := r.Raw(6)
		if err != nil {
			return nil, err
		}
		var a [6]byte
		// on-wire order is little-endian-octet order already matching HCI;
		// store as-is, display conversion happens in the hci package's
		// LE advertising report handler.
		copy(a[:], raw)
		addrs[i] = a
	}
	for i := 0; i < n; i++ {
		v, err := r.U8()
		if err != nil {
			return nil, err
		}
		lens[i] = v
	}
	data := make([][]byte, n)
	for i := 0; i < n; i++ {
		raw, err := r.Raw(int(lens[i]))
		if err != nil {
			return nil, err
		}
		data[i] = raw
	}
	rssi := make([]int8, n)
	for i := 0; i < n; i++ {
		v, err := r.U8()
		if err != nil {
			return nil, err
		}
		rssi[i] = int8(v)
	}
	out := make([]Report, n)
	for i := 0; i < n; i++ {
		out[i] = Report{
			EventType:   evtTypes[i],
			AddressType: addrTypes[i],
			Address:     addrs[i],
			Data:        data[i],
			RSSI:        rssi[i],
		}
	}
	return out, nil
}

// LEReadRemoteFeaturesComplete is the LE_Read_Remote_Features_Complete
// meta-subevent payload.
type LEReadRemoteFeaturesComplete []byte

func NewLEReadRemoteFeaturesComplete(b []byte) (LEReadRemoteFeaturesComplete, error) {
	if len(b) < 11 {
		return nil, fmt.Errorf("evt: short LEReadRemoteFeaturesComplete")
	}
	return LEReadRemoteFeaturesComplete(b), nil
}

func (e LEReadRemoteFeaturesComplete) Status() uint8            { return e[0] }
func (e LEReadRemoteFeaturesComplete) ConnectionHandle() uint16 { return uint16(e[1]) | uint16(e[2])<<8 }
func (e LEReadRemoteFeaturesComplete) LEFeatures() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(e[3+i]) << (8 * i)
	}
	return v
}

// LELongTermKeyRequest is the LE_Long_Term_Key_Request meta-subevent
// payload.
type LELongTermKeyRequest []byte

func NewLELongTermKeyRequest(b []byte) (LELongTermKeyRequest, error) {
	if len(b) < 12 {
		return nil, fmt.Errorf("evt: short LELongTermKeyRequest")
	}
	return LELongTermKeyRequest(b), nil
}

func (e LELongTermKeyRequest) ConnectionHandle() uint16 { return uint16(e[0]) | uint16(e[1])<<8 }
func (e LELongTermKeyRequest) RandomNumber() uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(e[2+i]) << (8 * i)
	}
	return v
}
func (e LELongTermKeyRequest) EncryptedDiversifier() uint16 {
	return uint16(e[10]) | uint16(e[11])<<8
}

// EncryptionChange is the HCI_Encryption_Change event payload.
type EncryptionChange []byte

func NewEncryptionChange(b []byte) (EncryptionChange, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("evt: short EncryptionChange")
	}
	return EncryptionChange(b), nil
}

func (e EncryptionChange) Status() uint8            { return e[0] }
func (e EncryptionChange) ConnectionHandle() uint16 { return uint16(e[1]) | uint16(e[2])<<8 }
func (e EncryptionChange) EncryptionEnabled() uint8  { return e[3] }

// EncryptionKeyRefreshComplete is the HCI_Encryption_Key_Refresh_Complete
// event payload.
type EncryptionKeyRefreshComplete []byte

func NewEncryptionKeyRefreshComplete(b []byte) (EncryptionKeyRefreshComplete, error) {
	if len(b) < 3 {
		return nil, fmt.Errorf("evt: short EncryptionKeyRefreshComplete")
	}
	return EncryptionKeyRefreshComplete(b), nil
}

func (e EncryptionKeyRefreshComplete) Status() uint8            { return e[0] }
func (e EncryptionKeyRefreshComplete) ConnectionHandle() uint16 { return uint16(e[1]) | uint16(e[2])<<8 }

// NumberOfCompletedPackets is the HCI_Number_Of_Completed_Packets event
// payload.
type NumberOfCompletedPackets []byte

func NewNumberOfCompletedPackets(b []byte) (NumberOfCompletedPackets, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("evt: short NumberOfCompletedPackets")
	}
	return NumberOfCompletedPackets(b), nil
}

func (e NumberOfCompletedPackets) NumberOfHandles() uint8 { return e[0] }
func (e NumberOfCompletedPackets) ConnectionHandle(i int) uint16 {
	o := 1 + i*4
	return uint16(e[o]) | uint16(e[o+1])<<8
}
func (e NumberOfCompletedPackets) HCNumOfCompletedPackets(i int) uint16 {
	o := 1 + i*4 + 2
	return uint16(e[o]) | uint16(e[o+1])<<8
}
