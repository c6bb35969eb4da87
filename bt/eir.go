// Package bt implements the adapter/device/manager layer of spec
// components C5/C6/C11: discovery and advertising state machines, the
// per-remote-device connection and pairing lifecycle, and a process-wide
// adapter registry. Grounded on github.com/currantlabs/ble's top-level
// ble.go/adv.go interfaces and its linux/hci/hci.go Advertisement type,
// generalized from a GATT-central client library into the host-stack core
// this module implements.
package bt

import (
	"github.com/gothel-btcore/btcore/buuid"
)

// AD data type codes [Vol 3, Part C, 11], grounded on
// github.com/currantlabs/ble's linux/adv/const.go.
const (
	adFlags            = 0x01
	adSomeUUID16       = 0x02
	adAllUUID16        = 0x03
	adSomeUUID32       = 0x04
	adAllUUID32        = 0x05
	adSomeUUID128      = 0x06
	adAllUUID128       = 0x07
	adShortName        = 0x08
	adCompleteName     = 0x09
	adTxPower          = 0x0A
	adSlaveConnInt     = 0x12
	adAppearance       = 0x19
	adManufacturerData = 0xFF
)

// Source tags which advertising report an EInfoReport field came from, so
// a later merge can tell an AD_IND field from a scan-response field
// (spec section 3 "source tag (AD_IND / AD_SCAN_RSP)").
type Source int

const (
	SourceADInd Source = iota
	SourceADScanRsp
)

// FieldMask records which EInfoReport fields have been set, for merge
// semantics across AD_IND/AD_SCAN_RSP pairs and successive reports of the
// same device.
type FieldMask uint16

const (
	FieldFlags FieldMask = 1 << iota
	FieldName
	FieldShortName
	FieldTxPower
	FieldManufacturerData
	FieldServiceUUIDs
	FieldAppearance
	FieldConnIntervalHint
	FieldRSSI
)

// EInfoReport is the mutable, merge-capable advertising data container of
// spec section 3.
type EInfoReport struct {
	Set FieldMask

	Flags             byte
	Name              string
	ShortName         string
	TxPower           int8
	ManufacturerData  []byte
	ServiceUUIDs      []buuid.UUID
	Appearance        uint16
	ConnIntervalMin   uint16
	ConnIntervalMax   uint16
	RSSI              int8
	Source            Source
}

// ParseEIR decodes one length-type-value AD stream (advertising data or
// scan-response data) into a fresh EInfoReport tagged with src.
func ParseEIR(data []byte, rssi int8, src Source) *EInfoReport {
	r := &EInfoReport{Source: src, RSSI: rssi}
	r.Set |= FieldRSSI
	b := data
	for len(b) >= 2 {
		l := int(b[0])
		if l == 0 || l+1 > len(b) {
			break
		}
		typ := b[1]
		val := b[2 : 1+l]
		switch typ {
		case adFlags:
			if len(val) >= 1 {
				r.Flags = val[0]
				r.Set |= FieldFlags
			}
		case adShortName:
			r.ShortName = string(val)
			r.Set |= FieldShortName
		case adCompleteName:
			r.Name = string(val)
			r.Set |= FieldName
		case adTxPower:
			if len(val) >= 1 {
				r.TxPower = int8(val[0])
				r.Set |= FieldTxPower
			}
		case adManufacturerData:
			r.ManufacturerData = append([]byte(nil), val...)
			r.Set |= FieldManufacturerData
		case adSomeUUID16, adAllUUID16:
			r.ServiceUUIDs = append(r.ServiceUUIDs, uuidList(val, 2)...)
			r.Set |= FieldServiceUUIDs
		case adSomeUUID32, adAllUUID32:
			r.ServiceUUIDs = append(r.ServiceUUIDs, uuidList(val, 4)...)
			r.Set |= FieldServiceUUIDs
		case adSomeUUID128, adAllUUID128:
			r.ServiceUUIDs = append(r.ServiceUUIDs, uuidList(val, 16)...)
			r.Set |= FieldServiceUUIDs
		case adAppearance:
			if len(val) >= 2 {
				r.Appearance = uint16(val[0]) | uint16(val[1])<<8
				r.Set |= FieldAppearance
			}
		case adSlaveConnInt:
			if len(val) >= 4 {
				r.ConnIntervalMin = uint16(val[0]) | uint16(val[1])<<8
				r.ConnIntervalMax = uint16(val[2]) | uint16(val[3])<<8
				r.Set |= FieldConnIntervalHint
			}
		}
		b = b[1+l:]
	}
	return r
}

func uuidList(b []byte, width int) []buuid.UUID {
	var out []buuid.UUID
	for len(b) >= width {
		var u buuid.UUID
		switch width {
		case 2:
			u = buuid.UUID16(uint16(b[0]) | uint16(b[1])<<8)
		case 4:
			u = buuid.UUID32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
		default:
			var raw [16]byte
			copy(raw[:], b[:16])
			u = buuid.UUID128(raw)
		}
		out = append(out, u)
		b = b[width:]
	}
	return out
}

// LikesEncryption reports whether the advertised flags request bonding
// (used by att.ComputeSecLevel's "peer signaled it likes encryption"
// input); this stack has no direct AD bit for that, so it is approximated
// by the presence of any service UUID advertisement, matching common
// peripheral firmware that only advertises services once paired.
func (r *EInfoReport) LikesEncryption() bool {
	return r.Set&FieldServiceUUIDs != 0
}

// Merge folds the fields set in other into r, preferring other's value for
// every field it has set (spec section 3 "supports a field-mask... for
// merge semantics").
func (r *EInfoReport) Merge(other *EInfoReport) {
	if other == nil {
		return
	}
	if other.Set&FieldFlags != 0 {
		r.Flags = other.Flags
		r.Set |= FieldFlags
	}
	if other.Set&FieldName != 0 {
		r.Name = other.Name
		r.Set |= FieldName
	}
	if other.Set&FieldShortName != 0 {
		r.ShortName = other.ShortName
		r.Set |= FieldShortName
	}
	if other.Set&FieldTxPower != 0 {
		r.TxPower = other.TxPower
		r.Set |= FieldTxPower
	}
	if other.Set&FieldManufacturerData != 0 {
		r.ManufacturerData = other.ManufacturerData
		r.Set |= FieldManufacturerData
	}
	if other.Set&FieldServiceUUIDs != 0 {
		r.ServiceUUIDs = other.ServiceUUIDs
		r.Set |= FieldServiceUUIDs
	}
	if other.Set&FieldAppearance != 0 {
		r.Appearance = other.Appearance
		r.Set |= FieldAppearance
	}
	if other.Set&FieldConnIntervalHint != 0 {
		r.ConnIntervalMin, r.ConnIntervalMax = other.ConnIntervalMin, other.ConnIntervalMax
		r.Set |= FieldConnIntervalHint
	}
	if other.Set&FieldRSSI != 0 {
		r.RSSI = other.RSSI
		r.Set |= FieldRSSI
	}
}

// DisplayName returns Name if set, else ShortName, else "".
func (r *EInfoReport) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ShortName
}
