package keystore

import (
	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/smp"
)

// DeviceKeySource is the minimal view of a paired device keystore needs
// to build a KeyBin, kept independent of the bt package's concrete
// Device type to avoid an import cycle (bt imports keystore, not vice
// versa). It folds direct_bt's SMPKeyBin::create/createAndWrite
// convenience constructors into one call.
type DeviceKeySource interface {
	LocalAddress() btaddr.AddressAndType
	RemoteAddress() btaddr.AddressAndType
	ConnSecurityLevel() smp.SecLevel
	ConnIOCapability() smp.IOCap
	PairingState() smp.State
	PairingMode() smp.Mode
	AvailableKeys(responder bool) KeyType
	LongTermKeyOf(responder bool) LongTermKey
	IdentityResolvingKeyOf(responder bool) IdentityResolvingKey
	SignatureResolvingKeyOf(responder bool) SignatureResolvingKey
	LinkKeyOf(responder bool) LinkKey
}

// NewFromDevice builds a KeyBin from a connected device's negotiated
// security and key material, mirroring direct_bt's SMPKeyBin::create:
// only devices that either finished a real pairing negotiation or never
// needed security at all produce a usable bin. ok is false when the
// device's state doesn't satisfy either condition, matching create()
// marking its result invalid via size=0.
func NewFromDevice(d DeviceKeySource) (bin *KeyBin, ok bool) {
	sec := d.ConnSecurityLevel()
	state := d.PairingState()
	mode := d.PairingMode()

	pairedAndSecure := sec > smp.SecNone && state == smp.StateCompleted && mode > smp.ModeNegotiating
	noSecurityNeeded := sec == smp.SecNone && state == smp.StateNone && mode == smp.ModeNone
	if !pairedAndSecure && !noSecurityNeeded {
		return nil, false
	}

	b := New(d.LocalAddress(), d.RemoteAddress(), sec, d.ConnIOCapability())

	initKeys := d.AvailableKeys(false)
	respKeys := d.AvailableKeys(true)

	if initKeys.has(KeyEnc) {
		b.SetLTKInit(d.LongTermKeyOf(false))
	}
	if respKeys.has(KeyEnc) {
		b.SetLTKResp(d.LongTermKeyOf(true))
	}
	if initKeys.has(KeyID) {
		b.SetIRKInit(d.IdentityResolvingKeyOf(false))
	}
	if respKeys.has(KeyID) {
		b.SetIRKResp(d.IdentityResolvingKeyOf(true))
	}
	if initKeys.has(KeySign) {
		b.SetCSRKInit(d.SignatureResolvingKeyOf(false))
	}
	if respKeys.has(KeySign) {
		b.SetCSRKResp(d.SignatureResolvingKeyOf(true))
	}
	if initKeys.has(KeyLink) {
		b.SetLKInit(d.LinkKeyOf(false))
	}
	if respKeys.has(KeyLink) {
		b.SetLKResp(d.LinkKeyOf(true))
	}
	return b, true
}

// CreateAndWrite builds a KeyBin from d and writes it to path, skipping
// the write (returning false, nil) when the device doesn't yet produce
// a valid bin. overwrite should be false for PRE_PAIRED devices so a
// reused key file is never clobbered by its own reconnect.
func CreateAndWrite(d DeviceKeySource, path string, overwrite bool) (bool, error) {
	b, ok := NewFromDevice(d)
	if !ok || !b.IsValid() {
		return false, nil
	}
	if err := b.Write(path, overwrite); err != nil {
		return false, err
	}
	return true, nil
}
