package smp

import (
	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/bterr"
	"github.com/pkg/errors"
)

// SendFunc transmits a raw SMP PDU (opcode byte plus body) to the peer;
// the bt package wires this to hci.Transport.WriteSMP for one connection
// handle.
type SendFunc func(pdu []byte) error

// PasskeyReplyFunc answers a controller passkey request with a six-digit
// value.
type PasskeyReplyFunc func(passkey uint32) error

// NumericCompareReplyFunc answers a controller numeric-comparison request
// with accept/reject.
type NumericCompareReplyFunc func(confirm bool) error

// Handler drives one connection's PairingData: it decodes inbound PDUs,
// applies the transition table of spec section 4.7, and issues outbound
// PDUs/replies through the callbacks supplied at construction.
type Handler struct {
	Data *PairingData

	Initiator bool // true if the local side began the procedure

	Send            SendFunc
	PasskeyReply    PasskeyReplyFunc
	NumericReply    NumericCompareReplyFunc

	localIdentity  func() ([16]byte, bool) // local IRK, if any, for ID distribution
	localLinkKey   func() ([16]byte, bool)
}

// NewHandler returns a Handler over a fresh PairingData.
func NewHandler(initiator bool, send SendFunc) *Handler {
	return &Handler{
		Data:      NewPairingData(),
		Initiator: initiator,
		Send:      send,
	}
}

// HandlePDU decodes and applies one inbound SMP PDU.
func (h *Handler) HandlePDU(b []byte) error {
	if len(b) < 1 {
		return errors.New("smp: empty pdu")
	}
	op, body := Opcode(b[0]), b[1:]
	h.Data.mu.Lock()
	defer h.Data.mu.Unlock()

	if h.Data.State == StateFailed && op != OpPairingFailed {
		// Absorbing per I3; ignore stray PDUs after failure.
		return nil
	}

	switch op {
	case OpSecurityRequest:
		return h.onSecurityRequest(body)
	case OpPairingRequest:
		return h.onPairingRequest(body)
	case OpPairingResponse:
		return h.onPairingResponse(body)
	case OpPairingConfirm, OpPairingPublicKey, OpPairingRandom, OpPairingDHKeyCheck:
		h.transitionToKeyDistributionLocked()
		return nil
	case OpPairingFailed:
		pf, err := NewPairingFailed(body)
		if err != nil {
			return err
		}
		log.Warningf("smp: pairing failed, reason 0x%02X", pf.Reason())
		h.Data.transitionLocked(StateFailed)
		return nil
	case OpEncryptionInformation:
		v, err := NewValue16(body)
		if err != nil {
			return err
		}
		h.captureLTKHalfLocked(v.Bytes())
		return nil
	case OpMasterIdentification:
		mi, err := NewMasterIdentification(body)
		if err != nil {
			return err
		}
		h.captureMasterIdentLocked(mi)
		return nil
	case OpIdentityInformation:
		v, err := NewValue16(body)
		if err != nil {
			return err
		}
		h.remoteSideLocked().captureIRK(v.Bytes())
		h.Data.markProgress()
		h.maybeCompleteLocked()
		return nil
	case OpIdentityAddressInformation:
		ia, err := NewIdentityAddressInformation(body)
		if err != nil {
			return err
		}
		h.captureIdentityAddressLocked(ia)
		return nil
	case OpSigningInformation:
		v, err := NewValue16(body)
		if err != nil {
			return err
		}
		h.remoteSideLocked().captureCSRK(v.Bytes())
		h.Data.markProgress()
		h.maybeCompleteLocked()
		return nil
	default:
		// Reserved/unsupported codes are ignored per [Vol 3, Part H, 3.3].
		return nil
	}
}

func (h *Handler) localSideLocked() *SideRecord {
	if h.Initiator {
		return &h.Data.Initiator
	}
	return &h.Data.Responder
}

func (h *Handler) remoteSideLocked() *SideRecord {
	if h.Initiator {
		return &h.Data.Responder
	}
	return &h.Data.Initiator
}

func (h *Handler) onSecurityRequest(body []byte) error {
	sr, err := NewSecurityRequest(body)
	if err != nil {
		return err
	}
	if h.Data.State != StateNone {
		return nil
	}
	h.Data.ResRequestedSec = true
	h.Data.Responder.AuthReqs = sr.AuthReq()
	h.Data.transitionLocked(StateRequestedByResponder)
	return nil
}

func (h *Handler) onPairingRequest(body []byte) error {
	pr, err := NewPairingRequest(body)
	if err != nil {
		return err
	}
	if h.Data.State != StateNone && h.Data.State != StateRequestedByResponder {
		return nil
	}
	h.Data.Initiator.IOCap = IOCap(pr.IOCapability())
	h.Data.Initiator.OOB = pr.OOBDataFlag() != 0
	h.Data.Initiator.AuthReqs = pr.AuthReq()
	h.Data.Initiator.MaxEncSize = pr.MaxEncKeySize()
	h.Data.Initiator.ExpectedKeys = KeyMask(pr.ResponderKeyDistribution())
	h.Data.Responder.ExpectedKeys = KeyMask(pr.InitiatorKeyDistribution())
	h.Data.transitionLocked(StateFeatureExchangeStarted)
	return nil
}

func (h *Handler) onPairingResponse(body []byte) error {
	pr, err := NewPairingRequest(body)
	if err != nil {
		return err
	}
	if h.Data.State != StateFeatureExchangeStarted {
		return nil
	}
	h.Data.Responder.IOCap = IOCap(pr.IOCapability())
	h.Data.Responder.OOB = pr.OOBDataFlag() != 0
	h.Data.Responder.AuthReqs = pr.AuthReq()
	h.Data.Responder.MaxEncSize = pr.MaxEncKeySize()
	h.Data.Initiator.ExpectedKeys &= KeyMask(pr.ResponderKeyDistribution())
	h.Data.Responder.ExpectedKeys &= KeyMask(pr.InitiatorKeyDistribution())

	h.Data.UseSC = h.Data.Initiator.AuthReqs&AuthReqSC != 0 && h.Data.Responder.AuthReqs&AuthReqSC != 0
	h.Data.Mode = deriveMode(h.Data.UseSC, h.Data.Initiator.AuthReqs, h.Data.Responder.AuthReqs,
		h.Data.Initiator.IOCap, h.Data.Responder.IOCap, h.Data.Initiator.OOB, h.Data.Responder.OOB)
	h.Data.transitionLocked(StateFeatureExchangeCompleted)
	return nil
}

func (h *Handler) transitionToKeyDistributionLocked() {
	if h.Data.State == StateFeatureExchangeCompleted ||
		h.Data.State == StateNumericCompareExpected ||
		h.Data.State == StatePasskeyExpected ||
		h.Data.State == StatePasskeyNotify {
		h.Data.transitionLocked(StateKeyDistribution)
	}
}

func (h *Handler) captureLTKHalfLocked(ltk [16]byte) {
	side := h.remoteSideLocked()
	if side.LTKSet {
		return
	}
	side.LTK, side.LTKSet = ltk, true
	h.Data.markProgress()
}

func (h *Handler) captureMasterIdentLocked(mi MasterIdentification) {
	side := h.remoteSideLocked()
	if side.LTKSet && side.EncSize == 0 {
		side.EncSize = 16
	}
	side.EDIV, side.Rand = mi.EDIV(), mi.Rand()
	side.ReceivedKeys |= KeyEnc
	h.Data.markProgress()
	h.maybeCompleteLocked()
}

func (h *Handler) captureIdentityAddressLocked(ia IdentityAddressInformation) {
	addr := ia.Address()
	typ := btaddr.LEPublic
	if ia.AddrType() != 0 {
		typ = btaddr.LERandom
	}
	h.remoteSideLocked().captureIdentityAddr(btaddr.New(reverseEUI48(addr[:]), typ))
	h.Data.markProgress()
}

// reverseEUI48 converts a wire-order (least-significant-octet-first) EUI-48
// into display order.
func reverseEUI48(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// maybeCompleteLocked checks the completion invariant (spec testable
// property I2) and advances to COMPLETED when satisfied.
func (h *Handler) maybeCompleteLocked() {
	if h.Data.State != StateKeyDistribution {
		return
	}
	if !h.Data.EncryptionEnabled {
		return
	}
	want := expectedKeys(h.Data.UseSC)
	if h.Data.Initiator.ReceivedKeys.Has(want&h.Data.Initiator.ExpectedKeys) &&
		h.Data.Responder.ReceivedKeys.Has(want&h.Data.Responder.ExpectedKeys) {
		h.Data.transitionLocked(StateCompleted)
	}
}

// NoteEncryptionEnabled applies an HCI_ENC_CHANGED/KEY_REFRESH_COMPLETE
// success signal (spec section 4.7, state-independent).
func (h *Handler) NoteEncryptionEnabled() {
	h.Data.mu.Lock()
	defer h.Data.mu.Unlock()
	if h.Data.State == StateFailed {
		return
	}
	h.Data.EncryptionEnabled = true
	h.Data.markProgress()
	h.maybeCompleteLocked()
}

// NotePrePaired marks the pairing COMPLETED via the pre-paired fast path
// (ALREADY_PAIRED status or an encryption-changed event with no preceding
// SMP PDU traffic), per spec section 4.11.
func (h *Handler) NotePrePaired() {
	h.Data.mu.Lock()
	defer h.Data.mu.Unlock()
	if h.Data.State == StateFailed {
		return
	}
	h.Data.IsPrePaired = true
	h.Data.EncryptionEnabled = true
	h.Data.Mode = ModePrePaired
	h.Data.transitionLocked(StateCompleted)
}

// NoteUserConfirmRequest applies a controller numeric-comparison request;
// if the local IO capability cannot support it, the fallback of spec
// section 4.7 auto-accepts immediately and off-thread.
func (h *Handler) NoteUserConfirmRequest(localIOCap IOCap) {
	h.Data.mu.Lock()
	if h.Data.State == StateFeatureExchangeCompleted {
		h.Data.transitionLocked(StateNumericCompareExpected)
	}
	needsFallback := localIOCap == IONoInputNoOutput || localIOCap == IODisplayOnly
	h.Data.mu.Unlock()
	if needsFallback && h.NumericReply != nil {
		go func() { _ = h.NumericReply(true) }()
	}
}

// NoteUserPasskeyRequest applies a controller passkey-entry request; if
// the local IO capability has no keyboard, it answers with 0 off-thread
// (spec section 4.7 "User-response fallback", scenario 3).
func (h *Handler) NoteUserPasskeyRequest(localIOCap IOCap) {
	h.Data.mu.Lock()
	if h.Data.State == StateFeatureExchangeCompleted {
		h.Data.transitionLocked(StatePasskeyExpected)
	}
	needsFallback := localIOCap == IODisplayOnly || localIOCap == IONoInputNoOutput
	h.Data.mu.Unlock()
	if needsFallback && h.PasskeyReply != nil {
		go func() { _ = h.PasskeyReply(0) }()
	}
}

// NotePasskeyNotify records a controller-displayed passkey (local side is
// asked to display it; nothing to reply).
func (h *Handler) NotePasskeyNotify() {
	h.Data.mu.Lock()
	defer h.Data.mu.Unlock()
	if h.Data.State == StateFeatureExchangeCompleted {
		h.Data.transitionLocked(StatePasskeyNotify)
	}
}

// NoteNewLongTermKey applies a kernel-mgmt-sourced LTK delivery, honoring
// the no-overwrite key capture rule so arrival order relative to
// HCI_LE_ENABLE_ENC mirroring never diverges (spec section 9, Open
// Question 2).
func (h *Handler) NoteNewLongTermKey(responderSide bool, ltk [16]byte, encSize uint8, ediv uint16, rand uint64) {
	h.Data.mu.Lock()
	defer h.Data.mu.Unlock()
	if h.Data.State == StateFailed {
		return
	}
	side := &h.Data.Initiator
	if responderSide {
		side = &h.Data.Responder
	}
	if side.captureLTK(ltk, encSize, ediv, rand) {
		h.Data.markProgress()
	}
	if h.Data.UseSC {
		// SC mirrors one derived LTK as both initiator and responder key
		// (spec section 4.7 "Key capture rules").
		other := &h.Data.Responder
		if responderSide {
			other = &h.Data.Initiator
		}
		other.captureLTK(ltk, encSize, ediv, rand)
	}
	h.maybeCompleteLocked()
}

// NoteNewLinkKey applies a kernel-mgmt-sourced BR/EDR link key delivery
// (SC only per spec section 4.7).
func (h *Handler) NoteNewLinkKey(responderSide bool, lk [16]byte) {
	h.Data.mu.Lock()
	defer h.Data.mu.Unlock()
	if h.Data.State == StateFailed || !h.Data.UseSC {
		return
	}
	side := &h.Data.Initiator
	if responderSide {
		side = &h.Data.Responder
	}
	if side.captureLinkKey(lk) {
		h.Data.markProgress()
	}
	h.maybeCompleteLocked()
}

// NoteAuthFailed applies an AUTH_FAILED/PIN_OR_KEY_MISSING/
// ENCRYPTION_MODE_NOT_ACCEPTED condition (spec section 7).
func (h *Handler) NoteAuthFailed() {
	h.Data.Fail()
}

// SendPairingRequest issues the initial Pairing Request (spec section 4.7
// "PAIRING_REQUEST from init").
func (h *Handler) SendPairingRequest(ioCap, oob, authReq, maxEncSize, initKeys, respKeys uint8) error {
	h.Data.mu.Lock()
	h.Data.Initiator.IOCap = IOCap(ioCap)
	h.Data.Initiator.OOB = oob != 0
	h.Data.Initiator.AuthReqs = authReq
	h.Data.Initiator.MaxEncSize = maxEncSize
	h.Data.Initiator.ExpectedKeys = KeyMask(respKeys)
	h.Data.Responder.ExpectedKeys = KeyMask(initKeys)
	h.Data.transitionLocked(StateFeatureExchangeStarted)
	h.Data.mu.Unlock()
	body := MarshalPairing(ioCap, oob, authReq, maxEncSize, initKeys, respKeys)
	return h.sendPDU(OpPairingRequest, body)
}

func (h *Handler) sendPDU(op Opcode, body []byte) error {
	if h.Send == nil {
		return bterr.ErrClosed
	}
	pdu := make([]byte, 1+len(body))
	pdu[0] = byte(op)
	copy(pdu[1:], body)
	return errors.Wrap(h.Send(pdu), "smp: send")
}
