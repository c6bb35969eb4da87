package smp

import (
	"testing"
	"time"
)

func TestFeatureExchangeHandshake(t *testing.T) {
	var sent [][]byte
	h := NewHandler(true, func(pdu []byte) error {
		sent = append(sent, pdu)
		return nil
	})

	if err := h.SendPairingRequest(uint8(IODisplayYesNo), 0, AuthReqBonding|AuthReqMITM, 16, 0x07, 0x07); err != nil {
		t.Fatalf("SendPairingRequest: %v", err)
	}
	if len(sent) != 1 || Opcode(sent[0][0]) != OpPairingRequest {
		t.Fatalf("expected one PAIRING_REQUEST sent, got %v", sent)
	}
	if h.Data.State != StateFeatureExchangeStarted {
		t.Fatalf("State = %v, want FEATURE_EXCHANGE_STARTED", h.Data.State)
	}

	resp := MarshalPairing(uint8(IODisplayYesNo), 0, AuthReqBonding|AuthReqMITM, 16, 0x07, 0x07)
	pdu := append([]byte{byte(OpPairingResponse)}, resp...)
	if err := h.HandlePDU(pdu); err != nil {
		t.Fatalf("HandlePDU(response): %v", err)
	}
	if h.Data.State != StateFeatureExchangeCompleted {
		t.Fatalf("State = %v, want FEATURE_EXCHANGE_COMPLETED", h.Data.State)
	}
	if h.Data.Mode != ModeJustWorks {
		t.Errorf("Mode = %v, want JUST_WORKS (no SC)", h.Data.Mode)
	}
}

func TestKeyDistributionToCompleted(t *testing.T) {
	h := NewHandler(true, func(pdu []byte) error { return nil })
	h.Data.State = StateFeatureExchangeCompleted
	h.Data.UseSC = false
	h.Data.Initiator.ExpectedKeys = KeyEnc | KeyID | KeySign
	h.Data.Responder.ExpectedKeys = KeyEnc | KeyID | KeySign

	confirm := append([]byte{byte(OpPairingConfirm)}, make([]byte, 16)...)
	if err := h.HandlePDU(confirm); err != nil {
		t.Fatalf("HandlePDU(confirm): %v", err)
	}
	if h.Data.State != StateKeyDistribution {
		t.Fatalf("State = %v, want KEY_DISTRIBUTION", h.Data.State)
	}

	enc := append([]byte{byte(OpEncryptionInformation)}, make([]byte, 16)...)
	if err := h.HandlePDU(enc); err != nil {
		t.Fatalf("HandlePDU(enc info): %v", err)
	}
	mi := append([]byte{byte(OpMasterIdentification)}, MarshalMasterIdentification(0, 0)...)
	if err := h.HandlePDU(mi); err != nil {
		t.Fatalf("HandlePDU(master ident): %v", err)
	}
	idInfo := append([]byte{byte(OpIdentityInformation)}, make([]byte, 16)...)
	if err := h.HandlePDU(idInfo); err != nil {
		t.Fatalf("HandlePDU(id info): %v", err)
	}
	sign := append([]byte{byte(OpSigningInformation)}, make([]byte, 16)...)
	if err := h.HandlePDU(sign); err != nil {
		t.Fatalf("HandlePDU(signing): %v", err)
	}

	if h.Data.State == StateCompleted {
		t.Fatal("should not complete before encryption_enabled")
	}
	// The local (initiator) side's own generated key material is recorded
	// directly, not via an inbound PDU from itself.
	h.Data.Initiator.ReceivedKeys = KeyEnc | KeyID | KeySign
	h.NoteEncryptionEnabled()
	if h.Data.State != StateCompleted {
		t.Fatalf("State = %v, want COMPLETED once encryption_enabled and keys satisfied", h.Data.State)
	}
}

func TestPairingFailedIsSticky(t *testing.T) {
	h := NewHandler(false, func(pdu []byte) error { return nil })
	h.Data.State = StateKeyDistribution
	pdu := append([]byte{byte(OpPairingFailed)}, MarshalFailed(ReasonConfirmValueFailed)...)
	if err := h.HandlePDU(pdu); err != nil {
		t.Fatalf("HandlePDU(failed): %v", err)
	}
	if h.Data.State != StateFailed {
		t.Fatalf("State = %v, want FAILED", h.Data.State)
	}
	enc := append([]byte{byte(OpEncryptionInformation)}, make([]byte, 16)...)
	if err := h.HandlePDU(enc); err != nil {
		t.Fatalf("HandlePDU after failure: %v", err)
	}
	if h.Data.State != StateFailed {
		t.Errorf("State = %v, want FAILED to remain absorbing", h.Data.State)
	}
}

func TestPasskeyFallbackNoKeyboard(t *testing.T) {
	h := NewHandler(true, func(pdu []byte) error { return nil })
	h.Data.State = StateFeatureExchangeCompleted

	replied := make(chan uint32, 1)
	h.PasskeyReply = func(passkey uint32) error {
		replied <- passkey
		return nil
	}
	h.NoteUserPasskeyRequest(IODisplayOnly)

	select {
	case pk := <-replied:
		if pk != 0 {
			t.Errorf("passkey = %d, want 0", pk)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected off-thread passkey reply within 500ms")
	}
	if h.Data.State != StatePasskeyExpected {
		t.Errorf("State = %v, want PASSKEY_EXPECTED", h.Data.State)
	}
}

func TestNumericCompareFallbackNoInput(t *testing.T) {
	h := NewHandler(true, func(pdu []byte) error { return nil })
	h.Data.State = StateFeatureExchangeCompleted

	replied := make(chan bool, 1)
	h.NumericReply = func(confirm bool) error {
		replied <- confirm
		return nil
	}
	h.NoteUserConfirmRequest(IONoInputNoOutput)

	select {
	case ok := <-replied:
		if !ok {
			t.Error("expected auto-accept true")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected off-thread numeric-compare reply within 500ms")
	}
}

func TestNotePrePaired(t *testing.T) {
	h := NewHandler(true, func(pdu []byte) error { return nil })
	h.NotePrePaired()
	if h.Data.State != StateCompleted {
		t.Fatalf("State = %v, want COMPLETED", h.Data.State)
	}
	if h.Data.Mode != ModePrePaired {
		t.Errorf("Mode = %v, want PRE_PAIRED", h.Data.Mode)
	}
	if !h.Data.EncryptionEnabled {
		t.Error("expected encryption_enabled true")
	}
}

func TestNoOverwriteAcrossHCIAndSMPSources(t *testing.T) {
	h := NewHandler(true, func(pdu []byte) error { return nil })
	h.Data.State = StateKeyDistribution
	first := [16]byte{0xAA}
	second := [16]byte{0xBB}
	h.NoteNewLongTermKey(true, first, 16, 0x1234, 0xABCD)
	h.NoteNewLongTermKey(true, second, 16, 0x5678, 0xEF01)
	if h.Data.Responder.LTK != first {
		t.Errorf("LTK = %v, want unchanged %v", h.Data.Responder.LTK, first)
	}
	enc := append([]byte{byte(OpEncryptionInformation)}, MarshalValue16([16]byte{0xCC})...)
	if err := h.HandlePDU(enc); err != nil {
		t.Fatalf("HandlePDU(enc info): %v", err)
	}
	if h.Data.Responder.LTK != first {
		t.Errorf("LTK after SMP ENCRYPTION_INFORMATION = %v, want unchanged %v", h.Data.Responder.LTK, first)
	}
}
