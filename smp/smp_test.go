package smp

import "testing"

func TestPairingRequestRoundTrip(t *testing.T) {
	body := MarshalPairing(uint8(IODisplayYesNo), 0, AuthReqBonding|AuthReqMITM|AuthReqSC, 16, 0x07, 0x07)
	pr, err := NewPairingRequest(body)
	if err != nil {
		t.Fatalf("NewPairingRequest: %v", err)
	}
	if pr.IOCapability() != uint8(IODisplayYesNo) {
		t.Errorf("IOCapability = %d, want %d", pr.IOCapability(), IODisplayYesNo)
	}
	if pr.AuthReq() != AuthReqBonding|AuthReqMITM|AuthReqSC {
		t.Errorf("AuthReq = %#x", pr.AuthReq())
	}
	if pr.MaxEncKeySize() != 16 {
		t.Errorf("MaxEncKeySize = %d, want 16", pr.MaxEncKeySize())
	}
	if pr.InitiatorKeyDistribution() != 0x07 || pr.ResponderKeyDistribution() != 0x07 {
		t.Errorf("key distribution fields = %#x/%#x", pr.InitiatorKeyDistribution(), pr.ResponderKeyDistribution())
	}
}

func TestPairingRequestShort(t *testing.T) {
	if _, err := NewPairingRequest([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short pairing request")
	}
}

func TestMasterIdentificationRoundTrip(t *testing.T) {
	body := MarshalMasterIdentification(0x1234, 0xABCDEF0123456789)
	mi, err := NewMasterIdentification(body)
	if err != nil {
		t.Fatalf("NewMasterIdentification: %v", err)
	}
	if mi.EDIV() != 0x1234 {
		t.Errorf("EDIV = %#x, want 0x1234", mi.EDIV())
	}
	if mi.Rand() != 0xABCDEF0123456789 {
		t.Errorf("Rand = %#x", mi.Rand())
	}
}

func TestIdentityAddressInformationRoundTrip(t *testing.T) {
	addr := [6]byte{0xFF, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}
	body := MarshalIdentityAddressInformation(0x01, addr)
	ia, err := NewIdentityAddressInformation(body)
	if err != nil {
		t.Fatalf("NewIdentityAddressInformation: %v", err)
	}
	if ia.AddrType() != 0x01 {
		t.Errorf("AddrType = %d, want 1", ia.AddrType())
	}
	if got := ia.Address(); got != addr {
		t.Errorf("Address = %v, want %v", got, addr)
	}
}

func TestPairingFailedReason(t *testing.T) {
	body := MarshalFailed(ReasonPairingNotSupported)
	pf, err := NewPairingFailed(body)
	if err != nil {
		t.Fatalf("NewPairingFailed: %v", err)
	}
	if pf.Reason() != ReasonPairingNotSupported {
		t.Errorf("Reason = %#x, want %#x", pf.Reason(), ReasonPairingNotSupported)
	}
}

func TestOpcodeString(t *testing.T) {
	if OpPairingRequest.String() != "PAIRING_REQUEST" {
		t.Errorf("String() = %q", OpPairingRequest.String())
	}
}
