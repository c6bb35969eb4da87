package smp

import "testing"

func TestDeriveModeJustWorksNoMITM(t *testing.T) {
	m := deriveMode(false, AuthReqBonding, AuthReqBonding, IODisplayYesNo, IODisplayYesNo, false, false)
	if m != ModeJustWorks {
		t.Errorf("mode = %v, want JUST_WORKS", m)
	}
}

func TestDeriveModeJustWorksNoIO(t *testing.T) {
	m := deriveMode(false, AuthReqMITM, AuthReqMITM, IONoInputNoOutput, IODisplayYesNo, false, false)
	if m != ModeJustWorks {
		t.Errorf("mode = %v, want JUST_WORKS", m)
	}
}

func TestDeriveModeNumericCompareSC(t *testing.T) {
	m := deriveMode(true, AuthReqMITM|AuthReqSC, AuthReqMITM|AuthReqSC, IODisplayYesNo, IODisplayYesNo, false, false)
	if m != ModeNumericCompareInitiator {
		t.Errorf("mode = %v, want NUMERIC_COMPARE", m)
	}
}

func TestDeriveModePasskeyEntry(t *testing.T) {
	m := deriveMode(false, AuthReqMITM, AuthReqMITM, IODisplayOnly, IOKeyboardOnly, false, false)
	if m != ModePasskeyEntryResponder {
		t.Errorf("mode = %v, want PASSKEY_ENTRY_resp", m)
	}
}

func TestDeriveModeOOB(t *testing.T) {
	m := deriveMode(false, AuthReqMITM, AuthReqMITM, IODisplayYesNo, IODisplayYesNo, true, false)
	if m != ModeOutOfBand {
		t.Errorf("mode = %v, want OUT_OF_BAND", m)
	}
}

func TestKeyCaptureNoOverwrite(t *testing.T) {
	var s SideRecord
	first := [16]byte{1, 2, 3}
	second := [16]byte{4, 5, 6}
	if !s.captureLTK(first, 16, 0, 0) {
		t.Fatal("first capture should progress")
	}
	if s.captureLTK(second, 16, 0, 0) {
		t.Fatal("second capture should be ignored")
	}
	if s.LTK != first {
		t.Errorf("LTK = %v, want unchanged %v", s.LTK, first)
	}
}

func TestFailedIsAbsorbing(t *testing.T) {
	p := NewPairingData()
	p.State = StateKeyDistribution
	p.Fail()
	if p.State != StateFailed {
		t.Fatalf("State = %v, want FAILED", p.State)
	}
	p.transitionLocked(StateCompleted)
	if p.State != StateFailed {
		t.Errorf("State = %v, want FAILED to remain absorbing", p.State)
	}
}

func TestClearResetsButKeepsUserConfig(t *testing.T) {
	p := NewPairingData()
	p.SecLevelUser = SecEncAuth
	p.IOCapUser = IOKeyboardDisplay
	p.State = StateCompleted
	p.Initiator.LTKSet = true
	p.Clear()
	if p.State != StateNone {
		t.Errorf("State = %v, want NONE after Clear", p.State)
	}
	if p.Initiator.LTKSet {
		t.Error("Clear should wipe captured keys")
	}
	if p.SecLevelUser != SecEncAuth || p.IOCapUser != IOKeyboardDisplay {
		t.Error("Clear should preserve user-configured security settings")
	}
}

func TestCompletionInvariant(t *testing.T) {
	p := NewPairingData()
	if p.Initiator.ReceivedKeys.Has(expectedKeys(false)) {
		t.Fatal("fresh record should not already satisfy the key mask")
	}
	p.Initiator.ReceivedKeys = KeyEnc | KeyID | KeySign
	p.Initiator.ExpectedKeys = KeyEnc | KeyID | KeySign
	if !p.Initiator.ReceivedKeys.Has(expectedKeys(false) & p.Initiator.ExpectedKeys) {
		t.Error("legacy key mask should be satisfied once ENC|ID|SIGN arrive")
	}
}
