package secreg

import (
	"testing"

	"github.com/gothel-btcore/btcore/smp"
)

func TestGetStartOfByAddress(t *testing.T) {
	r := NewRegistry()
	r.Add(&Entry{AddrPrefix: []byte{0xC0, 0x26, 0xDA}, SecLevel: smp.SecEncAuth, IOCap: smp.IODisplayYesNo, IOCapAuto: smp.IOCapAutoUnset, Passkey: NoPasskey})

	addr := []byte{0xC0, 0x26, 0xDA, 0x01, 0xDA, 0xB1}
	got := r.GetStartOf(addr, "")
	if got == nil {
		t.Fatal("expected a match by address prefix")
	}
	if got.SecLevel != smp.SecEncAuth {
		t.Errorf("SecLevel = %v, want ENC_AUTH", got.SecLevel)
	}
}

func TestGetStartOfByName(t *testing.T) {
	r := NewRegistry()
	r.Add(&Entry{NamePrefix: "TestSensor", SecLevel: smp.SecEncOnly, IOCap: smp.IONoInputNoOutput, IOCapAuto: smp.IOCapAutoUnset, Passkey: NoPasskey})

	got := r.GetStartOf(nil, "TestSensor-42")
	if got == nil {
		t.Fatal("expected a match by name prefix")
	}
	if got.SecLevel != smp.SecEncOnly {
		t.Errorf("SecLevel = %v, want ENC_ONLY", got.SecLevel)
	}
}

func TestWildcardFallback(t *testing.T) {
	r := NewRegistry()
	r.Add(&Entry{NamePrefix: "Specific", SecLevel: smp.SecEncAuthFIPS, IOCapAuto: smp.IOCapAutoUnset, Passkey: NoPasskey})
	r.Add(&Entry{SecLevel: smp.SecEncOnly, IOCap: smp.IONoInputNoOutput, IOCapAuto: smp.IOCapAutoUnset, Passkey: NoPasskey})

	got := r.GetStartOf([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, "UnrelatedDevice")
	if got == nil {
		t.Fatal("expected wildcard entry to catch an unmatched device")
	}
	if got.SecLevel != smp.SecEncOnly {
		t.Errorf("SecLevel = %v, want wildcard's ENC_ONLY", got.SecLevel)
	}
}

func TestNoMatchWithoutWildcard(t *testing.T) {
	r := NewRegistry()
	r.Add(&Entry{NamePrefix: "Specific", Passkey: NoPasskey, IOCap: smp.IOCapAutoUnset, IOCapAuto: smp.IOCapAutoUnset})

	if got := r.GetStartOf([]byte{0xFF}, "NoMatch"); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestGetOrCreate(t *testing.T) {
	r := NewRegistry()
	e1 := r.GetOrCreate([]byte{0xAA, 0xBB}, "")
	e2 := r.GetOrCreate([]byte{0xAA, 0xBB}, "")
	if e1 != e2 {
		t.Error("GetOrCreate should return the same entry for the same address prefix")
	}
	if len(r.Entries()) != 1 {
		t.Errorf("len(Entries()) = %d, want 1", len(r.Entries()))
	}
}

func TestHasPasskeyAndAutoEnabled(t *testing.T) {
	e := &Entry{Passkey: NoPasskey, IOCapAuto: smp.IOCapAutoUnset}
	if e.HasPasskey() {
		t.Error("expected no passkey configured")
	}
	if e.IsSecurityAutoEnabled() {
		t.Error("expected auto-ladder disabled")
	}
	e.Passkey = 123456
	e.IOCapAuto = smp.IODisplayYesNo
	if !e.HasPasskey() || !e.IsSecurityAutoEnabled() {
		t.Error("expected passkey and auto-ladder both enabled after setting")
	}
}
