package bt

import "testing"

func TestParseEIRNameAndFlags(t *testing.T) {
	data := []byte{
		2, adFlags, 0x06,
		5, adCompleteName, 'H', 'e', 'l', 'l',
	}
	r := ParseEIR(data, -50, SourceADInd)
	if r.Flags != 0x06 || r.Set&FieldFlags == 0 {
		t.Errorf("Flags = %#x, set=%v", r.Flags, r.Set&FieldFlags != 0)
	}
	if r.Name != "Hell" || r.Set&FieldName == 0 {
		t.Errorf("Name = %q", r.Name)
	}
	if r.RSSI != -50 {
		t.Errorf("RSSI = %d, want -50", r.RSSI)
	}
}

func TestParseEIRUUID16List(t *testing.T) {
	data := []byte{5, adAllUUID16, 0x0F, 0x18, 0x0A, 0x18}
	r := ParseEIR(data, 0, SourceADInd)
	if len(r.ServiceUUIDs) != 2 {
		t.Fatalf("len(ServiceUUIDs) = %d, want 2", len(r.ServiceUUIDs))
	}
	if r.ServiceUUIDs[0].String() != "180F" {
		t.Errorf("first uuid = %s", r.ServiceUUIDs[0].String())
	}
}

func TestParseEIRStopsOnTruncatedField(t *testing.T) {
	data := []byte{10, adCompleteName, 'a', 'b'} // declares length 10 but only 2 bytes follow
	r := ParseEIR(data, 0, SourceADInd)
	if r.Set&FieldName != 0 {
		t.Error("expected truncated field to be ignored, not parsed")
	}
}

func TestMergeOverwritesOnlySetFields(t *testing.T) {
	base := ParseEIR([]byte{4, adCompleteName, 'a', 'b', 'c'}, -40, SourceADInd)
	scanRsp := &EInfoReport{
		Set:     FieldTxPower | FieldRSSI,
		TxPower: 4,
		RSSI:    -30,
		Source:  SourceADScanRsp,
	}
	base.Merge(scanRsp)

	if base.Name != "abc" {
		t.Errorf("Name clobbered by merge: %q", base.Name)
	}
	if base.TxPower != 4 {
		t.Errorf("TxPower = %d, want 4", base.TxPower)
	}
	if base.RSSI != -30 {
		t.Errorf("RSSI = %d, want -30", base.RSSI)
	}
}

func TestDisplayNamePrefersCompleteName(t *testing.T) {
	r := &EInfoReport{Name: "Full", ShortName: "Short"}
	if got := r.DisplayName(); got != "Full" {
		t.Errorf("DisplayName = %q, want Full", got)
	}
	r2 := &EInfoReport{ShortName: "Short"}
	if got := r2.DisplayName(); got != "Short" {
		t.Errorf("DisplayName = %q, want Short", got)
	}
}

func TestLikesEncryptionApproximation(t *testing.T) {
	r := &EInfoReport{}
	if r.LikesEncryption() {
		t.Error("expected no service UUIDs to mean LikesEncryption() false")
	}
	r.Set |= FieldServiceUUIDs
	if !r.LikesEncryption() {
		t.Error("expected a service UUID to flip LikesEncryption() true")
	}
}
