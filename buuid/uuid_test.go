package buuid

import "testing"

func TestUUID16RoundTripThroughBase(t *testing.T) {
	x := uint16(0x1800)
	u := UUID16(x)
	p := u.Promote(BaseUUID, DefaultInsertOctet)
	got, ok := p.ToUUID16(BaseUUID, DefaultInsertOctet)
	if !ok {
		t.Fatalf("ToUUID16: not ok")
	}
	if got != x {
		t.Fatalf("got %04X, want %04X", got, x)
	}
}

func TestParseDashedAndShort(t *testing.T) {
	short, err := Parse("1800")
	if err != nil {
		t.Fatalf("Parse short: %v", err)
	}
	if short.Width() != Width16 {
		t.Fatalf("width = %v", short.Width())
	}
	long, err := Parse("34DA3AD1-7110-41A1-B1EF-4430F509CDE7")
	if err != nil {
		t.Fatalf("Parse long: %v", err)
	}
	if long.Width() != Width128 {
		t.Fatalf("width = %v", long.Width())
	}
}

func TestEqualRequiresMatchingWidth(t *testing.T) {
	a := UUID16(0x1800)
	b := a.Promote(BaseUUID, DefaultInsertOctet)
	if a.Equal(b) {
		t.Fatalf("Equal should require matching width")
	}
	if !a.Equivalent(b, BaseUUID, DefaultInsertOctet) {
		t.Fatalf("Equivalent should match across widths")
	}
}

func TestName(t *testing.T) {
	if Name(UUID16(0x180F)) != "Battery Service" {
		t.Fatalf("unexpected name: %q", Name(UUID16(0x180F)))
	}
}
