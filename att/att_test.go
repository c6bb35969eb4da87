package att

import "testing"

func TestExchangeMTURoundTrip(t *testing.T) {
	req := MarshalExchangeMTURequest(185)
	if Opcode(req[0]) != OpExchangeMTURequest {
		t.Fatalf("opcode = %#x, want %#x", req[0], OpExchangeMTURequest)
	}
	m, err := NewExchangeMTU(req[1:])
	if err != nil {
		t.Fatalf("NewExchangeMTU: %v", err)
	}
	if m.MTU() != 185 {
		t.Errorf("MTU = %d, want 185", m.MTU())
	}
}

func TestNegotiatedMTU(t *testing.T) {
	cases := []struct{ c, s, want uint16 }{
		{23, 23, 23},
		{185, 64, 64},
		{10, 10, DefaultMTU},
	}
	for _, c := range cases {
		if got := NegotiatedMTU(c.c, c.s); got != c.want {
			t.Errorf("NegotiatedMTU(%d,%d) = %d, want %d", c.c, c.s, got, c.want)
		}
	}
}

func TestErrorResponseRoundTrip(t *testing.T) {
	b := []byte{0x02, 0x34, 0x12, 0x0A}
	r, err := NewErrorResponse(b)
	if err != nil {
		t.Fatalf("NewErrorResponse: %v", err)
	}
	if r.RequestOpcodeInError() != 0x02 {
		t.Errorf("RequestOpcodeInError = %#x", r.RequestOpcodeInError())
	}
	if r.AttributeInError() != 0x1234 {
		t.Errorf("AttributeInError = %#x", r.AttributeInError())
	}
	if r.ErrorCode() != 0x0A {
		t.Errorf("ErrorCode = %#x", r.ErrorCode())
	}
}
