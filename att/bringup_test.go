package att

import (
	"testing"
	"time"

	"github.com/gothel-btcore/btcore/smp"
)

// Run itself is exercised at the bt package layer, where a connected
// hci.Transport is available; only the pure decision helpers are unit
// tested here.

func TestComputeSecLevel(t *testing.T) {
	cases := []struct {
		name                                       string
		userSet                                    bool
		userSec                                    smp.SecLevel
		peerLikesEncryption, peerHasLEEnc, scCapable bool
		want                                       smp.SecLevel
	}{
		{"user override wins", true, smp.SecEncOnly, false, false, true, smp.SecEncOnly},
		{"peer likes encryption, sc capable", false, smp.SecNone, true, false, true, smp.SecEncAuthFIPS},
		{"peer likes encryption, not sc capable", false, smp.SecNone, true, false, false, smp.SecEncAuth},
		{"peer feature bit, sc capable", false, smp.SecNone, false, true, true, smp.SecEncAuthFIPS},
		{"no signal at all", false, smp.SecNone, false, false, true, smp.SecNone},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ComputeSecLevel(c.userSet, c.userSec, c.peerLikesEncryption, c.peerHasLEEnc, c.scCapable)
			if got != c.want {
				t.Errorf("ComputeSecLevel(%+v) = %v, want %v", c, got, c.want)
			}
		})
	}
}

func TestValidateServerSecurity(t *testing.T) {
	if err := ValidateServerSecurity(smp.SecEncAuth, smp.SecEncAuthFIPS); err != nil {
		t.Errorf("connection security above minimum should pass, got %v", err)
	}
	if err := ValidateServerSecurity(smp.SecEncAuth, smp.SecEncOnly); err == nil {
		t.Error("connection security below configured minimum should fail")
	}
	if err := ValidateServerSecurity(smp.SecNone, smp.SecNone); err != nil {
		t.Errorf("no minimum configured should always pass, got %v", err)
	}
}

func TestWaitFeatureComplete(t *testing.T) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	if fellBack := WaitFeatureComplete(ch); fellBack {
		t.Error("expected real event, not fallback")
	}

	empty := make(chan struct{})
	start := time.Now()
	if fellBack := WaitFeatureComplete(empty); !fellBack {
		t.Error("expected fallback when event never fires")
	}
	if elapsed := time.Since(start); elapsed < FeatureCompleteFallback {
		t.Errorf("returned after %v, want at least %v", elapsed, FeatureCompleteFallback)
	}
}
