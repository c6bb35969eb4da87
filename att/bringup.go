package att

import (
	"time"

	"github.com/gothel-btcore/btcore/bterr"
	"github.com/gothel-btcore/btcore/btlog"
	"github.com/gothel-btcore/btcore/hci"
	"github.com/gothel-btcore/btcore/smp"
	"github.com/pkg/errors"
)

var log = btlog.Get("att")

// Ready-delay constants (spec section 4.10): real peripherals need
// settling time between link-layer encryption-on and the first ATT
// discovery request.
const (
	ReadyDelayPrePaired  = 100 * time.Millisecond
	ReadyDelayFreshlyPaired = 150 * time.Millisecond
)

// FeatureCompleteFallback is how long WaitFeatureComplete waits for
// LE_REMOTE_FEAT_COMPLETE before reporting a fallback. The bt adapter
// does not call WaitFeatureComplete: it starts bring-up as soon as
// DEVICE_CONNECTED arrives.
const FeatureCompleteFallback = 300 * time.Millisecond

// WaitFeatureComplete blocks until featCh fires or FeatureCompleteFallback
// elapses, returning true if the fallback fired instead of the real
// event.
func WaitFeatureComplete(featCh <-chan struct{}) (fellBack bool) {
	select {
	case <-featCh:
		return false
	case <-time.After(FeatureCompleteFallback):
		return true
	}
}

// GATTBootstrap is the hook into GATT-client service discovery, kept as
// an interface only: its implementation is out of this module's scope
// per the spec's non-goals, but bring-up still needs somewhere to hand
// off to it once the link is ready.
type GATTBootstrap interface {
	Discover(handle uint16) error
}

// Result summarizes a completed bring-up for the caller to fold into its
// own Device/MgmtEvent bookkeeping.
type Result struct {
	SecLevel smp.SecLevel
	MTU      uint16
}

// ComputeSecLevel implements spec section 4.9 step 1: user-requested
// wins; otherwise default to ENC_AUTH (or ENC_AUTH_FIPS if the adapter is
// SC-capable) when the peer signals it likes encryption or advertises the
// LE_Encryption feature bit; otherwise NONE.
func ComputeSecLevel(userSet bool, userSec smp.SecLevel, peerLikesEncryption, peerHasLEEncryption, adapterSCCapable bool) smp.SecLevel {
	if userSet {
		return userSec
	}
	if peerLikesEncryption || peerHasLEEncryption {
		if adapterSCCapable {
			return smp.SecEncAuthFIPS
		}
		return smp.SecEncAuth
	}
	return smp.SecNone
}

// Run drives spec section 4.9 steps 2-5 for one connection handle:
// opening the ATT channel, provoking SMP when sec-level demands it,
// waiting for pairing, sleeping the ready delay, exchanging MTU, and
// finally handing off to gatt.
//
// triggerSMP starts (or re-confirms) pairing and is only called when
// secLevel > NONE; awaitSMP blocks for at most timeout for the pairing
// state machine to reach a terminal state.
func Run(t *hci.Transport, handle uint16, secLevel smp.SecLevel, prePaired bool,
	triggerSMP func() error, awaitSMP func(timeout time.Duration) (smp.State, error),
	timeout time.Duration, gatt GATTBootstrap) (Result, error) {

	mtuCh := make(chan uint16, 1)
	t.RegisterATT(handle, func(_ uint16, pdu []byte) {
		if len(pdu) < 1 {
			return
		}
		if Opcode(pdu[0]) == OpExchangeMTUResponse {
			if m, err := NewExchangeMTU(pdu[1:]); err == nil {
				select {
				case mtuCh <- m.MTU():
				default:
				}
			}
		}
	})
	defer t.UnregisterATT(handle)

	if secLevel > smp.SecNone {
		if triggerSMP != nil {
			if err := triggerSMP(); err != nil {
				return Result{}, errors.Wrap(err, "att: trigger smp")
			}
		}
		state, err := awaitSMP(timeout)
		if err != nil {
			return Result{}, err
		}
		if state != smp.StateCompleted {
			return Result{}, bterr.StatusAuthFailed
		}
	}

	delay := ReadyDelayFreshlyPaired
	if prePaired {
		delay = ReadyDelayPrePaired
	}
	time.Sleep(delay)

	if err := t.WriteATT(handle, MarshalExchangeMTURequest(DefaultMTU)); err != nil {
		return Result{}, errors.Wrap(err, "att: write exchange mtu request")
	}
	mtu := uint16(DefaultMTU)
	select {
	case peerMTU := <-mtuCh:
		mtu = NegotiatedMTU(DefaultMTU, peerMTU)
	case <-time.After(timeout):
		log.Warning("att: no MTU response, proceeding at default MTU")
	}

	if gatt != nil {
		if err := gatt.Discover(handle); err != nil {
			return Result{}, errors.Wrap(err, "att: gatt discover")
		}
	}
	return Result{SecLevel: secLevel, MTU: mtu}, nil
}

// ValidateServerSecurity implements spec section 4.9's post-ready
// validation for the server (peripheral) role: the negotiated connection
// security must meet or exceed whatever the local user configured.
func ValidateServerSecurity(userSec, connSec smp.SecLevel) error {
	if userSec >= smp.SecEncOnly && connSec < userSec {
		return errors.New("att: connection security below configured minimum")
	}
	return nil
}
