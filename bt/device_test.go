package bt

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/bterr"
	"github.com/gothel-btcore/btcore/keystore"
	"github.com/gothel-btcore/btcore/smp"
)

func testAdapterAddr() btaddr.AddressAndType {
	return btaddr.New(net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, btaddr.LEPublic)
}

func testPeerAddr() btaddr.AddressAndType {
	return btaddr.New(net.HardwareAddr{0xC0, 0x26, 0xDA, 0x01, 0xDA, 0xB1}, btaddr.LERandom)
}

func newTestAdapterAndDevice(t *testing.T) (*Adapter, *Device) {
	t.Helper()
	a := &Adapter{Addr: testAdapterAddr()}
	d := NewDevice(a, testPeerAddr())
	return a, d
}

func TestDeviceUpdateAdvertisementMergesIntoSingleEIR(t *testing.T) {
	_, d := newTestAdapterAndDevice(t)
	adInd := ParseEIR([]byte{4, adCompleteName, 'a', 'b', 'c'}, -50, SourceADInd)
	scanRsp := ParseEIR([]byte{2, adTxPower, 0x04}, -48, SourceADScanRsp)

	d.UpdateAdvertisement(adInd)
	d.UpdateAdvertisement(scanRsp)

	eir := d.EIR()
	if eir.Name != "abc" {
		t.Errorf("Name = %q, want abc", eir.Name)
	}
	if eir.TxPower != 4 {
		t.Errorf("TxPower = %d, want 4", eir.TxPower)
	}
	if d.Name() != "abc" {
		t.Errorf("Name() = %q, want abc", d.Name())
	}
}

func TestDeviceIsConnectedRequiresHandleAndFlag(t *testing.T) {
	_, d := newTestAdapterAndDevice(t)
	if d.IsConnected() {
		t.Fatal("new device must not report connected")
	}
	d.onConnected(0x0040, RoleMaster)
	if !d.IsConnected() {
		t.Fatal("expected IsConnected true after onConnected")
	}
	if d.Handle() != 0x0040 {
		t.Errorf("Handle() = %#x, want 0x0040", d.Handle())
	}
	d.notifyDisconnected()
	if d.IsConnected() || d.Handle() != 0 {
		t.Error("expected disconnected state to clear handle and flag")
	}
}

func TestDeviceDisconnectIsReentrantSafe(t *testing.T) {
	_, d := newTestAdapterAndDevice(t)
	d.onConnected(0x0041, RoleMaster)
	d.allowDisconnect = 1

	// No transport is wired, so the first caller's win of the CAS is taken
	// directly; the second caller then goes through disconnect itself,
	// which must return before touching the (nil) transport.
	first := atomic.CompareAndSwapInt32(&d.allowDisconnect, 1, 0)
	second := d.disconnect(nil, 0x13)
	if !first {
		t.Fatal("expected the first caller to win the allowDisconnect CAS")
	}
	if second != bterr.StatusConnTermByLocalHost {
		t.Fatalf("second disconnect = %v, want no-op %v", second, bterr.StatusConnTermByLocalHost)
	}
}

func TestDeviceKeySourceReflectsPairingState(t *testing.T) {
	_, d := newTestAdapterAndDevice(t)
	d.Pairing.SecLevelConn = smp.SecEncAuth
	d.Pairing.IOCapConn = smp.IODisplayYesNo
	d.Pairing.State = smp.StateCompleted
	d.Pairing.Mode = smp.ModeNumericCompareInitiator
	d.Pairing.Responder.LTK = [16]byte{0xAA}
	d.Pairing.Responder.EncSize = 16
	d.Pairing.Responder.LTKSet = true
	d.Pairing.Responder.ReceivedKeys = smp.KeyEnc

	if d.ConnSecurityLevel() != smp.SecEncAuth {
		t.Errorf("ConnSecurityLevel = %v", d.ConnSecurityLevel())
	}
	if d.AvailableKeys(true)&keystore.KeyEnc == 0 {
		t.Error("expected responder LTK to be reported available")
	}
	ltk := d.LongTermKeyOf(true)
	if ltk.LTK != d.Pairing.Responder.LTK || ltk.EncSize != 16 {
		t.Errorf("LongTermKeyOf mismatch: %+v", ltk)
	}
}

func TestAwaitPairingTerminalReturnsOnCompleted(t *testing.T) {
	_, d := newTestAdapterAndDevice(t)
	d.Pairing.State = smp.StateCompleted
	state, err := d.awaitPairingTerminal(50 * time.Millisecond)
	if err != nil || state != smp.StateCompleted {
		t.Fatalf("state=%v err=%v, want StateCompleted/nil", state, err)
	}
}

func TestAwaitPairingTerminalTimesOut(t *testing.T) {
	_, d := newTestAdapterAndDevice(t)
	d.Pairing.State = smp.StateFeatureExchangeStarted
	_, err := d.awaitPairingTerminal(20 * time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error for a pairing stuck mid-negotiation")
	}
}

func TestAwaitDisconnectedReturnsImmediatelyWhenAlreadyDown(t *testing.T) {
	_, d := newTestAdapterAndDevice(t)
	start := time.Now()
	d.awaitDisconnected(200 * time.Millisecond)
	if time.Since(start) > 100*time.Millisecond {
		t.Error("expected an already-disconnected device not to block on awaitDisconnected")
	}
}

func TestSetSMPKeyBinRefusesAddressMismatch(t *testing.T) {
	_, d := newTestAdapterAndDevice(t)
	wrongLocal := btaddr.New(net.HardwareAddr{9, 9, 9, 9, 9, 9}, btaddr.LEPublic)
	bin := keystore.New(wrongLocal, d.Addr, smp.SecEncOnly, smp.IONoInputNoOutput)
	if err := d.setSMPKeyBin(bin); err == nil {
		t.Fatal("expected address mismatch error")
	}
}

func TestSetSMPKeyBinAppliesLTK(t *testing.T) {
	_, d := newTestAdapterAndDevice(t)
	a := &Adapter{Addr: testAdapterAddr()}
	d.Adapter = a
	bin := keystore.New(a.Addr, d.Addr, smp.SecEncOnly, smp.IONoInputNoOutput)
	bin.SetLTKResp(keystore.LongTermKey{Properties: 1, EncSize: 16, LTK: [16]byte{0x55}})

	if err := d.setSMPKeyBin(bin); err != nil {
		t.Fatalf("setSMPKeyBin: %v", err)
	}
	if !d.Pairing.Responder.LTKSet || d.Pairing.Responder.LTK != [16]byte{0x55} {
		t.Errorf("responder LTK not applied: %+v", d.Pairing.Responder)
	}
}
