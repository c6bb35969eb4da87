package bt

import (
	"testing"

	"github.com/gothel-btcore/btcore/hci/evt"
	"github.com/gothel-btcore/btcore/mgmt"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	return NewAdapter(-1, testAdapterAddr(), "")
}

func TestDeviceForPromotesSharedToDiscovered(t *testing.T) {
	a := newTestAdapter(t)
	peer := testPeerAddr()
	shared := NewDevice(a, peer)
	a.shared[peer.Key()] = shared

	got := a.deviceFor(peer)
	if got != shared {
		t.Fatal("expected deviceFor to return the pre-existing shared Device")
	}
	if _, ok := a.discovered[peer.Key()]; !ok {
		t.Error("expected shared Device to be promoted into discovered")
	}

	again := a.deviceFor(peer)
	if again != shared {
		t.Error("expected second deviceFor call to return the same promoted Device")
	}
}

func TestDeviceForReturnsConnectedOverFresh(t *testing.T) {
	a := newTestAdapter(t)
	peer := testPeerAddr()
	connected := NewDevice(a, peer)
	a.connected[peer.Key()] = connected

	got := a.deviceFor(peer)
	if got != connected {
		t.Fatal("expected deviceFor to prefer the connected registry")
	}
}

func TestDeviceForConstructsFreshWhenUnknown(t *testing.T) {
	a := newTestAdapter(t)
	peer := testPeerAddr()
	d := a.deviceFor(peer)
	if d == nil || d.Addr != peer {
		t.Fatalf("expected a fresh Device for %v", peer)
	}
	if _, ok := a.discovered[peer.Key()]; !ok {
		t.Error("expected fresh Device to be registered under discovered")
	}
}

func TestOnDeviceFoundMergesAdvertisingData(t *testing.T) {
	a := newTestAdapter(t)
	peer := testPeerAddr()
	e := mgmt.MgmtEvent{
		Op:     mgmt.OpDeviceFound,
		Device: peer,
		Data: evt.Report{
			EventType: 0x00,
			Data:      []byte{4, adCompleteName, 'x', 'y', 'z'},
			RSSI:      -60,
		},
	}
	a.onDeviceFound(e)

	d := a.deviceFor(peer)
	if d.Name() != "xyz" {
		t.Errorf("Name() = %q, want xyz", d.Name())
	}
}

func TestOnDeviceFoundIgnoresWrongDataType(t *testing.T) {
	a := newTestAdapter(t)
	peer := testPeerAddr()
	e := mgmt.MgmtEvent{Op: mgmt.OpDeviceFound, Device: peer, Data: "not a report"}
	// Must not panic on a type assertion mismatch.
	a.onDeviceFound(e)
}

func TestPauseDiscoveryIsNoopWhenNotDiscovering(t *testing.T) {
	a := newTestAdapter(t)
	peer := testPeerAddr()
	a.pauseDiscoveryFor(peer)
	if len(a.pausingDiscovery) != 0 {
		t.Error("expected no pause bookkeeping while discovery was never started")
	}
	// Must not touch the (unopened) transport.
	a.resumePausedDiscoveryIfReady()
}

func TestSetDiscoveryPolicyUpdatesField(t *testing.T) {
	a := newTestAdapter(t)
	a.SetDiscoveryPolicy(AlwaysOn)
	a.mtxDiscovery.Lock()
	p := a.policy
	a.mtxDiscovery.Unlock()
	if p != AlwaysOn {
		t.Errorf("policy = %v, want AlwaysOn", p)
	}
}
