package hci

import (
	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/bterr"
	"github.com/gothel-btcore/btcore/hci/evt"
	"github.com/gothel-btcore/btcore/mgmt"
)

// onCommandComplete delivers a CMD_COMPLETE reply to its waiter, or queues
// it on the ring if nobody is waiting yet (spec section 4.3's
// command/reply correlation handles arrival in either order).
func (t *Transport) onCommandComplete(b []byte) error {
	e, err := evt.NewCommandComplete(b)
	if err != nil {
		return err
	}
	opcode := e.CommandOpcode()
	reply := cmdReply{status: statusOf(e.ReturnParameters()), payload: e.ReturnParameters()}
	t.deliverOrQueue(opcode, reply, false)
	return nil
}

// onCommandStatus delivers a CMD_STATUS reply. A non-success status here
// means the command will never get a CMD_COMPLETE; it completes the
// waiter directly.
func (t *Transport) onCommandStatus(b []byte) error {
	e, err := evt.NewCommandStatus(b)
	if err != nil {
		return err
	}
	opcode := e.CommandOpcode()
	reply := cmdReply{status: e.Status()}
	t.deliverOrQueue(opcode, reply, true)
	return nil
}

// statusOf recovers the status octet conventionally present as the first
// return-parameter byte of nearly every HCI command; commands with no
// status byte (none of the ones this transport issues) would misreport
// success here, which is acceptable since none are registered.
func statusOf(rp []byte) uint8 {
	if len(rp) == 0 {
		return 0x00
	}
	return rp[0]
}

func (t *Transport) deliverOrQueue(opcode uint16, reply cmdReply, statusOnly bool) {
	t.pendingMu.Lock()
	p, ok := t.pending[opcode]
	t.pendingMu.Unlock()
	if ok {
		select {
		case p.done <- reply:
			return
		default:
		}
	}
	dropped := t.ring.Push(EvtRingEntry{Opcode: opcode, Status: reply.status, IsStatus: statusOnly, Payload: reply.payload})
	if dropped > 0 {
		log.Warningf("hci: event ring overflow, dropped %d oldest entries", dropped)
	}
}

// onDisconnectionComplete tears down the tracked connection and publishes
// exactly one DeviceDisconnected MgmtEvent (spec section 7's "exactly one
// deviceDisconnected" guarantee), whatever the status.
func (t *Transport) onDisconnectionComplete(b []byte) error {
	e, err := evt.NewDisconnectionComplete(b)
	if err != nil {
		return err
	}
	handle := e.ConnectionHandle()
	c, ok := t.conns.Remove(handle)
	t.smpMu.Lock()
	delete(t.smpHnd, handle)
	t.smpMu.Unlock()
	t.attMu.Lock()
	delete(t.attHnd, handle)
	t.attMu.Unlock()
	if !ok {
		return nil
	}
	t.conns.ClearDisconnecting(c.Addr)
	if t.onDisconnect != nil {
		t.onDisconnect(handle, c.Addr, e.Reason())
	}
	if t.bus != nil {
		t.bus.Publish(mgmt.MgmtEvent{Op: mgmt.OpDeviceDisconnected, AdapterID: t.devID, Device: c.Addr, Handle: handle, Status: e.Reason()})
	}
	return nil
}

// onLEMeta dispatches the LE meta-event subcodes the socket filter admits.
func (t *Transport) onLEMeta(b []byte) error {
	if len(b) < 1 {
		return nil
	}
	sub, params := b[0], b[1:]
	switch sub {
	case SubEvtLEConnectionComplete:
		return t.onLEConnectionComplete(params)
	case SubEvtLEAdvertisingReport:
		return t.onLEAdvertisingReport(params)
	case SubEvtLEReadRemoteFeaturesComplete:
		return t.onLEReadRemoteFeaturesComplete(params)
	case SubEvtLELongTermKeyRequest:
		return t.onLELongTermKeyRequest(params)
	default:
		return nil
	}
}

func (t *Transport) onLEConnectionComplete(b []byte) error {
	e, err := evt.NewLEConnectionComplete(b)
	if err != nil {
		return err
	}
	raw := e.PeerAddress()
	addr := btaddr.New(reverseOctets(raw[:]), addrTypeOf(e.PeerAddressType()))
	if e.Status() != 0x00 {
		t.conns.Remove(0)
		if t.bus != nil {
			t.bus.Publish(mgmt.MgmtEvent{Op: mgmt.OpDeviceConnectFailed, AdapterID: t.devID, Device: addr, Status: e.Status()})
		}
		return nil
	}
	handle := e.ConnectionHandle()
	if !t.conns.UpdateHandle(addr, handle) {
		log.Warningf("hci: connection handle 0x%04X already tracked, ignoring duplicate CONN_COMPLETE", handle)
	}
	if t.bus != nil {
		t.bus.Publish(mgmt.MgmtEvent{Op: mgmt.OpDeviceConnected, AdapterID: t.devID, Device: addr, Handle: handle})
	}
	return nil
}

func (t *Transport) onLEAdvertisingReport(b []byte) error {
	e, err := evt.NewLEAdvertisingReport(b)
	if err != nil {
		return err
	}
	reports, err := e.Reports()
	if err != nil {
		return err
	}
	for _, r := range reports {
		addr := btaddr.New(reverseOctets(r.Address[:]), addrTypeOf(r.AddressType))
		if t.bus != nil {
			t.bus.Publish(mgmt.MgmtEvent{Op: mgmt.OpDeviceFound, AdapterID: t.devID, Device: addr, Data: r})
		}
	}
	return nil
}

func (t *Transport) onLEReadRemoteFeaturesComplete(b []byte) error {
	e, err := evt.NewLEReadRemoteFeaturesComplete(b)
	if err != nil {
		return err
	}
	if e.Status() != 0x00 {
		return nil
	}
	c, ok := t.conns.ByHandle(e.ConnectionHandle())
	if !ok {
		return nil
	}
	if t.bus != nil {
		t.bus.Publish(mgmt.MgmtEvent{Op: mgmt.OpLERemoteUserFeatures, AdapterID: t.devID, Device: c.Addr, Handle: e.ConnectionHandle(), Data: e.LEFeatures()})
	}
	return nil
}

func (t *Transport) onLELongTermKeyRequest(b []byte) error {
	e, err := evt.NewLELongTermKeyRequest(b)
	if err != nil {
		return err
	}
	c, ok := t.conns.ByHandle(e.ConnectionHandle())
	if !ok {
		return nil
	}
	if t.bus != nil {
		t.bus.Publish(mgmt.MgmtEvent{Op: mgmt.OpHCILELTKRequest, AdapterID: t.devID, Device: c.Addr, Handle: e.ConnectionHandle(), Data: e.EncryptedDiversifier()})
	}
	return nil
}

// synthesizeDisconnectsOnClose is called once the reader loop exits,
// whether from an explicit Close or an unexpected socket error, and
// publishes a DeviceDisconnected for every connection still tracked so
// that no listener is left waiting forever (spec section 4.3 "Synthetic
// disconnect").
func (t *Transport) synthesizeDisconnectsOnClose() {
	for _, c := range t.conns.All() {
		t.smpMu.Lock()
		delete(t.smpHnd, c.Handle)
		t.smpMu.Unlock()
		t.attMu.Lock()
		delete(t.attHnd, c.Handle)
		t.attMu.Unlock()
		if t.onDisconnect != nil {
			t.onDisconnect(c.Handle, c.Addr, uint8(bterr.StatusDisconnected))
		}
		if t.bus != nil {
			t.bus.Publish(mgmt.MgmtEvent{Op: mgmt.OpDeviceDisconnected, AdapterID: t.devID, Device: c.Addr, Handle: c.Handle, Status: uint8(bterr.StatusDisconnected)})
		}
		t.conns.Remove(c.Handle)
	}
}

// addrTypeOf maps the wire LE address type to btaddr.Type; RESOLVABLE and
// other random sub-kinds all arrive as AddrLERandom on the wire and are
// distinguished afterward by btaddr.DeriveRandomSubType.
func addrTypeOf(wire uint8) btaddr.Type {
	if wire == AddrLEPublic {
		return btaddr.LEPublic
	}
	return btaddr.LERandom
}

// reverseOctets returns a copy of b in reverse order; HCI carries device
// addresses least-significant-octet first, net.HardwareAddr and every
// display path in this module expect most-significant-octet first.
func reverseOctets(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
