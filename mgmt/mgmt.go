// Package mgmt implements the management event bus (spec component C4):
// ordered per-opcode subscriber lists delivering normalized MgmtEvents.
// Grounded on github.com/currantlabs/ble's handler.go, which establishes
// the "interface plus func-adapter" pattern (ReadHandlerFunc,
// NotifyHandlerFunc) this bus reuses for management events instead of ATT
// requests, and on that package's evth/subh dispatch maps in
// linux/hci/hci.go, generalized into a public, ordered registry.
package mgmt

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gothel-btcore/btcore/btaddr"
)

// Opcode identifies the kind of a MgmtEvent.
type Opcode int

// Normalized event opcodes (spec section 4.4's mapping table).
const (
	OpDeviceFound Opcode = iota
	OpDeviceConnected
	OpDeviceConnectFailed
	OpDeviceDisconnected
	OpDeviceUpdated
	OpDeviceReady
	OpLERemoteUserFeatures
	OpNewLongTermKey
	OpNewLinkKey
	OpHCILEEnableEnc
	OpHCILELTKRequest
	OpHCILELTKReplyAck
	OpHCIEncChanged
	OpHCIEncKeyRefreshComplete
	OpPasskeyNotify
	OpUserConfirmRequest
	OpUserPasskeyRequest
	OpAuthFailed
	OpDeviceUnpaired
	OpPairDeviceComplete
	OpNewSettings
	OpAdapterUpdated
)

// MgmtEvent is the normalized notification every HCI event, SMP PDU, or
// synthetic condition is translated into before it crosses to application
// or state-machine listeners (spec sections 4.4, 7).
type MgmtEvent struct {
	Op       Opcode
	AdapterID int
	Device   btaddr.AddressAndType
	Handle   uint16
	Status   uint8
	Data     interface{}
}

// SubscriptionID identifies a registered subscriber so it can later be
// removed; minted from google/uuid to keep tokens globally unique across
// adapters without a shared counter.
type SubscriptionID string

func newSubscriptionID() SubscriptionID {
	return SubscriptionID(uuid.NewString())
}

// Handler receives MgmtEvents for the opcodes it subscribed to.
type Handler interface {
	Handle(e MgmtEvent)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(e MgmtEvent)

// Handle calls f(e).
func (f HandlerFunc) Handle(e MgmtEvent) { f(e) }

type subscriber struct {
	id      SubscriptionID
	handler Handler
	// filter, if non-nil, restricts delivery to events about one device;
	// spec section 3's "(listener, optional device filter)" pair.
	filter *btaddr.AddressAndType
}

// Bus is an ordered, per-opcode subscriber registry. Subscribers for a
// given opcode are invoked in subscription order; per-device ordering is
// preserved because Publish is called synchronously from the adapter's
// single event-publication path (spec section 5 "Ordering guarantees").
type Bus struct {
	mu   sync.Mutex
	subs map[Opcode][]subscriber
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: map[Opcode][]subscriber{}}
}

// Subscribe registers h for op, optionally filtered to one device, and
// returns a token Unsubscribe accepts.
func (b *Bus) Subscribe(op Opcode, filter *btaddr.AddressAndType, h Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := newSubscriptionID()
	b.subs[op] = append(b.subs[op], subscriber{id: id, handler: h, filter: filter})
	return id
}

// Unsubscribe removes a previously registered subscriber by token.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for op, subs := range b.subs {
		out := subs[:0]
		for _, s := range subs {
			if s.id != id {
				out = append(out, s)
			}
		}
		b.subs[op] = out
	}
}

// RemoveDevice drops every subscriber filtered to dev; called when a
// Device is removed (spec section 3 "destroyed on remove() which also
// removes all listener entries filtered for it").
func (b *Bus) RemoveDevice(dev btaddr.AddressAndType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for op, subs := range b.subs {
		out := subs[:0]
		for _, s := range subs {
			if s.filter != nil && s.filter.Equal(dev) {
				continue
			}
			out = append(out, s)
		}
		b.subs[op] = out
	}
}

// Publish delivers e, in subscription order, to every subscriber for
// e.Op whose filter (if any) matches e.Device.
func (b *Bus) Publish(e MgmtEvent) {
	b.mu.Lock()
	subs := append([]subscriber(nil), b.subs[e.Op]...)
	b.mu.Unlock()
	for _, s := range subs {
		if s.filter != nil && !s.filter.Equal(e.Device) {
			continue
		}
		s.handler.Handle(e)
	}
}
