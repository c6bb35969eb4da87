package hci

import (
	"sync"

	"github.com/gothel-btcore/btcore/btaddr"
)

// HCIConnection is the transport-local tracker entry of spec section 3:
// a zero handle means "connect command issued, awaiting completion."
type HCIConnection struct {
	Addr   btaddr.AddressAndType
	Handle uint16
}

// ConnTracker implements spec section 4.3's connectionList and
// disconnectCmdList, generalized per SPEC_FULL's supplemented-feature
// note so disconnect-in-flight entries are matched by address/type even
// before a handle exists (grounded on direct_bt's HCIHandler.cpp
// disconnectCmdList address scan).
type ConnTracker struct {
	mu              sync.Mutex
	byHandle        map[uint16]*HCIConnection
	disconnectingAt map[btaddr.Key]bool
}

func newConnTracker() *ConnTracker {
	return &ConnTracker{
		byHandle:        map[uint16]*HCIConnection{},
		disconnectingAt: map[btaddr.Key]bool{},
	}
}

// Add registers a new tracked connection; handle 0 is a valid placeholder
// for "connect command issued, awaiting completion" (spec section 3).
func (t *ConnTracker) Add(addr btaddr.AddressAndType, handle uint16) *HCIConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &HCIConnection{Addr: addr, Handle: handle}
	t.byHandle[handle] = c
	return c
}

// UpdateHandle assigns the real handle once CONN_COMPLETE arrives,
// replacing a zero-handle placeholder for addr. Non-zero handles must
// never be silently overwritten (spec section 4.3); ok=false and a
// warning is the caller's responsibility in that case.
func (t *ConnTracker) UpdateHandle(addr btaddr.AddressAndType, handle uint16) (ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if placeholder, found := t.byHandle[0]; found && placeholder.Addr.Equal(addr) {
		delete(t.byHandle, 0)
		placeholder.Handle = handle
		t.byHandle[handle] = placeholder
		return true
	}
	if _, exists := t.byHandle[handle]; exists {
		return false
	}
	t.byHandle[handle] = &HCIConnection{Addr: addr, Handle: handle}
	return true
}

// Remove drops the tracked connection for handle.
func (t *ConnTracker) Remove(handle uint16) (*HCIConnection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byHandle[handle]
	delete(t.byHandle, handle)
	return c, ok
}

func (t *ConnTracker) ByHandle(handle uint16) (*HCIConnection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.byHandle[handle]
	return c, ok
}

// MarkDisconnecting records addr in disconnectCmdList.
func (t *ConnTracker) MarkDisconnecting(addr btaddr.AddressAndType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnectingAt[addr.Key()] = true
}

// ClearDisconnecting removes addr from disconnectCmdList (on
// DISCONN_COMPLETE).
func (t *ConnTracker) ClearDisconnecting(addr btaddr.AddressAndType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.disconnectingAt, addr.Key())
}

// IsDisconnecting reports whether addr has a disconnect-in-flight.
func (t *ConnTracker) IsDisconnecting(addr btaddr.AddressAndType) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnectingAt[addr.Key()]
}

// HasPendingConnect reports whether a zero-handle placeholder is tracked,
// i.e. a LE_CREATE_CONN is outstanding (spec section 4.3's poll gate).
func (t *ConnTracker) HasPendingConnect() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byHandle[0]
	return ok
}

// All returns a snapshot of every tracked connection, used when the
// reader loop exits and every live connection must be synthetically
// torn down.
func (t *ConnTracker) All() []*HCIConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*HCIConnection, 0, len(t.byHandle))
	for _, c := range t.byHandle {
		out = append(out, c)
	}
	return out
}
