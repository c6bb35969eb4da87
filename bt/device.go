package bt

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gothel-btcore/btcore/att"
	"github.com/gothel-btcore/btcore/bterr"
	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/hci"
	"github.com/gothel-btcore/btcore/hci/cmd"
	"github.com/gothel-btcore/btcore/keystore"
	"github.com/gothel-btcore/btcore/smp"
	"github.com/pkg/errors"
)

// Role mirrors the HCI link-layer role byte (spec section 3 "role of
// remote device equals the logical inverse of adapter's role").
type Role uint8

const (
	RoleMaster Role = 0x00
	RoleSlave  Role = 0x01
)

// ConnectParams carries connectLE's native-HCI-unit parameters (spec
// section 4.6).
type ConnectParams struct {
	OwnAddressType        uint8
	ScanInterval          uint16
	ScanWindow            uint16
	ConnIntervalMin       uint16
	ConnIntervalMax       uint16
	ConnLatency           uint16
	SupervisionTimeoutX10 uint16 // native 10ms units
}

// DefaultConnectParams returns the connection parameters most peripherals
// accept: 30-50ms interval, no latency, 4s supervision timeout.
func DefaultConnectParams() ConnectParams {
	return ConnectParams{
		ScanInterval:          0x0060,
		ScanWindow:            0x0030,
		ConnIntervalMin:       0x0018,
		ConnIntervalMax:       0x0028,
		ConnLatency:           0,
		SupervisionTimeoutX10: 400,
	}
}

// Device is the per-remote-device state record of spec section 3.
type Device struct {
	Adapter   *Adapter
	Addr      btaddr.AddressAndType // identity, immutable
	CreatedAt time.Time

	mu          sync.Mutex
	visibleAddr btaddr.AddressAndType
	role        Role
	handle      uint16
	rssi        int8
	txPower     int8
	eir         *EInfoReport
	eirADInd    *EInfoReport
	eirScanRsp  *EInfoReport
	leFeatures  uint64
	suprTimeout uint16
	isConnected bool

	allowDisconnect int32 // CAS flag, spec section 4.6 "re-entrant-safe disconnect"

	Pairing *smp.PairingData
	SMP     *smp.Handler
}

// NewDevice returns a freshly tracked Device for addr, owned by a (shared
// or discovered) registry on adapter.
func NewDevice(adapter *Adapter, addr btaddr.AddressAndType) *Device {
	return &Device{
		Adapter:     adapter,
		Addr:        addr,
		visibleAddr: addr,
		CreatedAt:   time.Now(),
		eir:         &EInfoReport{},
		Pairing:     smp.NewPairingData(),
	}
}

// UpdateAdvertisement merges a freshly parsed EInfoReport into the
// device's tracked state (spec section 3's EInfoReport "merge semantics").
func (d *Device) UpdateAdvertisement(r *EInfoReport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r.Source == SourceADScanRsp {
		d.eirScanRsp = r
	} else {
		d.eirADInd = r
	}
	d.eir.Merge(r)
	d.rssi = r.RSSI
}

// EIR returns a copy of the currently merged advertisement data.
func (d *Device) EIR() EInfoReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.eir
}

// Name returns the device's best-known display name.
func (d *Device) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eir.DisplayName()
}

// IsConnected reports the adapter-connectedDevices membership invariant
// of spec section 3: connectionHandle != 0 and isConnected.
func (d *Device) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isConnected && d.handle != 0
}

// Handle returns the current connection handle, or 0 if none.
func (d *Device) Handle() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle
}

// VisibleAddress returns the address currently used on the wire, which may
// differ from Addr once a resolvable-private address is promoted to its
// resolved identity post-SMP.
func (d *Device) VisibleAddress() btaddr.AddressAndType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visibleAddr
}

// PromoteIdentity records the identity address SMP resolved for a
// RESOLVABLE_PRIVATE peer (spec section 3 "visibleAddressAndType may
// differ when resolvable-private is promoted to identity post-SMP").
func (d *Device) PromoteIdentity(identity btaddr.AddressAndType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visibleAddr = identity
}

// connectLE implements spec section 4.6: derive the peer's HCI address
// type (RESOLVABLE_PRIVATE already maps to RANDOM via
// AddressAndType.HCIAddrType), register the zero-handle placeholder so
// the transport's CONN_COMPLETE handler can promote it, and issue
// LE_CREATE_CONN. The adapter's single-concurrent-connect lock must
// already be held by the caller (Adapter.Connect serializes this per
// spec section 5's mtx_connect ordering).
func (d *Device) connectLE(t *hci.Transport, p ConnectParams) error {
	d.mu.Lock()
	if d.isConnected {
		d.mu.Unlock()
		return bterr.ErrAlreadyConnected
	}
	d.mu.Unlock()

	t.Conns().Add(d.Addr, 0)

	var peerAddr [6]byte
	copy(peerAddr[:], reverseBytes(d.Addr.Address))

	c := &cmd.LECreateConnection{
		LEScanInterval:        p.ScanInterval,
		LEScanWindow:          p.ScanWindow,
		InitiatorFilterPolicy: 0x00,
		PeerAddressType:       d.Addr.HCIAddrType(),
		PeerAddress:           peerAddr,
		OwnAddressType:        p.OwnAddressType,
		ConnIntervalMin:       p.ConnIntervalMin,
		ConnIntervalMax:       p.ConnIntervalMax,
		ConnLatency:           p.ConnLatency,
		SupervisionTimeout:    p.SupervisionTimeoutX10,
		MinimumCELength:       0,
		MaximumCELength:       0,
	}
	if err := t.Send(c, nil); err != nil {
		t.Conns().Remove(0)
		if st, ok := err.(bterr.Status); ok {
			// Soft failures stay untyped-unwrapped: the spec section 4.3
			// poll-and-retry scheduler in Adapter.Connect owns retrying,
			// not connectLE itself.
			return st
		}
		return errors.Wrap(err, "bt: le create connection")
	}

	atomic.StoreInt32(&d.allowDisconnect, 1)
	d.mu.Lock()
	d.suprTimeout = p.SupervisionTimeoutX10
	d.mu.Unlock()
	return nil
}

// onConnected applies a DEVICE_CONNECTED MgmtEvent: records the handle and
// role, and marks the device connected (spec section 4.4 mapping table).
func (d *Device) onConnected(handle uint16, localRole Role) {
	d.mu.Lock()
	d.handle = handle
	d.isConnected = true
	// Remote role is the logical inverse of the adapter's role at connect
	// time (spec section 3's role invariant).
	if localRole == RoleMaster {
		d.role = RoleSlave
	} else {
		d.role = RoleMaster
	}
	d.mu.Unlock()
}

// onLEFeatures applies an LE_REMOTE_USER_FEATURES MgmtEvent.
func (d *Device) onLEFeatures(features uint64) {
	d.mu.Lock()
	d.leFeatures = features
	d.mu.Unlock()
}

// hasLEEncryptionFeature reports the LE_Encryption feature bit (bit 0 of
// page 0) used by att.ComputeSecLevel's peerHasLEEncryption input.
func (d *Device) hasLEEncryptionFeature() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leFeatures&0x01 != 0
}

// disconnect implements spec section 4.6's re-entrant-safe teardown: a CAS
// on allowDisconnect decides which caller issues the actual HCI disconnect
// command, every other caller is a no-op.
func (d *Device) disconnect(t *hci.Transport, reason uint8) error {
	if !atomic.CompareAndSwapInt32(&d.allowDisconnect, 1, 0) {
		return bterr.StatusConnTermByLocalHost
	}
	handle := d.Handle()
	if handle == 0 {
		return nil
	}
	t.Conns().MarkDisconnecting(d.Addr)
	return t.Send(&cmd.Disconnect{ConnectionHandle: handle, Reason: reason}, nil)
}

// notifyDisconnected implements spec section 3's notifyDisconnected:
// clears the handle, marks not-connected, and fails any in-progress
// pairing implicitly (spec section 5 "disconnect() during pairing cancels
// the pairing implicitly").
func (d *Device) notifyDisconnected() {
	d.mu.Lock()
	d.handle = 0
	d.isConnected = false
	d.mu.Unlock()
	atomic.StoreInt32(&d.allowDisconnect, 0)
	if s := d.Pairing.StateSnapshot(); s != smp.StateCompleted && s != smp.StateNone {
		d.Pairing.Fail()
	}
}

// awaitPairingTerminal blocks until the pairing state machine reaches
// COMPLETED or FAILED, or timeout elapses (spec section 4.6 step 5's
// "wait on a per-device condition variable... within the complete-reply
// timeout"; implemented here as a poll since PairingData exposes its
// progress counter rather than a condition variable directly).
func (d *Device) awaitPairingTerminal(timeout time.Duration) (smp.State, error) {
	deadline := time.Now().Add(timeout)
	for {
		state := d.Pairing.StateSnapshot()
		switch state {
		case smp.StateCompleted, smp.StateFailed:
			return state, nil
		}
		if time.Now().After(deadline) {
			return state, bterr.StatusInternalTimeout
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// awaitDisconnected polls for IsConnected to go false, used between
// downgrade-ladder rungs (spec section 4.8 "poll for isConnected -> false
// within the complete-reply timeout").
func (d *Device) awaitDisconnected(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for d.IsConnected() {
		if time.Now().After(deadline) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// runATTBringup drives spec section 4.9 for this device's current handle,
// wiring the att package's pure bring-up driver to this device's SMP
// handler and transport.
func (d *Device) runATTBringup(t *hci.Transport, secLevel smp.SecLevel, prePaired bool, timeout time.Duration) (att.Result, error) {
	handle := d.Handle()
	trigger := func() error {
		if d.SMP == nil {
			return errors.New("bt: no smp handler installed")
		}
		if d.Pairing.StateSnapshot() != smp.StateNone {
			return nil // already negotiating or a SECURITY_REQUEST already arrived
		}
		return d.SMP.SendPairingRequest(
			uint8(d.Pairing.IOCapUser), 0, smp.AuthReqBonding|smp.AuthReqMITM|smp.AuthReqSC,
			16, uint8(smp.KeyEnc|smp.KeyID|smp.KeySign), uint8(smp.KeyEnc|smp.KeyID|smp.KeySign))
	}
	await := func(to time.Duration) (smp.State, error) {
		return d.awaitPairingTerminal(to)
	}
	return att.Run(t, handle, secLevel, prePaired, trigger, await, timeout, nil)
}

// --- keystore.DeviceKeySource ---

func (d *Device) LocalAddress() btaddr.AddressAndType  { return d.Adapter.Addr }
func (d *Device) RemoteAddress() btaddr.AddressAndType { return d.Addr }
func (d *Device) ConnSecurityLevel() smp.SecLevel      { return d.Pairing.SecLevelConn }
func (d *Device) ConnIOCapability() smp.IOCap          { return d.Pairing.IOCapConn }
func (d *Device) PairingState() smp.State              { return d.Pairing.StateSnapshot() }
func (d *Device) PairingMode() smp.Mode                { return d.Pairing.Mode }

func (d *Device) sideRecord(responder bool) *smp.SideRecord {
	if responder {
		return &d.Pairing.Responder
	}
	return &d.Pairing.Initiator
}

func (d *Device) AvailableKeys(responder bool) keystore.KeyType {
	s := d.sideRecord(responder)
	var k keystore.KeyType
	if s.LTKSet {
		k |= keystore.KeyEnc
	}
	if s.IRKSet {
		k |= keystore.KeyID
	}
	if s.CSRKSet {
		k |= keystore.KeySign
	}
	if s.LinkKeySet {
		k |= keystore.KeyLink
	}
	return k
}

func (d *Device) LongTermKeyOf(responder bool) keystore.LongTermKey {
	s := d.sideRecord(responder)
	return keystore.LongTermKey{Properties: 1, EncSize: s.EncSize, EDIV: s.EDIV, Rand: s.Rand, LTK: s.LTK}
}

func (d *Device) IdentityResolvingKeyOf(responder bool) keystore.IdentityResolvingKey {
	s := d.sideRecord(responder)
	return keystore.IdentityResolvingKey{Properties: 1, IRK: s.IRK}
}

func (d *Device) SignatureResolvingKeyOf(responder bool) keystore.SignatureResolvingKey {
	s := d.sideRecord(responder)
	return keystore.SignatureResolvingKey{Properties: 1, CSRK: s.CSRK}
}

func (d *Device) LinkKeyOf(responder bool) keystore.LinkKey {
	s := d.sideRecord(responder)
	return keystore.LinkKey{Properties: 1, KeyType: 0, PINLength: 0, Key: s.LinkKey}
}

// setSMPKeyBin applies a loaded SMPKeyBin to this (not-yet-connected)
// device, per spec section 4.11.
func (d *Device) setSMPKeyBin(bin *keystore.KeyBin) error {
	d.mu.Lock()
	connected := d.isConnected
	d.mu.Unlock()
	if state := d.Pairing.StateSnapshot(); state != smp.StateNone && state != smp.StateCompleted {
		return bterr.ErrPairingInProgress
	}
	if connected {
		return bterr.ErrAlreadyConnected
	}
	if !bin.LocalAddr.Equal(d.Adapter.Addr) || !bin.RemoteAddr.Equal(d.Addr) {
		return errors.New("bt: key bin address mismatch")
	}
	if bin.SecLevel > smp.SecNone && !bin.HasLTKInit() && !bin.HasLTKResp() {
		return errors.New("bt: key bin has no LTK but requests security")
	}
	d.Pairing.SecLevelUser = smp.SecEncOnly
	d.Pairing.IOCapUser = smp.IONoInputNoOutput

	if bin.HasLTKInit() && !d.Pairing.Initiator.LTKSet {
		lk := bin.LTKInit
		d.Pairing.Initiator.LTK, d.Pairing.Initiator.EncSize = lk.LTK, lk.EncSize
		d.Pairing.Initiator.EDIV, d.Pairing.Initiator.Rand, d.Pairing.Initiator.LTKSet = lk.EDIV, lk.Rand, true
	}
	if bin.HasLTKResp() && !d.Pairing.Responder.LTKSet {
		lk := bin.LTKResp
		d.Pairing.Responder.LTK, d.Pairing.Responder.EncSize = lk.LTK, lk.EncSize
		d.Pairing.Responder.EDIV, d.Pairing.Responder.Rand, d.Pairing.Responder.LTKSet = lk.EDIV, lk.Rand, true
	}
	if bin.HasIRKInit() && !d.Pairing.Initiator.IRKSet {
		d.Pairing.Initiator.IRK, d.Pairing.Initiator.IRKSet = bin.IRKInit.IRK, true
	}
	if bin.HasIRKResp() && !d.Pairing.Responder.IRKSet {
		d.Pairing.Responder.IRK, d.Pairing.Responder.IRKSet = bin.IRKResp.IRK, true
	}
	if bin.HasLKInit() && !d.Pairing.Initiator.LinkKeySet {
		d.Pairing.Initiator.LinkKey, d.Pairing.Initiator.LinkKeySet = bin.LKInit.Key, true
	}
	if bin.HasLKResp() && !d.Pairing.Responder.LinkKeySet {
		d.Pairing.Responder.LinkKey, d.Pairing.Responder.LinkKeySet = bin.LKResp.Key, true
	}
	return nil
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
