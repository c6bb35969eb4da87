package bt

import (
	"sync"
	"time"

	"github.com/gothel-btcore/btcore/att"
	"github.com/gothel-btcore/btcore/bterr"
	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/btlog"
	"github.com/gothel-btcore/btcore/hci"
	"github.com/gothel-btcore/btcore/hci/cmd"
	"github.com/gothel-btcore/btcore/hci/evt"
	"github.com/gothel-btcore/btcore/keystore"
	"github.com/gothel-btcore/btcore/mgmt"
	"github.com/gothel-btcore/btcore/secreg"
	"github.com/gothel-btcore/btcore/smp"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var log = btlog.Get("bt")

// DiscoveryPolicy governs whether an active discovery session pauses
// while a connection attempt is in flight (spec section 4.5).
type DiscoveryPolicy int

const (
	AutoOff DiscoveryPolicy = iota
	PauseConnectedUntilDisconnected
	// PauseConnectedUntilReady is the default.
	PauseConnectedUntilReady
	PauseConnectedUntilPaired
	AlwaysOn
)

const (
	watchdogPeriod = 5 * time.Second
	watchdogStale  = 30 * time.Second
)

// Adapter owns one HCI transport, its management bus, and every device
// registry a spec section 3 Adapter carries.
type Adapter struct {
	Addr  btaddr.AddressAndType
	Name  string
	devID int

	transport *hci.Transport
	bus       *mgmt.Bus
	watchdog  *smp.Watchdog

	SCCapable bool
	KeyDir    string
	SecPolicy *secreg.Registry

	mtxDiscovery sync.Mutex
	discovering  bool
	policy       DiscoveryPolicy

	mtxConnect sync.Mutex // single-concurrent-connect lock, spec section 4.6

	mtxSharedDevices sync.Mutex
	shared           map[btaddr.Key]*Device // bonded/known devices surviving across sessions

	mtxConnectedDevices sync.Mutex
	connected           map[btaddr.Key]*Device

	mtxDiscoveredDevices sync.Mutex
	discovered           map[btaddr.Key]*Device

	pausingDiscoveryMu sync.Mutex
	pausingDiscovery   map[btaddr.Key]struct{}

	advertising bool

	subs []mgmt.SubscriptionID
}

// NewAdapter constructs an Adapter for HCI device devID, not yet opened.
func NewAdapter(devID int, addr btaddr.AddressAndType, keyDir string) *Adapter {
	a := &Adapter{
		Addr:             addr,
		devID:            devID,
		bus:              mgmt.NewBus(),
		KeyDir:           keyDir,
		SecPolicy:        secreg.NewRegistry(),
		policy:           PauseConnectedUntilReady,
		shared:           map[btaddr.Key]*Device{},
		connected:        map[btaddr.Key]*Device{},
		discovered:       map[btaddr.Key]*Device{},
		pausingDiscovery: map[btaddr.Key]struct{}{},
	}
	a.transport = hci.New(devID, a.bus, hci.WithDisconnectNotify(a.onTransportDisconnect))
	a.watchdog = smp.NewWatchdog(watchdogPeriod, watchdogStale)
	a.subscribe()
	return a
}

func (a *Adapter) subscribe() {
	sub := func(op mgmt.Opcode, fn func(mgmt.MgmtEvent)) {
		a.subs = append(a.subs, a.bus.Subscribe(op, nil, mgmt.HandlerFunc(fn)))
	}
	sub(mgmt.OpDeviceFound, a.onDeviceFound)
	sub(mgmt.OpDeviceConnected, a.onDeviceConnected)
	sub(mgmt.OpDeviceConnectFailed, a.onDeviceConnectFailed)
	sub(mgmt.OpDeviceDisconnected, a.onDeviceDisconnected)
	sub(mgmt.OpLERemoteUserFeatures, a.onLERemoteUserFeatures)
	sub(mgmt.OpHCILELTKRequest, a.onHCILELTKRequest)
}

// Open starts the underlying transport's reader thread and the pairing
// watchdog, then performs the spec section 4.11 power-on key upload scan.
func (a *Adapter) Open() error {
	if err := a.transport.Open(); err != nil {
		return errors.Wrap(err, "bt: open transport")
	}
	a.watchdog.Run(a.onPairingStuck)
	if a.KeyDir != "" {
		n := keystore.ApplyAll(a.KeyDir, a.Addr, smp.SecNone, uploaderFunc(a.uploadKeys))
		log.Infof("bt: uploaded %d pre-paired key set(s)", n)
	}
	return nil
}

// Close tears down every in-flight pairing watchdog entry and the
// transport (spec section 5's cancellation model). The errgroup covers
// only the watchdog untracking of connected devices; bring-up goroutines
// started by onDeviceConnected are not waited for.
func (a *Adapter) Close() error {
	for _, id := range a.subs {
		a.bus.Unsubscribe(id)
	}
	var g errgroup.Group
	for _, d := range a.snapshotConnected() {
		d := d
		g.Go(func() error {
			a.watchdog.Untrack(d.Pairing)
			return nil
		})
	}
	_ = g.Wait()
	a.watchdog.Stop()
	return a.transport.Close()
}

type uploaderFunc func(b *keystore.KeyBin) error

func (f uploaderFunc) UploadKeys(b *keystore.KeyBin) error { return f(b) }

// uploadKeys applies one power-on-scanned key file to a freshly created,
// not-yet-connected Device registered in sharedDevices, so that once the
// bonded peer reconnects, deviceFor hands onDeviceConnected this same
// pre-keyed object instead of an empty one (spec section 4.11's
// "uploadKeys" pushes key material ahead of the reconnect it anticipates).
func (a *Adapter) uploadKeys(b *keystore.KeyBin) error {
	d := NewDevice(a, b.RemoteAddr)
	if err := d.setSMPKeyBin(b); err != nil {
		return err
	}
	d.Pairing.IsPrePaired = true
	a.mtxSharedDevices.Lock()
	a.shared[b.RemoteAddr.Key()] = d
	a.mtxSharedDevices.Unlock()
	return nil
}

func (a *Adapter) snapshotConnected() []*Device {
	a.mtxConnectedDevices.Lock()
	defer a.mtxConnectedDevices.Unlock()
	out := make([]*Device, 0, len(a.connected))
	for _, d := range a.connected {
		out = append(out, d)
	}
	return out
}

// ConnectedDevices returns a snapshot of every currently connected device.
func (a *Adapter) ConnectedDevices() []*Device { return a.snapshotConnected() }

// DiscoveredDevices returns a snapshot of every device seen by discovery
// that is not currently connected.
func (a *Adapter) DiscoveredDevices() []*Device {
	a.mtxDiscoveredDevices.Lock()
	defer a.mtxDiscoveredDevices.Unlock()
	out := make([]*Device, 0, len(a.discovered))
	for _, d := range a.discovered {
		out = append(out, d)
	}
	return out
}

// deviceFor returns (creating if necessary) the Device tracked for addr,
// preferring an already-connected or already-discovered record over a
// fresh one so repeated sightings accumulate onto the same object.
func (a *Adapter) deviceFor(addr btaddr.AddressAndType) *Device {
	key := addr.Key()

	a.mtxConnectedDevices.Lock()
	if d, ok := a.connected[key]; ok {
		a.mtxConnectedDevices.Unlock()
		return d
	}
	a.mtxConnectedDevices.Unlock()

	a.mtxDiscoveredDevices.Lock()
	defer a.mtxDiscoveredDevices.Unlock()
	if d, ok := a.discovered[key]; ok {
		return d
	}

	a.mtxSharedDevices.Lock()
	if d, ok := a.shared[key]; ok {
		a.mtxSharedDevices.Unlock()
		a.discovered[key] = d
		return d
	}
	a.mtxSharedDevices.Unlock()

	d := NewDevice(a, addr)
	a.discovered[key] = d
	return d
}

// onDeviceFound applies one advertising report, updating the merged EIR
// model (spec sections 3, 4.5, 4.10).
func (a *Adapter) onDeviceFound(e mgmt.MgmtEvent) {
	rep, ok := e.Data.(evt.Report)
	if !ok {
		return
	}
	d := a.deviceFor(e.Device)
	src := SourceADInd
	if rep.EventType == advScanRspEvt {
		src = SourceADScanRsp
	}
	d.UpdateAdvertisement(ParseEIR(rep.Data, rep.RSSI, src))
}

const advScanRspEvt = 0x04

func (a *Adapter) onDeviceConnected(e mgmt.MgmtEvent) {
	d := a.deviceFor(e.Device)
	d.onConnected(e.Handle, RoleMaster)

	a.mtxDiscoveredDevices.Lock()
	delete(a.discovered, e.Device.Key())
	a.mtxDiscoveredDevices.Unlock()

	a.mtxConnectedDevices.Lock()
	a.connected[e.Device.Key()] = d
	a.mtxConnectedDevices.Unlock()

	entry := a.SecPolicy.GetStartOf(e.Device.Address, d.Name())
	userSet := false
	if entry != nil {
		d.Pairing.SecLevelUser = entry.SecLevel
		d.Pairing.IOCapUser = entry.IOCap
		d.Pairing.IOCapAuto = entry.IOCapAuto
		userSet = entry.IsSecLevelOrIOCapSet()
	}

	eir := d.EIR()
	sec := att.ComputeSecLevel(userSet, d.Pairing.SecLevelUser, eir.LikesEncryption(), d.hasLEEncryptionFeature(), a.SCCapable)
	prePaired := d.Pairing.IsPrePaired
	d.SMP = smp.NewHandler(true, func(pdu []byte) error {
		return a.transport.WriteSMP(d.Handle(), pdu)
	})
	d.SMP.Data = d.Pairing
	a.transport.RegisterSMP(e.Handle, func(_ uint16, pdu []byte) {
		if err := d.SMP.HandlePDU(pdu); err != nil {
			log.Warningf("bt: smp pdu handling error for %s: %v", e.Device, err)
		}
	})
	a.watchdog.Track(d.Pairing)

	go a.bringUpDevice(d, sec, prePaired)
}

func (a *Adapter) bringUpDevice(d *Device, sec smp.SecLevel, prePaired bool) {
	_, err := d.runATTBringup(a.transport, sec, prePaired, hci.CommandCompleteReplyTimeout)
	if err != nil {
		log.Warningf("bt: att bring-up failed for %s: %v", d.Addr, err)
		return
	}
	a.watchdog.Untrack(d.Pairing)
	if a.KeyDir != "" {
		if _, err := keystore.CreateAndWrite(d, a.KeyDir, !prePaired); err != nil {
			log.Warningf("bt: writing key bin for %s failed: %v", d.Addr, err)
		}
	}
	a.resumePausedDiscoveryIfReady()
}

func (a *Adapter) onDeviceConnectFailed(e mgmt.MgmtEvent) {
	a.mtxDiscoveredDevices.Lock()
	d, ok := a.discovered[e.Device.Key()]
	a.mtxDiscoveredDevices.Unlock()
	if ok {
		a.watchdog.Untrack(d.Pairing)
	}
	a.resumePausedDiscoveryIfReady()
}

func (a *Adapter) onDeviceDisconnected(e mgmt.MgmtEvent) {
	a.mtxConnectedDevices.Lock()
	d, ok := a.connected[e.Device.Key()]
	if ok {
		delete(a.connected, e.Device.Key())
	}
	a.mtxConnectedDevices.Unlock()
	if !ok {
		return
	}
	d.notifyDisconnected()
	a.transport.UnregisterSMP(e.Handle)
	a.watchdog.Untrack(d.Pairing)
	a.resumePausedDiscoveryIfReady()
}

func (a *Adapter) onLERemoteUserFeatures(e mgmt.MgmtEvent) {
	features, ok := e.Data.(uint64)
	if !ok {
		return
	}
	a.mtxConnectedDevices.Lock()
	d, ok := a.connected[e.Device.Key()]
	a.mtxConnectedDevices.Unlock()
	if ok {
		d.onLEFeatures(features)
	}
}

// onHCILELTKRequest answers an LTK request from the controller for a
// reconnecting bonded device, per spec section 4.11.
func (a *Adapter) onHCILELTKRequest(e mgmt.MgmtEvent) {
	a.mtxConnectedDevices.Lock()
	d, ok := a.connected[e.Device.Key()]
	a.mtxConnectedDevices.Unlock()
	if !ok || !d.Pairing.Responder.LTKSet {
		a.transport.Send(&cmd.LELongTermKeyRequestNegativeReply{ConnectionHandle: e.Handle}, nil)
		return
	}
	a.transport.Send(&cmd.LELongTermKeyRequestReply{ConnectionHandle: e.Handle, LongTermKey: d.Pairing.Responder.LTK}, nil)
}

func (a *Adapter) onTransportDisconnect(handle uint16, addr btaddr.AddressAndType, reason uint8) {
	// Mirrors onDeviceDisconnected for callers that only observe the raw
	// transport callback rather than the mgmt bus (e.g. tests).
}

func (a *Adapter) onPairingStuck(p *smp.PairingData) {
	log.Warning("bt: pairing watchdog fired, marking FAILED")
}

// StartDiscovery enables LE scanning (spec section 4.5). The
// DiscoveryPolicy is applied by pauseDiscoveryFor, not here.
func (a *Adapter) StartDiscovery(activeScan bool) error {
	a.mtxDiscovery.Lock()
	defer a.mtxDiscovery.Unlock()
	if a.discovering {
		return nil
	}
	scanType := uint8(0)
	if activeScan {
		scanType = 1
	}
	if err := a.transport.Send(&cmd.LESetScanParameters{
		LEScanType:           scanType,
		LEScanInterval:       0x0010,
		LEScanWindow:         0x0010,
		OwnAddressType:       0x00,
		ScanningFilterPolicy: 0x00,
	}, nil); err != nil {
		return errors.Wrap(err, "bt: set scan parameters")
	}
	if err := a.transport.Send(&cmd.LESetScanEnable{LEScanEnable: 1, FilterDuplicates: 0}, nil); err != nil {
		return errors.Wrap(err, "bt: set scan enable")
	}
	a.discovering = true
	return nil
}

// StopDiscovery disables LE scanning.
func (a *Adapter) StopDiscovery() error {
	a.mtxDiscovery.Lock()
	defer a.mtxDiscovery.Unlock()
	if !a.discovering {
		return nil
	}
	if err := a.transport.Send(&cmd.LESetScanEnable{LEScanEnable: 0}, nil); err != nil {
		return errors.Wrap(err, "bt: set scan disable")
	}
	a.discovering = false
	return nil
}

// SetDiscoveryPolicy changes how an active discovery session behaves
// while devices are connecting or connected.
func (a *Adapter) SetDiscoveryPolicy(p DiscoveryPolicy) {
	a.mtxDiscovery.Lock()
	defer a.mtxDiscovery.Unlock()
	a.policy = p
}

// pauseDiscoveryFor marks addr as a reason discovery is paused, per the
// active DiscoveryPolicy, and actually stops scanning if policy demands it
// immediately (PAUSE_CONNECTED_UNTIL_DISCONNECTED/_READY/_PAIRED all pause
// at connect time; see resumePausedDiscoveryIfReady for when scanning
// resumes).
func (a *Adapter) pauseDiscoveryFor(addr btaddr.AddressAndType) {
	a.mtxDiscovery.Lock()
	policy := a.policy
	wasDiscovering := a.discovering
	a.mtxDiscovery.Unlock()
	if policy == AutoOff || policy == AlwaysOn {
		return
	}
	if !wasDiscovering {
		return
	}
	a.pausingDiscoveryMu.Lock()
	a.pausingDiscovery[addr.Key()] = struct{}{}
	a.pausingDiscoveryMu.Unlock()
	_ = a.StopDiscovery()
}

// resumePausedDiscoveryIfReady re-enables discovery once none of the
// devices that paused it is still in the connected registry. It applies
// this one rule under every pausing policy: a device that is ready or
// paired but still connected keeps discovery paused, so
// PAUSE_CONNECTED_UNTIL_READY and _PAIRED behave like
// PAUSE_CONNECTED_UNTIL_DISCONNECTED.
func (a *Adapter) resumePausedDiscoveryIfReady() {
	a.pausingDiscoveryMu.Lock()
	n := len(a.pausingDiscovery)
	a.pausingDiscoveryMu.Unlock()
	if n == 0 {
		return
	}
	a.mtxConnectedDevices.Lock()
	stillPending := false
	for key := range a.pausingDiscovery {
		if _, connected := a.connected[key]; connected {
			stillPending = true
			break
		}
	}
	a.mtxConnectedDevices.Unlock()
	if stillPending {
		return
	}
	a.pausingDiscoveryMu.Lock()
	a.pausingDiscovery = map[btaddr.Key]struct{}{}
	a.pausingDiscoveryMu.Unlock()
	_ = a.StartDiscovery(true)
}

// StartAdvertising begins LE advertising with name in the EIR, refusing to
// start while discovering or while any device is connected or pending
// connection (spec section 4.5).
func (a *Adapter) StartAdvertising(name string) error {
	a.mtxDiscovery.Lock()
	discovering := a.discovering
	a.mtxDiscovery.Unlock()
	if discovering {
		return errors.New("bt: cannot advertise while discovering")
	}
	if len(a.snapshotConnected()) > 0 || a.transport.Conns().HasPendingConnect() {
		return errors.New("bt: cannot advertise with a connection in progress")
	}

	data := buildAdvertisingData(name)
	var raw cmd.LESetAdvertisingData
	raw.AdvertisingDataLength = uint8(len(data))
	copy(raw.AdvertisingData[:], data)
	if err := a.transport.Send(&raw, nil); err != nil {
		return errors.Wrap(err, "bt: set advertising data")
	}
	if err := a.transport.Send(&cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin: 0x00A0,
		AdvertisingIntervalMax: 0x00A0,
		AdvertisingType:        0x00,
		OwnAddressType:         0x00,
		AdvertisingChannelMap:  0x07,
	}, nil); err != nil {
		return errors.Wrap(err, "bt: set advertising parameters")
	}
	if err := a.transport.Send(&cmd.LESetAdvertiseEnable{AdvertisingEnable: 1}, nil); err != nil {
		return errors.Wrap(err, "bt: set advertise enable")
	}
	a.Name = name
	a.advertising = true
	return nil
}

// StopAdvertising disables LE advertising.
func (a *Adapter) StopAdvertising() error {
	if err := a.transport.Send(&cmd.LESetAdvertiseEnable{AdvertisingEnable: 0}, nil); err != nil {
		return errors.Wrap(err, "bt: set advertise disable")
	}
	a.advertising = false
	return nil
}

func buildAdvertisingData(name string) []byte {
	var out []byte
	out = append(out, 2, adFlags, 0x06)
	if name != "" {
		n := name
		if len(n) > 27 {
			n = n[:27]
		}
		out = append(out, byte(len(n)+1), adCompleteName)
		out = append(out, []byte(n)...)
	}
	return out
}

// Connect implements spec section 4.6's connection flow end to end: the
// adapter serializes all LE_CREATE_CONN issuance through mtxConnect,
// polling per section 4.3 while a connect or disconnect is already
// outstanding before issuing a fresh command, and pauses discovery per the
// active DiscoveryPolicy.
func (a *Adapter) Connect(addr btaddr.AddressAndType, params ConnectParams) (*Device, error) {
	a.mtxConnect.Lock()
	defer a.mtxConnect.Unlock()

	for a.transport.Conns().HasPendingConnect() || a.transport.Conns().IsDisconnecting(addr) {
		time.Sleep(hci.CommandPollPeriod)
	}

	d := a.deviceFor(addr)
	a.pauseDiscoveryFor(addr)

	entry := a.SecPolicy.GetStartOf(addr.Address, d.Name())
	if entry != nil && entry.IsSecurityAutoEnabled() {
		if err := a.connectAutoLadder(d, params, entry.IOCap); err != nil {
			return nil, err
		}
		return d, nil
	}
	if entry != nil {
		d.Pairing.SecLevelUser = entry.SecLevel
		d.Pairing.IOCapUser = entry.IOCap
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := d.connectLE(a.transport, params)
		if err == nil {
			return d, nil
		}
		if st, ok := err.(bterr.Status); ok && st.Recoverable() {
			lastErr = err
			time.Sleep(hci.CommandPollPeriod)
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// ladderRung is one row of the auto-downgrade table of spec section 4.8.
type ladderRung struct {
	sec smp.SecLevel
	io  smp.IOCap
}

// connectAutoLadder implements spec section 4.8: attempt the connection
// at decreasing security demands until one reaches COMPLETED pairing or
// the ladder is exhausted. Every intermediate rung's connect/disconnect
// is this adapter's own private bookkeeping (bt has no device-level
// listener interface yet, only the adapter-lifecycle ManagerListener),
// so there is nothing further to suppress from an application observer.
func (a *Adapter) connectAutoLadder(d *Device, params ConnectParams, userIO smp.IOCap) error {
	rungs := []ladderRung{
		{smp.SecEncAuthFIPS, userIO},
		{smp.SecEncAuth, userIO},
		{smp.SecEncOnly, smp.IONoInputNoOutput},
		{smp.SecNone, smp.IONoInputNoOutput},
	}
	var lastErr error
	for _, rung := range rungs {
		d.Pairing.SecLevelUser = rung.sec
		d.Pairing.IOCapUser = rung.io
		d.Pairing.Clear()

		if err := d.connectLE(a.transport, params); err != nil {
			lastErr = err
			continue
		}
		state, err := d.awaitPairingTerminal(hci.CommandCompleteReplyTimeout)
		if err == nil && state == smp.StateCompleted {
			return nil
		}
		lastErr = bterr.StatusAuthFailed
		_ = d.disconnect(a.transport, uint8(bterr.StatusAuthFailed))
		d.awaitDisconnected(hci.CommandCompleteReplyTimeout)
	}
	return lastErr
}

// Disconnect tears down addr's connection, if any.
func (a *Adapter) Disconnect(addr btaddr.AddressAndType, reason uint8) error {
	a.mtxConnectedDevices.Lock()
	d, ok := a.connected[addr.Key()]
	a.mtxConnectedDevices.Unlock()
	if !ok {
		return bterr.StatusUnknownConnID
	}
	return d.disconnect(a.transport, reason)
}
