// Package hci implements the packet codec and transport of spec
// components C2/C3: one socket per adapter, a background reader thread,
// a bounded event ring, filter masks, and a connection tracker. Grounded
// on github.com/currantlabs/ble's linux/hci/hci.go (send/sktLoop/
// handlePkt/handleEvt/handleLEMeta shape and its conns map) and
// linux/hci/socket/socket.go (raw-socket open sequence, now via the
// hcisock package).
package hci

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/bterr"
	"github.com/gothel-btcore/btcore/btlog"
	"github.com/gothel-btcore/btcore/hci/cmd"
	"github.com/gothel-btcore/btcore/hcisock"
	"github.com/gothel-btcore/btcore/mgmt"
	"github.com/pkg/errors"
)

var log = btlog.Get("hci")

// Timeouts and knobs, spec section 5 and 6.4. They are plain package
// variables: callers override them by assignment, and nothing reads them
// from the environment.
var (
	CommandCompleteReplyTimeout = 10 * time.Second
	CommandStatusReplyTimeout   = 3 * time.Second
	CommandPollPeriod           = 125 * time.Millisecond
	ReaderThreadPollTimeout     = 10 * time.Second
	EvtRingCapacity             = 64
)

type pendingCmd struct {
	opcode uint16
	done   chan cmdReply
}

type cmdReply struct {
	status  uint8
	payload []byte
	isStatusOnly bool
	err     error
}

// SMPDeliverFunc receives a raw SMP PDU (CID-stripped) for one connection
// handle.
type SMPDeliverFunc func(handle uint16, pdu []byte)

// DisconnectNotifyFunc is invoked exactly once per tracked connection
// when it goes away, whether by explicit command, synthetic detection on
// socket closure, or a DISCONN_COMPLETE event (spec section 4.3
// "Synthetic disconnect" / section 7 "exactly one deviceDisconnected").
type DisconnectNotifyFunc func(handle uint16, addr btaddr.AddressAndType, reason uint8)

// Transport drives one HCI socket for one adapter.
type Transport struct {
	devID int
	bus   *mgmt.Bus

	skt io.ReadWriteCloser

	sendMu sync.Mutex // mtx_sendReply, innermost per spec section 5

	pendingMu sync.Mutex
	pending   map[uint16]*pendingCmd

	ring *EventRing
	conns *ConnTracker

	smpMu  sync.Mutex
	smpHnd map[uint16]SMPDeliverFunc

	attMu  sync.Mutex
	attHnd map[uint16]SMPDeliverFunc

	onDisconnect DisconnectNotifyFunc

	opened   int32
	closed   int32
	closeErr error
	done     chan struct{}
}

// Option configures a Transport at construction, matching the teacher's
// functional-options convention (github.com/currantlabs/ble's Option).
type Option func(*Transport)

// WithDisconnectNotify installs the callback invoked on every
// connection loss.
func WithDisconnectNotify(fn DisconnectNotifyFunc) Option {
	return func(t *Transport) { t.onDisconnect = fn }
}

// New constructs a Transport for HCI device devID (-1 = first available),
// publishing normalized events to bus.
func New(devID int, bus *mgmt.Bus, opts ...Option) *Transport {
	t := &Transport{
		devID:   devID,
		bus:     bus,
		pending: map[uint16]*pendingCmd{},
		ring:    NewEventRing(EvtRingCapacity),
		conns:   newConnTracker(),
		smpHnd:  map[uint16]SMPDeliverFunc{},
		attHnd:  map[uint16]SMPDeliverFunc{},
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Open installs the socket filter (spec section 6.2) and starts the
// background reader thread (spec section 4.3 "Threading model").
func (t *Transport) Open() error {
	skt, err := hcisock.Open(t.devID, hcisock.DefaultFilter())
	if err != nil {
		return errors.Wrap(err, "hci: open")
	}
	t.skt = skt
	atomic.StoreInt32(&t.opened, 1)
	go t.readLoop()
	return nil
}

// Close is a one-shot CAS: it shuts the socket (unblocking any read),
// signals the reader thread to stop (spec section 5 "Cancellation"). A
// Transport that was never successfully Opened (e.g. an Adapter adopted
// and removed before Open ever ran) has no reader thread to wait for.
func (t *Transport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&t.opened) == 0 {
		return nil
	}
	err := t.skt.Close()
	<-t.done
	return err
}

// RegisterSMP installs the SMP delivery callback for handle (spec
// section 4.3 "ACLDATA -> if CID is SMP and a tracked connection matches
// handle, deliver to per-connection SMP callback").
func (t *Transport) RegisterSMP(handle uint16, fn SMPDeliverFunc) {
	t.smpMu.Lock()
	defer t.smpMu.Unlock()
	t.smpHnd[handle] = fn
}

// UnregisterSMP removes the SMP callback for handle.
func (t *Transport) UnregisterSMP(handle uint16) {
	t.smpMu.Lock()
	defer t.smpMu.Unlock()
	delete(t.smpHnd, handle)
}

// RegisterATT installs the ATT delivery callback for handle.
func (t *Transport) RegisterATT(handle uint16, fn SMPDeliverFunc) {
	t.attMu.Lock()
	defer t.attMu.Unlock()
	t.attHnd[handle] = fn
}

// UnregisterATT removes the ATT callback for handle.
func (t *Transport) UnregisterATT(handle uint16) {
	t.attMu.Lock()
	defer t.attMu.Unlock()
	delete(t.attHnd, handle)
}

// Conns exposes the connection tracker to the adapter layer so it can
// drive the pending-connect/pending-disconnect poll loop of spec section
// 4.3.
func (t *Transport) Conns() *ConnTracker { return t.conns }

// WriteSMP frames and sends an SMP PDU over ACL on CIDSMP for handle.
func (t *Transport) WriteSMP(handle uint16, pdu []byte) error {
	return t.writeL2CAP(handle, CIDSMP, pdu)
}

// WriteATT frames and sends an ATT PDU over ACL on CIDAtt for handle.
func (t *Transport) WriteATT(handle uint16, pdu []byte) error {
	return t.writeL2CAP(handle, CIDAtt, pdu)
}

func (t *Transport) writeL2CAP(handle uint16, cid uint16, payload []byte) error {
	frame := frameL2CAP(cid, payload)
	pkt := frameACL(handle, pbfHostToControllerStart, frame)
	_, err := t.skt.Write(pkt)
	return errors.Wrap(err, "hci: write acl")
}

const pbfHostToControllerStart = 0x00

// Send issues c synchronously and, on CMD_COMPLETE, unmarshals the return
// parameters into rp (may be nil). It blocks for at most
// CommandCompleteReplyTimeout for the first CMD_COMPLETE or CMD_STATUS
// reply, whichever kind arrives; CommandStatusReplyTimeout is not applied
// (spec section 4.3 "Command/reply correlation").
func (t *Transport) Send(c cmd.Command, rp cmd.ReturnParams) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	for attempt := 0; attempt < EvtRingCapacity; attempt++ {
		p := &pendingCmd{opcode: c.OpCode(), done: make(chan cmdReply, 1)}
		t.pendingMu.Lock()
		t.pending[c.OpCode()] = p
		t.pendingMu.Unlock()

		if entry, ok := t.ring.TakeMatching(c.OpCode()); ok {
			p.done <- cmdReply{status: entry.Status, payload: entry.Payload, isStatusOnly: entry.IsStatus}
		}

		if _, err := t.skt.Write(FrameCommand(c)); err != nil {
			t.clearPending(c.OpCode())
			return errors.Wrap(err, "hci: write command")
		}

		reply, err := t.awaitReply(p)
		t.clearPending(c.OpCode())
		if err != nil {
			return err
		}
		if reply.status != 0x00 {
			return bterr.Status(reply.status)
		}
		if rp != nil {
			if err := rp.Unmarshal(reply.payload); err != nil {
				return errors.Wrap(err, "hci: unmarshal return params")
			}
		}
		return nil
	}
	return bterr.StatusInternalTimeout
}

func (t *Transport) clearPending(opcode uint16) {
	t.pendingMu.Lock()
	delete(t.pending, opcode)
	t.pendingMu.Unlock()
}

func (t *Transport) awaitReply(p *pendingCmd) (cmdReply, error) {
	select {
	case r := <-p.done:
		return r, r.err
	case <-time.After(CommandCompleteReplyTimeout):
		return cmdReply{}, bterr.StatusInternalTimeout
	case <-t.done:
		return cmdReply{}, bterr.StatusInternalFailure
	}
}

func (t *Transport) readLoop() {
	defer close(t.done)
	b := make([]byte, 4096)
	for {
		n, err := t.skt.Read(b)
		if err != nil || n == 0 {
			t.closeErr = err
			t.synthesizeDisconnectsOnClose()
			return
		}
		pkt := make([]byte, n)
		copy(pkt, b[:n])
		if err := t.handlePacket(pkt); err != nil {
			log.Warning("hci: packet handling error: ", err)
		}
	}
}

func (t *Transport) handlePacket(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("hci: empty packet")
	}
	typ, rest := b[0], b[1:]
	switch typ {
	case PktTypeEvent:
		return t.handleEvent(rest)
	case PktTypeACLData:
		return t.handleACL(rest)
	default:
		return fmt.Errorf("hci: unsupported packet type 0x%02X", typ)
	}
}

func (t *Transport) handleACL(b []byte) error {
	hdr, payload, err := parseACLHeader(b)
	if err != nil {
		return err
	}
	frame, err := parseL2CAP(payload)
	if err != nil {
		return err
	}
	if frame.cid == CIDSMP {
		t.smpMu.Lock()
		fn := t.smpHnd[hdr.handle]
		t.smpMu.Unlock()
		if fn != nil {
			fn(hdr.handle, frame.payload)
		}
		return nil
	}
	// Other CIDs (ATT, signaling) are out of this package's scope; the att
	// package registers its own delivery path the same way SMP does via a
	// parallel registry owned by the caller that wires Transport up.
	if t.attHnd != nil {
		t.attMu.Lock()
		fn := t.attHnd[hdr.handle]
		t.attMu.Unlock()
		if frame.cid == CIDAtt && fn != nil {
			fn(hdr.handle, frame.payload)
		}
	}
	return nil
}

func (t *Transport) handleEvent(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("hci: short event header")
	}
	code, plen := b[0], b[1]
	if int(plen) != len(b)-2 {
		return fmt.Errorf("hci: invalid event length")
	}
	params := b[2:]
	switch code {
	case EvtCommandComplete:
		return t.onCommandComplete(params)
	case EvtCommandStatus:
		return t.onCommandStatus(params)
	case EvtDisconnectionComplete:
		return t.onDisconnectionComplete(params)
	case EvtLEMeta:
		return t.onLEMeta(params)
	default:
		// Events outside the filter surface should never arrive; ignore
		// defensively rather than treat as fatal.
		return nil
	}
}
