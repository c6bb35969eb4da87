package smp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/btlog"
)

var log = btlog.Get("smp")

// SecLevel is the security level requested or negotiated for a link,
// ordered low to high (spec section 3 "sec_level_user"/"sec_level_conn").
type SecLevel uint8

const (
	SecNone SecLevel = iota
	SecEncOnly
	SecEncAuth
	SecEncAuthFIPS
)

func (s SecLevel) String() string {
	switch s {
	case SecNone:
		return "NONE"
	case SecEncOnly:
		return "ENC_ONLY"
	case SecEncAuth:
		return "ENC_AUTH"
	case SecEncAuthFIPS:
		return "ENC_AUTH_FIPS"
	default:
		return "SecLevel(?)"
	}
}

// IOCap is the local or remote IO capability [Vol 3, Part H, 2.3.2].
type IOCap uint8

const (
	IODisplayOnly IOCap = iota
	IODisplayYesNo
	IOKeyboardOnly
	IONoInputNoOutput
	IOKeyboardDisplay
	// IOCapAutoUnset marks io_cap_auto as disabled, i.e. no downgrade
	// ladder (spec section 3 "UNSET disables auto-ladder").
	IOCapAutoUnset IOCap = 0xFF
)

// Mode is the negotiated pairing association model (spec section 3).
type Mode int

const (
	ModeNone Mode = iota
	ModeNegotiating
	ModeJustWorks
	ModePasskeyEntryInitiator
	ModePasskeyEntryResponder
	ModeNumericCompareInitiator
	ModeNumericCompareResponder
	ModeOutOfBand
	ModePrePaired
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "NONE"
	case ModeNegotiating:
		return "NEGOTIATING"
	case ModeJustWorks:
		return "JUST_WORKS"
	case ModePasskeyEntryInitiator:
		return "PASSKEY_ENTRY_ini"
	case ModePasskeyEntryResponder:
		return "PASSKEY_ENTRY_resp"
	case ModeNumericCompareInitiator:
		return "NUMERIC_COMPARE_ini"
	case ModeNumericCompareResponder:
		return "NUMERIC_COMPARE_resp"
	case ModeOutOfBand:
		return "OUT_OF_BAND"
	case ModePrePaired:
		return "PRE_PAIRED"
	default:
		return "Mode(?)"
	}
}

// State is a node of the canonical pairing progress machine of spec
// section 4.7.
type State int

const (
	StateNone State = iota
	StateRequestedByResponder
	StateFeatureExchangeStarted
	StateFeatureExchangeCompleted
	StatePasskeyExpected
	StateNumericCompareExpected
	StatePasskeyNotify
	StateOOBExpected
	StateKeyDistribution
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateRequestedByResponder:
		return "REQUESTED_BY_RESPONDER"
	case StateFeatureExchangeStarted:
		return "FEATURE_EXCHANGE_STARTED"
	case StateFeatureExchangeCompleted:
		return "FEATURE_EXCHANGE_COMPLETED"
	case StatePasskeyExpected:
		return "PASSKEY_EXPECTED"
	case StateNumericCompareExpected:
		return "NUMERIC_COMPARE_EXPECTED"
	case StatePasskeyNotify:
		return "PASSKEY_NOTIFY"
	case StateOOBExpected:
		return "OOB_EXPECTED"
	case StateKeyDistribution:
		return "KEY_DISTRIBUTION"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return "State(?)"
	}
}

// KeyMask is the set of keys a side expects or has received, bit-for-bit
// matching the SMP key distribution field (spec section 3 "expected-keys
// mask, received-keys mask").
type KeyMask uint8

const (
	KeyEnc  KeyMask = 1 << 0
	KeyID   KeyMask = 1 << 1
	KeySign KeyMask = 1 << 2
	KeyLink KeyMask = 1 << 3
)

// Has reports whether every bit set in want is also set in m.
func (m KeyMask) Has(want KeyMask) bool { return m&want == want }

// SideRecord is one side's (initiator or responder) negotiated
// parameters and key material (spec section 3 "Per-side records").
type SideRecord struct {
	AuthReqs     uint8
	IOCap        IOCap
	OOB          bool
	MaxEncSize   uint8
	ExpectedKeys KeyMask
	ReceivedKeys KeyMask

	LTK            [16]byte
	LTKSet         bool
	EncSize        uint8
	EDIV           uint16
	Rand           uint64
	IRK            [16]byte
	IRKSet         bool
	CSRK           [16]byte
	CSRKSet        bool
	LinkKey        [16]byte
	LinkKeySet     bool
	IdentityAddr   btaddr.AddressAndType
	HasIdentity    bool
}

// captureLTK stores an LTK unless one is already held (spec section 4.7
// "Key capture rules": a held key is never overwritten).
func (s *SideRecord) captureLTK(ltk [16]byte, encSize uint8, ediv uint16, rand uint64) (progressed bool) {
	if s.LTKSet {
		return false
	}
	s.LTK, s.EncSize, s.EDIV, s.Rand, s.LTKSet = ltk, encSize, ediv, rand, true
	s.ReceivedKeys |= KeyEnc
	return true
}

func (s *SideRecord) captureIRK(irk [16]byte) (progressed bool) {
	if s.IRKSet {
		return false
	}
	s.IRK, s.IRKSet = irk, true
	s.ReceivedKeys |= KeyID
	return true
}

func (s *SideRecord) captureIdentityAddr(addr btaddr.AddressAndType) {
	s.IdentityAddr, s.HasIdentity = addr, true
}

func (s *SideRecord) captureCSRK(csrk [16]byte) (progressed bool) {
	if s.CSRKSet {
		return false
	}
	s.CSRK, s.CSRKSet = csrk, true
	s.ReceivedKeys |= KeySign
	return true
}

func (s *SideRecord) captureLinkKey(lk [16]byte) (progressed bool) {
	if s.LinkKeySet {
		return false
	}
	s.LinkKey, s.LinkKeySet = lk, true
	s.ReceivedKeys |= KeyLink
	return true
}

// PairingData is the per-device SMP progress record of spec section 3.
// All mutating methods acquire mu, matching the spec's "serialized
// through the device's pairing mutex" requirement.
type PairingData struct {
	mu sync.Mutex

	SecLevelUser SecLevel
	IOCapUser    IOCap
	IOCapAuto    IOCap // IOCapAutoUnset disables the downgrade ladder

	SecLevelConn SecLevel
	IOCapConn    IOCap
	Mode         Mode
	State        State

	Initiator SideRecord
	Responder SideRecord

	UseSC             bool
	EncryptionEnabled bool
	IsPrePaired       bool
	ResRequestedSec   bool

	events  int64 // smp_events counter, watchdog progress marker
	touched int64 // unix nano of last progress, for the watchdog
}

// NewPairingData returns a fresh, unpaired record.
func NewPairingData() *PairingData {
	return &PairingData{IOCapAuto: IOCapAutoUnset}
}

func (p *PairingData) markProgress() {
	atomic.AddInt64(&p.events, 1)
	atomic.StoreInt64(&p.touched, time.Now().UnixNano())
}

// Events returns the current smp_events counter (watchdog progress
// marker).
func (p *PairingData) Events() int64 { return atomic.LoadInt64(&p.events) }

// StateSnapshot returns the current pairing state under mu, matching the
// same mutex discipline as every mutating method below.
func (p *PairingData) StateSnapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.State
}

// SinceProgress reports how long it has been since the last state
// transition or key capture.
func (p *PairingData) SinceProgress() time.Duration {
	t := atomic.LoadInt64(&p.touched)
	if t == 0 {
		return 0
	}
	return time.Since(time.Unix(0, t))
}

// expectedKeys returns the key mask a side must receive before COMPLETED
// is reachable (spec section 3's completion invariant): SC expects LINK
// in addition to legacy's ENC|ID|SIGN.
func expectedKeys(useSC bool) KeyMask {
	if useSC {
		return KeyEnc | KeyID | KeySign | KeyLink
	}
	return KeyEnc | KeyID | KeySign
}

// transitionLocked moves to next, refusing to leave FAILED (spec
// testable property I3, "FAILED is absorbing").
func (p *PairingData) transitionLocked(next State) {
	if p.State == StateFailed {
		return
	}
	p.State = next
	p.markProgress()
}

// Fail moves the state to FAILED unconditionally; only Clear() can revive
// it afterward.
func (p *PairingData) Fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.State = StateFailed
	p.markProgress()
}

// Clear resets to an unpaired record, as required before a fresh
// reconnect can make progress again (spec section 3's monotonicity
// invariant: "only a fresh unpair -> clear -> reconnect cycle resets
// it").
func (p *PairingData) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	secUser, ioUser, ioAuto := p.SecLevelUser, p.IOCapUser, p.IOCapAuto
	*p = PairingData{SecLevelUser: secUser, IOCapUser: ioUser, IOCapAuto: ioAuto}
}

// deriveMode implements spec section 4.7's mode-derivation table.
func deriveMode(useSC bool, initAuthReq, respAuthReq uint8, initIO, respIO IOCap, initOOB, respOOB bool) Mode {
	authRequired := initAuthReq&AuthReqMITM != 0 || respAuthReq&AuthReqMITM != 0
	if initOOB || respOOB {
		return ModeOutOfBand
	}
	if !authRequired || initIO == IONoInputNoOutput || respIO == IONoInputNoOutput {
		return ModeJustWorks
	}
	displaysYesNo := func(a, b IOCap) bool {
		return (a == IODisplayYesNo || a == IOKeyboardDisplay) && (b == IODisplayYesNo || b == IOKeyboardDisplay)
	}
	if useSC && displaysYesNo(initIO, respIO) {
		return ModeNumericCompareInitiator
	}
	displays := func(c IOCap) bool { return c == IODisplayOnly || c == IODisplayYesNo || c == IOKeyboardDisplay }
	keyboards := func(c IOCap) bool { return c == IOKeyboardOnly || c == IOKeyboardDisplay }
	if displays(initIO) && keyboards(respIO) {
		return ModePasskeyEntryResponder
	}
	if keyboards(initIO) && displays(respIO) {
		return ModePasskeyEntryInitiator
	}
	if keyboards(initIO) && keyboards(respIO) {
		return ModePasskeyEntryInitiator
	}
	return ModeJustWorks
}
