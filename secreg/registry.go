// Package secreg implements a pattern-matched per-device security
// policy table (spec component C10): entries keyed by an address prefix
// or a name prefix, each carrying the sec-level/IO-cap/auto-ladder-cap
// and optional fixed passkey to apply when a discovered or connecting
// device matches. Grounded on
// original_source/api/direct_bt/BTSecurityRegistry.hpp.
package secreg

import (
	"strings"
	"sync"

	"github.com/gothel-btcore/btcore/smp"
)

// NoPasskey marks an Entry with no fixed passkey configured.
const NoPasskey = -1

// Entry is one security-policy rule. Exactly one of AddrPrefix or
// NamePrefix should be set; an Entry with neither set (AddrPrefix nil,
// NamePrefix empty) is the registry's wildcard default, matching every
// device that no more specific entry claims — a supplement beyond the
// original's per-field matching, since a fleet of otherwise-unconfigured
// peripherals still needs some baseline policy.
type Entry struct {
	AddrPrefix []byte
	NamePrefix string

	SecLevel  smp.SecLevel
	IOCap     smp.IOCap
	IOCapAuto smp.IOCap // IOCapAutoUnset (0xFF) disables the downgrade ladder
	Passkey   int
}

// IsWildcard reports whether e has no address or name pattern, i.e. it
// is the registry's fallback default entry.
func (e *Entry) IsWildcard() bool { return len(e.AddrPrefix) == 0 && e.NamePrefix == "" }

// IsSecLevelOrIOCapSet reports whether e carries any explicit security
// configuration at all.
func (e *Entry) IsSecLevelOrIOCapSet() bool {
	return e.IOCap != smp.IOCapAutoUnset || e.SecLevel != smp.SecNone
}

// IsSecurityAutoEnabled reports whether e configures the downgrade
// ladder.
func (e *Entry) IsSecurityAutoEnabled() bool { return e.IOCapAuto != smp.IOCapAutoUnset }

// HasPasskey reports whether e carries a fixed passkey.
func (e *Entry) HasPasskey() bool { return e.Passkey != NoPasskey }

func (e *Entry) matchesAddr(addr []byte) bool {
	return len(e.AddrPrefix) > 0 && len(addr) >= len(e.AddrPrefix) && hasPrefix(addr, e.AddrPrefix)
}

func (e *Entry) matchesName(name string) bool {
	return e.NamePrefix != "" && strings.HasPrefix(name, e.NamePrefix)
}

func hasPrefix(b, prefix []byte) bool {
	for i, p := range prefix {
		if b[i] != p {
			return false
		}
	}
	return true
}

// Registry is a thread-safe, ordered list of Entry values. Entries are
// matched in insertion order; the first match wins, so a caller wanting
// a fallback should append the wildcard entry last.
type Registry struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Add appends e to the registry.
func (r *Registry) Add(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// Entries returns a snapshot copy of the current entry list.
func (r *Registry) Entries() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// GetStartOf returns the first entry whose AddrPrefix is a prefix of
// addr, or whose NamePrefix is a prefix of name, or the wildcard entry
// if one was registered and nothing more specific matched. It returns
// nil when no entry matches.
func (r *Registry) GetStartOf(addr []byte, name string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var wildcard *Entry
	for _, e := range r.entries {
		if e.IsWildcard() {
			wildcard = e
			continue
		}
		if e.matchesAddr(addr) || e.matchesName(name) {
			return e
		}
	}
	return wildcard
}

// GetEqual returns the first entry whose AddrPrefix exactly equals addr
// or whose NamePrefix exactly equals name (no wildcard fallback: an
// exact lookup by definition excludes the catch-all default).
func (r *Registry) GetEqual(addr []byte, name string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.IsWildcard() {
			continue
		}
		if (len(e.AddrPrefix) > 0 && equalBytes(e.AddrPrefix, addr)) ||
			(e.NamePrefix != "" && e.NamePrefix == name) {
			return e
		}
	}
	return nil
}

// GetOrCreate finds an existing entry whose AddrPrefix exactly equals
// addrOrNamePrefix when that is non-empty, otherwise one whose NamePrefix
// exactly equals asName, or appends and returns a new one.
func (r *Registry) GetOrCreate(addrOrNamePrefix []byte, asName string) *Entry {
	if len(addrOrNamePrefix) > 0 {
		if e := r.GetEqual(addrOrNamePrefix, ""); e != nil {
			return e
		}
		e := &Entry{AddrPrefix: addrOrNamePrefix, IOCap: smp.IOCapAutoUnset, IOCapAuto: smp.IOCapAutoUnset, Passkey: NoPasskey}
		r.Add(e)
		return e
	}
	if e := r.GetEqual(nil, asName); e != nil {
		return e
	}
	e := &Entry{NamePrefix: asName, IOCap: smp.IOCapAutoUnset, IOCapAuto: smp.IOCapAutoUnset, Passkey: NoPasskey}
	r.Add(e)
	return e
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
