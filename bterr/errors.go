// Package bterr implements the error taxonomy of spec section 7: a small
// set of HCI-status-like discriminants that every layer converts expected
// failures into, instead of raising across goroutine boundaries. Matches
// the teacher's own top-level error.go style (package-level sentinel
// values) plus github.com/currantlabs/ble's typed-byte error.go pattern
// for the wire status codes.
package bterr

import "fmt"

// Status is an HCI-status-like discriminant carried by every synthetic
// MgmtEvent and every synchronous API failure.
type Status uint8

// Status values, named after the HCI error codes they mirror or the
// internal conditions spec section 7 enumerates.
const (
	StatusSuccess Status = 0x00

	StatusUnknownConnID          Status = 0x02
	StatusAuthFailed             Status = 0x05
	StatusPinOrKeyMissing        Status = 0x06
	StatusConnectionTimeout      Status = 0x08
	StatusConnectionAlreadyExist Status = 0x0B
	StatusCommandDisallowed      Status = 0x0C
	StatusRemoteUserTermConn     Status = 0x13
	StatusConnTermByLocalHost    Status = 0x16
	StatusUnacceptableConnParam  Status = 0x3B
	StatusEncryptionModeNotAccepted Status = 0x25

	// Internal discriminants, not on the wire.
	StatusInternalTimeout Status = 0xF0
	StatusInternalFailure Status = 0xF1
	StatusNotPowered      Status = 0xF2
	StatusDisconnected    Status = 0xF3
	StatusUnspecified     Status = 0xFF
)

var statusNames = map[Status]string{
	StatusSuccess:                   "success",
	StatusUnknownConnID:             "unknown connection identifier",
	StatusAuthFailed:                "authentication failure",
	StatusPinOrKeyMissing:           "PIN or key missing",
	StatusConnectionTimeout:         "connection timeout",
	StatusConnectionAlreadyExist:    "connection already exists",
	StatusCommandDisallowed:         "command disallowed",
	StatusRemoteUserTermConn:        "remote user terminated connection",
	StatusConnTermByLocalHost:       "connection terminated by local host",
	StatusUnacceptableConnParam:     "unacceptable connection parameters",
	StatusEncryptionModeNotAccepted: "encryption mode not accepted",
	StatusInternalTimeout:           "internal timeout",
	StatusInternalFailure:           "internal failure",
	StatusNotPowered:                "adapter not powered",
	StatusDisconnected:              "device disconnected",
	StatusUnspecified:               "unspecified error",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(0x%02X)", uint8(s))
}

// Error adapts a Status to the error interface so synchronous APIs can
// return it directly as the error value.
func (s Status) Error() string { return s.String() }

// Recoverable reports whether the mitigation described in spec section
// 4.3 (poll-and-retry) applies to this status.
func (s Status) Recoverable() bool {
	switch s {
	case StatusCommandDisallowed, StatusConnectionAlreadyExist:
		return true
	}
	return false
}

// Sentinel errors for synchronous, argument-validation failures that
// never reach the transport (spec section 7 "Invalid argument").
var (
	ErrInvalidParameters = fmt.Errorf("bterr: invalid HCI command parameters")
	ErrNotPowered        = fmt.Errorf("bterr: adapter not powered")
	ErrAlreadyConnected  = fmt.Errorf("bterr: device already connected")
	ErrAlreadyConnecting = fmt.Errorf("bterr: connect already in flight")
	ErrClosed            = fmt.Errorf("bterr: closed")
	ErrPairingInProgress = fmt.Errorf("bterr: pairing in progress")
)
