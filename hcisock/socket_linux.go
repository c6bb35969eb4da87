//go:build linux

// Package hcisock opens the raw HCI socket the core drives a controller
// through. Grounded on github.com/currantlabs/ble's
// linux/hci/socket/socket.go (AF_BLUETOOTH/SOCK_RAW/BTPROTO_HCI, the
// up/down/bind dance), generalized to install the packet-type/event/
// opcode filter spec section 6.2 requires instead of the exclusive
// HCI_CHANNEL_USER the teacher used.
package hcisock

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	hciMaxDevices = 16
	typHCI        = 72 // 'H'
)

func ioR(t, nr, size uintptr) uintptr { return (2 << 30) | (t << 8) | nr | (size << 16) }
func ioW(t, nr, size uintptr) uintptr { return (1 << 30) | (t << 8) | nr | (size << 16) }

func ioctl(fd, op, arg uintptr) error {
	if _, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); ep != 0 {
		return ep
	}
	return nil
}

var (
	hciUpDevice      = ioW(typHCI, 201, 4)
	hciDownDevice    = ioW(typHCI, 202, 4)
	hciGetDeviceList = ioR(typHCI, 210, 4)
)

type devListRequest struct {
	devNum     uint16
	devRequest [hciMaxDevices]struct {
		id  uint16
		opt uint32
	}
}

// Filter mirrors struct hci_filter: a type bitmask, an event bitmask and
// an opcode, applied via SO_ATTACH_FILTER-equivalent SOL_HCI/HCI_FILTER
// socket option. Spec section 6.2.
type Filter struct {
	TypeMask  uint32
	EventMask [2]uint32
	Opcode    uint16
}

// Socket implements a HCI RAW socket as io.ReadWriteCloser, filtered per
// Filter.
type Socket struct {
	fd int
}

// Open returns a bound, filtered HCI socket for device id (-1 = first
// available).
func Open(id int, filter Filter) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "hcisock: can't create socket")
	}
	if id == -1 {
		req := devListRequest{devNum: hciMaxDevices}
		if err := ioctl(uintptr(fd), hciGetDeviceList, uintptr(unsafe.Pointer(&req))); err != nil {
			unix.Close(fd)
			return nil, errors.Wrap(err, "hcisock: can't get device list")
		}
		if req.devNum == 0 {
			unix.Close(fd)
			return nil, errors.New("hcisock: no HCI devices present")
		}
		id = int(req.devRequest[0].id)
	}

	if err := ioctl(uintptr(fd), hciUpDevice, uintptr(id)); err != nil {
		// Already up is fine; only bail on a hard failure to bind below.
		_ = err
	}

	sa := &unix.SockaddrHCI{Dev: uint16(id), Channel: unix.HCI_CHANNEL_RAW}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "hcisock: can't bind socket")
	}

	if err := setFilter(fd, filter); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "hcisock: can't install filter")
	}

	return &Socket{fd: fd}, nil
}

func setFilter(fd int, f Filter) error {
	// struct hci_filter layout: u32 type_mask; u32 event_mask[2]; u16 opcode;
	buf := make([]byte, 16)
	putU32(buf[0:4], f.TypeMask)
	putU32(buf[4:8], f.EventMask[0])
	putU32(buf[8:12], f.EventMask[1])
	putU32(buf[12:16], uint32(f.Opcode))
	const solHCI = 0
	const hciFilter = 2
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(solHCI), uintptr(hciFilter),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (s *Socket) Read(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	return n, errors.Wrap(err, "hcisock: read")
}

func (s *Socket) Write(p []byte) (int, error) {
	n, err := unix.Write(s.fd, p)
	return n, errors.Wrap(err, "hcisock: write")
}

func (s *Socket) Close() error {
	return errors.Wrap(unix.Close(s.fd), "hcisock: close")
}

// DefaultFilter builds the socket filter spec section 6.2/4.3 mandates:
// EVENT|ACLDATA packet types, the minimum event mask, and accept-all
// opcodes (opcode filtering happens in user-space against the waiting
// command, per spec 6.2).
func DefaultFilter() Filter {
	const (
		pktTypeEvent   = 0x04
		pktTypeACLData = 0x02
	)
	typeMask := uint32(1<<pktTypeEvent) | uint32(1<<pktTypeACLData)
	// Event bits are indexed by (code-1); codes used here: Disconnection
	// Complete(0x05), Command Complete(0x0E), Command Status(0x0F),
	// Hardware Error(0x10), LE Meta(0x3E), Connection Complete(0x03).
	var mask [2]uint32
	for _, code := range []uint8{0x03, 0x05, 0x0E, 0x0F, 0x10, 0x3E} {
		bit := uint32(code) - 1
		mask[bit/32] |= 1 << (bit % 32)
	}
	return Filter{TypeMask: typeMask, EventMask: mask, Opcode: 0}
}
