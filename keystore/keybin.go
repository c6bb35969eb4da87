// Package keystore implements the SMPKeyBin persistent key file (spec
// section 6.1): one little-endian binary file per (local, remote)
// address pair holding the negotiated security level, IO capability, and
// whichever of LTK/IRK/CSRK/LK each side produced. Grounded on
// direct_bt's SMPKeyBin.{hpp,cpp} for the field layout and on the
// teacher's krd/daemon.go for the atomic-write discipline (temp file,
// rename/remove on error; the file is not fsynced).
package keystore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/octets"
	"github.com/gothel-btcore/btcore/smp"
)

// Version is the magic|version tag stamped into every key file: the
// bit-pattern 0b0101010101010101 plus the format version number (5).
const Version uint16 = 0b0101010101010101 + 5

// KeyType is a bitmask of which optional key blocks are present for one
// side (initiator or responder) of a pairing.
type KeyType uint8

const (
	KeyEnc  KeyType = 1 << 0
	KeyID   KeyType = 1 << 1
	KeySign KeyType = 1 << 2
	KeyLink KeyType = 1 << 3
)

func (k KeyType) has(bit KeyType) bool { return k&bit != 0 }

// LongTermKey is the 28-byte LTK block.
type LongTermKey struct {
	Properties uint8
	EncSize    uint8
	EDIV       uint16
	Rand       uint64
	LTK        [16]byte
}

func (k LongTermKey) valid() bool { return k.EncSize != 0 }

func (k LongTermKey) marshal(w *octets.Writer) {
	w.PutU8(k.Properties).PutU8(k.EncSize).PutU16(k.EDIV).PutU64(k.Rand).PutRaw(k.LTK[:])
}

func unmarshalLTK(r *octets.Reader) (LongTermKey, error) {
	var k LongTermKey
	var err error
	if k.Properties, err = r.U8(); err != nil {
		return k, err
	}
	if k.EncSize, err = r.U8(); err != nil {
		return k, err
	}
	if k.EDIV, err = r.U16(); err != nil {
		return k, err
	}
	if k.Rand, err = r.U64(); err != nil {
		return k, err
	}
	raw, err := r.Raw(16)
	if err != nil {
		return k, err
	}
	copy(k.LTK[:], raw)
	return k, nil
}

// IdentityResolvingKey is the 17-byte IRK block.
type IdentityResolvingKey struct {
	Properties uint8
	IRK        [16]byte
}

func (k IdentityResolvingKey) marshal(w *octets.Writer) {
	w.PutU8(k.Properties).PutRaw(k.IRK[:])
}

func unmarshalIRK(r *octets.Reader) (IdentityResolvingKey, error) {
	var k IdentityResolvingKey
	var err error
	if k.Properties, err = r.U8(); err != nil {
		return k, err
	}
	raw, err := r.Raw(16)
	if err != nil {
		return k, err
	}
	copy(k.IRK[:], raw)
	return k, nil
}

// SignatureResolvingKey is the 17-byte CSRK block.
type SignatureResolvingKey struct {
	Properties uint8
	CSRK       [16]byte
}

func (k SignatureResolvingKey) marshal(w *octets.Writer) {
	w.PutU8(k.Properties).PutRaw(k.CSRK[:])
}

func unmarshalCSRK(r *octets.Reader) (SignatureResolvingKey, error) {
	var k SignatureResolvingKey
	var err error
	if k.Properties, err = r.U8(); err != nil {
		return k, err
	}
	raw, err := r.Raw(16)
	if err != nil {
		return k, err
	}
	copy(k.CSRK[:], raw)
	return k, nil
}

// LinkKey is the 19-byte BR/EDR link key block.
type LinkKey struct {
	Properties uint8
	KeyType    uint8
	PINLength  uint8
	Key        [16]byte
}

func (k LinkKey) marshal(w *octets.Writer) {
	w.PutU8(k.Properties).PutU8(k.KeyType).PutU8(k.PINLength).PutRaw(k.Key[:])
}

func unmarshalLK(r *octets.Reader) (LinkKey, error) {
	var k LinkKey
	var err error
	if k.Properties, err = r.U8(); err != nil {
		return k, err
	}
	if k.KeyType, err = r.U8(); err != nil {
		return k, err
	}
	if k.PINLength, err = r.U8(); err != nil {
		return k, err
	}
	raw, err := r.Raw(16)
	if err != nil {
		return k, err
	}
	copy(k.Key[:], raw)
	return k, nil
}

// KeyBin is one (local, remote) key file in memory.
type KeyBin struct {
	Version        uint16
	Size           uint16
	CreationTimeUnix uint64
	LocalAddr      btaddr.AddressAndType
	RemoteAddr     btaddr.AddressAndType
	SecLevel       smp.SecLevel
	IOCap          smp.IOCap

	KeysInit KeyType
	KeysResp KeyType

	LTKInit  LongTermKey
	IRKInit  IdentityResolvingKey
	CSRKInit SignatureResolvingKey
	LKInit   LinkKey

	LTKResp  LongTermKey
	IRKResp  IdentityResolvingKey
	CSRKResp SignatureResolvingKey
	LKResp   LinkKey

	Verbose bool
}

// New starts an empty, valid key bin for the given identities and
// connection security; keys are attached afterward via the SetXxx
// methods.
func New(local, remote btaddr.AddressAndType, sec smp.SecLevel, io smp.IOCap) *KeyBin {
	b := &KeyBin{
		Version:    Version,
		LocalAddr:  local,
		RemoteAddr: remote,
		SecLevel:   sec,
		IOCap:      io,
	}
	b.Size = b.calcSize()
	return b
}

const headerSize = 2 + 2 + 8 + 6 + 1 + 6 + 1 + 1 + 1 + 1 + 1

func (b *KeyBin) calcSize() uint16 {
	s := headerSize
	if b.KeysInit.has(KeyEnc) {
		s += 28
	}
	if b.KeysInit.has(KeyID) {
		s += 17
	}
	if b.KeysInit.has(KeySign) {
		s += 17
	}
	if b.KeysInit.has(KeyLink) {
		s += 19
	}
	if b.KeysResp.has(KeyEnc) {
		s += 28
	}
	if b.KeysResp.has(KeyID) {
		s += 17
	}
	if b.KeysResp.has(KeySign) {
		s += 17
	}
	if b.KeysResp.has(KeyLink) {
		s += 19
	}
	return uint16(s)
}

func (b *KeyBin) HasLTKInit() bool  { return b.KeysInit.has(KeyEnc) }
func (b *KeyBin) HasIRKInit() bool  { return b.KeysInit.has(KeyID) }
func (b *KeyBin) HasCSRKInit() bool { return b.KeysInit.has(KeySign) }
func (b *KeyBin) HasLKInit() bool   { return b.KeysInit.has(KeyLink) }
func (b *KeyBin) HasLTKResp() bool  { return b.KeysResp.has(KeyEnc) }
func (b *KeyBin) HasIRKResp() bool  { return b.KeysResp.has(KeyID) }
func (b *KeyBin) HasCSRKResp() bool { return b.KeysResp.has(KeySign) }
func (b *KeyBin) HasLKResp() bool   { return b.KeysResp.has(KeyLink) }

func (b *KeyBin) SetLTKInit(k LongTermKey) {
	b.LTKInit = k
	b.KeysInit |= KeyEnc
	b.Size = b.calcSize()
}

func (b *KeyBin) SetIRKInit(k IdentityResolvingKey) {
	b.IRKInit = k
	b.KeysInit |= KeyID
	b.Size = b.calcSize()
}

func (b *KeyBin) SetCSRKInit(k SignatureResolvingKey) {
	b.CSRKInit = k
	b.KeysInit |= KeySign
	b.Size = b.calcSize()
}

func (b *KeyBin) SetLKInit(k LinkKey) {
	b.LKInit = k
	b.KeysInit |= KeyLink
	b.Size = b.calcSize()
}

func (b *KeyBin) SetLTKResp(k LongTermKey) {
	b.LTKResp = k
	b.KeysResp |= KeyEnc
	b.Size = b.calcSize()
}

func (b *KeyBin) SetIRKResp(k IdentityResolvingKey) {
	b.IRKResp = k
	b.KeysResp |= KeyID
	b.Size = b.calcSize()
}

func (b *KeyBin) SetCSRKResp(k SignatureResolvingKey) {
	b.CSRKResp = k
	b.KeysResp |= KeySign
	b.Size = b.calcSize()
}

func (b *KeyBin) SetLKResp(k LinkKey) {
	b.LKResp = k
	b.KeysResp |= KeyLink
	b.Size = b.calcSize()
}

// IsValid reports version/size integrity and that any present LTK block
// carries a non-zero enc_size. The sec-level and IO-cap fields are not
// checked.
func (b *KeyBin) IsValid() bool {
	if b.Version != Version || b.Size != b.calcSize() {
		return false
	}
	if b.HasLTKInit() && !b.LTKInit.valid() {
		return false
	}
	if b.HasLTKResp() && !b.LTKResp.valid() {
		return false
	}
	return true
}

// FileBasename returns "bd_<localhex>_<remotehex><type>.key" with colons
// stripped, per spec section 6.1.
func FileBasename(local, remote btaddr.AddressAndType) string {
	l := strings.ReplaceAll(local.Address.String(), ":", "")
	r := strings.ReplaceAll(remote.Address.String(), ":", "")
	return fmt.Sprintf("bd_%s_%s%d.key", strings.ToUpper(l), strings.ToUpper(r), remote.AddrType)
}

func (b *KeyBin) FileBasename() string { return FileBasename(b.LocalAddr, b.RemoteAddr) }

// Filename joins path and the computed basename.
func Filename(path string, local, remote btaddr.AddressAndType) string {
	return filepath.Join(path, FileBasename(local, remote))
}

func (b *KeyBin) Filename(path string) string { return Filename(path, b.LocalAddr, b.RemoteAddr) }

func (b *KeyBin) marshal() []byte {
	w := octets.NewWriter(int(b.Size))
	w.PutU16(b.Version).PutU16(b.Size).PutU64(b.CreationTimeUnix)
	w.PutEUI48(b.LocalAddr.Address).PutU8(uint8(b.LocalAddr.AddrType))
	w.PutEUI48(b.RemoteAddr.Address).PutU8(uint8(b.RemoteAddr.AddrType))
	w.PutU8(uint8(b.SecLevel)).PutU8(uint8(b.IOCap))
	w.PutU8(uint8(b.KeysInit)).PutU8(uint8(b.KeysResp))

	if b.HasLTKInit() {
		b.LTKInit.marshal(w)
	}
	if b.HasIRKInit() {
		b.IRKInit.marshal(w)
	}
	if b.HasCSRKInit() {
		b.CSRKInit.marshal(w)
	}
	if b.HasLKInit() {
		b.LKInit.marshal(w)
	}
	if b.HasLTKResp() {
		b.LTKResp.marshal(w)
	}
	if b.HasIRKResp() {
		b.IRKResp.marshal(w)
	}
	if b.HasCSRKResp() {
		b.CSRKResp.marshal(w)
	}
	if b.HasLKResp() {
		b.LKResp.marshal(w)
	}
	return w.Bytes()
}

// unmarshal decodes raw into b, returning an error on any structural
// problem (short buffer, bad version/size).
func unmarshal(raw []byte) (*KeyBin, error) {
	r := octets.NewReader(raw)
	b := &KeyBin{}
	var err error
	if b.Version, err = r.U16(); err != nil {
		return nil, err
	}
	if b.Version != Version {
		return nil, fmt.Errorf("keystore: bad version %#x, want %#x", b.Version, Version)
	}
	if b.Size, err = r.U16(); err != nil {
		return nil, err
	}
	if int(b.Size) != len(raw) {
		return nil, fmt.Errorf("keystore: size field %d does not match file length %d", b.Size, len(raw))
	}
	if b.CreationTimeUnix, err = r.U64(); err != nil {
		return nil, err
	}
	localAddr, err := r.EUI48()
	if err != nil {
		return nil, err
	}
	localType, err := r.U8()
	if err != nil {
		return nil, err
	}
	b.LocalAddr = btaddr.New(localAddr, btaddr.Type(localType))

	remoteAddr, err := r.EUI48()
	if err != nil {
		return nil, err
	}
	remoteType, err := r.U8()
	if err != nil {
		return nil, err
	}
	b.RemoteAddr = btaddr.New(remoteAddr, btaddr.Type(remoteType))

	sec, err := r.U8()
	if err != nil {
		return nil, err
	}
	b.SecLevel = smp.SecLevel(sec)
	io, err := r.U8()
	if err != nil {
		return nil, err
	}
	b.IOCap = smp.IOCap(io)

	ki, err := r.U8()
	if err != nil {
		return nil, err
	}
	b.KeysInit = KeyType(ki)
	kr, err := r.U8()
	if err != nil {
		return nil, err
	}
	b.KeysResp = KeyType(kr)

	if b.HasLTKInit() {
		if b.LTKInit, err = unmarshalLTK(r); err != nil {
			return nil, err
		}
	}
	if b.HasIRKInit() {
		if b.IRKInit, err = unmarshalIRK(r); err != nil {
			return nil, err
		}
	}
	if b.HasCSRKInit() {
		if b.CSRKInit, err = unmarshalCSRK(r); err != nil {
			return nil, err
		}
	}
	if b.HasLKInit() {
		if b.LKInit, err = unmarshalLK(r); err != nil {
			return nil, err
		}
	}
	if b.HasLTKResp() {
		if b.LTKResp, err = unmarshalLTK(r); err != nil {
			return nil, err
		}
	}
	if b.HasIRKResp() {
		if b.IRKResp, err = unmarshalIRK(r); err != nil {
			return nil, err
		}
	}
	if b.HasCSRKResp() {
		if b.CSRKResp, err = unmarshalCSRK(r); err != nil {
			return nil, err
		}
	}
	if b.HasLKResp() {
		if b.LKResp, err = unmarshalLK(r); err != nil {
			return nil, err
		}
	}
	if !b.IsValid() {
		return nil, fmt.Errorf("keystore: decoded key bin failed validation")
	}
	return b, nil
}

// Write atomically stores b at path/FileBasename(): any existing file is
// deleted first when overwrite is set, the new file is written to a
// temp name and renamed into place, and any write error removes the
// partial file (spec section 6.1, "write is atomic").
func (b *KeyBin) Write(path string, overwrite bool) error {
	if !b.IsValid() {
		return fmt.Errorf("keystore: refusing to write invalid key bin")
	}
	fname := b.Filename(path)
	if _, err := os.Stat(fname); err == nil {
		if !overwrite {
			return fmt.Errorf("keystore: %s exists, overwrite not requested", fname)
		}
		if err := os.Remove(fname); err != nil {
			return fmt.Errorf("keystore: removing existing %s: %w", fname, err)
		}
	}
	tmp := fname + ".tmp"
	if err := os.WriteFile(tmp, b.marshal(), 0o600); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("keystore: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, fname); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("keystore: renaming %s: %w", tmp, err)
	}
	return nil
}

// Read loads and validates a key bin from fname, removing the file if
// it is structurally invalid (spec section 6.1, "a corrupt file is
// removed").
func Read(fname string) (*KeyBin, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	b, err := unmarshal(raw)
	if err != nil {
		os.Remove(fname)
		return nil, err
	}
	return b, nil
}

// Remove deletes the key file for (local, remote), if present.
func Remove(path string, local, remote btaddr.AddressAndType) error {
	err := os.Remove(Filename(path, local, remote))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
