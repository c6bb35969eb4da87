package keystore

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/smp"
)

func testAddrs() (local, remote btaddr.AddressAndType) {
	local = btaddr.New(net.HardwareAddr{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, btaddr.LEPublic)
	remote = btaddr.New(net.HardwareAddr{0xC0, 0x26, 0xDA, 0x01, 0xDA, 0xB1}, btaddr.LERandom)
	return
}

func TestFileBasename(t *testing.T) {
	local, remote := testAddrs()
	got := FileBasename(local, remote)
	want := "bd_010203040506_C026DA01DAB12.key"
	if got != want {
		t.Errorf("FileBasename = %q, want %q", got, want)
	}
}

func TestRoundTripNoKeys(t *testing.T) {
	local, remote := testAddrs()
	b := New(local, remote, smp.SecNone, smp.IONoInputNoOutput)
	if !b.IsValid() {
		t.Fatal("expected valid bin with no keys attached")
	}
	raw := b.marshal()
	got, err := unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Version != b.Version || got.Size != b.Size {
		t.Errorf("header mismatch: %+v vs %+v", got, b)
	}
	if !got.LocalAddr.Equal(b.LocalAddr) || !got.RemoteAddr.Equal(b.RemoteAddr) {
		t.Errorf("address mismatch: %+v vs %+v", got, b)
	}
}

func TestRoundTripWithKeys(t *testing.T) {
	local, remote := testAddrs()
	b := New(local, remote, smp.SecEncAuth, smp.IODisplayYesNo)
	b.SetLTKResp(LongTermKey{Properties: 1, EncSize: 16, EDIV: 0x1234, Rand: 0xABCDEF, LTK: [16]byte{0xDE, 0xAD}})
	b.SetIRKResp(IdentityResolvingKey{Properties: 1, IRK: [16]byte{0x01}})
	b.SetCSRKInit(SignatureResolvingKey{Properties: 1, CSRK: [16]byte{0x02}})
	b.SetLKInit(LinkKey{Properties: 1, KeyType: 4, PINLength: 0, Key: [16]byte{0x03}})

	if !b.IsValid() {
		t.Fatal("expected valid bin")
	}
	raw := b.marshal()
	if int(b.Size) != len(raw) {
		t.Fatalf("size field %d, actual bytes %d", b.Size, len(raw))
	}
	got, err := unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.LTKResp != b.LTKResp {
		t.Errorf("LTKResp = %+v, want %+v", got.LTKResp, b.LTKResp)
	}
	if got.IRKResp != b.IRKResp {
		t.Errorf("IRKResp = %+v, want %+v", got.IRKResp, b.IRKResp)
	}
	if got.CSRKInit != b.CSRKInit {
		t.Errorf("CSRKInit = %+v, want %+v", got.CSRKInit, b.CSRKInit)
	}
	if got.LKInit != b.LKInit {
		t.Errorf("LKInit = %+v, want %+v", got.LKInit, b.LKInit)
	}
	if got.HasLTKInit() || got.HasIRKInit() {
		t.Error("initiator ENC/ID blocks should not be present")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	local, remote := testAddrs()
	b := New(local, remote, smp.SecEncOnly, smp.IONoInputNoOutput)
	b.SetLTKResp(LongTermKey{Properties: 1, EncSize: 16, EDIV: 1, Rand: 2, LTK: [16]byte{0xAA}})

	if err := b.Write(dir, false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	fname := filepath.Join(dir, b.FileBasename())
	got, err := Read(fname)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.LTKResp != b.LTKResp || got.SecLevel != b.SecLevel {
		t.Errorf("round trip mismatch: %+v vs %+v", got, b)
	}

	if err := b.Write(dir, false); err == nil {
		t.Error("expected Write to refuse without overwrite")
	}
	if err := b.Write(dir, true); err != nil {
		t.Errorf("Write with overwrite: %v", err)
	}
}

func TestReadRemovesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	local, remote := testAddrs()
	fname := filepath.Join(dir, FileBasename(local, remote))
	if err := os.WriteFile(fname, []byte{0x01, 0x02, 0x03}, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Read(fname); err == nil {
		t.Fatal("expected error reading corrupt file")
	}
	if _, err := os.Stat(fname); !os.IsNotExist(err) {
		t.Error("corrupt file should have been removed")
	}
}

func TestLTKZeroEncSizeInvalid(t *testing.T) {
	local, remote := testAddrs()
	b := New(local, remote, smp.SecEncAuth, smp.IODisplayYesNo)
	b.SetLTKInit(LongTermKey{Properties: 1, EncSize: 0})
	if b.IsValid() {
		t.Error("LTK with zero enc_size must not be valid")
	}
}

func TestApplyAllGatesOnMinSecLevel(t *testing.T) {
	dir := t.TempDir()
	local, remote := testAddrs()
	b := New(local, remote, smp.SecEncOnly, smp.IONoInputNoOutput)
	b.SetLTKResp(LongTermKey{Properties: 1, EncSize: 16, EDIV: 1, Rand: 2, LTK: [16]byte{0x01}})
	if err := b.Write(dir, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	up := &countingUploader{}
	applied := ApplyAll(dir, local, smp.SecEncAuth, up)
	if applied != 0 || up.calls != 0 {
		t.Errorf("expected bin below min sec level to be rejected, applied=%d calls=%d", applied, up.calls)
	}
	if _, err := Read(filepath.Join(dir, b.FileBasename())); err == nil {
		t.Error("expected rejected key file to have been removed")
	}
}

type countingUploader struct{ calls int }

func (u *countingUploader) UploadKeys(b *KeyBin) error {
	u.calls++
	return nil
}
