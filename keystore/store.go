package keystore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gothel-btcore/btcore/btaddr"
	"github.com/gothel-btcore/btcore/btlog"
	"github.com/gothel-btcore/btcore/smp"
)

var log = btlog.Get("keystore")

// ReadAll loads every "bd_*.key" file in dir, skipping (and removing)
// any that fail validation.
func ReadAll(dir string) []*KeyBin {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []*KeyBin
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "bd_") || !strings.HasSuffix(e.Name(), ".key") {
			continue
		}
		b, err := Read(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Warningf("keystore: dropping invalid key file %s: %v", e.Name(), err)
			continue
		}
		out = append(out, b)
	}
	return out
}

// ReadAllForLocalAdapter filters ReadAll's result to entries whose local
// address matches local.
func ReadAllForLocalAdapter(local btaddr.AddressAndType, dir string) []*KeyBin {
	var out []*KeyBin
	for _, b := range ReadAll(dir) {
		if b.LocalAddr.Equal(local) {
			out = append(out, b)
		}
	}
	return out
}

// Uploader makes a key bin's key material available ahead of a reconnect
// (spec section 4.11 "uploadKeys"). The adapter layer supplies the
// concrete implementation; bt's adapter applies the bin to a Device in its
// shared registry and sends nothing to the controller. keystore only
// drives the scan and the minimum-security gate.
type Uploader interface {
	UploadKeys(b *KeyBin) error
}

// ApplyAll scans dir for every key file belonging to local, uploads via
// up each whose SecLevel meets minSecLevel and that holds at least one
// LTK, and removes any below minSecLevel (spec section 4.11's power-on
// scan combined with section 6.1's minimum-security gate from
// readAndApply). Bins without an LTK are skipped and kept. It returns the
// count successfully uploaded.
func ApplyAll(dir string, local btaddr.AddressAndType, minSecLevel smp.SecLevel, up Uploader) int {
	applied := 0
	for _, b := range ReadAllForLocalAdapter(local, dir) {
		if b.SecLevel < minSecLevel {
			log.Warningf("keystore: %s below minimum security %v, removing", b.FileBasename(), minSecLevel)
			Remove(dir, b.LocalAddr, b.RemoteAddr)
			continue
		}
		if !b.HasLTKInit() && !b.HasLTKResp() {
			continue
		}
		if err := up.UploadKeys(b); err != nil {
			log.Warningf("keystore: uploading keys for %s failed: %v", b.RemoteAddr, err)
			continue
		}
		applied++
	}
	return applied
}
