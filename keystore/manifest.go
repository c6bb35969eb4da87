package keystore

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestEntry is one line of the optional keys.yaml side-index: a
// human-readable summary of a key file, kept only for operator
// inspection and startup logging, never consulted for correctness (the
// binary .key files remain the sole source of truth).
type ManifestEntry struct {
	LocalAddr  string    `yaml:"local_addr"`
	RemoteAddr string    `yaml:"remote_addr"`
	RemoteType uint8     `yaml:"remote_type"`
	SecLevel   string    `yaml:"sec_level"`
	PrePaired  bool      `yaml:"pre_paired"`
	Created    time.Time `yaml:"created"`
}

// Manifest is the top-level keys.yaml document.
type Manifest struct {
	Entries []ManifestEntry `yaml:"entries"`
}

// BuildManifest summarizes every key bin in bins into a Manifest.
func BuildManifest(bins []*KeyBin) Manifest {
	m := Manifest{Entries: make([]ManifestEntry, 0, len(bins))}
	for _, b := range bins {
		m.Entries = append(m.Entries, ManifestEntry{
			LocalAddr:  b.LocalAddr.Address.String(),
			RemoteAddr: b.RemoteAddr.Address.String(),
			RemoteType: uint8(b.RemoteAddr.AddrType),
			SecLevel:   b.SecLevel.String(),
			PrePaired:  b.HasLTKInit() || b.HasLTKResp(),
			Created:    time.Unix(int64(b.CreationTimeUnix), 0).UTC(),
		})
	}
	return m
}

// WriteManifest renders m as YAML to path, overwriting any existing
// file; failures here never affect key-file correctness, so callers
// typically log and continue rather than treat this as fatal.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadManifest loads a keys.yaml document from path.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = yaml.Unmarshal(data, &m)
	return m, err
}
