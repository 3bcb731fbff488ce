// Package testutil provides in-memory package fixtures for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"makedelta/internal/pkgprov"
)

// MemPackage is an in-memory pkgprov.Package whose entry checksums are
// derived from content, so entry identity mirrors file contents exactly
// like the ZIP provider's CRC-32.
type MemPackage struct {
	name    string
	version string
	variant string

	order   []string
	entries map[string]pkgprov.PackageEntry
	data    map[string][]byte
}

// FixedMtime keeps fixture timestamps stable across runs.
const FixedMtime int64 = 1700000000

// NewMemPackage creates an empty in-memory package.
func NewMemPackage(name, version, variant string) *MemPackage {
	return &MemPackage{
		name:    name,
		version: version,
		variant: variant,
		entries: make(map[string]pkgprov.PackageEntry),
		data:    make(map[string][]byte),
	}
}

// AddFile adds one entry with the given content.
func (p *MemPackage) AddFile(name string, content []byte) *MemPackage {
	var crc [4]byte
	binary.BigEndian.PutUint32(crc[:], crc32.ChecksumIEEE(content))
	p.entries[name] = pkgprov.PackageEntry{
		Name:         name,
		Size:         int64(len(content)),
		ChecksumType: "crc32",
		Checksum:     string(crc[:]),
		Mtime:        FixedMtime,
		Mode:         0o100644,
	}
	p.data[name] = content
	p.order = append(p.order, name)
	return p
}

func (p *MemPackage) Name() string    { return p.name }
func (p *MemPackage) Version() string { return p.version }
func (p *MemPackage) Variant() string { return p.variant }

func (p *MemPackage) Entries() []pkgprov.PackageEntry {
	entries := make([]pkgprov.PackageEntry, 0, len(p.order))
	for _, name := range p.order {
		entries = append(entries, p.entries[name])
	}
	return entries
}

func (p *MemPackage) Entry(name string) (pkgprov.PackageEntry, bool) {
	e, ok := p.entries[name]
	return e, ok
}

func (p *MemPackage) Open(name string) (io.ReadCloser, error) {
	content, ok := p.data[name]
	if !ok {
		return nil, fmt.Errorf("no entry %q", name)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// MemProvider serves MemPackages by version.
type MemProvider struct {
	Packages map[string]pkgprov.Package
}

// OpenPackage returns the registered package for the version.
func (m MemProvider) OpenPackage(name, version, variant string) (pkgprov.Package, error) {
	pkg, ok := m.Packages[version]
	if !ok {
		return nil, fmt.Errorf("no package for version %q", version)
	}
	return pkg, nil
}
