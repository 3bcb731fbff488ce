package pkgprov

import (
	"archive/zip"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ZipPackage is a Package backed by a ZIP archive on disk.
//
// Directory entries are skipped. The entry mode comes from the upper 16
// bits of the external attributes, defaulting to 0100644 when the archive
// records none. The checksum is the big-endian CRC-32 from the central
// directory, and mtime is the archive timestamp in seconds since epoch.
// Entry paths are stored verbatim; callers perform traversal checks.
type ZipPackage struct {
	name    string
	version string
	variant string

	reader  *zip.ReadCloser
	entries []PackageEntry
	byName  map[string]PackageEntry
	files   map[string]*zip.File
}

const defaultEntryMode = 0o100644

// OpenZipPackage opens a ZIP archive and indexes its file entries.
func OpenZipPackage(path, name, version, variant string) (*ZipPackage, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open package %s: %w", path, err)
	}

	p := &ZipPackage{
		name:    name,
		version: version,
		variant: variant,
		reader:  r,
		byName:  make(map[string]PackageEntry),
		files:   make(map[string]*zip.File),
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		mode := int64(f.ExternalAttrs >> 16)
		if mode == 0 {
			mode = defaultEntryMode
		}
		var crc [4]byte
		binary.BigEndian.PutUint32(crc[:], f.CRC32)
		entry := PackageEntry{
			Name:         f.Name,
			Size:         int64(f.UncompressedSize64),
			ChecksumType: "crc32",
			Checksum:     string(crc[:]),
			Mtime:        f.Modified.Unix(),
			Mode:         mode,
		}
		p.entries = append(p.entries, entry)
		p.byName[f.Name] = entry
		p.files[f.Name] = f
	}
	return p, nil
}

func (p *ZipPackage) Name() string    { return p.name }
func (p *ZipPackage) Version() string { return p.version }
func (p *ZipPackage) Variant() string { return p.variant }

// Entries returns all file entries in archive order.
func (p *ZipPackage) Entries() []PackageEntry { return p.entries }

// Entry looks up a single entry by its archive path.
func (p *ZipPackage) Entry(name string) (PackageEntry, bool) {
	e, ok := p.byName[name]
	return e, ok
}

// Open returns a reader over the decompressed contents of one entry.
func (p *ZipPackage) Open(name string) (io.ReadCloser, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("package %s: no entry %q", FullName(p), name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("package %s: open entry %q: %w", FullName(p), name, err)
	}
	return rc, nil
}

// Close releases the underlying archive handle.
func (p *ZipPackage) Close() error { return p.reader.Close() }

// DirProvider locates package archives as ZIP files under a base
// directory, named "<name>-<version>-<variant>.zip" (the variant segment is
// omitted when empty).
type DirProvider struct {
	Dir string
}

// OpenPackage opens the archive for the requested package version.
func (d DirProvider) OpenPackage(name, version, variant string) (Package, error) {
	parts := []string{name, version}
	if variant != "" {
		parts = append(parts, variant)
	}
	path := filepath.Join(d.Dir, strings.Join(parts, "-")+".zip")
	return OpenZipPackage(path, name, version, variant)
}
