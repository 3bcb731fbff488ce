package delta

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"makedelta/internal/concache"
	"makedelta/internal/dataproc"
	"makedelta/internal/iohelper"
	"makedelta/internal/patchstats"
	"makedelta/internal/pkgdiff"
	"makedelta/internal/pkgprov"
)

// pkgdiff results are pure and bounded; a few hundred entries cover any
// realistic chain during ordering.
const diffCacheSize = 640

// Config parameterises a Builder. Zero values select the defaults the
// tool runs with.
type Config struct {
	Processor dataproc.Processor
	// Stats, when set, records every generated patch.
	Stats *patchstats.Store
	// CacheDir holds the persistent content-addressed caches
	// (default "cache").
	CacheDir string
	// OutDir receives the report, the chunk temp files and the final
	// package (default "output").
	OutDir string
	// Workers sizes the patch-generation and chunk-building pool
	// (default runtime.NumCPU()).
	Workers int
	// NeedBinaryPatch decides which changed entries are patched rather
	// than replaced (default: .dll and .exe files).
	NeedBinaryPatch func(pkgprov.PackageEntry) bool
}

// Builder runs the delta planning and building pipeline. Source packages
// are opened once per run; extracted blobs and generated patches live in
// content-addressed disk caches reused across runs.
type Builder struct {
	proc            dataproc.Processor
	stats           *patchstats.Store
	workers         int
	needBinaryPatch func(pkgprov.PackageEntry) bool

	patchCacheDir string
	extractDir    string
	chunkTempDir  string
	outDir        string

	extracts  *concache.Once[extractKey, string]
	hashes    *concache.Once[string, string]
	diffCache *concache.LRU[diffKey, pkgdiff.Diff]
}

type extractKey struct {
	pkg  string
	name string
}

type diffKey struct {
	a string
	b string
}

// DefaultNeedBinaryPatch patches Windows binaries and replaces everything
// else.
func DefaultNeedBinaryPatch(e pkgprov.PackageEntry) bool {
	return strings.HasSuffix(e.Name, ".dll") || strings.HasSuffix(e.Name, ".exe")
}

// NewBuilder creates a Builder from cfg.
func NewBuilder(cfg Config) *Builder {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = "cache"
	}
	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "output"
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	needPatch := cfg.NeedBinaryPatch
	if needPatch == nil {
		needPatch = DefaultNeedBinaryPatch
	}
	return &Builder{
		proc:            cfg.Processor,
		stats:           cfg.Stats,
		workers:         workers,
		needBinaryPatch: needPatch,
		patchCacheDir:   filepath.Join(cacheDir, "patch_cache"),
		extractDir:      filepath.Join(cacheDir, "pkg_extract"),
		chunkTempDir:    filepath.Join(outDir, "temp"),
		outDir:          outDir,
		extracts:        concache.NewOnce[extractKey, string](),
		hashes:          concache.NewOnce[string, string](),
		diffCache:       concache.NewLRU[diffKey, pkgdiff.Diff](diffCacheSize),
	}
}

// sha256File is the process-lifetime memoised file hash.
func (b *Builder) sha256File(path string) (string, error) {
	return b.hashes.Do(path, func() (string, error) {
		return iohelper.Sha256File(path)
	})
}

// packageDiff is the LRU-memoised package diff.
func (b *Builder) packageDiff(a, c pkgprov.Package) pkgdiff.Diff {
	key := diffKey{a: pkgprov.FullName(a), b: pkgprov.FullName(c)}
	d, _ := b.diffCache.Get(key, func() (pkgdiff.Diff, error) {
		return pkgdiff.PackageDiff(a, c), nil
	})
	return d
}

// validateEntryPath rejects archive paths that would escape the
// extraction directory.
func validateEntryPath(name string) error {
	if name == "" {
		return fmt.Errorf("empty entry path")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || filepath.VolumeName(name) != "" {
		return fmt.Errorf("path must be relative: %s", name)
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed: %s", name)
		}
		if isReservedName(part) {
			return fmt.Errorf("invalid path in this system: %s", name)
		}
	}
	return nil
}

// isReservedName reports Windows device names, which cannot exist as
// regular files on consumer systems.
func isReservedName(part string) bool {
	base := strings.ToUpper(part)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "CON", "PRN", "AUX", "NUL":
		return true
	}
	if len(base) == 4 && (strings.HasPrefix(base, "COM") || strings.HasPrefix(base, "LPT")) {
		c := base[3]
		return c >= '1' && c <= '9'
	}
	return false
}

// extractFile writes one package entry into the extraction cache and
// returns its path. Concurrent requests for the same entry share a single
// extraction through the once-cache.
func (b *Builder) extractFile(pkg pkgprov.Package, name string) (string, error) {
	key := extractKey{pkg: pkgprov.FullName(pkg), name: name}
	return b.extracts.Do(key, func() (string, error) {
		entry, ok := pkg.Entry(name)
		if !ok {
			return "", fmt.Errorf("package %s: no entry %q", pkgprov.FullName(pkg), name)
		}
		if err := validateEntryPath(name); err != nil {
			return "", err
		}
		target := filepath.Join(b.extractDir, pkgprov.FullName(pkg), pkg.Version(), filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("extract %s: %w", name, err)
		}
		err := iohelper.SafeWrite(target, func(w *os.File) error {
			rc, err := pkg.Open(name)
			if err != nil {
				return err
			}
			defer rc.Close()
			_, err = io.Copy(w, rc)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", name, err)
		}
		// Restore the archive mtime so re-runs see stable timestamps.
		if err := os.Chtimes(target, time.Now(), time.Unix(entry.Mtime, 0)); err != nil {
			return "", fmt.Errorf("extract %s: %w", name, err)
		}
		return target, nil
	})
}
