package delta

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"makedelta/internal/manifest"
	"makedelta/internal/pkgprov"
)

// Below this fraction of the target size the compressor has hit its
// ~100 bytes/MiB floor and the patch is still mostly entropy-free; the
// outer chunk is compressed as a whole, so rank such patches by their
// nested-compressed size instead of the raw one.
const zstdNestedThreshold = 0.0002

// entrySizeKey renders the cache-file key of an entry: zero-padded hex
// size followed by the first four checksum bytes.
func entrySizeKey(e pkgprov.PackageEntry) string {
	checksum := e.Checksum
	if len(checksum) > 4 {
		checksum = checksum[:4]
	}
	return fmt.Sprintf("%08X%s", e.Size, strings.ToUpper(hex.EncodeToString([]byte(checksum))))
}

// patchFileName locates the persistent cache file for one (source entry,
// target entry) delta.
func (b *Builder) patchFileName(pf FileAction, oldEnt, newEnt pkgprov.PackageEntry, ext string) string {
	name := fmt.Sprintf("%s-%s-%s%s", filepath.Base(pf.Path), entrySizeKey(oldEnt), entrySizeKey(newEnt), ext)
	return filepath.Join(b.patchCacheDir, pf.FromVersion, name)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// recordStat stores the generated patch size in the statistics database.
func (b *Builder) recordStat(origFile, newFile string, patchType manifest.PatchType, size int64) error {
	if b.stats == nil {
		return nil
	}
	oldHash, err := b.sha256File(origFile)
	if err != nil {
		return err
	}
	newHash, err := b.sha256File(newFile)
	if err != nil {
		return err
	}
	return b.stats.AddPatch(oldHash, newHash, string(patchType), size)
}

// makeZstdPatch builds (or reuses) the zstd delta from pf's source entry
// to toVersion. When the raw patch undercuts the compressor's encoded
// floor, the nested-compressed size is reported instead, so the ranking
// against bsdiff reflects what the compressed chunk will actually carry.
func (b *Builder) makeZstdPatch(pf FileAction, oldEnt, newEnt pkgprov.PackageEntry, toVersion, origFile, newFile string) (CachedBinaryPatch, error) {
	patchFile := b.patchFileName(pf, oldEnt, newEnt, ".zst")
	if _, err := os.Stat(patchFile); err != nil {
		if err := os.MkdirAll(filepath.Dir(patchFile), 0o755); err != nil {
			return CachedBinaryPatch{}, fmt.Errorf("patch %s: %w", pf.Path, err)
		}
		if err := b.proc.GenerateZstdPatch(origFile, newFile, patchFile); err != nil {
			return CachedBinaryPatch{}, fmt.Errorf("patch %s: %w", pf.Path, err)
		}
	}
	patchSize, err := fileSize(patchFile)
	if err != nil {
		return CachedBinaryPatch{}, fmt.Errorf("patch %s: %w", pf.Path, err)
	}
	newSize, err := fileSize(newFile)
	if err != nil {
		return CachedBinaryPatch{}, fmt.Errorf("patch %s: %w", pf.Path, err)
	}
	if float64(patchSize) < float64(newSize)*zstdNestedThreshold {
		nested := patchFile + ".zst"
		if _, err := os.Stat(nested); err != nil {
			if err := b.proc.CompressFile(patchFile, nested); err != nil {
				return CachedBinaryPatch{}, fmt.Errorf("patch %s: %w", pf.Path, err)
			}
		}
		if patchSize, err = fileSize(nested); err != nil {
			return CachedBinaryPatch{}, fmt.Errorf("patch %s: %w", pf.Path, err)
		}
	}
	if err := b.recordStat(origFile, newFile, manifest.PatchZstd, patchSize); err != nil {
		return CachedBinaryPatch{}, err
	}
	return CachedBinaryPatch{
		PatchFile:               pf,
		ToVersion:               toVersion,
		Type:                    manifest.PatchZstd,
		CachedDeltaFile:         patchFile,
		EstimatedCompressedSize: patchSize,
	}, nil
}

// makeBsdiffPatch builds (or reuses) the bsdiff delta. The raw size is
// used for ranking: bsdiff output is already near-incompressible.
func (b *Builder) makeBsdiffPatch(pf FileAction, oldEnt, newEnt pkgprov.PackageEntry, toVersion, origFile, newFile string) (CachedBinaryPatch, error) {
	patchFile := b.patchFileName(pf, oldEnt, newEnt, ".bsdiffx")
	if _, err := os.Stat(patchFile); err != nil {
		if err := os.MkdirAll(filepath.Dir(patchFile), 0o755); err != nil {
			return CachedBinaryPatch{}, fmt.Errorf("patch %s: %w", pf.Path, err)
		}
		if err := b.proc.GenerateBsdiffPatch(origFile, newFile, patchFile); err != nil {
			return CachedBinaryPatch{}, fmt.Errorf("patch %s: %w", pf.Path, err)
		}
	}
	patchSize, err := fileSize(patchFile)
	if err != nil {
		return CachedBinaryPatch{}, fmt.Errorf("patch %s: %w", pf.Path, err)
	}
	if err := b.recordStat(origFile, newFile, manifest.PatchBsdiff, patchSize); err != nil {
		return CachedBinaryPatch{}, err
	}
	return CachedBinaryPatch{
		PatchFile:               pf,
		ToVersion:               toVersion,
		Type:                    manifest.PatchBsdiff,
		CachedDeltaFile:         patchFile,
		EstimatedCompressedSize: patchSize,
	}, nil
}

type changeRecord struct {
	sinceVersion string
	key          pkgprov.EntryKey
}

type contentKey struct {
	path string
	key  pkgprov.EntryKey
}

// FindBestPatch resolves every PatchFile across the chunks to its
// cheapest realisation.
//
// It first builds a per-path changelog of source entries (oldest slot
// first) and a content→versions index. For each PatchFile the candidate
// target versions are the latest version plus every strictly newer
// version whose entry for the path changed. When some candidate already
// carries bytes identical to the source (the A→B→A case) the last such
// version wins with a zero-cost copy strategy. Otherwise candidates are
// deduplicated by content, keeping the first occurrence in candidate
// order, and a zstd and a bsdiff delta are built concurrently for each
// survivor; the smallest estimated compressed size wins, ties breaking
// toward the earliest-submitted candidate.
func (b *Builder) FindBestPatch(ctx context.Context, pkgs map[string]pkgprov.Package, records []PackageContentDiff, latestVersion string, sortedPrevious []string) (map[FileAction]CachedBinaryPatch, error) {
	previousIndex := make(map[string]int, len(sortedPrevious))
	for i, v := range sortedPrevious {
		previousIndex[v] = i
	}

	changelog := make(map[string][]changeRecord)
	byContent := make(map[contentKey][]string)
	for i := len(records) - 1; i >= 0; i-- {
		for _, action := range records[i].Actions {
			if action.Kind != ActionPatch {
				continue
			}
			entry, ok := pkgs[action.FromVersion].Entry(action.Path)
			if !ok {
				return nil, fmt.Errorf("version %s: no entry %q", action.FromVersion, action.Path)
			}
			changelog[action.Path] = append(changelog[action.Path], changeRecord{action.FromVersion, entry.Key()})
			byContent[contentKey{action.Path, entry.Key()}] = append(byContent[contentKey{action.Path, entry.Key()}], action.FromVersion)
		}
	}
	for path := range changelog {
		entry, ok := pkgs[latestVersion].Entry(path)
		if !ok {
			return nil, fmt.Errorf("version %s: no entry %q", latestVersion, path)
		}
		byContent[contentKey{path, entry.Key()}] = append(byContent[contentKey{path, entry.Key()}], latestVersion)
	}

	eachPatch := make(map[FileAction][]CachedBinaryPatch)
	var jobOwners []FileAction
	var jobs []func() error
	var results []CachedBinaryPatch // indexed like jobs, distinct slot per job

	enqueue := func(pf FileAction, build func() (CachedBinaryPatch, error)) {
		idx := len(jobs)
		jobOwners = append(jobOwners, pf)
		jobs = append(jobs, func() error {
			r, err := build()
			if err != nil {
				return err
			}
			results[idx] = r
			return nil
		})
	}

	for _, record := range records {
		for _, action := range record.Actions {
			if action.Kind != ActionPatch {
				continue
			}
			sourceEntry, ok := pkgs[action.FromVersion].Entry(action.Path)
			if !ok {
				return nil, fmt.Errorf("version %s: no entry %q", action.FromVersion, action.Path)
			}
			sourceKey := sourceEntry.Key()
			sourceIndex := previousIndex[action.FromVersion]

			// A consumer applying this chunk rolls forward from the
			// source version, so only strictly newer versions are
			// reachable targets.
			targetVersions := []string{latestVersion}
			for _, change := range changelog[action.Path] {
				if previousIndex[change.sinceVersion] >= sourceIndex {
					continue
				}
				if change.sinceVersion == action.FromVersion {
					continue
				}
				if !containsString(targetVersions, change.sinceVersion) {
					targetVersions = append(targetVersions, change.sinceVersion)
				}
			}

			// The same bytes reappearing at a later version means the
			// consumer already holds the target content; forward it
			// with a zero-cost copy.
			var withSourceContent []string
			for _, v := range byContent[contentKey{action.Path, sourceKey}] {
				if containsString(targetVersions, v) {
					withSourceContent = append(withSourceContent, v)
				}
			}
			if len(withSourceContent) > 0 {
				forwardTo := withSourceContent[len(withSourceContent)-1]
				eachPatch[action] = append(eachPatch[action], CachedBinaryPatch{
					PatchFile: action,
					ToVersion: forwardTo,
					Type:      manifest.PatchCopy,
				})
				continue
			}

			// Same target content at several versions: building one
			// delta per distinct content is enough, so keep only the
			// first carrier in candidate order.
			seen := make(map[pkgprov.EntryKey]struct{})
			var dedupped []string
			for _, v := range targetVersions {
				entry, ok := pkgs[v].Entry(action.Path)
				if !ok {
					return nil, fmt.Errorf("version %s: no entry %q", v, action.Path)
				}
				if _, dup := seen[entry.Key()]; dup {
					continue
				}
				seen[entry.Key()] = struct{}{}
				dedupped = append(dedupped, v)
			}

			for _, toVersion := range dedupped {
				targetEntry, _ := pkgs[toVersion].Entry(action.Path)
				origFile, err := b.extractFile(pkgs[action.FromVersion], action.Path)
				if err != nil {
					return nil, err
				}
				newFile, err := b.extractFile(pkgs[toVersion], action.Path)
				if err != nil {
					return nil, err
				}
				pf, oldEnt, newEnt, to := action, sourceEntry, targetEntry, toVersion
				enqueue(pf, func() (CachedBinaryPatch, error) {
					return b.makeZstdPatch(pf, oldEnt, newEnt, to, origFile, newFile)
				})
				enqueue(pf, func() (CachedBinaryPatch, error) {
					return b.makeBsdiffPatch(pf, oldEnt, newEnt, to, origFile, newFile)
				})
			}
		}
	}

	total := len(jobs)
	results = make([]CachedBinaryPatch, total)
	var completed atomic.Int64
	progress := func() {
		fmt.Fprintf(os.Stderr, "\rfind_best_patch: %d/%d", completed.Load(), total)
	}
	progress()
	wrapped := make([]func() error, len(jobs))
	for i, job := range jobs {
		job := job
		wrapped[i] = func() error {
			err := job()
			completed.Add(1)
			progress()
			return err
		}
	}
	err := runJobs(ctx, b.workers, wrapped)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}

	// Collect in submission order so ties stay deterministic.
	for i, owner := range jobOwners {
		eachPatch[owner] = append(eachPatch[owner], results[i])
	}

	resolved := make(map[FileAction]CachedBinaryPatch, len(eachPatch))
	for pf, candidates := range eachPatch {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.EstimatedCompressedSize < best.EstimatedCompressedSize {
				best = c
			}
		}
		resolved[pf] = best
	}
	return resolved, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
