package delta

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"makedelta/internal/iohelper"
	"makedelta/internal/manifest"
	"makedelta/internal/pkgprov"
)

// RunOptions names the package and the versions a run covers. The first
// version is the target; the rest are the previous versions consumers may
// hold, in channel order. NonlinearVersions is the subset whose position
// in the chain is decided by the ordering heuristic rather than taken as
// given.
type RunOptions struct {
	PackageName       string
	PackageVariant    string
	Versions          []string
	NonlinearVersions []string
}

// Run executes the whole pipeline: open the packages, order the previous
// versions, plan the file history, select patch strategies, build the
// chunks and amalgamate the final package file under the output
// directory.
func (b *Builder) Run(ctx context.Context, provider pkgprov.Provider, opts RunOptions) error {
	if len(opts.Versions) < 2 {
		return fmt.Errorf("need a target version and at least one previous version")
	}
	latest, previous := opts.Versions[0], opts.Versions[1:]

	pkgs := make(map[string]pkgprov.Package, len(opts.Versions))
	for _, v := range opts.Versions {
		pkg, err := provider.OpenPackage(opts.PackageName, v, opts.PackageVariant)
		if err != nil {
			return err
		}
		pkgs[v] = pkg
	}

	if err := os.MkdirAll(b.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	report, err := OpenReporter(filepath.Join(b.outDir, "delta_report.txt"))
	if err != nil {
		return err
	}
	defer report.Close()

	report.Printf("Target version: %s", latest)
	report.Printf("Previous versions:")
	for _, v := range previous {
		report.Printf("  %s", v)
	}

	previous = SortVersions(previous, opts.NonlinearVersions, func(x, y string) int {
		return b.packageDiff(pkgs[x], pkgs[y]).Len()
	})

	report.Printf("Sorted previous versions:")
	for _, v := range previous {
		report.Printf("  %s", v)
	}
	report.Reportf("")

	history := b.GenerateFileHistory(append([]string{latest}, previous...), pkgs)
	records := history.VersionChanges

	strategy, err := b.FindBestPatch(ctx, pkgs, records, latest, previous)
	if err != nil {
		return err
	}

	for _, record := range records {
		report.Reportf("To update from version %v", record.BaseVersion)
		for _, action := range record.Actions {
			report.Reportf("  %s", action)
		}
		report.Reportf("")
	}

	previousIndex := make(map[string]int, len(previous))
	for i, v := range previous {
		previousIndex[v] = i
	}
	report.Reportf("Binary patch strategy:")
	chosen := make([]FileAction, 0, len(strategy))
	for pf := range strategy {
		chosen = append(chosen, pf)
	}
	sort.Slice(chosen, func(i, j int) bool {
		if previousIndex[chosen[i].FromVersion] != previousIndex[chosen[j].FromVersion] {
			return previousIndex[chosen[i].FromVersion] < previousIndex[chosen[j].FromVersion]
		}
		return chosen[i].Path < chosen[j].Path
	})
	for _, pf := range chosen {
		patch := strategy[pf]
		report.Reportf("  %s/%s \t->\t %s \t(%s, est. compressed %s)",
			pf.FromVersion, pf.Path, patch.ToVersion, patch.Type,
			iohelper.FormatSize(patch.EstimatedCompressedSize))
	}

	report.Reportf("Unchanged files:")
	for _, name := range history.UnchangedNames {
		report.Reportf("  KEEP     %s", name)
	}

	if err := os.MkdirAll(b.chunkTempDir, 0o755); err != nil {
		return fmt.Errorf("create chunk temp dir: %w", err)
	}

	// Chunk temp files are numbered in container order: delta chunks from
	// 1, then the patch fallback and unchanged chunks as the last two of
	// len(records)+3 numbers; number len(records)+1 is not used.
	chunkCount := len(records) + 3
	seqLen := len(fmt.Sprint(chunkCount))
	chunkName := func(seq int, label string) string {
		return filepath.Join(b.chunkTempDir, fmt.Sprintf("%0*d-%s.tar", seqLen, seq, label))
	}

	var jobs []func() error
	deltaChunks := make([]string, len(records))
	for i, record := range records {
		i, record := i, record
		chunkFile := chunkName(i+1, record.PatchBaseVersion)
		deltaChunks[i] = chunkFile + ".zst"
		jobs = append(jobs, func() error {
			return b.createDeltaChunk(chunkFile, record, strategy, pkgs, latest, opts.PackageName)
		})
	}
	patchFallbackChunk := chunkName(chunkCount-1, "delta-fallback")
	jobs = append(jobs, func() error {
		return b.createPatchFallbackChunk(patchFallbackChunk, strategy, pkgs[latest])
	})
	unchangedChunk := chunkName(chunkCount, "delta-unchanged")
	jobs = append(jobs, func() error {
		return b.createUnchangedChunk(unchangedChunk, history.UnchangedNames, pkgs[latest])
	})
	if err := runJobs(ctx, b.workers, jobs); err != nil {
		return err
	}

	pkgManifest := manifest.PackageManifest{
		Name:    opts.PackageName,
		Version: latest,
		Variant: opts.PackageVariant,
	}
	amal := b.NewAmalgamator(pkgManifest, previous)
	for i, record := range records {
		if err := amal.AddChunk(manifest.VersionsTarget(record.BaseVersion), deltaChunks[i]); err != nil {
			return err
		}
	}
	if err := amal.AddChunk(manifest.TargetPatchFallback, patchFallbackChunk+".zst"); err != nil {
		return err
	}
	if err := amal.AddChunk(manifest.TargetFallback, unchangedChunk+".zst"); err != nil {
		return err
	}

	outName := fmt.Sprintf("%s-delta.tar.zst", pkgprov.FullName(pkgs[latest]))
	return amal.Build(filepath.Join(b.outDir, outName))
}
