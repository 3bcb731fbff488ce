package delta

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"makedelta/internal/iohelper"
	"makedelta/internal/manifest"
	"makedelta/internal/pkgprov"
)

// addFileToTar streams a disk file into the tar under arcPath.
func addFileToTar(tw *tar.Writer, src, arcPath string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("tar entry %s: %w", arcPath, err)
	}
	hdr := &tar.Header{
		Name:    arcPath,
		Size:    info.Size(),
		Mode:    0o644,
		ModTime: info.ModTime(),
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar entry %s: %w", arcPath, err)
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("tar entry %s: %w", arcPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("tar entry %s: %w", arcPath, err)
	}
	return nil
}

// copyFromPkgToTar streams a package entry into the tar at its natural
// path, carrying the entry's size, mtime and mode.
func copyFromPkgToTar(tw *tar.Writer, pkg pkgprov.Package, name string) error {
	entry, ok := pkg.Entry(name)
	if !ok {
		return fmt.Errorf("package %s: no entry %q", pkgprov.FullName(pkg), name)
	}
	hdr := &tar.Header{
		Name:    entry.Name,
		Size:    entry.Size,
		Mode:    entry.Mode & 0o7777,
		ModTime: time.Unix(entry.Mtime, 0),
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("tar entry %s: %w", name, err)
	}
	rc, err := pkg.Open(name)
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(tw, rc); err != nil {
		return fmt.Errorf("tar entry %s: %w", name, err)
	}
	return nil
}

// createDeltaChunk writes the tar chunk for one PackageContentDiff and
// compresses it to a .zst sibling.
//
// The chunk manifest is the first entry, followed by the patch payloads
// and then every added or replaced file streamed from the latest package.
// The tar end-of-archive marker is deliberately not written: chunks are
// concatenated in the final package and must decode as one continuous
// stream with a single EOF, carried by the terminal fallback chunk.
func (b *Builder) createDeltaChunk(chunkFile string, record PackageContentDiff, strategy map[FileAction]CachedBinaryPatch, pkgs map[string]pkgprov.Package, latestVersion, packageName string) error {
	logrus.WithField("chunk", chunkFile).Info("creating delta chunk")

	chunkManifest := manifest.ChunkManifest{
		PatchBase:   record.PatchBaseVersion,
		Base:        record.BaseVersion,
		RemoveFiles: []string{},
		PatchFiles:  []manifest.PatchFileRecord{},
	}

	type pendingFile struct {
		src     string
		arcPath string
	}
	var pending []pendingFile

	for _, action := range record.Actions {
		switch action.Kind {
		case ActionRemove:
			chunkManifest.RemoveFiles = append(chunkManifest.RemoveFiles, action.Path)

		case ActionPatch:
			patch, ok := strategy[action]
			if !ok {
				return fmt.Errorf("no patch strategy for %s", action)
			}
			oldFile, err := b.extractFile(pkgs[action.FromVersion], action.Path)
			if err != nil {
				return err
			}
			oldSize, err := fileSize(oldFile)
			if err != nil {
				return err
			}
			oldHash, err := b.sha256File(oldFile)
			if err != nil {
				return err
			}

			newSize, newHash := oldSize, oldHash
			if patch.Type != manifest.PatchCopy {
				newFile, err := b.extractFile(pkgs[patch.ToVersion], action.Path)
				if err != nil {
					return err
				}
				if newSize, err = fileSize(newFile); err != nil {
					return err
				}
				if newHash, err = b.sha256File(newFile); err != nil {
					return err
				}
			}

			archivePath := ""
			if patch.CachedDeltaFile != "" {
				patchHash, err := b.sha256File(patch.CachedDeltaFile)
				if err != nil {
					return err
				}
				archivePath = manifest.PatchEntryPath(filepath.Base(action.Path), patchHash[:8], patch.Type)
				pending = append(pending, pendingFile{src: patch.CachedDeltaFile, arcPath: archivePath})
			}

			chunkManifest.PatchFiles = append(chunkManifest.PatchFiles, manifest.PatchFileRecord{
				File:       action.Path,
				Patch:      archivePath,
				PatchType:  patch.Type,
				OldHash:    "sha256:" + oldHash,
				OldSize:    oldSize,
				NewVersion: patch.ToVersion,
				NewHash:    "sha256:" + newHash,
				NewSize:    newSize,
			})
		}
	}

	err := iohelper.SafeWrite(chunkFile, func(w *os.File) error {
		tw := tar.NewWriter(w)
		data, err := json.Marshal(chunkManifest)
		if err != nil {
			return fmt.Errorf("marshal chunk manifest: %w", err)
		}
		if err := iohelper.WriteTarBytes(tw, manifest.ChunkManifestPath(packageName, record.PatchBaseVersion), data); err != nil {
			return err
		}
		for _, p := range pending {
			if err := addFileToTar(tw, p.src, p.arcPath); err != nil {
				return err
			}
		}
		for _, action := range record.Actions {
			if action.Kind == ActionAdd || action.Kind == ActionReplace {
				if err := copyFromPkgToTar(tw, pkgs[latestVersion], action.Path); err != nil {
					return err
				}
			}
		}
		// Flush, not Close: intermediate chunks omit the tar EOF blocks.
		return tw.Flush()
	})
	if err != nil {
		return err
	}
	return b.proc.CompressFile(chunkFile, chunkFile+".zst")
}

// createPatchFallbackChunk writes the tar holding the latest version's
// full copy of every patchable path. A consumer whose local file fails
// its expected hash pulls the whole file from here instead of patching.
func (b *Builder) createPatchFallbackChunk(chunkFile string, strategy map[FileAction]CachedBinaryPatch, latest pkgprov.Package) error {
	logrus.WithField("chunk", chunkFile).Info("creating patch fallback chunk")

	nameSet := make(map[string]struct{})
	for pf := range strategy {
		nameSet[pf.Path] = struct{}{}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	err := iohelper.SafeWrite(chunkFile, func(w *os.File) error {
		tw := tar.NewWriter(w)
		for _, name := range names {
			cached, err := b.extractFile(latest, name)
			if err != nil {
				return err
			}
			if err := addFileToTar(tw, cached, name); err != nil {
				return err
			}
		}
		return tw.Flush()
	})
	if err != nil {
		return err
	}
	return b.proc.CompressFile(chunkFile, chunkFile+".zst")
}

// createUnchangedChunk writes the terminal fallback tar of every file
// unchanged across the covered history. This is the only chunk carrying
// the tar end-of-archive marker: concatenated with the others it
// terminates the single combined stream.
func (b *Builder) createUnchangedChunk(chunkFile string, unchangedNames []string, latest pkgprov.Package) error {
	logrus.WithField("chunk", chunkFile).Info("creating unchanged chunk")

	err := iohelper.SafeWrite(chunkFile, func(w *os.File) error {
		tw := tar.NewWriter(w)
		for _, name := range unchangedNames {
			if err := copyFromPkgToTar(tw, latest, name); err != nil {
				return err
			}
		}
		return tw.Close()
	})
	if err != nil {
		return err
	}
	return b.proc.CompressFile(chunkFile, chunkFile+".zst")
}
