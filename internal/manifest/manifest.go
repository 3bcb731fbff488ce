// Package manifest defines the consumer-facing JSON documents and the
// binary header of the delta package container.
package manifest

import (
	"encoding/json"
	"fmt"
)

// PatchType identifies the algorithm a patch entry was produced with.
type PatchType string

const (
	PatchZstd   PatchType = "zstd"
	PatchBsdiff PatchType = "bsdiff"
	// PatchCopy means no delta is needed: the consumer's existing bytes
	// already match the target version's bytes.
	PatchCopy PatchType = "copy"
)

// ChunkTarget is either the list of consumer versions a chunk applies to,
// or one of the literals "patch_fallback" / "fallback".
type ChunkTarget struct {
	Versions []string
	Literal  string
}

// TargetPatchFallback marks the chunk holding full copies of every
// patchable file.
var TargetPatchFallback = ChunkTarget{Literal: "patch_fallback"}

// TargetFallback marks the terminal chunk of unchanged files.
var TargetFallback = ChunkTarget{Literal: "fallback"}

// VersionsTarget builds a ChunkTarget for a list of consumer versions.
func VersionsTarget(versions []string) ChunkTarget {
	return ChunkTarget{Versions: versions}
}

// MarshalJSON renders the literal as a bare string and the version list as
// an array.
func (t ChunkTarget) MarshalJSON() ([]byte, error) {
	if t.Literal != "" {
		return json.Marshal(t.Literal)
	}
	return json.Marshal(t.Versions)
}

// UnmarshalJSON accepts either representation.
func (t *ChunkTarget) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "patch_fallback" && s != "fallback" {
			return fmt.Errorf("unknown chunk target %q", s)
		}
		t.Literal = s
		t.Versions = nil
		return nil
	}
	t.Literal = ""
	return json.Unmarshal(data, &t.Versions)
}

// Chunk locates one compressed chunk inside the package file. Offset is
// relative to the start of the compressed manifest chunk, not the file
// start.
type Chunk struct {
	Target ChunkTarget `json:"target"`
	Offset int64       `json:"offset"`
	Size   int64       `json:"size"`
	Hash   string      `json:"hash"`
}

// PackageManifest names the package a delta file targets.
type PackageManifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Variant string `json:"variant,omitempty"`
}

// DeltaPackageManifest lists the versions the package can be applied to
// and the chunks it carries.
type DeltaPackageManifest struct {
	ForVersion []string `json:"for_version"`
	Chunks     []Chunk  `json:"chunks"`
}

// PatchFileRecord describes one per-file patch inside a chunk manifest.
type PatchFileRecord struct {
	File       string    `json:"file"`
	Patch      string    `json:"patch"`
	PatchType  PatchType `json:"patch_type"`
	OldHash    string    `json:"old_hash"`
	OldSize    int64     `json:"old_size"`
	NewVersion string    `json:"new_version"`
	NewHash    string    `json:"new_hash"`
	NewSize    int64     `json:"new_size"`
}

// ChunkManifest is the first entry of every delta chunk tar. A consumer at
// patch_base applies patch_files; a consumer at any version in base applies
// remove_files and the chunk's regular file entries.
type ChunkManifest struct {
	PatchBase   string            `json:"patch_base"`
	Base        []string          `json:"base"`
	RemoveFiles []string          `json:"remove_files"`
	PatchFiles  []PatchFileRecord `json:"patch_files"`
}

// Archive paths inside the container, fixed by the consumer contract.

// PackageManifestPath is the tar path of the PackageManifest entry.
func PackageManifestPath(name string) string {
	return fmt.Sprintf(".maa_update/packages/%s/manifest.json", name)
}

// DeltaManifestPath is the tar path of the DeltaPackageManifest entry.
func DeltaManifestPath(name, version string) string {
	return fmt.Sprintf(".maa_update/delta/%s/%s/delta_manifest.json", name, version)
}

// ChunkManifestPath is the tar path of a chunk's ChunkManifest entry.
func ChunkManifestPath(name, patchBase string) string {
	return fmt.Sprintf(".maa_update/delta/%s/%s/chunk_manifest.json", name, patchBase)
}

// PatchEntryPath is the tar path of a patch payload. Consumers treat these
// entries as transient and drop them after applying the update.
func PatchEntryPath(baseName, hashPrefix string, patchType PatchType) string {
	return fmt.Sprintf(".maa_update/temp/%s.%s.%s", baseName, hashPrefix, patchType)
}
