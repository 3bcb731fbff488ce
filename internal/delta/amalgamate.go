package delta

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"makedelta/internal/iohelper"
	"makedelta/internal/manifest"
)

// Amalgamator assembles the final package file: the 16-byte header, the
// compressed manifest chunk and every chunk body in order. Chunk offsets
// are recorded relative to the start of the compressed manifest chunk.
type Amalgamator struct {
	pkgManifest manifest.PackageManifest
	forVersion  []string

	chunks []amalChunk
	offset int64

	builder *Builder
}

type amalChunk struct {
	chunk manifest.Chunk
	file  string
}

// NewAmalgamator starts an empty package for the given manifest and
// consumer version list.
func (b *Builder) NewAmalgamator(pkgManifest manifest.PackageManifest, forVersion []string) *Amalgamator {
	return &Amalgamator{pkgManifest: pkgManifest, forVersion: forVersion, builder: b}
}

// AddChunk appends one compressed chunk file to the package body.
func (a *Amalgamator) AddChunk(target manifest.ChunkTarget, compressedChunk string) error {
	size, err := fileSize(compressedChunk)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", compressedChunk, err)
	}
	hash, err := a.builder.sha256File(compressedChunk)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", compressedChunk, err)
	}
	a.chunks = append(a.chunks, amalChunk{
		chunk: manifest.Chunk{
			Target: target,
			Offset: a.offset,
			Size:   size,
			Hash:   "sha256:" + hash,
		},
		file: compressedChunk,
	})
	a.offset += size
	return nil
}

// Build writes the package file atomically: header, compressed manifest
// chunk, then every chunk body in the order added.
func (a *Amalgamator) Build(outFile string) error {
	chunks := make([]manifest.Chunk, len(a.chunks))
	for i, c := range a.chunks {
		chunks[i] = c.chunk
	}
	deltaManifest := manifest.DeltaPackageManifest{ForVersion: a.forVersion, Chunks: chunks}

	// The manifest chunk is a PAX tar built in memory. Like the delta
	// chunks it carries no tar EOF blocks; the single terminator of the
	// concatenated stream lives at the end of the fallback chunk.
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	pkgBytes, err := json.Marshal(a.pkgManifest)
	if err != nil {
		return fmt.Errorf("marshal package manifest: %w", err)
	}
	deltaBytes, err := json.Marshal(deltaManifest)
	if err != nil {
		return fmt.Errorf("marshal delta manifest: %w", err)
	}
	if err := iohelper.WriteTarBytes(tw, manifest.PackageManifestPath(a.pkgManifest.Name), pkgBytes); err != nil {
		return err
	}
	if err := iohelper.WriteTarBytes(tw, manifest.DeltaManifestPath(a.pkgManifest.Name, a.pkgManifest.Version), deltaBytes); err != nil {
		return err
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush manifest chunk: %w", err)
	}

	compressed, err := a.builder.proc.CompressBytes(buf.Bytes())
	if err != nil {
		return fmt.Errorf("compress manifest chunk: %w", err)
	}

	return iohelper.SafeWrite(outFile, func(w *os.File) error {
		if _, err := w.Write(manifest.EncodeHeader(uint32(len(compressed)))); err != nil {
			return err
		}
		if _, err := w.Write(compressed); err != nil {
			return err
		}
		for _, c := range a.chunks {
			f, err := os.Open(c.file)
			if err != nil {
				return err
			}
			_, err = io.Copy(w, f)
			f.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
}
