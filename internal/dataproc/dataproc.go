// Package dataproc drives the data-processing tools: the zstd compressor
// and the bsdiff binary-diff generator.
//
// Chunk compression and patch generation shell out to the real zstd
// binary, whose --patch-from and --ultra -22 modes the consumer contract
// depends on. In-memory compression runs in process through
// klauspost/compress. Binary diffs default to the in-process bsdiff
// implementation and can be redirected to an external tool via MAA_BSDIFF.
package dataproc

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/klauspost/compress/zstd"
	"github.com/kr/binarydist"

	"makedelta/internal/iohelper"
)

// Processor is the set of data-processing operations the delta pipeline
// needs. Implemented by Runner; tests substitute an in-process stand-in.
type Processor interface {
	// CompressFile compresses infile to outfile at maximum level.
	CompressFile(infile, outfile string) error
	// CompressBytes compresses a buffer at maximum level.
	CompressBytes(data []byte) ([]byte, error)
	// GenerateZstdPatch writes a zstd frame encoding newFile against
	// origFile as reference.
	GenerateZstdPatch(origFile, newFile, patchFile string) error
	// GenerateBsdiffPatch writes a bsdiff delta from origFile to newFile.
	GenerateBsdiffPatch(origFile, newFile, patchFile string) error
}

// Runner resolves and invokes the configured tools.
type Runner struct {
	zstdPath   string
	bsdiffPath string // empty means the built-in bsdiff implementation
	encoder    *zstd.Encoder
}

// NewRunner resolves the external tools from the environment. ZSTD names
// the compressor binary (default "zstd") and must be on PATH. MAA_BSDIFF,
// when set, names an external bsdiff tool; unset selects the built-in
// implementation. A configured tool that cannot be found is a fatal
// configuration error, reported before any work starts.
func NewRunner() (*Runner, error) {
	zstdName := os.Getenv("ZSTD")
	if zstdName == "" {
		zstdName = "zstd"
	}
	zstdPath, err := exec.LookPath(zstdName)
	if err != nil {
		return nil, fmt.Errorf("ZSTD executable not found: %s", zstdName)
	}

	bsdiffPath := ""
	if bsdiffName := os.Getenv("MAA_BSDIFF"); bsdiffName != "" {
		bsdiffPath, err = exec.LookPath(bsdiffName)
		if err != nil {
			return nil, fmt.Errorf("MAA_BSDIFF executable not found: %s", bsdiffName)
		}
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}

	return &Runner{zstdPath: zstdPath, bsdiffPath: bsdiffPath, encoder: encoder}, nil
}

func (r *Runner) run(args ...string) error {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	return nil
}

// CompressFile compresses infile to outfile with zstd --ultra -22,
// writing atomically.
func (r *Runner) CompressFile(infile, outfile string) error {
	return iohelper.SafeOutputName(outfile, func(tmp string) error {
		return r.run(r.zstdPath, "-q", "--ultra", "-22", "-f", infile, "-o", tmp)
	})
}

// CompressBytes compresses a buffer in process at maximum level.
func (r *Runner) CompressBytes(data []byte) ([]byte, error) {
	return r.encoder.EncodeAll(data, nil), nil
}

// GenerateZstdPatch produces a framed patch encoding newFile against
// origFile, equivalent to applying the patch to origFile at the consumer.
func (r *Runner) GenerateZstdPatch(origFile, newFile, patchFile string) error {
	return iohelper.SafeOutputName(patchFile, func(tmp string) error {
		return r.run(r.zstdPath, "-q", "--ultra", "-22", "-f", "--patch-from", origFile, newFile, "-o", tmp)
	})
}

// GenerateBsdiffPatch produces a bsdiff delta from origFile to newFile.
func (r *Runner) GenerateBsdiffPatch(origFile, newFile, patchFile string) error {
	if r.bsdiffPath != "" {
		return iohelper.SafeOutputName(patchFile, func(tmp string) error {
			return r.run(r.bsdiffPath, origFile, newFile, tmp)
		})
	}
	return iohelper.SafeWrite(patchFile, func(w *os.File) error {
		oldF, err := os.Open(origFile)
		if err != nil {
			return err
		}
		defer oldF.Close()
		newF, err := os.Open(newFile)
		if err != nil {
			return err
		}
		defer newF.Close()
		if err := binarydist.Diff(oldF, newF, w); err != nil {
			return fmt.Errorf("bsdiff %s: %w", newFile, err)
		}
		return nil
	})
}
