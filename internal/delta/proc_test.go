package delta

import (
	"fmt"
	"os"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// testProc is an in-process Processor stand-in. Compression is real zstd
// (klauspost), so container tests can decode what it produces; patch
// generation writes deterministic stand-in payloads with known overheads,
// so strategy selection is predictable: a fake zstd patch costs 4 bytes
// over the target content, a fake bsdiff patch 16.
type testProc struct {
	enc *zstd.Encoder
}

func newTestProc(t *testing.T) *testProc {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	t.Cleanup(func() { enc.Close() })
	return &testProc{enc: enc}
}

func (p *testProc) CompressFile(infile, outfile string) error {
	data, err := os.ReadFile(infile)
	if err != nil {
		return err
	}
	return os.WriteFile(outfile, p.enc.EncodeAll(data, nil), 0o644)
}

func (p *testProc) CompressBytes(data []byte) ([]byte, error) {
	return p.enc.EncodeAll(data, nil), nil
}

func (p *testProc) GenerateZstdPatch(origFile, newFile, patchFile string) error {
	data, err := os.ReadFile(newFile)
	if err != nil {
		return err
	}
	return os.WriteFile(patchFile, append([]byte("ZSP:"), data...), 0o644)
}

func (p *testProc) GenerateBsdiffPatch(origFile, newFile, patchFile string) error {
	data, err := os.ReadFile(newFile)
	if err != nil {
		return err
	}
	return os.WriteFile(patchFile, append([]byte("BSDIFF-STANDIN::"), data...), 0o644)
}

// newTestBuilder wires a Builder into per-test temp directories.
func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	dir := t.TempDir()
	return NewBuilder(Config{
		Processor: newTestProc(t),
		CacheDir:  fmt.Sprintf("%s/cache", dir),
		OutDir:    fmt.Sprintf("%s/output", dir),
		Workers:   2,
	})
}
