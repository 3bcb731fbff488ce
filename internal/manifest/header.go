package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// The package file opens with a 16-byte zstd skippable frame so that a
// generic zstd tool can decompress the whole file and see only the
// concatenated chunks:
//
//	5A 2A 4D 18      zstd skippable frame magic, variant 0x8
//	08 00 00 00      frame payload length
//	'M' 'U' 'E' '1'  update package format, version 1
//	?? ?? ?? ??      length of the compressed manifest chunk (little-endian)
const HeaderSize = 16

var headerPrefix = []byte{0x5A, 0x2A, 0x4D, 0x18, 0x08, 0x00, 0x00, 0x00, 'M', 'U', 'E', '1'}

// EncodeHeader builds the container header for a compressed manifest chunk
// of the given length.
func EncodeHeader(manifestChunkLen uint32) []byte {
	header := make([]byte, 0, HeaderSize)
	header = append(header, headerPrefix...)
	header = binary.LittleEndian.AppendUint32(header, manifestChunkLen)
	return header
}

// DecodeHeader validates a container header and returns the length of the
// compressed manifest chunk that follows it.
func DecodeHeader(header []byte) (uint32, error) {
	if len(header) < HeaderSize {
		return 0, fmt.Errorf("package header truncated: %d bytes", len(header))
	}
	if !bytes.Equal(header[:len(headerPrefix)], headerPrefix) {
		return 0, fmt.Errorf("not an update package: bad header magic")
	}
	return binary.LittleEndian.Uint32(header[len(headerPrefix):HeaderSize]), nil
}
