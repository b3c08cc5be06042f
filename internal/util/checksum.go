package util

import (
	"encoding/binary"
	"hash/crc32"
)

// ChecksumSize is the length of the trailer written by AppendChecksum
const ChecksumSize = 4

var crc32Table = crc32.MakeTable(crc32.IEEE)

// ComputeChecksum computes a CRC32 (IEEE) checksum
func ComputeChecksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

// AppendChecksum appends the little-endian checksum of data to it.
// The result may share data's backing array.
func AppendChecksum(data []byte) []byte {
	return binary.LittleEndian.AppendUint32(data, ComputeChecksum(data))
}

// ValidateAndStripChecksum splits [data][checksum] and reports whether the
// trailer matches
func ValidateAndStripChecksum(framed []byte) ([]byte, bool) {
	if len(framed) < ChecksumSize {
		return nil, false
	}
	n := len(framed) - ChecksumSize
	data := framed[:n]
	return data, binary.LittleEndian.Uint32(framed[n:]) == ComputeChecksum(data)
}
