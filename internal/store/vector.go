package store

import (
	"encoding/binary"
	"math"
)

// encodeVector serializes a float32 vector as little-endian bytes, the
// same layout ann.bin uses, so a BLOB column and the snapshot file
// agree on wire format.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := range out {
		if (i+1)*4 > len(blob) {
			break
		}
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
