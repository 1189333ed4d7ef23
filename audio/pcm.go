package audio

import (
	"encoding/binary"
	"math"
)

// appendFloat32 serializes samples as pcm_f32le into dst, reusing its capacity.
func appendFloat32(dst []byte, samples []float32) []byte {
	dst = dst[:0]
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// appendInt16 serializes samples as pcm_s16le into dst, reusing its capacity.
func appendInt16(dst []byte, samples []int16) []byte {
	dst = dst[:0]
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
