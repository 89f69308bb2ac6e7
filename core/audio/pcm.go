package audio

import "encoding/binary"

// EncodeLinear16 writes samples as little-endian signed 16-bit PCM.
func EncodeLinear16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// DecodeLinear16 fills dst from little-endian PCM and returns how many
// samples were written. A trailing odd byte is ignored.
func DecodeLinear16(dst []int16, pcm []byte) int {
	n := min(len(dst), len(pcm)/2)
	for i := range n {
		dst[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return n
}
