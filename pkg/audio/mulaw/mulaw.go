// ABOUTME: 8-bit logarithmic (mu-law family) sample codec
// ABOUTME: Converts between compressed bytes and 16-bit linear samples
package mulaw

const (
	// Clip is the largest magnitude Encode represents; larger inputs are clamped.
	Clip = 32635

	// Bias is added to the magnitude before the exponent search.
	Bias = 0x84

	// Silence is the compressed code for a zero sample.
	Silence byte = 0xFF

	signBit      = 0x80
	exponentMask = 0x70
	mantissaMask = 0x0F
)

// Decode expands a compressed byte into a linear sample.
//
// The expansion is the low-fidelity variant used by existing bridge clients:
// it does not subtract the bias, so Decode(Encode(x)) only approximates x.
// High exponents overflow 16 bits and are saturated.
func Decode(b byte) int16 {
	v := ^b
	exponent := (v & exponentMask) >> 4
	mantissa := int32(v & mantissaMask)

	sample := ((mantissa << 4) + 0x08) << (exponent + 2)
	if v&signBit != 0 {
		sample = -sample
	}
	return saturate(sample)
}

// Encode compresses a linear sample into a single byte.
func Encode(sample int16) byte {
	s := int32(sample)

	var sign int32
	if s < 0 {
		sign = signBit
		s = -s
	}
	if s > Clip {
		s = Clip
	}
	s += Bias

	exponent := int32(7)
	for mask := int32(0x4000); s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & mantissaMask

	return ^byte(sign | exponent<<4 | mantissa)
}

// DecodeFrame decodes min(len(dst), len(src)) bytes into dst.
func DecodeFrame(dst []int16, src []byte) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = Decode(src[i])
	}
	return n
}

// EncodeFrame encodes min(len(dst), len(src)) samples into dst.
func EncodeFrame(dst []byte, src []int16) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = Encode(src[i])
	}
	return n
}

// Clamp16 limits a wide accumulator value to the int16 range.
func Clamp16(v int32) int16 {
	return saturate(v)
}

func saturate(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
