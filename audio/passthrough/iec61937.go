// Package passthrough wraps assembled DTS frames in IEC 61937 burst
// framing for compressed-audio passthrough over an S/PDIF-style PCM
// carrier, and plays the resulting burst stream through an audio sink.
package passthrough

// IEC 61937 preamble sync words, transmitted as the first two 16-bit
// words of every burst.
const (
	preamblePa = 0xF872
	preamblePb = 0x4E1F
)

// Burst-info (Pc) data-type codes for DTS core substreams, selected by
// the core frame's samples-per-frame count. Values per IEC 61937-3.
const (
	dataTypeDTSI   = 11 // 512 samples per frame
	dataTypeDTSII  = 12 // 1024 samples per frame
	dataTypeDTSIII = 13 // 2048 samples per frame
)

// burstDataType returns the Pc data-type code for a DTS core frame with
// the given samples-per-frame count, defaulting to DTS-I if the count
// doesn't match a standard burst size.
func burstDataType(samplesPerFrame int) uint16 {
	switch samplesPerFrame {
	case 1024:
		return dataTypeDTSII
	case 2048:
		return dataTypeDTSIII
	default:
		return dataTypeDTSI
	}
}

// burstPeriodBytes returns the IEC 61937 burst repetition period for a
// DTS core frame: one PCM frame (left+right 16-bit samples) per audio
// sample in the DTS frame.
func burstPeriodBytes(samplesPerFrame int) int {
	return samplesPerFrame * 4
}

// encodeBurst wraps payload (a single DTS frame's bytes) in an IEC 61937
// burst: Pa/Pb/Pc/Pd preamble words followed by the payload, zero-padded
// to the burst repetition period for samplesPerFrame. A payload that does
// not fit within one period lengthens the burst to the payload plus the
// 8 preamble bytes, rounded up to an even length, so it is never
// truncated.
func encodeBurst(payload []byte, samplesPerFrame int) []byte {
	period := burstPeriodBytes(samplesPerFrame)
	if needed := len(payload) + 8; needed > period {
		period = needed + needed%2
	}
	out := make([]byte, period)

	putWordBE(out[0:2], preamblePa)
	putWordBE(out[2:4], preamblePb)
	putWordBE(out[4:6], burstDataType(samplesPerFrame))
	putWordBE(out[6:8], uint16(len(payload)*8))

	copy(out[8:], payload)
	return out
}

func putWordBE(dst []byte, v uint16) {
	dst[0] = byte(v >> 8)
	dst[1] = byte(v)
}
