package dts

// Synthetic byte-builder helpers for constructing valid DTS frames in
// tests, mirroring the field layouts in header.go exactly.

type bitPacker struct {
	bits []byte // one bit per element, MSB-first order of insertion
}

func (p *bitPacker) putUint(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		p.bits = append(p.bits, byte((v>>uint(i))&1))
	}
}

func (p *bitPacker) bytes() []byte {
	out := make([]byte, (len(p.bits)+7)/8)
	for i, b := range p.bits {
		if b != 0 {
			out[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return out
}

// buildCoreHeaderBits builds the Core header bit fields (not including the
// sync word) for the given nblks/fsize/amode/sfreq/lff, skipping the
// flag fields with zero values.
func buildCoreHeaderBits(nblks, fsize, amode, sfreq, lff uint32) []byte {
	p := &bitPacker{}
	p.putUint(0, 7)      // ftype+short+crc
	p.putUint(nblks, 7)  // nblks
	p.putUint(fsize, 14) // fsize
	p.putUint(amode, 6)  // amode
	p.putUint(sfreq, 4)  // sfreq
	p.putUint(0, 15)     // rate/flags
	p.putUint(lff, 2)    // lff
	return p.bytes()
}

// buildCoreFrame builds a full standalone Core frame: sync + header +
// zero-filled payload, total declared frameSizeBytes long.
func buildCoreFrame(nblks, amode, sfreq, lff uint32, frameSizeBytes int) []byte {
	hdr := buildCoreHeaderBits(nblks, uint32(frameSizeBytes-1), amode, sfreq, lff)
	frame := make([]byte, 0, frameSizeBytes)
	frame = appendSync(frame, SyncCore16BE)
	frame = append(frame, hdr...)
	for len(frame) < frameSizeBytes {
		frame = append(frame, 0)
	}
	return frame[:frameSizeBytes]
}

// buildExssHeaderBits builds a minimal ExSS header body (after sync),
// header_size_type=0, with one audio-present / one-asset static fields
// block, for the given extSSIndex / durationCode(3-bit raw) /
// refClockCode / sampleRateIdx / channelsMinus1.
func buildExssHeaderBits(extSSIndex, durationCodeRaw, refClockCode, sampleRateIdx, channelsMinus1 uint32, headerSizeBytes, fsizeBytes int) []byte {
	p := &bitPacker{}
	p.putUint(0, 8)            // UserDefinedBits
	p.putUint(extSSIndex, 2)   // ext_ss_index
	p.putUint(0, 1)            // header_size_type = 0 -> 8/16 bit fields
	p.putUint(uint32(headerSizeBytes-1), 8)
	p.putUint(uint32(fsizeBytes-1), 16)
	p.putUint(1, 1) // static_fields_present
	p.putUint(refClockCode, 2)
	p.putUint(durationCodeRaw, 3)
	p.putUint(0, 1) // bTimeStampFlag = 0
	p.putUint(0, 3) // nuNumAudioPresnt - 1 = 0 -> 1 present
	p.putUint(0, 3) // nuNumAssets - 1 = 0 -> 1 asset
	p.putUint(0, int(extSSIndex+1)) // active exss mask for the 1 audio-present entry
	p.putUint(0, 1)            // bMixMetaDataEnbl = 0
	// asset fsize array: 1 asset * 16 bits (fsizeBits)
	p.putUint(0, 16)
	// asset descriptor
	p.putUint(0, 9) // nuAssetDescriptFsize - 1
	p.putUint(0, 3) // nuAssetIndex
	p.putUint(0, 1) // bAssetTypeDescrPresent
	p.putUint(0, 1) // bLanguageDescrPresent
	p.putUint(0, 1) // bInfoTextPresent
	p.putUint(0, 5) // nuBitResolution
	p.putUint(sampleRateIdx, 4)
	p.putUint(channelsMinus1, 8)
	return p.bytes()
}

func appendSync(dst []byte, sync uint32) []byte {
	return append(dst, byte(sync>>24), byte(sync>>16), byte(sync>>8), byte(sync))
}

// buildExssFrame builds a full standalone ExSS frame: sync + static-fields
// header + first asset descriptor, with no trailing payload bytes, for
// chaining directly into a following frame's sync.
func buildExssFrame(extSSIndex, durationCodeRaw, refClockCode, sampleRateIdx, channelsMinus1 uint32) []byte {
	frame := appendSync(nil, SyncExss16BE)
	frame = append(frame, buildExssHeaderBits(extSSIndex, durationCodeRaw, refClockCode, sampleRateIdx, channelsMinus1, 14, 2048)...)
	return frame
}

// buildExssSyncWindow builds a bare sync word followed by a 6-byte ExSS
// header window (UserDefinedBits + ext_ss_index, zero-padded), enough for
// the assembler's CheckingExssHeader state to extract an ext_ss_index
// without decoding a full header.
func buildExssSyncWindow(extSSIndex uint32) []byte {
	p := &bitPacker{}
	p.putUint(0, 8)           // UserDefinedBits
	p.putUint(extSSIndex, 2)  // ext_ss_index
	p.putUint(0, 48-8-2)      // pad to a 6-byte window
	return append(appendSync(nil, SyncExss16BE), p.bytes()...)
}

// buildCorePlusExssFrame builds a single Core-plus-ExSS frame: a Core
// sync+header, a run of filler payload bytes, then an ExSS sync+header
// and a run of filler payload bytes, with no terminating sync of its own
// (the next frame's leading sync closes it).
func buildCorePlusExssFrame() []byte {
	frame := appendSync(nil, SyncCore16BE)
	frame = append(frame, buildCoreHeaderBits(7, 2000, 1, 13, 1)...)
	for i := 0; i < 4; i++ {
		frame = append(frame, 0xAA)
	}
	frame = append(frame, appendSync(nil, SyncExss16BE)...)
	frame = append(frame, buildExssHeaderBits(0, 0, 2, 12, 5, 14, 2048)...)
	for i := 0; i < 4; i++ {
		frame = append(frame, 0xBB)
	}
	return frame
}

// swapLE16 returns a copy of data with every adjacent byte pair swapped,
// simulating a little-endian carrier form of a big-endian frame.
func swapLE16(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	for i := 0; i+1 < len(out); i += 2 {
		out[i], out[i+1] = out[i+1], out[i]
	}
	return out
}

// pack14From16BE converts a 16-bit-BE buffer into the 14-bit-packed BE
// carrier form: each 16-bit word's low 14 bits become the payload, top 2
// bits copied from the group's top bit (sign extension, which is what
// turns 0x7FFE8001 into the 0x1FFFE800 sync), inverse of repack14To16.
func pack14From16BE(be []byte) []byte {
	// Treat be as a stream of 14-bit groups (its own bit-packed content,
	// already dense), and re-expand into 16-bit words with 2 sign-extended
	// pad bits up front, which is what a real 14-bit-packed encoder would
	// have produced before repack14To16 strips it back out.
	cur := NewBitCursor(be)
	nGroups := (len(be) * 8) / 14
	out := make([]byte, nGroups*2)
	w := newBitWriter(out)
	for i := 0; i < nGroups; i++ {
		v, err := cur.Read(14)
		if err != nil {
			break
		}
		pad := uint32(0)
		if v&0x2000 != 0 {
			pad = 3
		}
		w.putUint(pad, 2)
		w.putUint(v, 14)
	}
	return out
}

type recordingOutput struct {
	format    StreamFormat
	announced int
	payloads  [][]byte
	ptsList   []int64
	sizeList  []int
}

func (r *recordingOutput) AnnounceFormat(f StreamFormat) {
	r.format = f
	r.announced++
}

func (r *recordingOutput) SampleData(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	r.payloads = append(r.payloads, cp)
}

func (r *recordingOutput) SampleMetadata(ptsUs int64, flags FrameFlags, size int, offset int) {
	r.ptsList = append(r.ptsList, ptsUs)
	r.sizeList = append(r.sizeList, size)
}
