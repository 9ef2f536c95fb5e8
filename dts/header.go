package dts

// codecTag identifies the elementary stream's codec to consumers of an
// announced StreamFormat. DTS has no per-frame codec negotiation, so this
// is always the same constant.
const codecTag = "dtsc"

// maxFrameSizeBytes is the largest frame a FrameAssembler will ever emit,
// matching the FrameBuffer's fixed capacity.
const maxFrameSizeBytes = maxFrameSize

// StreamFormat describes the audio format derived from a decoded Core
// and/or ExSS header: sample rate, channel count (LFE included), the
// number of samples represented by the frame, the frame's duration, the
// codec tag, the maximum frame size the assembler will ever emit, and the
// stream's language. Language is opaque to the decoder: it is never read
// from the bitstream, only carried through from FrameAssembler
// construction, the way DtsReader's container-supplied language is in the
// reference extractor.
type StreamFormat struct {
	SampleRateHz    int
	Channels        int
	SamplesPerFrame int
	FrameDurationUs int64
	CodecTag        string
	MaxFrameSize    int
	Language        string
}

// CoreHeader holds the fields decoded from a Core substream header,
// positioned immediately after the 32-bit sync word.
type CoreHeader struct {
	FrameSizeBytes  int // FSIZE + 1, the Core frame's declared size in bytes
	SampleRateHz    int
	Channels        int
	SamplesPerFrame int
}

// DecodeCoreHeader decodes the Core substream header fields needed to
// derive a StreamFormat. cur must be positioned immediately after the
// sync word.
func DecodeCoreHeader(cur *BitCursor) (CoreHeader, error) {
	if cur.BitsLeft() < 55 {
		return CoreHeader{}, &DecodeError{Field: "core_header", Err: ErrNotEnoughBits}
	}

	if err := cur.Skip(7); err != nil { // FTYPE(1) + SHORT(5) + CRC(1)
		return CoreHeader{}, &DecodeError{Field: "ftype/short/crc", Err: err}
	}
	nblks, err := cur.Read(7)
	if err != nil {
		return CoreHeader{}, &DecodeError{Field: "nblks", Err: err}
	}
	fsize, err := cur.Read(14)
	if err != nil {
		return CoreHeader{}, &DecodeError{Field: "fsize", Err: err}
	}
	amode, err := cur.Read(6)
	if err != nil {
		return CoreHeader{}, &DecodeError{Field: "amode", Err: err}
	}
	sfreq, err := cur.Read(4)
	if err != nil {
		return CoreHeader{}, &DecodeError{Field: "sfreq", Err: err}
	}
	// RATE(5) + FIXEDBIT(1) + DYNF(1) + TIMEF(1) + AUXF(1) + HDCD(1) +
	// EXT_AUDIO_ID(3) + EXT_AUDIO(1) + ASPF(1)
	if err := cur.Skip(15); err != nil {
		return CoreHeader{}, &DecodeError{Field: "rate/flags", Err: err}
	}
	lff, err := cur.Read(2)
	if err != nil {
		return CoreHeader{}, &DecodeError{Field: "lff", Err: err}
	}

	channels := 0
	if amode <= 9 {
		channels = channelCountTable[amode]
	}
	if lff != 0 {
		channels++
	}
	sampleRate := coreSampleRateTable[sfreq]
	samples := int(nblks+1) * 32

	return CoreHeader{
		FrameSizeBytes:  int(fsize) + 1,
		SampleRateHz:    sampleRate,
		Channels:        channels,
		SamplesPerFrame: samples,
	}, nil
}

// ExssHeader holds the fields decoded from an Extension Substream header,
// positioned immediately after the 32-bit sync word.
type ExssHeader struct {
	ExtSSIndex      int
	FrameSizeBytes  int // numExtSSFsize, the ExSS frame's declared size in bytes
	SampleRateHz    int
	Channels        int
	SamplesPerFrame int
}

// DecodeExssHeader decodes the ExSS header fields needed to derive a
// StreamFormat, including the static-fields block and the first asset
// descriptor. cur must be positioned immediately after the sync word.
func DecodeExssHeader(cur *BitCursor) (ExssHeader, error) {
	if cur.BitsLeft() < 11 {
		return ExssHeader{}, &DecodeError{Field: "exss_header", Err: ErrNotEnoughBits}
	}
	if err := cur.Skip(8); err != nil { // UserDefinedBits
		return ExssHeader{}, &DecodeError{Field: "user_defined_bits", Err: err}
	}
	extSSIndex, err := cur.Read(2)
	if err != nil {
		return ExssHeader{}, &DecodeError{Field: "ext_ss_index", Err: err}
	}
	headerSizeType, err := cur.Read(1)
	if err != nil {
		return ExssHeader{}, &DecodeError{Field: "header_size_type", Err: err}
	}

	bitsHeader, bitsFsize := 8, 16
	if headerSizeType != 0 {
		bitsHeader, bitsFsize = 12, 20
	}
	if cur.BitsLeft() < bitsHeader+bitsFsize {
		return ExssHeader{}, &DecodeError{Field: "header_size_fields", Err: ErrNotEnoughBits}
	}
	headerSize, err := cur.Read(bitsHeader)
	if err != nil {
		return ExssHeader{}, &DecodeError{Field: "header_size", Err: err}
	}
	headerSize++
	fsize, err := cur.Read(bitsFsize)
	if err != nil {
		return ExssHeader{}, &DecodeError{Field: "fsize", Err: err}
	}
	fsize++

	needed := int(headerSize)*8 - (bitsHeader + bitsFsize + 11 + 32)
	if needed > 0 && cur.BitsLeft() < needed {
		return ExssHeader{}, &DecodeError{Field: "header_body", Err: ErrNotEnoughBits}
	}

	staticFieldsPresent, err := cur.Read(1)
	if err != nil {
		return ExssHeader{}, &DecodeError{Field: "static_fields_present", Err: err}
	}

	var refClockCode, frameDurationCode uint32
	numAudioPresent, numAssets := 1, 1

	if staticFieldsPresent != 0 {
		refClockCode, err = cur.Read(2)
		if err != nil {
			return ExssHeader{}, &DecodeError{Field: "ref_clock_code", Err: err}
		}
		durCode, err := cur.Read(3)
		if err != nil {
			return ExssHeader{}, &DecodeError{Field: "frame_duration_code", Err: err}
		}
		frameDurationCode = 512 * (durCode + 1)

		timeStampFlag, err := cur.Read(1)
		if err != nil {
			return ExssHeader{}, &DecodeError{Field: "time_stamp_flag", Err: err}
		}
		if timeStampFlag != 0 {
			if err := cur.Skip(32 + 4); err != nil {
				return ExssHeader{}, &DecodeError{Field: "time_stamp", Err: err}
			}
		}

		na, err := cur.Read(3)
		if err != nil {
			return ExssHeader{}, &DecodeError{Field: "num_audio_present", Err: err}
		}
		numAudioPresent = int(na) + 1
		nb, err := cur.Read(3)
		if err != nil {
			return ExssHeader{}, &DecodeError{Field: "num_assets", Err: err}
		}
		numAssets = int(nb) + 1

		activeMask := make([]uint32, numAudioPresent)
		for i := 0; i < numAudioPresent; i++ {
			m, err := cur.Read(int(extSSIndex) + 1)
			if err != nil {
				return ExssHeader{}, &DecodeError{Field: "active_exss_mask", Err: err}
			}
			activeMask[i] = m
		}
		for i := 0; i < numAudioPresent; i++ {
			for ss := 0; ss < int(extSSIndex)+1; ss++ {
				if (activeMask[i]>>uint(ss))&1 == 1 {
					if _, err := cur.Read(8); err != nil {
						return ExssHeader{}, &DecodeError{Field: "active_asset_mask", Err: err}
					}
				}
			}
		}

		mixMetaEnbl, err := cur.Read(1)
		if err != nil {
			return ExssHeader{}, &DecodeError{Field: "mix_metadata_enbl", Err: err}
		}
		if mixMetaEnbl == 1 {
			if err := cur.Skip(2); err != nil { // nuMixMetadataAdjLevel
				return ExssHeader{}, &DecodeError{Field: "mix_metadata_adj_level", Err: err}
			}
			bitsMixOutMask, err := cur.Read(2)
			if err != nil {
				return ExssHeader{}, &DecodeError{Field: "bits4_mix_out_mask", Err: err}
			}
			nBitsMixOutMask := (int(bitsMixOutMask) + 1) << 2
			numMixOutConfigs, err := cur.Read(2)
			if err != nil {
				return ExssHeader{}, &DecodeError{Field: "num_mix_out_configs", Err: err}
			}
			for i := 0; i < int(numMixOutConfigs)+1; i++ {
				if err := cur.Skip(nBitsMixOutMask); err != nil {
					return ExssHeader{}, &DecodeError{Field: "mix_out_ch_mask", Err: err}
				}
			}
		}
	}

	for i := 0; i < numAssets; i++ {
		if err := cur.Skip(bitsFsize); err != nil { // per-asset fsize field
			return ExssHeader{}, &DecodeError{Field: "asset_fsize", Err: err}
		}
	}

	sampleRate := 0
	channels := 0
	for i := 0; i < numAssets; i++ {
		if _, err := cur.Read(9); err != nil { // nuAssetDescriptFsize
			return ExssHeader{}, &DecodeError{Field: "asset_descript_fsize", Err: err}
		}
		if _, err := cur.Read(3); err != nil { // nuAssetIndex
			return ExssHeader{}, &DecodeError{Field: "asset_index", Err: err}
		}
		if staticFieldsPresent != 0 {
			typeDescrPresent, err := cur.Read(1)
			if err != nil {
				return ExssHeader{}, &DecodeError{Field: "asset_type_descr_present", Err: err}
			}
			if typeDescrPresent == 1 {
				if err := cur.Skip(4); err != nil {
					return ExssHeader{}, &DecodeError{Field: "asset_type_descriptor", Err: err}
				}
			}
			langDescrPresent, err := cur.Read(1)
			if err != nil {
				return ExssHeader{}, &DecodeError{Field: "language_descr_present", Err: err}
			}
			if langDescrPresent == 1 {
				if err := cur.Skip(24); err != nil {
					return ExssHeader{}, &DecodeError{Field: "language_descriptor", Err: err}
				}
			}
			infoTextPresent, err := cur.Read(1)
			if err != nil {
				return ExssHeader{}, &DecodeError{Field: "info_text_present", Err: err}
			}
			if infoTextPresent == 1 {
				n, err := cur.Read(10)
				if err != nil {
					return ExssHeader{}, &DecodeError{Field: "info_text_byte_size", Err: err}
				}
				if err := cur.Skip((int(n) + 1) * 8); err != nil {
					return ExssHeader{}, &DecodeError{Field: "info_text_string", Err: err}
				}
			}
			if err := cur.Skip(5); err != nil { // nuBitResolution
				return ExssHeader{}, &DecodeError{Field: "bit_resolution", Err: err}
			}
			srIdx, err := cur.Read(4)
			if err != nil {
				return ExssHeader{}, &DecodeError{Field: "sample_rate_index", Err: err}
			}
			sampleRate = exssSampleRateTable[srIdx]
			ch, err := cur.Read(8)
			if err != nil {
				return ExssHeader{}, &DecodeError{Field: "num_channels", Err: err}
			}
			channels = int(ch) + 1
		} else {
			sampleRate = 48000
			channels = 8
		}
	}

	samples := 0
	if staticFieldsPresent != 0 && sampleRate > 0 {
		ref := refClockTable[refClockCode]
		// Matches the reference decoder's integer truncation of
		// samplingrate/refClock ahead of the frame-duration multiply: a
		// sample rate that isn't an exact multiple of its reference clock
		// truncates the ratio to zero rather than rounding the product.
		samples = int(frameDurationCode) * (sampleRate / ref)
	}

	return ExssHeader{
		ExtSSIndex:      int(extSSIndex),
		FrameSizeBytes:  int(fsize),
		SampleRateHz:    sampleRate,
		Channels:        channels,
		SamplesPerFrame: samples,
	}, nil
}

// CombineFormat applies the same-frame precedence and clamping rules the
// reference decoder uses when a frame carries both a Core header and an
// ExSS header: the ExSS asset's sample rate and channel count, when
// present, take precedence over the Core header's. clampFormat is always
// applied last regardless of which header contributed the values.
// language is never derived from the bitstream; it is passed through
// verbatim from the FrameAssembler's construction.
func CombineFormat(core *CoreHeader, exss *ExssHeader, language string) StreamFormat {
	sf := StreamFormat{CodecTag: codecTag, MaxFrameSize: maxFrameSizeBytes, Language: language}
	if core != nil {
		sf.SampleRateHz = core.SampleRateHz
		sf.Channels = core.Channels
		sf.SamplesPerFrame = core.SamplesPerFrame
		sf.FrameDurationUs = frameDurationUs(core.SamplesPerFrame, core.SampleRateHz)
	}
	if exss != nil {
		sf.SampleRateHz = exss.SampleRateHz
		sf.Channels = exss.Channels
		sf.SamplesPerFrame = exss.SamplesPerFrame
		sf.FrameDurationUs = frameDurationUs(exss.SamplesPerFrame, exss.SampleRateHz)
	}
	return clampFormat(sf)
}

// clampFormat applies the reference decoder's fallback rules for
// channel counts and sample rates that fall outside the recognized set.
func clampFormat(sf StreamFormat) StreamFormat {
	switch {
	case sf.Channels == 0 || (sf.Channels > 2 && sf.Channels < 6):
		sf.Channels = 6
	case sf.Channels > 6 && sf.Channels != 8:
		sf.Channels = 8
	}
	if sf.SampleRateHz == 0 {
		sf.SampleRateHz = 48000
	}
	return sf
}

func frameDurationUs(samples, sampleRateHz int) int64 {
	if sampleRateHz == 0 {
		return 0
	}
	return int64(float64(samples) * 1e6 / float64(sampleRateHz))
}
