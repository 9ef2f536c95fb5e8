package dts

import "testing"

func TestDecodeCoreHeaderFields(t *testing.T) {
	// amode=1 -> 2 channels (table index 1), sfreq=13 -> 48000 Hz,
	// nblks=7 -> 8*32=256 samples, lff=1 adds the LFE channel.
	bits := buildCoreHeaderBits(7, 2000, 1, 13, 1)
	cur := NewBitCursor(bits)
	hdr, err := DecodeCoreHeader(cur)
	if err != nil {
		t.Fatalf("DecodeCoreHeader: %v", err)
	}
	if hdr.FrameSizeBytes != 2001 {
		t.Fatalf("FrameSizeBytes = %d, want 2001", hdr.FrameSizeBytes)
	}
	if hdr.SampleRateHz != 48000 {
		t.Fatalf("SampleRateHz = %d, want 48000", hdr.SampleRateHz)
	}
	if hdr.Channels != 3 {
		t.Fatalf("Channels = %d, want 3", hdr.Channels)
	}
	if hdr.SamplesPerFrame != 256 {
		t.Fatalf("SamplesPerFrame = %d, want 256", hdr.SamplesPerFrame)
	}
}

func TestDecodeCoreHeaderNoLFE(t *testing.T) {
	bits := buildCoreHeaderBits(0, 100, 0, 3, 0)
	cur := NewBitCursor(bits)
	hdr, err := DecodeCoreHeader(cur)
	if err != nil {
		t.Fatalf("DecodeCoreHeader: %v", err)
	}
	if hdr.Channels != 1 {
		t.Fatalf("Channels = %d, want 1", hdr.Channels)
	}
	if hdr.SampleRateHz != 32000 {
		t.Fatalf("SampleRateHz = %d, want 32000", hdr.SampleRateHz)
	}
	if hdr.SamplesPerFrame != 32 {
		t.Fatalf("SamplesPerFrame = %d, want 32", hdr.SamplesPerFrame)
	}
}

func TestDecodeCoreHeaderNotEnoughBits(t *testing.T) {
	cur := NewBitCursor([]byte{0x00, 0x00, 0x00})
	if _, err := DecodeCoreHeader(cur); err == nil {
		t.Fatal("expected error for truncated core header")
	}
}

func TestDecodeExssHeaderFields(t *testing.T) {
	// refClockCode=2 -> 48000 Hz reference, durationCode raw=0 -> 512
	// samples at the reference rate, sampleRateIdx=12 -> 48000 Hz,
	// channelsMinus1=5 -> 6 channels.
	bits := buildExssHeaderBits(0, 0, 2, 12, 5, 14, 2048)
	cur := NewBitCursor(bits)
	hdr, err := DecodeExssHeader(cur)
	if err != nil {
		t.Fatalf("DecodeExssHeader: %v", err)
	}
	if hdr.SampleRateHz != 48000 {
		t.Fatalf("SampleRateHz = %d, want 48000", hdr.SampleRateHz)
	}
	if hdr.Channels != 6 {
		t.Fatalf("Channels = %d, want 6", hdr.Channels)
	}
	if hdr.SamplesPerFrame != 512 {
		t.Fatalf("SamplesPerFrame = %d, want 512", hdr.SamplesPerFrame)
	}
	if hdr.ExtSSIndex != 0 {
		t.Fatalf("ExtSSIndex = %d, want 0", hdr.ExtSSIndex)
	}
}

func TestDecodeExssHeaderDifferentRefClock(t *testing.T) {
	// refClockCode=0 -> 32000 Hz reference, durationCode raw=2 -> 1536
	// ticks, sampleRateIdx=2 -> 32000 Hz (matches reference 1:1).
	bits := buildExssHeaderBits(1, 2, 0, 2, 1, 14, 1024)
	cur := NewBitCursor(bits)
	hdr, err := DecodeExssHeader(cur)
	if err != nil {
		t.Fatalf("DecodeExssHeader: %v", err)
	}
	if hdr.SamplesPerFrame != 1536 {
		t.Fatalf("SamplesPerFrame = %d, want 1536", hdr.SamplesPerFrame)
	}
	if hdr.Channels != 2 {
		t.Fatalf("Channels = %d, want 2", hdr.Channels)
	}
	if hdr.ExtSSIndex != 1 {
		t.Fatalf("ExtSSIndex = %d, want 1", hdr.ExtSSIndex)
	}
}

func TestCombineFormatExssOverridesCore(t *testing.T) {
	core := &CoreHeader{SampleRateHz: 44100, Channels: 2, SamplesPerFrame: 128}
	exss := &ExssHeader{SampleRateHz: 48000, Channels: 6, SamplesPerFrame: 512}
	sf := CombineFormat(core, exss, "eng")
	if sf.SampleRateHz != 48000 || sf.Channels != 6 || sf.SamplesPerFrame != 512 {
		t.Fatalf("got %+v, want exss values", sf)
	}
	if sf.CodecTag != "dtsc" {
		t.Fatalf("CodecTag = %q, want dtsc", sf.CodecTag)
	}
	if sf.MaxFrameSize != 32768 {
		t.Fatalf("MaxFrameSize = %d, want 32768", sf.MaxFrameSize)
	}
	if sf.Language != "eng" {
		t.Fatalf("Language = %q, want eng", sf.Language)
	}
}

// TestDecodeExssSamplesPerFrameTruncatesRefClockRatio exercises a sample
// rate that is not an exact multiple of its reference clock entry
// (16000 Hz against the 32000 Hz ref-clock code). The reference decoder
// truncates samplingRate/refClock to an integer before multiplying by the
// frame-duration code, so a non-exact ratio truncates to zero rather than
// rounding the product.
func TestDecodeExssSamplesPerFrameTruncatesRefClockRatio(t *testing.T) {
	// refClockCode=0 -> 32000 Hz reference, durationCode raw=0 -> 512
	// ticks, sampleRateIdx=1 -> 16000 Hz (not a multiple of 32000).
	bits := buildExssHeaderBits(0, 0, 0, 1, 1, 14, 1024)
	cur := NewBitCursor(bits)
	hdr, err := DecodeExssHeader(cur)
	if err != nil {
		t.Fatalf("DecodeExssHeader: %v", err)
	}
	if hdr.SampleRateHz != 16000 {
		t.Fatalf("SampleRateHz = %d, want 16000", hdr.SampleRateHz)
	}
	if hdr.SamplesPerFrame != 0 {
		t.Fatalf("SamplesPerFrame = %d, want 0 (16000/32000 truncates to 0 before the multiply)", hdr.SamplesPerFrame)
	}
}

func TestClampFormatChannelFallback(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 6},
		{3, 6},
		{5, 6},
		{7, 8},
		{8, 8},
		{2, 2},
		{6, 6},
	}
	for _, c := range cases {
		sf := clampFormat(StreamFormat{Channels: c.in, SampleRateHz: 48000})
		if sf.Channels != c.want {
			t.Fatalf("clampFormat(%d) = %d, want %d", c.in, sf.Channels, c.want)
		}
	}
}

func TestClampFormatSampleRateFallback(t *testing.T) {
	sf := clampFormat(StreamFormat{Channels: 2, SampleRateHz: 0})
	if sf.SampleRateHz != 48000 {
		t.Fatalf("SampleRateHz = %d, want 48000", sf.SampleRateHz)
	}
}
