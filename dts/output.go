package dts

// Output receives the results of parsing: a single format announcement
// followed by a stream of frame payloads and their metadata. Announce is
// called at most once per FrameAssembler; implementations that need to
// react to every frame (not just the first) should track SamplesPerFrame
// and FrameDurationUs themselves from the announced StreamFormat, since
// the Core specification never re-announces on a later sample-rate
// change within the same stream.
type Output interface {
	// AnnounceFormat is called once, before the first SampleData call,
	// with the format derived from the first successfully decoded frame
	// header.
	AnnounceFormat(format StreamFormat)

	// SampleData delivers one frame's payload bytes, starting at its sync
	// word. The slice is only valid until the next call into the
	// FrameAssembler; implementations that retain it must copy it.
	SampleData(payload []byte)

	// SampleMetadata delivers timing and flags for the frame most
	// recently passed to SampleData.
	SampleMetadata(ptsUs int64, flags FrameFlags, size int, offset int)
}

// FrameFlags marks properties of a delivered frame.
type FrameFlags int

// FlagSync marks a frame as beginning at a random-access point, which for
// DTS elementary frames is every frame.
const FlagSync FrameFlags = 1 << 0

// AssemblerError describes a locally recovered error encountered while
// consuming a chunk, for an optional diagnostic hook. It never represents
// a fatal condition: the assembler always continues consuming bytes after
// reporting one of these.
type AssemblerError struct {
	Err   error
	State AssemblerState
}

func (e *AssemblerError) Error() string { return e.Err.Error() }

func (e *AssemblerError) Unwrap() error { return e.Err }
