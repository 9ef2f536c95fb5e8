package dts

// AssemblerState is the FrameAssembler's current position in the
// frame-boundary state machine.
type AssemblerState int

const (
	StateFindingFirstSync AssemblerState = iota
	StateFindingSubsequentSync
	StateCheckingExssHeader
	StateReadingExss
	StateCopyingFrame
)

// FrameKind classifies the pair of consecutive sync words delimiting the
// frame currently being assembled.
type FrameKind int

const (
	FrameKindUnknown FrameKind = iota
	FrameKindStandaloneCore
	FrameKindStandaloneExss
	FrameKindCorePlusExss
)

const (
	maxFrameSize        = 32768
	maxExssAccumEntries = 4
)

// frameBuffer is a fixed-capacity byte buffer that always begins with a
// sync word once one has been detected.
type frameBuffer struct {
	data [maxFrameSize]byte
	pos  int
}

func (b *frameBuffer) Reset() { b.pos = 0 }
func (b *frameBuffer) Len() int { return b.pos }
func (b *frameBuffer) Bytes() []byte { return b.data[:b.pos] }

// Append writes v at the current position and reports whether there was
// room for it.
func (b *frameBuffer) Append(v byte) bool {
	if b.pos >= len(b.data) {
		return false
	}
	b.data[b.pos] = v
	b.pos++
	return true
}

func (b *frameBuffer) AppendSyncWord(w uint32) {
	b.Append(byte(w >> 24))
	b.Append(byte(w >> 16))
	b.Append(byte(w >> 8))
	b.Append(byte(w))
}

// exssAccumulator tracks up to four ext_ss_index values seen across
// consecutive ExSS headers, used to detect a standalone-ExSS frame
// boundary by a repeated index.
type exssAccumulator struct {
	ids   [maxExssAccumEntries]int
	count int
}

func (e *exssAccumulator) reset() { e.count = 0 }

func (e *exssAccumulator) push(idx int) {
	if e.count < len(e.ids) {
		e.ids[e.count] = idx
	}
	e.count++
}

func (e *exssAccumulator) first() int { return e.ids[0] }

func (e *exssAccumulator) last() int {
	n := e.count
	if n > len(e.ids) {
		n = len(e.ids)
	}
	if n == 0 {
		return -1
	}
	return e.ids[n-1]
}

func (e *exssAccumulator) keepOnlyLast() {
	last := e.last()
	e.ids[0] = last
	e.count = 1
}

// FrameAssembler is the streaming frame-boundary state machine. It owns a
// bounded FrameBuffer, a sync-word ShiftRegister, and the current
// presentation timestamp for one elementary stream. It performs no
// allocation on the hot path and never blocks.
type FrameAssembler struct {
	out      Output
	onError  func(*AssemblerError)
	language string

	state AssemblerState
	buf   frameBuffer
	reg   ShiftRegister

	firstSync       uint32
	lastSyncWord    uint32
	pendingExssSync uint32
	frameKind       FrameKind
	exssStartOffset int

	exssScratch    [6]byte
	exssScratchPos int
	exssAcc        exssAccumulator

	formatAnnounced bool
	frameDurationUs int64
	ptsUs           int64
}

// NewFrameAssembler returns an assembler that delivers parsed frames to
// out. onError, if non-nil, is invoked once per recovered error; it is
// never required for correct operation. language is an opaque value
// (e.g. an ISO 639 code) carried through unchanged into every announced
// StreamFormat; it is never read from the bitstream.
func NewFrameAssembler(out Output, onError func(*AssemblerError), language string) *FrameAssembler {
	return &FrameAssembler{out: out, onError: onError, language: language, state: StateFindingFirstSync}
}

// PacketStarted records the presentation timestamp of the upcoming chunk.
func (a *FrameAssembler) PacketStarted(ptsUs int64, flags FrameFlags) {
	a.ptsUs = ptsUs
}

// PacketFinished is a no-op, present to complete the upstream contract.
func (a *FrameAssembler) PacketFinished() {}

// Seek resets the sync search state so the assembler can recover after a
// discontinuous jump in the input. It does not reset the frame buffer, the
// announced-format flag, the current timestamp, the Output binding, or
// the constructor-supplied language.
func (a *FrameAssembler) Seek() {
	a.state = StateFindingFirstSync
	a.reg.Reset()
}

// Consume drives the state machine over chunk. It never blocks and never
// returns an error: all recoverable conditions are reported through the
// onError hook passed to NewFrameAssembler, if any.
func (a *FrameAssembler) Consume(chunk []byte) {
	i := 0
	for i < len(chunk) {
		if a.state == StateCopyingFrame {
			a.doCopyFrame()
			continue
		}
		a.step(chunk[i])
		i++
	}
}

func (a *FrameAssembler) step(b byte) {
	switch a.state {
	case StateFindingFirstSync:
		a.stepFindingFirstSync(b)
	case StateFindingSubsequentSync:
		a.stepFindingSubsequentSync(b)
	case StateCheckingExssHeader:
		a.stepCheckingExssHeader(b)
	case StateReadingExss:
		a.stepReadingExss(b)
	}
}

func (a *FrameAssembler) stepFindingFirstSync(b byte) {
	a.reg.PushByte(b)
	kind := ClassifySync(a.reg.Value())
	if kind == SyncNone {
		return
	}
	v := a.reg.Value()
	a.firstSync = v
	a.buf.Reset()
	a.buf.AppendSyncWord(v)
	a.exssAcc.reset()
	a.exssScratchPos = 0

	if kind == SyncKindExss {
		a.frameKind = FrameKindStandaloneExss
		a.pendingExssSync = v
		a.state = StateCheckingExssHeader
	} else {
		a.frameKind = FrameKindUnknown
		a.state = StateFindingSubsequentSync
	}
}

func (a *FrameAssembler) stepFindingSubsequentSync(b byte) {
	a.reg.PushByte(b)
	if !a.buf.Append(b) {
		a.reportError(ErrBufferOverflow)
		a.resetFull()
		return
	}

	kind := ClassifySync(a.reg.Value())
	if kind == SyncNone {
		return
	}
	v := a.reg.Value()

	switch {
	case kind == SyncKindCore && v == a.firstSync:
		a.frameKind = FrameKindStandaloneCore
		a.lastSyncWord = v
		a.state = StateCopyingFrame

	case kind == SyncKindExss && matchesExssFollowingCore(v, a.firstSync):
		a.frameKind = FrameKindCorePlusExss
		a.lastSyncWord = v
		a.exssStartOffset = a.buf.Len() - syncWordSize
		a.pendingExssSync = v
		a.exssScratchPos = 0
		a.state = StateCheckingExssHeader
	}
}

func (a *FrameAssembler) stepCheckingExssHeader(b byte) {
	if !a.buf.Append(b) {
		a.reportError(ErrBufferOverflow)
		a.resetFull()
		return
	}
	a.exssScratch[a.exssScratchPos] = b
	a.exssScratchPos++
	if a.exssScratchPos < 6 {
		return
	}

	if a.pendingExssSync == SyncExss16BE {
		idx := extractExtSSIndex(a.exssScratch)
		a.exssAcc.push(idx)
	}
	if a.exssAcc.count > maxExssAccumEntries {
		a.reportError(ErrExssAccumulatorOverflow)
		a.resetFull()
		return
	}

	a.enterReadingExss()
}

func (a *FrameAssembler) enterReadingExss() {
	if a.frameKind == FrameKindStandaloneExss && a.exssAcc.count >= 2 &&
		a.exssAcc.last() == a.exssAcc.first() {
		a.exssAcc.keepOnlyLast()
		a.state = StateCopyingFrame
		return
	}
	a.state = StateReadingExss
}

func (a *FrameAssembler) stepReadingExss(b byte) {
	a.reg.PushByte(b)
	if !a.buf.Append(b) {
		a.reportError(ErrBufferOverflow)
		a.resetFull()
		return
	}

	kind := ClassifySync(a.reg.Value())
	if kind == SyncNone {
		return
	}
	v := a.reg.Value()

	switch a.frameKind {
	case FrameKindCorePlusExss:
		if kind == SyncKindCore {
			a.exssAcc.reset()
			a.lastSyncWord = v
			a.state = StateCopyingFrame
		} else {
			a.lastSyncWord = v
			a.pendingExssSync = v
			a.exssScratchPos = 0
			a.state = StateCheckingExssHeader
		}

	case FrameKindStandaloneExss:
		if kind == SyncKindExss {
			a.lastSyncWord = v
			a.pendingExssSync = v
			a.exssScratchPos = 0
			a.state = StateCheckingExssHeader
		} else {
			a.reportError(ErrUnexpectedSyncTransition)
			a.firstSync = v
			a.lastSyncWord = v
			a.state = StateFindingSubsequentSync
		}
	}
}

func (a *FrameAssembler) doCopyFrame() {
	var frameSize int
	if a.frameKind == FrameKindStandaloneExss {
		frameSize = a.buf.Len() - (syncWordSize + 6)
	} else {
		frameSize = a.buf.Len() - syncWordSize
	}
	if frameSize < 0 {
		frameSize = 0
	}
	frameBytes := a.buf.Bytes()[:frameSize]

	if !a.formatAnnounced {
		format, ok := a.decodeFormat(frameBytes)
		if !ok {
			a.recoverAfterDecodeFailure()
			return
		}
		a.out.AnnounceFormat(format)
		a.formatAnnounced = true
		a.frameDurationUs = format.FrameDurationUs
	}

	a.out.SampleData(frameBytes)
	a.out.SampleMetadata(a.ptsUs, FlagSync, frameSize, 0)
	a.ptsUs += a.frameDurationUs

	a.reseedBuffer()
	a.firstSync = a.lastSyncWord
	a.state = StateFindingSubsequentSync
}

func (a *FrameAssembler) recoverAfterDecodeFailure() {
	a.reseedBuffer()
	a.firstSync = a.lastSyncWord
	a.state = StateFindingSubsequentSync
}

func (a *FrameAssembler) reseedBuffer() {
	a.buf.Reset()
	a.buf.AppendSyncWord(a.lastSyncWord)
	if a.frameKind == FrameKindStandaloneExss {
		for _, b := range a.exssScratch {
			a.buf.Append(b)
		}
	}
}

func (a *FrameAssembler) resetFull() {
	a.buf.Reset()
	a.reg.Reset()
	a.firstSync = 0
	a.lastSyncWord = 0
	a.frameKind = FrameKindUnknown
	a.exssAcc.reset()
	a.exssScratchPos = 0
	a.state = StateFindingFirstSync
}

func (a *FrameAssembler) reportError(err error) {
	if a.onError == nil {
		return
	}
	a.onError(&AssemblerError{Err: err, State: a.state})
}

// decodeFormat parses the header(s) of the just-completed frame and
// derives a StreamFormat. It returns ok=false on any NotEnoughBits
// condition, signaling the caller to recover instead of emitting.
func (a *FrameAssembler) decodeFormat(frame []byte) (StreamFormat, bool) {
	normalized := NormalizeHeader(frame, a.firstSync)

	switch a.frameKind {
	case FrameKindStandaloneExss:
		cur := NewBitCursor(normalized)
		if err := cur.Skip(32); err != nil {
			return StreamFormat{}, false
		}
		hdr, err := DecodeExssHeader(cur)
		if err != nil {
			return StreamFormat{}, false
		}
		return CombineFormat(nil, &hdr, a.language), true

	case FrameKindStandaloneCore:
		cur := NewBitCursor(normalized)
		if err := cur.Skip(32); err != nil {
			return StreamFormat{}, false
		}
		hdr, err := DecodeCoreHeader(cur)
		if err != nil {
			return StreamFormat{}, false
		}
		return CombineFormat(&hdr, nil, a.language), true

	case FrameKindCorePlusExss:
		coreCur := NewBitCursor(normalized)
		if err := coreCur.Skip(32); err != nil {
			return StreamFormat{}, false
		}
		coreHdr, err := DecodeCoreHeader(coreCur)
		if err != nil {
			return StreamFormat{}, false
		}

		if a.exssStartOffset*8+32 > len(normalized)*8 {
			return StreamFormat{}, false
		}
		exssCur := NewBitCursor(normalized)
		exssCur.SetPosition(a.exssStartOffset * 8)
		if err := exssCur.Skip(32); err != nil {
			return StreamFormat{}, false
		}
		exssHdr, err := DecodeExssHeader(exssCur)
		if err != nil {
			return StreamFormat{}, false
		}
		return CombineFormat(&coreHdr, &exssHdr, a.language), true

	default:
		return StreamFormat{}, false
	}
}

// matchesExssFollowingCore reports whether exssSync is the ExSS sync word
// that pairs with coreSync in a Core-plus-ExSS frame: only the two 16-bit
// forms of matching endianness pair this way.
func matchesExssFollowingCore(exssSync, coreSync uint32) bool {
	return (exssSync == SyncExss16BE && coreSync == SyncCore16BE) ||
		(exssSync == SyncExss16LE && coreSync == SyncCore16LE)
}

// extractExtSSIndex reads the ext_ss_index field (bits 8..9, after the
// 8-bit user-defined field) from a captured 6-byte ExSS header window.
func extractExtSSIndex(window [6]byte) int {
	cur := NewBitCursor(window[:])
	if err := cur.Skip(8); err != nil {
		return 0
	}
	v, err := cur.Read(2)
	if err != nil {
		return 0
	}
	return int(v)
}
