package pipeline

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zsiec/dtsflow/distribution"
	"github.com/zsiec/dtsflow/dts"
)

// testViewer implements distribution.Viewer, collecting delivered frames
// for assertions.
type testViewer struct {
	id string
	mu sync.Mutex

	format  dts.StreamFormat
	frames  [][]byte
	ptsList []int64

	sent    atomic.Int64
	dropped atomic.Int64
}

func (v *testViewer) ID() string { return v.id }

func (v *testViewer) SendFormat(format dts.StreamFormat) {
	v.mu.Lock()
	v.format = format
	v.mu.Unlock()
}

func (v *testViewer) SendFrame(frame []byte, ptsUs int64) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	v.mu.Lock()
	v.frames = append(v.frames, cp)
	v.ptsList = append(v.ptsList, ptsUs)
	v.mu.Unlock()
	v.sent.Add(1)
}

func (v *testViewer) Stats() distribution.ViewerStats {
	return distribution.ViewerStats{ID: v.id, FramesSent: v.sent.Load(), FramesDropped: v.dropped.Load()}
}

// bitPacker mirrors the dts package's test-only synthetic frame builder,
// duplicated here since it's unexported across package boundaries.
type bitPacker struct {
	bits []byte
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

const syncCore16BE = 0x7FFE8001

func appendSync(dst []byte, sync uint32) []byte {
	return append(dst, byte(sync>>24), byte(sync>>16), byte(sync>>8), byte(sync))
}

// buildCoreFrame builds a full standalone Core frame (sync + header +
// zero-filled payload) declaring amode=1 (2ch) with LFE, total
// frameSizeBytes long.
func buildCoreFrame(nblks, sfreq uint32, frameSizeBytes int) []byte {
	p := &bitPacker{}
	p.putUint(0, 7)                        // ftype+short+crc
	p.putUint(nblks, 7)                    // nblks
	p.putUint(uint32(frameSizeBytes-1), 14) // fsize
	p.putUint(1, 6)                        // amode: 2ch
	p.putUint(sfreq, 4)                    // sfreq
	p.putUint(0, 15)                       // rate/flags
	p.putUint(1, 2)                        // lff: LFE present

	frame := make([]byte, 0, frameSizeBytes)
	frame = appendSync(frame, syncCore16BE)
	frame = append(frame, p.bytes()...)
	for len(frame) < frameSizeBytes {
		frame = append(frame, 0)
	}
	return frame[:frameSizeBytes]
}

func TestNew(t *testing.T) {
	t.Parallel()

	relay := distribution.NewRelay()
	p := New("test-stream", bytes.NewReader(nil), relay, "")
	if p == nil {
		t.Fatal("expected non-nil Pipeline")
	}
}

func TestStreamSnapshotBeforeRun(t *testing.T) {
	t.Parallel()

	relay := distribution.NewRelay()
	p := New("test-stream", bytes.NewReader(nil), relay, "")

	snap := p.StreamSnapshot()
	if snap.ViewerCount != 0 {
		t.Errorf("ViewerCount: got %d, want 0", snap.ViewerCount)
	}
}

func TestRunWithEmptyReader(t *testing.T) {
	t.Parallel()

	relay := distribution.NewRelay()
	p := New("test-stream", bytes.NewReader(nil), relay, "")
	p.SetProtocol("test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Run(ctx); err != nil {
		t.Errorf("Run with empty reader: %v", err)
	}
}

// TestRunDeliversFramesToViewer feeds two synthetic Core frames through
// Pipeline.Run and verifies the relay's already-connected viewer receives
// the format announcement and the first frame (the second has no
// following sync to close it).
func TestRunDeliversFramesToViewer(t *testing.T) {
	t.Parallel()

	relay := distribution.NewRelay()
	viewer := &testViewer{id: "v1"}
	relay.AddViewer(viewer)

	frame := buildCoreFrame(7, 13, 32)
	stream := append(append([]byte{}, frame...), frame...)

	p := New("test-stream", bytes.NewReader(stream), relay, "eng")
	p.SetProtocol("srt")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	viewer.mu.Lock()
	defer viewer.mu.Unlock()

	if len(viewer.frames) != 1 {
		t.Fatalf("frames delivered: got %d, want 1 (assembler needs a following sync to close the first frame)", len(viewer.frames))
	}
	// 2ch + LFE decodes to 3 channels, which the dts package clamps to 6.
	if viewer.format.Channels != 6 {
		t.Errorf("announced Channels: got %d, want 6", viewer.format.Channels)
	}
	if viewer.format.SampleRateHz != 48000 {
		t.Errorf("announced SampleRateHz: got %d, want 48000", viewer.format.SampleRateHz)
	}
	if viewer.format.CodecTag != "dtsc" {
		t.Errorf("announced CodecTag: got %q, want %q", viewer.format.CodecTag, "dtsc")
	}
	if viewer.format.MaxFrameSize != 32768 {
		t.Errorf("announced MaxFrameSize: got %d, want 32768", viewer.format.MaxFrameSize)
	}
	if viewer.format.Language != "eng" {
		t.Errorf("announced Language: got %q, want %q", viewer.format.Language, "eng")
	}

	snap := p.StreamSnapshot()
	if snap.ViewerCount != 1 {
		t.Errorf("StreamSnapshot.ViewerCount: got %d, want 1", snap.ViewerCount)
	}
	if snap.Audio.TotalFrames != 1 {
		t.Errorf("StreamSnapshot.Audio.TotalFrames: got %d, want 1", snap.Audio.TotalFrames)
	}
}

// TestLateJoiningViewerReplaysCache feeds frames through the pipeline
// before any viewer is connected, then verifies a late-joining viewer
// receives the cached frames and format on AddViewer.
func TestLateJoiningViewerReplaysCache(t *testing.T) {
	t.Parallel()

	relay := distribution.NewRelay()

	frame := buildCoreFrame(7, 13, 32)
	stream := bytes.Repeat(frame, 3)

	p := New("late-join-test", bytes.NewReader(stream), relay, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	late := &testViewer{id: "late-joiner"}
	relay.AddViewer(late)

	late.mu.Lock()
	defer late.mu.Unlock()

	if len(late.frames) == 0 {
		t.Fatal("late-joining viewer got 0 frames from cache replay")
	}
	if late.format.Channels != 6 {
		t.Errorf("late-joining viewer format.Channels: got %d, want 6", late.format.Channels)
	}
}
