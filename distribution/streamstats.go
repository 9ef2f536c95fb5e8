package distribution

import (
	"sync"
	"sync/atomic"
	"time"
)

// AudioStats holds point-in-time metrics for the DTS stream, serialized as
// JSON in stats snapshots sent to the monitor CLI.
type AudioStats struct {
	Codec           string  `json:"codec"`
	SampleRate      int     `json:"sampleRate"`
	Channels        int     `json:"channels"`
	TotalFrames     int64   `json:"totalFrames"`
	TotalBytes      int64   `json:"totalBytes"`
	BitrateKbps     float64 `json:"bitrateKbps"`
	FrameRate       float64 `json:"frameRate"`
	FrameDurationUs int64   `json:"frameDurationUs"`
	RecoveredErrors int64   `json:"recoveredErrors"`
}

// ViewerStats captures per-viewer delivery metrics, used for diagnostics
// and the monitor CLI's viewer table.
type ViewerStats struct {
	ID            string `json:"id"`
	FramesSent    int64  `json:"framesSent"`
	FramesDropped int64  `json:"framesDropped"`
	BytesSent     int64  `json:"bytesSent"`
	LastPTSUs     int64  `json:"lastPtsUs,omitempty"`
}

// StreamSnapshot is the top-level stats payload sent periodically to the
// monitor CLI.
type StreamSnapshot struct {
	Timestamp   int64         `json:"ts"`
	UptimeMs    int64         `json:"uptimeMs"`
	Protocol    string        `json:"protocol"`
	IngestBytes int64         `json:"ingestBytes"`
	IngestKbps  float64       `json:"ingestKbps"`
	Audio       AudioStats    `json:"audio"`
	ViewerCount int           `json:"viewerCount"`
	Viewers     []ViewerStats `json:"viewers,omitempty"`
}

type bitrateEntry struct {
	ts    time.Time
	bytes int64
}

// StreamStats accumulates telemetry from the FrameAssembler in a
// concurrency-safe manner using atomic counters, producing point-in-time
// Snapshots for the monitor CLI.
type StreamStats struct {
	totalFrames atomic.Int64
	totalBytes  atomic.Int64
	recovered   atomic.Int64

	codecMu         sync.RWMutex
	sampleRate      int
	channels        int
	frameDurationUs int64

	bitrateMu     sync.Mutex
	bitrateWindow []bitrateEntry

	fpsMu     sync.Mutex
	fpsWindow []time.Time
}

// NewStreamStats creates a StreamStats ready for use.
func NewStreamStats() *StreamStats {
	return &StreamStats{}
}

// RecordFormat stores the decoded stream format, announced once per
// FrameAssembler.
func (ss *StreamStats) RecordFormat(sampleRate, channels int, frameDurationUs int64) {
	ss.codecMu.Lock()
	ss.sampleRate = sampleRate
	ss.channels = channels
	ss.frameDurationUs = frameDurationUs
	ss.codecMu.Unlock()
}

// RecordFrame records a single assembled frame's size, updating the
// bitrate and frame-rate sliding windows.
func (ss *StreamStats) RecordFrame(bytes int) {
	ss.totalFrames.Add(1)
	ss.totalBytes.Add(int64(bytes))

	now := time.Now()

	ss.fpsMu.Lock()
	ss.fpsWindow = append(ss.fpsWindow, now)
	cutoff := now.Add(-2 * time.Second)
	j := 0
	for j < len(ss.fpsWindow) && ss.fpsWindow[j].Before(cutoff) {
		j++
	}
	ss.fpsWindow = ss.fpsWindow[j:]
	ss.fpsMu.Unlock()

	ss.bitrateMu.Lock()
	ss.bitrateWindow = append(ss.bitrateWindow, bitrateEntry{ts: now, bytes: int64(bytes)})
	bcutoff := now.Add(-2 * time.Second)
	i := 0
	for i < len(ss.bitrateWindow) && ss.bitrateWindow[i].ts.Before(bcutoff) {
		i++
	}
	ss.bitrateWindow = ss.bitrateWindow[i:]
	ss.bitrateMu.Unlock()
}

// RecordRecoveredError increments the count of locally recovered assembler
// errors (buffer overflows, accumulator overflows, unexpected sync
// transitions), surfaced for diagnostics.
func (ss *StreamStats) RecordRecoveredError() {
	ss.recovered.Add(1)
}

// FrameRate computes the current frame rate from a 2-second sliding window.
func (ss *StreamStats) FrameRate() float64 {
	ss.fpsMu.Lock()
	defer ss.fpsMu.Unlock()

	if len(ss.fpsWindow) < 2 {
		return 0
	}
	first := ss.fpsWindow[0]
	last := ss.fpsWindow[len(ss.fpsWindow)-1]
	dur := last.Sub(first).Seconds()
	if dur <= 0 {
		return 0
	}
	return float64(len(ss.fpsWindow)-1) / dur
}

// BitrateKbps computes the current bitrate from a 2-second sliding window
// of frame sizes.
func (ss *StreamStats) BitrateKbps() float64 {
	ss.bitrateMu.Lock()
	defer ss.bitrateMu.Unlock()

	if len(ss.bitrateWindow) < 2 {
		return 0
	}
	first := ss.bitrateWindow[0].ts
	last := ss.bitrateWindow[len(ss.bitrateWindow)-1].ts
	dur := last.Sub(first).Seconds()
	if dur <= 0 {
		return 0
	}
	var total int64
	for _, e := range ss.bitrateWindow {
		total += e.bytes
	}
	return float64(total) * 8 / dur / 1000
}

// Snapshot produces a consistent point-in-time view of the stream's audio
// statistics.
func (ss *StreamStats) Snapshot() AudioStats {
	ss.codecMu.RLock()
	sampleRate, channels, frameDurationUs := ss.sampleRate, ss.channels, ss.frameDurationUs
	ss.codecMu.RUnlock()

	return AudioStats{
		Codec:           "dts",
		SampleRate:      sampleRate,
		Channels:        channels,
		TotalFrames:     ss.totalFrames.Load(),
		TotalBytes:      ss.totalBytes.Load(),
		BitrateKbps:     ss.BitrateKbps(),
		FrameRate:       ss.FrameRate(),
		FrameDurationUs: frameDurationUs,
		RecoveredErrors: ss.recovered.Load(),
	}
}
