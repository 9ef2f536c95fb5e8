package distribution

import (
	"log/slog"
	"sync"

	"github.com/zsiec/dtsflow/dts"
)

// frameCacheSize is the number of recent frames cached for replay to
// late-joining viewers. At a typical 1536-sample DTS frame and a 48kHz
// stream, this covers roughly one second of audio.
const frameCacheSize = 32

// cachedFrame pairs a frame's payload with the presentation timestamp it
// was assembled with.
type cachedFrame struct {
	data  []byte
	ptsUs int64
}

// Relay is the fan-out hub for a single DTS stream. It distributes
// assembled frames from the pipeline to all connected viewers, and caches
// recent frames so a late-joining viewer can pre-fill its buffer before
// the next live frame arrives.
type Relay struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]Viewer

	formatMu  sync.RWMutex
	format    dts.StreamFormat
	formatSet bool
	ready     chan struct{}

	cacheMu sync.RWMutex
	cache   []cachedFrame
}

// NewRelay creates a Relay with no viewers.
func NewRelay() *Relay {
	return &Relay{
		log:      slog.With("component", "relay"),
		sessions: make(map[string]Viewer),
		ready:    make(chan struct{}),
	}
}

// SetFormat stores the stream format announced by the FrameAssembler.
// Only the first call takes effect. The pipeline calls it from its
// dts.Output AnnounceFormat method.
func (r *Relay) SetFormat(format dts.StreamFormat) {
	r.formatMu.Lock()
	defer r.formatMu.Unlock()
	if !r.formatSet {
		r.format = format
		r.formatSet = true
		close(r.ready)
		r.log.Debug("format set",
			"sampleRate", format.SampleRateHz,
			"channels", format.Channels,
			"samplesPerFrame", format.SamplesPerFrame)
	}
}

// Format returns the detected stream format, or the zero value if no
// frame has been decoded yet.
func (r *Relay) Format() dts.StreamFormat {
	r.formatMu.RLock()
	defer r.formatMu.RUnlock()
	return r.format
}

// FormatReady returns a channel closed once the first format has been
// announced.
func (r *Relay) FormatReady() <-chan struct{} {
	return r.ready
}

// AddViewer replays the cached frames to the viewer, then registers it
// for live frame delivery. Replay happens before registration so that
// BroadcastFrame cannot interleave live frames before replay completes.
func (r *Relay) AddViewer(v Viewer) {
	r.formatMu.RLock()
	if r.formatSet {
		v.SendFormat(r.format)
	}
	r.formatMu.RUnlock()

	r.cacheMu.RLock()
	for _, f := range r.cache {
		v.SendFrame(f.data, f.ptsUs)
	}
	r.cacheMu.RUnlock()

	r.mu.Lock()
	r.sessions[v.ID()] = v
	r.mu.Unlock()

	r.log.Info("viewer added", "session", v.ID(), "viewers", r.ViewerCount())
}

// RemoveViewer unregisters a viewer by ID.
func (r *Relay) RemoveViewer(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	r.log.Info("viewer removed", "session", id, "viewers", r.ViewerCount())
}

// BroadcastFrame sends a frame to all connected viewers and updates the
// recent-frame cache.
func (r *Relay) BroadcastFrame(frame []byte, ptsUs int64) {
	cp := make([]byte, len(frame))
	copy(cp, frame)

	r.cacheMu.Lock()
	if len(r.cache) >= frameCacheSize {
		copy(r.cache, r.cache[1:])
		r.cache[len(r.cache)-1] = cachedFrame{cp, ptsUs}
	} else {
		r.cache = append(r.cache, cachedFrame{cp, ptsUs})
	}
	r.cacheMu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.sessions {
		v.SendFrame(cp, ptsUs)
	}
}

// ViewerCount returns the number of currently connected viewers.
func (r *Relay) ViewerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ViewerStatsAll returns delivery metrics for every connected viewer.
func (r *Relay) ViewerStatsAll() []ViewerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make([]ViewerStats, 0, len(r.sessions))
	for _, v := range r.sessions {
		stats = append(stats, v.Stats())
	}
	return stats
}
