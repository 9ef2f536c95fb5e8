// Package pipeline bridges a single ingest stream's raw bytes through the
// dts.FrameAssembler to the distribution Relay, collecting telemetry
// along the way.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/zsiec/dtsflow/distribution"
	"github.com/zsiec/dtsflow/dts"
)

// readBufferSize bounds each read from the ingest stream before it is
// handed to the assembler.
const readBufferSize = 32 * 1024

// Broadcaster is the subset of distribution.Relay the pipeline depends
// on, accepted as an interface so the pipeline can be tested with a stub
// in place of a real Relay.
type Broadcaster interface {
	SetFormat(format dts.StreamFormat)
	BroadcastFrame(frame []byte, ptsUs int64)
	ViewerCount() int
	ViewerStatsAll() []distribution.ViewerStats
}

// IngestStats reports byte-level ingest metrics, implemented by
// ingest.Stream. Accepted as an interface to avoid a dependency from
// pipeline on the ingest package for a single counter.
type IngestStats interface {
	BytesReceived() int64
}

// Pipeline bridges one ingest stream's bytes, through a dts.FrameAssembler,
// to a Broadcaster. It implements dts.Output, receiving the assembler's
// format announcement and frame deliveries directly.
type Pipeline struct {
	log       *slog.Logger
	streamKey string
	input     io.Reader
	relay     Broadcaster
	ingest    IngestStats
	stats     *distribution.StreamStats
	asm       *dts.FrameAssembler
	startTime time.Time
	protocol  string

	pendingPayload []byte
}

// New creates a Pipeline that reads from input, decodes DTS frames, and
// forwards them to relay. language is an opaque value (e.g. an ISO 639
// code) carried through unchanged into every announced format; pass ""
// when the ingest source has no language metadata.
func New(streamKey string, input io.Reader, relay Broadcaster, language string) *Pipeline {
	p := &Pipeline{
		log:       slog.With("component", "pipeline", "stream", streamKey),
		streamKey: streamKey,
		input:     input,
		relay:     relay,
		stats:     distribution.NewStreamStats(),
		startTime: time.Now(),
	}
	p.asm = dts.NewFrameAssembler(p, p.onAssemblerError, language)
	return p
}

// SetIngestSource attaches the ingest stream's byte counters for inclusion
// in stats snapshots. Optional: a Pipeline fed by something other than
// the ingest package's Registry (e.g. a test stub) can omit this.
func (p *Pipeline) SetIngestSource(src IngestStats) {
	p.ingest = src
}

// SetProtocol records the ingest protocol name (e.g. "SRT") for inclusion
// in stats snapshots.
func (p *Pipeline) SetProtocol(proto string) {
	p.protocol = proto
}

// StreamSnapshot returns a point-in-time view of stream health, satisfying
// distribution.StatsProvider.
func (p *Pipeline) StreamSnapshot() distribution.StreamSnapshot {
	var ingestBytes int64
	if p.ingest != nil {
		ingestBytes = p.ingest.BytesReceived()
	}

	return distribution.StreamSnapshot{
		Timestamp:   time.Now().UnixMilli(),
		UptimeMs:    time.Since(p.startTime).Milliseconds(),
		Protocol:    p.protocol,
		IngestBytes: ingestBytes,
		Audio:       p.stats.Snapshot(),
		ViewerCount: p.relay.ViewerCount(),
		Viewers:     p.relay.ViewerStatsAll(),
	}
}

// Run reads from the ingest stream and feeds the assembler until input is
// exhausted or ctx is cancelled. It never returns an error for recoverable
// assembler conditions; those surface only through StreamSnapshot's
// RecoveredErrors counter.
func (p *Pipeline) Run(ctx context.Context) error {
	p.asm.PacketStarted(0, dts.FlagSync)

	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := p.input.Read(buf)
		if n > 0 {
			p.asm.Consume(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// onAssemblerError records a recovered assembler error in the stats
// collector. It never stops the pipeline: the assembler itself already
// recovered before invoking this hook.
func (p *Pipeline) onAssemblerError(aerr *dts.AssemblerError) {
	p.log.Debug("recovered assembler error", "error", aerr.Err, "state", aerr.State)
	p.stats.RecordRecoveredError()
}

// --- dts.Output implementation ---

// AnnounceFormat forwards the decoded stream format to the relay and
// records it for stats snapshots.
func (p *Pipeline) AnnounceFormat(format dts.StreamFormat) {
	p.relay.SetFormat(format)
	p.stats.RecordFormat(format.SampleRateHz, format.Channels, format.FrameDurationUs)
	p.log.Info("format announced",
		"sampleRate", format.SampleRateHz,
		"channels", format.Channels,
		"frameDurationUs", format.FrameDurationUs,
		"codecTag", format.CodecTag,
		"language", format.Language)
}

// SampleData stashes the frame payload until the matching SampleMetadata
// call, copying it since the assembler's buffer is reused immediately
// after this call returns.
func (p *Pipeline) SampleData(payload []byte) {
	if cap(p.pendingPayload) < len(payload) {
		p.pendingPayload = make([]byte, len(payload))
	} else {
		p.pendingPayload = p.pendingPayload[:len(payload)]
	}
	copy(p.pendingPayload, payload)
}

// SampleMetadata broadcasts the frame most recently passed to SampleData
// and updates stats.
func (p *Pipeline) SampleMetadata(ptsUs int64, _ dts.FrameFlags, size int, _ int) {
	p.relay.BroadcastFrame(p.pendingPayload, ptsUs)
	p.stats.RecordFrame(size)
}
