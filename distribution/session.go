package distribution

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"

	"github.com/zsiec/dtsflow/dts"
)

// frameBufferSize bounds the per-viewer pending-frame channel. A viewer
// that falls behind this far has its frames dropped rather than blocking
// the relay's broadcast loop.
const frameBufferSize = 64

// Compile-time interface check.
var _ Viewer = (*viewerSession)(nil)

type queuedFrame struct {
	data  []byte
	ptsUs int64
}

// viewerSession adapts a single QUIC connection into a Viewer. Frames
// accepted by SendFrame are queued and written to one persistent
// unidirectional stream by a dedicated write loop, so a slow viewer
// cannot stall the relay's broadcast to other viewers.
type viewerSession struct {
	id     string
	log    *slog.Logger
	conn   quic.Connection
	writer StreamFrameWriter

	frames chan queuedFrame
	format chan dts.StreamFormat

	sent    atomic.Int64
	dropped atomic.Int64
	bytes   atomic.Int64
	lastPTS atomic.Int64
}

// newViewerSession creates a viewerSession over conn and starts its write
// loop. The write loop exits when ctx is cancelled or the connection
// closes.
func newViewerSession(ctx context.Context, conn quic.Connection, trackAlias uint64) *viewerSession {
	id := uuid.NewString()
	s := &viewerSession{
		id:     id,
		log:    slog.With("component", "viewer-session", "session", id),
		conn:   conn,
		writer: NewDTSFrameWriter(trackAlias, 128),
		frames: make(chan queuedFrame, frameBufferSize),
		format: make(chan dts.StreamFormat, 1),
	}
	go s.writeLoop(ctx)
	return s
}

func (s *viewerSession) ID() string { return s.id }

// SendFormat queues a format announcement. The write loop sends the
// catalog object before any frame data once a format has been received.
func (s *viewerSession) SendFormat(format dts.StreamFormat) {
	select {
	case s.format <- format:
	default:
		// A format was already queued and not yet consumed; the
		// pending one is still correct as of connection time.
	}
}

// SendFrame queues a frame for delivery. If the viewer's channel is
// full, the frame is dropped rather than blocking the broadcaster.
func (s *viewerSession) SendFrame(frame []byte, ptsUs int64) {
	select {
	case s.frames <- queuedFrame{data: frame, ptsUs: ptsUs}:
	default:
		s.dropped.Add(1)
	}
}

// Stats returns this session's delivery metrics.
func (s *viewerSession) Stats() ViewerStats {
	return ViewerStats{
		ID:            s.id,
		FramesSent:    s.sent.Load(),
		FramesDropped: s.dropped.Load(),
		BytesSent:     s.bytes.Load(),
		LastPTSUs:     s.lastPTS.Load(),
	}
}

func (s *viewerSession) writeLoop(ctx context.Context) {
	stream, err := s.conn.OpenUniStreamSync(ctx)
	if err != nil {
		s.log.Debug("open uni stream failed", "error", err)
		return
	}
	defer stream.Close()

	if err := s.writer.WriteStreamHeader(stream, 0); err != nil {
		s.log.Debug("write stream header failed", "error", err)
		return
	}
	s.bytes.Add(s.writer.StreamHeaderSize())

	for {
		// A pending format is written before any further frame.
		frames := s.frames
		if len(s.format) > 0 {
			frames = nil
		}
		select {
		case <-ctx.Done():
			return
		case format := <-s.format:
			catalogJSON, err := buildCatalog(s.id, format)
			if err != nil {
				s.log.Warn("build catalog failed", "error", err)
				continue
			}
			n, err := s.writer.WriteFrame(stream, catalogJSON, 0)
			if err != nil {
				s.log.Debug("write catalog frame failed", "error", err)
				return
			}
			s.bytes.Add(n)
		case f, ok := <-frames:
			if !ok {
				return
			}
			n, err := s.writer.WriteFrame(stream, f.data, f.ptsUs)
			if err != nil {
				s.log.Debug("write frame failed", "error", err)
				return
			}
			s.sent.Add(1)
			s.bytes.Add(n)
			s.lastPTS.Store(f.ptsUs)
		}
	}
}
