// Package distribution implements the QUIC-based viewer delivery layer for
// a single DTS elementary stream: the fan-out relay, per-viewer session
// management, and the QUIC server that ties them together. The wire
// framing is a reduced MoQ-style object layout (draft-ietf-moq-transport),
// carrying one audio track per stream.
package distribution

import (
	"io"

	"github.com/zsiec/dtsflow/dts"
)

// TrackIDAudio identifies the (sole) audio track in the catalog and wire
// framing. DTS streams in this relay never carry more than one track.
const TrackIDAudio byte = 10

// StreamFrameWriter abstracts the wire format used to write DTS frame data
// to a viewer's unidirectional stream.
type StreamFrameWriter interface {
	// WriteStreamHeader writes the stream-level header (subgroup header)
	// at the start of a new unidirectional stream.
	WriteStreamHeader(w io.Writer, groupID uint32) error

	// WriteFrame writes a single DTS frame (header + payload) to w,
	// returning the total bytes written.
	WriteFrame(w io.Writer, frame []byte, ptsUs int64) (int64, error)

	// StreamHeaderSize returns the byte size of the stream header written
	// by WriteStreamHeader, used for accurate byte accounting.
	StreamHeaderSize() int64
}

// Viewer is the interface a viewer session must implement to receive
// frames and format announcements from a Relay.
type Viewer interface {
	ID() string
	SendFormat(format dts.StreamFormat)
	SendFrame(frame []byte, ptsUs int64)
	Stats() ViewerStats
}
