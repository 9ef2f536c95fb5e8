package distribution

import (
	"io"

	"github.com/quic-go/quic-go/quicvarint"
)

// MoQ stream type constant (draft-ietf-moq-transport-15): a subgroup
// stream with an explicit Subgroup ID in the header and per-object
// extension headers.
const moqStreamTypeSubgroupSIDExt uint64 = 0x0d

// locExtCaptureTimestamp is the LOC header extension ID (draft-ietf-moq-loc)
// for a capture timestamp: an even ID means the extension value is a
// varint (microseconds), not a length-prefixed byte string.
const locExtCaptureTimestamp uint64 = 2

// Compile-time interface check.
var _ StreamFrameWriter = (*dtsFrameWriter)(nil)

// dtsFrameWriter implements StreamFrameWriter using MoQ Transport data
// stream framing with a single LOC capture-timestamp extension per
// object. Unlike a multi-track writer, it never emits a decoder
// configuration record: a DTS frame's header alone is self-describing.
type dtsFrameWriter struct {
	trackAlias        uint64
	publisherPriority byte
	objectID          uint64
}

// NewDTSFrameWriter returns a StreamFrameWriter that produces MoQ-compliant
// data stream framing for one DTS audio track. trackAlias is a
// session-scoped identifier for the track, and publisherPriority sets the
// priority (0=highest, 255=lowest).
func NewDTSFrameWriter(trackAlias uint64, publisherPriority byte) StreamFrameWriter {
	return &dtsFrameWriter{trackAlias: trackAlias, publisherPriority: publisherPriority}
}

func (w *dtsFrameWriter) WriteStreamHeader(out io.Writer, groupID uint32) error {
	w.objectID = 0

	var buf []byte
	buf = quicvarint.Append(buf, moqStreamTypeSubgroupSIDExt)
	buf = quicvarint.Append(buf, w.trackAlias)
	buf = quicvarint.Append(buf, uint64(groupID))
	buf = quicvarint.Append(buf, 0) // subgroup ID
	buf = append(buf, w.publisherPriority)

	_, err := out.Write(buf)
	return err
}

func (w *dtsFrameWriter) WriteFrame(out io.Writer, frame []byte, ptsUs int64) (int64, error) {
	var exts []byte
	exts = quicvarint.Append(exts, locExtCaptureTimestamp)
	exts = quicvarint.Append(exts, uint64(ptsUs))

	var hdr []byte
	hdr = quicvarint.Append(hdr, w.objectID)
	hdr = quicvarint.Append(hdr, uint64(len(exts)))
	hdr = append(hdr, exts...)
	hdr = quicvarint.Append(hdr, uint64(len(frame)))

	w.objectID++

	total := int64(len(hdr) + len(frame))
	if _, err := out.Write(hdr); err != nil {
		return 0, err
	}
	if _, err := out.Write(frame); err != nil {
		return 0, err
	}
	return total, nil
}

func (w *dtsFrameWriter) StreamHeaderSize() int64 {
	size := quicvarint.Len(moqStreamTypeSubgroupSIDExt) +
		quicvarint.Len(w.trackAlias) +
		1 + // groupID 0 (typical, 1-byte varint)
		1 + // subgroupID 0 (1-byte varint)
		1 // publisher priority
	return int64(size)
}
