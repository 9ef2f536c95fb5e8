package distribution

import (
	"encoding/json"
	"fmt"

	"github.com/zsiec/dtsflow/dts"
)

// catalog is the top-level catalog structure per draft-ietf-moq-catalogformat,
// reduced to the single audio track every DTS relay carries.
type catalog struct {
	Version                int            `json:"version"`
	StreamingFormat        int            `json:"streamingFormat"`
	StreamingFormatVersion string         `json:"streamingFormatVersion"`
	CommonTrackFields      commonFields   `json:"commonTrackFields"`
	Tracks                 []catalogTrack `json:"tracks"`
}

// commonFields holds fields shared by all tracks in the catalog.
type commonFields struct {
	Namespace string `json:"namespace"`
	Packaging string `json:"packaging"`
}

// catalogTrack describes a single track in the catalog.
type catalogTrack struct {
	Name            string          `json:"name"`
	SelectionParams selectionParams `json:"selectionParams"`
}

// selectionParams holds codec and media parameters for track selection.
type selectionParams struct {
	Codec         string `json:"codec"`
	SampleRate    int    `json:"samplerate,omitempty"`
	ChannelConfig string `json:"channelConfig,omitempty"`
	Lang          string `json:"lang,omitempty"`
}

// buildCatalog assembles the catalog JSON for a stream's sole audio track.
// format may be the zero value if no frame has been decoded yet, in which
// case samplerate/channelConfig are omitted.
func buildCatalog(streamKey string, format dts.StreamFormat) ([]byte, error) {
	channelConfig := ""
	if format.Channels > 0 {
		channelConfig = fmt.Sprintf("%d", format.Channels)
	}
	c := catalog{
		Version:                1,
		StreamingFormat:        1,
		StreamingFormatVersion: "0.2",
		CommonTrackFields: commonFields{
			Namespace: fmt.Sprintf("dtsflow/%s", streamKey),
			Packaging: "loc",
		},
		Tracks: []catalogTrack{
			{
				Name: "audio",
				SelectionParams: selectionParams{
					Codec:         codecOrDefault(format.CodecTag),
					SampleRate:    format.SampleRateHz,
					ChannelConfig: channelConfig,
					Lang:          format.Language,
				},
			},
		},
	}

	return json.Marshal(c)
}

// codecOrDefault falls back to the codec tag's plain name when format is
// the zero value (no frame decoded yet).
func codecOrDefault(codecTag string) string {
	if codecTag == "" {
		return "dts"
	}
	return codecTag
}
