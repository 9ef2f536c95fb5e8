package passthrough

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ebitengine/oto/v3"

	"github.com/zsiec/dtsflow/dts"
)

// Sink implements dts.Output, wrapping each decoded DTS frame in an IEC
// 61937 burst and writing the resulting PCM-carrier bytes to a
// persistent oto.Player, for passthrough to a compressed-audio-capable
// receiver over S/PDIF or HDMI.
type Sink struct {
	log *slog.Logger

	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	format          dts.StreamFormat
	samplesPerFrame int
	ready           bool
}

// NewSink creates a Sink with no audio device open yet. Open is called
// lazily from AnnounceFormat once the stream's sample rate is known.
func NewSink(log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{log: log.With("component", "passthrough-sink")}
}

// AnnounceFormat opens the oto output at the announced sample rate. IEC
// 61937 passthrough always carries 2 channels of 16-bit PCM regardless
// of the DTS stream's decoded channel count: the receiver recovers the
// true channel layout from the DTS bitstream itself.
func (s *Sink) AnnounceFormat(format dts.StreamFormat) {
	s.format = format
	s.samplesPerFrame = format.SamplesPerFrame
	if s.samplesPerFrame == 0 {
		s.samplesPerFrame = 512
	}

	if err := s.open(format.SampleRateHz); err != nil {
		s.log.Error("open passthrough output failed", "error", err)
		return
	}

	s.log.Info("passthrough sink opened",
		"sampleRate", format.SampleRateHz,
		"samplesPerFrame", s.samplesPerFrame)
}

func (s *Sink) open(sampleRate int) error {
	if s.otoCtx != nil {
		return nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("create oto context: %w", err)
	}
	<-ready

	s.otoCtx = ctx
	s.pipeReader, s.pipeWriter = io.Pipe()
	s.player = ctx.NewPlayer(s.pipeReader)
	s.player.Play()
	s.ready = true

	return nil
}

// SampleData encodes one DTS frame as an IEC 61937 burst and writes it
// to the output pipe, blocking until the player has consumed it.
func (s *Sink) SampleData(payload []byte) {
	if !s.ready {
		return
	}

	burst := encodeBurst(payload, s.samplesPerFrame)
	if _, err := s.pipeWriter.Write(burst); err != nil {
		s.log.Debug("passthrough write failed", "error", err)
	}
}

// SampleMetadata is a no-op: IEC 61937 burst timing is locked to the PCM
// sample clock, so explicit PTS pacing has no effect on playback.
func (s *Sink) SampleMetadata(int64, dts.FrameFlags, int, int) {}

// Close releases the output device.
func (s *Sink) Close() error {
	if s.pipeWriter != nil {
		s.pipeWriter.Close()
	}
	if s.player != nil {
		s.player.Close()
	}
	if s.pipeReader != nil {
		s.pipeReader.Close()
	}
	if s.otoCtx != nil {
		s.otoCtx.Suspend()
	}
	s.ready = false
	return nil
}
