// Package decoderplugin implements the plugin side of the bridge
// contract: the code that would normally live inside an MPD decoder
// plugin's stream_decode() entry point, driving a *decoder.Bridge
// through OpenUri/Ready/GetCommand/SubmitData/SubmitTag/CommandFinished.
// Grounded on the teacher's cmd/audio/test.go (the minimal
// mp3.Decode+portaudio proof of concept) and internal/audio/player.go's
// beep.Resample wiring, now replayed against the bridge's command loop
// instead of a direct speaker.Play call.
package decoderplugin

import (
	"io"

	"github.com/gopxl/beep/mp3"

	"github.com/outpost-audio/bridge/internal/decoder"
	"github.com/outpost-audio/bridge/internal/format"
	"github.com/outpost-audio/bridge/internal/replaygain"
	"github.com/outpost-audio/bridge/internal/tag"
)

// Mp3 is a decoder plugin for MPEG audio streams.
type Mp3 struct {
	Logger decoder.Logger
}

func (Mp3) Name() string { return "mp3" }

// streamReader adapts a decoder.InputStream, under the bridge's
// cancellation contract, into the plain io.ReadCloser go-mp3/beep's
// decoder wants.
type streamReader struct {
	bridge *decoder.Bridge
	is     decoder.InputStream
	logger decoder.Logger
}

func (r *streamReader) Read(p []byte) (int, error) {
	n := decoder.Read(r.bridge, r.is, p, r.logger)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (r *streamReader) Close() error { return nil }

// Run implements one full decode session: open uri, hand off the
// format, then loop submitting decoded PCM until a STOP virtual
// command or end of stream (spec.md §4.1, §4.2, §4.7).
func (p Mp3) Run(bridge *decoder.Bridge, uri string) error {
	is, err := bridge.OpenUri(uri)
	if err != nil {
		if err == decoder.ErrStopDecoder {
			return nil
		}
		bridge.CaptureError(decoder.ErrorKindIO, err)
		return err
	}

	reader := &streamReader{bridge: bridge, is: is, logger: p.Logger}

	streamer, beepFormat, err := mp3.Decode(reader)
	if err != nil {
		bridge.CaptureError(decoder.ErrorKindPlugin, err)
		return err
	}
	defer streamer.Close()

	inFormat := format.AudioFormat{
		SampleRate: uint32(beepFormat.SampleRate),
		Channels:   uint8(beepFormat.NumChannels),
		Format:     format.SampleFormatS16,
	}
	duration := format.SongTimeFromSeconds(beepFormat.SampleRate.D(streamer.Len()).Seconds())

	bridge.Ready(inFormat, true, duration)

	if t := buildTag(duration); t != nil {
		if cmd := bridge.SubmitTag(is, t); cmd == decoder.CommandStop {
			return nil
		}
	}

	bridge.SubmitReplayGain(&replaygain.Info{
		Track: replaygain.UndefinedTuple(),
		Album: replaygain.UndefinedTuple(),
	})

	buf := make([][2]float64, 1152) // one MPEG frame's worth of samples

	for {
		cmd := bridge.GetCommand()

		switch cmd {
		case decoder.CommandStop:
			return nil

		case decoder.CommandSeek:
			frame := int(bridge.GetSeekFrame())
			if err := streamer.Seek(frame); err != nil {
				bridge.SeekError()
			} else {
				bridge.CommandFinished()
			}
			continue
		}

		n, ok := streamer.Stream(buf)
		if n > 0 {
			data := encodeS16(buf[:n])
			if cmd := bridge.SubmitData(is, data, 0); cmd == decoder.CommandStop {
				return nil
			}
		}
		if !ok {
			return nil
		}
	}
}

func buildTag(duration format.SongTime) *tag.Tag {
	t := tag.New()
	t.Duration = duration.ToSeconds()
	return t
}

// encodeS16 packs beep's canonical [-1,1] float64 stereo frames into
// little-endian signed 16-bit interleaved PCM.
func encodeS16(frames [][2]float64) []byte {
	out := make([]byte, len(frames)*4)
	for i, f := range frames {
		l := clampS16(f[0])
		r := clampS16(f[1])
		out[i*4+0] = byte(l)
		out[i*4+1] = byte(l >> 8)
		out[i*4+2] = byte(r)
		out[i*4+3] = byte(r >> 8)
	}
	return out
}

func clampS16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767.0)
}
