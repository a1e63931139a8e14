// Package pcmconvert implements decoder.PcmConvert on top of
// gopxl/beep's resampler, grounded on the teacher's internal/audio.Player
// which builds its output chain the same way:
// beep.Resample(4, srcRate, dstRate, streamer) wrapping a plain
// beep.Streamer (internal/audio/player.go Play/crossfadeTo). Each
// Convert call resamples the bytes handed to it as one short,
// self-contained beep stream — simpler than threading continuation
// state through the bridge, at the cost of resetting the resampler's
// interpolation history at chunk boundaries.
package pcmconvert

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gopxl/beep"

	"github.com/outpost-audio/bridge/internal/decoder"
	"github.com/outpost-audio/bridge/internal/format"
)

const resampleQuality = 4

// New builds a decoder.ConvertFactory producing fresh Converters.
func New() decoder.ConvertFactory {
	return func() decoder.PcmConvert {
		return &Converter{}
	}
}

// Converter is a decoder.PcmConvert that resamples/rechannels/
// requantizes PCM via beep.Resample.
type Converter struct {
	in, out format.AudioFormat
}

func (c *Converter) Open(in, out format.AudioFormat) error {
	if !in.IsValid() || !out.IsValid() {
		return fmt.Errorf("pcmconvert: invalid format in=%v out=%v", in, out)
	}
	c.in = in
	c.out = out
	return nil
}

func (c *Converter) Close() {}

// Convert resamples/rechannels data (whole frames of c.in) into whole
// frames of c.out.
func (c *Converter) Convert(data []byte) ([]byte, error) {
	frameSize := c.in.FrameSize()
	if frameSize <= 0 || len(data)%frameSize != 0 {
		return nil, fmt.Errorf("pcmconvert: data is not a whole number of input frames")
	}

	frames := decodeFrames(c.in, data)

	var streamer beep.Streamer = &frameStreamer{frames: frames}
	if c.in.SampleRate != c.out.SampleRate {
		streamer = beep.Resample(resampleQuality, beep.SampleRate(c.in.SampleRate), beep.SampleRate(c.out.SampleRate), streamer)
	}

	out := drain(streamer)
	return encodeFrames(c.out, out), nil
}

// frameStreamer serves a fixed slice of stereo frames, then ends.
type frameStreamer struct {
	frames [][2]float64
	pos    int
}

func (f *frameStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	n = copy(samples, f.frames[f.pos:])
	f.pos += n
	return n, n > 0
}

func (f *frameStreamer) Err() error { return nil }

func drain(s beep.Streamer) [][2]float64 {
	var out [][2]float64
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if !ok {
			return out
		}
	}
}

// decodeFrames unpacks raw PCM into beep's canonical stereo
// float64-in-[-1,1] frame representation, downmixing/upmixing channel
// counts as needed.
func decodeFrames(f format.AudioFormat, data []byte) [][2]float64 {
	frameSize := f.FrameSize()
	n := len(data) / frameSize
	frames := make([][2]float64, n)

	sampleBytes := f.Format.Bytes()
	for i := 0; i < n; i++ {
		base := i * frameSize
		left, right := 0.0, 0.0
		for ch := 0; ch < int(f.Channels); ch++ {
			v := decodeSample(f.Format, data[base+ch*sampleBytes:base+(ch+1)*sampleBytes])
			switch {
			case f.Channels == 1:
				left, right = v, v
			case ch == 0:
				left = v
			case ch == 1:
				right = v
			}
		}
		frames[i] = [2]float64{left, right}
	}
	return frames
}

func encodeFrames(f format.AudioFormat, frames [][2]float64) []byte {
	frameSize := f.FrameSize()
	out := make([]byte, len(frames)*frameSize)
	sampleBytes := f.Format.Bytes()

	for i, fr := range frames {
		base := i * frameSize
		for ch := 0; ch < int(f.Channels); ch++ {
			v := fr[0]
			if ch == 1 || (f.Channels == 1) {
				if f.Channels == 1 {
					v = (fr[0] + fr[1]) / 2
				} else {
					v = fr[1]
				}
			}
			encodeSample(f.Format, v, out[base+ch*sampleBytes:base+(ch+1)*sampleBytes])
		}
	}
	return out
}

func decodeSample(sf format.SampleFormat, b []byte) float64 {
	switch sf {
	case format.SampleFormatS16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / 32768.0
	case format.SampleFormatS24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if v&0x800000 != 0 {
			v |= -1 << 24
		}
		return float64(v) / 8388608.0
	case format.SampleFormatS32:
		return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648.0
	case format.SampleFormatFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		return 0
	}
}

func encodeSample(sf format.SampleFormat, v float64, b []byte) {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	switch sf {
	case format.SampleFormatS16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v*32767.0)))
	case format.SampleFormatS24:
		iv := int32(v * 8388607.0)
		b[0] = byte(iv)
		b[1] = byte(iv >> 8)
		b[2] = byte(iv >> 16)
	case format.SampleFormatS32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v*2147483647.0)))
	case format.SampleFormatFloat32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	}
}
