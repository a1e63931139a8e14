// Package format holds the bridge's audio-format value types: sample
// rate/channels/sample-width and the fixed-point song-time arithmetic
// the decoder bridge uses to convert between bytes, frames and
// seconds.
package format

import "time"

// SampleFormat is the integer/float width tag of one PCM sample.
type SampleFormat int

const (
	SampleFormatUndefined SampleFormat = iota
	SampleFormatS16
	SampleFormatS24
	SampleFormatS32
	SampleFormatFloat32
)

// Bytes returns the width in bytes of one sample in this format.
func (f SampleFormat) Bytes() int {
	switch f {
	case SampleFormatS16:
		return 2
	case SampleFormatS24:
		return 3
	case SampleFormatS32, SampleFormatFloat32:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatS16:
		return "s16"
	case SampleFormatS24:
		return "s24"
	case SampleFormatS32:
		return "s32"
	case SampleFormatFloat32:
		return "f32"
	default:
		return "undefined"
	}
}

// AudioFormat describes one PCM stream shape.
type AudioFormat struct {
	SampleRate uint32
	Channels   uint8
	Format     SampleFormat
}

// IsDefined reports whether every field has been set to something
// meaningful. Decode start requires a defined, valid in/out format
// (spec.md invariant 1).
func (f AudioFormat) IsDefined() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.Format != SampleFormatUndefined
}

// IsValid additionally rejects channel counts and rates no real
// decoder plugin or output device could produce.
func (f AudioFormat) IsValid() bool {
	return f.IsDefined() && f.Channels <= 8 && f.SampleRate <= 384000
}

// FrameSize is channels * sample width in bytes.
func (f AudioFormat) FrameSize() int {
	return int(f.Channels) * f.Format.Bytes()
}

// TimeToSize is the number of bytes this format emits per second —
// used to convert a byte count written into a chunk back into an
// elapsed-time delta.
func (f AudioFormat) TimeToSize() float64 {
	return float64(f.SampleRate) * float64(f.FrameSize())
}

func (f AudioFormat) Equal(o AudioFormat) bool {
	return f.SampleRate == o.SampleRate && f.Channels == o.Channels && f.Format == o.Format
}

// SongTime is a non-negative duration measured from the start of a
// song, distinct from time.Duration so arithmetic against sample
// counts and seconds stays explicit at call sites, the way
// DecoderAPI.cxx keeps SongTime distinct from raw doubles.
type SongTime time.Duration

func SongTimeFromSeconds(s float64) SongTime {
	if s < 0 {
		s = 0
	}
	return SongTime(time.Duration(s * float64(time.Second)))
}

func (t SongTime) ToSeconds() float64 {
	return time.Duration(t).Seconds()
}

func (t SongTime) IsPositive() bool {
	return t > 0
}

func (t SongTime) Sub(o SongTime) SongTime {
	d := t - o
	if d < 0 {
		return 0
	}
	return d
}

// ToFrame scales a SongTime by a sample rate, mirroring
// SongTime::ToScale<uint64_t>(sample_rate) in DecoderAPI.cxx.
func (t SongTime) ToFrame(sampleRate uint32) uint64 {
	seconds := time.Duration(t).Seconds()
	if seconds <= 0 {
		return 0
	}
	return uint64(seconds * float64(sampleRate))
}
