package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestAudioFormat_FrameSize(t *testing.T) {
	f := AudioFormat{SampleRate: 44100, Channels: 2, Format: SampleFormatS16}
	assert.Equal(t, 4, f.FrameSize())
	assert.True(t, f.IsDefined())
	assert.True(t, f.IsValid())
}

func TestAudioFormat_InvalidChannelsOrRate(t *testing.T) {
	tooManyChannels := AudioFormat{SampleRate: 44100, Channels: 9, Format: SampleFormatS16}
	assert.False(t, tooManyChannels.IsValid())

	tooHighRate := AudioFormat{SampleRate: 400000, Channels: 2, Format: SampleFormatS16}
	assert.False(t, tooHighRate.IsValid())
}

func TestSongTime_ToFrame(t *testing.T) {
	st := SongTimeFromSeconds(2.0)
	assert.Equal(t, uint64(88200), st.ToFrame(44100))
}

func TestSongTime_Sub_NeverNegative(t *testing.T) {
	a := SongTimeFromSeconds(1.0)
	b := SongTimeFromSeconds(2.0)
	assert.Equal(t, SongTime(0), a.Sub(b))
}

// Property: FrameSize is always a non-negative multiple of Channels
// for any valid format, and TimeToSize is always non-negative.
func TestAudioFormat_FrameSizeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rate := rapid.Uint32Range(1, 384000).Draw(t, "rate")
		channels := rapid.Uint8Range(1, 8).Draw(t, "channels")
		sf := rapid.SampledFrom([]SampleFormat{
			SampleFormatS16, SampleFormatS24, SampleFormatS32, SampleFormatFloat32,
		}).Draw(t, "format")

		f := AudioFormat{SampleRate: rate, Channels: channels, Format: sf}
		assert.True(t, f.IsValid())
		assert.GreaterOrEqual(t, f.FrameSize(), int(channels))
		assert.GreaterOrEqual(t, f.TimeToSize(), 0.0)
	})
}
