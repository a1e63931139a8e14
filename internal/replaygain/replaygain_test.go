package replaygain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestTuple_CalculateScale_DefinedGain(t *testing.T) {
	tup := Tuple{Gain: -6.0206, Peak: float32(math.NaN())}
	scale := tup.CalculateScale(0, 0, false)
	assert.InDelta(t, 0.5, scale, 0.001)
}

func TestTuple_CalculateScale_FallsBackToMissingPreamp(t *testing.T) {
	tup := UndefinedTuple()
	scale := tup.CalculateScale(0, -6.0206, false)
	assert.InDelta(t, 0.5, scale, 0.001)
}

func TestTuple_CalculateScale_LimitClipsToPeak(t *testing.T) {
	tup := Tuple{Gain: 20, Peak: 0.5}
	scale := tup.CalculateScale(0, 0, true)
	assert.InDelta(t, 2.0, scale, 0.001)
}

func TestTuple_CalculateScale_NeverNegative(t *testing.T) {
	tup := Tuple{Gain: -1000, Peak: float32(math.NaN())}
	scale := tup.CalculateScale(0, 0, false)
	assert.GreaterOrEqual(t, scale, 0.0)
}

func TestSerial_NeverReturnsZero(t *testing.T) {
	var s Serial
	// force a wraparound and confirm 0 is always skipped.
	s.n = math.MaxUint32
	for i := 0; i < 3; i++ {
		v := s.Next()
		assert.NotZero(t, v)
	}
}

func TestSerial_NeverReturnsZeroProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var s Serial
		s.n = rapid.Uint32().Draw(t, "start")
		for i := 0; i < 5; i++ {
			assert.NotZero(t, s.Next())
		}
	})
}

func TestResolveMode_CoercesToTrackExceptAlbum(t *testing.T) {
	assert.Equal(t, ModeAlbum, ResolveMode(ModeAlbum))
	assert.Equal(t, ModeTrack, ResolveMode(ModeTrack))
	assert.Equal(t, ModeTrack, ResolveMode(ModeOff))
}
