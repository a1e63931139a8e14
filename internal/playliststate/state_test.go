package playliststate

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveRestore_RoundTrip(t *testing.T) {
	p := &Playlist{
		Queue:        []QueueEntry{{URI: "file:///a.mp3"}, {URI: "file:///b.mp3"}},
		Playing:      true,
		State:        StatePlay,
		Current:      1,
		ElapsedS:     42,
		Random:       true,
		Repeat:       true,
		CrossfadeS:   5,
		MixRampDB:    -17.0,
		MixRampDelay: 1.5,
	}

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, p))

	lines := strings.SplitN(buf.String(), "\n", 2)
	require.Len(t, lines, 2)

	restored, err := Restore(lines[0], strings.NewReader(lines[1]))
	require.NoError(t, err)

	assert.Equal(t, p.State, restored.State)
	assert.Equal(t, p.Current, restored.Current)
	assert.Equal(t, p.ElapsedS, restored.ElapsedS)
	assert.Equal(t, p.Random, restored.Random)
	assert.Equal(t, p.Repeat, restored.Repeat)
	assert.Equal(t, p.CrossfadeS, restored.CrossfadeS)
	assert.InDelta(t, p.MixRampDB, restored.MixRampDB, 0.001)
	assert.Len(t, restored.Queue, 2)
	assert.Equal(t, "file:///a.mp3", restored.Queue[0].URI)
}

func TestRestore_InvalidCurrentClampedToZero(t *testing.T) {
	body := "state: stop\n" +
		"current: 99\n" +
		"random: 0\n" +
		"repeat: 0\n" +
		"single: 0\n" +
		"consume: 0\n" +
		"crossfade: 0\n" +
		"mixrampdb: 0.000000\n" +
		"mixrampdelay: 0.000000\n" +
		"playlist_begin\n" +
		"file:///only.mp3\n" +
		"playlist_end\n"

	lines := strings.SplitN(body, "\n", 2)
	require.Len(t, lines, 2)

	restored, err := Restore(lines[0], strings.NewReader(lines[1]))
	require.NoError(t, err)
	assert.Equal(t, 0, restored.Current)
}

func TestHash_ChangesWithState(t *testing.T) {
	base := &Playlist{State: StateStop, Current: -1}
	h1 := Hash(base)

	playing := &Playlist{State: StatePlay, Current: 0, Playing: true, ElapsedS: 10}
	h2 := Hash(playing)

	assert.NotEqual(t, h1, h2)
}

func TestHash_StableForIdenticalState(t *testing.T) {
	p := &Playlist{State: StatePlay, Current: 2, Playing: true, ElapsedS: 30, Random: true}
	assert.Equal(t, Hash(p), Hash(p))
}
