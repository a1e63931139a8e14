package pluginregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-audio/bridge/internal/decoder"
)

type fakePlugin struct{ name string }

func (p *fakePlugin) Name() string { return p.name }
func (p *fakePlugin) Run(bridge *decoder.Bridge, uri string) error { return nil }

func TestResolve_ExactExtensionMatch(t *testing.T) {
	r := New()
	mp3 := &fakePlugin{name: "mp3"}
	flac := &fakePlugin{name: "flac"}
	r.Register(mp3, "mp3")
	r.Register(flac, "flac")

	p, err := r.Resolve("/music/track.mp3")
	require.NoError(t, err)
	assert.Same(t, mp3, p)

	p, err = r.Resolve("/music/track.FLAC")
	require.NoError(t, err)
	assert.Same(t, flac, p)
}

func TestResolve_FuzzyFallback(t *testing.T) {
	r := New()
	mp3 := &fakePlugin{name: "mp3"}
	r.Register(mp3, "mp3")

	p, err := r.Resolve("/music/track.mp3a")
	require.NoError(t, err)
	assert.Same(t, mp3, p)
}

func TestResolve_NoExtension(t *testing.T) {
	r := New()
	_, err := r.Resolve("/music/track")
	assert.Error(t, err)
}

func TestResolve_UnknownExtension(t *testing.T) {
	r := New()
	_, err := r.Resolve("/music/track.xyz123")
	assert.Error(t, err)
}
