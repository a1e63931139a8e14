package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/outpost-audio/bridge/internal/format"
)

func TestChunk_WriteExpandFullCycle(t *testing.T) {
	f := format.AudioFormat{SampleRate: 44100, Channels: 2, Format: format.SampleFormatS16}
	c := &Chunk{}

	dest := c.Write(f, 0, 128)
	assert.NotEmpty(t, dest)
	assert.Equal(t, Size-Size%f.FrameSize(), len(dest))

	full := c.Expand(f, len(dest))
	assert.True(t, full)
	assert.Equal(t, len(dest), c.Len())
}

func TestChunk_WriteRejectsFormatMismatchOncePinned(t *testing.T) {
	f1 := format.AudioFormat{SampleRate: 44100, Channels: 2, Format: format.SampleFormatS16}
	f2 := format.AudioFormat{SampleRate: 48000, Channels: 2, Format: format.SampleFormatS16}
	c := &Chunk{}

	dest := c.Write(f1, 0, 0)
	c.Expand(f1, 4)

	assert.Nil(t, c.Write(f2, 0, 0))
	assert.NotNil(t, dest)
}

func TestBuffer_AllocateAndReturn(t *testing.T) {
	buf := NewBuffer(2)
	cancel := make(chan struct{})

	c1, ok := buf.Allocate(cancel)
	assert.True(t, ok)
	c2, ok := buf.Allocate(cancel)
	assert.True(t, ok)

	_, ok = buf.Allocate(closedChan())
	assert.False(t, ok, "allocate should respect cancellation once the pool is empty")

	buf.Return(c1)
	buf.Return(c2)

	c3, ok := buf.Allocate(cancel)
	assert.True(t, ok)
	assert.Equal(t, 0, c3.Len(), "returned chunks must be reset")
}

func TestPipe_PushShiftClear(t *testing.T) {
	p := NewPipe(4)
	buf := NewBuffer(4)

	c, _ := buf.Allocate(make(chan struct{}))
	p.Push(c)
	assert.False(t, p.IsEmpty())

	got := p.Shift(make(chan struct{}))
	assert.Same(t, c, got)
	assert.True(t, p.IsEmpty())

	c2, _ := buf.Allocate(make(chan struct{}))
	p.Push(c2)
	p.Clear(buf)
	assert.True(t, p.IsEmpty())
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
