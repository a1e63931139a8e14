// Package chunk implements the bounded music-chunk pipeline between
// the decoder bridge and the player thread: a fixed-capacity PCM
// buffer (MusicChunk), a blocking allocator (Buffer) and a FIFO
// (Pipe). Grounded on spec.md §3/§4.7 and, for the allocator's
// blocking-pool shape, on the teacher's buffered-channel semaphore in
// internal/download.Manager.
package chunk

import (
	"github.com/outpost-audio/bridge/internal/format"
	"github.com/outpost-audio/bridge/internal/tag"
)

// Size is the fixed byte capacity of one chunk's data buffer. MPD
// defaults to 1020 bytes; kept identical here.
const Size = 1020

// Chunk is a fixed-capacity buffer of output-format PCM plus an
// optional tag, a per-chunk timestamp and an integer bitrate.
type Chunk struct {
	Data      [Size]byte
	length    int
	Timestamp format.SongTime
	KbitRate  uint16
	Tag       *tag.Tag

	// pinned/pinnedFmt track the output format the first Write() call
	// pinned this chunk to, matching the "format-dependent fullness"
	// the spec names — a chunk filled with format A is not required
	// to exactly byte-fit arbitrary writes from format A, but a
	// different format must never be written into the same chunk.
	pinned    bool
	pinnedFmt format.AudioFormat
}

// Write reserves space for one write of the given format at the given
// timestamp/bitrate and returns the destination span, or an empty
// span when the chunk is effectively full for that format (caller
// must flush and retry against a fresh chunk).
func (c *Chunk) Write(f format.AudioFormat, ts format.SongTime, kbitRate uint16) []byte {
	if c.pinned && !c.pinnedFmt.Equal(f) {
		return nil
	}

	frame := f.FrameSize()
	if frame <= 0 {
		return nil
	}

	remaining := Size - c.length
	// only ever offer whole frames, so Expand() always leaves the
	// chunk frame-aligned for the next Write().
	remaining -= remaining % frame
	if remaining <= 0 {
		return nil
	}

	if !c.pinned {
		c.pinned = true
		c.pinnedFmt = f
		c.Timestamp = ts
		c.KbitRate = kbitRate
	}

	return c.Data[c.length : c.length+remaining]
}

// Expand records that nbytes of the span returned by Write were
// actually filled in, and reports whether the chunk is now full.
func (c *Chunk) Expand(f format.AudioFormat, nbytes int) bool {
	c.length += nbytes
	frame := f.FrameSize()
	if frame <= 0 {
		return true
	}
	remaining := Size - c.length
	remaining -= remaining % frame
	return remaining == 0
}

// Len returns the number of valid bytes currently held.
func (c *Chunk) Len() int {
	return c.length
}

func (c *Chunk) Bytes() []byte {
	return c.Data[:c.length]
}

func (c *Chunk) reset() {
	c.length = 0
	c.Timestamp = 0
	c.KbitRate = 0
	c.Tag = nil
	c.pinned = false
	c.pinnedFmt = format.AudioFormat{}
}

// Buffer is a blocking allocator/pool of chunks, bounded to capacity
// entries — the "music buffer" of spec.md §6. It is backed by a
// buffered channel acting as a counting semaphore, the same pattern
// the teacher's download manager uses to bound concurrent transfers.
type Buffer struct {
	free chan *Chunk
}

func NewBuffer(capacity int) *Buffer {
	b := &Buffer{free: make(chan *Chunk, capacity)}
	for i := 0; i < capacity; i++ {
		b.free <- &Chunk{}
	}
	return b
}

// Allocate blocks until a chunk is available or cancel fires, in
// which case it returns (nil, false) — the bridge interprets that as
// "a command arrived during allocation, return it instead".
func (b *Buffer) Allocate(cancel <-chan struct{}) (*Chunk, bool) {
	select {
	case c := <-b.free:
		return c, true
	case <-cancel:
		return nil, false
	}
}

// Return releases a chunk back to the pool.
func (b *Buffer) Return(c *Chunk) {
	c.reset()
	select {
	case b.free <- c:
	default:
		// pool over-full (shouldn't happen with correct bookkeeping);
		// drop the chunk rather than block the caller.
	}
}

// Pipe is a bounded FIFO of chunks flowing from the decoder to the
// player thread. Backed by a buffered channel rather than the
// mutex+cond pair the spec reserves for DecoderControl itself — the
// pipe is an out-of-scope collaborator the spec only describes by
// contract (push/shift/clear/empty), and a channel is the idiomatic
// Go shape for a bounded FIFO.
type Pipe struct {
	ch chan *Chunk
}

func NewPipe(maxSize int) *Pipe {
	return &Pipe{ch: make(chan *Chunk, maxSize)}
}

// Push appends a chunk, blocking if the pipe is momentarily at
// capacity (the player thread is expected to drain faster than the
// decoder fills, so this should not stall in practice).
func (p *Pipe) Push(c *Chunk) {
	p.ch <- c
}

// Shift pops the oldest chunk, blocking until one is available or
// cancel fires (returns nil in that case).
func (p *Pipe) Shift(cancel <-chan struct{}) *Chunk {
	select {
	case c := <-p.ch:
		return c
	case <-cancel:
		return nil
	}
}

// IsEmpty reports whether the pipe currently holds no chunks (the
// pipe is expected empty at Ready, spec.md invariant 1).
func (p *Pipe) IsEmpty() bool {
	return len(p.ch) == 0
}

// Clear discards every queued chunk, returning each to buf. Used by
// CommandFinished on SEEK to drop pre-seek frames (spec.md §4.3).
func (p *Pipe) Clear(buf *Buffer) {
	for {
		select {
		case c := <-p.ch:
			buf.Return(c)
		default:
			return
		}
	}
}
