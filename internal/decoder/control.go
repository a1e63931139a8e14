// Package decoder implements the Decoder Bridge: the mediator between
// a decoder plugin and the player/output pipeline. See spec.md for the
// full specification; this file holds the shared DecoderControl state
// (spec.md §3) — the command word, audio formats, seek times, pipe
// and buffer handles, one mutex and the two condition variables.
package decoder

import (
	"sync"

	"github.com/outpost-audio/bridge/internal/chunk"
	"github.com/outpost-audio/bridge/internal/format"
)

// State is the coarse decoder lifecycle state.
type State int

const (
	StateStart State = iota
	StateDecode
	StateStop
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateDecode:
		return "decode"
	case StateStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Command is the literal command word written by the player thread
// and observed (possibly overridden, see GetCommand) by the decoder
// thread.
type Command int

const (
	CommandNone Command = iota
	CommandStart
	CommandStop
	CommandSeek
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandSeek:
		return "seek"
	default:
		return "unknown"
	}
}

// Song is the minimal view of the track being decoded that the bridge
// needs: the offset within the underlying media where the song
// actually starts (non-zero for a sub-range of a longer file, e.g. one
// track of a cue-sheet image).
type Song struct {
	StartTime format.SongTime
}

// OutputPolicy computes the format the player pipeline wants to
// receive, given what the decoder plugin produced — "the engine's
// output policy" of spec.md §4.1 (getOutputAudioFormat). A policy that
// always returns its input disables conversion entirely.
type OutputPolicy func(in format.AudioFormat) format.AudioFormat

// Control is the state shared between the player and decoder threads
// — spec.md's DecoderControl. Every field below mutex is protected by
// it; Cond is signaled by the player thread (or the input stream) and
// ClientCond is signaled by the decoder thread.
type Control struct {
	mutex      sync.Mutex
	Cond       *sync.Cond
	ClientCond *sync.Cond

	State   State
	Command Command

	InAudioFormat  format.AudioFormat
	OutAudioFormat format.AudioFormat
	Seekable       bool

	TotalTime format.SongTime
	StartTime format.SongTime
	EndTime   format.SongTime
	SeekTime  format.SongTime
	SeekError bool

	ReplayGainDB float32

	Pipe   *chunk.Pipe
	Buffer *chunk.Buffer
	Song   *Song

	OutputPolicy OutputPolicy

	mixRampMu sync.Mutex
	mixRamp   MixRampInfo
}

// MixRampInfo is the small descriptor SubmitMixRamp replaces wholesale
// (spec.md §4.8); its contents are opaque to the bridge.
type MixRampInfo struct {
	Start string
	End   string
}

// NewControl builds a fresh DecoderControl in state START with
// command START, per spec.md §3 Lifecycle. StartTime is taken from
// song, so the initial seek targets the song's start offset.
func NewControl(pipe *chunk.Pipe, buf *chunk.Buffer, song *Song, policy OutputPolicy) *Control {
	dc := &Control{
		State:        StateStart,
		Command:      CommandStart,
		Pipe:         pipe,
		Buffer:       buf,
		Song:         song,
		OutputPolicy: policy,
	}
	if song != nil {
		dc.StartTime = song.StartTime
	}
	dc.Cond = sync.NewCond(&dc.mutex)
	dc.ClientCond = sync.NewCond(&dc.mutex)
	return dc
}

// Lock/Unlock expose dc.mutex directly to callers (the player thread)
// that need to read/write several fields atomically, e.g. setting
// Command and signaling Cond under one critical section — spec.md §5
// "player writes command under lock, signals cond".
func (dc *Control) Lock()   { dc.mutex.Lock() }
func (dc *Control) Unlock() { dc.mutex.Unlock() }

// SetMixRamp atomically replaces the mix-ramp descriptor (spec.md
// §4.8); it has its own small mutex because it is written by the
// decoder thread and read by the player thread independently of the
// command handshake.
func (dc *Control) SetMixRamp(m MixRampInfo) {
	dc.mixRampMu.Lock()
	dc.mixRamp = m
	dc.mixRampMu.Unlock()
}

func (dc *Control) GetMixRamp() MixRampInfo {
	dc.mixRampMu.Lock()
	defer dc.mixRampMu.Unlock()
	return dc.mixRamp
}

// StartCommand is called by the player thread to issue a new command
// and wait for it to be acknowledged (Command == CommandNone again).
// Mirrors the handshake described in spec.md §5.
func (dc *Control) StartCommand(cmd Command) {
	dc.mutex.Lock()
	dc.Command = cmd
	dc.Cond.Signal()
	for dc.Command != CommandNone {
		dc.ClientCond.Wait()
	}
	dc.mutex.Unlock()
}

// WaitForDecoderStartup blocks until the decoder thread moves past
// START (Ready() signals ClientCond once it has).
func (dc *Control) WaitForDecoderStartup() {
	dc.mutex.Lock()
	for dc.State == StateStart {
		dc.ClientCond.Wait()
	}
	dc.mutex.Unlock()
}

// IsCancelling reports whether the current virtual command is
// STOP-class (STOP or SEEK, both of which must abort an in-flight
// chunk allocation) or an error has already been captured. Takes
// dc.mutex internally, so it must not be called with dc.mutex held —
// including while holding the lock of an InputStream opened through
// Bridge.OpenUri, whose lock is dc.mutex itself (see io.go).
func (dc *Control) IsCancelling(errSet bool) bool {
	dc.mutex.Lock()
	defer dc.mutex.Unlock()
	return errSet || dc.Command == CommandStop || dc.Command == CommandSeek
}

// Watch adapts the mutex+condvar cancellation predicate required at
// every suspension point (spec.md §5) into a channel a select can
// wait on, without leaking a goroutine once the caller is done
// waiting: the caller must call Release exactly once, which both
// retires the watcher goroutine and nudges Cond so it actually wakes
// and observes the retirement.
type Watch struct {
	cancel chan struct{}
	stop   chan struct{}
	dc     *Control
}

// NewWatch starts a goroutine that blocks on dc.Cond until
// isCancelled() becomes true (evaluated under dc.mutex each time the
// player thread's command handshake signals Cond), at which point
// Cancel()'s channel closes.
func (dc *Control) NewWatch(isCancelled func() bool) *Watch {
	w := &Watch{cancel: make(chan struct{}), stop: make(chan struct{}), dc: dc}
	go func() {
		dc.mutex.Lock()
		defer dc.mutex.Unlock()
		for {
			select {
			case <-w.stop:
				return
			default:
			}
			if isCancelled() {
				close(w.cancel)
				return
			}
			dc.Cond.Wait()
		}
	}()
	return w
}

func (w *Watch) Cancel() <-chan struct{} { return w.cancel }

// Release retires the watcher goroutine. Must be called exactly once
// regardless of whether the wait was cancelled.
func (w *Watch) Release() {
	close(w.stop)
	w.dc.mutex.Lock()
	w.dc.Cond.Broadcast()
	w.dc.mutex.Unlock()
}
