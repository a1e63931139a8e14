package decoder

import (
	"math"
	"sync"

	"github.com/outpost-audio/bridge/internal/chunk"
	"github.com/outpost-audio/bridge/internal/format"
	"github.com/outpost-audio/bridge/internal/replaygain"
	"github.com/outpost-audio/bridge/internal/tag"
)

// PcmConvert is the pure-function resampler/rechanneler the bridge
// owns optionally, installed once formats are known to differ
// (spec.md §4.1, invariant 2). Convert must not retain data beyond the
// call — its output is copied into the current chunk before the next
// call.
type PcmConvert interface {
	Open(in, out format.AudioFormat) error
	Convert(data []byte) ([]byte, error)
	Close()
}

// ConvertFactory builds a fresh, unopened PcmConvert instance; Ready
// calls it once per song when in/out formats differ.
type ConvertFactory func() PcmConvert

// ReplayGainConfig is the engine-configured portion of replay gain
// handling: mode/preamp/missing-preamp/limit are operator settings,
// not per-song state (spec.md §3 DecoderBridge fields).
type ReplayGainConfig struct {
	Mode            replaygain.Mode
	Preamp          float64
	MissingPreamp   float64
	Limit           bool
}

// Bridge is spec.md's DecoderBridge: decoder-thread-private state plus
// the plugin-facing callback surface, coordinating with the shared
// Control.
type Bridge struct {
	dc     *Control
	opener Opener
	logger Logger

	convertFactory ConvertFactory
	convert        PcmConvert

	songTag    *tag.Tag
	streamTag  *tag.Tag
	decoderTag *tag.Tag

	currentChunk *chunk.Chunk

	timestamp float64 // seconds, relative to song start

	initialSeekPending bool
	initialSeekRunning bool
	seeking            bool

	rg        ReplayGainConfig
	rgInfo    *replaygain.Info
	rgSerial  uint32
	serialGen replaygain.Serial

	errMu sync.Mutex
	err   CapturedError
}

// Option configures a Bridge at construction time.
type Option func(*Bridge)

func WithLogger(l Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

func WithReplayGainConfig(cfg ReplayGainConfig) Option {
	return func(b *Bridge) { b.rg = cfg }
}

func WithSongTag(t *tag.Tag) Option {
	return func(b *Bridge) { b.songTag = t }
}

// NewBridge constructs a DecoderBridge over dc, which is expected in
// state START (spec.md §3 Lifecycle); a pending START command on dc is
// cleared to NONE before NewBridge returns. initialSeekPending is
// set whenever the song has a non-zero start offset, so a sub-range
// song is always steered to its start before the plugin emits data.
func NewBridge(dc *Control, opener Opener, convertFactory ConvertFactory, opts ...Option) *Bridge {
	b := &Bridge{
		dc:                 dc,
		opener:             opener,
		convertFactory:     convertFactory,
		initialSeekPending: dc.Song != nil && dc.Song.StartTime > 0,
	}
	for _, opt := range opts {
		opt(b)
	}

	// The decoder thread clears the player's initial START command
	// before entering plugin code, the same way DecoderAPI.cxx's
	// decoder_thread does — otherwise GetVirtualCommand's initial-seek
	// check (which requires dc.command == NONE) could never fire.
	dc.Lock()
	if dc.Command == CommandStart {
		dc.Command = CommandNone
	}
	dc.Unlock()

	return b
}

// Ready is the format handshake of spec.md §4.1.
func (b *Bridge) Ready(audioFormat format.AudioFormat, seekable bool, duration format.SongTime) {
	if !audioFormat.IsDefined() || !audioFormat.IsValid() {
		panic("decoder: Ready called with an undefined/invalid audio format")
	}

	b.dc.InAudioFormat = audioFormat
	b.dc.OutAudioFormat = b.dc.OutputPolicy(audioFormat)
	b.dc.Seekable = seekable
	b.dc.TotalTime = duration

	if !b.dc.InAudioFormat.Equal(b.dc.OutAudioFormat) {
		conv := b.convertFactory()
		if err := conv.Open(b.dc.InAudioFormat, b.dc.OutAudioFormat); err != nil {
			// Captured, not fatal here: it surfaces as STOP at the
			// next virtual-command poll (spec.md §4.1).
			b.captureError(ErrorKindConvert, err)
		}
		b.convert = conv
	}

	b.dc.Lock()
	b.dc.State = StateDecode
	b.dc.ClientCond.Signal()
	b.dc.Unlock()
}

// prepareInitialSeek must be called with dc locked. Mirrors
// DecoderBridge::PrepareInitialSeek in DecoderAPI.cxx exactly.
func (b *Bridge) prepareInitialSeek() bool {
	if b.dc.State != StateDecode {
		return false
	}

	if b.initialSeekRunning {
		return true
	}

	if b.initialSeekPending {
		if !b.dc.Seekable {
			b.initialSeekPending = false
			return false
		}

		if b.dc.Command == CommandNone {
			b.initialSeekPending = false
			b.initialSeekRunning = true
			return true
		}

		b.initialSeekPending = false
	}

	return false
}

// getVirtualCommand must be called with dc locked.
func (b *Bridge) getVirtualCommand() Command {
	if b.hasError() {
		return CommandStop
	}

	if b.prepareInitialSeek() {
		return CommandSeek
	}

	return b.dc.Command
}

// GetCommand returns the virtual command the plugin should act on
// (spec.md §4.2).
func (b *Bridge) GetCommand() Command {
	b.dc.Lock()
	defer b.dc.Unlock()
	return b.getVirtualCommand()
}

// CommandFinished is the handshake of spec.md §4.3.
func (b *Bridge) CommandFinished() {
	b.dc.Lock()
	defer b.dc.Unlock()

	switch {
	case b.initialSeekRunning:
		b.initialSeekRunning = false
		b.timestamp = b.dc.StartTime.ToSeconds()

	case b.seeking:
		b.seeking = false

		if b.currentChunk != nil {
			b.dc.Buffer.Return(b.currentChunk)
			b.currentChunk = nil
		}
		b.dc.Pipe.Clear(b.dc.Buffer)

		b.timestamp = b.dc.SeekTime.ToSeconds()
	}

	b.dc.Command = CommandNone
	b.dc.ClientCond.Signal()
}

// GetSeekTime is spec.md §4.4.
func (b *Bridge) GetSeekTime() format.SongTime {
	b.dc.Lock()
	defer b.dc.Unlock()

	if b.initialSeekRunning {
		return b.dc.StartTime
	}

	b.seeking = true
	return b.dc.SeekTime
}

// GetSeekFrame scales the seek time by the input sample rate.
func (b *Bridge) GetSeekFrame() uint64 {
	return b.GetSeekTime().ToFrame(b.dc.InAudioFormat.SampleRate)
}

// SeekError is spec.md §4.4: silently cancels an initial seek, or
// records a real seek failure and acknowledges the command.
func (b *Bridge) SeekError() {
	b.dc.Lock()
	if b.initialSeekRunning {
		b.initialSeekRunning = false
		b.dc.Unlock()
		if b.logger != nil {
			b.logger.Warn("decoder: initial seek failed, ignoring and starting at offset 0")
		}
		return
	}

	b.dc.SeekError = true
	b.seeking = false
	b.dc.Unlock()

	b.CommandFinished()
}

// OpenUri is spec.md §4.5: opens is sharing dc's mutex/cond, blocking
// until ready or a STOP arrives.
func (b *Bridge) OpenUri(uri string) (InputStream, error) {
	is, err := b.opener(uri, b.dc)
	if err != nil {
		return nil, err
	}

	b.dc.Lock()
	defer b.dc.Unlock()

	for {
		is.Update()
		if is.IsReady() {
			return is, nil
		}

		if b.dc.Command == CommandStop {
			return nil, ErrStopDecoder
		}

		b.dc.Cond.Wait()
	}
}

// CancelRead implements Client for the free decoder_read helpers
// (spec.md §4.5). Reads dc.Command directly: safe because any
// InputStream opened through OpenUri shares dc's own mutex, which the
// caller (Read in io.go) already holds.
func (b *Bridge) CancelRead() bool {
	return b.hasError() || b.dc.Command == CommandStop || b.dc.Command == CommandSeek
}

// CaptureError implements Client.
func (b *Bridge) CaptureError(kind ErrorKind, err error) {
	b.captureError(kind, err)
}

func (b *Bridge) captureError(kind ErrorKind, err error) {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	if b.err.IsSet() {
		return
	}
	b.err = CapturedError{Kind: kind, Err: err}
}

func (b *Bridge) hasError() bool {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err.IsSet()
}

// Error returns the last captured error, read by the player thread
// once the decoder thread has returned (spec.md §5/§7).
func (b *Bridge) Error() CapturedError {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.err
}

// SubmitTimestamp sets the bridge's notion of "now" within the song,
// used by plugins that know their absolute position without needing
// to accumulate it from SubmitData byte counts.
func (b *Bridge) SubmitTimestamp(t float64) {
	if t < 0 {
		t = 0
	}
	b.timestamp = t
}

// getChunk acquires currentChunk if absent, blocking on the buffer's
// allocator. Returns (nil, cmd) if a command arrived during
// allocation — the caller must propagate cmd.
func (b *Bridge) getChunk() (*chunk.Chunk, Command) {
	if b.currentChunk != nil {
		return b.currentChunk, CommandNone
	}

	watch := b.dc.NewWatch(func() bool {
		return b.dc.Command != CommandNone || b.hasError()
	})
	defer watch.Release()

	c, ok := b.dc.Buffer.Allocate(watch.Cancel())
	if !ok {
		b.dc.Lock()
		cmd := b.dc.Command
		b.dc.Unlock()
		return nil, cmd
	}

	b.currentChunk = c
	return c, CommandNone
}

// flushChunk pushes currentChunk to the pipe if non-nil, per spec.md
// invariant 6.
func (b *Bridge) flushChunk() {
	if b.currentChunk == nil {
		return
	}
	c := b.currentChunk
	b.currentChunk = nil
	b.dc.Pipe.Push(c)
}

// DoSendTag is spec.md §4.6: flush any partial chunk, obtain a fresh
// one, attach a copy of tag to it.
func (b *Bridge) DoSendTag(t *tag.Tag) Command {
	if b.currentChunk != nil {
		b.flushChunk()
	}

	c, cmd := b.getChunk()
	if c == nil {
		return cmd
	}

	c.Tag = t.Clone()
	return CommandNone
}

// UpdateStreamTag is spec.md §4.6.
func (b *Bridge) UpdateStreamTag(is InputStream) bool {
	var t *tag.Tag
	if is != nil {
		t = is.LockReadTag()
	}

	if t == nil {
		t = b.songTag
		if t == nil {
			return false
		}
		// promote the song tag into the stream tag slot; one-shot.
	}

	b.songTag = nil
	b.streamTag = t
	return true
}

// SubmitData is spec.md §4.7 — the core of the bridge.
func (b *Bridge) SubmitData(is InputStream, data []byte, kbitRate uint16) Command {
	if b.dc.InAudioFormat.FrameSize() > 0 && len(data)%b.dc.InAudioFormat.FrameSize() != 0 {
		panic("decoder: SubmitData length is not a whole number of input frames")
	}

	cmd := b.GetCommand()
	if cmd == CommandStop || cmd == CommandSeek || len(data) == 0 {
		return cmd
	}

	if b.initialSeekPending || b.initialSeekRunning {
		panic("decoder: SubmitData called during initial seek")
	}

	if b.UpdateStreamTag(is) {
		var merged *tag.Tag
		if b.decoderTag != nil {
			merged = tag.Merge(b.decoderTag, b.streamTag)
		} else {
			merged = b.streamTag
		}

		if c := b.DoSendTag(merged); c != CommandNone {
			return c
		}
	}

	if b.convert != nil {
		converted, err := b.convert.Convert(data)
		if err != nil {
			b.captureError(ErrorKindConvert, err)
			return CommandStop
		}
		data = converted
	}

	for len(data) > 0 {
		c, cmd := b.getChunk()
		if c == nil {
			return cmd
		}

		chunkTS := format.SongTimeFromSeconds(b.timestamp).Sub(b.dc.Song.StartTime)
		dest := c.Write(b.dc.OutAudioFormat, chunkTS, kbitRate)
		if len(dest) == 0 {
			b.flushChunk()
			continue
		}

		n := len(data)
		if n > len(dest) {
			n = len(dest)
		}
		copy(dest, data[:n])

		if c.Expand(b.dc.OutAudioFormat, n) {
			b.flushChunk()
		}

		data = data[n:]

		b.timestamp += float64(n) / b.dc.OutAudioFormat.TimeToSize()

		if b.dc.EndTime.IsPositive() && b.timestamp >= b.dc.EndTime.ToSeconds() {
			return CommandStop
		}
	}

	return CommandNone
}

// SubmitTag is spec.md §4.6.
func (b *Bridge) SubmitTag(is InputStream, t *tag.Tag) Command {
	b.decoderTag = t

	b.UpdateStreamTag(is)

	b.dc.Lock()
	initialSeek := b.prepareInitialSeek()
	b.dc.Unlock()
	if initialSeek {
		return CommandSeek
	}

	if b.streamTag != nil {
		merged := tag.Merge(b.streamTag, b.decoderTag)
		return b.DoSendTag(merged)
	}

	return b.DoSendTag(b.decoderTag)
}

// SubmitReplayGain is spec.md §4.8.
func (b *Bridge) SubmitReplayGain(info *replaygain.Info) {
	if info == nil {
		b.rgSerial = 0
		return
	}

	serial := b.serialGen.Next()

	if b.rg.Mode != replaygain.ModeOff {
		mode := replaygain.ResolveMode(b.rg.Mode)
		tuple := info.Track
		if mode == replaygain.ModeAlbum {
			tuple = info.Album
		}

		scale := tuple.CalculateScale(b.rg.Preamp, b.rg.MissingPreamp, b.rg.Limit)
		b.dc.ReplayGainDB = float32(20.0 * math.Log10(scale))
	}

	b.rgInfo = info
	b.rgSerial = serial

	if b.currentChunk != nil {
		b.flushChunk()
	}
}

// SubmitMixRamp is spec.md §4.8.
func (b *Bridge) SubmitMixRamp(m MixRampInfo) {
	b.dc.SetMixRamp(m)
}

// ReplayGainSerial exposes the current gain-invalidation serial,
// 0 meaning "no gain applied" (spec.md §8 testable property 6).
func (b *Bridge) ReplayGainSerial() uint32 {
	return b.rgSerial
}

// CurrentChunk exposes the in-flight partial chunk for tests.
func (b *Bridge) CurrentChunk() *chunk.Chunk {
	return b.currentChunk
}

// Timestamp exposes the bridge's notion of elapsed song time in
// seconds, for tests.
func (b *Bridge) Timestamp() float64 {
	return b.timestamp
}
