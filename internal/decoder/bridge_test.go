package decoder

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-audio/bridge/internal/chunk"
	"github.com/outpost-audio/bridge/internal/format"
	"github.com/outpost-audio/bridge/internal/replaygain"
	"github.com/outpost-audio/bridge/internal/tag"
)

// fakeStream is a minimal InputStream double: IsReady/IsAvailable are
// controlled directly by the test, Read always succeeds.
type fakeStream struct {
	ready     bool
	available bool
	eof       bool
	dc        *Control
}

func (f *fakeStream) Update()            {}
func (f *fakeStream) IsReady() bool      { return f.ready }
func (f *fakeStream) IsAvailable() bool  { return f.available }
func (f *fakeStream) IsEOF() bool        { return f.eof }
func (f *fakeStream) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
func (f *fakeStream) LockReadTag() *tag.Tag { return nil }
func (f *fakeStream) Lock()                 { f.dc.Lock() }
func (f *fakeStream) Unlock()                { f.dc.Unlock() }
func (f *fakeStream) Wait()                  { f.dc.Cond.Wait() }
func (f *fakeStream) Broadcast()             { f.dc.Cond.Broadcast() }

func sameFormatPolicy(in format.AudioFormat) format.AudioFormat { return in }

func newTestBridge(t *testing.T, startTime format.SongTime, seekable bool) (*Bridge, *Control, *fakeStream) {
	t.Helper()

	// 16 chunks: S5 submits 8KiB (eight full chunk.Size chunks plus a
	// partial one) and then needs one more chunk for the tag, with
	// nothing draining the pipe.
	pipe := chunk.NewPipe(16)
	buf := chunk.NewBuffer(16)
	song := &Song{StartTime: startTime}
	dc := NewControl(pipe, buf, song, sameFormatPolicy)

	var fs *fakeStream
	opener := func(uri string, dc *Control) (InputStream, error) {
		fs = &fakeStream{ready: true, available: true, dc: dc}
		return fs, nil
	}

	b := NewBridge(dc, opener, func() PcmConvert { return nil })
	return b, dc, fs
}

const testSampleRate = 44100

func testFormat() format.AudioFormat {
	return format.AudioFormat{SampleRate: testSampleRate, Channels: 2, Format: format.SampleFormatS16}
}

// S1 — straight decode, no conversion.
func TestS1_StraightDecodeNoConversion(t *testing.T) {
	b, dc, _ := newTestBridge(t, 0, false)
	f := testFormat()

	b.Ready(f, false, format.SongTimeFromSeconds(180))
	require.True(t, dc.InAudioFormat.Equal(dc.OutAudioFormat))

	data := make([]byte, 16) // 4 frames * 4 bytes/frame
	cmd := b.SubmitData(nil, data, 128)

	assert.Equal(t, CommandNone, cmd)
	require.NotNil(t, b.CurrentChunk())
	assert.Equal(t, 16, b.CurrentChunk().Len())
	assert.InDelta(t, 4.0/testSampleRate, b.Timestamp(), 1e-9)
}

// S2 — initial seek honored.
func TestS2_InitialSeekHonored(t *testing.T) {
	startTime := format.SongTimeFromSeconds(10)
	b, dc, _ := newTestBridge(t, startTime, true)
	f := testFormat()

	b.Ready(f, true, format.SongTimeFromSeconds(180))

	cmd := b.GetCommand()
	assert.Equal(t, CommandSeek, cmd)

	seekTime := b.GetSeekTime()
	assert.Equal(t, startTime, seekTime)

	b.CommandFinished()
	assert.InDelta(t, 10.0, b.Timestamp(), 1e-9)
	assert.True(t, dc.Pipe.IsEmpty())

	cmd2 := b.GetCommand()
	assert.Equal(t, CommandNone, cmd2)
}

// S3 — initial seek skipped because unseekable.
func TestS3_InitialSeekSkippedWhenUnseekable(t *testing.T) {
	startTime := format.SongTimeFromSeconds(10)
	b, _, _ := newTestBridge(t, startTime, false)
	f := testFormat()

	b.Ready(f, false, format.SongTimeFromSeconds(180))

	cmd := b.GetCommand()
	assert.Equal(t, CommandNone, cmd)
	assert.False(t, b.initialSeekPending)
}

// S4 — STOP observed while blocked in OpenUri.
func TestS4_StopDuringBlockedOpen(t *testing.T) {
	pipe := chunk.NewPipe(8)
	buf := chunk.NewBuffer(8)
	dc := NewControl(pipe, buf, &Song{}, sameFormatPolicy)

	blocked := make(chan struct{})
	opener := func(uri string, dc *Control) (InputStream, error) {
		return &fakeStream{ready: false, dc: dc}, nil
	}
	b := NewBridge(dc, opener, func() PcmConvert { return nil })

	go func() {
		close(blocked)
		_, err := b.OpenUri("test://uri")
		assert.ErrorIs(t, err, ErrStopDecoder)
	}()

	<-blocked
	time.Sleep(10 * time.Millisecond) // let OpenUri reach its wait

	dc.Lock()
	dc.Command = CommandStop
	dc.Unlock()
	dc.Cond.Broadcast()

	time.Sleep(10 * time.Millisecond)
}

// S5 — tag change mid-data flushes the partial chunk.
func TestS5_TagChangeMidDataFlushesChunk(t *testing.T) {
	b, dc, fs := newTestBridge(t, 0, false)
	f := testFormat()
	b.Ready(f, false, format.SongTimeFromSeconds(180))

	data := make([]byte, 8*1024)
	cmd := b.SubmitData(fs, data, 128)
	require.Equal(t, CommandNone, cmd)
	require.NotNil(t, b.CurrentChunk())
	firstLen := b.CurrentChunk().Len()

	newTag := tag.New()
	newTag.AddItem(tag.TypeTitle, "New Title")
	cmd2 := b.SubmitTag(fs, newTag)
	require.Equal(t, CommandNone, cmd2)

	require.NotNil(t, b.CurrentChunk())
	assert.NotEqual(t, firstLen, 0)
	assert.NotNil(t, b.CurrentChunk().Tag)
	assert.False(t, dc.Pipe.IsEmpty(), "the partial chunk left by the 8KiB submit must have been pushed to the pipe")
}

// S6 — ReplayGain change flushes the partial chunk.
func TestS6_ReplayGainChangeFlushesChunk(t *testing.T) {
	b, dc, fs := newTestBridge(t, 0, false)
	f := testFormat()
	b.Ready(f, false, format.SongTimeFromSeconds(180))
	b.rg = ReplayGainConfig{Mode: replaygain.ModeTrack, Limit: false}

	data := make([]byte, 16)
	cmd := b.SubmitData(fs, data, 0)
	require.Equal(t, CommandNone, cmd)
	require.NotNil(t, b.CurrentChunk())

	info := &replaygain.Info{
		Track: replaygain.Tuple{Gain: float32(20 * math.Log10(0.5)), Peak: float32(math.NaN())},
		Album: replaygain.UndefinedTuple(),
	}
	b.SubmitReplayGain(info)

	assert.InDelta(t, -6.0206, dc.ReplayGainDB, 0.01)
	assert.NotZero(t, b.ReplayGainSerial())
	assert.Nil(t, b.CurrentChunk(), "the partial chunk must have been flushed")
	assert.False(t, dc.Pipe.IsEmpty())
}

// Invariant 3: after CommandFinished returns, dc.Command == NONE.
func TestInvariant_CommandFinishedClearsCommand(t *testing.T) {
	b, dc, _ := newTestBridge(t, 0, false)
	f := testFormat()
	b.Ready(f, false, 0)

	dc.Lock()
	dc.Command = CommandStop
	dc.Unlock()

	b.CommandFinished()

	dc.Lock()
	defer dc.Unlock()
	assert.Equal(t, CommandNone, dc.Command)
}

// Invariant 4: initial_seek_pending and initial_seek_running are never
// simultaneously true.
func TestInvariant_InitialSeekPendingXorRunning(t *testing.T) {
	b, _, _ := newTestBridge(t, format.SongTimeFromSeconds(5), true)
	f := testFormat()
	b.Ready(f, true, format.SongTimeFromSeconds(60))

	assert.False(t, b.initialSeekPending && b.initialSeekRunning)
	b.GetCommand()
	assert.False(t, b.initialSeekPending && b.initialSeekRunning)
	b.CommandFinished()
	assert.False(t, b.initialSeekPending && b.initialSeekRunning)
}

// Invariant 5: convert is nil iff in/out formats are equal.
func TestInvariant_ConvertNilIffFormatsEqual(t *testing.T) {
	b, dc, _ := newTestBridge(t, 0, false)
	f := testFormat()
	b.Ready(f, false, 0)
	assert.Nil(t, b.convert)
	assert.True(t, dc.InAudioFormat.Equal(dc.OutAudioFormat))
}

// Boundary: SubmitData with length 0 returns the current virtual command
// without side effects.
func TestSubmitData_ZeroLengthIsNoOp(t *testing.T) {
	b, _, fs := newTestBridge(t, 0, false)
	f := testFormat()
	b.Ready(f, false, 0)

	cmd := b.SubmitData(fs, nil, 0)
	assert.Equal(t, CommandNone, cmd)
	assert.Nil(t, b.CurrentChunk())
}

// Boundary: decoder_read with length 0 returns 0 without touching the stream.
func TestRead_ZeroLengthReturnsImmediately(t *testing.T) {
	fs := &fakeStream{ready: true, available: true, dc: &Control{}}
	n := Read(nil, fs, nil, nil)
	assert.Equal(t, 0, n)
}

// Boundary: end_time reached mid-buffer returns STOP immediately.
func TestSubmitData_EndTimeReachedReturnsStop(t *testing.T) {
	b, dc, fs := newTestBridge(t, 0, false)
	f := testFormat()
	b.Ready(f, false, format.SongTimeFromSeconds(180))
	dc.EndTime = format.SongTimeFromSeconds(0.0001)

	data := make([]byte, 4*1024)
	cmd := b.SubmitData(fs, data, 0)
	assert.Equal(t, CommandStop, cmd)
}

// Round-trip: SubmitTag twice with the same tag and no intervening data
// produces content-equal chunk tags.
func TestSubmitTag_Idempotent(t *testing.T) {
	b, _, fs := newTestBridge(t, 0, false)
	f := testFormat()
	b.Ready(f, false, 0)

	tg := tag.New()
	tg.AddItem(tag.TypeArtist, "Artist")

	b.SubmitTag(fs, tg)
	firstTag := b.CurrentChunk().Tag

	b.flushChunk()
	b.SubmitTag(fs, tg)
	secondTag := b.CurrentChunk().Tag

	assert.True(t, firstTag.Equal(secondTag))
}
