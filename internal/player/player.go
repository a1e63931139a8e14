// Package player implements the output side of the bridge: the thread
// that issues STOP/SEEK commands against decoder.Control, drains
// chunk.Pipe, and drives a PortAudio stream. Grounded directly on the
// teacher's cmd/audio/test.go proof of concept (portaudio.OpenDefaultStream
// with a float32 stereo callback) and internal/audio/player.go's
// beep.Ctrl/effects.Volume playback chain — replayed here against the
// bridge's chunk pipeline instead of a single beep.StreamSeekCloser.
package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gordonklaus/portaudio"

	"github.com/outpost-audio/bridge/internal/chunk"
	"github.com/outpost-audio/bridge/internal/decoder"
	"github.com/outpost-audio/bridge/internal/format"
)

// Logger is the subset of the decoder package's logging contract the
// player also needs.
type Logger = decoder.Logger

// Config is the operator-tunable portion of output behavior.
type Config struct {
	SampleRate    int
	Channels      int
	BufferSize    int
	DefaultVolume float64
}

// Player owns the output PortAudio stream and is the sole writer of
// decoder.Control's command word (spec.md §5: "the player thread
// writes dc.command under lock and signals dc.cond").
type Player struct {
	dc     *decoder.Control
	pipe   *chunk.Pipe
	buffer *chunk.Buffer
	cfg    Config
	logger Logger

	stream *portaudio.Stream
	volume *effects.Volume
	ctrl   *beep.Ctrl

	mu           sync.Mutex
	cancel       chan struct{}
	outFormat    format.AudioFormat
}

// New builds a Player wired to dc's pipe/buffer. outFormat must match
// the format the bridge's OutputPolicy resolves to.
func New(dc *decoder.Control, buf *chunk.Buffer, pipe *chunk.Pipe, outFormat format.AudioFormat, cfg Config, logger Logger) *Player {
	return &Player{
		dc:        dc,
		pipe:      pipe,
		buffer:    buf,
		cfg:       cfg,
		logger:    logger,
		outFormat: outFormat,
		cancel:    make(chan struct{}),
	}
}

// Start opens the PortAudio output stream and begins draining the
// pipe. The decoder thread is expected to already be running
// (spec.md §3 Lifecycle); Start blocks until Ready.
func (p *Player) Start() error {
	p.dc.WaitForDecoderStartup()

	src := &pipeStreamer{pipe: p.pipe, buffer: p.buffer, outFormat: p.outFormat, cancel: p.cancel}
	var streamer beep.Streamer = src
	p.volume = &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   volumeToLog2(p.cfg.DefaultVolume),
		Silent:   p.cfg.DefaultVolume <= 0,
	}
	p.ctrl = &beep.Ctrl{Streamer: p.volume, Paused: false}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("player: portaudio init: %w", err)
	}

	framesPerBuffer := p.cfg.BufferSize
	if framesPerBuffer <= 0 {
		framesPerBuffer = beep.SampleRate(p.cfg.SampleRate).N(20 * time.Millisecond)
	}

	stream, err := portaudio.OpenDefaultStream(
		0, p.cfg.Channels, float64(p.cfg.SampleRate), framesPerBuffer,
		func(out [][]float32) {
			tmp := make([][2]float64, len(out[0]))
			n, ok := p.ctrl.Stream(tmp)
			for i := 0; i < n; i++ {
				out[0][i] = float32(tmp[i][0])
				if len(out) > 1 {
					out[1][i] = float32(tmp[i][1])
				}
			}
			for i := n; i < len(out[0]); i++ {
				out[0][i] = 0
				if len(out) > 1 {
					out[1][i] = 0
				}
			}
			if !ok && p.logger != nil {
				p.logger.Debug("player: output stream drained")
			}
		})
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("player: open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("player: start stream: %w", err)
	}

	p.stream = stream
	return nil
}

// Stop issues a STOP command to the decoder thread and tears down the
// output stream.
func (p *Player) Stop() {
	p.dc.StartCommand(decoder.CommandStop)

	close(p.cancel)
	if p.stream != nil {
		p.stream.Stop()
		p.stream.Close()
		portaudio.Terminate()
	}
}

// Seek issues a SEEK command, blocking until the decoder acknowledges
// it (spec.md §4.4/§5 handshake).
func (p *Player) Seek(t format.SongTime) {
	p.dc.Lock()
	p.dc.SeekTime = t
	p.dc.Unlock()
	p.dc.StartCommand(decoder.CommandSeek)
}

// SetVolume adjusts gain on the live stream, 0..1.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.volume == nil {
		return
	}
	p.volume.Silent = v <= 0
	p.volume.Volume = volumeToLog2(v)
}

func volumeToLog2(v float64) float64 {
	if v <= 0 {
		return -10
	}
	return 2 * (v - 1)
}

// pipeStreamer adapts chunk.Pipe into a beep.Streamer, decoding
// 16-bit stereo PCM chunks into beep's canonical float64 frames.
type pipeStreamer struct {
	pipe      *chunk.Pipe
	buffer    *chunk.Buffer
	outFormat format.AudioFormat
	cancel    <-chan struct{}

	current *chunk.Chunk
	pos     int
}

func (s *pipeStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	frameSize := s.outFormat.FrameSize()
	if frameSize <= 0 {
		frameSize = 4
	}

	for n < len(samples) {
		if s.current == nil {
			c := s.pipe.Shift(s.cancel)
			if c == nil {
				return n, n > 0
			}
			s.current = c
			s.pos = 0
		}

		data := s.current.Bytes()
		for s.pos+frameSize <= len(data) && n < len(samples) {
			l := int16(uint16(data[s.pos]) | uint16(data[s.pos+1])<<8)
			r := l
			if s.outFormat.Channels >= 2 {
				r = int16(uint16(data[s.pos+2]) | uint16(data[s.pos+3])<<8)
			}
			samples[n] = [2]float64{float64(l) / 32768.0, float64(r) / 32768.0}
			s.pos += frameSize
			n++
		}

		if s.pos >= len(data) {
			s.buffer.Return(s.current)
			s.current = nil
		}
	}

	return n, true
}

func (s *pipeStreamer) Err() error { return nil }
