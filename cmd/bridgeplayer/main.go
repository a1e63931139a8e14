// Command bridgeplayer wires a decoder plugin, the decoder bridge and
// the PortAudio output player together to play one URI end to end.
// Flag parsing and the config/signal-handling shape follow the
// teacher's cmd/desktop/main.go, with flag.* replaced by spf13/pflag
// per spec.md §4.11 domain-stack wiring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/outpost-audio/bridge/internal/chunk"
	"github.com/outpost-audio/bridge/internal/config"
	"github.com/outpost-audio/bridge/internal/decoder"
	"github.com/outpost-audio/bridge/internal/decoderplugin"
	"github.com/outpost-audio/bridge/internal/diagnostics"
	"github.com/outpost-audio/bridge/internal/format"
	"github.com/outpost-audio/bridge/internal/inputstream"
	"github.com/outpost-audio/bridge/internal/logging"
	"github.com/outpost-audio/bridge/internal/pcmconvert"
	"github.com/outpost-audio/bridge/internal/player"
	"github.com/outpost-audio/bridge/internal/pluginregistry"
	"github.com/outpost-audio/bridge/internal/replaygain"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to configuration file")
	debug      = pflag.BoolP("debug", "d", false, "enable debug logging")
	startAt    = pflag.Float64("start", 0, "sub-range start offset, in seconds")
	endAt      = pflag.Float64("end", 0, "sub-range end offset, in seconds (0 = end of track)")
	logLevel   = pflag.String("log-level", "info", "log level: debug, info, warn, error")
)

func main() {
	pflag.Parse()

	if pflag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: bridgeplayer [flags] <uri>")
		os.Exit(2)
	}
	uri := pflag.Arg(0)

	logger := logging.New(*logLevel, *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", "err", err)
	}
	if *debug {
		cfg.Debug = true
	}

	diag, err := diagnostics.Open(cfg.Storage.DatabasePath, cfg.Storage.EnableWAL)
	if err != nil {
		logger.Fatal("open diagnostics store", "err", err)
	}
	defer diag.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("shutting down")
		cancel()
	}()

	registry := pluginregistry.New()
	registry.Register(decoderplugin.Mp3{Logger: logging.ForComponent(logger, "mp3")}, "mp3")

	plugin, err := registry.Resolve(uri)
	if err != nil {
		logger.Fatal("resolve decoder plugin", "err", err)
	}

	outFormat := format.AudioFormat{
		SampleRate: uint32(cfg.Audio.SampleRate),
		Channels:   uint8(cfg.Audio.Channels),
		Format:     format.SampleFormatS16,
	}

	pipe := chunk.NewPipe(64)
	buffer := chunk.NewBuffer(64)

	song := &decoder.Song{StartTime: format.SongTimeFromSeconds(*startAt)}
	dc := decoder.NewControl(pipe, buffer, song, func(in format.AudioFormat) format.AudioFormat {
		return outFormat
	})
	if *endAt > 0 {
		dc.EndTime = format.SongTimeFromSeconds(*endAt)
	}

	rgMode := replaygain.ModeOff
	switch cfg.ReplayGain.Mode {
	case "track":
		rgMode = replaygain.ModeTrack
	case "album":
		rgMode = replaygain.ModeAlbum
	}

	httpClient := inputstream.NewClient(
		cfg.Network.Retries,
		time.Duration(cfg.Network.Timeout)*time.Second,
		cfg.Network.RequestsPerSecond,
		cfg.Network.BurstSize,
		"bridgeplayer/1.0",
	)

	bridge := decoder.NewBridge(dc, httpClient.Opener(), pcmconvert.New(),
		decoder.WithLogger(logging.ForComponent(logger, "bridge")),
		decoder.WithReplayGainConfig(decoder.ReplayGainConfig{
			Mode:          rgMode,
			Preamp:        cfg.ReplayGain.Preamp,
			MissingPreamp: cfg.ReplayGain.MissingPreamp,
			Limit:         cfg.ReplayGain.Limit,
		}),
	)

	p := player.New(dc, buffer, pipe, outFormat, player.Config{
		SampleRate:    cfg.Audio.SampleRate,
		Channels:      cfg.Audio.Channels,
		BufferSize:    cfg.Audio.BufferSize,
		DefaultVolume: cfg.Audio.DefaultVolume,
	}, logging.ForComponent(logger, "player"))

	decodeErrCh := make(chan error, 1)
	go func() {
		decodeErrCh <- plugin.Run(bridge, uri)
	}()

	if err := p.Start(); err != nil {
		logger.Fatal("start player", "err", err)
	}

	select {
	case <-ctx.Done():
		p.Stop()
	case err := <-decodeErrCh:
		if err != nil {
			logger.Error("decode session ended with error", "err", err)
			_ = diag.Record(ctx, uri, "decode_error", err.Error())
		}
		p.Stop()
	}

	if captured := bridge.Error(); captured.IsSet() {
		logger.Error("bridge captured error", "kind", captured.Kind, "err", captured.Err)
		_ = diag.Record(ctx, uri, "captured_error", fmt.Sprintf("%s: %v", captured.Kind, captured.Err))
	}
}
