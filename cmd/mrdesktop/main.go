package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mrdesktop/mrdesktop/internal/capture"
	"github.com/mrdesktop/mrdesktop/internal/config"
	"github.com/mrdesktop/mrdesktop/internal/console"
	"github.com/mrdesktop/mrdesktop/internal/logx"
	"github.com/mrdesktop/mrdesktop/internal/metrics"
	"github.com/mrdesktop/mrdesktop/internal/protocol"
	"github.com/mrdesktop/mrdesktop/internal/session"
	"github.com/mrdesktop/mrdesktop/internal/streamer"
	"github.com/mrdesktop/mrdesktop/internal/version"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mrdesktop host [--test] [--listen :8080] [--config file]")
	fmt.Fprintln(os.Stderr, "       mrdesktop view [--test] [--compression h265] [host:port]")
	fmt.Fprintln(os.Stderr, "       mrdesktop version")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "run `mrdesktop <command> -h` for command flags")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "host":
		os.Exit(runHost(os.Args[2:]))
	case "view", "viewer":
		os.Exit(runView(os.Args[2:]))
	case "version", "--version", "-version":
		fmt.Printf("mrdesktop %s (%s)\n", version.Version, version.Commit)
	default:
		usage()
		os.Exit(1)
	}
}

func runHost(args []string) int {
	var cfg config.HostConfig
	if err := config.Load(&cfg, args); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	fs := flag.NewFlagSet("host", flag.ExitOnError)
	cfg.BindFlags(fs)
	fs.Parse(args)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fs.Usage()
		return 1
	}

	logx.Configure(cfg.LogLevel)
	log := logx.Component("host")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.MetricsAddr, log)

	scfg := streamer.Config{FrameInterval: cfg.FrameInterval, StatusEvery: cfg.StatusEvery}
	var src capture.Source
	if cfg.Test {
		src = capture.NewTestPattern()
		scfg.MaxFrames = cfg.TestFrames
		log.Info().Int("frames", cfg.TestFrames).Msg("test mode: streaming synthetic frames")
	} else {
		src = &capture.Screen{Display: cfg.Display}
	}

	h := session.NewHost(session.HostConfig{
		Addr:             cfg.Listen,
		Source:           src,
		NegotiateTimeout: cfg.NegotiateTimeout,
		Streamer:         scfg,
	}, log)

	// Print the port once bound, for scripts that start a viewer next.
	go func() {
		<-h.Ready
		if h.Port != 0 {
			fmt.Println(h.Port)
		}
	}()

	err := h.Run(ctx)
	r := h.Result
	if r.SessionID != "" {
		log.Info().
			Str("session", r.SessionID).
			Str("compression", r.Mode).
			Int("sent", r.Sent).
			Int("compressed", r.SentCompressed).
			Bool("fell_back", r.FellBack).
			Msg("host finished")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "host exited: %v\n", err)
		return 1
	}
	if cfg.Test && r.Sent < cfg.TestFrames {
		fmt.Fprintf(os.Stderr, "test failed: sent %d of %d frames\n", r.Sent, cfg.TestFrames)
		return 1
	}
	return 0
}

// testTally counts frames checked by the viewer in test mode.
type testTally struct {
	valid, invalid  atomic.Int64
	compressed, raw atomic.Int64
}

func runView(args []string) int {
	var cfg config.ViewerConfig
	if err := config.Load(&cfg, args); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	cfg.BindFlags(fs)
	fs.Parse(args)
	if fs.NArg() > 0 {
		cfg.Addr = fs.Arg(0)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fs.Usage()
		return 1
	}
	mode, _ := cfg.Mode()

	logx.Configure(cfg.LogLevel)
	log := logx.Component("viewer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	serveMetrics(ctx, cfg.MetricsAddr, log)

	var tally testTally
	var v *session.Viewer
	vcfg := session.ViewerConfig{
		Addr:         cfg.Addr,
		Mode:         mode,
		PollInterval: cfg.PollInterval,
		QueueSlots:   cfg.QueueSlots,
		OnMessageType: func(t protocol.MessageType) {
			switch t {
			case protocol.MsgCompressedFrame:
				tally.compressed.Add(1)
			case protocol.MsgFrame:
				tally.raw.Add(1)
			}
		},
		OnDisconnect: func(err error) {
			if err != nil {
				log.Info().Err(err).Msg("disconnected")
			}
		},
	}
	if cfg.Test {
		vcfg.OnFrame = func(f session.Frame) {
			if err := capture.VerifyTestFrame(f.Width, f.Height, f.Pixels); err != nil {
				tally.invalid.Add(1)
				log.Error().Err(err).Uint64("seq", f.Seq).Msg("invalid test frame")
				return
			}
			if tally.valid.Add(1) >= int64(cfg.TestFrames) {
				v.Close()
			}
		}
	}
	v = session.NewViewer(vcfg, log)

	runErr := make(chan error, 1)
	go func() { runErr <- v.Run(ctx) }()

	cctx, ccancel := context.WithCancel(ctx)
	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		if cfg.Test {
			return
		}
		select {
		case <-v.Connected:
		case <-cctx.Done():
			return
		}
		if err := runConsole(cctx, v, log); err != nil && !errors.Is(err, console.ErrQuit) && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("console stopped")
		}
		v.Close()
	}()

	err := <-runErr
	ccancel()
	<-consoleDone

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "viewer exited: %v\n", err)
		return 1
	}
	if !cfg.Test {
		return 0
	}

	valid, invalid := tally.valid.Load(), tally.invalid.Load()
	fmt.Printf("received %d valid frames, %d invalid (compressed: %d, raw: %d)\n",
		valid, invalid, tally.compressed.Load(), tally.raw.Load())
	if mode != protocol.CompressionNone && tally.compressed.Load() == 0 {
		fmt.Printf("requested %s; host sent raw frames\n", mode)
	}
	if invalid > 0 || valid < int64(cfg.TestFrames) {
		fmt.Println("TEST FAILED")
		return 1
	}
	fmt.Println("TEST PASSED")
	return 0
}

// runConsole drives mouse control from the terminal until the user quits.
func runConsole(ctx context.Context, v *session.Viewer, log zerolog.Logger) error {
	restore, err := console.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	defer restore()

	fmt.Fprint(os.Stderr, "wasd/arrows move, space/enter click, q/e scroll, esc quits\r\n")
	return console.Run(ctx, os.Stdin, v.Input(), log.With().Str("component", "console").Logger())
}

// serveMetrics exposes /metrics on addr until ctx ends. An empty addr
// disables it.
func serveMetrics(ctx context.Context, addr string, log zerolog.Logger) {
	if addr == "" {
		return
	}
	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	metrics.SetBuildInfo(version.Version, version.Commit)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server")
		}
	}()
	context.AfterFunc(ctx, func() { srv.Close() })
	log.Info().Str("addr", addr).Msg("serving metrics")
}
