// SPDX-License-Identifier: MIT

// Package ingest runs the video decoder subprocess and cuts its raw BGR
// output into frames for the session worker.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edupresencia/presencia/internal/log"
	"github.com/edupresencia/presencia/internal/metrics"
	"github.com/edupresencia/presencia/internal/procgroup"
	"github.com/edupresencia/presencia/internal/vision"
)

// read granularity from the decoder's stdout
const chunkSize = 64 * 1024

// ErrSourceClosed is returned by Next once the decoder's output is drained.
var ErrSourceClosed = errors.New("ingest: source closed")

// Source yields decoded frames. Next blocks until a frame is available, the
// context is cancelled, or the source ends.
type Source interface {
	Next(ctx context.Context) (*vision.Frame, error)
	Close() error
}

// Config describes one decoder invocation.
type Config struct {
	Bin     string // decoder binary, default "ffmpeg"
	SDPPath string // session description consumed in network mode
	// Local switches to a local source: a bare camera index ("0") or a
	// video file path. Empty selects network mode via SDPPath.
	Local  string
	Width  int
	Height int
	// Args overrides the generated command line. Test hook.
	Args []string
}

// Decoder is a Source backed by an ffmpeg subprocess emitting raw bgr24
// frames at a fixed size on stdout.
type Decoder struct {
	cfg    Config
	logger zerolog.Logger

	cmd    *exec.Cmd
	stdout io.ReadCloser
	ring   *LineRing
	asm    *assembler
	chunk  []byte

	drainWG   sync.WaitGroup
	killOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
	cancelSub context.CancelFunc
}

// Start spawns the decoder. The subprocess is bound to ctx: cancelling it
// terminates the process group, which unblocks any pending stdout read.
func Start(ctx context.Context, cfg Config) (*Decoder, error) {
	if cfg.Bin == "" {
		cfg.Bin = "ffmpeg"
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("ingest: invalid frame size %dx%d", cfg.Width, cfg.Height)
	}

	args := cfg.Args
	if args == nil {
		args = buildArgs(cfg)
	}

	d := &Decoder{
		cfg:    cfg,
		logger: log.WithContext(ctx, log.WithComponent("decoder")),
		ring:   NewLineRing(256),
		asm:    newAssembler(cfg.Width*cfg.Height*3, 4),
		chunk:  make([]byte, chunkSize),
	}

	subCtx, cancel := context.WithCancel(context.Background())
	d.cancelSub = cancel

	cmd := exec.Command(cfg.Bin, args...) // #nosec G204 -- binary and args are operator configuration
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ingest: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ingest: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		metrics.DecoderStartTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ingest: start decoder: %w", err)
	}
	metrics.DecoderStartTotal.WithLabelValues("ok").Inc()

	d.cmd = cmd
	d.stdout = stdout

	// Side task: drain stderr into the ring for the decoder's lifetime.
	d.drainWG.Add(1)
	go func() {
		defer d.drainWG.Done()
		_, _ = io.Copy(d.ring, stderr)
	}()

	// Release a blocked stdout read when either the caller's context or the
	// decoder's own lifetime ends.
	go func() {
		select {
		case <-ctx.Done():
			d.terminate("ctx_cancel")
		case <-subCtx.Done():
		}
	}()

	d.logger.Info().
		Str("event", "decoder.start").
		Str("bin", cfg.Bin).
		Int("pid", cmd.Process.Pid).
		Strs("args", args).
		Msg("decoder subprocess started")
	return d, nil
}

// buildArgs produces the decoder command line. The network form consumes the
// RTP session described by the SDP file; local forms read a camera device or
// a video file (paced at native rate by -re, so file mode matches the
// source's intrinsic FPS).
func buildArgs(cfg Config) []string {
	size := fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	out := []string{"-s", size, "-pix_fmt", "bgr24", "-f", "rawvideo", "-vcodec", "rawvideo", "-"}

	if cfg.Local != "" {
		if _, err := strconv.Atoi(cfg.Local); err == nil {
			in := []string{"-f", "v4l2", "-i", "/dev/video" + cfg.Local}
			return append(in, out...)
		}
		in := []string{"-re", "-i", cfg.Local}
		return append(in, out...)
	}

	in := []string{
		"-thread_queue_size", "1024",
		"-protocol_whitelist", "file,udp,rtp",
		"-fflags", "+nobuffer+genpts+discardcorrupt",
		"-flags", "+low_delay",
		"-max_delay", "100000",
		"-analyzeduration", "100000",
		"-probesize", "100000",
		"-i", cfg.SDPPath,
	}
	return append(in, out...)
}

// Next returns the next complete frame. Partial chunks are accumulated; the
// remainder is retained across calls. Returns ErrSourceClosed when the
// decoder's stdout is exhausted, or ctx.Err() on cancellation.
func (d *Decoder) Next(ctx context.Context) (*vision.Frame, error) {
	for {
		if raw := d.asm.next(); raw != nil {
			return &vision.Frame{Width: d.cfg.Width, Height: d.cfg.Height, BGR: raw}, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := d.stdout.Read(d.chunk)
		if n > 0 {
			d.asm.push(d.chunk[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				// Emit any final buffered frame before reporting the end.
				if raw := d.asm.next(); raw != nil {
					return &vision.Frame{Width: d.cfg.Width, Height: d.cfg.Height, BGR: raw}, nil
				}
				return nil, ErrSourceClosed
			}
			return nil, fmt.Errorf("ingest: decoder read: %w", err)
		}
	}
}

// LastLogLines returns the tail of the decoder's stderr.
func (d *Decoder) LastLogLines(n int) []string {
	return d.ring.LastN(n)
}

func (d *Decoder) terminate(reason string) {
	d.killOnce.Do(func() {
		_ = procgroup.Kill(d.cmd, syscall.SIGTERM)
		go func() {
			timer := time.NewTimer(5 * time.Second)
			defer timer.Stop()
			done := make(chan struct{})
			go func() {
				d.drainWG.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-timer.C:
				_ = procgroup.Kill(d.cmd, syscall.SIGKILL)
			}
		}()
		metrics.DecoderExitTotal.WithLabelValues(reason).Inc()
	})
}

// Close terminates the subprocess, waits for the stderr drain to finish and
// reaps the child. Safe to call more than once.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		d.terminate("close")
		d.cancelSub()
		d.drainWG.Wait()
		if err := d.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				// Killed decoders exit non-zero; that is the expected path.
				d.logger.Debug().
					Str("event", "decoder.exit").
					Int("exit_code", exitErr.ExitCode()).
					Strs("stderr", d.ring.LastN(5)).
					Msg("decoder subprocess exited")
			} else {
				d.closeErr = err
			}
		}
	})
	return d.closeErr
}
