// SPDX-License-Identifier: MIT

// Command daemon runs the classroom attendance service: it terminates the
// device video uplinks, drives the recognition pipeline and serves the HTTP
// control and viewer surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edupresencia/presencia/internal/api"
	"github.com/edupresencia/presencia/internal/config"
	"github.com/edupresencia/presencia/internal/ingest"
	"github.com/edupresencia/presencia/internal/log"
	"github.com/edupresencia/presencia/internal/sdp"
	"github.com/edupresencia/presencia/internal/session"
	"github.com/edupresencia/presencia/internal/store"
	"github.com/edupresencia/presencia/internal/timetable"
	"github.com/edupresencia/presencia/internal/vision"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("presencia %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "presencia: %v\n", err)
		os.Exit(1)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "presencia", Version: version})

	if err := run(cfg); err != nil {
		lg := log.WithComponent("main")
		lg.Fatal().Err(err).Msg("daemon failed")
	}
}

func run(cfg config.Config) error {
	logger := log.WithComponent("main")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	serviceIP := sdp.LocalIP()
	if err := sdp.WriteFile(cfg.SDPPath, serviceIP, cfg.SDPPort); err != nil {
		return err
	}
	logger.Info().
		Str("sdp_path", cfg.SDPPath).
		Str("ip", serviceIP).
		Int("port", cfg.SDPPort).
		Msg("session description written")

	oracle, err := timetable.New(st, cfg.Timezone)
	if err != nil {
		return err
	}

	deps := session.Deps{
		Store:    st,
		Oracle:   oracle,
		Detector: vision.NewRemoteDetector(cfg.DetectorURL, cfg.DetectorTimeout),
		NewTracker: func(p vision.TrackerParams) vision.Tracker {
			return vision.NewByteTracker(p)
		},
		NewSource: func(ctx context.Context) (ingest.Source, error) {
			return ingest.Start(ctx, ingest.Config{
				Bin:     cfg.FFmpegBin,
				SDPPath: cfg.SDPPath,
				Local:   cfg.LocalSource,
				Width:   cfg.FrameWidth,
				Height:  cfg.FrameHeight,
			})
		},
		DetectEveryN:        cfg.DetectEveryN,
		SimilarityThreshold: cfg.SimilarityThreshold,
		FlushInterval:       cfg.FlushInterval,
		DefaultDeadline:     time.Duration(cfg.DeadlineSeconds) * time.Second,
		AdjustWindow:        cfg.DeadlineAdjustWindow,
		LateSightingUpdate:  cfg.LateSightingUpdate,
	}
	reg := session.NewRegistry(deps)
	ctl := session.NewController(reg, session.NewHTTPStopNotifier(cfg.StopNotifyTimeout))

	srv := api.New(api.Options{
		Auth:       api.NewAuth(cfg.JWTSecret),
		Store:      st,
		Controller: ctl,
		Registry:   reg,
		Oracle:     oracle,
		ViewerFPS:  cfg.ViewerFPS,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("listen", cfg.Listen).Msg("http server starting")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown incomplete")
		}
		reg.CloseAll(shutdownCtx)
		return nil
	})

	return g.Wait()
}
