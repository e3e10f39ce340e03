// Command ortdetect runs YOLOv4 object detection on a video file, camera or stream.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-ortdetect/config"
	"github.com/nvr-ai/go-ortdetect/profiler"
)

var errInterrupted = errors.New("interrupted by user")

func main() {
	var (
		cfgPath     string
		inputPath   string
		outputPath  string
		logLevel    string
		writeConfig string
	)
	flag.StringVar(&cfgPath, "config", "", "Path to config file (defaults are used when empty)")
	flag.StringVar(&inputPath, "input", "", "Video file, camera index or stream URL (overrides input.path)")
	flag.StringVar(&outputPath, "output", "", "Annotated video file (overrides output.path)")
	flag.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides logging.level)")
	flag.StringVar(&writeConfig, "write-config", "", "Write the default configuration to this path and exit")
	flag.Parse()

	if writeConfig != "" {
		if err := config.Default().Write(writeConfig); err != nil {
			slog.Error("Can't write default config", "path", writeConfig, "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(cfgPath, inputPath, outputPath, logLevel)
	if err != nil {
		slog.Error("Config file not loaded. Shutting down...", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	level, ok := cfg.Logging.SlogLevel()
	if !ok {
		slog.Warn("No valid logging level provided. Defaulting to error", "level", cfg.Logging.Level)
	}
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("Stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Stopped")
}

func loadConfig(path, input, output, level string) (config.File, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.File{}, err
		}
	}
	if input != "" {
		cfg.Input.Path = input
	}
	if output != "" {
		cfg.Output.Path = output
	}
	if level != "" {
		cfg.Logging.Level = level
	}
	return cfg, cfg.Validate()
}

// run starts the capture pipeline, the preview server, the statistics reporter and the signal
// handler, and waits until the input ends or a signal arrives.
func run(ctx context.Context, cfg config.File, logger *slog.Logger) error {
	stages := profiler.New(profiler.Options{})

	p, err := newPipeline(ctx, cfg, logger, stages)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer cancel()
		return p.Run(egCtx)
	})

	if cfg.Stream.Enabled {
		eg.Go(func() error {
			return webserver(egCtx, logger, p.Preview(), cfg.Stream)
		})
	}

	if cfg.Logging.StatPeriodSec > 0 {
		eg.Go(func() error {
			return stat(egCtx, logger, stages, time.Duration(cfg.Logging.StatPeriodSec)*time.Second)
		})
	}

	eg.Go(func() error {
		return control(egCtx, logger)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, errInterrupted) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// stat logs the profiler summary every period.
func stat(ctx context.Context, logger *slog.Logger, stages *profiler.Stages, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			logger.Info("Stats", "profile", stages.Summary())
		}
	}
}

func control(ctx context.Context, logger *slog.Logger) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case <-ctx.Done():
		return nil
	case sig := <-interrupt:
		logger.Info("Cancelled by user", "signal", sig.String())
		return errInterrupted
	}
}
