package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hybridgroup/mjpeg"

	"github.com/nvr-ai/go-ortdetect/config"
)

// webserver serves the annotated frames as an MJPEG stream until ctx is cancelled.
func webserver(ctx context.Context, parent *slog.Logger, stream *mjpeg.Stream, cfg config.StreamConfig) error {
	logger := parent.With("coroutine", "webserver")

	mux := http.NewServeMux()
	mux.Handle("/", stream)

	server := &http.Server{
		Addr:        fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:     mux,
		ReadTimeout: time.Duration(cfg.ReadTimeoutSec) * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()
	logger.Info("Started", "port", cfg.Port)

	select {
	case err := <-errc:
		logger.Error("Error", "port", cfg.Port, "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	start := time.Now()
	err := server.Shutdown(shutdownCtx)
	if err != nil {
		// Open MJPEG responses never go idle.
		server.Close()
	}
	logger.Info("Shut down", "duration", time.Since(start), "error", err)
	return nil
}
