package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmpolyakov/ai-drive-agent/internal/bootstrap"
	"github.com/dmpolyakov/ai-drive-agent/internal/config"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "worker", cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: app.WorkerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeInteractions(ctx, func(handlerCtx context.Context, event domain.InteractionEvent) error {
		if !event.OccurredAt.IsZero() {
			app.WorkerMetrics.ObserveQueueLag("worker", time.Since(event.OccurredAt))
		}

		app.WorkerMetrics.StartWrite()
		start := time.Now()
		writeCtx, cancel := context.WithTimeout(handlerCtx, 2*time.Minute)
		defer cancel()

		writeErr := app.WriterUC.Write(writeCtx, event)
		app.WorkerMetrics.FinishWrite("worker", time.Since(start), writeErr)
		if writeErr != nil {
			app.Logger.Error("interaction write failed", "user_id", event.UserID, "event_id", event.ID, "error", writeErr)
		}
		return writeErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
