package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/workforge/flowengine/internal/obs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine dispatcher and its HTTP metrics/health server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("starting flowengine", zap.String("service", serviceName), zap.String("version", serviceVersion))

	shutdownTracing, err := obs.InitTracing(serviceName, serviceVersion, a.cfg.Observability.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer shutdownTracing()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	a.eng.Start(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serveHTTP(ctx, a); err != nil {
			a.logger.Error("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	a.logger.Info("shutdown signal received, gracefully stopping")

	cancel()
	a.eng.Stop(shutdownTimeout(a.cfg))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Info("flowengine stopped gracefully")
	case <-time.After(shutdownTimeout(a.cfg)):
		a.logger.Warn("shutdown timed out, forcing exit")
	}
	return nil
}

func serveHTTP(ctx context.Context, a *app) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"%s","version":"%s","timestamp":"%s"}`,
			serviceName, serviceVersion, time.Now().UTC().Format(time.RFC3339))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		snap := a.eng.MetricsSnapshot()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"active":%d,"history":%d,"pending_queue_depth":%d}`,
			snap.ActiveCount, snap.HistoryCount, snap.PendingQueueDepth)
	})

	srv := &http.Server{Addr: a.cfg.HTTP.Address, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	}
}
