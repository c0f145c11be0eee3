package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/battlesim/api/rest"
	"github.com/kasuganosora/battlesim/api/sse"
	"github.com/kasuganosora/battlesim/config"
	mw "github.com/kasuganosora/battlesim/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP evaluation server",
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		logger, err := newLogger(cfg.Server.Debug)
		if err != nil {
			log.Fatalf("logger: %v", err)
		}
		defer logger.Sync()

		a, err := newApp(cfg, logger)
		if err != nil {
			log.Fatalf("startup: %v", err)
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := a.serve(ctx); err != nil {
			logger.Error("server stopped", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func (a *app) router() (*gin.Engine, *mw.RateLimiter) {
	if !a.cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := mw.NewRateLimiter(rate.Limit(a.cfg.Security.RateLimitRPS), a.cfg.Security.RateLimitBurst)
	rc := rest.RouterConfig{
		Evaluator: a.sim,
		Cache:     a.cache,
		Events:    sse.NewHandler(a.pubsub, 0, a.logger),
		Pool:      a.pool,
		Gatherer:  a.registry,
		Limiter:   limiter,
		AdminKey:  a.cfg.Server.AdminKey,
		Logger:    a.logger,
	}
	if a.reports != nil {
		rc.Reports = a.reports
	}
	return rest.NewRouter(rc), limiter
}

// serve runs the HTTP server until ctx ends, then drains in-flight requests.
func (a *app) serve(ctx context.Context) error {
	handler, limiter := a.router()
	defer limiter.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
