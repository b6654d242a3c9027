package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"device-report/server"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run control, status and metrics over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.LogLevel == "debug" {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a := newApp(cfg)
		defer a.close()

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: server.NewRouter(server.NewHandlers(ctx, a.runner, a.tracker)),
		}

		errc := make(chan error, 1)
		go func() {
			log.Infof("Starting HTTP server on port %d", cfg.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errc:
			return fmt.Errorf("HTTP server failed: %w", err)
		}

		log.Info("Shutting down server...")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		log.Info("Server exited")
		return nil
	},
}
