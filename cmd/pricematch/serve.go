// cmd/pricematch/serve.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pricematch/pricematch/internal/database"
	"github.com/pricematch/pricematch/internal/router"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only report API",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer database.Close(db)

			// Set Gin mode
			if cfg.Environment == "production" {
				gin.SetMode(gin.ReleaseMode)
			}

			r := router.Initialize(db, cfg)

			srv := &http.Server{
				Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
				Handler:      r,
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
				IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
			}

			// Start server in a goroutine
			errCh := make(chan error, 1)
			go func() {
				logrus.WithField("addr", srv.Addr).Info("Starting report server")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// Wait for interrupt signal to gracefully shutdown the server
			select {
			case err := <-errCh:
				return fmt.Errorf("failed to start server: %w", err)
			case <-cmd.Context().Done():
			}
			logrus.Info("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			logrus.Info("Server exited")
			return nil
		},
	}
}
