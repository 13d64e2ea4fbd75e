// cmd/pricematch/deps.go
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/pricematch/pricematch/internal/browser"
	"github.com/pricematch/pricematch/internal/database"
	"github.com/pricematch/pricematch/internal/gemini"
	"github.com/pricematch/pricematch/internal/services"
)

// applyHeadless lets --headless override the configured browser mode.
func applyHeadless(cmd *cobra.Command) {
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		cfg.Browser.Headless = f.Value.String() == "true"
	}
}

func openStore() (*gorm.DB, *services.ProductService, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, services.NewProductService(db, cfg.Pipeline.LockTTL), nil
}

func openBrowser(cmd *cobra.Command) (*browser.Browser, error) {
	applyHeadless(cmd)
	b, err := browser.New(cfg.Browser)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return b, nil
}

func newGemini(ctx context.Context) (*gemini.Client, error) {
	if err := cfg.RequireGemini(); err != nil {
		return nil, err
	}
	client, err := gemini.NewClient(ctx, cfg.Gemini)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

// newArchiver returns nil unless image archiving is switched on.
func newArchiver() (services.ImageArchiver, error) {
	if !cfg.Pipeline.ArchiveImages {
		return nil, nil
	}
	storage, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image storage: %w", err)
	}
	return storage, nil
}
