// cmd/pricematch/pipeline.go
package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pricematch/pricematch/internal/crawler"
	"github.com/pricematch/pricematch/internal/database"
	"github.com/pricematch/pricematch/internal/gemini"
	"github.com/pricematch/pricematch/internal/hazard"
	"github.com/pricematch/pricematch/internal/services"
)

var errBrandRequired = errors.New("--brand is required")

func requireBrand(brand string) (string, error) {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return "", errBrandRequired
	}
	return brand, nil
}

func newCrawlCmd() *cobra.Command {
	var (
		brand   string
		query   string
		top     int
		details bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl marketplace A search results for a brand",
		RunE: func(cmd *cobra.Command, args []string) error {
			brand, err := requireBrand(brand)
			if err != nil {
				return err
			}
			if top <= 0 {
				top = cfg.Pipeline.TopN
			}

			db, store, err := openStore()
			if err != nil {
				return err
			}
			defer database.Close(db)

			b, err := openBrowser(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			archiver, err := newArchiver()
			if err != nil {
				return err
			}

			coupang := crawler.NewCoupangCrawler(b)
			deps := services.PipelineDeps{
				Searcher: coupang,
				Images:   hazard.NewDownloader(cfg.Browser.PageTimeout),
				Archiver: archiver,
			}
			if details {
				deps.Details = coupang
			}

			summary, err := services.NewPipelineService(store, deps).Crawl(cmd.Context(), brand, query, top)
			if summary != nil {
				printStageSummary("crawl", brand, summary)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&brand, "brand", "b", "", "brand name the products are stored under")
	flags.StringVarP(&query, "query", "q", "", "search query (default: the brand name)")
	flags.IntVar(&top, "top", 0, "number of search results to keep (default: pipeline.top_n)")
	flags.BoolVar(&details, "details", false, "also open each product page for stock, seller and origin")
	flags.Bool("headless", false, "run the browser headless")
	return cmd
}

func newTranslateCmd() *cobra.Command {
	var brand string

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate crawled product names to English",
		RunE: func(cmd *cobra.Command, args []string) error {
			brand, err := requireBrand(brand)
			if err != nil {
				return err
			}

			client, err := newGemini(cmd.Context())
			if err != nil {
				return err
			}

			db, store, err := openStore()
			if err != nil {
				return err
			}
			defer database.Close(db)

			pipeline := services.NewPipelineService(store, services.PipelineDeps{
				Translator: gemini.NewTranslator(client),
			})
			summary, err := pipeline.Translate(cmd.Context(), brand)
			if summary != nil {
				printStageSummary("translate", brand, summary)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&brand, "brand", "b", "", "brand to translate")
	return cmd
}

func newMatchCmd() *cobra.Command {
	var (
		brand      string
		candidates int
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match translated products to marketplace B listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			brand, err := requireBrand(brand)
			if err != nil {
				return err
			}
			if candidates <= 0 {
				candidates = cfg.Pipeline.MatchCandidates
			}

			client, err := newGemini(cmd.Context())
			if err != nil {
				return err
			}

			db, store, err := openStore()
			if err != nil {
				return err
			}
			defer database.Close(db)

			b, err := openBrowser(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			archiver, err := newArchiver()
			if err != nil {
				return err
			}

			pipeline := services.NewPipelineService(store, services.PipelineDeps{
				Listings: crawler.NewIHerbScraper(b),
				Images:   hazard.NewDownloader(cfg.Browser.PageTimeout),
				Verifier: gemini.NewVerifier(client),
				Archiver: archiver,
			})
			summary, err := pipeline.Match(cmd.Context(), brand, candidates)
			if summary != nil {
				printStageSummary("match", brand, summary)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&brand, "brand", "b", "", "brand to match")
	flags.IntVar(&candidates, "candidates", 0, "listings verified per product (default: pipeline.match_candidates)")
	flags.Bool("headless", false, "run the browser headless")
	return cmd
}

func printStageSummary(stage, brand string, s *services.StageSummary) {
	pterm.DefaultSection.Println(fmt.Sprintf("%s: %s", stage, brand))
	printTable([]string{"Processed", "Succeeded", "Not found", "Failed", "Skipped"}, [][]string{{
		fmt.Sprint(s.Processed),
		fmt.Sprint(s.Succeeded),
		fmt.Sprint(s.NotFound),
		fmt.Sprint(s.Failed),
		fmt.Sprint(s.Skipped),
	}})
}
