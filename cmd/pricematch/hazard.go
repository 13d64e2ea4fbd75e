// cmd/pricematch/hazard.go
package main

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pricematch/pricematch/internal/browser"
	"github.com/pricematch/pricematch/internal/crawler"
	"github.com/pricematch/pricematch/internal/gemini"
	"github.com/pricematch/pricematch/internal/hazard"
	"github.com/pricematch/pricematch/internal/services"
)

// hazardRun holds what a hazard phase command opened so it can be closed.
type hazardRun struct {
	pipeline *services.HazardPipeline
	browser  *browser.Browser
}

func (r *hazardRun) Close() {
	if r.browser != nil {
		r.browser.Close()
	}
}

// openHazardPipeline wires the collaborators a phase needs. Phase 1 needs
// the reverse image search, phase 2 the listing scraper and the verifier.
func openHazardPipeline(ctx context.Context, cmd *cobra.Command, phase1, phase2 bool) (*hazardRun, error) {
	deps := services.HazardDeps{
		Downloader: hazard.NewDownloader(cfg.Browser.PageTimeout),
		TempDir:    cfg.Hazard.TempDir,
	}
	if cfg.Hazard.MFDSAPIKey != "" {
		deps.Fetcher = hazard.NewMFDSClient(cfg.Hazard)
	}

	if phase2 {
		client, err := newGemini(ctx)
		if err != nil {
			return nil, err
		}
		deps.Verifier = gemini.NewVerifier(client)
	}

	run := &hazardRun{}
	if phase1 || phase2 {
		b, err := openBrowser(cmd)
		if err != nil {
			return nil, err
		}
		run.browser = b
		if phase1 {
			deps.Searcher = crawler.NewGoogleImageSearch(b)
		}
		if phase2 {
			deps.Scraper = crawler.NewIHerbScraper(b)
		}
	}

	run.pipeline = services.NewHazardPipeline(hazard.NewCSVStore(cfg.Hazard.CSVPath), deps)
	return run, nil
}

func newPhase1Cmd() *cobra.Command {
	opts := services.Phase1Options{}

	cmd := &cobra.Command{
		Use:   "phase1 [seq...]",
		Short: "Find marketplace B candidates for hazard notices by reverse image search",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Seqs = args
			if opts.Fetch && opts.FetchLimit == 0 {
				opts.FetchLimit = cfg.Hazard.FetchLimit
			}

			run, err := openHazardPipeline(cmd.Context(), cmd, true, false)
			if err != nil {
				return err
			}
			defer run.Close()

			summary, err := run.pipeline.RunPhase1(cmd.Context(), opts)
			if summary != nil {
				printPhase1Summary(summary)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.Limit, "limit", 0, "process at most n records (0: all)")
	flags.BoolVar(&opts.Fetch, "fetch", false, "merge newly published notices from the MFDS API first")
	flags.IntVar(&opts.FetchLimit, "fetch-limit", 0, "notices to fetch (default: hazard.fetch_limit)")
	flags.Bool("headless", false, "run the browser headless")
	return cmd
}

func newPhase2Cmd() *cobra.Command {
	var (
		revalidateAll bool
		seq           string
	)

	cmd := &cobra.Command{
		Use:   "phase2",
		Short: "Verify phase 1 candidates with the LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			if revalidateAll && seq != "" {
				return fmt.Errorf("--revalidate-all and --seq are mutually exclusive")
			}
			opts := services.Phase2Options{Mode: services.Phase2Unverified}
			switch {
			case revalidateAll:
				opts.Mode = services.Phase2RevalidateAll
			case seq != "":
				opts.Mode, opts.Seq = services.Phase2ByID, seq
			}

			run, err := openHazardPipeline(cmd.Context(), cmd, false, true)
			if err != nil {
				return err
			}
			defer run.Close()

			summary, err := run.pipeline.RunPhase2(cmd.Context(), opts)
			if summary != nil {
				printPhase2Summary(summary)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&revalidateAll, "revalidate-all", false, "verify every record with a candidate again")
	flags.StringVar(&seq, "seq", "", "verify a single record by its SELF_IMPORT_SEQ")
	flags.Bool("headless", false, "run the browser headless")
	return cmd
}

func newPhase3Cmd() *cobra.Command {
	opts := services.Phase3Options{}

	cmd := &cobra.Command{
		Use:   "phase3",
		Short: "Run phases 1 and 2 over recently published notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Days <= 0 {
				opts.Days = cfg.Hazard.WindowDays
			}
			if opts.Fetch && opts.FetchLimit == 0 {
				opts.FetchLimit = cfg.Hazard.FetchLimit
			}

			run, err := openHazardPipeline(cmd.Context(), cmd, !opts.SkipPhase1, !opts.SkipPhase2)
			if err != nil {
				return err
			}
			defer run.Close()

			summary, err := run.pipeline.RunPhase3(cmd.Context(), opts)
			if summary != nil {
				pterm.DefaultSection.Println(fmt.Sprintf("phase 3: last %d days", opts.Days))
				pterm.Info.Printfln("%d records in window, %d verified matches", summary.Selected, summary.Matches)
				if summary.Phase1 != nil {
					printPhase1Summary(summary.Phase1)
				}
				if summary.Phase2 != nil {
					printPhase2Summary(summary.Phase2)
				}
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.Days, "days", 0, "window in days by notice creation date (default: hazard.window_days)")
	flags.BoolVar(&opts.SkipPhase1, "skip-phase1", false, "do not search for new candidates")
	flags.BoolVar(&opts.SkipPhase2, "skip-phase2", false, "do not verify candidates")
	flags.BoolVar(&opts.Fetch, "fetch", false, "merge newly published notices from the MFDS API first")
	flags.IntVar(&opts.FetchLimit, "fetch-limit", 0, "notices to fetch (default: hazard.fetch_limit)")
	flags.Bool("headless", false, "run the browser headless")
	return cmd
}

func printPhase1Summary(s *services.Phase1Summary) {
	pterm.DefaultSection.Println("phase 1")
	printTable([]string{"Processed", "Found", "Not found", "No image", "Download failed"}, [][]string{{
		fmt.Sprint(s.Processed),
		fmt.Sprint(s.Found),
		fmt.Sprint(s.NotFound),
		fmt.Sprint(s.NoImage),
		fmt.Sprint(s.DownloadFailed),
	}})
}

func printPhase2Summary(s *services.Phase2Summary) {
	pterm.DefaultSection.Println("phase 2")
	printTable([]string{"Processed", "Matched", "Mismatched", "Failed"}, [][]string{{
		fmt.Sprint(s.Processed),
		fmt.Sprint(s.Matched),
		fmt.Sprint(s.Mismatched),
		fmt.Sprint(s.Failed),
	}})
}
