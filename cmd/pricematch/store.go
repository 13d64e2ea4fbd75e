// cmd/pricematch/store.go
package main

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pricematch/pricematch/internal/database"
	"github.com/pricematch/pricematch/internal/models"
	"github.com/pricematch/pricematch/internal/services"
	"github.com/pricematch/pricematch/internal/utils"
)

func newStoreCmd() *cobra.Command {
	var brand string

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect and maintain the product record store",
	}
	cmd.PersistentFlags().StringVarP(&brand, "brand", "b", "", "brand to report on")

	// withStore opens the database for one subcommand.
	withStore := func(fn func(cmd *cobra.Command, store *services.ProductService, brand string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			brand, err := requireBrand(brand)
			if err != nil {
				return err
			}
			db, store, err := openStore()
			if err != nil {
				return err
			}
			defer database.Close(db)
			return fn(cmd, store, brand)
		}
	}

	var limit int
	compare := &cobra.Command{
		Use:   "compare",
		Short: "Show matched products with their price difference",
		RunE: withStore(func(cmd *cobra.Command, store *services.ProductService, brand string) error {
			rows, err := store.PriceComparison(cmd.Context(), brand, limit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				pterm.Warning.Println("No matched products")
				return nil
			}

			data := make([][]string, 0, len(rows))
			for _, r := range rows {
				data = append(data, []string{
					fmt.Sprint(r.ID),
					utils.Truncate(r.CoupangProductName, 40),
					utils.Truncate(utils.StringValue(r.IHerbProductName), 40),
					formatPrice(r.CoupangCurrentPrice),
					formatPrice(r.IHerbDiscountPrice),
					formatPrice(r.PriceDifference),
					utils.StringValue(r.CheaperPlatform),
				})
			}
			return printTable([]string{"ID", "Coupang", "iHerb", "Coupang ₩", "iHerb ₩", "Diff", "Cheaper"}, data)
		}),
	}
	compare.Flags().IntVar(&limit, "limit", 50, "rows to show")

	var stage string
	resetFailed := &cobra.Command{
		Use:   "reset-failed",
		Short: "Move failed products back to a stage so they are retried",
		RunE: withStore(func(cmd *cobra.Command, store *services.ProductService, brand string) error {
			n, err := store.ResetFailedProducts(cmd.Context(), brand, models.PipelineStage(stage))
			if err != nil {
				return err
			}
			pterm.Success.Printfln("%d products reset to %s", n, stage)
			return nil
		}),
	}
	resetFailed.Flags().StringVar(&stage, "stage", string(models.StageTranslated), "stage to move failed products to")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show product counts by stage and matching status",
			RunE: withStore(func(cmd *cobra.Command, store *services.ProductService, brand string) error {
				stats, err := store.BrandStats(cmd.Context(), brand)
				if err != nil {
					return err
				}
				printBrandStats(stats)
				return nil
			}),
		},
		compare,
		resetFailed,
		&cobra.Command{
			Use:   "reclaim-locks",
			Short: "Clear product leases left behind by interrupted runs",
			RunE: withStore(func(cmd *cobra.Command, store *services.ProductService, brand string) error {
				n, err := store.ReclaimExpiredLocks(cmd.Context(), brand)
				if err != nil {
					return err
				}
				pterm.Success.Printfln("%d expired locks cleared", n)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "missing",
			Short: "List products the latest crawl did not see",
			RunE: withStore(func(cmd *cobra.Command, store *services.ProductService, brand string) error {
				products, err := store.MissingProducts(cmd.Context(), brand)
				if err != nil {
					return err
				}
				if len(products) == 0 {
					pterm.Success.Println("Every stored product was seen by the latest crawl")
					return nil
				}

				data := make([][]string, 0, len(products))
				for _, p := range products {
					data = append(data, []string{
						fmt.Sprint(p.ID),
						p.CoupangProductID,
						utils.Truncate(p.CoupangProductName, 50),
						formatTime(p.LastCrawledAt),
					})
				}
				return printTable([]string{"ID", "Product ID", "Name", "Last crawled"}, data)
			}),
		},
	)
	return cmd
}

func printBrandStats(stats *models.BrandStats) {
	pterm.DefaultSection.Println(stats.BrandName)
	pterm.Info.Printfln("%d products, last crawled %s, last matched %s",
		stats.TotalProducts, formatTime(stats.LastCrawledAt), formatTime(stats.LastMatchedAt))

	printTable([]string{"Stage", "Count"}, countRows(stats.ByStage))
	printTable([]string{"Matching", "Count"}, countRows(stats.ByMatching))
}

func countRows(counts map[string]int64) [][]string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, fmt.Sprint(counts[k])})
	}
	return rows
}
