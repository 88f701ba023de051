package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agent-swap/pkg/prediction"
	"agent-swap/pkg/safety"
)

var (
	marketSearch       string
	marketLimit        int
	marketCursor       string
	marketSort         string
	marketStatus       string
	marketSeries       []string
	marketIncludeRisky bool
	marketVerifiedOnly bool
)

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "Discover prediction markets with safety scores",
	Long: `List active prediction markets, drop thin or brand-new ones and score the rest.

The quality filter (minimum volume, liquidity and age) comes from the safety
section of the config. --include-risky shows everything, still scored.

Examples:
  agent-swap markets
  agent-swap markets --series KXFED --limit 20
  agent-swap markets --search "bitcoin"
  agent-swap markets --include-risky --json`,
	Run: runMarkets,
}

func init() {
	rootCmd.AddCommand(marketsCmd)

	marketsCmd.Flags().StringVarP(&marketSearch, "search", "s", "", "Search events by text instead of listing markets")
	marketsCmd.Flags().IntVar(&marketLimit, "limit", prediction.DefaultListLimit, "Maximum markets per page")
	marketsCmd.Flags().StringVar(&marketCursor, "cursor", "", "Page cursor from a previous listing")
	marketsCmd.Flags().StringVar(&marketSort, "sort", "volume", "Sort order")
	marketsCmd.Flags().StringVar(&marketStatus, "status", "active", "Market status")
	marketsCmd.Flags().StringSliceVar(&marketSeries, "series", nil, "Only markets in these series")
	marketsCmd.Flags().BoolVar(&marketIncludeRisky, "include-risky", false, "Skip the quality filter")
	marketsCmd.Flags().BoolVar(&marketVerifiedOnly, "verified-only", false, "Only markets from verified series")
}

func runMarkets(cmd *cobra.Command, args []string) {
	a := mustLoadApp()
	defer a.close()

	filter := a.cfg.Safety.Filter()
	if cmd.Flags().Changed("include-risky") {
		filter.IncludeRisky = marketIncludeRisky
	}
	if cmd.Flags().Changed("verified-only") {
		filter.VerifiedOnly = marketVerifiedOnly
	}
	svc := a.discovery(filter)

	ctx, cancel := signalContext()
	defer cancel()

	if marketSearch != "" {
		stop := startSpinner("Searching markets...")
		events, err := svc.Search(ctx, marketSearch, marketLimit)
		stop()
		exitOnError(err)

		if jsonOutput {
			printJSON(map[string]interface{}{"events": events})
		} else {
			displayEvents(events)
		}
		return
	}

	stop := startSpinner("Fetching markets...")
	markets, cursor, err := svc.Discover(ctx, prediction.ListOptions{
		Limit:  marketLimit,
		Cursor: marketCursor,
		Status: marketStatus,
		Sort:   marketSort,
		Series: marketSeries,
	})
	stop()
	exitOnError(err)

	if jsonOutput {
		printJSON(map[string]interface{}{"markets": markets, "cursor": cursor})
		return
	}
	displayMarkets(markets)
	if cursor != "" {
		fmt.Printf("More results: agent-swap markets --cursor %s\n\n", cursor)
	}
}

func displayMarkets(markets []prediction.ScoredMarket) {
	if len(markets) == 0 {
		fmt.Println("\nNo markets passed the quality filter. Try --include-risky.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                   PREDICTION MARKETS")
	fmt.Println(strings.Repeat("=", 100) + "\n")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TICKER\tSCORE\tVOLUME\tLIQUIDITY\tTRADES 24H\tRESOLVES\tTITLE")
	for _, m := range markets {
		fmt.Fprintf(w, "  %s\t%s\t$%.0f\t$%.0f\t%s\t%s\t%s\n",
			m.Market.Ticker,
			coloredScore(m.Safety.Score),
			m.Snapshot.VolumeUSD,
			m.Snapshot.LiquidityUSD,
			tradeCount(m.Snapshot),
			m.ResolutionDate,
			truncate(m.Market.Title, 40),
		)
	}
	_ = w.Flush()

	fmt.Println("\n" + strings.Repeat("=", 100))
	fmt.Printf("\nTotal: %d markets\n\n", len(markets))
}

func displayEvents(events []prediction.ScoredEvent) {
	if len(events) == 0 {
		fmt.Println("\nNo events found matching the search.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                     SEARCH RESULTS")
	fmt.Println(strings.Repeat("=", 100))

	for _, ev := range events {
		color.Cyan("\n%s  %s", ev.Event.Ticker, truncate(ev.Event.Title, 60))
		fmt.Printf("  Score: %s (%d)\n", coloredScore(ev.Safety.Score), ev.Safety.Points)
		fmt.Println(strings.Repeat("-", 100))
		for _, m := range ev.Markets {
			fmt.Printf("  %-40s %-8s %s\n", m.Market.Ticker, coloredScore(m.Safety.Score), truncate(m.Market.Title, 45))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	fmt.Printf("\nTotal: %d events\n\n", len(events))
}

func tradeCount(snap safety.MarketSnapshot) string {
	if snap.TradesUnknown {
		return "-"
	}
	return fmt.Sprintf("%d", snap.RecentTradeCount)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
