package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agent-swap/pkg/prediction"
	"agent-swap/pkg/safety"
)

var scoreMint string

var scoreCmd = &cobra.Command{
	Use:   "score [ticker]",
	Short: "Score one prediction market",
	Long: `Load a market and its last 24h of trades and print its safety score.

Examples:
  agent-swap score KXFEDDECISION-25DEC-H0
  agent-swap score --mint <outcome-token-mint>`,
	Args: cobra.MaximumNArgs(1),
	Run:  runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&scoreMint, "mint", "", "Score the market an outcome token belongs to")
}

func runScore(cmd *cobra.Command, args []string) {
	if len(args) == 0 && scoreMint == "" {
		_ = cmd.Usage()
		os.Exit(1)
	}

	a := mustLoadApp()
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	svc := a.discovery(a.cfg.Safety.Filter())
	stop := startSpinner("Scoring market...")
	var (
		scored prediction.ScoredMarket
		err    error
	)
	if scoreMint != "" {
		scored, err = svc.ScoreByMint(ctx, scoreMint)
	} else {
		scored, err = svc.Score(ctx, args[0])
	}
	stop()

	// an unreachable market still prints its UNKNOWN assessment
	if jsonOutput {
		out := map[string]interface{}{"market": scored}
		if err != nil {
			out["error"] = err.Error()
		}
		printJSON(out)
	} else {
		displayScore(scored)
	}
	if err != nil {
		os.Exit(1)
	}
}

func displayScore(scored prediction.ScoredMarket) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      MARKET SAFETY")
	fmt.Println(strings.Repeat("=", 60))

	m := scored.Market
	fmt.Printf("\n  Market:            %s\n", color.CyanString(m.Ticker))
	if m.Title != "" {
		fmt.Printf("  Title:             %s\n", m.Title)
	}
	if scored.ResolutionDate != "" {
		fmt.Printf("  Resolves:          %s\n", scored.ResolutionDate)
	}
	snap := scored.Snapshot
	if snap.Ticker != "" {
		fmt.Printf("  Volume:            $%.2f\n", snap.VolumeUSD)
		fmt.Printf("  Liquidity:         $%.2f\n", snap.LiquidityUSD)
		if !snap.AgeUnknown {
			fmt.Printf("  Age:               %s\n", snap.Age.Round(1e9))
		}
		if !snap.TradesUnknown {
			fmt.Printf("  Trades (24h):      %d\n", snap.RecentTradeCount)
		}
		fmt.Printf("  Series:            %s\n", snap.Series)
	}

	fmt.Printf("\n  Score:             %s (%d)\n", coloredScore(scored.Safety.Score), scored.Safety.Points)
	fmt.Printf("  Recommendation:    %s\n", coloredRecommendation(scored.Safety.Recommendation))
	for _, w := range scored.Safety.Warnings {
		color.Yellow("    - %s", w)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func coloredScore(s safety.Score) string {
	switch s {
	case safety.ScoreHigh:
		return color.GreenString(string(s))
	case safety.ScoreMedium:
		return color.YellowString(string(s))
	case safety.ScoreLow:
		return color.RedString(string(s))
	default:
		return color.HiBlackString(string(s))
	}
}

func coloredRecommendation(r safety.Recommendation) string {
	switch r {
	case safety.Proceed:
		return color.GreenString(string(r))
	case safety.Caution:
		return color.YellowString(string(r))
	case safety.Avoid:
		return color.RedString(string(r))
	default:
		return string(r)
	}
}
