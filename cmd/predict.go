package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"agent-swap/pkg/amount"
	"agent-swap/pkg/parser"
	"agent-swap/pkg/prediction"
	"agent-swap/pkg/safety"
	"agent-swap/pkg/signer"
	"agent-swap/pkg/types"
)

const predictionProvider = "dflow"

var predictIncludeRisky bool

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Trade prediction-market outcome tokens",
	Long: `Buy or sell YES/NO outcome tokens of a prediction market, or list the
outcome tokens a wallet holds.

Markets are scored before trading. Markets scored AVOID are refused unless
--include-risky is given.

Examples:
  agent-swap predict buy KXFEDDECISION-25DEC-H0 YES 25
  agent-swap predict sell KXFEDDECISION-25DEC-H0 YES 40.5
  agent-swap predict positions`,
}

var predictBuyCmd = &cobra.Command{
	Use:   "buy <ticker> <YES|NO> <usdc-amount>",
	Short: "Spend USDC on an outcome token",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runPredict(args, true)
	},
}

var predictSellCmd = &cobra.Command{
	Use:   "sell <ticker> <YES|NO> <contracts>",
	Short: "Sell outcome tokens back to USDC",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		runPredict(args, false)
	},
}

var positionsCmd = &cobra.Command{
	Use:   "positions [wallet]",
	Short: "List outcome-token positions (defaults to the signing wallet)",
	Args:  cobra.MaximumNArgs(1),
	Run:   runPositions,
}

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.AddCommand(predictBuyCmd, predictSellCmd, positionsCmd)

	for _, c := range []*cobra.Command{predictBuyCmd, predictSellCmd} {
		c.Flags().BoolVar(&predictIncludeRisky, "include-risky", false, "Trade even when the market is scored AVOID")
		c.Flags().IntVar(&slippageBps, "slippage", -1, "Slippage tolerance in bps (default from config)")
		c.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	}
}

func runPredict(args []string, buy bool) {
	ticker, side := args[0], strings.ToUpper(args[1])
	human, err := amount.Parse(args[2])
	exitOnError(err)
	if !human.IsPositive() {
		exitOnError(fmt.Errorf("%w: amount must be positive", types.ErrInvalidRequest))
	}

	a := mustLoadApp()
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	stop := startSpinner("Scoring market...")
	scored, err := a.discovery(a.cfg.Safety.Filter()).Score(ctx, ticker)
	stop()
	exitOnError(err)

	if scored.Safety.Recommendation == safety.Avoid && !predictIncludeRisky {
		if !jsonOutput {
			displayScore(scored)
		}
		exitOnError(fmt.Errorf("%w: market %s is scored %s (%s); pass --include-risky to trade it anyway",
			types.ErrInvalidRequest, ticker, scored.Safety.Score, strings.Join(scored.Safety.Warnings, ", ")))
	}

	usdc, err := parser.ResolveToken("USDC")
	exitOnError(err)
	outcomeMint, err := scored.Market.OutcomeMint(side, usdc.Mint)
	exitOnError(err)

	req := types.QuoteRequest{Kind: types.OrderPrediction}
	var decimals int32
	if buy {
		req.InputMint, req.OutputMint, decimals = usdc.Mint, outcomeMint, usdc.Decimals
	} else {
		req.InputMint, req.OutputMint, decimals = outcomeMint, usdc.Mint, prediction.OutcomeDecimals
	}
	units, err := amount.ToSmallestUnits(human, decimals)
	exitOnError(err)
	req.Amount, err = amount.ToUint64(units)
	exitOnError(err)

	provider, err := a.provider(predictionProvider)
	exitOnError(err)
	s, err := a.signer()
	exitOnError(err)

	req.Wallet = a.wallet(s)
	req.Sponsor = signer.SponsorAddress(s)
	req.SlippageBps = a.cfg.Aggregator.SlippageBps
	if slippageBps >= 0 {
		req.SlippageBps = slippageBps
	}
	req.PlatformFeeBps = a.cfg.Aggregator.PlatformFeeBps
	req.FeeAccount = a.cfg.Aggregator.FeeAccount

	if !jsonOutput {
		displayPredictOrder(scored, side, human, buy)
	}
	if !noConfirm && !jsonOutput {
		if !confirm("Proceed with order?") {
			fmt.Println("\nOrder cancelled.")
			os.Exit(0)
		}
	}

	stop = startSpinner("Executing order...")
	res := a.engine(provider, s).Execute(ctx, req)
	stop()
	reportResult(res)
}

func displayPredictOrder(scored prediction.ScoredMarket, side string, human decimal.Decimal, buy bool) {
	action, unit := "BUY", "USDC"
	if !buy {
		action, unit = "SELL", "contracts"
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   PREDICTION %s", action)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Market:            %s\n", color.CyanString(scored.Market.Ticker))
	if scored.Market.Title != "" {
		fmt.Printf("  Title:             %s\n", scored.Market.Title)
	}
	fmt.Printf("  Side:              %s\n", color.YellowString(side))
	fmt.Printf("  Amount:            %s %s\n", human, unit)
	if scored.ResolutionDate != "" {
		fmt.Printf("  Resolves:          %s\n", scored.ResolutionDate)
	}
	fmt.Printf("  Safety:            %s (%d) %s\n", coloredScore(scored.Safety.Score), scored.Safety.Points, scored.Safety.Recommendation)
	for _, w := range scored.Safety.Warnings {
		color.Yellow("    - %s", w)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func runPositions(cmd *cobra.Command, args []string) {
	a := mustLoadApp()
	defer a.close()

	var wallet string
	if len(args) == 1 {
		wallet = args[0]
	} else {
		s, err := a.signer()
		exitOnError(err)
		wallet = s.PublicKey().String()
	}

	ctx, cancel := signalContext()
	defer cancel()

	stop := startSpinner("Reading positions...")
	positions, err := prediction.NewPositions(a.rpc, a.metadata(), a.logger).Get(ctx, wallet)
	stop()
	exitOnError(err)

	if jsonOutput {
		printJSON(map[string]interface{}{"wallet": wallet, "positions": positions})
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("                          PREDICTION POSITIONS")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("\n  Wallet: %s\n\n", color.CyanString(wallet))

	if len(positions) == 0 {
		fmt.Println("  No outcome tokens held.")
	}
	for _, p := range positions {
		sideColor := color.GreenString
		if p.Side == "NO" {
			sideColor = color.RedString
		}
		fmt.Printf("  %-36s %-4s %14s  %s\n", p.Ticker, sideColor(p.Side), p.UIAmount.String(), color.HiBlackString(p.Mint))
	}

	fmt.Println("\n" + strings.Repeat("=", 80) + "\n")
}
