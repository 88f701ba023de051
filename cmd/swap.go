package cmd

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"agent-swap/pkg/amount"
	"agent-swap/pkg/parser"
	"agent-swap/pkg/pricing"
	"agent-swap/pkg/signer"
	"agent-swap/pkg/types"
)

var (
	swapProvider  string
	slippageBps   int
	recipientAddr string
	toChain       string
	limitPct      string
	limitExpires  time.Duration
	recurOrders   int
	recurEvery    time.Duration
	noConfirm     bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Swap tokens, or place a limit or recurring order",
	Long: `Swap tokens on Solana through the configured aggregator.

Tokens are known symbols (SOL, USDC, USDT, JUP, BONK) or mint addresses. Prefix the
amount with $ to size the swap in USD at the current price.

  --limit-pct places a limit order asking for that much more output than the
  current market price (Jupiter only). --orders and --every split the amount into
  a recurring order (Jupiter only). --to-chain routes a cross-chain swap through
  1Click; the destination is then a symbol on that chain and --recipient is required.

Examples:
  agent-swap swap 1 SOL to USDC
  agent-swap swap '$50' of SOL to JUP --provider jupiter --slippage 50
  agent-swap swap 100 USDC to SOL --provider jupiter --limit-pct 5 --expires 72h
  agent-swap swap 300 USDC to SOL --provider jupiter --orders 3 --every 24h
  agent-swap swap 1 SOL to USDC --to-chain near --recipient you.near`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&swapProvider, "provider", "", "Aggregator to use: dflow, jupiter or oneclick (default from config)")
	swapCmd.Flags().IntVar(&slippageBps, "slippage", -1, "Slippage tolerance in bps (default from config)")
	swapCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Destination wallet (defaults to the signing wallet)")
	swapCmd.Flags().StringVar(&toChain, "to-chain", "", "Destination chain for a cross-chain swap (uses 1Click)")
	swapCmd.Flags().StringVar(&limitPct, "limit-pct", "", "Place a limit order this many percent above the market price")
	swapCmd.Flags().DurationVar(&limitExpires, "expires", 0, "Limit order expiry, e.g. 24h (default: no expiry)")
	swapCmd.Flags().IntVar(&recurOrders, "orders", 0, "Split into this many recurring orders")
	swapCmd.Flags().DurationVar(&recurEvery, "every", 0, "Interval between recurring orders, e.g. 1h")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

// swapPlan is a fully sized order before it is sent to the engine
type swapPlan struct {
	Request     types.QuoteRequest     `json:"request"`
	Input       parser.Token           `json:"input"`
	Output      parser.Token           `json:"output"`
	InputHuman  decimal.Decimal        `json:"input_amount"`
	InputUSD    decimal.Decimal        `json:"input_usd,omitempty"`
	PlatformFee *big.Int               `json:"platform_fee_units,omitempty"`
	Limit       *amount.LimitOrderInfo `json:"limit,omitempty"`
}

func runSwap(cmd *cobra.Command, args []string) {
	swapCmdArgs, err := parser.ParseSwapCommand(strings.Join(args, " "))
	exitOnError(err)

	a := mustLoadApp()
	defer a.close()

	providerName := swapProvider
	if toChain != "" {
		providerName = "oneclick"
	}
	provider, err := a.provider(providerName)
	exitOnError(err)

	s, err := a.signer()
	exitOnError(err)

	ctx, cancel := signalContext()
	defer cancel()

	stop := startSpinner("Sizing order...")
	plan, err := buildSwapPlan(ctx, a.pricer(), swapCmdArgs)
	stop()
	exitOnError(err)

	req := &plan.Request
	req.Wallet = a.wallet(s)
	req.Sponsor = signer.SponsorAddress(s)
	req.SlippageBps = a.cfg.Aggregator.SlippageBps
	if slippageBps >= 0 {
		req.SlippageBps = slippageBps
	}
	req.PlatformFeeBps = a.cfg.Aggregator.PlatformFeeBps
	req.FeeAccount = a.cfg.Aggregator.FeeAccount
	req.Recipient = recipientAddr
	if req.PlatformFeeBps > 0 {
		fee, err := amount.FeeAmount(new(big.Int).SetUint64(req.Amount), req.PlatformFeeBps)
		exitOnError(err)
		plan.PlatformFee = fee
	}

	if verbose {
		fmt.Printf("\nDebug: order plan via %s:\n", provider.Name())
		printJSON(plan)
	}

	if !jsonOutput {
		displaySwapPlan(plan, provider.Name())
	}
	if !noConfirm && !jsonOutput {
		if !confirm("Proceed with order?") {
			fmt.Println("\nOrder cancelled.")
			os.Exit(0)
		}
	}

	stop = startSpinner("Executing order...")
	res := a.engine(provider, s).Execute(ctx, *req)
	stop()
	reportResult(res)
}

// buildSwapPlan resolves tokens and converts the human or USD amount into smallest units
func buildSwapPlan(ctx context.Context, pricer *pricing.Pricer, c *parser.SwapCommand) (*swapPlan, error) {
	in, err := parser.ResolveToken(c.Input)
	if err != nil {
		return nil, err
	}

	var out parser.Token
	if toChain != "" {
		// 1Click resolves the destination asset by symbol and chain
		out = parser.Token{Symbol: strings.ToUpper(c.Output), Mint: strings.ToUpper(c.Output) + "@" + strings.ToLower(toChain), Decimals: parser.UnknownDecimals}
		if recipientAddr == "" {
			return nil, fmt.Errorf("%w: --recipient is required for cross-chain swaps", types.ErrInvalidRequest)
		}
	} else if out, err = parser.ResolveToken(c.Output); err != nil {
		return nil, err
	}

	isLimit := limitPct != ""
	needPrices := c.USD || isLimit || in.Decimals == parser.UnknownDecimals
	var prices map[string]pricing.Price
	if needPrices {
		mints := []string{in.Mint}
		if isLimit {
			mints = append(mints, out.Mint)
		}
		if prices, err = pricer.Prices(ctx, mints...); err != nil {
			return nil, err
		}
		if in.Decimals == parser.UnknownDecimals {
			in.Decimals = prices[in.Mint].Decimals
		}
		if isLimit && out.Decimals == parser.UnknownDecimals {
			out.Decimals = prices[out.Mint].Decimals
		}
	}

	plan := &swapPlan{
		Input:  in,
		Output: out,
		Request: types.QuoteRequest{
			Kind:       types.OrderSwap,
			InputMint:  in.Mint,
			OutputMint: out.Mint,
		},
	}

	var units *big.Int
	if c.USD {
		sized, err := amount.SwapForUSD(c.Amount, prices[in.Mint].USDPrice, in.Decimals)
		if err != nil {
			return nil, err
		}
		plan.InputHuman, plan.InputUSD, units = sized.Human, c.Amount, sized.SmallestUnits
	} else {
		if units, err = amount.ToSmallestUnits(c.Amount, in.Decimals); err != nil {
			return nil, err
		}
		plan.InputHuman = c.Amount
		if p, ok := prices[in.Mint]; ok {
			plan.InputUSD = amount.TokenToUSD(c.Amount, p.USDPrice)
		}
	}

	switch {
	case isLimit:
		pct, err := amount.Parse(limitPct)
		if err != nil {
			return nil, err
		}
		usd := plan.InputUSD
		order, err := amount.LimitOrderAmounts(amount.LimitParams{
			InputUSD:       usd,
			InputPriceUSD:  prices[in.Mint].USDPrice,
			InputDecimals:  in.Decimals,
			OutputPriceUSD: prices[out.Mint].USDPrice,
			OutputDecimals: out.Decimals,
			PriceChangePct: pct,
		})
		if err != nil {
			return nil, err
		}
		info, err := amount.DescribeLimitOrder(order.MakingAmount, order.TakingAmount, in.Decimals, out.Decimals,
			prices[in.Mint].USDPrice, prices[out.Mint].USDPrice)
		if err != nil {
			return nil, err
		}
		taking, err := amount.ToUint64(order.TakingAmount)
		if err != nil {
			return nil, err
		}
		units = order.MakingAmount
		plan.InputHuman = order.InputHuman
		plan.Limit = &info
		plan.Request.Kind = types.OrderLimit
		plan.Request.TakingAmount = taking
		if limitExpires > 0 {
			plan.Request.ExpiresAt = time.Now().Add(limitExpires)
		}
	case recurOrders > 0:
		plan.Request.Kind = types.OrderRecurring
		plan.Request.NumberOfOrders = recurOrders
		plan.Request.Interval = recurEvery
	}

	if plan.Request.Amount, err = amount.ToUint64(units); err != nil {
		return nil, err
	}
	if plan.Request.Amount == 0 {
		return nil, fmt.Errorf("%w: %s %s is less than one smallest unit", types.ErrInvalidRequest, c.Amount, in.Symbol)
	}
	return plan, nil
}

func displaySwapPlan(plan *swapPlan, provider string) {
	req := plan.Request

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     %s ORDER", strings.ToUpper(string(req.Kind)))
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Provider:          %s\n", provider)
	fmt.Printf("  From:              %s %s\n", plan.InputHuman, color.YellowString(plan.Input.Symbol))
	fmt.Printf("  To:                %s\n", color.YellowString(plan.Output.Symbol))
	if plan.InputUSD.IsPositive() {
		fmt.Printf("  Value:             $%s\n", plan.InputUSD.StringFixed(2))
	}
	fmt.Printf("  Wallet:            %s\n", color.CyanString(req.Wallet.PublicKey))
	if req.Sponsor != "" {
		fmt.Printf("  Fee Payer:         %s\n", color.CyanString(req.Sponsor))
	}
	if req.Recipient != "" {
		fmt.Printf("  Recipient:         %s\n", color.CyanString(req.Recipient))
	}
	fmt.Printf("  Slippage:          %d bps\n", req.SlippageBps)
	if plan.PlatformFee != nil {
		fmt.Printf("  Platform Fee:      %d bps (%s smallest units)\n", req.PlatformFeeBps, plan.PlatformFee)
	}

	if plan.Limit != nil {
		l := plan.Limit
		fmt.Printf("  Receive:           %s %s\n", l.Taking, plan.Output.Symbol)
		fmt.Printf("  Trigger Price:     $%s per %s\n", l.TriggerPriceUSD.StringFixed(6), plan.Output.Symbol)
		fmt.Printf("  Market Price:      $%s (%s%% away)\n", l.CurrentOutputPriceUSD.StringFixed(6), l.PriceDifferencePct.StringFixed(2))
		if l.ShouldFillNow {
			color.Yellow("  The trigger price is already met; the order may fill immediately.")
		}
		if !req.ExpiresAt.IsZero() {
			fmt.Printf("  Expires:           %s\n", req.ExpiresAt.Format("2006-01-02 15:04:05"))
		}
	}
	if req.Kind == types.OrderRecurring {
		fmt.Printf("  Schedule:          %d orders every %s\n", req.NumberOfOrders, req.Interval)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
