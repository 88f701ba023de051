package cmd

import (
	"fmt"
	"math/big"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agent-swap/pkg/amount"
	"agent-swap/pkg/parser"
	"agent-swap/pkg/types"
)

var (
	convertDecimals int32
	convertExact    bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert between human amounts, smallest units and USD",
	Long: `Exact-decimal amount calculator.

Examples:
  agent-swap convert units 1.5 SOL
  agent-swap convert units 0.1234567 --decimals 6 --exact
  agent-swap convert human 1500000000 SOL
  agent-swap convert usd 25 SOL
  agent-swap convert fee 1000000 30
  agent-swap convert rate SOL USDC`,
}

var convertUnitsCmd = &cobra.Command{
	Use:   "units <amount> [token]",
	Short: "Human amount to smallest units",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		human, err := amount.Parse(args[0])
		exitOnError(err)
		decimals := tokenDecimals(args[1:])

		convert := amount.ToSmallestUnits
		if convertExact {
			convert = amount.ToSmallestUnitsExact
		}
		units, err := convert(human, decimals)
		exitOnError(err)
		printConversion(map[string]interface{}{"amount": human, "decimals": decimals, "units": units.String()},
			fmt.Sprintf("%s = %s smallest units (%d decimals)", human, color.GreenString(units.String()), decimals))
	},
}

var convertHumanCmd = &cobra.Command{
	Use:   "human <units> [token]",
	Short: "Smallest units to human amount",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		units, err := amount.ParseUnits(args[0])
		exitOnError(err)
		decimals := tokenDecimals(args[1:])

		human, err := amount.ToHuman(units, decimals)
		exitOnError(err)
		printConversion(map[string]interface{}{"units": units.String(), "decimals": decimals, "amount": human},
			fmt.Sprintf("%s smallest units = %s (%d decimals)", units, color.GreenString(human.String()), decimals))
	},
}

var convertUSDCmd = &cobra.Command{
	Use:   "usd <usd-amount> <token>",
	Short: "Size a USD amount of a token at the current price",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		usd, err := amount.Parse(args[0])
		exitOnError(err)
		token, err := parser.ResolveToken(args[1])
		exitOnError(err)

		a := mustLoadApp()
		defer a.close()
		ctx, cancel := signalContext()
		defer cancel()

		stop := startSpinner("Fetching price...")
		price, err := a.pricer().Get(ctx, token.Mint)
		stop()
		exitOnError(err)
		if token.Decimals == parser.UnknownDecimals {
			token.Decimals = price.Decimals
		}

		swap, err := amount.SwapForUSD(usd, price.USDPrice, token.Decimals)
		exitOnError(err)
		printConversion(map[string]interface{}{
			"usd":       usd,
			"token":     token,
			"price_usd": price.USDPrice,
			"amount":    swap.Human,
			"units":     swap.SmallestUnits.String(),
		}, fmt.Sprintf("$%s = %s %s (%s smallest units) at $%s",
			usd, color.GreenString(swap.Human.String()), token.Symbol, swap.SmallestUnits, price.USDPrice))
	},
}

var convertFeeCmd = &cobra.Command{
	Use:   "fee <units> <bps>",
	Short: "Platform fee in smallest units",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		units, err := amount.ParseUnits(args[0])
		exitOnError(err)
		var bps int
		if _, err := fmt.Sscanf(args[1], "%d", &bps); err != nil {
			exitOnError(fmt.Errorf("%w: invalid bps %q", types.ErrInvalidParameter, args[1]))
		}

		fee, err := amount.FeeAmount(units, bps)
		exitOnError(err)
		net := new(big.Int).Sub(units, fee)
		printConversion(map[string]interface{}{"units": units.String(), "bps": bps, "fee": fee.String(), "net": net.String()},
			fmt.Sprintf("%d bps of %s = %s (net %s)", bps, units, color.GreenString(fee.String()), net))
	},
}

var convertRateCmd = &cobra.Command{
	Use:   "rate <input-token> <output-token>",
	Short: "Output tokens one input token buys at current USD prices",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		in, err := parser.ResolveToken(args[0])
		exitOnError(err)
		out, err := parser.ResolveToken(args[1])
		exitOnError(err)

		a := mustLoadApp()
		defer a.close()
		ctx, cancel := signalContext()
		defer cancel()

		stop := startSpinner("Fetching prices...")
		rate, err := a.pricer().PairPrice(ctx, in.Mint, out.Mint)
		stop()
		exitOnError(err)
		printConversion(map[string]interface{}{"input": in, "output": out, "rate": rate},
			fmt.Sprintf("1 %s = %s %s", in.Symbol, color.GreenString(rate.Round(9).String()), out.Symbol))
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.AddCommand(convertUnitsCmd, convertHumanCmd, convertUSDCmd, convertFeeCmd, convertRateCmd)

	for _, c := range []*cobra.Command{convertUnitsCmd, convertHumanCmd} {
		c.Flags().Int32Var(&convertDecimals, "decimals", parser.UnknownDecimals, "Token decimals (instead of a token symbol)")
	}
	convertUnitsCmd.Flags().BoolVar(&convertExact, "exact", false, "Fail instead of truncating excess precision")
}

// tokenDecimals takes precision from --decimals or a known token symbol
func tokenDecimals(args []string) int32 {
	if convertDecimals != parser.UnknownDecimals {
		return convertDecimals
	}
	if len(args) == 0 {
		exitOnError(fmt.Errorf("%w: pass a token symbol or --decimals", types.ErrInvalidRequest))
	}
	token, err := parser.ResolveToken(args[0])
	exitOnError(err)
	if token.Decimals == parser.UnknownDecimals {
		exitOnError(fmt.Errorf("%w: decimals of %s are not known; pass --decimals", types.ErrInvalidRequest, token.Symbol))
	}
	return token.Decimals
}

func printConversion(data map[string]interface{}, line string) {
	if jsonOutput {
		printJSON(data)
		return
	}
	fmt.Printf("\n  %s\n\n", line)
}
