package cmd

import (
	"fmt"
	"sort"
	"strings"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agent-swap/pkg/aggregator"
	"agent-swap/pkg/parser"
)

var (
	filterChain  string
	filterSymbol string
	crossChain   bool
)

var tokensCmd = &cobra.Command{
	Use:     "list-tokens",
	Aliases: []string{"tokens", "ls"},
	Short:   "List tradable tokens",
	Long: `List the Solana tokens the swap command resolves by symbol.

With --cross-chain, list every asset the 1Click API can deliver, filterable by
blockchain or symbol. Any other Solana token can be swapped by its mint address.

Examples:
  agent-swap list-tokens
  agent-swap list-tokens --cross-chain --chain near
  agent-swap list-tokens --cross-chain --symbol USDC`,
	Run: runListTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().BoolVar(&crossChain, "cross-chain", false, "List 1Click cross-chain assets")
	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by blockchain (with --cross-chain)")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) {
	if !crossChain {
		listKnownTokens()
		return
	}

	a := mustLoadApp()
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	stop := startSpinner("Fetching supported tokens...")
	tokens, err := aggregator.NewOneClick(a.cfg.Aggregator.OneClick, a.rpc, a.logger).SupportedTokens(ctx)
	stop()
	exitOnError(err)

	filtered := tokens
	if filterChain != "" {
		var temp []oneclick.TokenResponse
		for _, token := range filtered {
			if strings.EqualFold(token.GetBlockchain(), filterChain) {
				temp = append(temp, token)
			}
		}
		filtered = temp
	}

	if filterSymbol != "" {
		var temp []oneclick.TokenResponse
		for _, token := range filtered {
			if strings.Contains(strings.ToUpper(token.GetSymbol()), strings.ToUpper(filterSymbol)) {
				temp = append(temp, token)
			}
		}
		filtered = temp
	}

	if jsonOutput {
		printJSON(filtered)
	} else {
		displayTokens(filtered)
	}
}

func listKnownTokens() {
	var tokens []parser.Token
	for _, t := range parser.KnownTokens {
		if filterSymbol == "" || strings.Contains(t.Symbol, strings.ToUpper(filterSymbol)) {
			tokens = append(tokens, t)
		}
	}

	if jsonOutput {
		printJSON(tokens)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("                            SOLANA TOKENS")
	fmt.Println(strings.Repeat("=", 80) + "\n")
	for _, t := range tokens {
		fmt.Printf("  %-10s  %2d decimals  %s\n", color.YellowString(t.Symbol), t.Decimals, color.HiBlackString(t.Mint))
	}
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Printf("\nTotal: %d tokens. Other tokens can be swapped by mint address.\n\n", len(tokens))
}

func displayTokens(tokens []oneclick.TokenResponse) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                         CROSS-CHAIN TOKENS")
	fmt.Println(strings.Repeat("=", 90))

	tokensByChain := make(map[string][]oneclick.TokenResponse)
	for _, token := range tokens {
		chain := token.GetBlockchain()
		tokensByChain[chain] = append(tokensByChain[chain], token)
	}

	chains := make([]string, 0, len(tokensByChain))
	for chain := range tokensByChain {
		chains = append(chains, chain)
	}
	sort.Strings(chains)

	for _, chain := range chains {
		color.Cyan("\n%s", strings.ToUpper(chain))
		fmt.Println(strings.Repeat("-", 90))

		for _, token := range tokensByChain[chain] {
			address := token.GetContractAddress()
			if len(address) > 40 {
				address = address[:37] + "..."
			}

			fmt.Printf("  %-10s  %2.0f decimals  %s\n",
				color.YellowString(token.GetSymbol()),
				token.GetDecimals(),
				color.HiBlackString(address))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d blockchains (swap with --to-chain <chain>)\n\n", len(tokens), len(chains))
}
