package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "agent-swap",
	Short: "Quote, sign and execute Solana swaps and prediction-market trades",
	Long: `agent-swap executes token swaps, limit and recurring orders and prediction-market
trades on Solana through an aggregator (DFlow, Jupiter or 1Click). Each order is
quoted, signed with a local or delegated wallet, submitted and, for async orders,
polled until it settles or the wait budget runs out.

Examples:
  agent-swap swap 1 SOL to USDC
  agent-swap swap '$25' of SOL to USDC --provider jupiter
  agent-swap swap 100 USDC to SOL --limit-pct 5 --expires 24h
  agent-swap markets --search "fed rates"
  agent-swap predict buy KXFEDDECISION-25DEC-T4.00 YES 10
  agent-swap status <request-id> --watch`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .agent-swap.yaml in $HOME or the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
