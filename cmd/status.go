package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agent-swap/pkg/aggregator"
	"agent-swap/pkg/types"
)

var (
	statusProvider string
	watchStatus    bool
	watchInterval  int
)

var statusCmd = &cobra.Command{
	Use:   "status <request-id>",
	Short: "Check the status of an async order",
	Long: `Check the execution status of an order by the request id the aggregator returned.
For 1Click swaps the request id is the deposit address.

Watching stops once the order reaches a terminal state (closed, failed or expired).

Examples:
  agent-swap status 7Xq...3Fa
  agent-swap status 7Xq...3Fa --provider oneclick --watch
  agent-swap status 7Xq...3Fa --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusProvider, "provider", "", "Aggregator that issued the order (default from config)")
	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the order is final")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	requestID := args[0]

	a := mustLoadApp()
	defer a.close()

	provider, err := a.provider(statusProvider)
	exitOnError(err)

	ctx, cancel := signalContext()
	defer cancel()

	if watchStatus {
		watchOrderStatus(ctx, provider, requestID)
	} else {
		checkOrderStatus(ctx, provider, requestID)
	}
}

func checkOrderStatus(ctx context.Context, provider aggregator.Provider, requestID string) {
	stop := startSpinner("Checking order status...")
	status, err := provider.GetOrderStatus(ctx, requestID)
	stop()
	exitOnError(err)

	if jsonOutput {
		printJSON(status)
	} else {
		displayStatus(status, provider.Name(), requestID)
	}
}

func watchOrderStatus(ctx context.Context, provider aggregator.Provider, requestID string) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}
	if watchInterval <= 0 {
		watchInterval = 5
	}

	fmt.Printf("\nWatching order status (Request ID: %s)\n", color.CyanString(requestID))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	for {
		if checkAndDisplayStatus(ctx, provider, requestID) {
			return
		}
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped watching.")
			return
		case <-ticker.C:
		}
	}
}

// checkAndDisplayStatus reports whether the order is final
func checkAndDisplayStatus(ctx context.Context, provider aggregator.Provider, requestID string) bool {
	status, err := provider.GetOrderStatus(ctx, requestID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayStatus(status, provider.Name(), requestID)
	return status.State.Terminal()
}

func displayStatus(status *types.OrderStatus, provider, requestID string) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        ORDER STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Provider:        %s\n", provider)
	fmt.Printf("  Request ID:      %s\n", color.CyanString(requestID))
	fmt.Printf("  Status:          %s\n", getColoredStatus(status.State))
	if status.Raw != "" && !strings.EqualFold(status.Raw, string(status.State)) {
		fmt.Printf("  Provider Status: %s\n", status.Raw)
	}
	fmt.Printf("  Checked:         %s\n", time.Now().Format("2006-01-02 15:04:05"))

	for _, fill := range status.Fills {
		if fill.Signature != "" {
			fmt.Printf("  Fill Tx:         %s\n", color.HiBlackString(fill.Signature))
		}
		if fill.InAmount != "" || fill.OutAmount != "" {
			fmt.Printf("                   in %s / out %s\n", fill.InAmount, fill.OutAmount)
		}
	}

	if status.InAmount != "" {
		fmt.Printf("  Amount In:       %s\n", status.InAmount)
	}
	if status.OutAmount != "" {
		fmt.Printf("  Amount Out:      %s\n", status.OutAmount)
	}
	if len(status.NextTransaction) > 0 {
		color.Yellow("  The order is waiting on another signed transaction.")
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(state types.OrderState) string {
	label := strings.ToUpper(string(state))

	switch state {
	case types.StateClosed:
		return color.GreenString(label)
	case types.StatePending:
		return color.YellowString(label)
	case types.StateFailed:
		return color.RedString(label)
	case types.StateExpired:
		return color.MagentaString(label)
	default:
		return label
	}
}
