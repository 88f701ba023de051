package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"agent-swap/pkg/execution"
)

// Exit codes for an order result. A timed out order may still settle.
const (
	exitFailed   = 1
	exitTimedOut = 2
)

// reportResult prints an execution result and exits non-zero unless it succeeded
func reportResult(res execution.Result) {
	if jsonOutput {
		printJSON(map[string]interface{}{
			"outcome": res.Outcome(),
			"result":  res,
		})
	} else {
		displayResult(res)
	}

	switch res.(type) {
	case execution.Failed:
		os.Exit(exitFailed)
	case execution.TimedOut:
		os.Exit(exitTimedOut)
	}
}

func displayResult(res execution.Result) {
	d := res.Details()

	fmt.Println("\n" + strings.Repeat("=", 70))
	switch r := res.(type) {
	case execution.Success:
		color.Green("                        ORDER FILLED")
		fmt.Println(strings.Repeat("=", 70))
		fmt.Printf("\n  Signature:       %s\n", color.CyanString(r.Signature))
		if r.InAmount != "" {
			fmt.Printf("  In Amount:       %s\n", r.InAmount)
		}
		if r.OutAmount != "" {
			fmt.Printf("  Out Amount:      %s\n", r.OutAmount)
		}
		for _, f := range r.Fills {
			fmt.Printf("  Fill:            %s  in=%s out=%s\n", color.HiBlackString(f.Signature), f.InAmount, f.OutAmount)
		}
	case execution.Failed:
		color.Red("                        ORDER FAILED")
		fmt.Println(strings.Repeat("=", 70))
		fmt.Printf("\n  Reason:          %s\n", color.RedString(r.Reason))
		fmt.Printf("  Kind:            %s\n", r.Kind)
	case execution.TimedOut:
		color.Yellow("                     ORDER OUTCOME UNKNOWN")
		fmt.Println(strings.Repeat("=", 70))
		fmt.Printf("\n  %s\n", color.YellowString(r.Guidance))
	}

	fmt.Printf("  Attempt:         %s\n", color.HiBlackString(d.AttemptID))
	if d.RequestID != "" {
		fmt.Printf("  Request ID:      %s\n", d.RequestID)
	}
	if d.Provider != "" {
		fmt.Printf("  Provider:        %s (%s)\n", d.Provider, d.Mode)
	}
	for _, sig := range d.Signatures {
		fmt.Printf("  Submitted Tx:    %s\n", color.HiBlackString(sig))
	}
	fmt.Printf("  Cycles:          %d\n", d.Cycles)
	fmt.Printf("  Elapsed:         %s\n", d.Elapsed.Round(time.Millisecond))

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")

	if _, ok := res.(execution.TimedOut); ok && d.RequestID != "" {
		fmt.Println("You can keep monitoring the order using:")
		color.Cyan("  agent-swap status %s --provider %s --watch\n", d.RequestID, d.Provider)
	}
}
