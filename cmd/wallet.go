package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agent-swap/pkg/signer"
	"agent-swap/pkg/types"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Show the signing wallet",
	Long: `Show the wallet orders are signed with and the fee payer, if one is configured.

Examples:
  agent-swap wallet
  agent-swap wallet lookup did:privy:cm3abc...`,
	Args: cobra.NoArgs,
	Run:  runWallet,
}

var walletLookupCmd = &cobra.Command{
	Use:   "lookup <user-id>",
	Short: "Find a user's delegated Solana wallet",
	Long: `Look up the first delegated embedded Solana wallet of a custodial-wallet user.
Put the returned id and address in signer.delegated.wallet_id and public_key.`,
	Args: cobra.ExactArgs(1),
	Run:  runWalletLookup,
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletLookupCmd)
}

func runWallet(cmd *cobra.Command, args []string) {
	a := mustLoadApp()
	defer a.close()

	s, err := a.signer()
	exitOnError(err)
	ref := a.wallet(s)
	sponsor := signer.SponsorAddress(s)

	if jsonOutput {
		printJSON(map[string]interface{}{"mode": signerMode(a.cfg.Signer.Mode), "wallet": ref, "sponsor": sponsor})
		return
	}
	displayWallet(signerMode(a.cfg.Signer.Mode), ref, sponsor)
}

func runWalletLookup(cmd *cobra.Command, args []string) {
	a := mustLoadApp()
	defer a.close()

	ctx, cancel := signalContext()
	defer cancel()

	stop := startSpinner("Looking up wallet...")
	ref, err := signer.ResolveWallet(ctx, a.cfg.Signer.Delegated, args[0], signer.WithLogger(a.logger))
	stop()
	exitOnError(err)

	if jsonOutput {
		printJSON(ref)
		return
	}
	displayWallet("delegated", ref, "")
	printSuccess(fmt.Sprintf("Set signer.delegated.wallet_id=%s and signer.delegated.public_key=%s to sign with this wallet.", ref.ID, ref.PublicKey))
}

func signerMode(mode string) string {
	if mode == "" {
		return "local"
	}
	return mode
}

func displayWallet(mode string, ref types.WalletRef, sponsor string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                          WALLET")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Mode:              %s\n", mode)
	fmt.Printf("  Address:           %s\n", color.CyanString(ref.PublicKey))
	if ref.ID != "" {
		fmt.Printf("  Wallet ID:         %s\n", ref.ID)
	}
	if sponsor != "" {
		fmt.Printf("  Fee Payer:         %s\n", color.CyanString(sponsor))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
