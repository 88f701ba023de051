package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"agent-swap/config"
	"agent-swap/pkg/aggregator"
	"agent-swap/pkg/execution"
	"agent-swap/pkg/logging"
	"agent-swap/pkg/prediction"
	"agent-swap/pkg/pricing"
	"agent-swap/pkg/safety"
	"agent-swap/pkg/signer"
	"agent-swap/pkg/submit"
	"agent-swap/pkg/types"
)

// app holds what every command builds from the loaded configuration
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	rpc    *rpc.Client
}

// mustLoadApp loads configuration and the logger, exiting on failure
func mustLoadApp() *app {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		rpc:    rpc.New(cfg.RPC.URL),
	}
}

func (a *app) close() {
	_ = a.logger.Sync()
}

func (a *app) signer() (signer.Signer, error) {
	return signer.Resolve(a.cfg.Signer, a.logger)
}

// wallet describes the signing wallet for a quote request
func (a *app) wallet(s signer.Signer) types.WalletRef {
	ref := types.WalletRef{PublicKey: s.PublicKey().String()}
	if a.cfg.Signer.Mode == "delegated" {
		ref.ID = a.cfg.Signer.Delegated.WalletID
	}
	return ref
}

// provider builds the named aggregator, or the configured one when name is empty
func (a *app) provider(name string) (aggregator.Provider, error) {
	cfg := a.cfg.Aggregator
	if name != "" {
		cfg.Provider = name
	}
	return aggregator.New(cfg, a.rpc, a.logger)
}

func (a *app) engine(p aggregator.Provider, s signer.Signer) *execution.Engine {
	sub := submit.New(a.rpc, a.cfg.RPC, submit.WithLogger(a.logger))
	return execution.New(p, s, sub, a.cfg.Execution, execution.WithLogger(a.logger))
}

func (a *app) pricer() *pricing.Pricer {
	return pricing.NewPricer(a.cfg.Aggregator.Jupiter, a.cfg.Aggregator.HTTPTimeout, a.logger)
}

func (a *app) metadata() *prediction.Client {
	return prediction.NewClient(a.cfg.Aggregator.DFlow.MetadataURL, a.cfg.Aggregator.HTTPTimeout, a.logger)
}

func (a *app) discovery(filter safety.Filter) *prediction.Service {
	meta := a.metadata()
	series := safety.NewSeriesCache(meta.VerifiedSeries, a.cfg.Safety.SeriesTTL, a.cfg.Safety.VerifiedSeries)
	return prediction.NewService(meta, series, filter, a.logger, prediction.WithMinRulesLength(a.cfg.Safety.MinRulesLength))
}

// signalContext is cancelled on Ctrl+C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startSpinner shows progress unless output is JSON. The returned func stops it.
func startSpinner(suffix string) func() {
	if jsonOutput {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	if jsonOutput {
		printJSON(map[string]string{"error": err.Error(), "kind": types.KindOf(err)})
	} else {
		printError(err)
	}
	os.Exit(1)
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", prompt)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
