package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"agent-swap/config"
	"agent-swap/pkg/httpapi"
	"agent-swap/pkg/types"
)

const (
	oneClickProvider = "oneclick"
	// slippageTolerance in bps sent with every 1Click quote (1%)
	oneClickSlippageBps = 100
	oneClickQuoteTTL    = 24 * time.Hour
	solanaChain         = "sol"
)

var wrappedSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// ChainReader is the read side of the chain RPC needed to build deposit transactions
type ChainReader interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// OneClick routes cross-chain swaps through the 1Click API. The order
// transaction is a deposit to the quote's deposit address, and the deposit
// address doubles as the async request id.
type OneClick struct {
	client *oneclick.APIClient
	token  string
	chain  ChainReader
	now    func() time.Time
	logger *zap.Logger
}

// NewOneClick creates a 1Click adapter
func NewOneClick(cfg config.OneClickConfig, chain ChainReader, logger *zap.Logger) *OneClick {
	sdkCfg := oneclick.NewConfiguration()
	if cfg.BaseURL != "" {
		sdkCfg.Servers = oneclick.ServerConfigurations{{URL: strings.TrimRight(cfg.BaseURL, "/")}}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OneClick{
		client: oneclick.NewAPIClient(sdkCfg),
		token:  cfg.JWTToken,
		chain:  chain,
		now:    time.Now,
		logger: logger,
	}
}

func (o *OneClick) Name() string { return oneClickProvider }

func (o *OneClick) authContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oneclick.ContextAccessToken, o.token)
}

// GetOrder quotes the swap and builds the unsigned deposit transaction
func (o *OneClick) GetOrder(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error) {
	if err := validateOneClick(req); err != nil {
		return nil, err
	}
	mint, err := solana.PublicKeyFromBase58(req.InputMint)
	if err != nil {
		return nil, fmt.Errorf("%w: input mint %q: %v", types.ErrInvalidRequest, req.InputMint, err)
	}
	owner, err := solana.PublicKeyFromBase58(req.Wallet.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet %q: %v", types.ErrInvalidRequest, req.Wallet.PublicKey, err)
	}
	payer := owner
	if req.Sponsor != "" {
		if payer, err = solana.PublicKeyFromBase58(req.Sponsor); err != nil {
			return nil, fmt.Errorf("%w: sponsor %q: %v", types.ErrInvalidRequest, req.Sponsor, err)
		}
	}

	tokens, err := o.SupportedTokens(ctx)
	if err != nil {
		return nil, err
	}
	origin, err := findOriginToken(tokens, mint)
	if err != nil {
		return nil, err
	}
	destAsset, err := findDestinationAsset(tokens, req.OutputMint)
	if err != nil {
		return nil, err
	}

	deadline := o.now().Add(oneClickQuoteTTL)
	quoteReq := oneclick.NewQuoteRequest(
		false,               // dry - false to get a real deposit address
		"EXACT_INPUT",       // swapType
		oneClickSlippageBps, // slippageTolerance
		origin.GetAssetId(), // originAsset
		"ORIGIN_CHAIN",      // depositType
		destAsset,           // destinationAsset
		strconv.FormatUint(req.Amount, 10),
		req.Wallet.PublicKey, // refundTo
		"ORIGIN_CHAIN",       // refundType
		req.Recipient,        // recipient
		"DESTINATION_CHAIN",  // recipientType
		deadline,
	)

	resp, httpResp, err := o.client.OneClickAPI.GetQuote(o.authContext(ctx)).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		return nil, oneClickError(httpResp, err)
	}
	defer httpResp.Body.Close()
	if resp == nil {
		return nil, &types.UpstreamError{Provider: oneClickProvider, StatusCode: httpResp.StatusCode, Message: "empty quote response"}
	}

	quote := resp.GetQuote()
	depositAddress := quote.GetDepositAddress()
	if depositAddress == "" {
		return nil, &types.UpstreamError{Provider: oneClickProvider, StatusCode: httpResp.StatusCode, Message: "quote has no deposit address"}
	}
	deposit, err := solana.PublicKeyFromBase58(depositAddress)
	if err != nil {
		return nil, &types.UpstreamError{Provider: oneClickProvider, Message: fmt.Sprintf("deposit address %q is not a Solana address", depositAddress)}
	}

	tx, err := buildDepositTransaction(ctx, o.chain, depositParams{
		Owner:   owner,
		Payer:   payer,
		Deposit: deposit,
		Mint:    mint,
		Amount:  req.Amount,
	})
	if err != nil {
		return nil, err
	}

	o.logger.Info("1click quote",
		zap.String("request_id", depositAddress),
		zap.String("origin", origin.GetAssetId()),
		zap.String("destination", destAsset),
		zap.String("amount_out", quote.GetAmountOutFormatted()),
	)

	return &types.QuoteResponse{
		Provider:    oneClickProvider,
		Mode:        types.ModeAsync,
		Transaction: tx,
		RequestID:   depositAddress,
		ExpiresAt:   deadline,
		InAmount:    quote.GetAmountInFormatted(),
		OutAmount:   quote.GetAmountOutFormatted(),
	}, nil
}

func validateOneClick(req types.QuoteRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Kind != types.OrderSwap && req.Kind != "" {
		return fmt.Errorf("%w: oneclick does not support %s orders", types.ErrInvalidRequest, req.Kind)
	}
	if req.Recipient == "" {
		return fmt.Errorf("%w: cross-chain swaps require a destination recipient address", types.ErrInvalidRequest)
	}
	return nil
}

// SupportedTokens lists every asset the 1Click API can route
func (o *OneClick) SupportedTokens(ctx context.Context) ([]oneclick.TokenResponse, error) {
	tokens, httpResp, err := o.client.OneClickAPI.GetTokens(o.authContext(ctx)).Execute()
	if err != nil {
		return nil, oneClickError(httpResp, err)
	}
	defer httpResp.Body.Close()
	return tokens, nil
}

func findOriginToken(tokens []oneclick.TokenResponse, mint solana.PublicKey) (*oneclick.TokenResponse, error) {
	for i := range tokens {
		t := tokens[i]
		if !strings.EqualFold(t.GetBlockchain(), solanaChain) {
			continue
		}
		if t.GetContractAddress() == mint.String() {
			return &t, nil
		}
		if mint.Equals(wrappedSOLMint) && strings.EqualFold(t.GetSymbol(), "SOL") {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: input mint %s is not supported for cross-chain swaps", types.ErrInvalidRequest, mint)
}

// findDestinationAsset accepts a 1Click asset id, "SYMBOL" or "SYMBOL@chain"
func findDestinationAsset(tokens []oneclick.TokenResponse, output string) (string, error) {
	if strings.Contains(output, ":") {
		return output, nil
	}
	symbol, chain, hasChain := strings.Cut(output, "@")
	symbol = strings.ToUpper(symbol)

	for _, t := range tokens {
		if strings.ToUpper(t.GetSymbol()) != symbol {
			continue
		}
		if hasChain && !strings.EqualFold(t.GetBlockchain(), chain) {
			continue
		}
		return t.GetAssetId(), nil
	}
	if hasChain {
		return "", fmt.Errorf("%w: token '%s' not found on chain '%s'", types.ErrInvalidRequest, symbol, chain)
	}
	return "", fmt.Errorf("%w: token '%s' not found", types.ErrInvalidRequest, symbol)
}

// GetOrderStatus polls the execution status of a deposit address
func (o *OneClick) GetOrderStatus(ctx context.Context, requestID string) (*types.OrderStatus, error) {
	if err := requireRequestID(requestID); err != nil {
		return nil, err
	}
	resp, httpResp, err := o.client.OneClickAPI.GetExecutionStatus(o.authContext(ctx)).DepositAddress(requestID).Execute()
	if err != nil {
		return nil, oneClickError(httpResp, err)
	}
	defer httpResp.Body.Close()

	raw := resp.GetStatus()
	status := &types.OrderStatus{State: oneClickState(raw), Raw: raw}

	details := resp.GetSwapDetails()
	status.InAmount = details.GetAmountInFormatted()
	status.OutAmount = details.GetAmountOutFormatted()
	for _, h := range details.GetDestinationChainTxHashes() {
		if hash := h.GetHash(); hash != "" {
			status.Fills = append(status.Fills, types.Fill{
				Signature: hash,
				InAmount:  status.InAmount,
				OutAmount: status.OutAmount,
			})
		}
	}
	return status, nil
}

// NotifyDeposit tells 1Click which transaction funded the deposit address
func (o *OneClick) NotifyDeposit(ctx context.Context, requestID, signature string) error {
	req := oneclick.NewSubmitDepositTxRequest(requestID, signature)
	_, httpResp, err := o.client.OneClickAPI.SubmitDepositTx(o.authContext(ctx)).SubmitDepositTxRequest(*req).Execute()
	if err != nil {
		return oneClickError(httpResp, err)
	}
	defer httpResp.Body.Close()
	return nil
}

func oneClickState(status string) types.OrderState {
	switch strings.ToUpper(status) {
	case "SUCCESS", "COMPLETED":
		return types.StateClosed
	case "FAILED", "REFUNDED":
		return types.StateFailed
	default:
		// PENDING_DEPOSIT, KNOWN_DEPOSIT_TX, PROCESSING, INCOMPLETE_DEPOSIT
		return types.StatePending
	}
}

func oneClickError(httpResp *http.Response, err error) error {
	if httpResp == nil {
		return fmt.Errorf("%w: %s request failed: %w", types.ErrUpstream, oneClickProvider, err)
	}
	defer httpResp.Body.Close()
	body, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil || len(body) == 0 {
		return &types.UpstreamError{Provider: oneClickProvider, StatusCode: httpResp.StatusCode, Message: err.Error()}
	}
	return &types.UpstreamError{Provider: oneClickProvider, StatusCode: httpResp.StatusCode, Message: httpapi.ErrorMessage(body)}
}

type depositParams struct {
	Owner   solana.PublicKey
	Payer   solana.PublicKey
	Deposit solana.PublicKey
	Mint    solana.PublicKey
	Amount  uint64
}

// buildDepositTransaction returns an unsigned transfer of Amount to the deposit address.
// Wrapped SOL is sent as a native transfer.
func buildDepositTransaction(ctx context.Context, chain ChainReader, p depositParams) ([]byte, error) {
	var instructions []solana.Instruction

	if p.Mint.Equals(wrappedSOLMint) {
		instructions = append(instructions, system.NewTransferInstruction(p.Amount, p.Owner, p.Deposit).Build())
	} else {
		source, _, err := solana.FindAssociatedTokenAddress(p.Owner, p.Mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive source token account: %w", err)
		}
		dest, _, err := solana.FindAssociatedTokenAddress(p.Deposit, p.Mint)
		if err != nil {
			return nil, fmt.Errorf("failed to derive deposit token account: %w", err)
		}
		exists, err := accountExists(ctx, chain, dest)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to check deposit token account: %w", types.ErrUpstream, err)
		}
		if !exists {
			instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(p.Payer, p.Deposit, p.Mint).Build())
		}
		instructions = append(instructions, token.NewTransferInstruction(
			p.Amount,
			source,
			dest,
			p.Owner,
			[]solana.PublicKey{},
		).Build())
	}

	recent, err := chain.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get recent blockhash: %w", types.ErrUpstream, err)
	}

	tx, err := solana.NewTransaction(instructions, recent.Value.Blockhash, solana.TransactionPayer(p.Payer))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode deposit transaction: %w", err)
	}
	return out, nil
}

func accountExists(ctx context.Context, chain ChainReader, account solana.PublicKey) (bool, error) {
	info, err := chain.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return info != nil && info.Value != nil, nil
}
