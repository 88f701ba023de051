package prediction

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agent-swap/pkg/amount"
	"agent-swap/pkg/types"
)

// OutcomeDecimals is the precision of every outcome token
const OutcomeDecimals = 6

// TokenAccountReader lists the SPL token accounts owned by a wallet
type TokenAccountReader interface {
	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
}

// Position is a non-zero outcome-token balance
type Position struct {
	Mint     string          `json:"mint"`
	Ticker   string          `json:"ticker"`
	Side     string          `json:"side"`
	Amount   uint64          `json:"amount"`
	UIAmount decimal.Decimal `json:"ui_amount"`
	Decimals int32           `json:"decimals"`
}

// Positions cross-references wallet token accounts with outcome mints
type Positions struct {
	chain  TokenAccountReader
	meta   *Client
	logger *zap.Logger
}

// NewPositions creates a position reader
func NewPositions(chain TokenAccountReader, meta *Client, logger *zap.Logger) *Positions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Positions{chain: chain, meta: meta, logger: logger}
}

// Get returns the wallet's prediction positions sorted by ticker then side
func (p *Positions) Get(ctx context.Context, wallet string) ([]Position, error) {
	owner, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid wallet address %q: %v", types.ErrInvalidRequest, wallet, err)
	}

	mints, err := p.meta.OutcomeMints(ctx)
	if err != nil {
		return nil, err
	}

	programID := solana.TokenProgramID
	res, err := p.chain.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{ProgramId: &programID},
		&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query token accounts: %w", types.ErrUpstream, err)
	}
	if res == nil {
		return nil, nil
	}

	balances := make(map[string]uint64)
	for _, ta := range res.Value {
		if ta == nil || ta.Account.Data == nil {
			continue
		}
		var acc token.Account
		if err := bin.NewBinDecoder(ta.Account.Data.GetBinary()).Decode(&acc); err != nil {
			p.logger.Debug("skipping undecodable token account", zap.String("account", ta.Pubkey.String()), zap.Error(err))
			continue
		}
		balances[acc.Mint.String()] += acc.Amount
	}

	var positions []Position
	for mint, units := range balances {
		info, ok := mints[mint]
		if !ok || units == 0 {
			continue
		}
		ui, err := amount.ToHuman(new(big.Int).SetUint64(units), OutcomeDecimals)
		if err != nil {
			return nil, err
		}
		side := strings.ToUpper(info.Side)
		if side == "" {
			side = "UNKNOWN"
		}
		positions = append(positions, Position{
			Mint:     mint,
			Ticker:   info.MarketTicker(),
			Side:     side,
			Amount:   units,
			UIAmount: ui,
			Decimals: OutcomeDecimals,
		})
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Ticker != positions[j].Ticker {
			return positions[i].Ticker < positions[j].Ticker
		}
		return positions[i].Side < positions[j].Side
	})
	return positions, nil
}
