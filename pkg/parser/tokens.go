package parser

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"agent-swap/pkg/types"
)

// UnknownDecimals marks a token whose precision must be looked up
const UnknownDecimals int32 = -1

// Token is a Solana asset the CLI can trade
type Token struct {
	Symbol   string `json:"symbol"`
	Mint     string `json:"mint"`
	Decimals int32  `json:"decimals"`
}

// KnownTokens are resolvable by symbol
var KnownTokens = []Token{
	{Symbol: "SOL", Mint: "So11111111111111111111111111111111111111112", Decimals: 9},
	{Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	{Symbol: "USDT", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
	{Symbol: "JUP", Mint: "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", Decimals: 6},
	{Symbol: "BONK", Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5},
}

// ResolveToken maps a symbol or mint address to a Token. Mints that are not
// in KnownTokens come back with UnknownDecimals.
func ResolveToken(symbolOrMint string) (Token, error) {
	normalized := NormalizeTokenSymbol(symbolOrMint)
	for _, t := range KnownTokens {
		if t.Symbol == normalized || t.Mint == normalized {
			return t, nil
		}
	}
	if _, err := solana.PublicKeyFromBase58(normalized); err != nil {
		return Token{}, fmt.Errorf("%w: unknown token %q (use a known symbol or a mint address)", types.ErrInvalidRequest, symbolOrMint)
	}
	return Token{Symbol: shortMint(normalized), Mint: normalized, Decimals: UnknownDecimals}, nil
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + ".." + mint[len(mint)-4:]
}
