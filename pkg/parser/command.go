package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"agent-swap/pkg/types"
)

// SwapCommand is a parsed "swap <amount> <token> to <token>" instruction
type SwapCommand struct {
	Amount decimal.Decimal
	USD    bool // Amount is a USD value of the input token
	Input  string
	Output string
}

var swapPattern = regexp.MustCompile(`(?i)^(\$)?(\d+(?:\.\d+)?)\s+(?:OF\s+)?([A-Za-z0-9]+)\s+TO\s+([A-Za-z0-9]+)$`)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 1 SOL to USDC"
//   - "1.5 JUP to SOL"
//   - "$25 of SOL to USDC"
//   - "swap 100 EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v to SOL"
func ParseSwapCommand(command string) (*SwapCommand, error) {
	command = strings.Join(strings.Fields(command), " ")
	if len(command) >= 5 && strings.EqualFold(command[:5], "swap ") {
		command = command[5:]
	}

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("%w: invalid swap command format. Expected: 'swap <amount> <token> to <token>' (e.g., 'swap 1 SOL to USDC')", types.ErrInvalidRequest)
	}

	amount, err := decimal.NewFromString(matches[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", types.ErrInvalidRequest, matches[2])
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidRequest)
	}

	cmd := &SwapCommand{
		Amount: amount,
		USD:    matches[1] == "$",
		Input:  matches[3],
		Output: matches[4],
	}
	if err := ValidateSwapCommand(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// ValidateSwapCommand validates that a swap command has all required fields
func ValidateSwapCommand(cmd *SwapCommand) error {
	if !cmd.Amount.IsPositive() {
		return fmt.Errorf("%w: amount is required", types.ErrInvalidRequest)
	}
	if cmd.Input == "" {
		return fmt.Errorf("%w: source token is required", types.ErrInvalidRequest)
	}
	if cmd.Output == "" {
		return fmt.Errorf("%w: destination token is required", types.ErrInvalidRequest)
	}
	if strings.EqualFold(NormalizeTokenSymbol(cmd.Input), NormalizeTokenSymbol(cmd.Output)) {
		return fmt.Errorf("%w: cannot swap %s to itself", types.ErrInvalidRequest, cmd.Input)
	}
	return nil
}

// NormalizeTokenSymbol upper-cases short symbols and folds common aliases.
// Anything that looks like a mint address is returned unchanged.
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if looksLikeMint(symbol) {
		return symbol
	}
	symbol = strings.ToUpper(symbol)

	aliases := map[string]string{
		"WSOL": "SOL",
		"USD":  "USDC",
	}
	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}
	return symbol
}

func looksLikeMint(s string) bool {
	return len(s) >= 32 && len(s) <= 44
}
