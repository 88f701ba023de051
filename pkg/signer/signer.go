// Package signer resolves the signing authority for a wallet. Callers only see
// the Signer interface; which variant backs it is decided once from config.
package signer

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"agent-swap/config"
	"agent-swap/pkg/types"
)

// Signer signs a wire-format transaction and returns the signed wire bytes
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// Sponsored combines the primary signer's value-transfer signature with a
// payer's fee signature. Both must be present or signing fails.
type Sponsored struct {
	primary Signer
	payer   Signer
}

// NewSponsored composes a primary signer with a fee payer
func NewSponsored(primary, payer Signer) *Sponsored {
	return &Sponsored{primary: primary, payer: payer}
}

func (s *Sponsored) PublicKey() solana.PublicKey { return s.primary.PublicKey() }

// Sponsor returns the fee payer address
func (s *Sponsored) Sponsor() solana.PublicKey { return s.payer.PublicKey() }

// Sign collects both signatures over the same message. Each signer works on
// the original payload; the payer's signature is then merged into the primary's result.
func (s *Sponsored) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	primarySigned, err := s.primary.Sign(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("primary signature: %w", err)
	}
	payerSigned, err := s.payer.Sign(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("payer signature: %w", err)
	}

	tx, err := DecodeTransaction(primarySigned)
	if err != nil {
		return nil, err
	}
	payerTx, err := DecodeTransaction(payerSigned)
	if err != nil {
		return nil, err
	}

	payerSig, ok := signatureFor(payerTx, s.payer.PublicKey())
	if !ok {
		return nil, fmt.Errorf("%w: fee payer %s did not sign", types.ErrIncompleteSignature, s.payer.PublicKey())
	}
	if err := placeSignature(tx, s.payer.PublicKey(), payerSig); err != nil {
		return nil, err
	}
	if _, ok := signatureFor(tx, s.primary.PublicKey()); !ok {
		return nil, fmt.Errorf("%w: primary signer %s did not sign", types.ErrIncompleteSignature, s.primary.PublicKey())
	}
	return EncodeTransaction(tx)
}

// SponsorAddress returns the fee payer address when s is sponsored, otherwise ""
func SponsorAddress(s Signer) string {
	if sp, ok := s.(interface{ Sponsor() solana.PublicKey }); ok {
		return sp.Sponsor().String()
	}
	return ""
}

// Resolve builds the signer described by cfg
func Resolve(cfg config.SignerConfig, logger *zap.Logger, opts ...DelegatedOption) (Signer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var primary Signer
	switch cfg.Mode {
	case "", "local":
		local, err := NewLocal(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("local signer: %w", err)
		}
		primary = local
	case "delegated":
		wallet := types.WalletRef{ID: cfg.Delegated.WalletID, PublicKey: cfg.Delegated.PublicKey}
		delegated, err := NewDelegated(cfg.Delegated, wallet, append([]DelegatedOption{WithLogger(logger)}, opts...)...)
		if err != nil {
			return nil, fmt.Errorf("delegated signer: %w", err)
		}
		primary = delegated
	default:
		return nil, fmt.Errorf("unknown signer mode %q", cfg.Mode)
	}

	if cfg.PayerPrivateKey == "" {
		logger.Debug("signer resolved", zap.String("mode", modeName(cfg.Mode)), zap.String("wallet", primary.PublicKey().String()))
		return primary, nil
	}

	payer, err := NewLocal(cfg.PayerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("payer signer: %w", err)
	}
	if payer.PublicKey().Equals(primary.PublicKey()) {
		return nil, fmt.Errorf("payer key must differ from the primary wallet")
	}
	logger.Debug("signer resolved",
		zap.String("mode", modeName(cfg.Mode)),
		zap.String("wallet", primary.PublicKey().String()),
		zap.String("sponsor", payer.PublicKey().String()),
	)
	return NewSponsored(primary, payer), nil
}

func modeName(mode string) string {
	if mode == "" {
		return "local"
	}
	return mode
}
