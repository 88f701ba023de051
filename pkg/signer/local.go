package signer

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Local signs with a private key held in process memory
type Local struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewLocal parses a base58 encoded private key
func NewLocal(base58Key string) (*Local, error) {
	if base58Key == "" {
		return nil, fmt.Errorf("private key not configured")
	}
	key, err := solana.PrivateKeyFromBase58(base58Key)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewLocalFromKey(key), nil
}

// NewLocalFromKey wraps an already decoded key
func NewLocalFromKey(key solana.PrivateKey) *Local {
	return &Local{privateKey: key, publicKey: key.PublicKey()}
}

func (l *Local) PublicKey() solana.PublicKey { return l.publicKey }

// Sign fills this key's signature slot. No I/O; ctx is only checked for cancellation.
func (l *Local) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := DecodeTransaction(payload)
	if err != nil {
		return nil, err
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	sig, err := l.privateKey.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := placeSignature(tx, l.publicKey, sig); err != nil {
		return nil, err
	}
	return EncodeTransaction(tx)
}
