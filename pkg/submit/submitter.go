// Package submit broadcasts signed transactions and waits for confirmation.
package submit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"agent-swap/config"
	"agent-swap/pkg/clock"
	"agent-swap/pkg/signer"
	"agent-swap/pkg/types"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 500 * time.Millisecond
)

// ChainRPC is the subset of the Solana RPC client the submitter needs
type ChainRPC interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Receipt is the outcome of one broadcast
type Receipt struct {
	Signature string `json:"signature"`
	Confirmed bool   `json:"confirmed"`
	Slot      uint64 `json:"slot,omitempty"`
}

// Submitter sends fully signed transactions. It never re-signs or rebroadcasts.
type Submitter struct {
	rpc           ChainRPC
	commitment    rpc.CommitmentType
	skipPreflight bool
	timeout       time.Duration
	pollInterval  time.Duration
	clock         clock.Clock
	logger        *zap.Logger
}

// Option customizes a Submitter
type Option func(*Submitter)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *Submitter) { s.clock = c }
}

// WithLogger attaches a logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a submitter against client using the rpc.* settings
func New(client ChainRPC, cfg config.RPCConfig, opts ...Option) *Submitter {
	s := &Submitter{
		rpc:           client,
		commitment:    parseCommitment(cfg.Commitment),
		skipPreflight: cfg.SkipPreflight,
		timeout:       cfg.ConfirmTimeout,
		pollInterval:  cfg.ConfirmPoll,
		clock:         clock.Real{},
		logger:        zap.NewNop(),
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit broadcasts signed and waits up to the confirmation timeout.
// A ConfirmationTimeout error still returns the receipt: the transaction may land later.
func (s *Submitter) Submit(ctx context.Context, signed []byte) (Receipt, error) {
	tx, err := signer.DecodeTransaction(signed)
	if err != nil {
		return Receipt{}, err
	}
	if err := signer.Complete(tx); err != nil {
		return Receipt{}, err
	}

	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       s.skipPreflight,
		PreflightCommitment: s.commitment,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", types.ErrSubmission, err)
	}
	if sig == (solana.Signature{}) {
		sig = tx.Signatures[0]
	}

	receipt := Receipt{Signature: sig.String()}
	log := s.logger.With(zap.String("signature", receipt.Signature))
	log.Info("transaction broadcast")

	deadline := s.clock.Now().Add(s.timeout)
	for {
		res, err := s.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			log.Warn("signature status check failed", zap.Error(err))
		} else if status := firstStatus(res); status != nil {
			if status.Err != nil {
				return receipt, fmt.Errorf("%w: transaction %s failed on chain: %v", types.ErrSubmission, receipt.Signature, status.Err)
			}
			if reached(status.ConfirmationStatus, s.commitment) {
				receipt.Confirmed = true
				receipt.Slot = status.Slot
				log.Info("transaction confirmed", zap.Uint64("slot", status.Slot), zap.String("status", string(status.ConfirmationStatus)))
				return receipt, nil
			}
		}

		if !s.clock.Now().Before(deadline) {
			break
		}
		if err := s.clock.Sleep(ctx, s.pollInterval); err != nil {
			return receipt, fmt.Errorf("%w: %s: %v", types.ErrConfirmationTimeout, receipt.Signature, err)
		}
	}

	log.Warn("confirmation not observed in time", zap.Duration("timeout", s.timeout))
	return receipt, fmt.Errorf("%w: %s not confirmed within %s", types.ErrConfirmationTimeout, receipt.Signature, s.timeout)
}

func firstStatus(res *rpc.GetSignatureStatusesResult) *rpc.SignatureStatusesResult {
	if res == nil || len(res.Value) == 0 {
		return nil
	}
	return res.Value[0]
}

func rank(status rpc.ConfirmationStatusType) int {
	switch status {
	case rpc.ConfirmationStatusProcessed:
		return 1
	case rpc.ConfirmationStatusConfirmed:
		return 2
	case rpc.ConfirmationStatusFinalized:
		return 3
	default:
		return 0
	}
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	got := rank(status)
	switch want {
	case rpc.CommitmentProcessed:
		return got >= 1
	case rpc.CommitmentFinalized:
		return got >= 3
	default:
		return got >= 2
	}
}

// parseCommitment returns the commitment level from config
func parseCommitment(c string) rpc.CommitmentType {
	switch strings.ToLower(c) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}
