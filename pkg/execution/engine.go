// Package execution runs one order attempt from quote to a single terminal result.
package execution

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agent-swap/config"
	"agent-swap/pkg/aggregator"
	"agent-swap/pkg/clock"
	"agent-swap/pkg/signer"
	"agent-swap/pkg/submit"
	"agent-swap/pkg/types"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 90 * time.Second
)

// Submitter broadcasts a fully signed transaction
type Submitter interface {
	Submit(ctx context.Context, signed []byte) (submit.Receipt, error)
}

// Engine holds the collaborators shared by every attempt. Each Execute call
// owns its own attempt state, so one Engine may serve concurrent orders.
type Engine struct {
	provider     aggregator.Provider
	signer       signer.Signer
	submitter    Submitter
	clock        clock.Clock
	pollInterval time.Duration
	maxWait      time.Duration
	logger       *zap.Logger
	newID        func() string
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger attaches a logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDGenerator replaces the attempt id generator
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// New creates an Engine
func New(provider aggregator.Provider, s signer.Signer, sub Submitter, cfg config.ExecutionConfig, opts ...Option) *Engine {
	e := &Engine{
		provider:     provider,
		signer:       s,
		submitter:    sub,
		clock:        clock.Real{},
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
		logger:       zap.NewNop(),
		newID:        func() string { return uuid.NewString() },
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.maxWait <= 0 {
		e.maxWait = DefaultMaxWait
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute quotes, signs, submits and, for async orders, polls until a terminal
// status or the wall-clock budget runs out. It always returns exactly one Result.
func (e *Engine) Execute(ctx context.Context, req types.QuoteRequest) Result {
	a := &attempt{
		engine:    e,
		state:     StateNew,
		started:   e.clock.Now(),
		submitted: make(map[[sha256.Size]byte]struct{}),
	}
	a.summary.AttemptID = e.newID()
	a.summary.Provider = e.provider.Name()
	a.log = e.logger.With(zap.String("attempt_id", a.summary.AttemptID), zap.String("provider", a.summary.Provider))
	return a.run(ctx, req)
}

// attempt is the mutable state of one execution, owned by one goroutine
type attempt struct {
	engine    *Engine
	state     State
	started   time.Time
	payload   []byte
	submitted map[[sha256.Size]byte]struct{}
	summary   Summary
	log       *zap.Logger
}

func (a *attempt) run(ctx context.Context, req types.QuoteRequest) Result {
	if err := req.Validate(); err != nil {
		return a.fail(err)
	}
	if pk := a.engine.signer.PublicKey().String(); req.Wallet.PublicKey != pk {
		return a.fail(fmt.Errorf("%w: request wallet %s does not match signer %s", types.ErrInvalidRequest, req.Wallet.PublicKey, pk))
	}

	quote, err := a.engine.provider.GetOrder(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return a.timeout("the quote request was cancelled before any transaction was signed")
		}
		return a.fail(fmt.Errorf("quote: %w", err))
	}
	if err := quote.Validate(); err != nil {
		return a.fail(err)
	}
	if !quote.ExpiresAt.IsZero() && !quote.ExpiresAt.After(a.engine.clock.Now()) && req.Kind != types.OrderLimit {
		return a.fail(fmt.Errorf("%w: quote expired at %s", types.ErrUpstream, quote.ExpiresAt.Format(time.RFC3339)))
	}

	a.summary.RequestID = quote.RequestID
	a.summary.Mode = quote.Mode
	a.payload = quote.Transaction
	a.log = a.log.With(zap.String("request_id", quote.RequestID), zap.String("mode", string(quote.Mode)))
	if err := a.advance(EventQuoted); err != nil {
		return a.fail(err)
	}
	a.log.Info("order quoted", zap.String("in_amount", quote.InAmount), zap.String("out_amount", quote.OutAmount))

	if quote.Mode == types.ModeAsync {
		return a.runAsync(ctx, quote)
	}
	return a.runSync(ctx, quote)
}

func (a *attempt) runSync(ctx context.Context, quote *types.QuoteResponse) Result {
	receipt, err := a.cycle(ctx)
	switch {
	case err == nil:
		if err := a.advance(EventConfirmed); err != nil {
			return a.fail(err)
		}
		return a.success(receipt.Signature, nil, quote.InAmount, quote.OutAmount)
	case errors.Is(err, types.ErrConfirmationTimeout):
		return a.timeout(fmt.Sprintf("transaction %s was broadcast but not confirmed in time; check it on chain before retrying", receipt.Signature))
	case ctx.Err() != nil && len(a.summary.Signatures) == 0:
		return a.timeout("cancelled before any transaction was broadcast")
	default:
		return a.fail(err)
	}
}

func (a *attempt) runAsync(ctx context.Context, quote *types.QuoteResponse) Result {
	deadline := a.started.Add(a.engine.maxWait)
	// Every call made while polling shares the budget, including late legs.
	budgetCtx, cancel := a.engine.clock.WithDeadline(ctx, deadline)
	defer cancel()
	polls := 0

	for {
		if a.payload != nil {
			receipt, err := a.cycle(budgetCtx)
			a.payload = nil
			switch {
			case budgetCtx.Err() != nil:
				a.log.Warn("async budget ran out while submitting", zap.Int("polls", polls), zap.Error(err))
				return a.timeout(a.asyncGuidance())
			case err == nil:
			case errors.Is(err, types.ErrConfirmationTimeout):
				// The aggregator's status decides the outcome from here.
				a.log.Warn("async leg not confirmed yet, continuing to poll", zap.String("signature", receipt.Signature))
			default:
				return a.fail(err)
			}
			if err := a.advance(EventAccepted); err != nil {
				return a.fail(err)
			}
			a.notifyDeposit(budgetCtx, receipt.Signature)
		}

		remaining := deadline.Sub(a.engine.clock.Now())
		if remaining <= 0 || budgetCtx.Err() != nil {
			a.log.Warn("async order did not reach a terminal status in time",
				zap.Int("polls", polls), zap.Duration("budget", a.engine.maxWait))
			return a.timeout(a.asyncGuidance())
		}
		if err := a.engine.clock.Sleep(budgetCtx, min(a.engine.pollInterval, remaining)); err != nil {
			return a.timeout(a.asyncGuidance())
		}

		if err := a.advance(EventPoll); err != nil {
			return a.fail(err)
		}
		polls++
		status, err := a.engine.provider.GetOrderStatus(budgetCtx, a.summary.RequestID)
		if err != nil {
			if budgetCtx.Err() != nil {
				return a.timeout(a.asyncGuidance())
			}
			a.log.Warn("order status check failed", zap.Int("poll", polls), zap.Error(err))
			if err := a.advance(EventPending); err != nil {
				return a.fail(err)
			}
			continue
		}

		switch status.State {
		case types.StateClosed:
			if err := a.advance(EventClosed); err != nil {
				return a.fail(err)
			}
			in, out := status.InAmount, status.OutAmount
			if in == "" {
				in = quote.InAmount
			}
			if out == "" {
				out = quote.OutAmount
			}
			return a.success(a.lastSignature(), status.Fills, in, out)
		case types.StateFailed, types.StateExpired:
			return a.fail(fmt.Errorf("%w: order %s reported %s", types.ErrUpstream, a.summary.RequestID, status.State))
		}

		if err := a.advance(EventPending); err != nil {
			return a.fail(err)
		}
		if len(status.NextTransaction) > 0 {
			if a.alreadySubmitted(status.NextTransaction) {
				a.log.Debug("ignoring already submitted next transaction", zap.Int("poll", polls))
			} else {
				a.payload = status.NextTransaction
			}
		}
		a.log.Debug("order pending", zap.Int("poll", polls), zap.String("status", status.Raw))
	}
}

// cycle signs and submits the current payload once
func (a *attempt) cycle(ctx context.Context) (submit.Receipt, error) {
	if err := a.advance(EventSign); err != nil {
		return submit.Receipt{}, err
	}
	a.submitted[sha256.Sum256(a.payload)] = struct{}{}

	signed, err := a.engine.signer.Sign(ctx, a.payload)
	if err != nil {
		return submit.Receipt{}, fmt.Errorf("sign: %w", err)
	}

	a.summary.Cycles++
	receipt, err := a.engine.submitter.Submit(ctx, signed)
	if receipt.Signature != "" {
		a.summary.Signatures = append(a.summary.Signatures, receipt.Signature)
	}
	if err != nil {
		return receipt, fmt.Errorf("submit: %w", err)
	}
	a.log.Info("transaction confirmed", zap.String("signature", receipt.Signature), zap.Int("cycle", a.summary.Cycles))
	return receipt, nil
}

func (a *attempt) notifyDeposit(ctx context.Context, signature string) {
	n, ok := a.engine.provider.(aggregator.DepositNotifier)
	if !ok || signature == "" {
		return
	}
	if err := n.NotifyDeposit(ctx, a.summary.RequestID, signature); err != nil {
		a.log.Warn("deposit notification failed", zap.String("signature", signature), zap.Error(err))
	}
}

func (a *attempt) alreadySubmitted(payload []byte) bool {
	_, ok := a.submitted[sha256.Sum256(payload)]
	return ok
}

func (a *attempt) lastSignature() string {
	if n := len(a.summary.Signatures); n > 0 {
		return a.summary.Signatures[n-1]
	}
	return ""
}

func (a *attempt) advance(ev Event) error {
	to, err := transition(a.state, ev)
	if err != nil {
		return err
	}
	a.log.Debug("state transition", zap.String("from", string(a.state)), zap.String("event", string(ev)), zap.String("state", string(to)))
	a.state = to
	return nil
}

func (a *attempt) finish(final State) Summary {
	a.state = final
	a.summary.FinalState = final
	a.summary.Elapsed = a.engine.clock.Now().Sub(a.started)
	return a.summary
}

func (a *attempt) success(signature string, fills []types.Fill, in, out string) Result {
	r := Success{
		Summary:   a.finish(StateConfirmed),
		Signature: signature,
		Fills:     fills,
		InAmount:  in,
		OutAmount: out,
	}
	a.log.Info("order confirmed", zap.String("signature", signature), zap.Int("fills", len(fills)), zap.Duration("elapsed", r.Elapsed))
	return r
}

func (a *attempt) fail(err error) Result {
	r := Failed{
		Summary: a.finish(StateFailed),
		Reason:  err.Error(),
		Kind:    types.KindOf(err),
		Err:     err,
	}
	a.log.Error("order failed", zap.String("kind", r.Kind), zap.Error(err))
	return r
}

func (a *attempt) timeout(guidance string) Result {
	r := TimedOut{
		Summary:  a.finish(StateTimedOut),
		Guidance: guidance,
	}
	a.log.Warn("order outcome unknown", zap.String("guidance", guidance), zap.Duration("elapsed", r.Elapsed))
	return r
}

func (a *attempt) asyncGuidance() string {
	if len(a.summary.Signatures) == 0 {
		return fmt.Sprintf("no transaction was broadcast for request %s", a.summary.RequestID)
	}
	return fmt.Sprintf("order %s may still complete; check positions or the order status before placing it again", a.summary.RequestID)
}
