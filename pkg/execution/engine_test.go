package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"agent-swap/config"
	"agent-swap/pkg/clock"
	"agent-swap/pkg/submit"
	"agent-swap/pkg/types"
)

var (
	initialTx = []byte("initial-tx")
	nextTx    = []byte("next-tx")
	walletKey = solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
)

type statusReply struct {
	status *types.OrderStatus
	err    error
}

type fakeProvider struct {
	mu         sync.Mutex
	quote      *types.QuoteResponse
	quoteErr   error
	replies    []statusReply // consumed in order, last one repeats
	onStatus   func(n int)
	orderCalls int
	statusIDs  []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GetOrder(ctx context.Context, req types.QuoteRequest) (*types.QuoteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeProvider) GetOrderStatus(ctx context.Context, requestID string) (*types.OrderStatus, error) {
	f.mu.Lock()
	f.statusIDs = append(f.statusIDs, requestID)
	n := len(f.statusIDs)
	reply := statusReply{status: &types.OrderStatus{State: types.StatePending, Raw: "open"}}
	if len(f.replies) > 0 {
		idx := n - 1
		if idx >= len(f.replies) {
			idx = len(f.replies) - 1
		}
		reply = f.replies[idx]
	}
	hook := f.onStatus
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return reply.status, reply.err
}

type notifyingProvider struct {
	*fakeProvider
	notified []string
}

func (p *notifyingProvider) NotifyDeposit(ctx context.Context, requestID, signature string) error {
	p.notified = append(p.notified, requestID+"/"+signature)
	return nil
}

type fakeSigner struct {
	mu    sync.Mutex
	err   error
	signs int
}

func (s *fakeSigner) PublicKey() solana.PublicKey { return walletKey }

func (s *fakeSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.signs++
	return append(append([]byte{}, payload...), []byte("|signed")...), nil
}

type fakeSubmitter struct {
	err      error
	payloads [][]byte
}

func (s *fakeSubmitter) Submit(ctx context.Context, signed []byte) (submit.Receipt, error) {
	s.payloads = append(s.payloads, signed)
	receipt := submit.Receipt{Signature: fmt.Sprintf("sig-%d", len(s.payloads))}
	if s.err != nil {
		return receipt, s.err
	}
	receipt.Confirmed = true
	return receipt, nil
}

func request() types.QuoteRequest {
	return types.QuoteRequest{
		Kind:       types.OrderPrediction,
		InputMint:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		OutputMint: "YesToken1111111111111111111111111111111111",
		Amount:     10_000_000,
		Wallet:     types.WalletRef{PublicKey: walletKey.String()},
	}
}

func syncQuote() *types.QuoteResponse {
	return &types.QuoteResponse{Provider: "fake", Mode: types.ModeSync, Transaction: initialTx, InAmount: "10000000", OutAmount: "20000000"}
}

func asyncQuote() *types.QuoteResponse {
	return &types.QuoteResponse{Provider: "fake", Mode: types.ModeAsync, Transaction: initialTx, RequestID: "req-1"}
}

type harness struct {
	provider  *fakeProvider
	signer    *fakeSigner
	submitter *fakeSubmitter
	clock     *clock.Fake
	engine    *Engine
}

func newHarness(p *fakeProvider) *harness {
	h := &harness{
		provider:  p,
		signer:    &fakeSigner{},
		submitter: &fakeSubmitter{},
		clock:     clock.NewFake(time.Unix(1_700_000_000, 0)),
	}
	h.engine = New(p, h.signer, h.submitter, config.ExecutionConfig{PollInterval: 2 * time.Second, MaxWait: 90 * time.Second},
		WithClock(h.clock), WithIDGenerator(func() string { return "attempt-1" }))
	return h
}

func TestExecuteSyncSingleCycle(t *testing.T) {
	h := newHarness(&fakeProvider{quote: syncQuote()})

	res := h.engine.Execute(context.Background(), request())
	ok, isSuccess := res.(Success)
	if !isSuccess {
		t.Fatalf("result = %#v, want Success", res)
	}
	if ok.Signature != "sig-1" || ok.Cycles != 1 || ok.FinalState != StateConfirmed || ok.AttemptID != "attempt-1" {
		t.Errorf("success = %+v", ok)
	}
	if len(h.submitter.payloads) != 1 || h.signer.signs != 1 {
		t.Errorf("sign+submit cycles = %d/%d, want 1/1", h.signer.signs, len(h.submitter.payloads))
	}
	if len(h.provider.statusIDs) != 0 {
		t.Errorf("sync order polled status %d times", len(h.provider.statusIDs))
	}
	if ok.Elapsed != 0 {
		t.Errorf("elapsed = %v, sync path should not sleep", ok.Elapsed)
	}
}

func TestExecuteAsyncNeverTerminalTimesOut(t *testing.T) {
	h := newHarness(&fakeProvider{quote: asyncQuote()})

	res := h.engine.Execute(context.Background(), request())
	to, ok := res.(TimedOut)
	if !ok {
		t.Fatalf("result = %#v, want TimedOut", res)
	}
	if to.Elapsed < 90*time.Second || to.Elapsed > 92*time.Second {
		t.Errorf("elapsed = %v, want within [90s, 92s]", to.Elapsed)
	}
	if to.RequestID != "req-1" || to.FinalState != StateTimedOut {
		t.Errorf("timed out = %+v", to)
	}
	if !strings.Contains(to.Guidance, "may still complete") {
		t.Errorf("guidance = %q", to.Guidance)
	}
	if len(h.submitter.payloads) != 1 {
		t.Errorf("cycles = %d, want 1", len(h.submitter.payloads))
	}
	if got := len(h.provider.statusIDs); got != 45 {
		t.Errorf("polls = %d, want 45", got)
	}
	for _, d := range h.clock.Sleeps() {
		if d != 2*time.Second {
			t.Fatalf("slept %v, want the fixed 2s poll interval", d)
		}
	}
}

func TestExecuteAsyncClosedOnSecondPoll(t *testing.T) {
	fills := []types.Fill{{Signature: "fill-1", InAmount: "10000000", OutAmount: "19800000"}}
	h := newHarness(&fakeProvider{
		quote: asyncQuote(),
		replies: []statusReply{
			{status: &types.OrderStatus{State: types.StatePending, NextTransaction: nextTx}},
			{status: &types.OrderStatus{State: types.StateClosed, Fills: fills, InAmount: "10000000", OutAmount: "19800000"}},
		},
	})

	res := h.engine.Execute(context.Background(), request())
	ok, isSuccess := res.(Success)
	if !isSuccess {
		t.Fatalf("result = %#v, want Success", res)
	}
	if len(h.submitter.payloads) != 2 || ok.Cycles != 2 {
		t.Fatalf("cycles = %d, want 2", len(h.submitter.payloads))
	}
	if !bytes.HasPrefix(h.submitter.payloads[0], initialTx) || !bytes.HasPrefix(h.submitter.payloads[1], nextTx) {
		t.Errorf("submitted payloads = %q", h.submitter.payloads)
	}
	if len(ok.Fills) != 1 || ok.Fills[0].Signature != "fill-1" {
		t.Errorf("fills = %+v", ok.Fills)
	}
	if ok.Signature != "sig-2" || ok.OutAmount != "19800000" {
		t.Errorf("success = %+v", ok)
	}
	if ok.Elapsed != 4*time.Second {
		t.Errorf("elapsed = %v, want two poll intervals", ok.Elapsed)
	}
}

func TestExecuteAsyncReusesRequestID(t *testing.T) {
	h := newHarness(&fakeProvider{
		quote: asyncQuote(),
		replies: []statusReply{
			{status: &types.OrderStatus{State: types.StatePending}},
			{status: &types.OrderStatus{State: types.StatePending, NextTransaction: nextTx}},
			{err: errors.New("502 bad gateway")},
			{status: &types.OrderStatus{State: types.StateClosed}},
		},
	})

	res := h.engine.Execute(context.Background(), request())
	if _, ok := res.(Success); !ok {
		t.Fatalf("result = %#v, want Success", res)
	}
	if len(h.provider.statusIDs) != 4 {
		t.Fatalf("polls = %d, want 4", len(h.provider.statusIDs))
	}
	for i, id := range h.provider.statusIDs {
		if id != "req-1" {
			t.Errorf("poll %d used request id %q", i, id)
		}
	}
}

func TestExecuteAsyncTerminalFailures(t *testing.T) {
	for _, state := range []types.OrderState{types.StateFailed, types.StateExpired} {
		t.Run(string(state), func(t *testing.T) {
			h := newHarness(&fakeProvider{
				quote:   asyncQuote(),
				replies: []statusReply{{status: &types.OrderStatus{State: state}}},
			})

			res := h.engine.Execute(context.Background(), request())
			f, ok := res.(Failed)
			if !ok {
				t.Fatalf("result = %#v, want Failed", res)
			}
			if !strings.Contains(f.Reason, string(state)) || f.Kind != "upstream_error" {
				t.Errorf("failed = %+v", f)
			}
			if len(f.Signatures) != 1 {
				t.Errorf("signatures = %v, the broadcast leg must still be reported", f.Signatures)
			}
		})
	}
}

func TestExecuteInvalidRequestMakesNoCalls(t *testing.T) {
	h := newHarness(&fakeProvider{quote: syncQuote()})
	req := request()
	req.Amount = 0

	res := h.engine.Execute(context.Background(), req)
	f, ok := res.(Failed)
	if !ok {
		t.Fatalf("result = %#v, want Failed", res)
	}
	if f.Kind != "invalid_request" || !errors.Is(f.Err, types.ErrInvalidRequest) {
		t.Errorf("failed = %+v", f)
	}
	if h.provider.orderCalls != 0 || h.signer.signs != 0 || len(h.submitter.payloads) != 0 {
		t.Error("invalid request reached a collaborator")
	}
}

func TestExecuteWalletMismatch(t *testing.T) {
	h := newHarness(&fakeProvider{quote: syncQuote()})
	req := request()
	req.Wallet.PublicKey = "So11111111111111111111111111111111111111112"

	res := h.engine.Execute(context.Background(), req)
	if f, ok := res.(Failed); !ok || f.Kind != "invalid_request" {
		t.Fatalf("result = %#v, want invalid_request", res)
	}
	if h.provider.orderCalls != 0 {
		t.Error("quote requested for a wallet the signer cannot sign for")
	}
}

func TestExecuteUpstreamQuoteFailure(t *testing.T) {
	h := newHarness(&fakeProvider{quoteErr: &types.UpstreamError{Provider: "fake", StatusCode: 503, Message: "down"}})

	res := h.engine.Execute(context.Background(), request())
	f, ok := res.(Failed)
	if !ok || f.Kind != "upstream_error" || !strings.Contains(f.Reason, "503") {
		t.Fatalf("result = %#v", res)
	}
}

func TestExecuteSignerFailureNeverSubmits(t *testing.T) {
	h := newHarness(&fakeProvider{quote: syncQuote()})
	h.signer.err = fmt.Errorf("%w: authorization key revoked", types.ErrDelegation)

	res := h.engine.Execute(context.Background(), request())
	f, ok := res.(Failed)
	if !ok || f.Kind != "delegation_error" {
		t.Fatalf("result = %#v, want delegation_error", res)
	}
	if len(h.submitter.payloads) != 0 {
		t.Error("submitted after a signing failure")
	}
}

func TestExecuteSyncConfirmationTimeoutIsAmbiguous(t *testing.T) {
	h := newHarness(&fakeProvider{quote: syncQuote()})
	h.submitter.err = fmt.Errorf("%w: not confirmed", types.ErrConfirmationTimeout)

	res := h.engine.Execute(context.Background(), request())
	to, ok := res.(TimedOut)
	if !ok {
		t.Fatalf("result = %#v, want TimedOut", res)
	}
	if !strings.Contains(to.Guidance, "sig-1") || len(to.Signatures) != 1 {
		t.Errorf("timed out = %+v", to)
	}
}

func TestExecuteSubmissionRejected(t *testing.T) {
	h := newHarness(&fakeProvider{quote: syncQuote()})
	h.submitter.err = fmt.Errorf("%w: blockhash not found", types.ErrSubmission)

	res := h.engine.Execute(context.Background(), request())
	if f, ok := res.(Failed); !ok || f.Kind != "submission_error" {
		t.Fatalf("result = %#v, want submission_error", res)
	}
	if len(h.submitter.payloads) != 1 {
		t.Errorf("submissions = %d, want exactly 1", len(h.submitter.payloads))
	}
}

func TestExecuteAsyncIgnoresRepeatedPayload(t *testing.T) {
	h := newHarness(&fakeProvider{
		quote: asyncQuote(),
		replies: []statusReply{
			{status: &types.OrderStatus{State: types.StatePending, NextTransaction: initialTx}},
			{status: &types.OrderStatus{State: types.StateClosed}},
		},
	})

	res := h.engine.Execute(context.Background(), request())
	if _, ok := res.(Success); !ok {
		t.Fatalf("result = %#v, want Success", res)
	}
	if len(h.submitter.payloads) != 1 {
		t.Errorf("submissions = %d, the same payload must not be submitted twice", len(h.submitter.payloads))
	}
}

func TestExecuteCancelledWhilePolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakeProvider{quote: asyncQuote()}
	p.onStatus = func(n int) {
		if n == 3 {
			cancel()
		}
	}
	h := newHarness(p)

	res := h.engine.Execute(ctx, request())
	to, ok := res.(TimedOut)
	if !ok {
		t.Fatalf("result = %#v, want TimedOut", res)
	}
	if len(p.statusIDs) != 3 {
		t.Errorf("polls = %d, polling must stop once cancelled", len(p.statusIDs))
	}
	if to.Elapsed >= 90*time.Second {
		t.Errorf("elapsed = %v, cancellation should end the loop early", to.Elapsed)
	}
}

func TestExecuteCancelledBeforeQuote(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(&fakeProvider{quoteErr: context.Canceled})

	res := h.engine.Execute(ctx, request())
	if _, ok := res.(TimedOut); !ok {
		t.Fatalf("result = %#v, want TimedOut", res)
	}
	if h.signer.signs != 0 {
		t.Error("signed after cancellation")
	}
}

func TestExecuteNotifiesDeposit(t *testing.T) {
	base := &fakeProvider{
		quote:   asyncQuote(),
		replies: []statusReply{{status: &types.OrderStatus{State: types.StateClosed}}},
	}
	p := &notifyingProvider{fakeProvider: base}
	sub := &fakeSubmitter{}
	e := New(p, &fakeSigner{}, sub, config.ExecutionConfig{}, WithClock(clock.NewFake(time.Unix(0, 0))))

	res := e.Execute(context.Background(), request())
	if _, ok := res.(Success); !ok {
		t.Fatalf("result = %#v, want Success", res)
	}
	if len(p.notified) != 1 || p.notified[0] != "req-1/sig-1" {
		t.Errorf("notified = %v", p.notified)
	}
}

func TestExecuteExpiredQuote(t *testing.T) {
	q := syncQuote()
	q.ExpiresAt = time.Unix(1_600_000_000, 0)
	h := newHarness(&fakeProvider{quote: q})

	res := h.engine.Execute(context.Background(), request())
	if f, ok := res.(Failed); !ok || !strings.Contains(f.Reason, "expired") {
		t.Fatalf("result = %#v, want expired quote failure", res)
	}
	if h.signer.signs != 0 {
		t.Error("signed an expired quote")
	}
}

func TestExecuteConcurrentAttemptsAreIndependent(t *testing.T) {
	p := &fakeProvider{
		quote:   asyncQuote(),
		replies: []statusReply{{status: &types.OrderStatus{State: types.StateClosed}}},
	}
	e := New(p, &fakeSigner{}, &lockedSubmitter{}, config.ExecutionConfig{}, WithClock(clock.NewFake(time.Unix(0, 0))))

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Execute(context.Background(), request())
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, r := range results {
		if r.Outcome() != OutcomeSuccess {
			t.Errorf("attempt %d: outcome %s", i, r.Outcome())
		}
		id := r.Details().AttemptID
		if seen[id] {
			t.Errorf("attempt id %s reused", id)
		}
		seen[id] = true
	}
}

type lockedSubmitter struct {
	mu sync.Mutex
	n  int
}

func (s *lockedSubmitter) Submit(ctx context.Context, signed []byte) (submit.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return submit.Receipt{Signature: fmt.Sprintf("sig-%d", s.n), Confirmed: true}, nil
}

// slowLegSubmitter confirms the first leg and spends confirmWait on the
// clock for every later one
type slowLegSubmitter struct {
	clock       *clock.Fake
	confirmWait time.Duration
	calls       int
	lateCtxErr  error
}

func (s *slowLegSubmitter) Submit(ctx context.Context, signed []byte) (submit.Receipt, error) {
	s.calls++
	receipt := submit.Receipt{Signature: fmt.Sprintf("sig-%d", s.calls)}
	if s.calls == 1 {
		receipt.Confirmed = true
		return receipt, nil
	}
	if err := s.clock.Sleep(ctx, s.confirmWait); err != nil {
		s.lateCtxErr = err
		return receipt, err
	}
	return receipt, types.ErrConfirmationTimeout
}

func TestExecuteAsyncLateLegStaysWithinBudget(t *testing.T) {
	replies := make([]statusReply, 0, 45)
	for i := 0; i < 43; i++ {
		replies = append(replies, statusReply{status: &types.OrderStatus{State: types.StatePending}})
	}
	replies = append(replies,
		statusReply{status: &types.OrderStatus{State: types.StatePending, NextTransaction: nextTx}},
		statusReply{status: &types.OrderStatus{State: types.StatePending}},
	)
	p := &fakeProvider{quote: asyncQuote(), replies: replies}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	sub := &slowLegSubmitter{clock: clk, confirmWait: 30 * time.Second}
	e := New(p, &fakeSigner{}, sub, config.ExecutionConfig{PollInterval: 2 * time.Second, MaxWait: 90 * time.Second},
		WithClock(clk))

	res := e.Execute(context.Background(), request())
	to, ok := res.(TimedOut)
	if !ok {
		t.Fatalf("result = %#v, want TimedOut", res)
	}
	if to.Elapsed != 90*time.Second {
		t.Errorf("elapsed = %v, want the 90s budget", to.Elapsed)
	}
	if !strings.Contains(to.Guidance, "may still complete") {
		t.Errorf("guidance = %q", to.Guidance)
	}
	if sub.calls != 2 {
		t.Errorf("submissions = %d, want 2", sub.calls)
	}
	if !errors.Is(sub.lateCtxErr, context.DeadlineExceeded) {
		t.Errorf("late leg ctx error = %v, want the budget deadline", sub.lateCtxErr)
	}
	if got := len(p.statusIDs); got != 44 {
		t.Errorf("polls = %d, want 44", got)
	}
}

func TestExecuteAsyncClampsLastSleep(t *testing.T) {
	p := &fakeProvider{quote: asyncQuote()}
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	e := New(p, &fakeSigner{}, &fakeSubmitter{}, config.ExecutionConfig{PollInterval: 2 * time.Second, MaxWait: 5 * time.Second},
		WithClock(clk))

	res := e.Execute(context.Background(), request())
	to, ok := res.(TimedOut)
	if !ok {
		t.Fatalf("result = %#v, want TimedOut", res)
	}
	if to.Elapsed != 5*time.Second {
		t.Errorf("elapsed = %v, want 5s", to.Elapsed)
	}
	want := []time.Duration{2 * time.Second, 2 * time.Second, time.Second}
	got := clk.Sleeps()
	if len(got) != len(want) {
		t.Fatalf("sleeps = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, got[i], want[i])
		}
	}
}
