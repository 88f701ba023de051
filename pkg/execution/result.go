package execution

import (
	"time"

	"agent-swap/pkg/types"
)

// Outcome names the branch of a Result
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
)

// Result is exactly one of Success, Failed or TimedOut
type Result interface {
	Outcome() Outcome
	Details() Summary
	isResult()
}

// Summary is what every result reports about the attempt
type Summary struct {
	AttemptID  string              `json:"attempt_id"`
	RequestID  string              `json:"request_id,omitempty"`
	Provider   string              `json:"provider,omitempty"`
	Mode       types.ExecutionMode `json:"mode,omitempty"`
	Signatures []string            `json:"signatures,omitempty"`
	Cycles     int                 `json:"cycles"`
	Elapsed    time.Duration       `json:"elapsed"`
	FinalState State               `json:"final_state"`
}

// Success means the order filled
type Success struct {
	Summary
	Signature string       `json:"signature"`
	Fills     []types.Fill `json:"fills,omitempty"`
	InAmount  string       `json:"in_amount,omitempty"`
	OutAmount string       `json:"out_amount,omitempty"`
}

// Failed means the order definitely did not execute, or failed on chain
type Failed struct {
	Summary
	Reason string `json:"reason"`
	Kind   string `json:"kind"`
	Err    error  `json:"-"`
}

// TimedOut means the outcome is unknown. The order may still complete out of band.
type TimedOut struct {
	Summary
	Guidance string `json:"guidance"`
}

func (Success) Outcome() Outcome  { return OutcomeSuccess }
func (Failed) Outcome() Outcome   { return OutcomeFailed }
func (TimedOut) Outcome() Outcome { return OutcomeTimedOut }

func (r Success) Details() Summary  { return r.Summary }
func (r Failed) Details() Summary   { return r.Summary }
func (r TimedOut) Details() Summary { return r.Summary }

func (Success) isResult()  {}
func (Failed) isResult()   {}
func (TimedOut) isResult() {}
