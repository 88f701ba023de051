package execution

import "fmt"

// State is a node of the execution state machine
type State string

const (
	StateNew           State = "NEW"
	StateQuoted        State = "QUOTED"
	StateSubmitting    State = "SUBMITTING"
	StateConfirmed     State = "CONFIRMED"
	StateAwaitingAsync State = "AWAITING_ASYNC"
	StatePolling       State = "POLLING"
	StateFailed        State = "FAILED"
	StateTimedOut      State = "TIMED_OUT"
)

// Terminal reports whether s ends the attempt
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimedOut
}

// Event drives a transition
type Event string

const (
	EventQuoted    Event = "quoted"    // quote received and validated
	EventSign      Event = "sign"      // current payload handed to the signer
	EventConfirmed Event = "confirmed" // sync transaction confirmed
	EventAccepted  Event = "accepted"  // async payload broadcast, awaiting the aggregator
	EventPoll      Event = "poll"      // status check issued
	EventPending   Event = "pending"   // status not terminal yet
	EventClosed    Event = "closed"    // aggregator reports the order filled
	EventFail      Event = "fail"
	EventTimeout   Event = "timeout"
)

var transitions = map[State]map[Event]State{
	StateNew: {
		EventQuoted: StateQuoted,
	},
	StateQuoted: {
		EventSign: StateSubmitting,
	},
	StateSubmitting: {
		EventConfirmed: StateConfirmed,
		EventAccepted:  StateAwaitingAsync,
	},
	StateAwaitingAsync: {
		EventPoll: StatePolling,
		EventSign: StateSubmitting,
	},
	StatePolling: {
		EventClosed:  StateConfirmed,
		EventPending: StateAwaitingAsync,
	},
}

// transition is the pure state function. Fail and timeout are accepted from
// every non-terminal state; terminal states accept nothing.
func transition(from State, ev Event) (State, error) {
	if from.Terminal() {
		return from, fmt.Errorf("state %s is terminal, cannot apply %s", from, ev)
	}
	switch ev {
	case EventFail:
		return StateFailed, nil
	case EventTimeout:
		return StateTimedOut, nil
	}
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, fmt.Errorf("invalid transition %s --%s-->", from, ev)
}
