// Package playback implements the consumer-side reconnect contract: bounded
// retries against a dying manifest, then a self-service end instead of a
// zombie live room.
package playback

// Decision is the outcome of one retry transition.
type Decision int

const (
	// DecisionRetry means another reconnect attempt is within budget.
	DecisionRetry Decision = iota
	// DecisionGiveUp means the budget is exhausted and the room should end.
	DecisionGiveUp
)

// RetryState is the explicit reconnect state machine. Transitions are pure;
// the Controller owns the single mutable copy.
type RetryState struct {
	Attempts    int
	MaxAttempts int
	LastError   error
}

// NewRetryState returns a fresh state with the given attempt budget.
func NewRetryState(maxAttempts int) RetryState {
	return RetryState{MaxAttempts: maxAttempts}
}

// OnFailure consumes one attempt and decides whether to retry.
func (s RetryState) OnFailure(err error) (RetryState, Decision) {
	next := s
	next.Attempts++
	next.LastError = err
	if next.Attempts >= next.MaxAttempts {
		return next, DecisionGiveUp
	}
	return next, DecisionRetry
}

// OnRecovered resets the budget after a successful reconnect.
func (s RetryState) OnRecovered() RetryState {
	return RetryState{MaxAttempts: s.MaxAttempts}
}

// Exhausted reports whether the budget is spent.
func (s RetryState) Exhausted() bool {
	return s.Attempts >= s.MaxAttempts
}
