package order

import "fmt"

// The error types below classify every way an execution can fail. All of
// them are recoverable: the pipeline reports the failure and the bot keeps
// waiting for its next tick.

// ValidationError marks a bad template, config or price.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// AccountError marks missing or unusable credentials.
type AccountError struct {
	Reason string
}

func (e *AccountError) Error() string { return "account: " + e.Reason }

// InsufficientBalanceError marks a margin requirement above the available
// balance, detected before dispatch.
type InsufficientBalanceError struct {
	Required  float64
	Available float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need %.2f, have %.2f", e.Required, e.Available)
}

// ConnectorError wraps a network or exchange rejection. The pipeline never
// retries within the same call; the next evaluation tick is the retry.
type ConnectorError struct {
	Exchange string
	Err      error
}

func (e *ConnectorError) Error() string {
	return fmt.Sprintf("connector %s: %v", e.Exchange, e.Err)
}

func (e *ConnectorError) Unwrap() error { return e.Err }

// ConsistencyError marks a dangling reference, e.g. a bot pointing at a
// deleted template. Treated as a logged no-op.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string { return "consistency: " + e.Reason }
