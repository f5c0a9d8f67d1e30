// Package swap implements the client side of a two-party, escrow-less
// siacoin/siafund swap: validating transaction files, deriving the swap
// status from a remote summary, keeping navigation consistent with that
// status and reconciling pending swaps in the background.
//
// The package never inspects cryptographic contents. Summaries and
// signatures come from a Remote.
package swap

import (
	"context"
	"errors"
	"fmt"
)

// Common errors
var (
	ErrEmptyFile           = errors.New("empty transaction file")
	ErrMalformedFile       = errors.New("malformed transaction file")
	ErrSchemaViolation     = errors.New("invalid transaction file")
	ErrFileRead            = errors.New("failed to read transaction file")
	ErrSummarizationFailed = errors.New("error fetching transaction summary")
	ErrSignFailed          = errors.New("error signing transaction")
	ErrCreateFailed        = errors.New("error creating swap")
	ErrUnknownStage        = errors.New("unknown swap stage")
	ErrSuperseded          = errors.New("response superseded by a newer request")
	ErrNoTransaction       = errors.New("no transaction loaded")
	ErrInvalidStep         = errors.New("invalid signing step")
	ErrSessionFailed       = errors.New("session failed, reset required")
	ErrSessionClosed       = errors.New("session closed")
)

// Step is a signing step requested from the remote service.
type Step string

const (
	StepAccept Step = "accept"
	StepFinish Step = "finish"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	return s == StepAccept || s == StepFinish
}

// ParseStep parses a step name.
func ParseStep(s string) (Step, error) {
	step := Step(s)
	if !step.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStep, s)
	}
	return step, nil
}

// Remote is the swap service the session delegates to. Every call must
// honour ctx.
type Remote interface {
	// Summarize returns the transaction ID and the stage/amounts breakdown.
	Summarize(ctx context.Context, txn *Transaction) (*SummarizeResult, error)

	// Sign applies our signatures for the given step and returns the
	// updated transaction.
	Sign(ctx context.Context, step Step, txn *Transaction) (*Transaction, error)

	// Create builds a new swap transaction offering one amount in exchange
	// for another, e.g. ("100SC", "1SF").
	Create(ctx context.Context, offer, receive string) (*Transaction, error)
}
