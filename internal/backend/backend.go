// Package backend is the HTTP client of the swap service. The service
// holds the wallet: it summarizes, signs and creates swap transactions and
// reports the consensus height of its node. This package never sees keys.
package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/embarcadero/internal/swap"
)

// Common errors
var (
	ErrRateLimited   = errors.New("rate limited")
	ErrUnavailable   = errors.New("swap service unavailable")
	ErrEmptyResponse = errors.New("empty response")
)

// Operation names used for logging and metrics.
const (
	OpSummarize = "summarize"
	OpAccept    = "accept"
	OpFinish    = "finish"
	OpCreate    = "create"
	OpConsensus = "consensus"
)

// StatusError is returned when the service answers with a non-2xx status.
// Message is the response body, which the service fills with a plain
// error string.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

// Consensus is the sync state of the service's node.
type Consensus struct {
	Synced       bool   `json:"synced"`
	Height       uint64 `json:"height"`
	CurrentBlock string `json:"currentblock"`
}

// Recorder observes every request made by a Client.
type Recorder interface {
	ObserveRemoteCall(op string, elapsed time.Duration, err error)
}

type summarizeRequest struct {
	Swap *swap.Transaction `json:"swap"`
}

type summarizeResponse struct {
	ID      string       `json:"id"`
	Summary swap.Summary `json:"summary"`
}

type signRequest struct {
	Swap *swap.Transaction `json:"swap"`
}

type signResponse struct {
	Swap *swap.Transaction `json:"swap"`
}

type createRequest struct {
	Offer   string `json:"offer"`
	Receive string `json:"receive"`
}

// createResponse accepts both field names the service has used.
type createResponse struct {
	Swap        *swap.Transaction `json:"swap"`
	Transaction *swap.Transaction `json:"transaction"`
}
