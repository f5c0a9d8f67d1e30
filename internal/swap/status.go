package swap

import "fmt"

// Status is the single canonical view of swap progress. It is always
// computed from the current summary and route, never stored.
type Status string

const (
	StatusNone Status = ""

	// Local statuses apply while no transaction is loaded.
	StatusCreatingNewSwap     Status = "creating_new_swap"
	StatusLoadingExistingSwap Status = "loading_existing_swap"

	// Remote statuses come from the summary stage.
	StatusWaitingForYouToAccept          Status = "waiting_for_you_to_accept"
	StatusWaitingForCounterpartyToAccept Status = "waiting_for_counterparty_to_accept"
	StatusWaitingForYouToFinish          Status = "waiting_for_you_to_finish"
	StatusWaitingForCounterpartyToFinish Status = "waiting_for_counterparty_to_finish"
	StatusTransactionPending             Status = "transaction_pending"
	StatusTransactionConfirmed           Status = "transaction_confirmed"
)

// StageTableVersion identifies the stage numbering spoken by the swap
// service: six 1-indexed stages with pending and confirmed split. Older
// 0-indexed numberings are not accepted.
const StageTableVersion = 3

var stageTable = map[int]Status{
	1: StatusWaitingForYouToAccept,
	2: StatusWaitingForCounterpartyToAccept,
	3: StatusWaitingForYouToFinish,
	4: StatusWaitingForCounterpartyToFinish,
	5: StatusTransactionPending,
	6: StatusTransactionConfirmed,
}

var statusDescriptions = map[Status]string{
	StatusCreatingNewSwap:                "Creating a new swap",
	StatusLoadingExistingSwap:            "Loading an existing swap",
	StatusWaitingForYouToAccept:          "Waiting for you to accept",
	StatusWaitingForCounterpartyToAccept: "Waiting for counterparty to accept",
	StatusWaitingForYouToFinish:          "Waiting for you to finish",
	StatusWaitingForCounterpartyToFinish: "Waiting for counterparty to finish",
	StatusTransactionPending:             "Swap transaction pending",
	StatusTransactionConfirmed:           "Swap transaction confirmed",
}

// UnknownStageError is returned when the remote reports a stage outside
// the stage table.
type UnknownStageError struct {
	Stage int
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("%v: %d (stage table v%d)", ErrUnknownStage, e.Stage, StageTableVersion)
}

func (e *UnknownStageError) Unwrap() error {
	return ErrUnknownStage
}

// StageStatus maps a remote stage to its status.
func StageStatus(stage int) (Status, error) {
	status, ok := stageTable[stage]
	if !ok {
		return StatusNone, &UnknownStageError{Stage: stage}
	}
	return status, nil
}

// ResolveStatus derives the canonical status. A defined stage always wins;
// otherwise the local status is returned unchanged, possibly StatusNone.
func ResolveStatus(stage *int, local Status) (Status, error) {
	if stage != nil {
		return StageStatus(*stage)
	}
	return local, nil
}

// IsLocal reports whether s is one of the no-transaction statuses.
func (s Status) IsLocal() bool {
	return s == StatusCreatingNewSwap || s == StatusLoadingExistingSwap
}

// IsRemote reports whether s comes from a summary stage.
func (s Status) IsRemote() bool {
	for _, status := range stageTable {
		if status == s {
			return true
		}
	}
	return false
}

// IsNetworkPending reports whether progress depends on the counterparty
// broadcasting or the network confirming, so the summary must be re-polled.
func (s Status) IsNetworkPending() bool {
	return s == StatusWaitingForCounterpartyToFinish || s == StatusTransactionPending
}

// IsComplete reports whether the swap needs nothing more from anyone.
func (s Status) IsComplete() bool {
	return s == StatusTransactionConfirmed
}

// OwnStep returns the step we must sign next, if any.
func (s Status) OwnStep() (Step, bool) {
	switch s {
	case StatusWaitingForYouToAccept:
		return StepAccept, true
	case StatusWaitingForYouToFinish:
		return StepFinish, true
	}
	return "", false
}

// CounterpartyStep returns the step the counterparty must run next, if any.
func (s Status) CounterpartyStep() (Step, bool) {
	switch s {
	case StatusWaitingForCounterpartyToAccept:
		return StepAccept, true
	case StatusWaitingForCounterpartyToFinish:
		return StepFinish, true
	}
	return "", false
}

// Description returns a human readable form of s.
func (s Status) Description() string {
	if d, ok := statusDescriptions[s]; ok {
		return d
	}
	return "No swap in progress"
}
