package storage

import (
	"encoding/json"
	"time"

	"github.com/Klingon-tech/embarcadero/internal/swap"
	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

// Journal records session events and committed summaries. Register
// Handle with Session.OnEvent.
type Journal struct {
	store *Storage
	log   *logging.Logger
}

// NewJournal creates a journal writing to store.
func NewJournal(store *Storage, log *logging.Logger) *Journal {
	if log == nil {
		log = logging.GetDefault().Component("journal")
	}
	return &Journal{store: store, log: log}
}

// Handle persists ev. Failures are logged; the session never waits on the
// journal for correctness.
func (j *Journal) Handle(ev swap.Event) {
	if ev.Type == swap.EventSummaryChanged && ev.Transaction != nil && ev.Summary != nil {
		if err := j.saveSwap(ev); err != nil {
			j.log.Warn("Failed to journal swap", "id", ev.SwapID, "error", err)
		}
	}

	rec := &EventRecord{
		SessionID: ev.SessionID,
		SwapID:    ev.SwapID,
		Type:      string(ev.Type),
		Status:    string(ev.Status),
		Route:     string(ev.Route),
		Error:     ev.Error,
		CreatedAt: ev.Timestamp,
	}
	if err := j.store.RecordEvent(rec); err != nil {
		j.log.Warn("Failed to journal event", "type", ev.Type, "error", err)
	}
}

func (j *Journal) saveSwap(ev swap.Event) error {
	txn, err := json.Marshal(ev.Transaction)
	if err != nil {
		return err
	}

	rec := &SwapRecord{
		ID:          ev.SwapID,
		Transaction: txn,
		Stage:       ev.Summary.Stage,
		Status:      string(ev.Status),
		ReceiveSF:   ev.Summary.ReceiveSF,
		ReceiveSC:   ev.Summary.ReceiveSC,
		PayFee:      ev.Summary.PayFee,
		AmountSC:    ev.Summary.AmountSC.String(),
		AmountSF:    ev.Summary.AmountSF.String(),
		AmountFee:   ev.Summary.AmountFee.String(),
	}
	if ev.Status.IsComplete() {
		rec.CompletedAt = time.Now()
	}
	return j.store.SaveSwap(rec)
}
