package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Klingon-tech/embarcadero/internal/swap"
	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

func TestJournalHandle(t *testing.T) {
	store := newTestStorage(t)
	journal := NewJournal(store, logging.Discard())

	txn := &swap.Transaction{
		SiacoinOutputs: []swap.SiacoinOutput{{Value: "1", UnlockHash: "ab"}},
	}
	summary := &swap.Summary{
		ReceiveSC: true,
		AmountSC:  decimal.RequireFromString("2000000000000000000000000"),
		AmountSF:  decimal.NewFromInt(3),
		AmountFee: decimal.Zero,
		Stage:     5,
	}

	journal.Handle(swap.Event{
		Type:        swap.EventSummaryChanged,
		SessionID:   "session",
		SwapID:      "f00d",
		Status:      swap.StatusTransactionPending,
		Route:       swap.RouteSwap,
		Summary:     summary,
		Transaction: txn,
		Timestamp:   time.Now(),
	})

	rec, err := store.GetSwap("f00d")
	if err != nil {
		t.Fatalf("GetSwap() error = %v", err)
	}
	if rec.Stage != 5 || rec.Status != string(swap.StatusTransactionPending) {
		t.Errorf("stage/status = %d/%s", rec.Stage, rec.Status)
	}
	if rec.AmountSF != "3" || !rec.ReceiveSC {
		t.Errorf("summary fields = %+v", rec)
	}
	var back swap.Transaction
	if err := json.Unmarshal(rec.Transaction, &back); err != nil {
		t.Fatalf("stored transaction is not JSON: %v", err)
	}
	if len(back.SiacoinOutputs) != 1 || back.SiacoinOutputs[0].UnlockHash != "ab" {
		t.Errorf("stored transaction = %+v", back)
	}
	if !rec.CompletedAt.IsZero() {
		t.Error("pending swap should not be completed")
	}

	summary.Stage = 6
	journal.Handle(swap.Event{
		Type:        swap.EventSummaryChanged,
		SessionID:   "session",
		SwapID:      "f00d",
		Status:      swap.StatusTransactionConfirmed,
		Summary:     summary,
		Transaction: txn,
		Timestamp:   time.Now(),
	})
	rec, err = store.GetSwap("f00d")
	if err != nil {
		t.Fatalf("GetSwap() error = %v", err)
	}
	if rec.CompletedAt.IsZero() {
		t.Error("confirmed swap should be completed")
	}

	journal.Handle(swap.Event{Type: swap.EventSessionReset, SessionID: "session"})

	events, err := store.ListEvents("f00d", 0)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Errorf("journaled %d events for swap, want 2", len(events))
	}
	all, err := store.ListEvents("", 0)
	if err != nil {
		t.Fatalf("ListEvents(all) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("journaled %d events, want 3", len(all))
	}
}
