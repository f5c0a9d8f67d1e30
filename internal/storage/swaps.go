package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Swap journal errors
var (
	ErrSwapNotFound = errors.New("swap not found")
	ErrInvalidSwap  = errors.New("invalid swap record")
)

// DefaultListLimit bounds ListSwaps when no limit is given.
const DefaultListLimit = 50

// SwapRecord is the last known state of a swap.
type SwapRecord struct {
	ID          string          `json:"id"`
	Transaction json.RawMessage `json:"transaction"`
	Stage       int             `json:"stage"`
	Status      string          `json:"status"`

	ReceiveSF bool   `json:"receive_sf"`
	ReceiveSC bool   `json:"receive_sc"`
	PayFee    bool   `json:"pay_fee"`
	AmountSC  string `json:"amount_sc"`
	AmountSF  string `json:"amount_sf"`
	AmountFee string `json:"amount_fee"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// SaveSwap creates or updates a swap record. CreatedAt is kept from the
// first save; CompletedAt is only ever set once.
func (s *Storage) SaveSwap(swap *SwapRecord) error {
	if swap.ID == "" || len(swap.Transaction) == 0 {
		return ErrInvalidSwap
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if swap.CreatedAt.IsZero() {
		swap.CreatedAt = now
	}
	swap.UpdatedAt = now

	query := `
		INSERT INTO swaps (
			id, transaction_json, stage, status,
			receive_sf, receive_sc, pay_fee,
			amount_sc, amount_sf, amount_fee,
			created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			transaction_json = excluded.transaction_json,
			stage = excluded.stage,
			status = excluded.status,
			receive_sf = excluded.receive_sf,
			receive_sc = excluded.receive_sc,
			pay_fee = excluded.pay_fee,
			amount_sc = excluded.amount_sc,
			amount_sf = excluded.amount_sf,
			amount_fee = excluded.amount_fee,
			updated_at = excluded.updated_at,
			completed_at = COALESCE(swaps.completed_at, excluded.completed_at)
	`

	var completedAt interface{}
	if !swap.CompletedAt.IsZero() {
		completedAt = swap.CompletedAt.Unix()
	}

	_, err := s.db.Exec(query,
		swap.ID,
		string(swap.Transaction),
		swap.Stage,
		swap.Status,
		boolToInt(swap.ReceiveSF),
		boolToInt(swap.ReceiveSC),
		boolToInt(swap.PayFee),
		swap.AmountSC,
		swap.AmountSF,
		swap.AmountFee,
		swap.CreatedAt.Unix(),
		swap.UpdatedAt.Unix(),
		completedAt,
	)
	return err
}

// GetSwap retrieves a swap by ID.
func (s *Storage) GetSwap(id string) (*SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, transaction_json, stage, status,
			receive_sf, receive_sc, pay_fee,
			amount_sc, amount_sf, amount_fee,
			created_at, updated_at, completed_at
		FROM swaps WHERE id = ?
	`

	swap, err := scanSwapRecord(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSwapNotFound
	}
	return swap, err
}

// ListSwaps returns the most recently updated swaps first.
func (s *Storage) ListSwaps(limit int) ([]*SwapRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, transaction_json, stage, status,
			receive_sf, receive_sc, pay_fee,
			amount_sc, amount_sf, amount_fee,
			created_at, updated_at, completed_at
		FROM swaps
		ORDER BY updated_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swaps []*SwapRecord
	for rows.Next() {
		swap, err := scanSwapRecord(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, swap)
	}

	return swaps, rows.Err()
}

// SwapCount returns the number of swaps still in progress and completed.
func (s *Storage) SwapCount() (pending, completed int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRow("SELECT COUNT(*) FROM swaps WHERE completed_at IS NULL").Scan(&pending)
	if err != nil {
		return
	}

	err = s.db.QueryRow("SELECT COUNT(*) FROM swaps WHERE completed_at IS NOT NULL").Scan(&completed)
	return
}

func scanSwapRecord(row scanner) (*SwapRecord, error) {
	var swap SwapRecord
	var txn string
	var receiveSF, receiveSC, payFee int
	var createdAt, updatedAt int64
	var completedAt sql.NullInt64

	err := row.Scan(
		&swap.ID,
		&txn,
		&swap.Stage,
		&swap.Status,
		&receiveSF,
		&receiveSC,
		&payFee,
		&swap.AmountSC,
		&swap.AmountSF,
		&swap.AmountFee,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	swap.Transaction = json.RawMessage(txn)
	swap.ReceiveSF = receiveSF == 1
	swap.ReceiveSC = receiveSC == 1
	swap.PayFee = payFee == 1
	swap.CreatedAt = time.Unix(createdAt, 0)
	swap.UpdatedAt = time.Unix(updatedAt, 0)
	if completedAt.Valid && completedAt.Int64 > 0 {
		swap.CompletedAt = time.Unix(completedAt.Int64, 0)
	}

	return &swap, nil
}
