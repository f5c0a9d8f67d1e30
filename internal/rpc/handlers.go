package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/Klingon-tech/embarcadero/internal/chain"
	"github.com/Klingon-tech/embarcadero/internal/storage"
	"github.com/Klingon-tech/embarcadero/internal/swap"
	"github.com/Klingon-tech/embarcadero/pkg/helpers"
)

// ErrNotConfigured is returned by methods whose backing service is disabled.
var ErrNotConfigured = errors.New("not configured")

// ========================================
// Swap session
// ========================================

// SummaryResult is a summary with display-ready amounts.
type SummaryResult struct {
	ReceiveSF bool   `json:"receive_sf"`
	ReceiveSC bool   `json:"receive_sc"`
	PayFee    bool   `json:"pay_fee"`
	AmountSC  string `json:"amount_sc"`
	AmountSF  string `json:"amount_sf"`
	AmountFee string `json:"amount_fee"`
	Stage     int    `json:"stage"`

	// Formatted amounts, e.g. "1.5 KS".
	DisplaySC  string `json:"display_sc"`
	DisplaySF  string `json:"display_sf"`
	DisplayFee string `json:"display_fee"`
}

// StatusResult is the result of swap_status and of every mutating method.
type StatusResult struct {
	SessionID        string            `json:"session_id"`
	ID               string            `json:"id,omitempty"`
	Status           swap.Status       `json:"status"`
	Description      string            `json:"description,omitempty"`
	Route            swap.Route        `json:"route"`
	OwnStep          swap.Step         `json:"own_step,omitempty"`
	CounterpartyStep swap.Step         `json:"counterparty_step,omitempty"`
	Summary          *SummaryResult    `json:"summary,omitempty"`
	Transaction      *swap.Transaction `json:"transaction,omitempty"`
	IsValidating     bool              `json:"is_validating"`
	Polling          bool              `json:"polling"`
	Failed           bool              `json:"failed"`
	FileReadError    string            `json:"file_read_error,omitempty"`
	TransactionError string            `json:"transaction_error,omitempty"`
}

// LoadParams is the request for swap_load.
type LoadParams struct {
	Transaction json.RawMessage `json:"transaction"`
}

// LoadFileParams is the request for swap_loadFile.
type LoadFileParams struct {
	Path string `json:"path"`
}

// CreateParams is the request for swap_create.
type CreateParams struct {
	Offer   string `json:"offer"`
	Receive string `json:"receive"`
}

// SignParams is the request for swap_sign.
type SignParams struct {
	Step string `json:"step"`
}

// NavigateParams is the request for swap_navigate.
type NavigateParams struct {
	Route string `json:"route"`
}

// ExportParams is the request for swap_export. With Write set the file is
// also written to Dir, or the server's export directory.
type ExportParams struct {
	Write bool   `json:"write,omitempty"`
	Dir   string `json:"dir,omitempty"`
}

// ExportResult is the result of swap_export.
type ExportResult struct {
	Name        string          `json:"name"`
	Path        string          `json:"path,omitempty"`
	Transaction json.RawMessage `json:"transaction"`
}

func (s *Server) swapStatus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return s.statusResult(), nil
}

func (s *Server) swapLoad(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p LoadParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
	}

	// Raw bytes go through the same validation as a file.
	if err := s.session.LoadReader(ctx, bytes.NewReader(p.Transaction)); err != nil {
		return nil, err
	}
	return s.statusResult(), nil
}

func (s *Server) swapLoadFile(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p LoadFileParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
	}
	if p.Path == "" {
		return nil, &Error{Code: InvalidParams, Message: "path is required"}
	}

	if err := s.session.LoadFile(ctx, p.Path); err != nil {
		return nil, err
	}
	return s.statusResult(), nil
}

func (s *Server) swapCreate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p CreateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
	}

	if err := s.session.Create(ctx, p.Offer, p.Receive); err != nil {
		return nil, err
	}
	return s.statusResult(), nil
}

func (s *Server) swapSign(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SignParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
	}
	step, err := swap.ParseStep(p.Step)
	if err != nil {
		return nil, err
	}

	if err := s.session.Sign(ctx, step); err != nil {
		return nil, err
	}
	return s.statusResult(), nil
}

func (s *Server) swapReset(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.session.Reset()
	return s.statusResult(), nil
}

func (s *Server) swapExport(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ExportParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
		}
	}

	file, err := s.session.Export()
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, swap.ErrNoTransaction
	}

	result := &ExportResult{Name: file.Name, Transaction: file.Data}
	if p.Write {
		dir := p.Dir
		if dir == "" {
			dir = s.exportDir
		}
		path, err := file.WriteTo(dir)
		if err != nil {
			return nil, err
		}
		result.Path = path
		s.log.Info("Transaction exported", "path", path)
	}
	return result, nil
}

func (s *Server) swapNavigate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p NavigateParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
	}
	route, err := swap.ParseRoute(p.Route)
	if err != nil {
		return nil, err
	}

	s.session.Navigate(route)
	return s.statusResult(), nil
}

func (s *Server) swapDismissError(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.session.DismissError()
	return s.statusResult(), nil
}

func (s *Server) statusResult() *StatusResult {
	st := s.session.Snapshot()

	result := &StatusResult{
		SessionID:    st.SessionID,
		ID:           st.ID,
		Status:       st.Status,
		Description:  st.Status.Description(),
		Route:        st.Route,
		Transaction:  st.Transaction,
		IsValidating: st.IsValidating,
		Polling:      st.Polling,
		Failed:       st.Failed,
	}
	if step, ok := st.Status.OwnStep(); ok {
		result.OwnStep = step
	}
	if step, ok := st.Status.CounterpartyStep(); ok {
		result.CounterpartyStep = step
	}
	if st.Summary != nil {
		result.Summary = &SummaryResult{
			ReceiveSF:  st.Summary.ReceiveSF,
			ReceiveSC:  st.Summary.ReceiveSC,
			PayFee:     st.Summary.PayFee,
			AmountSC:   st.Summary.AmountSC.String(),
			AmountSF:   st.Summary.AmountSF.String(),
			AmountFee:  st.Summary.AmountFee.String(),
			Stage:      st.Summary.Stage,
			DisplaySC:  helpers.FormatSiacoins(st.Summary.AmountSC),
			DisplaySF:  helpers.FormatSiafunds(st.Summary.AmountSF),
			DisplayFee: helpers.FormatSiacoins(st.Summary.AmountFee),
		}
	}
	if st.FileReadError != nil {
		result.FileReadError = st.FileReadError.Error()
	}
	if st.TransactionError != nil {
		result.TransactionError = st.TransactionError.Error()
	}
	return result
}

// ========================================
// Journal
// ========================================

// HistoryParams is the request for swap_history.
type HistoryParams struct {
	Limit int `json:"limit,omitempty"`
}

// HistoryResult is the result of swap_history.
type HistoryResult struct {
	Swaps     []*storage.SwapRecord `json:"swaps"`
	Pending   int                   `json:"pending"`
	Completed int                   `json:"completed"`
}

// EventsParams is the request for swap_events.
type EventsParams struct {
	SwapID string `json:"swap_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) swapHistory(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.store == nil {
		return nil, &Error{Code: InternalError, Message: "swap journal " + ErrNotConfigured.Error()}
	}

	var p HistoryParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
		}
	}

	swaps, err := s.store.ListSwaps(p.Limit)
	if err != nil {
		return nil, err
	}
	pending, completed, err := s.store.SwapCount()
	if err != nil {
		return nil, err
	}
	if swaps == nil {
		swaps = []*storage.SwapRecord{}
	}
	return &HistoryResult{Swaps: swaps, Pending: pending, Completed: completed}, nil
}

func (s *Server) swapEvents(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.store == nil {
		return nil, &Error{Code: InternalError, Message: "swap journal " + ErrNotConfigured.Error()}
	}

	var p EventsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &Error{Code: InvalidParams, Message: "invalid params: " + err.Error()}
		}
	}

	events, err := s.store.ListEvents(p.SwapID, p.Limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*storage.EventRecord{}
	}
	return events, nil
}

// ========================================
// Chain
// ========================================

// ConsensusResult is the result of chain_consensus.
type ConsensusResult struct {
	chain.Reading
	Error string `json:"error,omitempty"`
}

func (s *Server) chainConsensus(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.consensus == nil {
		return nil, &Error{Code: InternalError, Message: "consensus monitor " + ErrNotConfigured.Error()}
	}

	reading, ok := s.consensus.Latest()
	result := &ConsensusResult{Reading: reading}
	if err := s.consensus.Err(); err != nil {
		result.Error = err.Error()
	}
	if !ok && result.Error == "" {
		result.Error = "no reading yet"
	}
	return result, nil
}

func (s *Server) rpcMethods(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.mu.RLock()
	methods := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		methods = append(methods, name)
	}
	s.mu.RUnlock()
	sort.Strings(methods)
	return map[string]interface{}{"version": Version, "methods": methods}, nil
}
