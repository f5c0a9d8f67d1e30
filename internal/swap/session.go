package swap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Klingon-tech/embarcadero/pkg/helpers"
	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

// Session owns the swap currently being negotiated. All state is guarded
// by one mutex; remote calls run outside it and their results are applied
// only if no newer request was issued in the meantime.
type Session struct {
	sessionID    string
	remote       Remote
	nav          Navigator
	poller       *Poller
	exportPrefix string
	onPollTick   func()
	log          *logging.Logger

	mu               sync.Mutex
	swapID           string
	txn              *Transaction
	summary          *Summary
	fingerprint      uint64
	route            Route
	validating       int
	fileReadError    error
	transactionError error
	failed           bool
	closed           bool
	seq              uint64
	handlers         []EventHandler
}

// SessionConfig holds configuration for a Session.
type SessionConfig struct {
	Remote       Remote
	Navigator    Navigator     // optional
	PollInterval time.Duration // default 5s
	PollTimeout  time.Duration // per tick, default 30s
	ExportPrefix string        // default "embc_txn"
	InitialRoute Route         // default home
	OnPollTick   func()        // optional, called before each poll
	Logger       *logging.Logger
}

// State is a read-only snapshot of a session.
type State struct {
	SessionID        string
	ID               string
	Transaction      *Transaction
	Summary          *Summary
	Status           Status
	Route            Route
	IsValidating     bool
	Polling          bool
	Failed           bool
	FileReadError    error
	TransactionError error
}

// NewSession creates an empty session.
func NewSession(cfg *SessionConfig) *Session {
	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault().Component("session")
	}
	prefix := cfg.ExportPrefix
	if prefix == "" {
		prefix = DefaultExportPrefix
	}
	route := cfg.InitialRoute
	if route == "" {
		route = RouteHome
	}

	s := &Session{
		sessionID:    uuid.NewString(),
		remote:       cfg.Remote,
		nav:          cfg.Navigator,
		exportPrefix: prefix,
		onPollTick:   cfg.OnPollTick,
		log:          log,
		route:        route,
	}
	s.poller = NewPoller(&PollerConfig{
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollTimeout,
		Tick:     s.pollTick,
		Logger:   log,
	})
	return s
}

// ID returns the session identifier (not the swap transaction ID).
func (s *Session) ID() string {
	return s.sessionID
}

// OnEvent registers an event handler.
func (s *Session) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// Status returns the canonical status derived from the current summary
// and route.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Route returns the route the session believes the UI is showing.
func (s *Session) Route() Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		SessionID:        s.sessionID,
		ID:               s.swapID,
		Transaction:      s.txn,
		Summary:          s.summary,
		Status:           s.statusLocked(),
		Route:            s.route,
		IsValidating:     s.validating > 0,
		Polling:          s.poller.State() == PollerPolling,
		Failed:           s.failed,
		FileReadError:    s.fileReadError,
		TransactionError: s.transactionError,
	}
}

// LoadFile reads, validates and loads a transaction file.
func (s *Session) LoadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return s.rejectFile(fmt.Errorf("%w: %v", ErrFileRead, err))
	}
	defer f.Close()
	return s.LoadReader(ctx, f)
}

// LoadReader validates the transaction read from r and loads it. On any
// read or validation failure only fileReadError changes and no remote
// call is made.
func (s *Session) LoadReader(ctx context.Context, r io.Reader) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.validating++
	s.mu.Unlock()

	raw, err := io.ReadAll(r)
	var txn *Transaction
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrFileRead, err)
	} else {
		txn, err = Validate(raw)
	}
	if err != nil {
		s.mu.Lock()
		s.validating--
		s.mu.Unlock()
		return s.rejectFile(err)
	}

	// The validating count is handed over to load.
	return s.load(ctx, txn, true, nil)
}

// LoadTransaction summarizes txn and, if this is still the most recent
// request, replaces id, summary and transaction together.
func (s *Session) LoadTransaction(ctx context.Context, txn *Transaction) error {
	return s.load(ctx, txn, false, nil)
}

// load summarizes and commits txn. When since is set, the load is the
// continuation of an earlier request and is dropped if the session moved
// on after that request was issued.
func (s *Session) load(ctx context.Context, txn *Transaction, counted bool, since *uint64) error {
	s.mu.Lock()
	if txn == nil {
		if counted {
			s.validating--
		}
		s.mu.Unlock()
		return ErrNoTransaction
	}
	if err := s.usableLocked(); err != nil {
		if counted {
			s.validating--
		}
		s.mu.Unlock()
		return err
	}
	if since != nil && *since != s.seq {
		if counted {
			s.validating--
		}
		s.mu.Unlock()
		return ErrSuperseded
	}
	if !counted {
		s.validating++
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	res, err := s.remote.Summarize(ctx, txn)

	s.mu.Lock()
	s.validating--

	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if seq != s.seq {
		events := s.reconcileLocked(nil)
		s.unlockAndDispatch(events)
		return ErrSuperseded
	}

	var events []Event
	if err != nil {
		s.transactionError = fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
		retErr := s.transactionError
		events = append(events, s.eventLocked(EventTransactionError, retErr))
		events = s.reconcileLocked(events)
		s.unlockAndDispatch(events)
		s.log.Warn("Summarization failed", "error", err)
		return retErr
	}
	if res == nil {
		s.transactionError = fmt.Errorf("%w: empty response", ErrSummarizationFailed)
		retErr := s.transactionError
		events = append(events, s.eventLocked(EventTransactionError, retErr))
		events = s.reconcileLocked(events)
		s.unlockAndDispatch(events)
		return retErr
	}

	if _, err := StageStatus(res.Summary.Stage); err != nil {
		s.failed = true
		s.transactionError = err
		events = append(events, s.eventLocked(EventTransactionError, err))
		events = s.reconcileLocked(events)
		s.unlockAndDispatch(events)
		s.log.Error("Remote reported unknown stage", "id", res.ID, "stage", res.Summary.Stage)
		return err
	}

	summary := res.Summary
	fp, hashErr := fingerprint(res.ID, &summary)
	changed := hashErr != nil || s.summary == nil || fp != s.fingerprint

	s.swapID = res.ID
	s.summary = &summary
	s.txn = txn
	s.fingerprint = fp
	s.fileReadError = nil

	if changed {
		events = append(events, s.eventLocked(EventSummaryChanged, nil))
	}
	events = s.reconcileLocked(events)
	status := s.statusLocked()
	s.unlockAndDispatch(events)

	if changed {
		s.log.Info("Swap loaded", "id", helpers.ShortID(res.ID, 12), "stage", summary.Stage, "status", status)
	}
	return nil
}

// Sign asks the remote to sign the current transaction for step and loads
// the result. On failure the current transaction and summary are kept.
func (s *Session) Sign(ctx context.Context, step Step) error {
	if !step.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStep, step)
	}

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	txn := s.txn
	seq := s.seq
	s.mu.Unlock()
	if txn == nil {
		return ErrNoTransaction
	}

	updated, err := s.remote.Sign(ctx, step, txn)
	if err == nil && updated == nil {
		err = errors.New("empty response")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if seq != s.seq {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		s.transactionError = fmt.Errorf("%w: %v", ErrSignFailed, err)
		retErr := s.transactionError
		events := []Event{s.eventLocked(EventTransactionError, retErr)}
		s.unlockAndDispatch(events)
		s.log.Warn("Signing failed", "step", step, "error", err)
		return retErr
	}
	s.transactionError = nil
	s.mu.Unlock()

	s.log.Info("Transaction signed", "step", step)
	return s.load(ctx, updated, false, &seq)
}

// Create asks the remote to build a new swap offering offer in exchange
// for receive, then loads it.
func (s *Session) Create(ctx context.Context, offer, receive string) error {
	if _, _, err := helpers.ParsePair(offer, receive); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	seq := s.seq
	s.mu.Unlock()

	txn, err := s.remote.Create(ctx, offer, receive)
	if err == nil && txn == nil {
		err = errors.New("empty response")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if seq != s.seq {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		s.transactionError = fmt.Errorf("%w: %v", ErrCreateFailed, err)
		retErr := s.transactionError
		events := []Event{s.eventLocked(EventTransactionError, retErr)}
		s.unlockAndDispatch(events)
		return retErr
	}
	s.mu.Unlock()

	s.log.Info("Swap created", "offer", offer, "receive", receive)
	return s.load(ctx, txn, false, &seq)
}

// Reset clears the loaded swap. Responses to requests issued before the
// reset are discarded.
func (s *Session) Reset() {
	s.mu.Lock()
	s.seq++
	s.swapID = ""
	s.txn = nil
	s.summary = nil
	s.fingerprint = 0
	s.transactionError = nil
	s.failed = false

	events := []Event{s.eventLocked(EventSessionReset, nil)}
	events = s.reconcileLocked(events)
	s.unlockAndDispatch(events)
}

// DismissError clears both error conditions. A failed session stays failed
// until Reset.
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileReadError = nil
	s.transactionError = nil
}

// Navigate records the route the UI is showing and redirects if that route
// cannot display the current status.
func (s *Session) Navigate(route Route) {
	s.mu.Lock()
	s.route = route
	events := s.reconcileLocked(nil)
	s.unlockAndDispatch(events)
}

// Close stops polling and rejects further operations.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.seq++
	var events []Event
	if s.poller.Stop() {
		events = append(events, s.eventLocked(EventPollingStopped, nil))
	}
	s.unlockAndDispatch(events)

	s.poller.Close()
}

// pollTick re-summarizes whatever transaction is current at tick time.
func (s *Session) pollTick(ctx context.Context) {
	s.mu.Lock()
	txn := s.txn
	s.mu.Unlock()
	if txn == nil {
		return
	}
	if s.onPollTick != nil {
		s.onPollTick()
	}
	if err := s.LoadTransaction(ctx, txn); err != nil && !errors.Is(err, ErrSuperseded) {
		s.log.Debug("Poll failed", "error", err)
	}
}

func (s *Session) usableLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.failed {
		return ErrSessionFailed
	}
	return nil
}

func (s *Session) rejectFile(err error) error {
	s.mu.Lock()
	s.fileReadError = err
	events := []Event{s.eventLocked(EventFileRejected, err)}
	events = s.reconcileLocked(events)
	s.unlockAndDispatch(events)
	s.log.Warn("Transaction file rejected", "error", err)
	return err
}

func (s *Session) statusLocked() Status {
	var stage *int
	if s.summary != nil {
		st := s.summary.Stage
		stage = &st
	}
	status, err := ResolveStatus(stage, LocalStatusFor(s.route))
	if err != nil {
		// Unknown stages are never committed.
		return StatusNone
	}
	return status
}

// reconcileLocked drives polling and route enforcement from the current
// status and returns the resulting events appended to events.
func (s *Session) reconcileLocked(events []Event) []Event {
	status := s.statusLocked()

	if s.txn != nil && status.IsNetworkPending() && !s.failed && !s.closed {
		if s.poller.Start() {
			events = append(events, s.eventLocked(EventPollingStarted, nil))
		}
	} else if s.poller.Stop() {
		events = append(events, s.eventLocked(EventPollingStopped, nil))
	}

	if s.failed {
		return events
	}
	if target, ok := EnforceRoute(s.route, status, s.validating > 0); ok {
		s.route = target
		events = append(events, s.eventLocked(EventRouteRedirect, nil))
	}
	return events
}

func (s *Session) eventLocked(eventType EventType, err error) Event {
	ev := Event{
		Type:        eventType,
		SessionID:   s.sessionID,
		SwapID:      s.swapID,
		Status:      s.statusLocked(),
		Route:       s.route,
		Summary:     s.summary,
		Transaction: s.txn,
		Timestamp:   time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// unlockAndDispatch releases s.mu and delivers events: redirects go to the
// navigator first, then every event goes to each handler.
func (s *Session) unlockAndDispatch(events []Event) {
	handlers := make([]EventHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, ev := range events {
		if ev.Type == EventRouteRedirect && s.nav != nil {
			s.nav.Redirect(ev.Route)
		}
		for _, handler := range handlers {
			handler(ev)
		}
	}
}
