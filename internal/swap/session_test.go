package swap

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

// fakeRemote answers Summarize from a per-transaction table. Calls for a
// gated transaction block until the gate is closed.
type fakeRemote struct {
	mu            sync.Mutex
	results       map[*Transaction]*SummarizeResult
	fallback      *SummarizeResult
	gates         map[*Transaction]chan struct{}
	summarizeErr  error
	summarized    []*Transaction
	signResult    *Transaction
	signErr       error
	signCalls     []Step
	createResult  *Transaction
	createErr     error
	createCalls   int
	createdOffers []string

	// signGate and createGate hold Sign and Create until closed.
	signGate   chan struct{}
	createGate chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		results: make(map[*Transaction]*SummarizeResult),
		gates:   make(map[*Transaction]chan struct{}),
	}
}

func (f *fakeRemote) setResult(txn *Transaction, id string, stage int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[txn] = &SummarizeResult{
		ID: id,
		Summary: Summary{
			ReceiveSF: true,
			AmountSC:  decimal.RequireFromString("1000000000000000000000000000"),
			AmountSF:  decimal.NewFromInt(1),
			AmountFee: decimal.RequireFromString("5000000000000000000000000"),
			Stage:     stage,
		},
	}
}

func (f *fakeRemote) gate(txn *Transaction) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[txn] = ch
	return ch
}

func (f *fakeRemote) signCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signCalls)
}

func (f *fakeRemote) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func (f *fakeRemote) summarizeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.summarized)
}

func (f *fakeRemote) Summarize(ctx context.Context, txn *Transaction) (*SummarizeResult, error) {
	f.mu.Lock()
	f.summarized = append(f.summarized, txn)
	gate := f.gates[txn]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summarizeErr != nil {
		return nil, f.summarizeErr
	}
	res, ok := f.results[txn]
	if !ok {
		res = f.fallback
	}
	if res == nil {
		return nil, errors.New("unknown transaction")
	}
	cp := *res
	return &cp, nil
}

func (f *fakeRemote) Sign(ctx context.Context, step Step, txn *Transaction) (*Transaction, error) {
	f.mu.Lock()
	f.signCalls = append(f.signCalls, step)
	gate := f.signGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr != nil {
		return nil, f.signErr
	}
	return f.signResult, nil
}

func (f *fakeRemote) Create(ctx context.Context, offer, receive string) (*Transaction, error) {
	f.mu.Lock()
	f.createCalls++
	f.createdOffers = append(f.createdOffers, offer+"/"+receive)
	gate := f.createGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createResult, nil
}

type mockNavigator struct {
	mock.Mock
}

func (m *mockNavigator) Redirect(to Route) {
	m.Called(to)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) count(eventType EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func testTxn(tag string) *Transaction {
	return &Transaction{
		SiacoinOutputs: []SiacoinOutput{{Value: "1", UnlockHash: tag}},
	}
}

func newTestSession(t *testing.T, remote Remote, nav Navigator, interval time.Duration) (*Session, *eventRecorder) {
	t.Helper()
	s := NewSession(&SessionConfig{
		Remote:       remote,
		Navigator:    nav,
		PollInterval: interval,
		Logger:       logging.Discard(),
	})
	rec := &eventRecorder{}
	s.OnEvent(rec.handle)
	t.Cleanup(s.Close)
	return s, rec
}

func TestLoadTransactionCommitsAtomically(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("a")
	remote.setResult(txn, "abcdef0123456789", 1)

	s, rec := newTestSession(t, remote, nil, time.Hour)
	require.NoError(t, s.LoadTransaction(context.Background(), txn))

	st := s.Snapshot()
	assert.Equal(t, "abcdef0123456789", st.ID)
	assert.Same(t, txn, st.Transaction)
	require.NotNil(t, st.Summary)
	assert.Equal(t, 1, st.Summary.Stage)
	assert.Equal(t, StatusWaitingForYouToAccept, st.Status)
	assert.Equal(t, RouteSwap, st.Route)
	assert.Equal(t, RouteFor(st.Status), st.Route)
	assert.False(t, st.IsValidating)
	assert.False(t, st.Polling)
	assert.Equal(t, 1, rec.count(EventSummaryChanged))
	assert.Equal(t, 1, rec.count(EventRouteRedirect))
}

func TestLoadTransactionFailureKeepsState(t *testing.T) {
	remote := newFakeRemote()
	good := testTxn("good")
	remote.setResult(good, "good-id", 3)

	s, rec := newTestSession(t, remote, nil, time.Hour)
	require.NoError(t, s.LoadTransaction(context.Background(), good))
	before := s.Snapshot()

	remote.mu.Lock()
	remote.summarizeErr = errors.New("connection refused")
	remote.mu.Unlock()

	err := s.LoadTransaction(context.Background(), testTxn("other"))
	require.ErrorIs(t, err, ErrSummarizationFailed)

	after := s.Snapshot()
	assert.Equal(t, before.ID, after.ID)
	assert.Same(t, before.Transaction, after.Transaction)
	assert.Same(t, before.Summary, after.Summary)
	assert.Equal(t, before.Status, after.Status)
	assert.ErrorIs(t, after.TransactionError, ErrSummarizationFailed)
	assert.Equal(t, 1, rec.count(EventTransactionError))

	s.DismissError()
	assert.NoError(t, s.Snapshot().TransactionError)
}

func TestLoadTransactionRejectsStaleResponse(t *testing.T) {
	remote := newFakeRemote()
	txnA, txnB := testTxn("a"), testTxn("b")
	remote.setResult(txnA, "aaaaaa", 3)
	remote.setResult(txnB, "bbbbbb", 1)
	gateA := remote.gate(txnA)

	s, _ := newTestSession(t, remote, nil, time.Hour)

	errA := make(chan error, 1)
	go func() {
		errA <- s.LoadTransaction(context.Background(), txnA)
	}()
	require.Eventually(t, func() bool { return remote.summarizeCount() == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.Snapshot().IsValidating)

	require.NoError(t, s.LoadTransaction(context.Background(), txnB))
	close(gateA)

	select {
	case err := <-errA:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("first load did not return")
	}

	st := s.Snapshot()
	assert.Equal(t, "bbbbbb", st.ID)
	assert.Same(t, txnB, st.Transaction)
	assert.Equal(t, StatusWaitingForYouToAccept, st.Status)
	assert.False(t, st.IsValidating)
}

func TestResetDiscardsInFlightResponse(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("a")
	remote.setResult(txn, "aaaaaa", 1)
	gate := remote.gate(txn)

	s, rec := newTestSession(t, remote, nil, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.LoadTransaction(context.Background(), txn)
	}()
	require.Eventually(t, func() bool { return remote.summarizeCount() == 1 }, time.Second, time.Millisecond)

	s.Reset()
	close(gate)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)

	st := s.Snapshot()
	assert.Empty(t, st.ID)
	assert.Nil(t, st.Transaction)
	assert.Nil(t, st.Summary)
	assert.Equal(t, StatusNone, st.Status)
	assert.Equal(t, 1, rec.count(EventSessionReset))
}

func TestResetClearsSwap(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("a")
	remote.setResult(txn, "aaaaaa", 5)

	s, rec := newTestSession(t, remote, nil, time.Hour)
	require.NoError(t, s.LoadTransaction(context.Background(), txn))
	require.True(t, s.Snapshot().Polling)

	s.Navigate(RouteCreate)
	assert.Equal(t, RouteSwap, s.Route(), "a loaded swap pins the route")

	s.Reset()
	st := s.Snapshot()
	assert.Empty(t, st.ID)
	assert.Nil(t, st.Transaction)
	assert.Nil(t, st.Summary)
	assert.NoError(t, st.TransactionError)
	assert.False(t, st.Polling)
	assert.Equal(t, StatusNone, st.Status)
	assert.Equal(t, RouteHome, st.Route)
	assert.Equal(t, 1, rec.count(EventPollingStopped))

	s.Navigate(RouteCreate)
	assert.Equal(t, StatusCreatingNewSwap, s.Status())
	assert.Equal(t, RouteCreate, s.Route())
}

func TestRouteEnforcementRedirectsOncePerMismatch(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("a")
	remote.setResult(txn, "aaaaaa", 2)

	nav := &mockNavigator{}
	nav.On("Redirect", RouteSwap).Return()

	s, rec := newTestSession(t, remote, nav, time.Hour)

	require.NoError(t, s.LoadTransaction(context.Background(), txn))
	nav.AssertNumberOfCalls(t, "Redirect", 1)

	require.NoError(t, s.LoadTransaction(context.Background(), txn))
	nav.AssertNumberOfCalls(t, "Redirect", 1)

	s.Navigate(RouteHome)
	nav.AssertNumberOfCalls(t, "Redirect", 2)
	assert.Equal(t, RouteSwap, s.Route())

	s.Navigate(RouteSwap)
	nav.AssertNumberOfCalls(t, "Redirect", 2)
	assert.Equal(t, 2, rec.count(EventRouteRedirect))
	nav.AssertExpectations(t)
}

func TestNoRedirectWhileValidating(t *testing.T) {
	remote := newFakeRemote()
	current, next := testTxn("current"), testTxn("next")
	remote.setResult(current, "cccccc", 1)
	remote.setResult(next, "nnnnnn", 3)

	nav := &mockNavigator{}
	nav.On("Redirect", RouteSwap).Return()

	s, _ := newTestSession(t, remote, nav, time.Hour)
	require.NoError(t, s.LoadTransaction(context.Background(), current))
	nav.AssertNumberOfCalls(t, "Redirect", 1)

	// Hold the next summarize call open and move to the input route.
	gate := remote.gate(next)
	done := make(chan error, 1)
	go func() { done <- s.LoadTransaction(context.Background(), next) }()
	require.Eventually(t, func() bool { return remote.summarizeCount() == 2 }, time.Second, time.Millisecond)

	s.Navigate(RouteInput)
	assert.Equal(t, RouteInput, s.Route())
	nav.AssertNumberOfCalls(t, "Redirect", 1)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, RouteSwap, s.Route())
	assert.Equal(t, StatusWaitingForYouToFinish, s.Status())
	nav.AssertNumberOfCalls(t, "Redirect", 2)
}

func TestLoadReaderRejectsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind error
		path string
	}{
		{"empty file", "", ErrEmptyFile, ""},
		{"malformed", "{not json", ErrMalformedFile, ""},
		{"output missing unlockhash", `{"siacoinOutputs": [{"value": "10"}]}`, ErrSchemaViolation, "siacoinOutputs.0.unlockhash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote()
			s, rec := newTestSession(t, remote, nil, time.Hour)
			s.Navigate(RouteInput)

			err := s.LoadReader(context.Background(), strings.NewReader(tt.raw))
			require.ErrorIs(t, err, tt.kind)
			if tt.path != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.path, verr.Path)
			}

			assert.Zero(t, remote.summarizeCount())
			st := s.Snapshot()
			assert.ErrorIs(t, st.FileReadError, tt.kind)
			assert.Nil(t, st.Transaction)
			assert.False(t, st.IsValidating)
			assert.Equal(t, RouteInput, st.Route)
			assert.Equal(t, 1, rec.count(EventFileRejected))
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embc_txn_abcdef.json")
	require.NoError(t, os.WriteFile(path, []byte(validTxnJSON), 0600))

	remote := newFakeRemote()
	remote.fallback = &SummarizeResult{ID: "abcdef99", Summary: Summary{Stage: 1}}

	s, _ := newTestSession(t, remote, nil, time.Hour)
	s.Navigate(RouteInput)

	err := s.LoadFile(context.Background(), filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, ErrFileRead)
	assert.ErrorIs(t, s.Snapshot().FileReadError, ErrFileRead)

	require.NoError(t, s.LoadFile(context.Background(), path))
	st := s.Snapshot()
	assert.Equal(t, "abcdef99", st.ID)
	require.NotNil(t, st.Transaction)
	assert.Len(t, st.Transaction.SiacoinInputs, 1)
	assert.NoError(t, st.FileReadError, "successful load clears the file error")
	assert.Equal(t, RouteSwap, st.Route)
}

func TestSignSuccessReplacesTransaction(t *testing.T) {
	remote := newFakeRemote()
	txn, signed := testTxn("a"), testTxn("signed")
	remote.setResult(txn, "aaaaaa", 1)
	remote.setResult(signed, "aaaaaa", 2)
	remote.signResult = signed

	s, _ := newTestSession(t, remote, nil, time.Hour)
	require.NoError(t, s.LoadTransaction(context.Background(), txn))

	require.NoError(t, s.Sign(context.Background(), StepAccept))
	st := s.Snapshot()
	assert.Same(t, signed, st.Transaction)
	assert.Equal(t, StatusWaitingForCounterpartyToAccept, st.Status)
	assert.Equal(t, []Step{StepAccept}, remote.signCalls)
}

func TestSignFailureKeepsState(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("a")
	remote.setResult(txn, "aaaaaa", 3)
	remote.signErr = errors.New("network unreachable")

	s, _ := newTestSession(t, remote, nil, time.Hour)
	require.NoError(t, s.LoadTransaction(context.Background(), txn))
	before := s.Snapshot()

	err := s.Sign(context.Background(), StepFinish)
	require.ErrorIs(t, err, ErrSignFailed)

	after := s.Snapshot()
	assert.Equal(t, before.ID, after.ID)
	assert.Same(t, before.Transaction, after.Transaction)
	assert.Same(t, before.Summary, after.Summary)
	assert.Equal(t, StatusWaitingForYouToFinish, after.Status)
	assert.ErrorIs(t, after.TransactionError, ErrSignFailed)
}

func TestSignPreconditions(t *testing.T) {
	s, _ := newTestSession(t, newFakeRemote(), nil, time.Hour)
	assert.ErrorIs(t, s.Sign(context.Background(), Step("broadcast")), ErrInvalidStep)
	assert.ErrorIs(t, s.Sign(context.Background(), StepAccept), ErrNoTransaction)
}

func TestPendingStatusPollsCurrentTransaction(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("pending")
	remote.setResult(txn, "pppppp", 5)

	var ticks sync.WaitGroup
	ticks.Add(1)
	var once sync.Once
	s := NewSession(&SessionConfig{
		Remote:       remote,
		PollInterval: 10 * time.Millisecond,
		OnPollTick:   func() { once.Do(ticks.Done) },
		Logger:       logging.Discard(),
	})
	rec := &eventRecorder{}
	s.OnEvent(rec.handle)
	defer s.Close()

	require.NoError(t, s.LoadTransaction(context.Background(), txn))
	assert.Equal(t, StatusTransactionPending, s.Status())
	assert.True(t, s.Snapshot().Polling)

	require.Eventually(t, func() bool { return remote.summarizeCount() >= 3 }, time.Second, 5*time.Millisecond)
	ticks.Wait()

	remote.mu.Lock()
	for _, called := range remote.summarized {
		assert.Same(t, txn, called)
	}
	remote.mu.Unlock()

	assert.Equal(t, 1, rec.count(EventPollingStarted))
	assert.Equal(t, 1, rec.count(EventSummaryChanged), "identical poll results are not reported")
}

func TestConfirmationStopsPollingOnce(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("pending")
	remote.setResult(txn, "pppppp", 5)

	s, rec := newTestSession(t, remote, nil, 10*time.Millisecond)
	require.NoError(t, s.LoadTransaction(context.Background(), txn))
	require.True(t, s.Snapshot().Polling)

	remote.setResult(txn, "pppppp", 6)
	require.Eventually(t, func() bool { return s.Status() == StatusTransactionConfirmed }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !s.Snapshot().Polling }, time.Second, 5*time.Millisecond)

	calls := remote.summarizeCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, remote.summarizeCount(), "no ticks after confirmation")
	assert.Equal(t, 1, rec.count(EventPollingStarted))
	assert.Equal(t, 1, rec.count(EventPollingStopped))
}

func TestUnknownStageFailsSession(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("a")
	remote.setResult(txn, "aaaaaa", 9)

	s, _ := newTestSession(t, remote, nil, time.Hour)
	err := s.LoadTransaction(context.Background(), txn)
	require.ErrorIs(t, err, ErrUnknownStage)

	st := s.Snapshot()
	assert.True(t, st.Failed)
	assert.Nil(t, st.Transaction)
	assert.ErrorIs(t, st.TransactionError, ErrUnknownStage)

	assert.ErrorIs(t, s.LoadTransaction(context.Background(), txn), ErrSessionFailed)

	s.Reset()
	remote.setResult(txn, "aaaaaa", 1)
	require.NoError(t, s.LoadTransaction(context.Background(), txn))
	assert.False(t, s.Snapshot().Failed)
}

func TestCreate(t *testing.T) {
	remote := newFakeRemote()
	created := testTxn("new")
	remote.setResult(created, "nnnnnn", 1)
	remote.createResult = created

	s, _ := newTestSession(t, remote, nil, time.Hour)
	s.Navigate(RouteCreate)

	require.Error(t, s.Create(context.Background(), "100SC", "200SC"))
	assert.Zero(t, remote.createCalls, "invalid pair never reaches the remote")

	require.NoError(t, s.Create(context.Background(), "100SC", "1SF"))
	assert.Equal(t, []string{"100SC/1SF"}, remote.createdOffers)
	st := s.Snapshot()
	assert.Same(t, created, st.Transaction)
	assert.Equal(t, RouteSwap, st.Route)

	remote.createErr = errors.New("insufficient funds")
	require.ErrorIs(t, s.Create(context.Background(), "1SF", "100SC"), ErrCreateFailed)
	assert.Same(t, created, s.Snapshot().Transaction)
}

func TestResetDiscardsInFlightSign(t *testing.T) {
	for _, failing := range []bool{false, true} {
		remote := newFakeRemote()
		txn, signed := testTxn("a"), testTxn("signed")
		remote.setResult(txn, "aaaaaaaa", 1)
		remote.setResult(signed, "aaaaaaaa", 2)
		remote.signResult = signed
		if failing {
			remote.signErr = errors.New("network unreachable")
		}
		remote.signGate = make(chan struct{})

		s, _ := newTestSession(t, remote, nil, time.Hour)
		require.NoError(t, s.LoadTransaction(context.Background(), txn))

		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Sign(context.Background(), StepAccept)
		}()
		require.Eventually(t, func() bool { return remote.signCount() == 1 }, time.Second, time.Millisecond)

		s.Reset()
		close(remote.signGate)
		assert.ErrorIs(t, <-errCh, ErrSuperseded)

		st := s.Snapshot()
		assert.Empty(t, st.ID)
		assert.Nil(t, st.Transaction)
		assert.Equal(t, StatusNone, st.Status)
		assert.NoError(t, st.TransactionError)
	}
}

func TestNewerLoadWinsOverInFlightSign(t *testing.T) {
	remote := newFakeRemote()
	txnA, signed, txnB := testTxn("a"), testTxn("signed"), testTxn("b")
	remote.setResult(txnA, "aaaaaaaa", 1)
	remote.setResult(signed, "aaaaaaaa", 2)
	remote.setResult(txnB, "bbbbbbbb", 3)
	remote.signResult = signed
	remote.signGate = make(chan struct{})

	s, _ := newTestSession(t, remote, nil, time.Hour)
	require.NoError(t, s.LoadTransaction(context.Background(), txnA))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Sign(context.Background(), StepAccept)
	}()
	require.Eventually(t, func() bool { return remote.signCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.LoadTransaction(context.Background(), txnB))
	close(remote.signGate)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)

	st := s.Snapshot()
	assert.Equal(t, "bbbbbbbb", st.ID)
	assert.Same(t, txnB, st.Transaction)
	assert.Equal(t, StatusWaitingForYouToFinish, st.Status)
}

func TestResetDiscardsInFlightCreate(t *testing.T) {
	for _, failing := range []bool{false, true} {
		remote := newFakeRemote()
		created := testTxn("new")
		remote.setResult(created, "nnnnnnnn", 1)
		remote.createResult = created
		if failing {
			remote.createErr = errors.New("insufficient funds")
		}
		remote.createGate = make(chan struct{})

		s, _ := newTestSession(t, remote, nil, time.Hour)

		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Create(context.Background(), "100SC", "1SF")
		}()
		require.Eventually(t, func() bool { return remote.createCount() == 1 }, time.Second, time.Millisecond)

		s.Reset()
		close(remote.createGate)
		assert.ErrorIs(t, <-errCh, ErrSuperseded)

		st := s.Snapshot()
		assert.Nil(t, st.Transaction)
		assert.NoError(t, st.TransactionError)
	}
}

func TestNewerLoadWinsOverInFlightCreate(t *testing.T) {
	remote := newFakeRemote()
	created, txnB := testTxn("new"), testTxn("b")
	remote.setResult(created, "nnnnnnnn", 1)
	remote.setResult(txnB, "bbbbbbbb", 3)
	remote.createResult = created
	remote.createGate = make(chan struct{})

	s, _ := newTestSession(t, remote, nil, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Create(context.Background(), "100SC", "1SF")
	}()
	require.Eventually(t, func() bool { return remote.createCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.LoadTransaction(context.Background(), txnB))
	close(remote.createGate)
	assert.ErrorIs(t, <-errCh, ErrSuperseded)

	st := s.Snapshot()
	assert.Equal(t, "bbbbbbbb", st.ID)
	assert.Same(t, txnB, st.Transaction)
}

func TestExport(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("export")
	remote.setResult(txn, "a1b2c3d4e5f6", 2)

	s, _ := newTestSession(t, remote, nil, time.Hour)

	f, err := s.Export()
	require.NoError(t, err)
	assert.Nil(t, f, "nothing to export before a swap is loaded")

	require.NoError(t, s.LoadTransaction(context.Background(), txn))
	f, err = s.Export()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "embc_txn_a1b2c3.json", f.Name)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(f.Data, &fields))
	for _, name := range []string{"siacoinInputs", "siafundInputs", "siacoinOutputs", "siafundOutputs", "signatures"} {
		assert.Contains(t, fields, name)
	}

	path, err := f.WriteTo(t.TempDir())
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	back, err := Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, txn.SiacoinOutputs, back.SiacoinOutputs)
}

func TestCloseRejectsOperations(t *testing.T) {
	remote := newFakeRemote()
	txn := testTxn("a")
	remote.setResult(txn, "aaaaaa", 4)

	s, rec := newTestSession(t, remote, nil, 10*time.Millisecond)
	require.NoError(t, s.LoadTransaction(context.Background(), txn))
	require.True(t, s.Snapshot().Polling)

	s.Close()
	s.Close()
	assert.False(t, s.Snapshot().Polling)
	assert.Equal(t, 1, rec.count(EventPollingStopped))
	assert.ErrorIs(t, s.LoadTransaction(context.Background(), txn), ErrSessionClosed)
	assert.ErrorIs(t, s.LoadReader(context.Background(), strings.NewReader(validTxnJSON)), ErrSessionClosed)
}
