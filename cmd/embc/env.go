package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/Klingon-tech/embarcadero/internal/backend"
	"github.com/Klingon-tech/embarcadero/internal/config"
	"github.com/Klingon-tech/embarcadero/internal/storage"
	"github.com/Klingon-tech/embarcadero/internal/swap"
	"github.com/Klingon-tech/embarcadero/pkg/helpers"
	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

// env carries what every command needs.
type env struct {
	session *swap.Session
	store   *storage.Storage
	in      *bufio.Reader
	out     io.Writer
	outDir  string
	yes     bool
}

func newEnv(ctx *cli.Context) (*env, func(), error) {
	log := logging.New(&logging.Config{Level: ctx.String(logLevelFlag.Name)})
	logging.SetDefault(log)

	store, err := storage.New(&storage.Config{DataDir: config.ExpandPath(ctx.String(dataDirFlag.Name))})
	if err != nil {
		return nil, nil, err
	}

	interval := 5 * time.Second
	if ctx.IsSet("interval") {
		interval = ctx.Duration("interval")
	}

	client := backend.NewClient(&backend.Config{
		URL:    ctx.String(remoteFlag.Name),
		Logger: log.Component("backend"),
	})
	session := swap.NewSession(&swap.SessionConfig{
		Remote:       client,
		PollInterval: interval,
		Logger:       log.Component("session"),
	})
	session.OnEvent(storage.NewJournal(store, log.Component("journal")).Handle)

	e := &env{
		session: session,
		store:   store,
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		outDir:  config.ExpandPath(ctx.String(outDirFlag.Name)),
		yes:     ctx.Bool(yesFlag.Name),
	}
	cleanup := func() {
		session.Close()
		store.Close()
	}
	return e, cleanup, nil
}

func (e *env) printf(format string, args ...interface{}) {
	fmt.Fprintf(e.out, format, args...)
}

func (e *env) println(args ...interface{}) {
	fmt.Fprintln(e.out, args...)
}

func (e *env) create(ctx context.Context, offer, receive string) error {
	if err := e.session.Create(ctx, offer, receive); err != nil {
		return err
	}
	e.printSummary()
	e.println()
	return e.printTransaction()
}

func (e *env) summary(ctx context.Context, path string) error {
	if err := e.session.LoadFile(ctx, path); err != nil {
		return err
	}
	e.printSummary()
	return nil
}

func (e *env) sign(ctx context.Context, step swap.Step, path string) error {
	if err := e.session.LoadFile(ctx, path); err != nil {
		return err
	}
	e.printSummary()

	st := e.session.Snapshot()
	if own, ok := st.Status.OwnStep(); !ok || own != step {
		return fmt.Errorf("cannot %s this swap: %s", step, strings.ToLower(st.Status.Description()))
	}

	e.println()
	prompt := "Accept this swap? [y/n]: "
	if step == swap.StepFinish {
		prompt = "Sign and broadcast this transaction? [y/n]: "
	}
	if !e.confirm(prompt) {
		return fmt.Errorf("swap cancelled")
	}

	if err := e.session.Sign(ctx, step); err != nil {
		return err
	}
	if step == swap.StepAccept {
		e.println("  Swap accepted!")
	} else {
		e.println("  Successfully broadcast swap transaction!")
	}
	e.println()
	return e.printTransaction()
}

// watch follows the swap until it is no longer waiting on the network.
func (e *env) watch(ctx context.Context, path string) error {
	updates := make(chan swap.Status, 8)
	e.session.OnEvent(func(ev swap.Event) {
		if ev.Type != swap.EventSummaryChanged {
			return
		}
		select {
		case updates <- ev.Status:
		default:
		}
	})

	if err := e.session.LoadFile(ctx, path); err != nil {
		return err
	}
	e.printSummary()

	status := e.session.Status()
	for status.IsNetworkPending() {
		e.printf("  %s, waiting...\n", status.Description())
		select {
		case <-ctx.Done():
			return nil
		case status = <-updates:
		}
	}
	e.println()
	e.printf("  %s\n", status.Description())
	return nil
}

func (e *env) history(limit int) error {
	swaps, err := e.store.ListSwaps(limit)
	if err != nil {
		return err
	}
	if len(swaps) == 0 {
		e.println("No swaps yet.")
		return nil
	}

	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSC\tSF\tUPDATED")
	for _, rec := range swaps {
		sc, _ := decimal.NewFromString(rec.AmountSC)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s SF\t%s\n",
			helpers.ShortID(rec.ID, 12),
			statusDescription(rec.Status),
			helpers.FormatSiacoins(sc),
			rec.AmountSF,
			rec.UpdatedAt.Format(time.DateTime),
		)
	}
	return w.Flush()
}

func statusDescription(s string) string {
	return swap.Status(s).Description()
}

func (e *env) printSummary() {
	st := e.session.Snapshot()
	s := st.Summary
	if s == nil {
		return
	}

	ours, theirs := helpers.FormatSiacoins(s.AmountSC), helpers.FormatSiafunds(s.AmountSF)
	if s.ReceiveSF {
		ours, theirs = theirs, ours
	}
	e.println("Swap summary:")
	e.println("  You receive           ", ours)
	e.println("  Counterparty receives ", theirs)
	e.println("  Stage                 ", st.Status.Description())
	if s.PayFee {
		e.println()
		e.printf("  You will also pay the %s transaction fee.\n", helpers.FormatSiacoins(s.AmountFee))
	}
}

// printTransaction writes the transaction file and tells the user what the
// counterparty has to run next.
func (e *env) printTransaction() error {
	file, err := e.session.Export()
	if err != nil {
		return err
	}
	if file == nil {
		return swap.ErrNoTransaction
	}
	path, err := file.WriteTo(e.outDir)
	if err != nil {
		return err
	}

	st := e.session.Snapshot()
	e.println("Transaction:")
	e.println("  ID:   ", st.ID)
	e.println("  File: ", path)
	e.println()

	step, ok := st.Status.CounterpartyStep()
	if !ok {
		return nil
	}
	e.println("To proceed, send your counterparty the transaction file and ask them to run the following command:")
	e.println()
	e.println("  embc", step, file.Name)
	e.println()
	return nil
}

func (e *env) confirm(prompt string) bool {
	if e.yes {
		return true
	}
	e.printf("%s", prompt)
	resp, _ := e.in.ReadString('\n')
	e.println()
	return strings.EqualFold(strings.TrimSpace(resp), "y")
}
