package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Klingon-tech/embarcadero/internal/swap"
)

var (
	createCmd = cli.Command{
		Name:      "create",
		Usage:     "create a swap offering one amount for another, e.g. create 100KS 1SF",
		ArgsUsage: "<offer> <receive>",
		Action:    createAction,
	}
	acceptCmd = cli.Command{
		Name:      "accept",
		Usage:     "accept a swap proposed by the counterparty",
		ArgsUsage: "<file>",
		Action:    acceptAction,
	}
	finishCmd = cli.Command{
		Name:      "finish",
		Usage:     "sign and broadcast an accepted swap",
		ArgsUsage: "<file>",
		Action:    finishAction,
	}
	summaryCmd = cli.Command{
		Name:      "summary",
		Usage:     "show the summary of a swap transaction file",
		ArgsUsage: "<file>",
		Action:    summaryAction,
	}
	watchCmd = cli.Command{
		Name:      "watch",
		Usage:     "follow a broadcast swap until it is confirmed",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "how often to refresh the swap status",
				Value: 5 * time.Second,
			},
		},
		Action: watchAction,
	}
	historyCmd = cli.Command{
		Name:  "history",
		Usage: "list journaled swaps",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "maximum number of swaps",
				Value: 20,
			},
		},
		Action: historyAction,
	}
)

var errUsage = errors.New("wrong number of arguments")

func requireArgs(ctx *cli.Context, n int) error {
	if ctx.NArg() != n {
		cli.ShowCommandHelp(ctx, ctx.Command.Name)
		return errUsage
	}
	return nil
}

func createAction(ctx *cli.Context) error {
	if err := requireArgs(ctx, 2); err != nil {
		return err
	}
	env, cleanup, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return env.create(ctx.Context, ctx.Args().Get(0), ctx.Args().Get(1))
}

func acceptAction(ctx *cli.Context) error {
	return signAction(ctx, swap.StepAccept)
}

func finishAction(ctx *cli.Context) error {
	return signAction(ctx, swap.StepFinish)
}

func signAction(ctx *cli.Context, step swap.Step) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	env, cleanup, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return env.sign(ctx.Context, step, ctx.Args().Get(0))
}

func summaryAction(ctx *cli.Context) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	env, cleanup, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return env.summary(ctx.Context, ctx.Args().Get(0))
}

func watchAction(ctx *cli.Context) error {
	if err := requireArgs(ctx, 1); err != nil {
		return err
	}
	env, cleanup, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return env.watch(sigCtx, ctx.Args().Get(0))
}

func historyAction(ctx *cli.Context) error {
	env, cleanup, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	return env.history(ctx.Int("limit"))
}
