// Package main provides embc, the command line swap client.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "0.1.0-dev"

var (
	remoteFlag = &cli.StringFlag{
		Name:    "remote",
		Usage:   "swap service URL",
		Value:   "http://localhost:8080",
		EnvVars: []string{"EMBC_REMOTE"},
	}
	dataDirFlag = &cli.StringFlag{
		Name:    "data-dir",
		Usage:   "directory holding the swap journal",
		Value:   "~/.embarcadero",
		EnvVars: []string{"EMBC_DATA_DIR"},
	}
	outDirFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "directory for transaction files",
		Value: ".",
	}
	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "do not ask for confirmation",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level (debug, info, warn, error)",
		Value: "warn",
	}
)

func main() {
	app := cli.NewApp()

	app.Version = version
	app.Name = "embc"
	app.Usage = "escrow-less siacoin/siafund swaps"
	app.Flags = []cli.Flag{remoteFlag, dataDirFlag, outDirFlag, yesFlag, logLevelFlag}
	app.Commands = append(
		app.Commands,
		&createCmd,
		&acceptCmd,
		&finishCmd,
		&summaryCmd,
		&watchCmd,
		&historyCmd,
	)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[embc] %v\n", err)
	os.Exit(1)
}
