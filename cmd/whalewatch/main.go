// Copyright 2025 The whalewatch Authors
// This file is part of whalewatch.
//
// whalewatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// whalewatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with whalewatch. If not, see <http://www.gnu.org/licenses/>.

// whalewatch is the multi-chain ERC-20 whale transfer monitor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/tos-network/whalewatch/config"
	"github.com/tos-network/whalewatch/monitor"
	"github.com/tos-network/whalewatch/params"
)

// Git SHA1 commit hash of the release (set via linker flags)
var gitCommit = ""
var gitDate = ""

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "TOML configuration file",
		Value:   "whalewatch.toml",
		Aliases: []string{"c"},
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
)

var app = &cli.App{
	Name:    "whalewatch",
	Usage:   "monitor ERC-20 whale transfers across chains",
	Version: params.VersionWithCommit(gitCommit, gitDate),
	Flags:   []cli.Flag{configFlag, verbosityFlag},
	Action:  run,
	Commands: []*cli.Command{
		runCommand,
		configCommand,
		cacheCommand,
		versionCommand,
	},
}

var runCommand = &cli.Command{
	Action: run,
	Name:   "run",
	Usage:  "Start the monitor (default command)",
	Description: `
Loads the configuration, connects to every chain with monitored tokens,
installs the initial whale sets and starts polling for Transfer logs.
Runs until interrupted.`,
}

var versionCommand = &cli.Command{
	Action:    version,
	Name:      "version",
	Usage:     "Print version numbers",
	ArgsUsage: " ",
	Description: `
The output of this command is supposed to be machine-readable.
`,
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) {
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("TERM") != "dumb"
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)), usecolor)
	log.SetDefault(log.NewLogger(handler))
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String(configFlag.Name)
	if _, err := os.Stat(path); err != nil {
		// The default file name is a convenience; only an explicitly
		// requested file is required to exist.
		if ctx.IsSet(configFlag.Name) {
			return nil, err
		}
		log.Warn("No configuration file found, using defaults and environment", "path", path)
		path = ""
	}
	return config.Load(path)
}

func run(ctx *cli.Context) error {
	setupLogging(ctx)
	metrics.Enabled = true

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	sup, err := monitor.NewSupervisor(cfg)
	if err != nil {
		return err
	}

	log.Info("Starting whalewatch", "version", params.Version, "tokens", len(cfg.Tokens))
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return sup.Run(runCtx)
}

func version(_ *cli.Context) error {
	fmt.Println("Whalewatch")
	fmt.Println("Version:", params.Version)
	if gitCommit != "" {
		fmt.Println("Git Commit:", gitCommit)
	}
	if gitDate != "" {
		fmt.Println("Git Commit Date:", gitDate)
	}
	fmt.Println("Architecture:", runtime.GOARCH)
	fmt.Println("Go Version:", runtime.Version())
	fmt.Println("Operating System:", runtime.GOOS)
	return nil
}
