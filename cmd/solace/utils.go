// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/solace-fi/solace-native/co"
	"github.com/solace-fi/solace-native/log"
	"github.com/solace-fi/solace-native/lvldb"
)

func initLogger(ctx *cli.Context) {
	var lvl slog.Level
	switch ctx.Int(verbosityFlag.Name) {
	case 0, 1:
		lvl = slog.LevelError
	case 2:
		lvl = slog.LevelWarn
	case 3:
		lvl = slog.LevelInfo
	default:
		lvl = slog.LevelDebug
	}
	log.SetDefault(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openMainDB opens the state database at --data-dir, or an in-memory
// one when the flag is empty.
func openMainDB(ctx *cli.Context) (*lvldb.LevelDB, error) {
	dir := ctx.String(dataDirFlag.Name)
	if dir == "" {
		logger.Warn("no --data-dir given, state will not persist")
		return lvldb.NewMem()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return lvldb.New(dir, lvldb.Options{})
}

func startAPIServer(ctx *cli.Context, handler http.Handler) (string, func(), error) {
	addr := ctx.String(apiAddrFlag.Name)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, err
	}
	srv := &http.Server{Handler: handler}
	var goes co.Goes
	goes.Go(func() {
		srv.Serve(listener)
	})
	return "http://" + listener.Addr().String() + "/", func() {
		srv.Close()
		goes.Wait()
	}, nil
}

// handleExitSignal returns a context cancelled on SIGINT or SIGTERM.
func handleExitSignal() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)

		sig := <-exitSignalCh
		logger.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return ctx
}
