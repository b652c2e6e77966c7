// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/solace-fi/solace-native/api"
	"github.com/solace-fi/solace-native/driver"
	"github.com/solace-fi/solace-native/genesis"
	"github.com/solace-fi/solace-native/log"
	"github.com/solace-fi/solace-native/lvldb"
	"github.com/solace-fi/solace-native/metrics"
	"github.com/solace-fi/solace-native/state"
)

var (
	version   string
	gitCommit string
	gitTag    string
	logger    = log.WithContext("pkg", "main")

	// raw db key marking that the genesis document was applied
	genesisAppliedKey = []byte("genesis-applied")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "Solace",
		Usage:     "Solace Native underwriting node",
		Copyright: "2025 The Solace Native developers",
		Flags: []cli.Flag{
			genesisFlag,
			dataDirFlag,
			apiAddrFlag,
			apiCorsFlag,
			allowanceFlag,
			intervalFlag,
			verbosityFlag,
			enableMetricsFlag,
		},
		Action: defaultAction,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultAction(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	initLogger(ctx)

	genesisPath := ctx.String(genesisFlag.Name)
	if genesisPath == "" {
		return fmt.Errorf("--%s is required", genesisFlag.Name)
	}
	cfg, err := genesis.LoadConfigFile(genesisPath)
	if err != nil {
		return err
	}

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
	}

	mainDB, err := openMainDB(ctx)
	if err != nil {
		return err
	}
	defer func() { logger.Info("closing main database..."); mainDB.Close() }()

	sys, err := openSystem(cfg, mainDB)
	if err != nil {
		return err
	}

	apiHandler := api.New(sys.Gauges, sys.Locker, sys.Voting, sys.Bribes, api.Options{
		AllowedOrigins: ctx.String(apiCorsFlag.Name),
		EnableMetrics:  ctx.Bool(enableMetricsFlag.Name),
	})
	apiURL, srvCloser, err := startAPIServer(ctx, apiHandler)
	if err != nil {
		return err
	}
	defer func() { logger.Info("stopping API server..."); srvCloser() }()

	logger.Info("node started",
		"network", cfg.Name,
		"api", apiURL,
		"allowance", ctx.Uint64(allowanceFlag.Name))

	return runSettlementLoop(handleExitSignal(), ctx, sys)
}

// openSystem wires the protocol to the database, applying the genesis
// document on first run only.
func openSystem(cfg *genesis.Config, db *lvldb.LevelDB) (*genesis.System, error) {
	st := state.New(db)

	applied, err := db.Has(genesisAppliedKey)
	if err != nil {
		return nil, err
	}
	if applied {
		logger.Info("reopening existing state", "network", cfg.Name)
		return genesis.Wire(cfg, st)
	}

	sys, err := genesis.Build(cfg, st)
	if err != nil {
		return nil, err
	}
	if err := st.Commit(); err != nil {
		return nil, err
	}
	if err := db.Put(genesisAppliedKey, []byte{1}); err != nil {
		return nil, err
	}
	return sys, nil
}

// runSettlementLoop settles each epoch as wall time crosses its
// boundary, committing state after every completed settlement.
func runSettlementLoop(ctx context.Context, cliCtx *cli.Context, sys *genesis.System) error {
	drv := driver.New(sys.Gauges, sys.Voting, sys.Bribes, cliCtx.Uint64(allowanceFlag.Name))

	interval := time.Duration(cliCtx.Uint64(intervalFlag.Name)) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		now := uint64(time.Now().Unix())
		if err := drv.ProcessEpoch(now); err != nil {
			logger.Error("settlement failed", "error", err)
		} else if err := sys.State.Commit(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
