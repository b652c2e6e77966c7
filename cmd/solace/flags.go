// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"
)

var (
	genesisFlag = cli.StringFlag{
		Name:  "genesis",
		Usage: "path to the genesis document (YAML)",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Usage: "directory for the state database (empty runs in-memory)",
	}
	apiAddrFlag = cli.StringFlag{
		Name:  "api-addr",
		Value: "localhost:8668",
		Usage: "API service listening address",
	}
	apiCorsFlag = cli.StringFlag{
		Name:  "api-cors",
		Value: "",
		Usage: "comma separated list of domains from which to accept cross origin requests to API",
	}
	allowanceFlag = cli.Uint64Flag{
		Name:  "allowance",
		Value: 5000000,
		Usage: "work-unit allowance granted to each settlement pass",
	}
	intervalFlag = cli.Uint64Flag{
		Name:  "interval",
		Value: 60,
		Usage: "seconds between settlement checks",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Value: 3,
		Usage: "log verbosity (1-4: error, warn, info, debug)",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "exposes prometheus metrics at /metrics",
	}
)
