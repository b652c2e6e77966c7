// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api assembles the read-only REST surface of the protocol.
package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/solace-fi/solace-native/api/bribes"
	"github.com/solace-fi/solace-native/api/gauges"
	"github.com/solace-fi/solace-native/api/locks"
	"github.com/solace-fi/solace-native/api/status"
	"github.com/solace-fi/solace-native/bribe"
	"github.com/solace-fi/solace-native/gauge"
	"github.com/solace-fi/solace-native/locker"
	"github.com/solace-fi/solace-native/lockvote"
	"github.com/solace-fi/solace-native/metrics"
)

type Options struct {
	AllowedOrigins string
	EnableMetrics  bool
}

// New returns the assembled api handler.
func New(
	gc *gauge.Controller,
	lk *locker.Locker,
	voting *lockvote.Voting,
	bc *bribe.Controller,
	opts Options,
) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()
	gauges.New(gc).Mount(router, "/gauges")
	locks.New(lk).Mount(router, "/locks")
	bribes.New(bc).Mount(router, "/bribes")
	status.New(gc, voting, bc).Mount(router, "/status")

	if opts.EnableMetrics {
		router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)
	return handler.ServeHTTP
}
