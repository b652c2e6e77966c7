// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gauges

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/api/restutil"
	"github.com/solace-fi/solace-native/gauge"
)

type Gauges struct {
	controller *gauge.Controller
}

func New(controller *gauge.Controller) *Gauges {
	return &Gauges{controller}
}

// Gauge is the JSON shape of one gauge. Amounts are decimal strings.
type Gauge struct {
	ID         uint64 `json:"id"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	RateOnLine string `json:"rateOnLine"`
	VotePower  string `json:"votePower"`
	Weight     string `json:"weight"`
}

func (g *Gauges) gaugeByID(id uint64) (*Gauge, error) {
	entry, err := g.controller.Get(id)
	if err != nil {
		return nil, restutil.NotFound(err)
	}
	power, err := g.controller.VotePowerOfGauge(id)
	if err != nil {
		return nil, err
	}
	weight, err := g.controller.GaugeWeight(id)
	if err != nil {
		return nil, err
	}
	return &Gauge{
		ID:         id,
		Name:       entry.Name,
		Active:     entry.Active,
		RateOnLine: entry.RateOnLine.String(),
		VotePower:  power.String(),
		Weight:     weight.String(),
	}, nil
}

func (g *Gauges) handleGetGauges(w http.ResponseWriter, _ *http.Request) error {
	n, err := g.controller.NumGauges()
	if err != nil {
		return err
	}
	out := make([]*Gauge, 0, n)
	for id := uint64(1); id <= n; id++ {
		entry, err := g.gaugeByID(id)
		if err != nil {
			return err
		}
		out = append(out, entry)
	}
	return restutil.WriteJSON(w, out)
}

func (g *Gauges) handleGetGauge(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "id"))
	}
	entry, err := g.gaugeByID(id)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, entry)
}

func (g *Gauges) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(g.handleGetGauges))
	sub.Path("/{id}").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(g.handleGetGauge))
}
