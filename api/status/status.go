// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package status

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/solace-fi/solace-native/api/restutil"
	"github.com/solace-fi/solace-native/bribe"
	"github.com/solace-fi/solace-native/gauge"
	"github.com/solace-fi/solace-native/lockvote"
	"github.com/solace-fi/solace-native/native"
)

type Status struct {
	gauges *gauge.Controller
	voting *lockvote.Voting
	bribes *bribe.Controller
}

func New(gc *gauge.Controller, v *lockvote.Voting, bc *bribe.Controller) *Status {
	return &Status{gc, v, bc}
}

// Overview reports the settlement pipeline's markers, so an operator
// can see at a glance which stage the current epoch is stuck on.
type Overview struct {
	Now                     uint64 `json:"now"`
	EpochStart              uint64 `json:"epochStart"`
	LastGaugeWeightsUpdated uint64 `json:"lastGaugeWeightsUpdated"`
	LastPremiumsCharged     uint64 `json:"lastPremiumsCharged"`
	LastBribesProcessed     uint64 `json:"lastBribesProcessed"`
	GaugeUpdateInProgress   bool   `json:"gaugeUpdateInProgress"`
	VotePowerSum            string `json:"votePowerSum"`
	InsuranceCapacity       string `json:"insuranceCapacity"`
}

func (s *Status) handleGetStatus(w http.ResponseWriter, _ *http.Request) error {
	now := uint64(time.Now().Unix())
	gaugeLast, err := s.gauges.LastTimeGaugeWeightsUpdated()
	if err != nil {
		return err
	}
	premiumLast, err := s.voting.LastTimePremiumsCharged()
	if err != nil {
		return err
	}
	bribeLast, err := s.bribes.LastTimeBribesProcessed()
	if err != nil {
		return err
	}
	inProgress, err := s.gauges.UpdateInProgress()
	if err != nil {
		return err
	}
	sum, err := s.gauges.VotePowerSum()
	if err != nil {
		return err
	}
	capacity, err := s.gauges.InsuranceCapacity()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, &Overview{
		Now:                     now,
		EpochStart:              native.EpochStart(now),
		LastGaugeWeightsUpdated: gaugeLast,
		LastPremiumsCharged:     premiumLast,
		LastBribesProcessed:     bribeLast,
		GaugeUpdateInProgress:   inProgress,
		VotePowerSum:            sum.String(),
		InsuranceCapacity:       capacity.String(),
	})
}

func (s *Status) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").Methods(http.MethodGet).HandlerFunc(restutil.WrapHandlerFunc(s.handleGetStatus))
}
