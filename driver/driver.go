// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package driver schedules one epoch's settlement as bounded work: it
// repeatedly invokes each resumable engine with a fresh per-call
// allowance until the engine reports completion, in pipeline order —
// gauge weights, then premiums, then bribes.
package driver

import (
	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/bribe"
	"github.com/solace-fi/solace-native/budget"
	"github.com/solace-fi/solace-native/gauge"
	"github.com/solace-fi/solace-native/lockvote"
	"github.com/solace-fi/solace-native/log"
	"github.com/solace-fi/solace-native/metrics"
)

var logger = log.WithContext("pkg", "driver")

// maxPasses caps the suspend/resume calls per stage, so an allowance
// too small to ever afford the next atomic step surfaces as an error
// instead of spinning.
const maxPasses = 100000

var (
	metricStagePasses = metrics.LazyLoadCounterVec("driver_stage_pass_count", []string{"stage"})
)

// Driver runs the settlement pipeline.
type Driver struct {
	gauges    *gauge.Controller
	voting    *lockvote.Voting
	bribes    *bribe.Controller
	allowance uint64
}

// New builds a driver granting each engine call the given work-unit
// allowance.
func New(gc *gauge.Controller, v *lockvote.Voting, bc *bribe.Controller, allowance uint64) *Driver {
	return &Driver{gauges: gc, voting: v, bribes: bc, allowance: allowance}
}

type stage struct {
	name        string
	run         func(*budget.Meter, uint64) (bool, error)
	alreadyDone error
}

// ProcessEpoch drives all three engines to completion for the epoch
// enclosing now. Stages already settled for this epoch are skipped, so
// the call is safe to repeat.
func (d *Driver) ProcessEpoch(now uint64) error {
	stages := []stage{
		{"gauge-weights", d.gauges.UpdateGaugeWeights, gauge.ErrAlreadyUpdated},
		{"premiums", d.voting.ChargePremiums, lockvote.ErrAlreadyCharged},
		{"bribes", d.bribes.ProcessBribes, bribe.ErrAlreadyProcessed},
	}
	for _, s := range stages {
		if err := d.runStage(s, now); err != nil {
			return err
		}
	}
	logger.Info("epoch settled", "now", now)
	return nil
}

func (d *Driver) runStage(s stage, now uint64) error {
	for pass := 1; pass <= maxPasses; pass++ {
		m := budget.NewMeter(d.allowance)
		finished, err := s.run(m, now)
		if errors.Is(err, s.alreadyDone) {
			logger.Debug("stage already settled", "stage", s.name)
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "driver: stage %s", s.name)
		}
		metricStagePasses().AddWithLabel(1, map[string]string{"stage": s.name})
		if finished {
			logger.Debug("stage complete", "stage", s.name, "passes", pass)
			return nil
		}
	}
	return errors.Errorf("driver: stage %s made no progress after %d passes, allowance %d too small",
		s.name, maxPasses, d.allowance)
}
