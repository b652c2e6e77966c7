// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gauge

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/budget"
	"github.com/solace-fi/solace-native/metrics"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/storage"
)

// Estimated work-unit costs of the aggregation pass's atomic steps.
// Each cost overestimates slightly so a step started is a step finished.
const (
	voterEntryCost = 8*native.SloadCost + native.SstoreSetCost     // vote power lookup + epoch cache write
	voteTallyCost  = 4*native.SloadCost + 2*native.SstoreResetCost // gauge + BPS reads, two accumulator writes
	purgeVoterCost = 2*native.SloadCost + 3*native.SstoreResetCost // swap-remove from the voter set
	finalizeCost   = 2 * native.SstoreResetCost                    // marker write + cursor clear
)

// ErrAlreadyUpdated rejects a second full aggregation pass within one
// epoch.
var ErrAlreadyUpdated = errors.New("gauge: weights already updated this epoch")

var (
	metricUpdateSuspensions = metrics.LazyLoadCounter("gauge_update_suspension_count")
	metricUpdateCompletions = metrics.LazyLoadCounter("gauge_update_completion_count")
)

// UpdateGaugeWeights runs, or resumes, the epoch's vote aggregation
// pass. It tallies votePower * BPS / 10000 into per-gauge accumulators
// across all voting contracts and their voters, skipping paused gauges
// and collecting dead voters for purge at the end of each voting
// contract's loop.
//
// When the meter cannot afford the next atomic step the pass persists
// its cursor and returns (false, nil); the caller re-invokes the same
// function to continue. Only a pass that reaches the end of all loops
// writes the epoch marker, and a second full pass in the same epoch is
// rejected.
func (c *Controller) UpdateGaugeWeights(m *budget.Meter, now uint64) (bool, error) {
	epoch := native.EpochStart(now)
	last, err := c.LastTimeGaugeWeightsUpdated()
	if err != nil {
		return false, err
	}
	if last == epoch {
		return false, ErrAlreadyUpdated
	}

	cp := c.context.State().NewCheckpoint()
	finished, err := c.updateGaugeWeights(m, now, epoch)
	if err != nil {
		c.context.State().RevertTo(cp)
		logger.Info("update gauge weights failed", "error", err)
		return false, err
	}
	if finished {
		metricUpdateCompletions().Add(1)
		logger.Info("gauge weights updated", "epoch", epoch, "unitsUsed", m.TotalUsed())
	} else {
		metricUpdateSuspensions().Add(1)
		logger.Debug("gauge weight pass suspended", "epoch", epoch, "unitsUsed", m.TotalUsed())
	}
	return finished, nil
}

func (c *Controller) updateGaugeWeights(m *budget.Meter, now, epoch uint64) (bool, error) {
	cur, err := c.cursor.Get()
	if err != nil {
		return false, err
	}
	if cur == nil {
		// fresh pass: zero the accumulators before any tallying. This
		// step is O(gauges) and runs unconditionally; the per-call
		// allowance must cover it.
		if err := c.resetAccumulators(); err != nil {
			return false, err
		}
		cur = &storage.Cursor{}
	}

	vcs, err := c.votingContracts.All()
	if err != nil {
		return false, err
	}
	for outer := int(cur.Outer); outer < len(vcs); outer++ {
		vc := vcs[outer]
		src, err := c.source(vc)
		if err != nil {
			return false, err
		}
		voters, err := c.votersOf(vc).All()
		if err != nil {
			return false, err
		}

		middle := 0
		if outer == int(cur.Outer) {
			middle = int(cur.Middle)
		}
		for ; middle < len(voters); middle++ {
			voter := voters[middle]

			inner := 0
			if outer == int(cur.Outer) && middle == int(cur.Middle) {
				inner = int(cur.Inner)
			}
			var power *big.Int
			if inner == 0 {
				if !m.CanAfford(voterEntryCost) {
					return c.suspend(outer, middle, 0)
				}
				m.Use(voterEntryCost)
				if power, err = src.VotePowerOf(voter, now); err != nil {
					return false, err
				}
				if power.Sign() == 0 {
					// dead voter: no contribution, purged after the loop
					if err := c.pendingPurge.Append(voter); err != nil {
						return false, err
					}
					continue
				}
				if err := src.CacheVotePower(voter, epoch, power); err != nil {
					return false, err
				}
			} else {
				// resumed mid-voter: reuse the power tallied before the
				// suspension so split passes stay exact
				if power, err = src.CachedVotePower(voter, epoch); err != nil {
					return false, err
				}
			}

			gaugeIDs, err := c.gaugesVotedBy(vc, voter).All()
			if err != nil {
				return false, err
			}
			ledger := c.voteBPS(vc, voter)
			for ; inner < len(gaugeIDs); inner++ {
				if !m.CanAfford(voteTallyCost) {
					return c.suspend(outer, middle, inner)
				}
				m.Use(voteTallyCost)
				g, err := c.gauges.Get(uint64(gaugeIDs[inner]))
				if err != nil {
					return false, err
				}
				if !g.Active {
					continue
				}
				bps, err := ledger.Get(gaugeIDs[inner])
				if err != nil {
					return false, err
				}
				add := new(big.Int).Mul(power, new(big.Int).SetUint64(bps))
				add.Div(add, new(big.Int).SetUint64(native.MaxVoteBPS))
				if err := c.accumulate(uint64(gaugeIDs[inner]), add); err != nil {
					return false, err
				}
			}
		}

		// end of this voting contract's voters: purge dead voters in one
		// deferred batch so iteration order stayed stable above
		purge, err := c.pendingPurge.Len()
		if err != nil {
			return false, err
		}
		if !m.CanAfford((purge + 1) * purgeVoterCost) {
			return c.suspend(outer, len(voters), 0)
		}
		m.Use((purge + 1) * purgeVoterCost)
		if err := c.purgeDeadVoters(vc); err != nil {
			return false, err
		}
	}

	if !m.CanAfford(finalizeCost) {
		return c.suspend(len(vcs), 0, 0)
	}
	m.Use(finalizeCost)
	c.lastUpdated.Set(new(big.Int).SetUint64(epoch))
	c.cursor.Clear()
	return true, nil
}

func (c *Controller) suspend(outer, middle, inner int) (bool, error) {
	return false, c.cursor.Set(&storage.Cursor{
		Outer:  uint32(outer),
		Middle: uint32(middle),
		Inner:  uint32(inner),
	})
}

func (c *Controller) resetAccumulators() error {
	c.votePowerSum.Set(&big.Int{})
	n, err := c.NumGauges()
	if err != nil {
		return err
	}
	for id := uint64(1); id <= n; id++ {
		if err := c.votePowerOfGauge.Set(storage.UintKey(id), &big.Int{}, false); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) accumulate(gaugeID uint64, add *big.Int) error {
	if add.Sign() == 0 {
		return nil
	}
	power, err := c.votePowerOfGauge.Get(storage.UintKey(gaugeID))
	if err != nil {
		return err
	}
	if err := c.votePowerOfGauge.Set(storage.UintKey(gaugeID), new(big.Int).Add(power, add), false); err != nil {
		return err
	}
	return c.votePowerSum.Add(add)
}

func (c *Controller) purgeDeadVoters(vc native.Address) error {
	n, err := c.pendingPurge.Len()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		voter, err := c.pendingPurge.Get(i)
		if err != nil {
			return err
		}
		if _, err := c.votersOf(vc).Remove(voter); err != nil {
			return err
		}
		logger.Debug("purged dead voter", "contract", vc, "voter", voter)
	}
	c.pendingPurge.Clear()
	return nil
}
