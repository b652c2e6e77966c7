// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bribe

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/budget"
	"github.com/solace-fi/solace-native/metrics"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/storage"
)

// Estimated work-unit costs of the distribution pass's atomic steps.
const (
	biasInitCost   = native.SloadCost + native.SstoreSetCost
	powerTallyCost = 4*native.SloadCost + native.SstoreResetCost
	allocCost      = 5*native.SloadCost + 2*native.SstoreResetCost
	consumeCost    = native.SloadCost + 2*native.SstoreResetCost
	finalizeCost   = 3 * native.SstoreResetCost
)

const (
	phasePower    = 0
	phaseAllocate = 1
)

var (
	errNotSettledUpstream = errors.New("bribe: gauge weights or premiums not settled this epoch")
	ErrAlreadyProcessed   = errors.New("bribe: bribes already processed this epoch")
)

var (
	metricProcessSuspensions = metrics.LazyLoadCounter("bribe_process_suspension_count")
	metricProcessCompletions = metrics.LazyLoadCounter("bribe_process_completion_count")
)

// ProcessBribes runs, or resumes, the epoch's two-phase distribution.
//
// Phase one recomputes, per gauge with bribes, the total vote power
// chasing that gauge's pools, into an accumulator biased by +1 so the
// later proportion can never divide by zero. Phase two allocates each
// pool across bribe voters proportional to power, then consumes the
// gauge's bribe votes and pools. Each phase suspends and resumes
// independently under the shared cursor; a stored phase flag tells a
// resumed call which one it is in.
func (c *Controller) ProcessBribes(m *budget.Meter, now uint64) (bool, error) {
	epoch := native.EpochStart(now)
	gaugeLast, err := c.gauges.LastTimeGaugeWeightsUpdated()
	if err != nil {
		return false, err
	}
	premiumLast, err := c.voting.LastTimePremiumsCharged()
	if err != nil {
		return false, err
	}
	if gaugeLast != epoch || premiumLast != epoch {
		return false, errors.Wrapf(errNotSettledUpstream, "weights %d, premiums %d, epoch %d", gaugeLast, premiumLast, epoch)
	}
	last, err := c.LastTimeBribesProcessed()
	if err != nil {
		return false, err
	}
	if last == epoch {
		return false, ErrAlreadyProcessed
	}

	cp := c.context.State().NewCheckpoint()
	finished, err := c.processBribes(m, epoch)
	if err != nil {
		c.context.State().RevertTo(cp)
		logger.Info("process bribes failed", "error", err)
		return false, err
	}
	if finished {
		metricProcessCompletions().Add(1)
		logger.Info("bribes processed", "epoch", epoch, "unitsUsed", m.TotalUsed())
	} else {
		metricProcessSuspensions().Add(1)
		logger.Debug("bribe pass suspended", "epoch", epoch, "unitsUsed", m.TotalUsed())
	}
	return finished, nil
}

func (c *Controller) processBribes(m *budget.Meter, epoch uint64) (bool, error) {
	cur, err := c.cursor.Get()
	if err != nil {
		return false, err
	}
	if cur == nil {
		cur = &storage.Cursor{}
	}
	phase, err := c.phase.Get()
	if err != nil {
		return false, err
	}

	if phase.Uint64() == phasePower {
		done, err := c.tallyBribePower(m, epoch, cur)
		if err != nil || !done {
			return false, err
		}
		c.phase.Set(big.NewInt(phaseAllocate))
		cur = &storage.Cursor{}
		if err := c.cursor.Set(cur); err != nil {
			return false, err
		}
	}

	done, err := c.allocateBribes(m, epoch, cur)
	if err != nil || !done {
		return false, err
	}

	gauges, err := c.gaugesWithBribes.All()
	if err != nil {
		return false, err
	}
	if !m.CanAfford(finalizeCost + uint64(len(gauges))*consumeCost) {
		return c.suspend(len(gauges), 0, 0)
	}
	m.Use(finalizeCost + uint64(len(gauges))*consumeCost)
	return true, c.finish(epoch, gauges)
}

// tallyBribePower is phase one: per gauge, sum cached vote power times
// bribe BPS into the +1-biased accumulator.
func (c *Controller) tallyBribePower(m *budget.Meter, epoch uint64, cur *storage.Cursor) (bool, error) {
	gauges, err := c.gaugesWithBribes.All()
	if err != nil {
		return false, err
	}
	power := c.bribePower()
	for outer := int(cur.Outer); outer < len(gauges); outer++ {
		gaugeID := uint64(gauges[outer])
		voters, err := c.bribeVoters(gaugeID).All()
		if err != nil {
			return false, err
		}

		middle := 0
		if outer == int(cur.Outer) {
			middle = int(cur.Middle)
		}
		if middle == 0 {
			// bias the accumulator so phase two never divides by zero
			if !m.CanAfford(biasInitCost) {
				return c.suspend(outer, 0, 0)
			}
			m.Use(biasInitCost)
			if err := power.Set(storage.UintKey(gaugeID), big.NewInt(1), false); err != nil {
				return false, err
			}
		}
		for ; middle < len(voters); middle++ {
			if !m.CanAfford(powerTallyCost) {
				return c.suspend(outer, middle, 0)
			}
			m.Use(powerTallyCost)
			add, err := c.bribeSeekingPower(gaugeID, voters[middle], epoch)
			if err != nil {
				return false, err
			}
			if add.Sign() == 0 {
				continue
			}
			total, err := power.Get(storage.UintKey(gaugeID))
			if err != nil {
				return false, err
			}
			if err := power.Set(storage.UintKey(gaugeID), total.Add(total, add), false); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// allocateBribes is phase two: split each pool across bribe voters
// proportional to power, then consume the gauge's votes and pools.
func (c *Controller) allocateBribes(m *budget.Meter, epoch uint64, cur *storage.Cursor) (bool, error) {
	gauges, err := c.gaugesWithBribes.All()
	if err != nil {
		return false, err
	}
	for outer := int(cur.Outer); outer < len(gauges); outer++ {
		gaugeID := uint64(gauges[outer])
		voters, err := c.bribeVoters(gaugeID).All()
		if err != nil {
			return false, err
		}
		tokens, err := c.poolTokens(gaugeID).All()
		if err != nil {
			return false, err
		}
		biased, err := c.bribePower().Get(storage.UintKey(gaugeID))
		if err != nil {
			return false, err
		}
		total := new(big.Int).Sub(biased, big.NewInt(1))

		middle := 0
		if outer == int(cur.Outer) {
			middle = int(cur.Middle)
		}
		for ; middle < len(voters); middle++ {
			voter := voters[middle]
			votePower, err := c.bribeSeekingPower(gaugeID, voter, epoch)
			if err != nil {
				return false, err
			}

			inner := 0
			if outer == int(cur.Outer) && middle == int(cur.Middle) {
				inner = int(cur.Inner)
			}
			for ; inner < len(tokens); inner++ {
				if !m.CanAfford(allocCost) {
					return c.suspend(outer, middle, inner)
				}
				m.Use(allocCost)
				if total.Sign() == 0 || votePower.Sign() == 0 {
					continue
				}
				pool, err := c.pool(gaugeID).Get(tokens[inner])
				if err != nil {
					return false, err
				}
				amount := new(big.Int).Mul(pool, votePower)
				amount.Div(amount, total)
				if amount.Sign() == 0 {
					continue
				}
				if err := c.credit(voter, tokens[inner], amount); err != nil {
					return false, err
				}
			}
		}

		// gauge completion: consume votes, and pools when distributed
		steps := uint64(len(voters)+len(tokens)) + 1
		if !m.CanAfford(steps * consumeCost) {
			return c.suspend(outer, len(voters), 0)
		}
		m.Use(steps * consumeCost)
		if err := c.consumeGauge(gaugeID, voters, tokens, total.Sign() > 0); err != nil {
			return false, err
		}
	}
	return true, nil
}

// bribeSeekingPower is the voter's epoch-cached vote power scaled by
// their bribe-seeking BPS on the gauge.
func (c *Controller) bribeSeekingPower(gaugeID uint64, voter native.Address, epoch uint64) (*big.Int, error) {
	power, err := c.voting.CachedVotePower(voter, epoch)
	if err != nil {
		return nil, err
	}
	bps, err := c.bribeBPS(gaugeID).Get(voter)
	if err != nil {
		return nil, err
	}
	if bps == 0 || power.Sign() == 0 {
		return &big.Int{}, nil
	}
	p := new(big.Int).Mul(power, new(big.Int).SetUint64(bps))
	return p.Div(p, new(big.Int).SetUint64(native.MaxVoteBPS)), nil
}

// credit adds to the voter's claimable balance, replacing the pre-pay
// sentinel when present.
func (c *Controller) credit(voter, tok native.Address, amount *big.Int) error {
	claimable := c.claimable(voter)
	current, err := claimable.Get(tok)
	if err != nil {
		return err
	}
	fresh := current.Sign() == 0
	if fresh || current.Cmp(native.MaxUint256) == 0 {
		current = &big.Int{}
	}
	if err := claimable.Set(tok, new(big.Int).Add(current, amount), fresh); err != nil {
		return err
	}
	_, err = c.claimTokens(voter).Add(tok)
	return err
}

func (c *Controller) consumeGauge(gaugeID uint64, voters, tokens []native.Address, distributed bool) error {
	bps := c.bribeBPS(gaugeID)
	voterSet := c.bribeVoters(gaugeID)
	for _, voter := range voters {
		bps.Delete(voter)
		if _, err := voterSet.Remove(voter); err != nil {
			return err
		}
	}
	if !distributed {
		// no participating vote power: pools stay, for governance rescue
		return nil
	}
	pool := c.pool(gaugeID)
	tokenSet := c.poolTokens(gaugeID)
	for _, tok := range tokens {
		pool.Delete(tok)
		if _, err := tokenSet.Remove(tok); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) finish(epoch uint64, gauges []storage.UintKey) error {
	for _, g := range gauges {
		if _, err := c.gaugesWithBribes.Remove(g); err != nil {
			return err
		}
	}
	c.lastProcessed.Set(new(big.Int).SetUint64(epoch))
	c.phase.Set(big.NewInt(phasePower))
	c.cursor.Clear()
	return nil
}

func (c *Controller) suspend(outer, middle, inner int) (bool, error) {
	return false, c.cursor.Set(&storage.Cursor{
		Outer:  uint32(outer),
		Middle: uint32(middle),
		Inner:  uint32(inner),
	})
}
