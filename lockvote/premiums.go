// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package lockvote

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/budget"
	"github.com/solace-fi/solace-native/metrics"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/registry"
	"github.com/solace-fi/solace-native/storage"
)

// Estimated work-unit costs of the premium pass's atomic steps.
const (
	voterPremiumCost = 12*native.SloadCost + 3*native.SstoreResetCost // votes + rates + lock scan, share cells
	chargeLockCost   = 3*native.SloadCost + 2*native.SstoreResetCost  // lock read/write, running total
	settleCost       = 4*native.SstoreResetCost + native.GetBalanceCost
)

var (
	errWeightsNotUpdated = errors.New("lockvote: gauge weights not yet updated this epoch")
	ErrAlreadyCharged    = errors.New("lockvote: premiums already charged this epoch")
)

var (
	metricChargeSuspensions = metrics.LazyLoadCounter("premium_charge_suspension_count")
	metricChargeCompletions = metrics.LazyLoadCounter("premium_charge_completion_count")
)

// ChargePremiums runs, or resumes, the epoch's premium pass. For every
// tallied voter it computes one epoch's premium from the annualized
// rate-on-line of their gauge allocations and deducts it evenly across
// their live locks, the remainder going to the last live lock. All
// deductions accumulate into a persisted running total that leaves the
// locker in a single batch transfer to the revenue sink once the pass
// completes.
//
// The pass requires the gauge weight pass to have completed for this
// epoch, suspends under the same cursor discipline, and rejects a
// second run in the same epoch.
func (v *Voting) ChargePremiums(m *budget.Meter, now uint64) (bool, error) {
	epoch := native.EpochStart(now)
	gaugeLast, err := v.gauges.LastTimeGaugeWeightsUpdated()
	if err != nil {
		return false, err
	}
	if gaugeLast != epoch {
		return false, errors.Wrapf(errWeightsNotUpdated, "weights at %d, epoch %d", gaugeLast, epoch)
	}
	last, err := v.LastTimePremiumsCharged()
	if err != nil {
		return false, err
	}
	if last == epoch {
		return false, ErrAlreadyCharged
	}

	cp := v.context.State().NewCheckpoint()
	finished, err := v.chargePremiums(m, now, epoch)
	if err != nil {
		v.context.State().RevertTo(cp)
		logger.Info("charge premiums failed", "error", err)
		return false, err
	}
	if finished {
		metricChargeCompletions().Add(1)
		logger.Info("premiums charged", "epoch", epoch, "unitsUsed", m.TotalUsed())
	} else {
		metricChargeSuspensions().Add(1)
		logger.Debug("premium pass suspended", "epoch", epoch, "unitsUsed", m.TotalUsed())
	}
	return finished, nil
}

func (v *Voting) chargePremiums(m *budget.Meter, now, epoch uint64) (bool, error) {
	cur, err := v.cursor.Get()
	if err != nil {
		return false, err
	}
	if cur == nil {
		// fresh pass: snapshot capacity so a mid-pass pool change
		// cannot skew later voters, and zero the running total
		capacity, err := v.gauges.InsuranceCapacity()
		if err != nil {
			return false, err
		}
		v.capacitySnap.Set(capacity)
		v.totalDue.Set(&big.Int{})
		cur = &storage.Cursor{}
	}

	capacity, err := v.capacitySnap.Get()
	if err != nil {
		return false, err
	}
	votePowerSum, err := v.gauges.VotePowerSum()
	if err != nil {
		return false, err
	}
	voters, err := v.gauges.VotersOf(v.Address())
	if err != nil {
		return false, err
	}

	for outer := int(cur.Outer); outer < len(voters); outer++ {
		voter := voters[outer]

		lockIdx := 0
		if outer == int(cur.Outer) {
			lockIdx = int(cur.Middle)
		}
		ids, err := v.locker.LocksOf(voter)
		if err != nil {
			return false, err
		}

		if lockIdx == 0 {
			cost := voterPremiumCost + uint64(len(ids))*native.SloadCost
			if !m.CanAfford(cost) {
				return v.suspend(outer, 0)
			}
			m.Use(cost)
			premium, err := v.premiumOf(voter, epoch, capacity, votePowerSum)
			if err != nil {
				return false, err
			}
			if err := v.splitPremium(premium, ids); err != nil {
				return false, err
			}
		}

		share, err := v.currentShare.Get()
		if err != nil {
			return false, err
		}
		lastCharge, err := v.currentLast.Get()
		if err != nil {
			return false, err
		}
		lastIdx, err := v.currentTarget.Get()
		if err != nil {
			return false, err
		}
		if share.Sign() == 0 && lastCharge.Sign() == 0 {
			continue // nothing due from this voter
		}

		for ; lockIdx < len(ids); lockIdx++ {
			if !m.CanAfford(chargeLockCost) {
				return v.suspend(outer, lockIdx)
			}
			m.Use(chargeLockCost)
			lock, err := v.locker.Get(ids[lockIdx])
			if err != nil {
				return false, err
			}
			if lock.Amount.Sign() == 0 {
				continue
			}
			charge := share
			if uint64(lockIdx) == lastIdx.Uint64() {
				charge = lastCharge
			}
			if charge.Sign() == 0 {
				continue
			}
			// fault on underflow, never clamp
			if err := v.locker.ChargePremium(ids[lockIdx], charge); err != nil {
				return false, err
			}
			if err := v.totalDue.Add(charge); err != nil {
				return false, err
			}
		}
	}

	if !m.CanAfford(settleCost) {
		return v.suspend(len(voters), 0)
	}
	m.Use(settleCost)
	return true, v.settle(epoch)
}

// premiumOf computes the voter's epoch premium with a single floor
// division:
//
//	Σ(rateOnLine*BPS) * votePower * capacity * EPOCH / (votePowerSum * YEAR * 1e18 * 10000)
func (v *Voting) premiumOf(voter native.Address, epoch uint64, capacity, votePowerSum *big.Int) (*big.Int, error) {
	if votePowerSum.Sign() == 0 {
		return &big.Int{}, nil
	}
	power, err := v.CachedVotePower(voter, epoch)
	if err != nil {
		return nil, err
	}
	gaugeIDs, bps, err := v.gauges.VotesOf(v.Address(), voter)
	if err != nil {
		return nil, err
	}
	rateSum := new(big.Int)
	for i, id := range gaugeIDs {
		rate, err := v.gauges.RateOnLine(id)
		if err != nil {
			return nil, err
		}
		rateSum.Add(rateSum, new(big.Int).Mul(rate, new(big.Int).SetUint64(bps[i])))
	}

	num := new(big.Int).Mul(rateSum, power)
	num.Mul(num, capacity)
	num.Mul(num, new(big.Int).SetUint64(native.EpochLength))

	den := new(big.Int).Mul(votePowerSum, new(big.Int).SetUint64(native.Year))
	den.Mul(den, native.Unit)
	den.Mul(den, new(big.Int).SetUint64(native.MaxVoteBPS))

	return num.Div(num, den), nil
}

// splitPremium fixes this voter's per-lock share, the last live lock's
// share plus rounding remainder, and that lock's index. The cells are
// persisted so a pass suspended mid-voter resumes with identical
// charges.
func (v *Voting) splitPremium(premium *big.Int, ids []uint64) error {
	live := 0
	lastIdx := 0
	for i, id := range ids {
		lock, err := v.locker.Get(id)
		if err != nil {
			return err
		}
		if lock.Amount.Sign() > 0 {
			live++
			lastIdx = i
		}
	}
	share := new(big.Int)
	lastCharge := new(big.Int)
	if live > 0 && premium.Sign() > 0 {
		share.Div(premium, big.NewInt(int64(live)))
		// last live lock takes its share plus the rounding remainder
		lastCharge.Mul(share, big.NewInt(int64(live-1)))
		lastCharge.Sub(premium, lastCharge)
	}
	v.currentShare.Set(share)
	v.currentLast.Set(lastCharge)
	v.currentTarget.Set(new(big.Int).SetInt64(int64(lastIdx)))
	return nil
}

func (v *Voting) suspend(outer, middle int) (bool, error) {
	return false, v.cursor.Set(&storage.Cursor{Outer: uint32(outer), Middle: uint32(middle)})
}

// settle transfers the pass's accumulated premiums from the locker to
// the revenue sink in one batch, advances the marker and clears the
// cursor.
func (v *Voting) settle(epoch uint64) error {
	total, err := v.totalDue.Get()
	if err != nil {
		return err
	}
	if total.Sign() > 0 {
		sink, err := v.registry.MustGet(registry.KeyRevenueSink)
		if err != nil {
			return err
		}
		if err := v.token.Transfer(v.locker.Address(), sink, total); err != nil {
			return err
		}
	}
	v.lastCharged.Set(new(big.Int).SetUint64(epoch))
	v.totalDue.Set(&big.Int{})
	v.cursor.Clear()
	return nil
}
