// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package lockvote implements underwriting lock voting: the vote entry
// point backed by lock vote power, and the premium charging engine that
// settles each epoch.
//
// It is the voting contract the gauge controller tallies: vote power is
// the sum of the voter's lock powers, and the per-epoch tallied power is
// cached here so premiums and bribes settle against identical numbers.
package lockvote

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/gauge"
	"github.com/solace-fi/solace-native/locker"
	"github.com/solace-fi/solace-native/log"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/registry"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/storage"
	"github.com/solace-fi/solace-native/token"
)

var logger = log.WithContext("pkg", "lockvote")

var (
	errNotOwnerOrDelegate = errors.New("lockvote: caller is neither voter nor delegate")
	errVotesClosed        = errors.New("lockvote: votes closed until premiums are charged")
	errNoVotePower        = errors.New("lockvote: voter has no vote power")
	errOverBudget         = errors.New("lockvote: votes exceed 10000 BPS")
)

// Voting binds the lock voting module's storage and collaborators.
type Voting struct {
	context  *storage.Context
	locker   *locker.Locker
	gauges   *gauge.Controller
	token    *token.Token
	registry *registry.Registry

	delegates   *storage.Mapping[native.Address, native.Address]
	lastCharged *storage.Uint256

	// premium pass state, persisted across suspensions
	cursor        *storage.CursorCell
	totalDue      *storage.Uint256
	capacitySnap  *storage.Uint256
	currentShare  *storage.Uint256
	currentLast   *storage.Uint256
	currentTarget *storage.Uint256

	cachedPowerSlot native.Bytes32
}

// New binds the module at addr.
func New(addr native.Address, st *state.State, use storage.UseUnitsFunc,
	lk *locker.Locker, gc *gauge.Controller, tok *token.Token, reg *registry.Registry,
) *Voting {
	ctx := storage.NewContext(addr, st, use)
	return &Voting{
		context:  ctx,
		locker:   lk,
		gauges:   gc,
		token:    tok,
		registry: reg,

		delegates:   storage.NewMapping[native.Address, native.Address](ctx, storage.Slot("delegates")),
		lastCharged: storage.NewUint256(ctx, storage.Slot("last-time-premiums-charged")),

		cursor:        storage.NewCursorCell(ctx, storage.Slot("charge-cursor")),
		totalDue:      storage.NewUint256(ctx, storage.Slot("total-premium-due")),
		capacitySnap:  storage.NewUint256(ctx, storage.Slot("capacity-snapshot")),
		currentShare:  storage.NewUint256(ctx, storage.Slot("current-share")),
		currentLast:   storage.NewUint256(ctx, storage.Slot("current-last-charge")),
		currentTarget: storage.NewUint256(ctx, storage.Slot("current-last-index")),

		cachedPowerSlot: storage.Slot("cached-vote-power"),
	}
}

func (v *Voting) cachedPower(epochStart uint64) *storage.Mapping[native.Address, *big.Int] {
	return storage.NewMapping[native.Address, *big.Int](v.context, storage.SubSlot(v.cachedPowerSlot, storage.UintKey(epochStart)))
}

//
// gauge.VotingContract
//

// Address returns the module's account address, its identity in the
// gauge controller's voting contract set.
func (v *Voting) Address() native.Address {
	return v.context.Address()
}

// VotePowerOf sums the voter's lock powers. Burned locks count zero.
func (v *Voting) VotePowerOf(voter native.Address, now uint64) (*big.Int, error) {
	ids, err := v.locker.LocksOf(voter)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, id := range ids {
		power, err := v.locker.VotePowerOf(id, now)
		if err != nil {
			return nil, err
		}
		total.Add(total, power)
	}
	return total, nil
}

// CacheVotePower records the voter's tallied power for the epoch.
func (v *Voting) CacheVotePower(voter native.Address, epochStart uint64, power *big.Int) error {
	return v.cachedPower(epochStart).Set(voter, power, true)
}

// CachedVotePower returns the power recorded for the epoch, zero when
// the voter was not tallied.
func (v *Voting) CachedVotePower(voter native.Address, epochStart uint64) (*big.Int, error) {
	return v.cachedPower(epochStart).Get(voter)
}

// OnLockUpdated implements locker.Listener. Lock mutations are
// rejected while a tally or settlement pass is suspended mid-way, so
// the lock lists those passes iterate stay stable across resumes.
func (v *Voting) OnLockUpdated(lockID uint64, old, updated *locker.Lock) error {
	inProgress, err := v.gauges.UpdateInProgress()
	if err != nil {
		return err
	}
	if !inProgress {
		cur, err := v.cursor.Get()
		if err != nil {
			return err
		}
		inProgress = cur != nil
	}
	if inProgress {
		return errors.Errorf("lockvote: lock %d frozen during epoch settlement", lockID)
	}
	return nil
}

//
// Delegation
//

// SetDelegate lets the caller name an address allowed to vote for them.
// The zero address clears the delegation.
func (v *Voting) SetDelegate(caller, delegate native.Address) error {
	if err := v.delegates.Set(caller, delegate, true); err != nil {
		return err
	}
	logger.Debug("set delegate", "voter", caller, "delegate", delegate)
	return nil
}

// DelegateOf returns the voter's delegate, zero when none.
func (v *Voting) DelegateOf(voter native.Address) (native.Address, error) {
	return v.delegates.Get(voter)
}

func (v *Voting) requireVoterOrDelegate(caller, voter native.Address) error {
	if caller == voter {
		return nil
	}
	delegate, err := v.delegates.Get(voter)
	if err != nil {
		return err
	}
	if caller == delegate && !delegate.IsZero() {
		return nil
	}
	return errors.Wrapf(errNotOwnerOrDelegate, "caller %v, voter %v", caller, voter)
}

//
// Voting
//

// Vote sets the voter's BPS allocation on one gauge and returns the
// prior value. Votes are open only while the epoch's settlement is
// complete; the per-voter BPS budget across all gauges is enforced
// here.
func (v *Voting) Vote(caller, voter native.Address, gaugeID uint64, newBPS uint64, now uint64) (uint64, error) {
	cp := v.context.State().NewCheckpoint()
	old, err := v.vote(caller, voter, gaugeID, newBPS, now)
	if err != nil {
		v.context.State().RevertTo(cp)
		return 0, err
	}
	return old, nil
}

// VoteMultiple applies parallel gauge/BPS slices as one atomic call.
func (v *Voting) VoteMultiple(caller, voter native.Address, gaugeIDs []uint64, newBPS []uint64, now uint64) error {
	if len(gaugeIDs) != len(newBPS) {
		return errors.Errorf("lockvote: length mismatch %d gauges, %d BPS", len(gaugeIDs), len(newBPS))
	}
	cp := v.context.State().NewCheckpoint()
	for i, id := range gaugeIDs {
		if _, err := v.vote(caller, voter, id, newBPS[i], now); err != nil {
			v.context.State().RevertTo(cp)
			return err
		}
	}
	return nil
}

// RemoveVote removes the voter's vote on one gauge.
func (v *Voting) RemoveVote(caller, voter native.Address, gaugeID uint64, now uint64) error {
	_, err := v.Vote(caller, voter, gaugeID, 0, now)
	return err
}

// RemoveVoteMultiple removes votes on several gauges atomically.
func (v *Voting) RemoveVoteMultiple(caller, voter native.Address, gaugeIDs []uint64, now uint64) error {
	bps := make([]uint64, len(gaugeIDs))
	return v.VoteMultiple(caller, voter, gaugeIDs, bps, now)
}

func (v *Voting) vote(caller, voter native.Address, gaugeID uint64, newBPS uint64, now uint64) (uint64, error) {
	if err := v.requireVoterOrDelegate(caller, voter); err != nil {
		return 0, err
	}
	// both placing and removing votes are frozen while a settlement
	// pass may be running, so its iteration stays stable
	last, err := v.LastTimePremiumsCharged()
	if err != nil {
		return 0, err
	}
	if last != native.EpochStart(now) {
		return 0, errors.Wrapf(errVotesClosed, "last charged %d, epoch %d", last, native.EpochStart(now))
	}
	if newBPS > 0 {
		power, err := v.VotePowerOf(voter, now)
		if err != nil {
			return 0, err
		}
		if power.Sign() == 0 {
			return 0, errors.Wrapf(errNoVotePower, "voter %v", voter)
		}
		used, err := v.usedBPS(voter, gaugeID)
		if err != nil {
			return 0, err
		}
		if used+newBPS > native.MaxVoteBPS {
			return 0, errors.Wrapf(errOverBudget, "voter %v has %d used, adding %d", voter, used, newBPS)
		}
	}
	old, err := v.gauges.Vote(v.Address(), voter, gaugeID, newBPS)
	if err != nil {
		return 0, err
	}
	logger.Debug("vote", "voter", voter, "gauge", gaugeID, "bps", newBPS, "oldBPS", old)
	return old, nil
}

// usedBPS sums the voter's allocations on every gauge except the one
// being retargeted.
func (v *Voting) usedBPS(voter native.Address, excludeGauge uint64) (uint64, error) {
	gaugeIDs, bps, err := v.gauges.VotesOf(v.Address(), voter)
	if err != nil {
		return 0, err
	}
	var used uint64
	for i, id := range gaugeIDs {
		if id != excludeGauge {
			used += bps[i]
		}
	}
	return used, nil
}

// LastTimePremiumsCharged returns the epoch start of the last fully
// completed premium pass.
func (v *Voting) LastTimePremiumsCharged() (uint64, error) {
	t, err := v.lastCharged.Get()
	if err != nil {
		return 0, err
	}
	return t.Uint64(), nil
}

// InitializeEpoch seeds the settlement marker at bootstrap so voting
// opens immediately and the first pass runs next epoch.
func (v *Voting) InitializeEpoch(now uint64) {
	v.lastCharged.Set(new(big.Int).SetUint64(native.EpochStart(now)))
}
