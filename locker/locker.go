// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package locker implements the lock registry: time-weighted locked-stake
// positions of the equity token.
//
// A lock holds an amount until its unlock time and grants vote power
// scaled by a square-root-of-time-remaining multiplier. The registry owns
// the locked tokens; deposits move tokens in, withdrawals move them out,
// and premium charges reduce lock amounts in place.
package locker

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/log"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/storage"
	"github.com/solace-fi/solace-native/token"
)

var (
	logger = log.WithContext("pkg", "locker")

	// MinLockDuration and MaxLockDuration bound the unlock time at
	// creation and extension, relative to now.
	MinLockDuration = storage.NewConfigVariable("locker-min-lock-duration", native.EpochLength)
	MaxLockDuration = storage.NewConfigVariable("locker-max-lock-duration", 4*native.Year)

	// maxMultiplierPeriod is the remaining duration at which the vote
	// power multiplier reaches 1e18 (26 weeks).
	maxMultiplierPeriod = new(big.Int).SetUint64(26 * native.EpochLength)
)

var (
	errLockNotFound = errors.New("locker: lock not found")
	errNotUnlocked  = errors.New("locker: lock has not expired")
	errNotOwner     = errors.New("locker: caller does not own lock")
)

// Lock is one locked-stake position.
type Lock struct {
	Owner  native.Address
	Amount *big.Int
	End    uint64 // unlock timestamp
}

// Listener observes lock mutations. An error aborts the mutation.
type Listener interface {
	OnLockUpdated(lockID uint64, old, updated *Lock) error
}

// Locker implements the lock registry over state.
type Locker struct {
	context   *storage.Context
	token     *token.Token
	listeners []Listener

	locks     *storage.Mapping[storage.UintKey, *Lock]
	numLocks  *storage.Uint256
	ownerKeys func(owner native.Address) *storage.UintSet
}

// New binds the lock registry at addr. The token is the equity token the
// registry takes custody of.
func New(addr native.Address, st *state.State, use storage.UseUnitsFunc, tok *token.Token) *Locker {
	ctx := storage.NewContext(addr, st, use)
	MinLockDuration.Override(ctx)
	MaxLockDuration.Override(ctx)

	ownerSlot := storage.Slot("locks-by-owner")
	return &Locker{
		context:  ctx,
		token:    tok,
		locks:    storage.NewMapping[storage.UintKey, *Lock](ctx, storage.Slot("locks")),
		numLocks: storage.NewUint256(ctx, storage.Slot("num-locks")),
		ownerKeys: func(owner native.Address) *storage.UintSet {
			return storage.NewUintSet(ctx, storage.SubSlot(ownerSlot, owner))
		},
	}
}

// Address returns the registry's account address, the custodian of all
// locked tokens.
func (l *Locker) Address() native.Address {
	return l.context.Address()
}

// RegisterListener appends a mutation observer. Listeners run
// synchronously in registration order; the first error aborts the
// mutation.
func (l *Locker) RegisterListener(listener Listener) {
	l.listeners = append(l.listeners, listener)
}

// Get returns the lock, or an error when the id was never created.
// A zeroed (fully withdrawn) lock is still returned.
func (l *Locker) Get(lockID uint64) (*Lock, error) {
	has, err := l.locks.Has(storage.UintKey(lockID))
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.Wrapf(errLockNotFound, "id %d", lockID)
	}
	return l.locks.Get(storage.UintKey(lockID))
}

// Exists reports whether the lock id was ever created.
func (l *Locker) Exists(lockID uint64) (bool, error) {
	return l.locks.Has(storage.UintKey(lockID))
}

// NumLocks returns the number of locks ever created. Lock ids are
// 1..NumLocks; id 0 is never used.
func (l *Locker) NumLocks() (uint64, error) {
	n, err := l.numLocks.Get()
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// LocksOf returns the owner's live lock ids in creation order
// (perturbed by swap-removal of withdrawn locks).
func (l *Locker) LocksOf(owner native.Address) ([]uint64, error) {
	keys, err := l.ownerKeys(owner).All()
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(keys))
	for i, k := range keys {
		ids[i] = uint64(k)
	}
	return ids, nil
}

// CreateLock locks amount of the owner's tokens until end. Returns the
// new lock's id.
func (l *Locker) CreateLock(owner native.Address, amount *big.Int, end, now uint64) (uint64, error) {
	cp := l.context.State().NewCheckpoint()

	id, err := l.createLock(owner, amount, end, now)
	if err != nil {
		l.context.State().RevertTo(cp)
		logger.Info("create lock failed", "owner", owner, "error", err)
		return 0, err
	}
	logger.Debug("created lock", "id", id, "owner", owner, "amount", amount, "end", end)
	return id, nil
}

func (l *Locker) createLock(owner native.Address, amount *big.Int, end, now uint64) (uint64, error) {
	if amount.Sign() <= 0 {
		return 0, errors.New("locker: amount must be positive")
	}
	if err := checkDuration(end, now); err != nil {
		return 0, err
	}
	if err := l.token.Transfer(owner, l.Address(), amount); err != nil {
		return 0, err
	}

	n, err := l.NumLocks()
	if err != nil {
		return 0, err
	}
	id := n + 1
	lock := &Lock{Owner: owner, Amount: amount, End: end}
	if err := l.locks.Set(storage.UintKey(id), lock, true); err != nil {
		return 0, err
	}
	if err := l.numLocks.Add(big.NewInt(1)); err != nil {
		return 0, err
	}
	if _, err := l.ownerKeys(owner).Add(storage.UintKey(id)); err != nil {
		return 0, err
	}
	return id, l.notify(id, nil, lock)
}

// IncreaseAmount adds depositor's tokens to an existing lock.
func (l *Locker) IncreaseAmount(depositor native.Address, lockID uint64, amount *big.Int) error {
	cp := l.context.State().NewCheckpoint()
	err := l.mutate(lockID, func(lock *Lock) error {
		if amount.Sign() <= 0 {
			return errors.New("locker: amount must be positive")
		}
		if lock.Amount.Sign() == 0 {
			return errors.Wrapf(errLockNotFound, "id %d is burned", lockID)
		}
		if err := l.token.Transfer(depositor, l.Address(), amount); err != nil {
			return err
		}
		lock.Amount = new(big.Int).Add(lock.Amount, amount)
		return nil
	})
	if err != nil {
		l.context.State().RevertTo(cp)
		return err
	}
	logger.Debug("increased lock", "id", lockID, "amount", amount)
	return nil
}

// ExtendLock moves the lock's unlock time further out. Only the owner
// may extend, and only forward.
func (l *Locker) ExtendLock(caller native.Address, lockID uint64, end, now uint64) error {
	cp := l.context.State().NewCheckpoint()
	err := l.mutate(lockID, func(lock *Lock) error {
		if lock.Owner != caller {
			return errors.Wrapf(errNotOwner, "id %d", lockID)
		}
		if end <= lock.End {
			return errors.New("locker: end must extend the lock")
		}
		if err := checkDuration(end, now); err != nil {
			return err
		}
		lock.End = end
		return nil
	})
	if err != nil {
		l.context.State().RevertTo(cp)
		return err
	}
	logger.Debug("extended lock", "id", lockID, "end", end)
	return nil
}

// Withdraw pays out up to amount from an expired lock to its owner. A
// withdrawal of the full remaining amount zeroes (burns) the lock and
// drops it from the owner's list.
func (l *Locker) Withdraw(caller native.Address, lockID uint64, amount *big.Int, now uint64) error {
	cp := l.context.State().NewCheckpoint()
	if err := l.withdraw(caller, lockID, amount, now); err != nil {
		l.context.State().RevertTo(cp)
		logger.Info("withdraw failed", "id", lockID, "error", err)
		return err
	}
	logger.Debug("withdrew from lock", "id", lockID, "amount", amount)
	return nil
}

func (l *Locker) withdraw(caller native.Address, lockID uint64, amount *big.Int, now uint64) error {
	lock, err := l.Get(lockID)
	if err != nil {
		return err
	}
	if lock.Owner != caller {
		return errors.Wrapf(errNotOwner, "id %d", lockID)
	}
	if now < lock.End {
		return errors.Wrapf(errNotUnlocked, "id %d unlocks at %d, now %d", lockID, lock.End, now)
	}
	if amount.Sign() <= 0 || amount.Cmp(lock.Amount) > 0 {
		return errors.Errorf("locker: invalid withdraw amount %v of %v", amount, lock.Amount)
	}

	old := *lock
	updated := &Lock{Owner: lock.Owner, Amount: new(big.Int).Sub(lock.Amount, amount), End: lock.End}
	if err := l.locks.Set(storage.UintKey(lockID), updated, false); err != nil {
		return err
	}
	if updated.Amount.Sign() == 0 {
		if _, err := l.ownerKeys(lock.Owner).Remove(storage.UintKey(lockID)); err != nil {
			return err
		}
	}
	if err := l.token.Transfer(l.Address(), lock.Owner, amount); err != nil {
		return err
	}
	return l.notify(lockID, &old, updated)
}

// ChargePremium deducts amount from the lock without an unlock-time
// check or listener fan-out. Errors when the lock cannot cover it. A
// lock zeroed by a charge stays in its owner's list so a settlement
// pass iterating that list keeps a stable order; it simply carries
// zero power and zero share from then on.
func (l *Locker) ChargePremium(lockID uint64, amount *big.Int) error {
	lock, err := l.Get(lockID)
	if err != nil {
		return err
	}
	if lock.Amount.Cmp(amount) < 0 {
		return errors.Errorf("locker: premium %v exceeds lock %d amount %v", amount, lockID, lock.Amount)
	}
	lock.Amount = new(big.Int).Sub(lock.Amount, amount)
	return l.locks.Set(storage.UintKey(lockID), lock, false)
}

// VotePowerOf returns the lock's vote power at time now:
// amount * multiplier / 1e18. Burned and nonexistent locks have zero
// power, not an error, so aggregation loops tolerate stale ids.
func (l *Locker) VotePowerOf(lockID uint64, now uint64) (*big.Int, error) {
	has, err := l.locks.Has(storage.UintKey(lockID))
	if err != nil {
		return nil, err
	}
	if !has {
		return &big.Int{}, nil
	}
	lock, err := l.locks.Get(storage.UintKey(lockID))
	if err != nil {
		return nil, err
	}
	power := new(big.Int).Mul(lock.Amount, multiplier(lock.End, now))
	return power.Div(power, native.Unit), nil
}

// multiplier returns 1e18 * sqrt(remaining / 26 weeks), zero once
// expired. It crosses 1e18 exactly at 26 weeks remaining.
func multiplier(end, now uint64) *big.Int {
	if now >= end {
		return &big.Int{}
	}
	remaining := new(big.Int).SetUint64(end - now)
	// sqrt(1e36 * remaining / period) == 1e18 * sqrt(remaining / period)
	m := new(big.Int).Mul(remaining, new(big.Int).Mul(native.Unit, native.Unit))
	m.Div(m, maxMultiplierPeriod)
	return m.Sqrt(m)
}

func (l *Locker) mutate(lockID uint64, fn func(*Lock) error) error {
	lock, err := l.Get(lockID)
	if err != nil {
		return err
	}
	old := *lock
	if err := fn(lock); err != nil {
		return err
	}
	if err := l.locks.Set(storage.UintKey(lockID), lock, false); err != nil {
		return err
	}
	return l.notify(lockID, &old, lock)
}

func checkDuration(end, now uint64) error {
	if end < now+MinLockDuration.Get() || end > now+MaxLockDuration.Get() {
		return errors.Errorf("locker: end %d out of bounds [%d, %d]",
			end, now+MinLockDuration.Get(), now+MaxLockDuration.Get())
	}
	return nil
}

func (l *Locker) notify(lockID uint64, old, updated *Lock) error {
	for _, listener := range l.listeners {
		if err := listener.OnLockUpdated(lockID, old, updated); err != nil {
			return errors.Wrap(err, "locker: listener rejected mutation")
		}
	}
	return nil
}
