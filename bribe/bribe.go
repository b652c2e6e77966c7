// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package bribe implements the bribe controller: third parties deposit
// whitelisted tokens on a gauge, voters opt their gauge votes into
// bribe-seeking, and each epoch's pass distributes every pool to those
// voters in proportion to vote power. Distributions land in claimable
// balances drained by an always-available claim.
package bribe

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/gauge"
	"github.com/solace-fi/solace-native/lockvote"
	"github.com/solace-fi/solace-native/log"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/storage"
	"github.com/solace-fi/solace-native/token"
)

var logger = log.WithContext("pkg", "bribe")

var (
	errNotGovernance    = errors.New("bribe: caller is not governance")
	errNotWhitelisted   = errors.New("bribe: token not whitelisted")
	errNoBribes         = errors.New("bribe: gauge has no bribes")
	errBribesNotSettled = errors.New("bribe: previous epoch not yet processed")
)

// Controller binds the bribe controller's storage and collaborators.
type Controller struct {
	context *storage.Context
	state   *state.State
	use     storage.UseUnitsFunc
	govern  native.Address
	voting  *lockvote.Voting
	gauges  *gauge.Controller

	whitelist        *storage.AddressSet
	gaugesWithBribes *storage.UintSet
	lastProcessed    *storage.Uint256
	phase            *storage.Uint256
	cursor           *storage.CursorCell

	lifetimeSlot    native.Bytes32
	poolSlot        native.Bytes32
	poolTokensSlot  native.Bytes32
	bribeVotersSlot native.Bytes32
	bribeBPSSlot    native.Bytes32
	claimableSlot   native.Bytes32
	claimTokensSlot native.Bytes32
	bribePowerSlot  native.Bytes32
}

// New binds the controller at addr.
func New(addr native.Address, st *state.State, use storage.UseUnitsFunc,
	govern native.Address, voting *lockvote.Voting, gc *gauge.Controller,
) *Controller {
	ctx := storage.NewContext(addr, st, use)
	return &Controller{
		context: ctx,
		state:   st,
		use:     use,
		govern:  govern,
		voting:  voting,
		gauges:  gc,

		whitelist:        storage.NewAddressSet(ctx, storage.Slot("token-whitelist")),
		gaugesWithBribes: storage.NewUintSet(ctx, storage.Slot("gauges-with-bribes")),
		lastProcessed:    storage.NewUint256(ctx, storage.Slot("last-time-bribes-processed")),
		phase:            storage.NewUint256(ctx, storage.Slot("process-phase")),
		cursor:           storage.NewCursorCell(ctx, storage.Slot("process-cursor")),

		lifetimeSlot:    storage.Slot("lifetime-provided"),
		poolSlot:        storage.Slot("bribe-pools"),
		poolTokensSlot:  storage.Slot("pool-tokens"),
		bribeVotersSlot: storage.Slot("bribe-voters"),
		bribeBPSSlot:    storage.Slot("bribe-bps"),
		claimableSlot:   storage.Slot("claimable"),
		claimTokensSlot: storage.Slot("claim-tokens"),
		bribePowerSlot:  storage.Slot("bribe-vote-power"),
	}
}

// Address returns the controller's account address, the custodian of
// all deposited bribes.
func (c *Controller) Address() native.Address {
	return c.context.Address()
}

func (c *Controller) tokenAt(addr native.Address) *token.Token {
	return token.New(addr, c.state, c.use)
}

func (c *Controller) pool(gaugeID uint64) *storage.Mapping[native.Address, *big.Int] {
	return storage.NewMapping[native.Address, *big.Int](c.context, storage.SubSlot(c.poolSlot, storage.UintKey(gaugeID)))
}

func (c *Controller) poolTokens(gaugeID uint64) *storage.AddressSet {
	return storage.NewAddressSet(c.context, storage.SubSlot(c.poolTokensSlot, storage.UintKey(gaugeID)))
}

func (c *Controller) bribeVoters(gaugeID uint64) *storage.AddressSet {
	return storage.NewAddressSet(c.context, storage.SubSlot(c.bribeVotersSlot, storage.UintKey(gaugeID)))
}

func (c *Controller) bribeBPS(gaugeID uint64) *storage.Mapping[native.Address, uint64] {
	return storage.NewMapping[native.Address, uint64](c.context, storage.SubSlot(c.bribeBPSSlot, storage.UintKey(gaugeID)))
}

func (c *Controller) lifetimeProvided(briber native.Address) *storage.Mapping[native.Address, *big.Int] {
	return storage.NewMapping[native.Address, *big.Int](c.context, storage.SubSlot(c.lifetimeSlot, briber))
}

func (c *Controller) claimable(voter native.Address) *storage.Mapping[native.Address, *big.Int] {
	return storage.NewMapping[native.Address, *big.Int](c.context, storage.SubSlot(c.claimableSlot, voter))
}

func (c *Controller) claimTokens(voter native.Address) *storage.AddressSet {
	return storage.NewAddressSet(c.context, storage.SubSlot(c.claimTokensSlot, voter))
}

func (c *Controller) bribePower() *storage.Mapping[storage.UintKey, *big.Int] {
	return storage.NewMapping[storage.UintKey, *big.Int](c.context, c.bribePowerSlot)
}

func (c *Controller) requireGovernance(caller native.Address) error {
	if caller != c.govern {
		return errors.Wrapf(errNotGovernance, "caller %v", caller)
	}
	return nil
}

// requireSettled gates mutations on the pipeline being fully settled
// for the current epoch, so an in-flight distribution pass never sees
// its collections change.
func (c *Controller) requireSettled(now uint64) error {
	last, err := c.LastTimeBribesProcessed()
	if err != nil {
		return err
	}
	if last != native.EpochStart(now) {
		return errors.Wrapf(errBribesNotSettled, "processed %d, epoch %d", last, native.EpochStart(now))
	}
	return nil
}

// LastTimeBribesProcessed returns the epoch start of the last fully
// completed distribution pass.
func (c *Controller) LastTimeBribesProcessed() (uint64, error) {
	t, err := c.lastProcessed.Get()
	if err != nil {
		return 0, err
	}
	return t.Uint64(), nil
}

// InitializeEpoch seeds the distribution marker at bootstrap.
func (c *Controller) InitializeEpoch(now uint64) {
	c.lastProcessed.Set(new(big.Int).SetUint64(native.EpochStart(now)))
}

//
// Token whitelist
//

// AddBribeToken whitelists a token for bribe deposits.
func (c *Controller) AddBribeToken(caller, tok native.Address) error {
	if err := c.requireGovernance(caller); err != nil {
		return err
	}
	if _, err := c.whitelist.Add(tok); err != nil {
		return err
	}
	logger.Info("whitelisted bribe token", "token", tok)
	return nil
}

// RemoveBribeToken removes a token from the whitelist. Already
// deposited pools are unaffected.
func (c *Controller) RemoveBribeToken(caller, tok native.Address) error {
	if err := c.requireGovernance(caller); err != nil {
		return err
	}
	_, err := c.whitelist.Remove(tok)
	return err
}

// IsBribeToken reports whether the token may be deposited.
func (c *Controller) IsBribeToken(tok native.Address) (bool, error) {
	return c.whitelist.Contains(tok)
}

//
// Deposits
//

// ProvideBribes deposits parallel token/amount slices on a gauge's
// bribe pools for the coming epoch.
func (c *Controller) ProvideBribes(briber native.Address, tokens []native.Address, amounts []*big.Int, gaugeID uint64, now uint64) error {
	cp := c.context.State().NewCheckpoint()
	if err := c.provideBribes(briber, tokens, amounts, gaugeID, now); err != nil {
		c.context.State().RevertTo(cp)
		logger.Info("provide bribes failed", "briber", briber, "gauge", gaugeID, "error", err)
		return err
	}
	logger.Debug("provided bribes", "briber", briber, "gauge", gaugeID, "tokens", len(tokens))
	return nil
}

func (c *Controller) provideBribes(briber native.Address, tokens []native.Address, amounts []*big.Int, gaugeID uint64, now uint64) error {
	if len(tokens) != len(amounts) {
		return errors.Errorf("bribe: length mismatch %d tokens, %d amounts", len(tokens), len(amounts))
	}
	if err := c.requireSettled(now); err != nil {
		return err
	}
	g, err := c.gauges.Get(gaugeID)
	if err != nil {
		return err
	}
	if !g.Active {
		return errors.Errorf("bribe: gauge %d is paused", gaugeID)
	}
	pool := c.pool(gaugeID)
	lifetime := c.lifetimeProvided(briber)
	for i, tok := range tokens {
		ok, err := c.whitelist.Contains(tok)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(errNotWhitelisted, "%v", tok)
		}
		if amounts[i].Sign() <= 0 {
			return errors.Errorf("bribe: amount must be positive")
		}
		if err := c.tokenAt(tok).Transfer(briber, c.Address(), amounts[i]); err != nil {
			return err
		}
		if err := addTo(pool, tok, amounts[i]); err != nil {
			return err
		}
		if _, err := c.poolTokens(gaugeID).Add(tok); err != nil {
			return err
		}
		if err := addTo(lifetime, tok, amounts[i]); err != nil {
			return err
		}
	}
	_, err = c.gaugesWithBribes.Add(storage.UintKey(gaugeID))
	return err
}

func addTo(m *storage.Mapping[native.Address, *big.Int], key native.Address, amount *big.Int) error {
	v, err := m.Get(key)
	if err != nil {
		return err
	}
	return m.Set(key, new(big.Int).Add(v, amount), v.Sign() == 0)
}

// PoolOf returns the gauge's undistributed pool of one token.
func (c *Controller) PoolOf(gaugeID uint64, tok native.Address) (*big.Int, error) {
	return c.pool(gaugeID).Get(tok)
}

// LifetimeProvided returns the briber's cumulative deposits of a token.
func (c *Controller) LifetimeProvided(briber, tok native.Address) (*big.Int, error) {
	return c.lifetimeProvided(briber).Get(tok)
}

//
// Bribe votes
//

// VoteForBribe places the underlying gauge vote through lock voting
// and registers the allocation as bribe-seeking. Storage for every
// current pool token's claimable entry is pre-paid with a sentinel so
// the heavy distribution pass only overwrites warm slots.
func (c *Controller) VoteForBribe(caller, voter native.Address, gaugeID uint64, votePowerBPS uint64, now uint64) error {
	cp := c.context.State().NewCheckpoint()
	if err := c.voteForBribe(caller, voter, gaugeID, votePowerBPS, now); err != nil {
		c.context.State().RevertTo(cp)
		return err
	}
	logger.Debug("vote for bribe", "voter", voter, "gauge", gaugeID, "bps", votePowerBPS)
	return nil
}

func (c *Controller) voteForBribe(caller, voter native.Address, gaugeID uint64, votePowerBPS uint64, now uint64) error {
	if votePowerBPS == 0 {
		return errors.New("bribe: zero BPS, use RemoveVoteForBribe")
	}
	if err := c.requireSettled(now); err != nil {
		return err
	}
	ok, err := c.gaugesWithBribes.Contains(storage.UintKey(gaugeID))
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(errNoBribes, "gauge %d", gaugeID)
	}
	if _, err := c.voting.Vote(caller, voter, gaugeID, votePowerBPS, now); err != nil {
		return err
	}
	if err := c.bribeBPS(gaugeID).Set(voter, votePowerBPS, true); err != nil {
		return err
	}
	if _, err := c.bribeVoters(gaugeID).Add(voter); err != nil {
		return err
	}

	// storage pre-pay: seed claimable slots with the sentinel
	claimable := c.claimable(voter)
	tokens, err := c.poolTokens(gaugeID).All()
	if err != nil {
		return err
	}
	for _, tok := range tokens {
		has, err := claimable.Has(tok)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if err := claimable.Set(tok, native.MaxUint256, true); err != nil {
			return err
		}
		if _, err := c.claimTokens(voter).Add(tok); err != nil {
			return err
		}
	}
	return nil
}

// RemoveVoteForBribe withdraws the underlying gauge vote and the
// bribe-seeking registration.
func (c *Controller) RemoveVoteForBribe(caller, voter native.Address, gaugeID uint64, now uint64) error {
	cp := c.context.State().NewCheckpoint()
	if err := c.removeVoteForBribe(caller, voter, gaugeID, now); err != nil {
		c.context.State().RevertTo(cp)
		return err
	}
	return nil
}

func (c *Controller) removeVoteForBribe(caller, voter native.Address, gaugeID uint64, now uint64) error {
	if err := c.requireSettled(now); err != nil {
		return err
	}
	if err := c.voting.RemoveVote(caller, voter, gaugeID, now); err != nil {
		return err
	}
	c.bribeBPS(gaugeID).Delete(voter)
	_, err := c.bribeVoters(gaugeID).Remove(voter)
	return err
}

// BribeBPSOf returns the voter's bribe-seeking BPS on a gauge.
func (c *Controller) BribeBPSOf(gaugeID uint64, voter native.Address) (uint64, error) {
	return c.bribeBPS(gaugeID).Get(voter)
}

//
// Claims
//

// Claimable returns the voter's pending balance of one token. Sentinel
// pre-paid entries read as zero.
func (c *Controller) Claimable(voter, tok native.Address) (*big.Int, error) {
	v, err := c.claimable(voter).Get(tok)
	if err != nil {
		return nil, err
	}
	if v.Cmp(native.MaxUint256) == 0 {
		return &big.Int{}, nil
	}
	return v, nil
}

// ClaimBribes drains the voter's entire claimable map. Entries still
// holding the pre-pay sentinel are skipped. All accounting is cleared
// before any token moves.
func (c *Controller) ClaimBribes(voter native.Address) error {
	cp := c.context.State().NewCheckpoint()
	if err := c.claimBribes(voter); err != nil {
		c.context.State().RevertTo(cp)
		logger.Info("claim bribes failed", "voter", voter, "error", err)
		return err
	}
	return nil
}

func (c *Controller) claimBribes(voter native.Address) error {
	claimable := c.claimable(voter)
	tokenSet := c.claimTokens(voter)
	tokens, err := tokenSet.All()
	if err != nil {
		return err
	}
	type payout struct {
		token  native.Address
		amount *big.Int
	}
	var payouts []payout
	for _, tok := range tokens {
		v, err := claimable.Get(tok)
		if err != nil {
			return err
		}
		claimable.Delete(tok)
		if v.Cmp(native.MaxUint256) == 0 || v.Sign() == 0 {
			continue
		}
		payouts = append(payouts, payout{tok, v})
	}
	for _, tok := range tokens {
		if _, err := tokenSet.Remove(tok); err != nil {
			return err
		}
	}
	// transfers last, after every claimable entry is consumed
	for _, p := range payouts {
		if err := c.tokenAt(p.token).Transfer(c.Address(), voter, p.amount); err != nil {
			return err
		}
		logger.Debug("claimed bribe", "voter", voter, "token", p.token, "amount", p.amount)
	}
	return nil
}

// RescueTokens moves a stranded pool (one no distribution pass could
// consume, because no vote power participated) to a recipient.
func (c *Controller) RescueTokens(caller native.Address, gaugeID uint64, tok, recipient native.Address) error {
	if err := c.requireGovernance(caller); err != nil {
		return err
	}
	queued, err := c.gaugesWithBribes.Contains(storage.UintKey(gaugeID))
	if err != nil {
		return err
	}
	if queued {
		return errors.Errorf("bribe: gauge %d pools are queued for distribution", gaugeID)
	}
	cp := c.context.State().NewCheckpoint()
	if err := c.rescueTokens(gaugeID, tok, recipient); err != nil {
		c.context.State().RevertTo(cp)
		return err
	}
	logger.Info("rescued pool", "gauge", gaugeID, "token", tok, "recipient", recipient)
	return nil
}

func (c *Controller) rescueTokens(gaugeID uint64, tok, recipient native.Address) error {
	amount, err := c.pool(gaugeID).Get(tok)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return errors.Errorf("bribe: nothing to rescue for gauge %d token %v", gaugeID, tok)
	}
	c.pool(gaugeID).Delete(tok)
	if _, err := c.poolTokens(gaugeID).Remove(tok); err != nil {
		return err
	}
	return c.tokenAt(tok).Transfer(c.Address(), recipient, amount)
}
