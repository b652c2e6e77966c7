// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package bribe

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-fi/solace-native/budget"
	"github.com/solace-fi/solace-native/gauge"
	"github.com/solace-fi/solace-native/locker"
	"github.com/solace-fi/solace-native/lockvote"
	"github.com/solace-fi/solace-native/lvldb"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/oracle"
	"github.com/solace-fi/solace-native/registry"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/token"
)

var (
	epoch0 = native.EpochStart(1735689600)
	epoch1 = epoch0 + native.EpochLength

	govern = native.BytesToAddress([]byte("governance"))
	sink   = native.BytesToAddress([]byte("revenue-sink"))
	pool   = native.BytesToAddress([]byte("pool"))
	briber = native.BytesToAddress([]byte("briber"))
	alice  = native.BytesToAddress([]byte("alice"))
	bob    = native.BytesToAddress([]byte("bob"))
)

type system struct {
	st     *state.State
	tok    *token.Token
	dai    *token.Token
	locker *locker.Locker
	gauges *gauge.Controller
	voting *lockvote.Voting
	bribes *Controller
}

func amount(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), native.Unit)
}

func newTestSystem(t *testing.T) *system {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := state.New(db)

	reg := registry.New(native.BytesToAddress([]byte("registry")), st)
	tok := token.New(native.BytesToAddress([]byte("uwe")), st, nil)
	dai := token.New(native.BytesToAddress([]byte("dai")), st, nil)
	orc := oracle.NewFixedPrices(native.BytesToAddress([]byte("oracle")), st)
	lk := locker.New(native.BytesToAddress([]byte("locker")), st, nil, tok)
	gc := gauge.New(native.BytesToAddress([]byte("gauge-controller")), st, nil, govern, reg, tok, orc)
	voting := lockvote.New(native.BytesToAddress([]byte("lock-voting")), st, nil, lk, gc, tok, reg)
	bc := New(native.BytesToAddress([]byte("bribe-controller")), st, nil, govern, voting, gc)

	require.NoError(t, reg.Set(registry.KeyUnderwritingPool, pool))
	require.NoError(t, reg.Set(registry.KeyRevenueSink, sink))
	require.NoError(t, reg.SetNumber(registry.KeyLeverageFactor, native.Unit))
	require.NoError(t, tok.Mint(pool, amount(1000000)))
	require.NoError(t, orc.SetPrice(tok.Address(), native.Unit))
	require.NoError(t, tok.Mint(alice, amount(10000)))
	require.NoError(t, tok.Mint(bob, amount(10000)))
	require.NoError(t, dai.Mint(briber, amount(1000)))

	require.NoError(t, gc.AddVotingContract(govern, voting.Address()))
	gc.RegisterVoteSource(voting)
	lk.RegisterListener(voting)

	gc.InitializeEpoch(epoch0)
	voting.InitializeEpoch(epoch0)
	bc.InitializeEpoch(epoch0)

	require.NoError(t, bc.AddBribeToken(govern, dai.Address()))

	s := &system{st: st, tok: tok, dai: dai, locker: lk, gauges: gc, voting: voting, bribes: bc}
	s.addGauge(t, "a")
	s.addGauge(t, "b")
	return s
}

func (s *system) addGauge(t *testing.T, name string) uint64 {
	rate := new(big.Int).Div(native.Unit, big.NewInt(20)) // 5% annualized
	id, err := s.gauges.AddGauge(govern, name, rate)
	require.NoError(t, err)
	return id
}

// lockFor creates a lock whose vote power is exactly amount at epoch1.
func (s *system) lockFor(t *testing.T, owner native.Address, tokens int64) {
	_, err := s.locker.CreateLock(owner, amount(tokens), epoch1+26*native.EpochLength, epoch0)
	require.NoError(t, err)
}

// settleUpstream completes the epoch's gauge weight and premium passes.
func (s *system) settleUpstream(t *testing.T, now uint64) {
	done, err := s.gauges.UpdateGaugeWeights(budget.NewUnlimitedMeter(), now)
	require.NoError(t, err)
	require.True(t, done)
	done, err = s.voting.ChargePremiums(budget.NewUnlimitedMeter(), now)
	require.NoError(t, err)
	require.True(t, done)
}

func TestBribeTokenWhitelist(t *testing.T) {
	s := newTestSystem(t)
	usdc := native.BytesToAddress([]byte("usdc"))

	assert.Error(t, s.bribes.AddBribeToken(alice, usdc), "only governance whitelists")

	ok, err := s.bribes.IsBribeToken(s.dai.Address())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.bribes.IsBribeToken(usdc)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.bribes.AddBribeToken(govern, usdc))
	ok, _ = s.bribes.IsBribeToken(usdc)
	assert.True(t, ok)

	require.NoError(t, s.bribes.RemoveBribeToken(govern, usdc))
	ok, _ = s.bribes.IsBribeToken(usdc)
	assert.False(t, ok)
}

func TestProvideBribes(t *testing.T) {
	s := newTestSystem(t)
	usdc := native.BytesToAddress([]byte("usdc"))

	err := s.bribes.ProvideBribes(briber, []native.Address{usdc}, []*big.Int{amount(10)}, 1, epoch0)
	assert.ErrorContains(t, err, "not whitelisted")

	err = s.bribes.ProvideBribes(briber, []native.Address{s.dai.Address()}, []*big.Int{&big.Int{}}, 1, epoch0)
	assert.ErrorContains(t, err, "positive")

	require.NoError(t, s.gauges.PauseGauge(govern, 2))
	err = s.bribes.ProvideBribes(briber, []native.Address{s.dai.Address()}, []*big.Int{amount(10)}, 2, epoch0)
	assert.ErrorContains(t, err, "paused")

	require.NoError(t, s.bribes.ProvideBribes(briber, []native.Address{s.dai.Address()}, []*big.Int{amount(100)}, 1, epoch0))

	got, err := s.bribes.PoolOf(1, s.dai.Address())
	require.NoError(t, err)
	assert.Equal(t, amount(100), got)
	got, err = s.bribes.LifetimeProvided(briber, s.dai.Address())
	require.NoError(t, err)
	assert.Equal(t, amount(100), got)
	bal, _ := s.dai.BalanceOf(s.bribes.Address())
	assert.Equal(t, amount(100), bal)
	bal, _ = s.dai.BalanceOf(briber)
	assert.Equal(t, amount(900), bal)

	// a second deposit accumulates
	require.NoError(t, s.bribes.ProvideBribes(briber, []native.Address{s.dai.Address()}, []*big.Int{amount(50)}, 1, epoch0))
	got, _ = s.bribes.PoolOf(1, s.dai.Address())
	assert.Equal(t, amount(150), got)
}

func TestVoteForBribe(t *testing.T) {
	s := newTestSystem(t)
	s.lockFor(t, alice, 1000)

	err := s.bribes.VoteForBribe(alice, alice, 1, 0, epoch0)
	assert.ErrorContains(t, err, "zero BPS")

	err = s.bribes.VoteForBribe(alice, alice, 1, 5000, epoch0)
	assert.ErrorContains(t, err, "no bribes")

	require.NoError(t, s.bribes.ProvideBribes(briber, []native.Address{s.dai.Address()}, []*big.Int{amount(100)}, 1, epoch0))
	require.NoError(t, s.bribes.VoteForBribe(alice, alice, 1, 5000, epoch0))

	// the underlying gauge vote was placed
	bps, err := s.gauges.VoteOf(s.voting.Address(), alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), bps)
	bps, err = s.bribes.BribeBPSOf(1, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), bps)

	// the pre-paid claimable slot reads as zero
	claimable, err := s.bribes.Claimable(alice, s.dai.Address())
	require.NoError(t, err)
	assert.Equal(t, 0, claimable.Sign())

	// a claim before distribution pays nothing
	require.NoError(t, s.bribes.ClaimBribes(alice))
	bal, _ := s.dai.BalanceOf(alice)
	assert.Equal(t, 0, bal.Sign())

	require.NoError(t, s.bribes.RemoveVoteForBribe(alice, alice, 1, epoch0))
	bps, _ = s.bribes.BribeBPSOf(1, alice)
	assert.Equal(t, uint64(0), bps)
	bps, _ = s.gauges.VoteOf(s.voting.Address(), alice, 1)
	assert.Equal(t, uint64(0), bps)
}

func TestMutationsGateOnSettlement(t *testing.T) {
	s := newTestSystem(t)
	s.lockFor(t, alice, 1000)
	require.NoError(t, s.bribes.ProvideBribes(briber, []native.Address{s.dai.Address()}, []*big.Int{amount(100)}, 1, epoch0))

	// epoch1 started; the previous epoch has not been processed yet
	err := s.bribes.ProvideBribes(briber, []native.Address{s.dai.Address()}, []*big.Int{amount(10)}, 1, epoch1)
	assert.ErrorContains(t, err, "not yet processed")
	err = s.bribes.VoteForBribe(alice, alice, 1, 5000, epoch1)
	assert.ErrorContains(t, err, "not yet processed")
	err = s.bribes.RemoveVoteForBribe(alice, alice, 1, epoch1)
	assert.ErrorContains(t, err, "not yet processed")
}

func TestProcessBribes(t *testing.T) {
	s := newTestSystem(t)
	s.lockFor(t, alice, 1000)
	s.lockFor(t, bob, 500)

	require.NoError(t, s.bribes.ProvideBribes(briber, []native.Address{s.dai.Address()}, []*big.Int{amount(100)}, 1, epoch0))
	require.NoError(t, s.bribes.VoteForBribe(alice, alice, 1, 5000, epoch0))
	require.NoError(t, s.bribes.VoteForBribe(bob, bob, 1, 10000, epoch0))

	_, err := s.bribes.ProcessBribes(budget.NewUnlimitedMeter(), epoch1)
	assert.ErrorContains(t, err, "not settled", "upstream passes must settle first")

	s.settleUpstream(t, epoch1)
	done, err := s.bribes.ProcessBribes(budget.NewUnlimitedMeter(), epoch1)
	require.NoError(t, err)
	require.True(t, done)

	// alice chases with 1000e18 * 50% = 500e18, bob with 500e18 * 100%;
	// a 100 dai pool splits 50/50
	claimable, err := s.bribes.Claimable(alice, s.dai.Address())
	require.NoError(t, err)
	assert.Equal(t, amount(50), claimable)
	claimable, err = s.bribes.Claimable(bob, s.dai.Address())
	require.NoError(t, err)
	assert.Equal(t, amount(50), claimable)

	// accounting consumed
	poolLeft, _ := s.bribes.PoolOf(1, s.dai.Address())
	assert.Equal(t, 0, poolLeft.Sign())
	bps, _ := s.bribes.BribeBPSOf(1, alice)
	assert.Equal(t, uint64(0), bps)
	last, err := s.bribes.LastTimeBribesProcessed()
	require.NoError(t, err)
	assert.Equal(t, epoch1, last)

	_, err = s.bribes.ProcessBribes(budget.NewUnlimitedMeter(), epoch1)
	assert.True(t, errors.Is(err, ErrAlreadyProcessed))

	// claims drain and are idempotent
	require.NoError(t, s.bribes.ClaimBribes(alice))
	bal, _ := s.dai.BalanceOf(alice)
	assert.Equal(t, amount(50), bal)
	require.NoError(t, s.bribes.ClaimBribes(alice))
	bal, _ = s.dai.BalanceOf(alice)
	assert.Equal(t, amount(50), bal)

	require.NoError(t, s.bribes.ClaimBribes(bob))
	bal, _ = s.dai.BalanceOf(s.bribes.Address())
	assert.Equal(t, 0, bal.Sign(), "every provided token was distributed")
}

func TestProcessBribesSuspendsAndResumes(t *testing.T) {
	setup := func(t *testing.T) *system {
		s := newTestSystem(t)
		s.lockFor(t, alice, 1000)
		s.lockFor(t, bob, 500)
		usdc := token.New(native.BytesToAddress([]byte("usdc")), s.st, nil)
		require.NoError(t, usdc.Mint(briber, amount(500)))
		require.NoError(t, s.bribes.AddBribeToken(govern, usdc.Address()))

		require.NoError(t, s.bribes.ProvideBribes(briber,
			[]native.Address{s.dai.Address(), usdc.Address()},
			[]*big.Int{amount(100), amount(40)}, 1, epoch0))
		require.NoError(t, s.bribes.ProvideBribes(briber,
			[]native.Address{s.dai.Address()}, []*big.Int{amount(60)}, 2, epoch0))
		require.NoError(t, s.bribes.VoteForBribe(alice, alice, 1, 5000, epoch0))
		require.NoError(t, s.bribes.VoteForBribe(alice, alice, 2, 5000, epoch0))
		require.NoError(t, s.bribes.VoteForBribe(bob, bob, 1, 10000, epoch0))

		s.settleUpstream(t, epoch1)
		return s
	}

	oneShot := setup(t)
	done, err := oneShot.bribes.ProcessBribes(budget.NewUnlimitedMeter(), epoch1)
	require.NoError(t, err)
	require.True(t, done)

	metered := setup(t)
	passes := 0
	for {
		passes++
		require.Less(t, passes, 100, "pass never completes")
		done, err := metered.bribes.ProcessBribes(budget.NewMeter(60000), epoch1)
		require.NoError(t, err)
		if done {
			break
		}
	}
	assert.Greater(t, passes, 1, "the allowance forces at least one suspension")

	for _, voter := range []native.Address{alice, bob} {
		for _, tokAddr := range []native.Address{
			native.BytesToAddress([]byte("dai")),
			native.BytesToAddress([]byte("usdc")),
		} {
			want, err := oneShot.bribes.Claimable(voter, tokAddr)
			require.NoError(t, err)
			got, err := metered.bribes.Claimable(voter, tokAddr)
			require.NoError(t, err)
			assert.Equal(t, want, got, "claimable differs for %v %v", voter, tokAddr)
		}
	}
}

func TestRescueStrandedPool(t *testing.T) {
	s := newTestSystem(t)
	s.lockFor(t, alice, 1000)

	// bribes deposited but nobody chases them
	require.NoError(t, s.bribes.ProvideBribes(briber, []native.Address{s.dai.Address()}, []*big.Int{amount(100)}, 1, epoch0))

	err := s.bribes.RescueTokens(govern, 1, s.dai.Address(), sink)
	assert.ErrorContains(t, err, "queued for distribution", "a queued pool cannot be rescued")

	s.settleUpstream(t, epoch1)
	done, err := s.bribes.ProcessBribes(budget.NewUnlimitedMeter(), epoch1)
	require.NoError(t, err)
	require.True(t, done)

	// the pass consumed nothing: the pool is stranded, not distributed
	poolLeft, err := s.bribes.PoolOf(1, s.dai.Address())
	require.NoError(t, err)
	assert.Equal(t, amount(100), poolLeft)

	assert.Error(t, s.bribes.RescueTokens(alice, 1, s.dai.Address(), sink), "only governance rescues")
	require.NoError(t, s.bribes.RescueTokens(govern, 1, s.dai.Address(), sink))
	bal, _ := s.dai.BalanceOf(sink)
	assert.Equal(t, amount(100), bal)
	poolLeft, _ = s.bribes.PoolOf(1, s.dai.Address())
	assert.Equal(t, 0, poolLeft.Sign())

	assert.Error(t, s.bribes.RescueTokens(govern, 1, s.dai.Address(), sink), "nothing left to rescue")
}
