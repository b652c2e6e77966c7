// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gauge

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-fi/solace-native/budget"
	"github.com/solace-fi/solace-native/lvldb"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/oracle"
	"github.com/solace-fi/solace-native/registry"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/token"
)

const testNow = uint64(1735689600)

var (
	govern = native.BytesToAddress([]byte("governance"))
	vcAddr = native.BytesToAddress([]byte("lock-voting"))
	alice  = native.BytesToAddress([]byte("alice"))
	bob    = native.BytesToAddress([]byte("bob"))
	carol  = native.BytesToAddress([]byte("carol"))
)

// stubVoting is an in-memory vote power source.
type stubVoting struct {
	addr   native.Address
	powers map[native.Address]*big.Int
	cached map[uint64]map[native.Address]*big.Int
}

func newStubVoting() *stubVoting {
	return &stubVoting{
		addr:   vcAddr,
		powers: make(map[native.Address]*big.Int),
		cached: make(map[uint64]map[native.Address]*big.Int),
	}
}

func (s *stubVoting) Address() native.Address { return s.addr }

func (s *stubVoting) VotePowerOf(voter native.Address, _ uint64) (*big.Int, error) {
	if p, ok := s.powers[voter]; ok {
		return p, nil
	}
	return &big.Int{}, nil
}

func (s *stubVoting) CacheVotePower(voter native.Address, epochStart uint64, power *big.Int) error {
	m := s.cached[epochStart]
	if m == nil {
		m = make(map[native.Address]*big.Int)
		s.cached[epochStart] = m
	}
	m[voter] = power
	return nil
}

func (s *stubVoting) CachedVotePower(voter native.Address, epochStart uint64) (*big.Int, error) {
	if p, ok := s.cached[epochStart][voter]; ok {
		return p, nil
	}
	return &big.Int{}, nil
}

func amount(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), native.Unit)
}

func newTestController(t *testing.T) (*Controller, *stubVoting) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	st := state.New(db)

	reg := registry.New(native.BytesToAddress([]byte("registry")), st)
	tok := token.New(native.BytesToAddress([]byte("uwe")), st, nil)
	orc := oracle.NewFixedPrices(native.BytesToAddress([]byte("oracle")), st)

	pool := native.BytesToAddress([]byte("pool"))
	require.NoError(t, reg.Set(registry.KeyUnderwritingPool, pool))
	require.NoError(t, reg.SetNumber(registry.KeyLeverageFactor, amount(2)))
	require.NoError(t, tok.Mint(pool, amount(1000)))
	require.NoError(t, orc.SetPrice(tok.Address(), amount(1)))

	c := New(native.BytesToAddress([]byte("gauge-controller")), st, nil, govern, reg, tok, orc)
	src := newStubVoting()
	require.NoError(t, c.AddVotingContract(govern, src.Address()))
	c.RegisterVoteSource(src)
	return c, src
}

func addGauges(t *testing.T, c *Controller, names ...string) {
	for _, name := range names {
		_, err := c.AddGauge(govern, name, amount(1))
		require.NoError(t, err)
	}
}

func TestGaugeRegistry(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.AddGauge(alice, "aave-v3", amount(1))
	assert.Error(t, err, "only governance adds gauges")

	id, err := c.AddGauge(govern, "aave-v3", amount(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id, "ids start at 1")

	id2, err := c.AddGauge(govern, "compound-v3", amount(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id2)

	n, err := c.NumGauges()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	g, err := c.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "aave-v3", g.Name)
	assert.True(t, g.Active)
	assert.Equal(t, amount(1), g.RateOnLine)

	_, err = c.Get(0)
	assert.Error(t, err, "gauge 0 never exists")
	_, err = c.Get(3)
	assert.Error(t, err)

	require.NoError(t, c.PauseGauge(govern, 1))
	g, _ = c.Get(1)
	assert.False(t, g.Active)
	require.NoError(t, c.UnpauseGauge(govern, 1))
	g, _ = c.Get(1)
	assert.True(t, g.Active)

	require.NoError(t, c.SetRateOnLine(govern, 2, amount(3)))
	rate, err := c.RateOnLine(2)
	require.NoError(t, err)
	assert.Equal(t, amount(3), rate)
}

func TestVoteLedger(t *testing.T) {
	c, _ := newTestController(t)
	addGauges(t, c, "a", "b")

	_, err := c.Vote(native.BytesToAddress([]byte("bogus")), alice, 1, 100)
	assert.Error(t, err, "unregistered voting contract")

	_, err = c.Vote(vcAddr, alice, 0, 100)
	assert.Error(t, err, "gauge 0 is rejected")

	_, err = c.Vote(vcAddr, alice, 1, native.MaxVoteBPS+1)
	assert.Error(t, err, "BPS above the cap")

	old, err := c.Vote(vcAddr, alice, 1, 4000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), old)

	old, err = c.Vote(vcAddr, alice, 1, 2500)
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), old, "a re-vote returns the replaced BPS")

	_, err = c.Vote(vcAddr, alice, 2, 1000)
	require.NoError(t, err)

	ids, bps, err := c.VotesOf(vcAddr, alice)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, ids)
	assert.Equal(t, []uint64{2500, 1000}, bps)

	voters, err := c.VotersOf(vcAddr)
	require.NoError(t, err)
	assert.Equal(t, []native.Address{alice}, voters)

	// pausing blocks new weight but not removal
	require.NoError(t, c.PauseGauge(govern, 1))
	_, err = c.Vote(vcAddr, bob, 1, 100)
	assert.Error(t, err)
	old, err = c.Vote(vcAddr, alice, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), old)

	// removing the last vote drops the voter from the set
	_, err = c.Vote(vcAddr, alice, 2, 0)
	require.NoError(t, err)
	voters, err = c.VotersOf(vcAddr)
	require.NoError(t, err)
	assert.Empty(t, voters)

	got, err := c.VoteOf(vcAddr, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)
}

func TestUpdateGaugeWeights(t *testing.T) {
	c, src := newTestController(t)
	addGauges(t, c, "a", "b", "c")

	src.powers[alice] = amount(1000)
	src.powers[bob] = amount(600)

	_, err := c.Vote(vcAddr, alice, 1, 6000)
	require.NoError(t, err)
	_, err = c.Vote(vcAddr, alice, 2, 4000)
	require.NoError(t, err)
	_, err = c.Vote(vcAddr, bob, 2, 5000)
	require.NoError(t, err)
	_, err = c.Vote(vcAddr, bob, 3, 5000)
	require.NoError(t, err)

	done, err := c.UpdateGaugeWeights(budget.NewUnlimitedMeter(), testNow)
	require.NoError(t, err)
	assert.True(t, done)

	// gauge 1: 1000 * 60%; gauge 2: 1000 * 40% + 600 * 50%; gauge 3: 600 * 50%
	p1, _ := c.VotePowerOfGauge(1)
	p2, _ := c.VotePowerOfGauge(2)
	p3, _ := c.VotePowerOfGauge(3)
	assert.Equal(t, amount(600), p1)
	assert.Equal(t, amount(700), p2)
	assert.Equal(t, amount(300), p3)
	sum, _ := c.VotePowerSum()
	assert.Equal(t, amount(1600), sum)

	w1, err := c.GaugeWeight(1)
	require.NoError(t, err)
	expected := new(big.Int).Mul(amount(600), native.Unit)
	expected.Div(expected, amount(1600))
	assert.Equal(t, expected, w1)

	weights, err := c.AllGaugeWeights()
	require.NoError(t, err)
	require.Len(t, weights, 4, "index 0 is the unused gauge slot")
	assert.Equal(t, 0, weights[0].Sign())
	total := new(big.Int)
	for _, w := range weights {
		total.Add(total, w)
	}
	diff := new(big.Int).Sub(native.Unit, total)
	assert.True(t, diff.Sign() >= 0 && diff.Cmp(big.NewInt(4)) < 0,
		"weights sum to 1e18 up to flooring")

	marker, err := c.LastTimeGaugeWeightsUpdated()
	require.NoError(t, err)
	assert.Equal(t, native.EpochStart(testNow), marker)

	_, err = c.UpdateGaugeWeights(budget.NewUnlimitedMeter(), testNow)
	assert.True(t, errors.Is(err, ErrAlreadyUpdated), "a second full pass in the epoch is rejected")
}

func TestUpdateSkipsPausedGauges(t *testing.T) {
	c, src := newTestController(t)
	addGauges(t, c, "a", "b")

	src.powers[alice] = amount(100)
	_, err := c.Vote(vcAddr, alice, 1, 5000)
	require.NoError(t, err)
	_, err = c.Vote(vcAddr, alice, 2, 5000)
	require.NoError(t, err)

	require.NoError(t, c.PauseGauge(govern, 2))

	done, err := c.UpdateGaugeWeights(budget.NewUnlimitedMeter(), testNow)
	require.NoError(t, err)
	require.True(t, done)

	p1, _ := c.VotePowerOfGauge(1)
	p2, _ := c.VotePowerOfGauge(2)
	assert.Equal(t, amount(50), p1)
	assert.Equal(t, 0, p2.Sign(), "votes on a paused gauge are retained but not tallied")
	sum, _ := c.VotePowerSum()
	assert.Equal(t, amount(50), sum)
}

func TestUpdateSuspendsAndResumes(t *testing.T) {
	setup := func(t *testing.T) (*Controller, *stubVoting) {
		c, src := newTestController(t)
		addGauges(t, c, "a", "b", "c")
		src.powers[alice] = amount(1000)
		src.powers[bob] = amount(600)
		src.powers[carol] = &big.Int{} // dead by tally time
		for _, v := range []struct {
			voter native.Address
			id    uint64
			bps   uint64
		}{
			{alice, 1, 6000}, {alice, 2, 4000},
			{bob, 2, 5000}, {bob, 3, 5000},
			{carol, 1, 10000},
		} {
			_, err := c.Vote(vcAddr, v.voter, v.id, v.bps)
			require.NoError(t, err)
		}
		return c, src
	}

	oneShot, _ := setup(t)
	done, err := oneShot.UpdateGaugeWeights(budget.NewUnlimitedMeter(), testNow)
	require.NoError(t, err)
	require.True(t, done)

	metered, _ := setup(t)
	passes := 0
	for {
		passes++
		require.Less(t, passes, 100, "pass never completes")
		done, err := metered.UpdateGaugeWeights(budget.NewMeter(50000), testNow)
		require.NoError(t, err)
		if done {
			break
		}
		inProgress, err := metered.UpdateInProgress()
		require.NoError(t, err)
		assert.True(t, inProgress)
	}
	assert.Greater(t, passes, 1, "the allowance forces at least one suspension")
	inProgress, err := metered.UpdateInProgress()
	require.NoError(t, err)
	assert.False(t, inProgress)

	for id := uint64(1); id <= 3; id++ {
		want, _ := oneShot.VotePowerOfGauge(id)
		got, _ := metered.VotePowerOfGauge(id)
		assert.Equal(t, want, got, "gauge %d power differs between split and single pass", id)
	}
	wantSum, _ := oneShot.VotePowerSum()
	gotSum, _ := metered.VotePowerSum()
	assert.Equal(t, wantSum, gotSum)

	// the dead voter was purged from both, with votes of the live ones intact
	for _, c := range []*Controller{oneShot, metered} {
		voters, err := c.VotersOf(vcAddr)
		require.NoError(t, err)
		assert.ElementsMatch(t, []native.Address{alice, bob}, voters)
	}
}

func TestInsuranceCapacity(t *testing.T) {
	c, _ := newTestController(t)

	// 1000 tokens at $1 with 2x leverage
	capacity, err := c.InsuranceCapacity()
	require.NoError(t, err)
	assert.Equal(t, amount(2000), capacity)
}
