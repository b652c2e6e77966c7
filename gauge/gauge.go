// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package gauge implements the gauge controller: the registry of
// insurance gauges, the raw vote ledger, and the once-per-epoch
// aggregation of votes into gauge weights.
//
// Gauges are append-only. Ids start at 1 and are never reused or
// reordered; id 0 is a reserved placeholder so that historical votes
// stay interpretable forever. A paused gauge keeps its votes but they
// are skipped at tally time.
package gauge

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/log"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/oracle"
	"github.com/solace-fi/solace-native/registry"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/storage"
	"github.com/solace-fi/solace-native/token"
)

var logger = log.WithContext("pkg", "gauge")

var (
	errGaugeNotFound   = errors.New("gauge: gauge not found")
	errGaugePaused     = errors.New("gauge: gauge is paused")
	errNotGovernance   = errors.New("gauge: caller is not governance")
	errUnknownContract = errors.New("gauge: unknown voting contract")
)

// Gauge is one insurance risk category receiving votes.
type Gauge struct {
	Name       string
	Active     bool
	RateOnLine *big.Int // annualized premium rate, 1e18 fixed point
}

// VotingContract supplies vote power for the voters it manages. The
// controller caches each voter's power for the epoch being tallied so
// that downstream engines settle against the same numbers.
type VotingContract interface {
	Address() native.Address
	// VotePowerOf returns the voter's total vote power at time now.
	// Zero for voters whose locks are all gone.
	VotePowerOf(voter native.Address, now uint64) (*big.Int, error)
	// CacheVotePower records the voter's tallied power for the epoch.
	CacheVotePower(voter native.Address, epochStart uint64, power *big.Int) error
	// CachedVotePower returns the power recorded for the epoch.
	CachedVotePower(voter native.Address, epochStart uint64) (*big.Int, error)
}

// Controller binds the gauge controller's storage and collaborators.
type Controller struct {
	context  *storage.Context
	govern   native.Address
	registry *registry.Registry
	token    *token.Token
	oracle   oracle.PriceOracle
	sources  map[native.Address]VotingContract

	gauges           *storage.Array[*Gauge]
	votingContracts  *storage.AddressSet
	votePowerOfGauge *storage.Mapping[storage.UintKey, *big.Int]
	votePowerSum     *storage.Uint256
	lastUpdated      *storage.Uint256
	cursor           *storage.CursorCell
	pendingPurge     *storage.Array[native.Address]

	votersSlot     native.Bytes32
	voterGaugeSlot native.Bytes32
	voteBPSSlot    native.Bytes32
}

// New binds the controller at addr. The registry supplies the leverage
// factor and underwriting pool; token and oracle size insurance
// capacity.
func New(addr native.Address, st *state.State, use storage.UseUnitsFunc,
	govern native.Address, reg *registry.Registry, tok *token.Token, orc oracle.PriceOracle,
) *Controller {
	ctx := storage.NewContext(addr, st, use)
	return &Controller{
		context:  ctx,
		govern:   govern,
		registry: reg,
		token:    tok,
		oracle:   orc,
		sources:  make(map[native.Address]VotingContract),

		gauges:           storage.NewArray[*Gauge](ctx, storage.Slot("gauges")),
		votingContracts:  storage.NewAddressSet(ctx, storage.Slot("voting-contracts")),
		votePowerOfGauge: storage.NewMapping[storage.UintKey, *big.Int](ctx, storage.Slot("vote-power-of-gauge")),
		votePowerSum:     storage.NewUint256(ctx, storage.Slot("vote-power-sum")),
		lastUpdated:      storage.NewUint256(ctx, storage.Slot("last-time-gauge-weights-updated")),
		cursor:           storage.NewCursorCell(ctx, storage.Slot("update-cursor")),
		pendingPurge:     storage.NewArray[native.Address](ctx, storage.Slot("pending-purge")),

		votersSlot:     storage.Slot("voters"),
		voterGaugeSlot: storage.Slot("voter-gauges"),
		voteBPSSlot:    storage.Slot("vote-bps"),
	}
}

func (c *Controller) votersOf(vc native.Address) *storage.AddressSet {
	return storage.NewAddressSet(c.context, storage.SubSlot(c.votersSlot, vc))
}

func (c *Controller) gaugesVotedBy(vc native.Address, voter native.Address) *storage.UintSet {
	return storage.NewUintSet(c.context, storage.SubSlot(storage.SubSlot(c.voterGaugeSlot, vc), voter))
}

func (c *Controller) voteBPS(vc native.Address, voter native.Address) *storage.Mapping[storage.UintKey, uint64] {
	return storage.NewMapping[storage.UintKey, uint64](c.context, storage.SubSlot(storage.SubSlot(c.voteBPSSlot, vc), voter))
}

func (c *Controller) requireGovernance(caller native.Address) error {
	if caller != c.govern {
		return errors.Wrapf(errNotGovernance, "caller %v", caller)
	}
	return nil
}

//
// Gauge registry
//

// NumGauges returns the highest gauge id. Valid ids are 1..NumGauges.
func (c *Controller) NumGauges() (uint64, error) {
	n, err := c.gauges.Len()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n - 1, nil
}

// Get returns the gauge by id.
func (c *Controller) Get(gaugeID uint64) (*Gauge, error) {
	n, err := c.NumGauges()
	if err != nil {
		return nil, err
	}
	if gaugeID == 0 || gaugeID > n {
		return nil, errors.Wrapf(errGaugeNotFound, "id %d", gaugeID)
	}
	return c.gauges.Get(gaugeID)
}

// AddGauge appends a new active gauge and returns its id.
func (c *Controller) AddGauge(caller native.Address, name string, rateOnLine *big.Int) (uint64, error) {
	if err := c.requireGovernance(caller); err != nil {
		return 0, err
	}
	cp := c.context.State().NewCheckpoint()
	id, err := c.addGauge(name, rateOnLine)
	if err != nil {
		c.context.State().RevertTo(cp)
		return 0, err
	}
	logger.Info("added gauge", "id", id, "name", name, "rateOnLine", rateOnLine)
	return id, nil
}

func (c *Controller) addGauge(name string, rateOnLine *big.Int) (uint64, error) {
	n, err := c.gauges.Len()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		// id 0 is the reserved placeholder
		if err := c.gauges.Append(&Gauge{RateOnLine: &big.Int{}}); err != nil {
			return 0, err
		}
		n = 1
	}
	if err := c.gauges.Append(&Gauge{Name: name, Active: true, RateOnLine: rateOnLine}); err != nil {
		return 0, err
	}
	return n, nil
}

// PauseGauge takes the gauge out of tallying. Its votes are kept.
func (c *Controller) PauseGauge(caller native.Address, gaugeID uint64) error {
	return c.setActive(caller, gaugeID, false)
}

// UnpauseGauge puts the gauge back into tallying.
func (c *Controller) UnpauseGauge(caller native.Address, gaugeID uint64) error {
	return c.setActive(caller, gaugeID, true)
}

func (c *Controller) setActive(caller native.Address, gaugeID uint64, active bool) error {
	if err := c.requireGovernance(caller); err != nil {
		return err
	}
	g, err := c.Get(gaugeID)
	if err != nil {
		return err
	}
	if g.Active == active {
		return nil
	}
	g.Active = active
	if err := c.gauges.Set(gaugeID, g); err != nil {
		return err
	}
	logger.Info("set gauge active", "id", gaugeID, "active", active)
	return nil
}

// SetRateOnLine updates the gauge's annual premium rate.
func (c *Controller) SetRateOnLine(caller native.Address, gaugeID uint64, rate *big.Int) error {
	if err := c.requireGovernance(caller); err != nil {
		return err
	}
	g, err := c.Get(gaugeID)
	if err != nil {
		return err
	}
	g.RateOnLine = rate
	return c.gauges.Set(gaugeID, g)
}

// RateOnLine returns the gauge's annual premium rate.
func (c *Controller) RateOnLine(gaugeID uint64) (*big.Int, error) {
	g, err := c.Get(gaugeID)
	if err != nil {
		return nil, err
	}
	return g.RateOnLine, nil
}

//
// Voting contract registry
//

// AddVotingContract registers a vote source address.
func (c *Controller) AddVotingContract(caller, vc native.Address) error {
	if err := c.requireGovernance(caller); err != nil {
		return err
	}
	if _, err := c.votingContracts.Add(vc); err != nil {
		return err
	}
	logger.Info("added voting contract", "address", vc)
	return nil
}

// RegisterVoteSource wires the in-process implementation of a
// registered voting contract address.
func (c *Controller) RegisterVoteSource(src VotingContract) {
	c.sources[src.Address()] = src
}

func (c *Controller) source(vc native.Address) (VotingContract, error) {
	src, ok := c.sources[vc]
	if !ok {
		return nil, errors.Wrapf(errUnknownContract, "%v has no vote source", vc)
	}
	return src, nil
}

//
// Vote ledger
//

// Vote records the (voter, gaugeID) allocation for a registered voting
// contract and returns the prior BPS. A zero newBPS removes the vote
// and is allowed even on a paused gauge. Cross-gauge BPS budgets are
// the calling voting contract's concern; this layer validates one pair.
func (c *Controller) Vote(vc, voter native.Address, gaugeID uint64, newBPS uint64) (uint64, error) {
	cp := c.context.State().NewCheckpoint()
	old, err := c.vote(vc, voter, gaugeID, newBPS)
	if err != nil {
		c.context.State().RevertTo(cp)
		return 0, err
	}
	logger.Debug("vote", "contract", vc, "voter", voter, "gauge", gaugeID, "bps", newBPS, "oldBPS", old)
	return old, nil
}

func (c *Controller) vote(vc, voter native.Address, gaugeID uint64, newBPS uint64) (uint64, error) {
	ok, err := c.votingContracts.Contains(vc)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.Wrapf(errUnknownContract, "%v", vc)
	}
	if newBPS > native.MaxVoteBPS {
		return 0, errors.Errorf("gauge: %d BPS exceeds %d", newBPS, native.MaxVoteBPS)
	}
	g, err := c.Get(gaugeID)
	if err != nil {
		return 0, err
	}
	if !g.Active && newBPS > 0 {
		return 0, errors.Wrapf(errGaugePaused, "id %d", gaugeID)
	}

	bps := c.voteBPS(vc, voter)
	gaugeSet := c.gaugesVotedBy(vc, voter)

	old, err := bps.Get(storage.UintKey(gaugeID))
	if err != nil {
		return 0, err
	}
	switch {
	case newBPS == 0 && old == 0:
		return 0, nil
	case newBPS == 0:
		bps.Delete(storage.UintKey(gaugeID))
		if _, err := gaugeSet.Remove(storage.UintKey(gaugeID)); err != nil {
			return 0, err
		}
		n, err := gaugeSet.Len()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			if _, err := c.votersOf(vc).Remove(voter); err != nil {
				return 0, err
			}
		}
	default:
		if err := bps.Set(storage.UintKey(gaugeID), newBPS, old == 0); err != nil {
			return 0, err
		}
		if old == 0 {
			if _, err := gaugeSet.Add(storage.UintKey(gaugeID)); err != nil {
				return 0, err
			}
			if _, err := c.votersOf(vc).Add(voter); err != nil {
				return 0, err
			}
		}
	}
	return old, nil
}

// VoteOf returns the recorded BPS for the (voter, gaugeID) pair, zero
// when absent.
func (c *Controller) VoteOf(vc, voter native.Address, gaugeID uint64) (uint64, error) {
	return c.voteBPS(vc, voter).Get(storage.UintKey(gaugeID))
}

// VotesOf returns the voter's gauge ids and BPS in ledger order.
func (c *Controller) VotesOf(vc, voter native.Address) (gaugeIDs []uint64, bps []uint64, err error) {
	keys, err := c.gaugesVotedBy(vc, voter).All()
	if err != nil {
		return nil, nil, err
	}
	ledger := c.voteBPS(vc, voter)
	for _, k := range keys {
		v, err := ledger.Get(k)
		if err != nil {
			return nil, nil, err
		}
		gaugeIDs = append(gaugeIDs, uint64(k))
		bps = append(bps, v)
	}
	return gaugeIDs, bps, nil
}

// VotersOf returns the voting contract's enumerable voter set.
func (c *Controller) VotersOf(vc native.Address) ([]native.Address, error) {
	return c.votersOf(vc).All()
}

//
// Derived aggregates
//

// LastTimeGaugeWeightsUpdated returns the epoch start of the last fully
// completed aggregation pass.
func (c *Controller) LastTimeGaugeWeightsUpdated() (uint64, error) {
	v, err := c.lastUpdated.Get()
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// UpdateInProgress reports whether an aggregation pass is suspended
// mid-way (a cursor is persisted).
func (c *Controller) UpdateInProgress() (bool, error) {
	cur, err := c.cursor.Get()
	if err != nil {
		return false, err
	}
	return cur != nil, nil
}

// InitializeEpoch seeds the update marker at bootstrap; the first real
// aggregation pass runs next epoch.
func (c *Controller) InitializeEpoch(now uint64) {
	c.lastUpdated.Set(new(big.Int).SetUint64(native.EpochStart(now)))
}

// VotePowerOfGauge returns the gauge's tallied vote power for the last
// fully processed epoch.
func (c *Controller) VotePowerOfGauge(gaugeID uint64) (*big.Int, error) {
	return c.votePowerOfGauge.Get(storage.UintKey(gaugeID))
}

// VotePowerSum returns the total tallied vote power for the last fully
// processed epoch.
func (c *Controller) VotePowerSum() (*big.Int, error) {
	return c.votePowerSum.Get()
}

// GaugeWeight returns 1e18 * votePowerOfGauge / votePowerSum. All
// weights are zero when the sum is zero; gauge id 0 is always zero.
func (c *Controller) GaugeWeight(gaugeID uint64) (*big.Int, error) {
	if gaugeID == 0 {
		return &big.Int{}, nil
	}
	sum, err := c.votePowerSum.Get()
	if err != nil {
		return nil, err
	}
	if sum.Sign() == 0 {
		return &big.Int{}, nil
	}
	power, err := c.votePowerOfGauge.Get(storage.UintKey(gaugeID))
	if err != nil {
		return nil, err
	}
	w := new(big.Int).Mul(native.Unit, power)
	return w.Div(w, sum), nil
}

// AllGaugeWeights returns the weight of every gauge, indexed by id,
// with the reserved slot 0 always zero.
func (c *Controller) AllGaugeWeights() ([]*big.Int, error) {
	n, err := c.NumGauges()
	if err != nil {
		return nil, err
	}
	weights := make([]*big.Int, n+1)
	weights[0] = &big.Int{}
	for id := uint64(1); id <= n; id++ {
		if weights[id], err = c.GaugeWeight(id); err != nil {
			return nil, err
		}
	}
	return weights, nil
}

// InsuranceCapacity returns leverageFactor * USD value of the
// underwriting pool's token balance / 1e18.
func (c *Controller) InsuranceCapacity() (*big.Int, error) {
	leverage, err := c.registry.GetNumber(registry.KeyLeverageFactor)
	if err != nil {
		return nil, err
	}
	pool, err := c.registry.MustGet(registry.KeyUnderwritingPool)
	if err != nil {
		return nil, err
	}
	bal, err := c.token.BalanceOf(pool)
	if err != nil {
		return nil, err
	}
	value, err := c.oracle.ValueOfTokens(c.token.Address(), bal)
	if err != nil {
		return nil, err
	}
	capacity := new(big.Int).Mul(leverage, value)
	return capacity.Div(capacity, native.Unit), nil
}
