// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package genesis builds a ready protocol state from a YAML document:
// token supply, gauges, prices, registry wiring and the epoch markers
// that open voting.
package genesis

import (
	"io"
	"math/big"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/solace-fi/solace-native/bribe"
	"github.com/solace-fi/solace-native/gauge"
	"github.com/solace-fi/solace-native/locker"
	"github.com/solace-fi/solace-native/lockvote"
	"github.com/solace-fi/solace-native/log"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/oracle"
	"github.com/solace-fi/solace-native/registry"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/token"
)

var logger = log.WithContext("pkg", "genesis")

// Config is the genesis document.
type Config struct {
	Name           string `yaml:"name"`
	LaunchTime     uint64 `yaml:"launchTime"`
	Governance     string `yaml:"governance"`
	LeverageFactor string `yaml:"leverageFactor"`

	Registry map[string]string `yaml:"registry"`

	EquityToken struct {
		Address  string `yaml:"address"`
		Balances []struct {
			Address string `yaml:"address"`
			Amount  string `yaml:"amount"`
		} `yaml:"balances"`
	} `yaml:"equityToken"`

	Gauges []struct {
		Name       string `yaml:"name"`
		RateOnLine string `yaml:"rateOnLine"`
	} `yaml:"gauges"`

	Prices []struct {
		Token string `yaml:"token"`
		Price string `yaml:"price"`
	} `yaml:"prices"`

	BribeTokens []string `yaml:"bribeTokens"`
}

// LoadConfig decodes a genesis document.
func LoadConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "genesis: decode config")
	}
	return &cfg, nil
}

// LoadConfigFile decodes a genesis document from disk.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "genesis: open config")
	}
	defer f.Close()
	return LoadConfig(f)
}

// ComponentAddress derives the well-known account address of a named
// protocol component.
func ComponentAddress(name string) native.Address {
	h := native.Blake2b([]byte("solace-native"), []byte(name))
	return native.BytesToAddress(h.Bytes()[12:])
}

// System is the wired protocol: every component bound to one state.
type System struct {
	State    *state.State
	Registry *registry.Registry
	Token    *token.Token
	Oracle   *oracle.FixedPrices
	Locker   *locker.Locker
	Gauges   *gauge.Controller
	Voting   *lockvote.Voting
	Bribes   *bribe.Controller

	Governance native.Address
}

// Wire binds every component to the given state without touching it.
// Use it to reopen a system whose genesis was already applied.
func Wire(cfg *Config, st *state.State) (*System, error) {
	govern, err := native.ParseAddress(cfg.Governance)
	if err != nil {
		return nil, errors.Wrap(err, "genesis: governance address")
	}
	tokenAddr, err := native.ParseAddress(cfg.EquityToken.Address)
	if err != nil {
		return nil, errors.Wrap(err, "genesis: token address")
	}

	reg := registry.New(ComponentAddress("registry"), st)
	tok := token.New(*tokenAddr, st, nil)
	orc := oracle.NewFixedPrices(ComponentAddress("oracle"), st)
	lk := locker.New(ComponentAddress("locker"), st, nil, tok)
	gc := gauge.New(ComponentAddress("gauge-controller"), st, nil, *govern, reg, tok, orc)
	voting := lockvote.New(ComponentAddress("lock-voting"), st, nil, lk, gc, tok, reg)
	bc := bribe.New(ComponentAddress("bribe-controller"), st, nil, *govern, voting, gc)

	sys := &System{
		State:      st,
		Registry:   reg,
		Token:      tok,
		Oracle:     orc,
		Locker:     lk,
		Gauges:     gc,
		Voting:     voting,
		Bribes:     bc,
		Governance: *govern,
	}
	// in-memory wiring, needed on every open
	gc.RegisterVoteSource(voting)
	lk.RegisterListener(voting)
	return sys, nil
}

// Build applies the document to a fresh state and returns the wired
// system.
func Build(cfg *Config, st *state.State) (*System, error) {
	sys, err := Wire(cfg, st)
	if err != nil {
		return nil, err
	}
	if err := sys.apply(cfg); err != nil {
		return nil, err
	}
	logger.Info("genesis built", "name", cfg.Name, "gauges", len(cfg.Gauges), "launchTime", cfg.LaunchTime)
	return sys, nil
}

// BuildFile is Build over a document on disk.
func BuildFile(path string, st *state.State) (*System, error) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	return Build(cfg, st)
}

func (s *System) apply(cfg *Config) error {
	// directory entries, own components first
	wiring := map[string]native.Address{
		registry.KeyGovernance:      s.Governance,
		registry.KeyEquityToken:     s.Token.Address(),
		registry.KeyLocker:          s.Locker.Address(),
		registry.KeyGaugeController: ComponentAddress("gauge-controller"),
		registry.KeyLockVoting:      s.Voting.Address(),
		registry.KeyBribeController: s.Bribes.Address(),
	}
	for name, addr := range wiring {
		if err := s.Registry.Set(name, addr); err != nil {
			return err
		}
	}
	for name, raw := range cfg.Registry {
		addr, err := native.ParseAddress(raw)
		if err != nil {
			return errors.Wrapf(err, "genesis: registry entry %q", name)
		}
		if err := s.Registry.Set(name, *addr); err != nil {
			return err
		}
	}
	leverage, err := parseAmount(cfg.LeverageFactor)
	if err != nil {
		return errors.Wrap(err, "genesis: leverage factor")
	}
	if err := s.Registry.SetNumber(registry.KeyLeverageFactor, leverage); err != nil {
		return err
	}

	for _, b := range cfg.EquityToken.Balances {
		holder, err := native.ParseAddress(b.Address)
		if err != nil {
			return errors.Wrapf(err, "genesis: balance holder %q", b.Address)
		}
		amount, err := parseAmount(b.Amount)
		if err != nil {
			return errors.Wrapf(err, "genesis: balance of %q", b.Address)
		}
		if err := s.Token.Mint(*holder, amount); err != nil {
			return err
		}
	}

	for _, p := range cfg.Prices {
		tok, err := native.ParseAddress(p.Token)
		if err != nil {
			return errors.Wrapf(err, "genesis: priced token %q", p.Token)
		}
		price, err := parseAmount(p.Price)
		if err != nil {
			return errors.Wrapf(err, "genesis: price of %q", p.Token)
		}
		if err := s.Oracle.SetPrice(*tok, price); err != nil {
			return err
		}
	}

	for _, g := range cfg.Gauges {
		rate, err := parseAmount(g.RateOnLine)
		if err != nil {
			return errors.Wrapf(err, "genesis: rate of gauge %q", g.Name)
		}
		if _, err := s.Gauges.AddGauge(s.Governance, g.Name, rate); err != nil {
			return err
		}
	}

	for _, raw := range cfg.BribeTokens {
		tok, err := native.ParseAddress(raw)
		if err != nil {
			return errors.Wrapf(err, "genesis: bribe token %q", raw)
		}
		if err := s.Bribes.AddBribeToken(s.Governance, *tok); err != nil {
			return err
		}
	}

	// enroll the voting contract in the tally
	if err := s.Gauges.AddVotingContract(s.Governance, s.Voting.Address()); err != nil {
		return err
	}

	// seed the markers: voting opens now, first settlement next epoch
	s.Gauges.InitializeEpoch(cfg.LaunchTime)
	s.Voting.InitializeEpoch(cfg.LaunchTime)
	s.Bribes.InitializeEpoch(cfg.LaunchTime)
	return nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return &big.Int{}, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid decimal %q", s)
	}
	return v, nil
}
