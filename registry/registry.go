// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package registry implements the protocol's name→address directory.
//
// Components resolve their collaborators (underwriting pool, revenue
// sink, equity token) through the registry at construction time, so that
// a deployment can rewire them without code changes.
package registry

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/storage"
)

// Well-known registry entries.
const (
	KeyEquityToken      = "uwe"
	KeyUnderwritingPool = "underwriting-pool"
	KeyRevenueSink      = "revenue-sink"
	KeyLocker           = "locker"
	KeyGaugeController  = "gauge-controller"
	KeyLockVoting       = "lock-voting"
	KeyBribeController  = "bribe-controller"
	KeyGovernance       = "governance"

	// KeyLeverageFactor is the numeric parameter scaling insurance
	// capacity against pooled value (1e18 fixed point).
	KeyLeverageFactor = "leverage-factor"
)

// Registry is a binder to the directory's storage.
type Registry struct {
	context *storage.Context
	entries *storage.Mapping[storage.StringKey, native.Address]
	numbers *storage.Mapping[storage.StringKey, *big.Int]
}

func New(addr native.Address, st *state.State) *Registry {
	ctx := storage.NewContext(addr, st, nil)
	return &Registry{
		context: ctx,
		entries: storage.NewMapping[storage.StringKey, native.Address](ctx, storage.Slot("entries")),
		numbers: storage.NewMapping[storage.StringKey, *big.Int](ctx, storage.Slot("numbers")),
	}
}

// Get returns the address registered under the name, or the zero address.
func (r *Registry) Get(name string) (native.Address, error) {
	return r.entries.Get(storage.StringKey(name))
}

// MustGet returns the registered address, erroring on an empty entry.
func (r *Registry) MustGet(name string) (native.Address, error) {
	addr, err := r.Get(name)
	if err != nil {
		return native.Address{}, err
	}
	if addr.IsZero() {
		return native.Address{}, errors.Errorf("registry: no entry for %q", name)
	}
	return addr, nil
}

// Set registers the address under the name.
func (r *Registry) Set(name string, addr native.Address) error {
	return r.entries.Set(storage.StringKey(name), addr, true)
}

// GetNumber returns the numeric parameter stored under the name.
func (r *Registry) GetNumber(name string) (*big.Int, error) {
	return r.numbers.Get(storage.StringKey(name))
}

// SetNumber stores a numeric parameter under the name.
func (r *Registry) SetNumber(name string, value *big.Int) error {
	return r.numbers.Set(storage.StringKey(name), value, true)
}
