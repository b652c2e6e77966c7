// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package oracle prices token amounts in USD.
package oracle

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/storage"
)

// PriceOracle values token amounts in USD with 18 decimals.
type PriceOracle interface {
	// ValueOfTokens returns amount * price(token) / 1e18.
	ValueOfTokens(token native.Address, amount *big.Int) (*big.Int, error)
}

// FixedPrices is a state-backed oracle with governance-set prices.
type FixedPrices struct {
	prices *storage.Mapping[native.Address, *big.Int]
}

func NewFixedPrices(addr native.Address, st *state.State) *FixedPrices {
	ctx := storage.NewContext(addr, st, nil)
	return &FixedPrices{
		prices: storage.NewMapping[native.Address, *big.Int](ctx, storage.Slot("prices")),
	}
}

// SetPrice fixes the USD price (1e18) of one whole token.
func (f *FixedPrices) SetPrice(token native.Address, price *big.Int) error {
	return f.prices.Set(token, price, true)
}

// PriceOf returns the stored price, zero when unset.
func (f *FixedPrices) PriceOf(token native.Address) (*big.Int, error) {
	return f.prices.Get(token)
}

func (f *FixedPrices) ValueOfTokens(token native.Address, amount *big.Int) (*big.Int, error) {
	price, err := f.prices.Get(token)
	if err != nil {
		return nil, err
	}
	if price.Sign() == 0 {
		return nil, errors.Errorf("oracle: no price for token %v", token)
	}
	v := new(big.Int).Mul(amount, price)
	return v.Div(v, native.Unit), nil
}
