// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package token implements a state-backed fungible token ledger.
//
// Each token is identified by its own account address; balances and supply
// live in that account's storage. There is no allowance mechanics: the
// protocol components are trusted callers and name `from` explicitly.
package token

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/state"
	"github.com/solace-fi/solace-native/storage"
)

var errInsufficientBalance = errors.New("token: insufficient balance")

// Token is a binder to one token's ledger.
type Token struct {
	context     *Context
	balances    *storage.Mapping[native.Address, *big.Int]
	totalSupply *storage.Uint256
}

// Context carries what a Token binder needs per call.
type Context = storage.Context

// New binds the token ledger at the given token address.
func New(tokenAddr native.Address, st *state.State, use storage.UseUnitsFunc) *Token {
	ctx := storage.NewContext(tokenAddr, st, use)
	return &Token{
		context:     ctx,
		balances:    storage.NewMapping[native.Address, *big.Int](ctx, storage.Slot("balances")),
		totalSupply: storage.NewUint256(ctx, storage.Slot("total-supply")),
	}
}

// Address returns the token's account address.
func (t *Token) Address() native.Address {
	return t.context.Address()
}

// BalanceOf returns the holder's balance.
func (t *Token) BalanceOf(holder native.Address) (*big.Int, error) {
	t.context.UseUnits(native.GetBalanceCost)
	return t.balances.Get(holder)
}

// TotalSupply returns the amount minted minus the amount burned.
func (t *Token) TotalSupply() (*big.Int, error) {
	return t.totalSupply.Get()
}

// Mint credits the holder and grows the supply.
func (t *Token) Mint(holder native.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := t.add(holder, amount); err != nil {
		return err
	}
	return t.totalSupply.Add(amount)
}

// Burn debits the holder and shrinks the supply.
func (t *Token) Burn(holder native.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := t.sub(holder, amount); err != nil {
		return err
	}
	return t.totalSupply.Sub(amount)
}

// Transfer moves amount from one holder to another.
func (t *Token) Transfer(from, to native.Address, amount *big.Int) error {
	if amount.Sign() == 0 || from == to {
		return nil
	}
	if err := t.sub(from, amount); err != nil {
		return err
	}
	return t.add(to, amount)
}

func (t *Token) add(holder native.Address, amount *big.Int) error {
	bal, err := t.balances.Get(holder)
	if err != nil {
		return err
	}
	return t.balances.Set(holder, new(big.Int).Add(bal, amount), bal.Sign() == 0)
}

func (t *Token) sub(holder native.Address, amount *big.Int) error {
	bal, err := t.balances.Get(holder)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return errors.Wrapf(errInsufficientBalance, "holder %v has %v, needs %v", holder, bal, amount)
	}
	return t.balances.Set(holder, new(big.Int).Sub(bal, amount), false)
}
