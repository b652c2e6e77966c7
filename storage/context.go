// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package storage provides contract-style typed cells over the flat world
// state: single slots, mappings, arrays and enumerable sets, all addressed
// by named slots under a component address and metered per storage op.
package storage

import (
	"encoding/binary"

	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/state"
)

// UseUnitsFunc consumes work units from the current call's budget.
type UseUnitsFunc func(units uint64)

// Context binds a component address to the world state and the
// current call's work meter. A nil meter means unmetered access.
type Context struct {
	address native.Address
	state   *state.State
	meter   UseUnitsFunc
}

func NewContext(address native.Address, state *state.State, meter UseUnitsFunc) *Context {
	return &Context{
		address: address,
		state:   state,
		meter:   meter,
	}
}

func (c *Context) Address() native.Address {
	return c.address
}

func (c *Context) State() *state.State {
	return c.state
}

func (c *Context) UseUnits(units uint64) {
	if c.meter != nil {
		c.meter(units)
	}
}

// Key is implemented by types usable as mapping/set keys.
type Key interface {
	Bytes() []byte
}

// StringKey adapts a string to a storage key.
type StringKey string

func (s StringKey) Bytes() []byte { return []byte(s) }

// UintKey adapts an unsigned integer to a storage key.
type UintKey uint64

func (u UintKey) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(u))
	return b[:]
}

// Slot derives a named root slot.
func Slot(name string) native.Bytes32 {
	return native.BytesToBytes32([]byte(name))
}

// SubSlot derives a child slot from a root slot and a key.
func SubSlot(base native.Bytes32, key Key) native.Bytes32 {
	return native.Blake2b(base.Bytes(), key.Bytes())
}

// slotsOf converts raw byte length into charged storage slots.
func slotsOf(length int) uint64 {
	return (uint64(length) + 31) / 32
}
