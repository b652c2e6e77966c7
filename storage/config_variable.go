// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"math/big"

	"github.com/solace-fi/solace-native/log"
	"github.com/solace-fi/solace-native/native"
)

// ConfigVariable is a protocol knob with a compiled-in default that a
// deployment may override through a well-known storage slot.
type ConfigVariable struct {
	slot        native.Bytes32
	name        string
	value       uint64
	initialised bool
}

func NewConfigVariable(name string, defaultValue uint64) *ConfigVariable {
	return &ConfigVariable{
		slot:  Slot(name),
		name:  name,
		value: defaultValue,
	}
}

func (c *ConfigVariable) Get() uint64 {
	return c.value
}

func (c *ConfigVariable) Name() string {
	return c.name
}

func (c *ConfigVariable) Slot() native.Bytes32 {
	return c.slot
}

// Override reads the storage slot once and replaces the default when a
// nonzero value is found. Reads are unmetered on purpose: configuration
// must not depend on the caller's remaining budget.
func (c *ConfigVariable) Override(ctx *Context) {
	if c.initialised { // early return to prevent subsequent reads
		return
	}
	storage, err := ctx.state.GetStorage(ctx.address, c.slot)
	if err != nil {
		log.Warn("failed to read config value", "slot", c.Name(), "error", err)
		return
	}
	num := new(big.Int).SetBytes(storage.Bytes())

	c.initialised = true

	if num.Uint64() != 0 {
		c.value = num.Uint64()
		log.Debug("override found new config value", "slot", c.Name(), "value", c.Get())
	} else {
		log.Debug("using default config value", "slot", c.Name(), "value", c.Get())
	}
}
