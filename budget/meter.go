// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package budget

import (
	"fmt"
	"math"

	"github.com/solace-fi/solace-native/native"
)

// Meter tracks the work units consumed by a single call against a fixed
// allowance. The resumable engines consult Remaining before every atomic
// step and suspend with a persisted cursor when the allowance runs short.
type Meter struct {
	allowance      uint64
	sloadOps       uint64
	sstoreSetOps   uint64
	sstoreResetOps uint64
	balanceOps     uint64
	customUnits    uint64
	totalUnits     uint64
}

// NewMeter creates a meter with the given per-call allowance.
func NewMeter(allowance uint64) *Meter {
	return &Meter{allowance: allowance}
}

// NewUnlimitedMeter creates a meter that never suspends a pass.
func NewUnlimitedMeter() *Meter {
	return &Meter{allowance: math.MaxUint64}
}

// Use consumes work units, classifying them by the storage op they map to.
func (m *Meter) Use(units uint64) {
	m.totalUnits += units

	switch {
	// Handle multiples and single operations
	case units%native.SstoreSetCost == 0 && units > 0:
		m.sstoreSetOps += units / native.SstoreSetCost

	case units%native.SstoreResetCost == 0 && units > 0:
		m.sstoreResetOps += units / native.SstoreResetCost

	case units%native.GetBalanceCost == 0 && units > 0:
		m.balanceOps += units / native.GetBalanceCost

	case units%native.SloadCost == 0 && units > 0:
		m.sloadOps += units / native.SloadCost

	default:
		// Unknown/custom unit amount
		m.customUnits += units
	}
}

// Remaining returns the unconsumed allowance.
func (m *Meter) Remaining() uint64 {
	if m.totalUnits >= m.allowance {
		return 0
	}
	return m.allowance - m.totalUnits
}

// CanAfford reports whether units more work fit the allowance.
func (m *Meter) CanAfford(units uint64) bool {
	return m.Remaining() >= units
}

// TotalUsed returns total consumed work units.
func (m *Meter) TotalUsed() uint64 {
	return m.totalUnits
}

// Breakdown reports consumption by op class.
func (m *Meter) Breakdown() string {
	return fmt.Sprintf(
		"SLOAD: %d ops (%d units) | SSTORE_SET: %d ops (%d units) | SSTORE_RESET: %d ops (%d units) | BALANCE: %d ops (%d units) | CUSTOM: %d units | TOTAL: %d units",
		m.sloadOps,
		m.sloadOps*native.SloadCost,
		m.sstoreSetOps,
		m.sstoreSetOps*native.SstoreSetCost,
		m.sstoreResetOps,
		m.sstoreResetOps*native.SstoreResetCost,
		m.balanceOps,
		m.balanceOps*native.GetBalanceCost,
		m.customUnits,
		m.totalUnits,
	)
}
