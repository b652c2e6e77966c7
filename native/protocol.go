// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package native

import "math/big"

// Constants of the protocol.
const (
	EpochLength uint64 = 7 * 24 * 3600 // one week, the canonical tally period.
	Year        uint64 = 365 * 24 * 3600

	// MaxVoteBPS is the maximum vote allocation of a single voter, in basis points.
	MaxVoteBPS uint64 = 10000

	// Work unit costs of metered storage operations.
	SloadCost       uint64 = 200
	SstoreSetCost   uint64 = 20000
	SstoreResetCost uint64 = 5000
	GetBalanceCost  uint64 = 400
)

// Unit is the fixed point scale (1e18) shared by weights, rates and token amounts.
var Unit = big.NewInt(1e18)

// MaxUint256 marks pre-initialized storage entries that carry no real value yet.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// EpochStart returns the start timestamp of the epoch enclosing now.
// Every stage gates on this value, never on wall clock time directly.
func EpochStart(now uint64) uint64 {
	return now / EpochLength * EpochLength
}

// EpochEnd returns the end timestamp of the epoch enclosing now.
func EpochEnd(now uint64) uint64 {
	return EpochStart(now) + EpochLength
}
