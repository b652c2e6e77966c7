// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package datagen

import (
	"crypto/rand"
	"math/big"
	mathrand "math/rand"

	"github.com/solace-fi/solace-native/native"
)

func RandAddress() (addr native.Address) {
	rand.Read(addr[:])
	return
}

func RandBytes32() (b native.Bytes32) {
	rand.Read(b[:])
	return
}

func RandIntN(n int) int {
	return mathrand.Intn(n) //#nosec G404
}

// RandAmount returns a random token amount in [1, max) wei-scale units.
func RandAmount(max int64) *big.Int {
	return new(big.Int).Mul(
		big.NewInt(mathrand.Int63n(max-1)+1), //#nosec G404
		native.Unit,
	)
}
