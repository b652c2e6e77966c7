// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package registry

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-fi/solace-native/lvldb"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/state"
)

func TestRegistry(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	st := state.New(db)

	reg := New(native.BytesToAddress([]byte("registry")), st)

	pool := native.BytesToAddress([]byte("pool"))
	require.NoError(t, reg.Set(KeyUnderwritingPool, pool))

	got, err := reg.Get(KeyUnderwritingPool)
	assert.NoError(t, err)
	assert.Equal(t, pool, got)

	got, err = reg.Get(KeyRevenueSink)
	assert.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = reg.MustGet(KeyRevenueSink)
	assert.Error(t, err)

	require.NoError(t, reg.SetNumber("leverage-factor", big.NewInt(2e18)))
	n, err := reg.GetNumber("leverage-factor")
	assert.NoError(t, err)
	assert.Equal(t, big.NewInt(2e18), n)
}
