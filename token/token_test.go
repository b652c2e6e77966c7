// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package token

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-fi/solace-native/lvldb"
	"github.com/solace-fi/solace-native/native"
	"github.com/solace-fi/solace-native/state"
)

func TestToken(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	st := state.New(db)

	a1 := native.BytesToAddress([]byte("a1"))
	a2 := native.BytesToAddress([]byte("a2"))

	tok := New(native.BytesToAddress([]byte("uwe")), st, nil)

	bal, err := tok.BalanceOf(a1)
	assert.NoError(t, err)
	assert.Equal(t, &big.Int{}, bal)

	require.NoError(t, tok.Mint(a1, big.NewInt(100)))

	bal, _ = tok.BalanceOf(a1)
	assert.Equal(t, big.NewInt(100), bal)
	supply, _ := tok.TotalSupply()
	assert.Equal(t, big.NewInt(100), supply)

	require.NoError(t, tok.Transfer(a1, a2, big.NewInt(30)))
	bal, _ = tok.BalanceOf(a1)
	assert.Equal(t, big.NewInt(70), bal)
	bal, _ = tok.BalanceOf(a2)
	assert.Equal(t, big.NewInt(30), bal)

	assert.Error(t, tok.Transfer(a1, a2, big.NewInt(71)), "overdraft must fail")

	require.NoError(t, tok.Burn(a2, big.NewInt(30)))
	supply, _ = tok.TotalSupply()
	assert.Equal(t, big.NewInt(70), supply)

	// self-transfer and zero-amount moves are no-ops
	assert.NoError(t, tok.Transfer(a1, a1, big.NewInt(5)))
	assert.NoError(t, tok.Transfer(a1, a2, &big.Int{}))
	bal, _ = tok.BalanceOf(a1)
	assert.Equal(t, big.NewInt(70), bal)
}

func TestTokensAreIsolated(t *testing.T) {
	db, _ := lvldb.NewMem()
	defer db.Close()
	st := state.New(db)

	holder := native.BytesToAddress([]byte("h"))
	t1 := New(native.BytesToAddress([]byte("t1")), st, nil)
	t2 := New(native.BytesToAddress([]byte("t2")), st, nil)

	require.NoError(t, t1.Mint(holder, big.NewInt(5)))

	bal, _ := t2.BalanceOf(holder)
	assert.Equal(t, &big.Int{}, bal, "ledgers of distinct tokens must not overlap")
}
