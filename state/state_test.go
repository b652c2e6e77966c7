// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-fi/solace-native/lvldb"
	"github.com/solace-fi/solace-native/native"
)

func newTestState(t *testing.T) *State {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestStorage(t *testing.T) {
	st := newTestState(t)
	addr := native.BytesToAddress([]byte("addr"))
	key := native.Blake2b([]byte("key"))
	value := native.BytesToBytes32([]byte("value"))

	got, err := st.GetStorage(addr, key)
	assert.NoError(t, err)
	assert.True(t, got.IsZero())

	st.SetStorage(addr, key, value)
	got, err = st.GetStorage(addr, key)
	assert.NoError(t, err)
	assert.Equal(t, value, got)

	// zero value clears the slot
	st.SetStorage(addr, key, native.Bytes32{})
	raw, err := st.GetRawStorage(addr, key)
	assert.NoError(t, err)
	assert.Len(t, raw, 0)
}

func TestEncodeDecodeStorage(t *testing.T) {
	st := newTestState(t)
	addr := native.BytesToAddress([]byte("addr"))
	key := native.Blake2b([]byte("key"))

	type record struct {
		A uint64
		B *big.Int
	}
	in := record{42, big.NewInt(1e18)}

	err := st.EncodeStorage(addr, key, func() ([]byte, error) {
		return rlp.EncodeToBytes(&in)
	})
	assert.NoError(t, err)

	var out record
	err = st.DecodeStorage(addr, key, func(raw []byte) error {
		return rlp.DecodeBytes(raw, &out)
	})
	assert.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCheckpointRevert(t *testing.T) {
	st := newTestState(t)
	addr := native.BytesToAddress([]byte("addr"))
	k1 := native.Blake2b([]byte("k1"))
	k2 := native.Blake2b([]byte("k2"))
	v1 := native.BytesToBytes32([]byte("v1"))
	v2 := native.BytesToBytes32([]byte("v2"))

	st.SetStorage(addr, k1, v1)

	rev := st.NewCheckpoint()
	st.SetStorage(addr, k1, v2)
	st.SetStorage(addr, k2, v2)
	st.RevertTo(rev)

	got, err := st.GetStorage(addr, k1)
	assert.NoError(t, err)
	assert.Equal(t, v1, got)

	got, err = st.GetStorage(addr, k2)
	assert.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestNestedCheckpoints(t *testing.T) {
	st := newTestState(t)
	addr := native.BytesToAddress([]byte("addr"))
	key := native.Blake2b([]byte("key"))

	rev1 := st.NewCheckpoint()
	st.SetStorage(addr, key, native.BytesToBytes32([]byte{1}))

	rev2 := st.NewCheckpoint()
	st.SetStorage(addr, key, native.BytesToBytes32([]byte{2}))
	st.RevertTo(rev2)

	got, _ := st.GetStorage(addr, key)
	assert.Equal(t, native.BytesToBytes32([]byte{1}), got)

	st.RevertTo(rev1)
	got, _ = st.GetStorage(addr, key)
	assert.True(t, got.IsZero())
}

func TestCommitPersists(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	defer db.Close()

	addr := native.BytesToAddress([]byte("addr"))
	key := native.Blake2b([]byte("key"))
	value := native.BytesToBytes32([]byte("value"))

	st := New(db)
	st.SetStorage(addr, key, value)
	require.NoError(t, st.Commit())

	// a fresh state over the same db sees committed values
	st2 := New(db)
	got, err := st2.GetStorage(addr, key)
	assert.NoError(t, err)
	assert.Equal(t, value, got)
}
