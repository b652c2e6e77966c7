// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/solace-fi/solace-native/native"
)

// Mapping is a key/value storage abstraction, similar to the mapping in
// Solidity. Values are rlp encoded; absent keys decode to V's zero value.
type Mapping[K Key, V any] struct {
	context *Context
	basePos native.Bytes32
}

func NewMapping[K Key, V any](context *Context, pos native.Bytes32) *Mapping[K, V] {
	return &Mapping[K, V]{context: context, basePos: pos}
}

func (m *Mapping[K, V]) position(key K) native.Bytes32 {
	return native.Blake2b(key.Bytes(), m.basePos.Bytes())
}

func (m *Mapping[K, V]) Get(key K) (value V, err error) {
	err = m.context.state.DecodeStorage(m.context.address, m.position(key), func(raw []byte) error {
		if reflect.ValueOf(value).Kind() == reflect.Ptr {
			value = reflect.New(reflect.TypeOf(value).Elem()).Interface().(V)
		}
		if len(raw) == 0 {
			return nil
		}
		m.context.UseUnits(slotsOf(len(raw)) * native.SloadCost)
		return rlp.DecodeBytes(raw, &value)
	})
	return
}

// Has reports whether the key holds a value, without decoding it.
func (m *Mapping[K, V]) Has(key K) (bool, error) {
	raw, err := m.context.state.GetRawStorage(m.context.address, m.position(key))
	if err != nil {
		return false, err
	}
	m.context.UseUnits(native.SloadCost)
	return len(raw) > 0, nil
}

func (m *Mapping[K, V]) Set(key K, value V, newValue bool) error {
	return m.context.state.EncodeStorage(m.context.address, m.position(key), func() ([]byte, error) {
		val, err := rlp.EncodeToBytes(value)
		if err != nil {
			return nil, err
		}
		if newValue {
			m.context.UseUnits(slotsOf(len(val)) * native.SstoreSetCost)
		} else {
			m.context.UseUnits(slotsOf(len(val)) * native.SstoreResetCost)
		}
		return val, nil
	})
}

// Delete clears the key's slot.
func (m *Mapping[K, V]) Delete(key K) {
	m.context.UseUnits(native.SstoreResetCost)
	m.context.state.SetRawStorage(m.context.address, m.position(key), nil)
}
