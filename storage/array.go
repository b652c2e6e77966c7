// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/solace-fi/solace-native/native"
)

// Array is a length-prefixed storage array. The length lives at the base
// slot, elements at child slots derived from their index. Truncating the
// length abandons element slots in place; they are overwritten on reuse.
type Array[V any] struct {
	context  *Context
	length   *Uint256
	elements *Mapping[UintKey, V]
}

func NewArray[V any](context *Context, pos native.Bytes32) *Array[V] {
	return &Array[V]{
		context:  context,
		length:   NewUint256(context, pos),
		elements: NewMapping[UintKey, V](context, SubSlot(pos, StringKey("elements"))),
	}
}

func (a *Array[V]) Len() (uint64, error) {
	length, err := a.length.Get()
	if err != nil {
		return 0, err
	}
	return length.Uint64(), nil
}

func (a *Array[V]) Get(index uint64) (value V, err error) {
	length, err := a.Len()
	if err != nil {
		return value, err
	}
	if index >= length {
		return value, errors.New("array index out of range")
	}
	return a.elements.Get(UintKey(index))
}

func (a *Array[V]) Set(index uint64, value V) error {
	length, err := a.Len()
	if err != nil {
		return err
	}
	if index >= length {
		return errors.New("array index out of range")
	}
	return a.elements.Set(UintKey(index), value, false)
}

func (a *Array[V]) Append(value V) error {
	length, err := a.Len()
	if err != nil {
		return err
	}
	if err := a.elements.Set(UintKey(length), value, true); err != nil {
		return err
	}
	a.length.Set(new(big.Int).SetUint64(length + 1))
	return nil
}

// Truncate shortens the array to newLen elements.
func (a *Array[V]) Truncate(newLen uint64) error {
	length, err := a.Len()
	if err != nil {
		return err
	}
	if newLen > length {
		return errors.New("cannot truncate to a longer length")
	}
	a.length.Set(new(big.Int).SetUint64(newLen))
	return nil
}

// Clear resets the array to zero length.
func (a *Array[V]) Clear() {
	a.length.Set(new(big.Int))
}
