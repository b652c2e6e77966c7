// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"github.com/solace-fi/solace-native/native"
)

// Set is an enumerable storage set: an array of elements plus a reverse
// index of 1-based positions. Iteration by index is stable as long as no
// element is removed; Remove swaps the last element into the vacated spot,
// so removals must be deferred while an iteration cursor is live.
type Set[V interface {
	Key
	comparable
}] struct {
	context   *Context
	values    *Array[V]
	positions *Mapping[V, uint64]
}

func NewSet[V interface {
	Key
	comparable
}](context *Context, pos native.Bytes32) *Set[V] {
	return &Set[V]{
		context:   context,
		values:    NewArray[V](context, SubSlot(pos, StringKey("values"))),
		positions: NewMapping[V, uint64](context, SubSlot(pos, StringKey("positions"))),
	}
}

// AddressSet enumerates addresses.
type AddressSet = Set[native.Address]

func NewAddressSet(context *Context, pos native.Bytes32) *AddressSet {
	return NewSet[native.Address](context, pos)
}

// UintSet enumerates unsigned integers.
type UintSet = Set[UintKey]

func NewUintSet(context *Context, pos native.Bytes32) *UintSet {
	return NewSet[UintKey](context, pos)
}

func (s *Set[V]) Len() (uint64, error) {
	return s.values.Len()
}

func (s *Set[V]) Get(index uint64) (V, error) {
	return s.values.Get(index)
}

func (s *Set[V]) Contains(value V) (bool, error) {
	pos, err := s.positions.Get(value)
	if err != nil {
		return false, err
	}
	return pos != 0, nil
}

// Add appends the value if absent. Returns whether it was added.
func (s *Set[V]) Add(value V) (bool, error) {
	pos, err := s.positions.Get(value)
	if err != nil {
		return false, err
	}
	if pos != 0 {
		return false, nil
	}
	length, err := s.values.Len()
	if err != nil {
		return false, err
	}
	if err := s.values.Append(value); err != nil {
		return false, err
	}
	if err := s.positions.Set(value, length+1, true); err != nil {
		return false, err
	}
	return true, nil
}

// Remove swap-removes the value if present. Returns whether it was removed.
func (s *Set[V]) Remove(value V) (bool, error) {
	pos, err := s.positions.Get(value)
	if err != nil {
		return false, err
	}
	if pos == 0 {
		return false, nil
	}
	length, err := s.values.Len()
	if err != nil {
		return false, err
	}
	if pos != length {
		last, err := s.values.Get(length - 1)
		if err != nil {
			return false, err
		}
		if err := s.values.Set(pos-1, last); err != nil {
			return false, err
		}
		if err := s.positions.Set(last, pos, false); err != nil {
			return false, err
		}
	}
	if err := s.values.Truncate(length - 1); err != nil {
		return false, err
	}
	s.positions.Delete(value)
	return true, nil
}

// All returns every element in iteration order.
func (s *Set[V]) All() ([]V, error) {
	length, err := s.values.Len()
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, length)
	for i := uint64(0); i < length; i++ {
		v, err := s.values.Get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
