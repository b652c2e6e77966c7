// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/solace-fi/solace-native/kv"
	"github.com/solace-fi/solace-native/native"
)

// Error is the error caused by state access failure.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

type storageKey struct {
	addr native.Address
	key  native.Bytes32
}

func (k storageKey) dbKey() []byte {
	b := make([]byte, 0, native.AddressLength+32)
	b = append(b, k.addr.Bytes()...)
	return append(b, k.key.Bytes()...)
}

type journalEntry struct {
	key       storageKey
	prev      rlp.RawValue
	prevDirty bool
}

// State manages the world state: per-component raw storage with a revision
// journal, so that a failing call can be rolled back without partial effect.
type State struct {
	db kv.GetPutter

	dirty       map[storageKey]rlp.RawValue
	reads       map[storageKey]rlp.RawValue
	journal     []journalEntry
	checkpoints []int
}

// New create state object over the given kv store.
func New(db kv.GetPutter) *State {
	return &State{
		db:    db,
		dirty: make(map[storageKey]rlp.RawValue),
		reads: make(map[storageKey]rlp.RawValue),
	}
}

func (s *State) load(k storageKey) (rlp.RawValue, error) {
	if raw, ok := s.dirty[k]; ok {
		return raw, nil
	}
	if raw, ok := s.reads[k]; ok {
		return raw, nil
	}
	raw, err := s.db.Get(k.dbKey())
	if err != nil {
		if s.db.IsNotFound(err) {
			s.reads[k] = nil
			return nil, nil
		}
		return nil, err
	}
	s.reads[k] = raw
	return raw, nil
}

// GetRawStorage returns storage value in rlp raw for given address and key.
func (s *State) GetRawStorage(addr native.Address, key native.Bytes32) (rlp.RawValue, error) {
	raw, err := s.load(storageKey{addr, key})
	if err != nil {
		return nil, &Error{err}
	}
	return raw, nil
}

// SetRawStorage set storage value in rlp raw.
func (s *State) SetRawStorage(addr native.Address, key native.Bytes32, raw rlp.RawValue) {
	k := storageKey{addr, key}
	prev, prevDirty := s.dirty[k]
	s.journal = append(s.journal, journalEntry{k, prev, prevDirty})
	if len(raw) == 0 {
		raw = nil
	}
	s.dirty[k] = raw
}

// GetStorage returns storage value for the given address and key.
func (s *State) GetStorage(addr native.Address, key native.Bytes32) (native.Bytes32, error) {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return native.Bytes32{}, err
	}
	if len(raw) == 0 {
		return native.Bytes32{}, nil
	}
	kind, content, _, err := rlp.Split(raw)
	if err != nil {
		return native.Bytes32{}, &Error{err}
	}
	if kind == rlp.List {
		// special case for rlp list, it should be customized storage value
		// return hash of raw data
		return native.Blake2b(raw), nil
	}
	return native.BytesToBytes32(content), nil
}

// SetStorage set storage value for the given address and key.
func (s *State) SetStorage(addr native.Address, key, value native.Bytes32) {
	if value.IsZero() {
		s.SetRawStorage(addr, key, nil)
		return
	}
	v, _ := rlp.EncodeToBytes(bytes.TrimLeft(value[:], "\x00"))
	s.SetRawStorage(addr, key, v)
}

// EncodeStorage set storage value encoded by given enc method.
func (s *State) EncodeStorage(addr native.Address, key native.Bytes32, enc func() ([]byte, error)) error {
	raw, err := enc()
	if err != nil {
		return &Error{err}
	}
	s.SetRawStorage(addr, key, raw)
	return nil
}

// DecodeStorage get and decode storage value.
func (s *State) DecodeStorage(addr native.Address, key native.Bytes32, dec func([]byte) error) error {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return err
	}
	if err := dec(raw); err != nil {
		return &Error{err}
	}
	return nil
}

// NewCheckpoint makes a checkpoint of current state.
// It returns revision of the checkpoint.
func (s *State) NewCheckpoint() int {
	s.checkpoints = append(s.checkpoints, len(s.journal))
	return len(s.checkpoints)
}

// RevertTo reverts state to the given revision.
func (s *State) RevertTo(revision int) {
	if revision <= 0 || revision > len(s.checkpoints) {
		panic("state: invalid revision")
	}
	mark := s.checkpoints[revision-1]
	for i := len(s.journal) - 1; i >= mark; i-- {
		e := s.journal[i]
		if e.prevDirty {
			s.dirty[e.key] = e.prev
		} else {
			delete(s.dirty, e.key)
		}
	}
	s.journal = s.journal[:mark]
	s.checkpoints = s.checkpoints[:revision-1]
}

// ReleaseCheckpoint discards the given checkpoint, keeping changes made since.
func (s *State) ReleaseCheckpoint(revision int) {
	if revision <= 0 || revision > len(s.checkpoints) {
		panic("state: invalid revision")
	}
	s.checkpoints = s.checkpoints[:revision-1]
}

// Commit writes dirty storage into the underlying kv store.
func (s *State) Commit() error {
	batch := s.db.NewBatch()
	for k, raw := range s.dirty {
		if len(raw) == 0 {
			if err := batch.Delete(k.dbKey()); err != nil {
				return &Error{err}
			}
		} else {
			if err := batch.Put(k.dbKey(), raw); err != nil {
				return &Error{err}
			}
		}
	}
	if err := batch.Write(); err != nil {
		return &Error{err}
	}
	s.dirty = make(map[storageKey]rlp.RawValue)
	s.reads = make(map[storageKey]rlp.RawValue)
	s.journal = s.journal[:0]
	s.checkpoints = s.checkpoints[:0]
	return nil
}
