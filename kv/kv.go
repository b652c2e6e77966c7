// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package kv defines the key/value store interfaces the state layer
// persists through.
package kv

// Getter reads keys.
type Getter interface {
	// Get returns the value stored under key, or an error satisfying
	// IsNotFound when the key is absent.
	Get(key []byte) (value []byte, err error)
	Has(key []byte) (bool, error)
	IsNotFound(err error) bool

	NewIterator(r Range) Iterator
}

// Putter writes and deletes keys.
type Putter interface {
	Put(key, value []byte) error
	Delete(key []byte) error

	NewBatch() Batch
}

// GetPutter combines reads and writes.
type GetPutter interface {
	Getter
	Putter
}

// GetPutCloser is a closable GetPutter.
type GetPutCloser interface {
	GetPutter
	Close() error
}

// Batch accumulates writes for one atomic commit.
type Batch interface {
	Putter

	Len() int
	Write() error
}

// Iterator walks kv pairs in key order.
type Iterator interface {
	Next() bool
	Release()
	Error() error

	Key() []byte
	Value() []byte
}

// Range bounds an iteration, From included, To excluded.
type Range struct {
	From []byte
	To   []byte
}
