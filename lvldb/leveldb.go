// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package lvldb backs the kv interfaces with goleveldb.
package lvldb

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/solace-fi/solace-native/kv"
)

var _ kv.GetPutCloser = (*LevelDB)(nil)

// Options tune the underlying leveldb instance. Zero values pick sane
// minimums.
type Options struct {
	CacheSize              int
	OpenFilesCacheCapacity int
}

var (
	writeOpt = opt.WriteOptions{}
	readOpt  = opt.ReadOptions{}
)

// LevelDB implements kv.GetPutCloser over a leveldb database.
type LevelDB struct {
	db *leveldb.DB
}

// New opens the database at path, creating it when absent.
func New(path string, opts Options) (*LevelDB, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "open level db storage")
	}
	return openLevelDB(stg, opts.CacheSize, opts.OpenFilesCacheCapacity)
}

// NewMem opens a database held entirely in memory.
func NewMem() (*LevelDB, error) {
	return openLevelDB(storage.NewMemStorage(), 0, 0)
}

func openLevelDB(stg storage.Storage, cacheSize, openFilesCacheCapacity int) (*LevelDB, error) {
	if cacheSize < 16 {
		cacheSize = 16
	}
	if openFilesCacheCapacity < 16 {
		openFilesCacheCapacity = 16
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: openFilesCacheCapacity,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB, // leveldb keeps two of these internally
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open level db")
	}
	return &LevelDB{db: db}, nil
}

// IsNotFound reports whether err from Get means the key is absent.
func (ldb *LevelDB) IsNotFound(err error) bool {
	return err == leveldb.ErrNotFound
}

func (ldb *LevelDB) Get(key []byte) (value []byte, err error) {
	return ldb.db.Get(key, &readOpt)
}

func (ldb *LevelDB) Has(key []byte) (bool, error) {
	return ldb.db.Has(key, &readOpt)
}

func (ldb *LevelDB) Put(key, value []byte) error {
	return ldb.db.Put(key, value, &writeOpt)
}

func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, &writeOpt)
}

// Close releases the database. All later operations fail.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

// NewBatch returns an empty write batch.
func (ldb *LevelDB) NewBatch() kv.Batch {
	return &levelDBBatch{
		ldb.db,
		&leveldb.Batch{},
	}
}

// NewIterator iterates keys within r.
func (ldb *LevelDB) NewIterator(r kv.Range) kv.Iterator {
	return ldb.db.NewIterator(&util.Range{
		Start: r.From,
		Limit: r.To,
	}, &readOpt)
}

type levelDBBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelDBBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	return nil
}

func (b *levelDBBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	return nil
}

func (b *levelDBBatch) NewBatch() kv.Batch {
	return &levelDBBatch{
		b.db,
		&leveldb.Batch{},
	}
}

func (b *levelDBBatch) Len() int {
	return b.batch.Len()
}

// Write commits every queued op atomically.
func (b *levelDBBatch) Write() error {
	return b.db.Write(b.batch, &writeOpt)
}
