// Copyright (c) 2025 The Solace Native developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package storage

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/solace-fi/solace-native/native"
)

// Cursor is the persisted progress marker of a suspended aggregation pass:
// three nested loop indices saved as one unit of state. A nil cursor means
// "not started", which is distinct from a legitimate (0,0,0) mid-pass
// position.
type Cursor struct {
	Outer  uint32
	Middle uint32
	Inner  uint32
}

// CursorCell persists a Cursor in a single slot.
type CursorCell struct {
	context *Context
	pos     native.Bytes32
}

func NewCursorCell(context *Context, pos native.Bytes32) *CursorCell {
	return &CursorCell{context: context, pos: pos}
}

// Get returns the stored cursor, or nil if no pass is in progress.
func (c *CursorCell) Get() (cursor *Cursor, err error) {
	err = c.context.state.DecodeStorage(c.context.address, c.pos, func(raw []byte) error {
		if len(raw) == 0 {
			return nil
		}
		c.context.UseUnits(native.SloadCost)
		cursor = new(Cursor)
		return rlp.DecodeBytes(raw, cursor)
	})
	return
}

// Set persists the cursor of a suspended pass.
func (c *CursorCell) Set(cursor *Cursor) error {
	return c.context.state.EncodeStorage(c.context.address, c.pos, func() ([]byte, error) {
		c.context.UseUnits(native.SstoreResetCost)
		return rlp.EncodeToBytes(cursor)
	})
}

// Clear marks the pass as finished.
func (c *CursorCell) Clear() {
	c.context.UseUnits(native.SstoreResetCost)
	c.context.state.SetRawStorage(c.context.address, c.pos, nil)
}
