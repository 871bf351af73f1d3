// Package domain contains the subscription bounded context's core types.
package domain

import (
	"github.com/holiman/uint256"
)

// AccountBalance is the decoded balance state of one account. The zero value
// (Present false, all amounts zero) means the account has no on-chain state.
type AccountBalance struct {
	Present  bool
	Nonce    uint32
	Free     uint256.Int
	Reserved uint256.Int
	Frozen   uint256.Int
}

// Transferable is Free minus Frozen, floored at zero.
func (b AccountBalance) Transferable() *uint256.Int {
	out := new(uint256.Int)
	if b.Free.Lt(&b.Frozen) {
		return out
	}
	return out.Sub(&b.Free, &b.Frozen)
}

// Total is Free plus Reserved.
func (b AccountBalance) Total() *uint256.Int {
	return new(uint256.Int).Add(&b.Free, &b.Reserved)
}
