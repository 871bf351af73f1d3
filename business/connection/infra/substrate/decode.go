package substrate

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/fd1az/chain-wallet/business/subscription/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

// SCALE encoded AccountInfo sizes across runtime generations.
const (
	accountInfoLen       = 4*4 + 16*4 // nonce, consumers, providers, sufficients, AccountData
	accountInfoNoSuffLen = 4*3 + 16*4 // before sufficients
	accountInfoLegacyLen = 4*2 + 16*4 // nonce, refcount
)

// DecodeAccountInfo decodes a System.Account value. nil means the account
// does not exist and decodes to the empty balance.
func DecodeAccountInfo(raw []byte) (domain.AccountBalance, error) {
	if raw == nil {
		return domain.AccountBalance{}, nil
	}

	var header int
	switch len(raw) {
	case accountInfoLen:
		header = 16
	case accountInfoNoSuffLen:
		header = 12
	case accountInfoLegacyLen:
		header = 8
	default:
		return domain.AccountBalance{}, apperror.Decode("AccountInfo",
			fmt.Errorf("unexpected length %d", len(raw)))
	}

	b := domain.AccountBalance{
		Present: true,
		Nonce:   binary.LittleEndian.Uint32(raw[0:4]),
	}
	data := raw[header:]
	readU128(&b.Free, data[0:16])
	readU128(&b.Reserved, data[16:32])
	// misc_frozen on legacy layouts, frozen on current ones
	readU128(&b.Frozen, data[32:48])

	// The last word is fee_frozen, or flags on runtimes that set the
	// new-logic bit. Both layouts are 80 bytes once sufficients exist.
	last := data[48:64]
	if !newLogicFlags(last) {
		var feeFrozen uint256.Int
		readU128(&feeFrozen, last)
		if feeFrozen.Gt(&b.Frozen) {
			b.Frozen = feeFrozen
		}
	}
	return b, nil
}

// newLogicFlags reports whether a little-endian u128 has bit 127 set.
func newLogicFlags(le []byte) bool {
	return le[15]&0x80 != 0
}

func readU128(dst *uint256.Int, le []byte) {
	var be [16]byte
	for i := range le {
		be[15-i] = le[i]
	}
	dst.SetBytes(be[:])
}
