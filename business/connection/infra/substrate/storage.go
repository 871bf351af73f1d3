package substrate

import (
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"

	"github.com/fd1az/chain-wallet/internal/apperror"
)

// Twox128 is the two-seed xxhash64 hasher used for storage prefixes.
func Twox128(data []byte) []byte {
	out := make([]byte, 16)
	for seed := uint64(0); seed < 2; seed++ {
		d := xxhash.NewWithSeed(seed)
		d.Write(data)
		binary.LittleEndian.PutUint64(out[seed*8:], d.Sum64())
	}
	return out
}

// Blake2_128Concat is blake2b-128(data) followed by data.
func Blake2_128Concat(data []byte) []byte {
	h, _ := blake2b.New(16, nil) // only errors for size > 64 or a long key
	h.Write(data)
	return append(h.Sum(nil), data...)
}

// StoragePrefix is twox128(pallet) ‖ twox128(item).
func StoragePrefix(pallet, item string) []byte {
	return append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
}

// AccountStorageKey returns the System.Account key for an account id.
func AccountStorageKey(accountID [accountIDLen]byte) string {
	key := StoragePrefix("System", "Account")
	key = append(key, Blake2_128Concat(accountID[:])...)
	return hexutil.Encode(key)
}

// NormalizeKey maps an SS58 address to its System.Account key and
// lowercases raw 0x storage keys. prefix is the chain's SS58 format; an
// address with another prefix is rejected.
func NormalizeKey(key string, prefix uint16) (string, error) {
	if strings.HasPrefix(key, "0x") || strings.HasPrefix(key, "0X") {
		raw, err := hexutil.Decode("0x" + key[2:])
		if err != nil || len(raw) == 0 {
			return "", apperror.New(apperror.CodeInvalidKey,
				apperror.WithContext("storage key "+key),
				apperror.WithCause(err))
		}
		return hexutil.Encode(raw), nil
	}

	addr, err := DecodeSS58(key)
	if err != nil {
		return "", err
	}
	if addr.Prefix != prefix {
		return "", apperror.New(apperror.CodeInvalidKey,
			apperror.WithContext("address "+key+" is not for this network"))
	}
	return AccountStorageKey(addr.AccountID), nil
}
