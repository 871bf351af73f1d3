// Package substrate implements the Substrate chain family: SS58 addresses,
// storage keys, metadata resolution, storage subscriptions and decoders.
package substrate

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/fd1az/chain-wallet/internal/apperror"
)

const (
	accountIDLen  = 32
	checksumLen   = 2
	maxPrefix     = 16383
	ss58PreString = "SS58PRE"
)

// Address is a decoded SS58 account address.
type Address struct {
	Prefix    uint16
	AccountID [accountIDLen]byte
}

// DecodeSS58 decodes an SS58 account address and verifies its checksum.
func DecodeSS58(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, invalidAddress(s, err)
	}
	if len(raw) < 1 {
		return Address{}, invalidAddress(s, fmt.Errorf("empty"))
	}

	var prefix uint16
	var prefixLen int
	switch b0 := raw[0]; {
	case b0 < 64:
		prefix, prefixLen = uint16(b0), 1
	case b0 < 128:
		if len(raw) < 2 {
			return Address{}, invalidAddress(s, fmt.Errorf("truncated prefix"))
		}
		b1 := raw[1]
		prefix = uint16(b0&0x3f)<<2 | uint16(b1>>6) | uint16(b1&0x3f)<<8
		prefixLen = 2
	default:
		return Address{}, invalidAddress(s, fmt.Errorf("reserved prefix byte %d", b0))
	}

	if len(raw) != prefixLen+accountIDLen+checksumLen {
		return Address{}, invalidAddress(s, fmt.Errorf("unexpected length %d", len(raw)))
	}

	body := raw[:prefixLen+accountIDLen]
	sum, err := checksum(body)
	if err != nil {
		return Address{}, invalidAddress(s, err)
	}
	if !bytes.Equal(sum, raw[prefixLen+accountIDLen:]) {
		return Address{}, invalidAddress(s, fmt.Errorf("checksum mismatch"))
	}

	var addr Address
	addr.Prefix = prefix
	copy(addr.AccountID[:], raw[prefixLen:prefixLen+accountIDLen])
	return addr, nil
}

// EncodeSS58 encodes accountID for the network prefix.
func EncodeSS58(prefix uint16, accountID [accountIDLen]byte) (string, error) {
	if prefix > maxPrefix {
		return "", apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("ss58 prefix %d out of range", prefix)))
	}

	var body []byte
	if prefix < 64 {
		body = append(body, byte(prefix))
	} else {
		body = append(body,
			byte((prefix&0xfc)>>2)|0x40,
			byte(prefix>>8)|byte(prefix&0x03)<<6)
	}
	body = append(body, accountID[:]...)

	sum, err := checksum(body)
	if err != nil {
		return "", err
	}
	return base58.Encode(append(body, sum...)), nil
}

func checksum(body []byte) ([]byte, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, err
	}
	h.Write([]byte(ss58PreString))
	h.Write(body)
	return h.Sum(nil)[:checksumLen], nil
}

func invalidAddress(s string, cause error) error {
	return apperror.New(apperror.CodeInvalidKey,
		apperror.WithContext("ss58 address "+s),
		apperror.WithCause(cause))
}
