package evm

import (
	"fmt"

	"github.com/fd1az/chain-wallet/business/subscription/domain"
	"github.com/fd1az/chain-wallet/internal/apperror"
)

// DecodeBalance decodes a big-endian wei balance. nil, which the batch source
// reports for a zero balance, decodes to the empty balance.
func DecodeBalance(raw []byte) (domain.AccountBalance, error) {
	if raw == nil {
		return domain.AccountBalance{}, nil
	}
	if len(raw) > 32 {
		return domain.AccountBalance{}, apperror.Decode("balance", fmt.Errorf("%d bytes exceeds 256 bits", len(raw)))
	}

	var b domain.AccountBalance
	b.Present = true
	b.Free.SetBytes(raw)
	return b, nil
}
