package engine

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"launchpool/internal/model"
	"launchpool/internal/types"
)

// parser decodes operation fields, keeping the first error.
type parser struct {
	op  model.Operation
	err error
}

func (p *parser) addr(field, value string) common.Address {
	value = strings.TrimSpace(value)
	if value == "" || p.err != nil {
		return common.Address{}
	}
	if !common.IsHexAddress(value) {
		p.err = types.ErrInvalidAddress.Wrapf("%s: %q", field, value)
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func (p *parser) amount(field, value string) *big.Int {
	value = strings.TrimSpace(value)
	if value == "" || p.err != nil {
		return nil
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		p.err = types.ErrInvalidAmount.Wrapf("%s: %q", field, value)
		return nil
	}
	return v
}

func (p *parser) path(values []string) []common.Address {
	out := make([]common.Address, 0, len(values))
	for i, v := range values {
		out = append(out, p.addr(fmt.Sprintf("path[%d]", i), v))
	}
	return out
}

func errPoolNotFound(a, b common.Address) error {
	return types.ErrPoolNotFound.Wrapf("%s/%s", a.Hex(), b.Hex())
}
