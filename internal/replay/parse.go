package replay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"launchpool/internal/model"
	"launchpool/internal/storage"
)

// ParseAddresses converts string addresses into common.Address.
func ParseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ReadOperations loads an operation script, one JSON operation per line.
// Operations without a sequence number are numbered by line position.
func ReadOperations(path string) ([]model.Operation, error) {
	var ops []model.Operation
	line := 0
	err := storage.ScanJSONL(path, func(raw []byte) error {
		line++
		var op model.Operation
		if err := json.Unmarshal(raw, &op); err != nil {
			return fmt.Errorf("operation on line %d: %w", line, err)
		}
		if op.Op == "" {
			return fmt.Errorf("operation on line %d has no op", line)
		}
		if op.Seq == 0 {
			op.Seq = uint64(line)
		}
		ops = append(ops, op)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}
