package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Event names emitted by the engine.
const (
	EventPairCreated          = "PairCreated"
	EventMint                 = "Mint"
	EventBurn                 = "Burn"
	EventSwap                 = "Swap"
	EventSync                 = "Sync"
	EventTransfer             = "Transfer"
	EventApproval             = "Approval"
	EventThresholdUpdated     = "ThresholdUpdated"
	EventGraduationExecuted   = "GraduationExecuted"
	EventAMMPoolCreated       = "AMMPoolCreated"
	EventLiquidityMigrated    = "LiquidityMigrated"
	EventTokensBurned         = "BondingCurveTokensBurned"
	EventBreakerTriggered     = "CircuitBreakerTriggered"
	EventBreakerReset         = "CircuitBreakerReset"
	EventPaused               = "Paused"
	EventUnpaused             = "Unpaused"
	EventOwnershipTransferred = "OwnershipTransferred"
	EventFeeToUpdated         = "FeeToUpdated"
	EventFeeToSetterUpdated   = "FeeToSetterUpdated"
	EventTokenLaunched        = "TokenLaunched"
	EventCurveTrade           = "CurveTrade"
	EventEmergencyWithdraw    = "EmergencyWithdraw"
)

// EncodeEvent builds the topics and data of a log for the named event.
// Values are given in ABI input order; indexed values go to topics.
func EncodeEvent(name string, values ...interface{}) ([]common.Hash, []byte, error) {
	engine, err := EngineABI()
	if err != nil {
		return nil, nil, err
	}
	event, ok := engine.Events[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown event: %s", name)
	}
	if len(values) != len(event.Inputs) {
		return nil, nil, fmt.Errorf("event %s takes %d values, got %d", name, len(event.Inputs), len(values))
	}

	topics := []common.Hash{event.ID}
	nonIndexed := make([]interface{}, 0, len(values))
	for i, input := range event.Inputs {
		if !input.Indexed {
			nonIndexed = append(nonIndexed, values[i])
			continue
		}
		made, err := abi.MakeTopics([]interface{}{values[i]})
		if err != nil {
			return nil, nil, fmt.Errorf("topic %s.%s: %w", name, input.Name, err)
		}
		topics = append(topics, made[0][0])
	}

	data, err := event.Inputs.NonIndexed().Pack(nonIndexed...)
	if err != nil {
		return nil, nil, fmt.Errorf("pack %s: %w", name, err)
	}
	return topics, data, nil
}
