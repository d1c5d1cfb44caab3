package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"launchpool/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

// EventDecoder decodes engine event logs into typed events.
type EventDecoder struct {
	engineABI   abi.ABI
	topicToName map[string]string
}

// NewEventDecoder builds a decoder for every event in the engine ABI.
func NewEventDecoder() (*EventDecoder, error) {
	engineABI, err := EngineABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(engineABI.Events))
	for name, event := range engineABI.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	return &EventDecoder{
		engineABI:   engineABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *EventDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *EventDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid emitter address: %s", log.Address)
	}

	fields, err := d.fields(d.engineABI.Events[name], log)
	if err != nil {
		return nil, err
	}
	decoded, err := buildPayload(name, fields)
	if err != nil {
		return nil, err
	}
	return buildTypedEvent(log, name, decoded), nil
}

func (d *EventDecoder) fields(event abi.Event, log model.LogRecord) (eventFields, error) {
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(out, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(out, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return out, nil
}

func buildPayload(name string, f eventFields) (interface{}, error) {
	switch name {
	case EventPairCreated:
		return model.PairCreatedEventData{Token0: f.addr("token0"), Token1: f.addr("token1"), Pair: f.addr("pair"), Index: f.num("index")}, f.err()
	case EventMint:
		return model.MintEventData{Sender: f.addr("sender"), Amount0: f.num("amount0"), Amount1: f.num("amount1")}, f.err()
	case EventBurn:
		return model.BurnEventData{Sender: f.addr("sender"), To: f.addr("to"), Amount0: f.num("amount0"), Amount1: f.num("amount1")}, f.err()
	case EventSwap:
		return model.SwapEventData{
			Sender:     f.addr("sender"),
			To:         f.addr("to"),
			Amount0In:  f.num("amount0In"),
			Amount1In:  f.num("amount1In"),
			Amount0Out: f.num("amount0Out"),
			Amount1Out: f.num("amount1Out"),
		}, f.err()
	case EventSync:
		return model.SyncEventData{Reserve0: f.num("reserve0"), Reserve1: f.num("reserve1")}, f.err()
	case EventTransfer:
		return model.TransferEventData{From: f.addr("from"), To: f.addr("to"), Value: f.num("value")}, f.err()
	case EventApproval:
		return model.ApprovalEventData{Owner: f.addr("owner"), Spender: f.addr("spender"), Value: f.num("value")}, f.err()
	case EventThresholdUpdated:
		return model.ThresholdUpdatedEventData{OldThreshold: f.num("oldThreshold"), NewThreshold: f.num("newThreshold")}, f.err()
	case EventGraduationExecuted:
		return model.GraduationExecutedEventData{Token: f.addr("token"), Pool: f.addr("pool"), CurrentSupply: f.num("currentSupply")}, f.err()
	case EventAMMPoolCreated:
		return model.AMMPoolCreatedEventData{Token: f.addr("token"), BaseAsset: f.addr("baseAsset"), Pool: f.addr("pool")}, f.err()
	case EventLiquidityMigrated:
		return model.LiquidityMigratedEventData{
			Token:       f.addr("token"),
			Pool:        f.addr("pool"),
			TokenAmount: f.num("tokenAmount"),
			BaseAmount:  f.num("baseAmount"),
			Shares:      f.num("shares"),
		}, f.err()
	case EventTokensBurned:
		return model.TokensBurnedEventData{Token: f.addr("token"), Amount: f.num("amount")}, f.err()
	case EventBreakerTriggered, EventBreakerReset:
		return model.CircuitBreakerEventData{Actor: f.addr("actor"), Timestamp: f.num("timestamp")}, f.err()
	case EventPaused, EventUnpaused:
		return model.PauseEventData{Account: f.addr("account")}, f.err()
	case EventOwnershipTransferred:
		return model.OwnershipTransferredEventData{PreviousOwner: f.addr("previousOwner"), NewOwner: f.addr("newOwner")}, f.err()
	case EventFeeToUpdated, EventFeeToSetterUpdated:
		return model.FeeToUpdatedEventData{Previous: f.addr("previous"), Current: f.addr("current")}, f.err()
	case EventTokenLaunched:
		return model.TokenLaunchedEventData{Token: f.addr("token"), Creator: f.addr("creator"), Supply: f.num("supply")}, f.err()
	case EventCurveTrade:
		return model.CurveTradeEventData{
			Token:       f.addr("token"),
			Trader:      f.addr("trader"),
			IsBuy:       f.flag("isBuy"),
			BaseAmount:  f.num("baseAmount"),
			TokenAmount: f.num("tokenAmount"),
		}, f.err()
	case EventEmergencyWithdraw:
		return model.EmergencyWithdrawEventData{Asset: f.addr("asset"), To: f.addr("to"), Amount: f.num("amount")}, f.err()
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
}

// eventFields holds decoded values by ABI input name. Missing or mistyped
// values are recorded under errKey and surfaced by err.
type eventFields map[string]interface{}

const errKey = "\x00err"

func (f eventFields) addr(key string) string {
	v, ok := f[key].(common.Address)
	if !ok {
		f.fail(key)
		return ""
	}
	return v.Hex()
}

func (f eventFields) num(key string) string {
	v, ok := f[key].(*big.Int)
	if !ok || v == nil {
		f.fail(key)
		return ""
	}
	return v.String()
}

func (f eventFields) flag(key string) bool {
	v, ok := f[key].(bool)
	if !ok {
		f.fail(key)
	}
	return v
}

func (f eventFields) fail(key string) {
	if _, set := f[errKey]; !set {
		f[errKey] = fmt.Errorf("field %s missing or mistyped", key)
	}
}

func (f eventFields) err() error {
	if err, ok := f[errKey].(error); ok {
		return err
	}
	return nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		Round:     log.Round,
		TxIndex:   log.TxIndex,
		LogIndex:  log.LogIndex,
		Address:   log.Address,
		EventName: name,
		Timestamp: log.Timestamp,
		Decoded:   decoded,
		Raw:       raw,
	}
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
