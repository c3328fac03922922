package stakemanager

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"ad3staker/internal/events"
	"ad3staker/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	Topic0Map map[string]string
}

// StakeManagerDecoder decodes Ad3StakeManager events.
type StakeManagerDecoder struct {
	contractABI abi.ABI
	topicToName map[string]string
}

var eventNames = []string{
	events.TypeIncentiveCreated,
	events.TypeIncentiveEnded,
	events.TypeTokenReceived,
	events.TypeTokenStaked,
	events.TypeTokenUnstaked,
	events.TypeTokenWithdrawn,
	events.TypeRewardClaimed,
}

// NewStakeManagerDecoder builds a stake manager decoder.
func NewStakeManagerDecoder(cfg DecoderConfig) (*StakeManagerDecoder, error) {
	contractABI, err := StakeManagerABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(eventNames))
	for _, name := range eventNames {
		topicToName[strings.ToLower(contractABI.Events[name].ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &StakeManagerDecoder{
		contractABI: contractABI,
		topicToName: topicToName,
	}, nil
}

// EventTopics returns the topic0 of every supported event.
func EventTopics() ([]common.Hash, error) {
	contractABI, err := StakeManagerABI()
	if err != nil {
		return nil, err
	}
	topics := make([]common.Hash, 0, len(eventNames))
	for _, name := range eventNames {
		topics = append(topics, contractABI.Events[name].ID)
	}
	return topics, nil
}

// EventTopic returns the topic0 of the named event. Names match case-insensitively.
func EventTopic(name string) (common.Hash, error) {
	known := normalizeEventName(name)
	if known == "" {
		return common.Hash{}, fmt.Errorf("unknown stake manager event: %s", name)
	}
	contractABI, err := StakeManagerABI()
	if err != nil {
		return common.Hash{}, err
	}
	return contractABI.Events[known].ID, nil
}

// CanDecode checks if the topic0 is supported.
func (d *StakeManagerDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *StakeManagerDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}

	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid contract address: %s", log.Address)
	}
	contract := common.HexToAddress(log.Address)
	if len(ctx.Contracts) > 0 {
		if _, ok := ctx.Contracts[contract]; !ok {
			return nil, fmt.Errorf("unexpected emitter: %s", contract.Hex())
		}
	}

	var (
		decoded interface{}
		err     error
	)
	switch name {
	case events.TypeIncentiveCreated:
		decoded, err = d.decodeIncentiveCreated(log)
	case events.TypeIncentiveEnded:
		decoded, err = d.decodeIncentiveEnded(log)
	case events.TypeTokenReceived:
		decoded, err = d.decodeTokenReceived(log)
	case events.TypeTokenStaked:
		decoded, err = d.decodeTokenStaked(log)
	case events.TypeTokenUnstaked:
		decoded, err = d.decodeTokenUnstaked(log)
	case events.TypeTokenWithdrawn:
		decoded, err = d.decodeTokenWithdrawn(log)
	case events.TypeRewardClaimed:
		decoded, err = d.decodeRewardClaimed(log)
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, err
	}
	return buildTypedEvent(log, contract, name, decoded), nil
}

func normalizeEventName(name string) string {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	for _, known := range eventNames {
		if strings.ToLower(known) == trimmed {
			return known
		}
	}
	return ""
}

func buildTypedEvent(log model.LogRecord, contract common.Address, name string, decoded interface{}) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Contract:    contract.Hex(),
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         raw,
	}
}

func (d *StakeManagerDecoder) decodeIncentiveCreated(log model.LogRecord) (model.IncentiveCreatedData, error) {
	event := d.contractABI.Events[events.TypeIncentiveCreated]
	var indexed struct {
		IncentiveId [32]byte
		RewardToken common.Address
		Pool        common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.IncentiveCreatedData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.IncentiveCreatedData{}, err
	}
	if len(values) != 5 {
		return model.IncentiveCreatedData{}, fmt.Errorf("unexpected incentive created values: %d", len(values))
	}

	startTime, err := asUint64(values[0])
	if err != nil {
		return model.IncentiveCreatedData{}, fmt.Errorf("start time: %w", err)
	}
	endTime, err := asUint64(values[1])
	if err != nil {
		return model.IncentiveCreatedData{}, fmt.Errorf("end time: %w", err)
	}
	reward, err := asBigInt(values[2])
	if err != nil {
		return model.IncentiveCreatedData{}, err
	}
	minTick, err := asInt24(values[3])
	if err != nil {
		return model.IncentiveCreatedData{}, fmt.Errorf("min tick: %w", err)
	}
	maxTick, err := asInt24(values[4])
	if err != nil {
		return model.IncentiveCreatedData{}, fmt.Errorf("max tick: %w", err)
	}

	return model.IncentiveCreatedData{
		IncentiveID: common.Hash(indexed.IncentiveId).Hex(),
		RewardToken: indexed.RewardToken.Hex(),
		Pool:        indexed.Pool.Hex(),
		StartTime:   startTime,
		EndTime:     endTime,
		Reward:      reward.String(),
		MinTick:     minTick,
		MaxTick:     maxTick,
	}, nil
}

func (d *StakeManagerDecoder) decodeIncentiveEnded(log model.LogRecord) (model.IncentiveEndedData, error) {
	event := d.contractABI.Events[events.TypeIncentiveEnded]
	var indexed struct {
		IncentiveId [32]byte
		Recipient   common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.IncentiveEndedData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.IncentiveEndedData{}, err
	}
	if len(values) != 1 {
		return model.IncentiveEndedData{}, fmt.Errorf("unexpected incentive ended values: %d", len(values))
	}
	refund, err := asBigInt(values[0])
	if err != nil {
		return model.IncentiveEndedData{}, err
	}

	return model.IncentiveEndedData{
		IncentiveID: common.Hash(indexed.IncentiveId).Hex(),
		Recipient:   indexed.Recipient.Hex(),
		Refund:      refund.String(),
	}, nil
}

func (d *StakeManagerDecoder) decodeTokenReceived(log model.LogRecord) (model.TokenReceivedData, error) {
	event := d.contractABI.Events[events.TypeTokenReceived]
	var indexed struct {
		TokenId *big.Int
		Owner   common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.TokenReceivedData{}, err
	}
	tokenID, err := asUint64(indexed.TokenId)
	if err != nil {
		return model.TokenReceivedData{}, fmt.Errorf("token id: %w", err)
	}
	return model.TokenReceivedData{TokenID: tokenID, Owner: indexed.Owner.Hex()}, nil
}

func (d *StakeManagerDecoder) decodeTokenStaked(log model.LogRecord) (model.TokenStakedData, error) {
	event := d.contractABI.Events[events.TypeTokenStaked]
	var indexed struct {
		IncentiveId [32]byte
		TokenId     *big.Int
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.TokenStakedData{}, err
	}
	tokenID, err := asUint64(indexed.TokenId)
	if err != nil {
		return model.TokenStakedData{}, fmt.Errorf("token id: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.TokenStakedData{}, err
	}
	if len(values) != 1 {
		return model.TokenStakedData{}, fmt.Errorf("unexpected token staked values: %d", len(values))
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return model.TokenStakedData{}, err
	}

	return model.TokenStakedData{
		IncentiveID: common.Hash(indexed.IncentiveId).Hex(),
		TokenID:     tokenID,
		Liquidity:   liquidity.String(),
	}, nil
}

func (d *StakeManagerDecoder) decodeTokenUnstaked(log model.LogRecord) (model.TokenUnstakedData, error) {
	event := d.contractABI.Events[events.TypeTokenUnstaked]
	var indexed struct {
		IncentiveId [32]byte
		TokenId     *big.Int
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.TokenUnstakedData{}, err
	}
	tokenID, err := asUint64(indexed.TokenId)
	if err != nil {
		return model.TokenUnstakedData{}, fmt.Errorf("token id: %w", err)
	}
	return model.TokenUnstakedData{
		IncentiveID: common.Hash(indexed.IncentiveId).Hex(),
		TokenID:     tokenID,
	}, nil
}

func (d *StakeManagerDecoder) decodeTokenWithdrawn(log model.LogRecord) (model.TokenWithdrawnData, error) {
	event := d.contractABI.Events[events.TypeTokenWithdrawn]
	var indexed struct {
		TokenId   *big.Int
		Recipient common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.TokenWithdrawnData{}, err
	}
	tokenID, err := asUint64(indexed.TokenId)
	if err != nil {
		return model.TokenWithdrawnData{}, fmt.Errorf("token id: %w", err)
	}
	return model.TokenWithdrawnData{TokenID: tokenID, Recipient: indexed.Recipient.Hex()}, nil
}

func (d *StakeManagerDecoder) decodeRewardClaimed(log model.LogRecord) (model.RewardClaimedData, error) {
	event := d.contractABI.Events[events.TypeRewardClaimed]
	var indexed struct {
		To common.Address
	}
	if err := parseIndexed(event, log.Topics, &indexed); err != nil {
		return model.RewardClaimedData{}, err
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.RewardClaimedData{}, err
	}
	if len(values) != 1 {
		return model.RewardClaimedData{}, fmt.Errorf("unexpected reward claimed values: %d", len(values))
	}
	amount, err := asBigInt(values[0])
	if err != nil {
		return model.RewardClaimedData{}, err
	}
	return model.RewardClaimedData{Recipient: indexed.To.Hex(), Amount: amount.String()}, nil
}

func parseIndexed(event abi.Event, topics []string, out interface{}) error {
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return err
	}
	if err := abi.ParseTopics(out, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return fmt.Errorf("parse topics: %w", err)
	}
	return nil
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

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	if dataHex == "" {
		dataHex = "0x"
	}
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
