package staker

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"ad3staker/internal/model"
)

// IncentiveKey identifies an incentive. All fields are fixed at creation.
type IncentiveKey struct {
	RewardToken common.Address
	Pool        common.Address
	StartTime   uint64
	EndTime     uint64
}

var incentiveKeyArguments = func() abi.Arguments {
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uintType, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "rewardToken", Type: addressType},
		{Name: "pool", Type: addressType},
		{Name: "startTime", Type: uintType},
		{Name: "endTime", Type: uintType},
	}
}()

// ID returns keccak256(abi.encode(rewardToken, pool, startTime, endTime)).
func (k IncentiveKey) ID() common.Hash {
	encoded, err := incentiveKeyArguments.Pack(
		k.RewardToken,
		k.Pool,
		new(big.Int).SetUint64(k.StartTime),
		new(big.Int).SetUint64(k.EndTime),
	)
	if err != nil {
		panic(fmt.Sprintf("encode incentive key: %v", err))
	}
	return crypto.Keccak256Hash(encoded)
}

// Record converts the key into its JSON form.
func (k IncentiveKey) Record() model.IncentiveKeyRecord {
	return model.IncentiveKeyRecord{
		RewardToken: k.RewardToken.Hex(),
		Pool:        k.Pool.Hex(),
		StartTime:   k.StartTime,
		EndTime:     k.EndTime,
	}
}

// KeyFromRecord parses a JSON incentive key.
func KeyFromRecord(record model.IncentiveKeyRecord) (IncentiveKey, error) {
	if !common.IsHexAddress(record.RewardToken) {
		return IncentiveKey{}, fmt.Errorf("invalid reward token: %q", record.RewardToken)
	}
	if !common.IsHexAddress(record.Pool) {
		return IncentiveKey{}, fmt.Errorf("invalid pool: %q", record.Pool)
	}
	return IncentiveKey{
		RewardToken: common.HexToAddress(record.RewardToken),
		Pool:        common.HexToAddress(record.Pool),
		StartTime:   record.StartTime,
		EndTime:     record.EndTime,
	}, nil
}
