package stakemanager

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ad3staker/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders.
type DecodeContext struct {
	Context context.Context
	// Contracts restricts decoding to logs emitted by these addresses. Empty accepts any emitter.
	Contracts map[common.Address]struct{}
	Logger    *zap.Logger
}

// NewDecodeContext builds a context accepting logs from contracts only.
func NewDecodeContext(ctx context.Context, contracts []common.Address, logger *zap.Logger) DecodeContext {
	out := DecodeContext{Context: ctx, Logger: logger}
	if len(contracts) > 0 {
		out.Contracts = make(map[common.Address]struct{}, len(contracts))
		for _, contract := range contracts {
			out.Contracts[contract] = struct{}{}
		}
	}
	return out
}
