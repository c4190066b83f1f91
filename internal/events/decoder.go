package events

import (
	"context"

	"go.uber.org/zap"

	"datedVamm/internal/model"
)

// Decoder defines a journal record decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders.
type DecodeContext struct {
	Context       context.Context
	Meta          MetaSource
	PoolMetaCache *PoolMetaCache
	Logger        *zap.Logger
}
