package events

import (
	"context"

	"OmniHub/entity"
	"OmniHub/internal/service/ingest"
)

type Core interface {
	Ingest(ctx context.Context, ev entity.ChannelEvent) (*ingest.Result, error)
}
