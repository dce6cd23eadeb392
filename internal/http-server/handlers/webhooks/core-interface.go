package webhooks

import "context"

type Core interface {
	IngestRaw(ctx context.Context, channel, companyID, connectionID string, body []byte) (int, error)
}
