package flows

import (
	"context"

	"WhatsFlow/bot/flow"
)

type Core interface {
	Get(ctx context.Context, name string) (*flow.Definition, error)
	ListFlows(ctx context.Context) ([]flow.Definition, error)
	SaveFlow(ctx context.Context, def *flow.Definition) error
	DeleteFlow(ctx context.Context, name string) error
}
