package session

import (
	"context"

	"WhatsFlow/bot/flow"
)

type Core interface {
	ListSessions(ctx context.Context, limit int64) ([]flow.Session, error)
	Active(ctx context.Context, phone, account string) (*flow.Session, error)
	Terminate(ctx context.Context, s *flow.Session, status flow.SessionStatus) (bool, error)
}
