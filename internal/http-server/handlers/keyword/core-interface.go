package keyword

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"WhatsFlow/entity"
)

type Core interface {
	ListAllRules(ctx context.Context) ([]entity.KeywordRule, error)
	SaveRule(ctx context.Context, rule *entity.KeywordRule) error
	DeleteRule(ctx context.Context, id primitive.ObjectID) error
}
