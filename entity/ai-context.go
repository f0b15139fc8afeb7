package entity

import "go.mongodb.org/mongo-driver/bson/primitive"

// AIContext is a knowledge snippet injected into the AI responder prompt.
// TriggerKeywords (comma separated) gate the snippet to relevant messages;
// an empty list always applies.
type AIContext struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Title           string             `json:"title" bson:"title"`
	Enabled         bool               `json:"enabled" bson:"enabled"`
	Priority        int                `json:"priority" bson:"priority"`
	TriggerKeywords string             `json:"trigger_keywords" bson:"trigger_keywords"`
	Content         string             `json:"content" bson:"content"`
}
