package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Keyword rule match types.
const (
	MatchExact      = "Exact"
	MatchContains   = "Contains"
	MatchStartsWith = "Starts With"
	MatchRegex      = "Regex"
)

// Keyword rule response types.
const (
	ReplyText     = "Text"
	ReplyTemplate = "Template"
	ReplyFlow     = "Flow"
)

// KeywordRule is a static auto-reply rule matched against free text when
// no session and no flow trigger applies.
type KeywordRule struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name          string             `json:"name" bson:"name" validate:"required"`
	Enabled       bool               `json:"enabled" bson:"enabled"`
	Keywords      string             `json:"keywords" bson:"keywords" validate:"required"` // comma separated
	MatchType     string             `json:"match_type" bson:"match_type" validate:"oneof='Exact' 'Contains' 'Starts With' 'Regex'"`
	CaseSensitive bool               `json:"case_sensitive" bson:"case_sensitive"`
	Priority      int                `json:"priority" bson:"priority"`
	Account       string             `json:"account" bson:"account"` // empty matches any account
	ActiveFrom    *time.Time         `json:"active_from" bson:"active_from"`
	ActiveUntil   *time.Time         `json:"active_until" bson:"active_until"`
	Condition     string             `json:"condition" bson:"condition"` // optional script gate, sees `message`
	ResponseType  string             `json:"response_type" bson:"response_type" validate:"oneof=Text Template Flow"`
	ResponseText  string             `json:"response_text" bson:"response_text"`
	Template      string             `json:"template" bson:"template"`
	TriggerFlow   string             `json:"trigger_flow" bson:"trigger_flow"`
}
