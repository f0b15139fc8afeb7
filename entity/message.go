package entity

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DirectionIncoming = "Incoming"
	DirectionOutgoing = "Outgoing"
)

// Message is a durable record of one exchanged message, used for the
// conversation log and as AI responder history.
type Message struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Account     string             `json:"account" bson:"account"`
	PhoneNumber string             `json:"phone_number" bson:"phone_number"`
	Direction   string             `json:"direction" bson:"direction"`
	Text        string             `json:"text" bson:"text"`
	ContentType string             `json:"content_type" bson:"content_type"` // "text" | "interactive" | "template" | "flow"
	StepName    string             `json:"step_name" bson:"step_name"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
}
