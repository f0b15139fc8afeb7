package entity

import "time"

// InboundMessage is a normalized incoming event from the transport layer.
type InboundMessage struct {
	Account       string            `json:"account" bson:"account"`
	PhoneNumber   string            `json:"phone_number" bson:"phone_number"`
	ProfileName   string            `json:"profile_name" bson:"profile_name"`
	Text          string            `json:"text" bson:"text"`
	ButtonPayload string            `json:"button_payload" bson:"button_payload"`
	AttachmentRef string            `json:"attachment_ref" bson:"attachment_ref"`
	FormResponse  map[string]string `json:"form_response" bson:"form_response"`
	ReceivedAt    time.Time         `json:"received_at" bson:"received_at"`
}

// Input returns the effective input for the flow engine: the attachment
// reference for media events (the reference, not the caption, is what a
// media step captures), otherwise the message text.
func (m *InboundMessage) Input() string {
	if m.AttachmentRef != "" {
		return m.AttachmentRef
	}
	return m.Text
}
