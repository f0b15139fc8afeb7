package flow

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus is the lifecycle state of a conversation session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "Active"
	StatusCompleted SessionStatus = "Completed"
	StatusCancelled SessionStatus = "Cancelled"
	StatusTimeout   SessionStatus = "Timeout"
)

// SessionMessage is one entry of the session's exchanged-message log.
type SessionMessage struct {
	Direction string    `json:"direction" bson:"direction"`
	Text      string    `json:"text" bson:"text"`
	StepName  string    `json:"step_name" bson:"step_name"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Session tracks one contact's progress through a flow. At most one
// session per (phone number, account) pair may be Active.
type Session struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	PhoneNumber string             `json:"phone_number" bson:"phone_number"`
	Account     string             `json:"account" bson:"account"`
	Status      SessionStatus      `json:"status" bson:"status"`
	CurrentFlow string             `json:"current_flow" bson:"current_flow"`
	CurrentStep string             `json:"current_step" bson:"current_step"`
	Variables   map[string]any     `json:"variables" bson:"variables"`
	StepRetries int                `json:"step_retries" bson:"step_retries"`
	StartedAt   time.Time          `json:"started_at" bson:"started_at"`
	LastActive  time.Time          `json:"last_active" bson:"last_active"`
	CompletedAt *time.Time         `json:"completed_at" bson:"completed_at"`
	Messages    []SessionMessage   `json:"messages" bson:"messages"`
}

// NewSession creates an Active session bound to the given flow and step.
func NewSession(phone, account, flowName, stepName string, vars map[string]any) *Session {
	if vars == nil {
		vars = make(map[string]any)
	}
	now := time.Now()
	return &Session{
		PhoneNumber: phone,
		Account:     account,
		Status:      StatusActive,
		CurrentFlow: flowName,
		CurrentStep: stepName,
		Variables:   vars,
		StartedAt:   now,
		LastActive:  now,
	}
}

// Set stores a variable value.
func (s *Session) Set(key string, value any) {
	if s.Variables == nil {
		s.Variables = make(map[string]any)
	}
	s.Variables[key] = value
}

// GetString retrieves a string variable.
func (s *Session) GetString(key string) string {
	if v, ok := s.Variables[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// Snapshot returns a copy of the variables for script evaluation, so
// scripts never mutate session state directly.
func (s *Session) Snapshot() map[string]any {
	snap := make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		snap[k] = v
	}
	return snap
}

// AddMessage appends an entry to the session's message log.
func (s *Session) AddMessage(direction, text, stepName string) {
	s.Messages = append(s.Messages, SessionMessage{
		Direction: direction,
		Text:      text,
		StepName:  stepName,
		Timestamp: time.Now(),
	})
}

// Terminate moves the session to a terminal status and stamps completion.
func (s *Session) Terminate(status SessionStatus) {
	now := time.Now()
	s.Status = status
	s.CompletedAt = &now
}

// Touch stamps the last-activity time.
func (s *Session) Touch() {
	s.LastActive = time.Now()
}
