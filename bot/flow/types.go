package flow

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InputType identifies what a step expects from the user, or marks the
// step as a non-interactive control node.
type InputType string

const (
	InputNone     InputType = "None"
	InputText     InputType = "Text"
	InputSelect   InputType = "Select"
	InputNumber   InputType = "Number"
	InputEmail    InputType = "Email"
	InputPhone    InputType = "Phone"
	InputDate     InputType = "Date"
	InputButton   InputType = "Button"
	InputImage    InputType = "Image"
	InputFile     InputType = "File"
	InputForm     InputType = "WhatsApp Flow"
	StepSend      InputType = "Send Message"
	StepCondition InputType = "Condition"
	StepRouter    InputType = "Router"
	StepJump      InputType = "Jump"
)

// Silent reports whether the step executes without waiting for user input.
func (t InputType) Silent() bool {
	switch t {
	case StepSend, StepCondition, StepRouter, StepJump:
		return true
	}
	return false
}

// MessageType selects how a step's outbound message is built.
type MessageType string

const (
	MessageText     MessageType = "Text"
	MessageTemplate MessageType = "Template"
	MessageScript   MessageType = "Script"
)

// CompletionAction identifies the side effect fired when a flow completes.
type CompletionAction string

const (
	ActionNone           CompletionAction = "None"
	ActionCreateDocument CompletionAction = "Create Document"
	ActionCallAPI        CompletionAction = "Call API"
	ActionRunScript      CompletionAction = "Run Script"
)

// Button is one tappable option attached to an interactive message.
type Button struct {
	ID          string `json:"id" bson:"id"`
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
}

// Step is one node of a flow: an interactive prompt or a control node.
type Step struct {
	Name            string            `json:"name" bson:"name" validate:"required"`
	Position        int               `json:"position" bson:"position"`
	InputType       InputType         `json:"input_type" bson:"input_type"`
	Message         string            `json:"message" bson:"message"`
	MessageType     MessageType       `json:"message_type" bson:"message_type"`
	Template        string            `json:"template" bson:"template"`
	Options         string            `json:"options" bson:"options"` // pipe separated for Select
	Buttons         []Button          `json:"buttons" bson:"buttons"`
	ValidationRegex string            `json:"validation_regex" bson:"validation_regex"`
	ValidationError string            `json:"validation_error" bson:"validation_error"`
	MaxRetries      int               `json:"max_retries" bson:"max_retries"`
	RetryOnInvalid  bool              `json:"retry_on_invalid" bson:"retry_on_invalid"`
	NextStep        string            `json:"next_step" bson:"next_step"`
	ElseNextStep    string            `json:"else_next_step" bson:"else_next_step"`
	ConditionalNext map[string]string `json:"conditional_next" bson:"conditional_next"`
	SkipCondition   string            `json:"skip_condition" bson:"skip_condition"`
	StoreAs         string            `json:"store_as" bson:"store_as"`
	Script          string            `json:"script" bson:"script"`           // Condition/Router/Script body
	TargetFlow      string            `json:"target_flow" bson:"target_flow"` // Jump target
	FormRef         string            `json:"form_ref" bson:"form_ref"`       // WhatsApp Flow form
	FormCTA         string            `json:"form_cta" bson:"form_cta"`
	FormScreen      string            `json:"form_screen" bson:"form_screen"`
	FormMapping     map[string]string `json:"form_mapping" bson:"form_mapping"` // session var -> form field
}

// Definition is an authored conversation flow.
type Definition struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name              string             `json:"name" bson:"name" validate:"required"`
	Enabled           bool               `json:"enabled" bson:"enabled"`
	Account           string             `json:"account" bson:"account"` // empty matches any account
	TriggerKeywords   string             `json:"trigger_keywords" bson:"trigger_keywords"` // comma separated
	TriggerButton     string             `json:"trigger_button" bson:"trigger_button"`
	CancelKeywords    string             `json:"cancel_keywords" bson:"cancel_keywords"`
	InitialMessage    string             `json:"initial_message" bson:"initial_message"`
	CompletionMessage string             `json:"completion_message" bson:"completion_message"`
	TimeoutMessage    string             `json:"timeout_message" bson:"timeout_message"`
	OnComplete        CompletionAction   `json:"on_complete" bson:"on_complete"`
	DocumentType      string             `json:"document_type" bson:"document_type"`
	FieldMapping      map[string]string  `json:"field_mapping" bson:"field_mapping"` // document field -> session var
	APIEndpoint       string             `json:"api_endpoint" bson:"api_endpoint"`
	Script            string             `json:"script" bson:"script"` // Run Script completion body
	Steps             []Step             `json:"steps" bson:"steps" validate:"required,min=1,dive"`
}

// StepByName finds a step in the flow; nil if absent.
func (d *Definition) StepByName(name string) *Step {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// FirstStep returns the step with the lowest position; nil for an empty flow.
func (d *Definition) FirstStep() *Step {
	var first *Step
	for i := range d.Steps {
		if first == nil || d.Steps[i].Position < first.Position {
			first = &d.Steps[i]
		}
	}
	return first
}

// StepAfter returns the step positioned directly after the named one,
// or nil if it is the last.
func (d *Definition) StepAfter(name string) *Step {
	cur := d.StepByName(name)
	if cur == nil {
		return nil
	}
	var next *Step
	for i := range d.Steps {
		s := &d.Steps[i]
		if s.Position <= cur.Position || s.Name == cur.Name {
			continue
		}
		if next == nil || s.Position < next.Position {
			next = s
		}
	}
	return next
}

// Validate performs the authoring-time checks: at least one step, unique
// names and positions, and the structural requirements of control nodes.
func (d *Definition) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("flow %q has no steps", d.Name)
	}
	names := make(map[string]struct{}, len(d.Steps))
	positions := make(map[int]struct{}, len(d.Steps))
	for i := range d.Steps {
		s := &d.Steps[i]
		if s.Name == "" {
			return fmt.Errorf("flow %q: step %d has no name", d.Name, i)
		}
		if _, ok := names[s.Name]; ok {
			return fmt.Errorf("flow %q: duplicate step name %q", d.Name, s.Name)
		}
		names[s.Name] = struct{}{}
		if _, ok := positions[s.Position]; ok {
			return fmt.Errorf("flow %q: duplicate step position %d", d.Name, s.Position)
		}
		positions[s.Position] = struct{}{}

		switch s.InputType {
		case StepCondition:
			if s.Script == "" {
				return fmt.Errorf("condition step %q requires a script", s.Name)
			}
			if s.ElseNextStep == "" {
				return fmt.Errorf("condition step %q requires an else branch", s.Name)
			}
		case StepRouter:
			if s.Script == "" {
				return fmt.Errorf("router step %q requires a script", s.Name)
			}
			if len(s.ConditionalNext) == 0 {
				return fmt.Errorf("router step %q requires a conditional next mapping", s.Name)
			}
		case StepJump:
			if s.TargetFlow == "" {
				return fmt.Errorf("jump step %q requires a target flow", s.Name)
			}
		default:
			if s.Message == "" && s.InputType != InputNone && s.MessageType != MessageScript {
				return fmt.Errorf("step %q requires a message", s.Name)
			}
		}
	}
	return nil
}
