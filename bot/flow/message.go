package flow

// ContentKind selects how the transport renders a pending message.
type ContentKind string

const (
	ContentText        ContentKind = "text"
	ContentInteractive ContentKind = "interactive"
	ContentTemplate    ContentKind = "template"
	ContentFlow        ContentKind = "flow"
)

// PendingMessage is the engine's outbound payload: enough for the
// transport to render and send, plus the originating step for logging.
type PendingMessage struct {
	Kind       ContentKind `json:"kind"`
	Text       string      `json:"text"`
	Buttons    []Button    `json:"buttons,omitempty"`
	Template   string      `json:"template,omitempty"`
	FormRef    string      `json:"form_ref,omitempty"`
	FormCTA    string      `json:"form_cta,omitempty"`
	FormScreen string      `json:"form_screen,omitempty"`
	StepName   string      `json:"step_name,omitempty"`
}

// TextMessage builds a plain text pending message.
func TextMessage(text, stepName string) *PendingMessage {
	return &PendingMessage{Kind: ContentText, Text: text, StepName: stepName}
}

// OutcomeKind tags a RouteOutcome variant.
type OutcomeKind int

const (
	// OutcomeInteractive means routing stopped at a step awaiting input.
	OutcomeInteractive OutcomeKind = iota
	// OutcomeCompleted means the flow ended and produced a final message.
	OutcomeCompleted
	// OutcomeFailed means routing could not proceed.
	OutcomeFailed
)

// RouteOutcome is the result of silent routing: either the interactive
// step to prompt next, the flow's final message, or a failure reason.
type RouteOutcome struct {
	Kind    OutcomeKind
	Step    *Step           // set for OutcomeInteractive
	Flow    *Definition     // flow owning Step (may differ after a Jump)
	Message *PendingMessage // set for OutcomeCompleted
	Reason  string          // set for OutcomeFailed
}

func interactiveOutcome(f *Definition, s *Step) RouteOutcome {
	return RouteOutcome{Kind: OutcomeInteractive, Step: s, Flow: f}
}

func completedOutcome(msg *PendingMessage) RouteOutcome {
	return RouteOutcome{Kind: OutcomeCompleted, Message: msg}
}

func failedOutcome(reason string) RouteOutcome {
	return RouteOutcome{Kind: OutcomeFailed, Reason: reason}
}
