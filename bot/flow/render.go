package flow

import (
	"fmt"
	"log/slog"
	"strings"

	"WhatsFlow/internal/lib/sl"
)

// Substitute replaces every {name} token with the stringified variable
// value. Tokens without a matching variable are left literal.
func Substitute(template string, vars map[string]any) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", fmt.Sprint(value))
	}
	return out
}

// buildStepMessage renders a step's outbound message against the session:
// variable substitution first, then shaping by message and input type.
func (e *Engine) buildStepMessage(step *Step, session *Session) *PendingMessage {
	text := Substitute(step.Message, session.Variables)

	if step.MessageType == MessageTemplate && step.Template != "" {
		return &PendingMessage{
			Kind:     ContentTemplate,
			Text:     text,
			Template: step.Template,
			StepName: step.Name,
		}
	}

	if step.MessageType == MessageScript && step.Script != "" {
		result, err := e.scripts.EvalResponse(step.Script, session.Snapshot(), session.PhoneNumber)
		if err != nil {
			e.log.With(
				slog.String("flow", session.CurrentFlow),
				slog.String("step", step.Name),
				sl.Err(err),
			).Warn("response script failed")
		}
		if msg := coerceScriptResponse(result, step.Name); msg != nil {
			return msg
		}
		// Script yielded nothing usable; fall back to the rendered template.
		return TextMessage(text, step.Name)
	}

	if step.InputType == InputButton && len(step.Buttons) > 0 {
		return &PendingMessage{
			Kind:     ContentInteractive,
			Text:     text,
			Buttons:  step.Buttons,
			StepName: step.Name,
		}
	}

	if step.InputType == InputForm && step.FormRef != "" {
		cta := step.FormCTA
		if cta == "" {
			cta = "Open Form"
		}
		return &PendingMessage{
			Kind:       ContentFlow,
			Text:       text,
			FormRef:    step.FormRef,
			FormCTA:    cta,
			FormScreen: step.FormScreen,
			StepName:   step.Name,
		}
	}

	if step.InputType == InputSelect && step.Options != "" {
		text += "\n\nOptions: " + strings.ReplaceAll(step.Options, "|", ", ")
	}

	return TextMessage(text, step.Name)
}

// coerceScriptResponse shapes a response-script result into a pending
// message. Strings become plain text; maps may carry message, buttons
// and template fields. Anything else yields nil.
func coerceScriptResponse(result any, stepName string) *PendingMessage {
	switch v := result.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return TextMessage(v, stepName)
	case map[string]any:
		msg := &PendingMessage{Kind: ContentText, StepName: stepName}
		if text, ok := v["message"].(string); ok {
			msg.Text = text
		}
		if template, ok := v["template"].(string); ok && template != "" {
			msg.Kind = ContentTemplate
			msg.Template = template
		}
		if buttons, ok := v["buttons"].([]any); ok && len(buttons) > 0 {
			msg.Kind = ContentInteractive
			for _, raw := range buttons {
				b, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				button := Button{}
				if id, ok := b["id"].(string); ok {
					button.ID = id
				}
				if title, ok := b["title"].(string); ok {
					button.Title = title
				}
				if desc, ok := b["description"].(string); ok {
					button.Description = desc
				}
				msg.Buttons = append(msg.Buttons, button)
			}
		}
		if msg.Text == "" && msg.Template == "" && len(msg.Buttons) == 0 {
			return nil
		}
		return msg
	}
	return nil
}
