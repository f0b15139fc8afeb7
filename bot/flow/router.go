package flow

import "strings"

// NormalizeResponse picks the routing key for an input: a button payload
// wins verbatim, otherwise the text is trimmed and lower-cased.
func NormalizeResponse(text, buttonPayload string) string {
	if buttonPayload != "" {
		return buttonPayload
	}
	return strings.ToLower(strings.TrimSpace(text))
}

// NextStep resolves the step following cur for the given input.
// Resolution order: conditional mapping (with "default" fallback),
// explicit next pointer, positional order. Nil signals flow completion.
func NextStep(d *Definition, cur *Step, text, buttonPayload string) *Step {
	name := nextStepName(d, cur, text, buttonPayload)
	if name == "" {
		return nil
	}
	return d.StepByName(name)
}

func nextStepName(d *Definition, cur *Step, text, buttonPayload string) string {
	if len(cur.ConditionalNext) > 0 {
		key := NormalizeResponse(text, buttonPayload)
		if next, ok := cur.ConditionalNext[key]; ok {
			return next
		}
		if next, ok := cur.ConditionalNext["default"]; ok {
			return next
		}
	}

	if cur.NextStep != "" {
		return cur.NextStep
	}

	if next := d.StepAfter(cur.Name); next != nil {
		return next.Name
	}
	return ""
}

// RouteByValue resolves a Router step's conditional mapping for a script
// result: case-insensitive lookup, then "default", then the else branch.
func RouteByValue(step *Step, value string) string {
	key := strings.ToLower(strings.TrimSpace(value))
	if next, ok := step.ConditionalNext[key]; ok {
		return next
	}
	if next, ok := step.ConditionalNext["default"]; ok {
		return next
	}
	return step.ElseNextStep
}
