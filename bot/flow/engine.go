package flow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"WhatsFlow/internal/lib/sl"
)

// maxSilentHops bounds recursive silent routing so a miswired flow
// (router pointing at another router in a loop) completes safely
// instead of spinning.
const maxSilentHops = 20

// Synthetic step names used in message logs.
const (
	stepFlowWelcome  = "Flow Welcome"
	stepFlowComplete = "Flow Complete"
)

// Fixed user-facing fallbacks.
const (
	msgCancelled         = "Your request has been cancelled."
	msgTooManyAttempts   = "Too many invalid attempts. Please start again."
	msgProcessingError   = "An error occurred. Please try again later."
	msgDefaultCompletion = "Thank you! Your request has been submitted."
)

// Engine interprets flow definitions against per-contact sessions.
// It holds no cross-call state; all durable state lives in the stores.
type Engine struct {
	flows    Store
	sessions SessionStore
	sender   Sender
	scripts  ScriptRunner
	docs     DocumentCreator
	notify   SessionNotifier
	http     *http.Client
	log      *slog.Logger
}

// NewEngine creates a flow engine.
func NewEngine(flows Store, sessions SessionStore, sender Sender, scripts ScriptRunner, log *slog.Logger) *Engine {
	return &Engine{
		flows:    flows,
		sessions: sessions,
		sender:   sender,
		scripts:  scripts,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log.With(sl.Module("flow.engine")),
	}
}

// SetDocumentCreator wires the sink for the Create Document action.
func (e *Engine) SetDocumentCreator(docs DocumentCreator) {
	e.docs = docs
}

// SetHTTPClient overrides the client used by the Call API action.
func (e *Engine) SetHTTPClient(client *http.Client) {
	e.http = client
}

// SetNotifier wires the live-monitor feed for session status changes.
func (e *Engine) SetNotifier(notify SessionNotifier) {
	e.notify = notify
}

func (e *Engine) broadcast(session *Session) {
	if e.notify != nil {
		e.notify.BroadcastSession(session.PhoneNumber, session.CurrentFlow, string(session.Status))
	}
}

// StartFlow creates an Active session on the flow's first step, sends
// the initial message if any, and executes the first step. Returns the
// last rendered message, or nil on failure (logged, not surfaced).
func (e *Engine) StartFlow(ctx context.Context, d *Definition, phone, account string, initial map[string]any) *PendingMessage {
	first := d.FirstStep()
	if first == nil {
		e.log.With(slog.String("flow", d.Name)).Error("flow has no steps")
		return nil
	}

	session := NewSession(phone, account, d.Name, first.Name, initial)
	if err := e.sessions.Create(ctx, session); err != nil {
		e.log.With(slog.String("flow", d.Name), sl.Err(err)).Error("creating session")
		return nil
	}
	e.broadcast(session)

	if d.InitialMessage != "" {
		welcome := TextMessage(Substitute(d.InitialMessage, session.Variables), stepFlowWelcome)
		e.sendAndLog(ctx, session, welcome)
	}

	if first.InputType.Silent() {
		outcome := e.silentRoute(ctx, d, first, session, 0)
		msg, err := e.resolveOutcome(ctx, session, outcome)
		if err != nil {
			e.log.With(slog.String("flow", d.Name), sl.Err(err)).Error("starting flow")
			return nil
		}
		return msg
	}

	msg := e.buildStepMessage(first, session)
	e.sendAndLog(ctx, session, msg)
	if err := e.sessions.Save(ctx, session); err != nil {
		e.log.With(slog.String("flow", d.Name), sl.Err(err)).Error("saving session")
	}
	return msg
}

// ProcessInput advances an Active session on an inbound event. It always
// produces a message: the next prompt, a validation error, a terminal
// acknowledgment, or a generic retry-later fallback. Every message it
// produces is sent through the Sender before it returns.
func (e *Engine) ProcessInput(ctx context.Context, session *Session, text, buttonPayload string, formResponse map[string]string) *PendingMessage {
	msg, err := e.processInput(ctx, session, text, buttonPayload, formResponse)
	if err != nil {
		e.log.With(
			slog.String("phone", session.PhoneNumber),
			slog.String("flow", session.CurrentFlow),
			slog.String("step", session.CurrentStep),
			sl.Err(err),
		).Error("processing input")
		fallback := TextMessage(msgProcessingError, session.CurrentStep)
		e.sendAndLog(ctx, session, fallback)
		return fallback
	}
	return msg
}

func (e *Engine) processInput(ctx context.Context, session *Session, text, buttonPayload string, formResponse map[string]string) (*PendingMessage, error) {
	d, err := e.flows.Get(ctx, session.CurrentFlow)
	if err != nil {
		return nil, fmt.Errorf("loading flow %q: %w", session.CurrentFlow, err)
	}
	if d == nil {
		return nil, fmt.Errorf("flow %q not found", session.CurrentFlow)
	}

	if matchesKeyword(d.CancelKeywords, text) {
		won, err := e.sessions.Terminate(ctx, session, StatusCancelled)
		if err != nil {
			return nil, fmt.Errorf("cancelling session: %w", err)
		}
		ack := TextMessage(msgCancelled, session.CurrentStep)
		e.sendAndLog(ctx, session, ack)
		if won {
			e.broadcast(session)
			if err := e.sessions.Save(ctx, session); err != nil {
				e.log.With(sl.Err(err)).Error("saving cancelled session")
			}
		}
		return ack, nil
	}

	cur := d.StepByName(session.CurrentStep)
	if cur == nil {
		return e.completeFlow(ctx, session, d)
	}

	input := text
	if buttonPayload != "" {
		input = buttonPayload
	}

	if cur.InputType == InputForm && len(formResponse) > 0 {
		applyFormResponse(cur, session, formResponse)
	}

	if cur.InputType != InputNone {
		ok, errText := ValidateInput(cur, text, buttonPayload)
		if !ok {
			return e.handleInvalidInput(ctx, session, cur, errText)
		}

		if cur.StoreAs != "" && cur.InputType != InputForm {
			session.Set(cur.StoreAs, input)
			// Durability point: the captured variable is persisted
			// before any further routing.
			if err := e.sessions.Save(ctx, session); err != nil {
				return nil, fmt.Errorf("saving captured variable: %w", err)
			}
		}
	}

	session.AddMessage(directionIncoming, text, cur.Name)

	next := NextStep(d, cur, text, buttonPayload)

	// Media capture always advances: fall back to positional order when
	// no route matched an Image/File step.
	if next == nil && (cur.InputType == InputImage || cur.InputType == InputFile) {
		next = d.StepAfter(cur.Name)
	}

	if next == nil {
		return e.completeFlow(ctx, session, d)
	}

	// Declarative optional steps: a satisfied skip condition re-routes
	// from the skipped step before the session moves.
	for hops := 0; next != nil && next.SkipCondition != "" && hops < maxSilentHops; hops++ {
		skip, err := e.scripts.EvalCondition(next.SkipCondition, session.Snapshot())
		if err != nil {
			e.log.With(slog.String("step", next.Name), sl.Err(err)).Warn("skip condition failed")
			break
		}
		if !skip {
			break
		}
		next = NextStep(d, next, "", "")
	}

	if next == nil {
		return e.completeFlow(ctx, session, d)
	}

	session.CurrentStep = next.Name
	session.StepRetries = 0
	session.Touch()
	if err := e.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("saving step transition: %w", err)
	}

	if next.InputType.Silent() {
		outcome := e.silentRoute(ctx, d, next, session, 0)
		return e.resolveOutcome(ctx, session, outcome)
	}

	msg := e.buildStepMessage(next, session)
	e.sendAndLog(ctx, session, msg)
	if err := e.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return msg, nil
}

func (e *Engine) handleInvalidInput(ctx context.Context, session *Session, step *Step, errText string) (*PendingMessage, error) {
	session.StepRetries++
	maxRetries := step.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	if step.RetryOnInvalid && session.StepRetries < maxRetries {
		if err := e.sessions.Save(ctx, session); err != nil {
			return nil, fmt.Errorf("saving retry counter: %w", err)
		}
		if errText == "" {
			errText = step.ValidationError
		}
		if errText == "" {
			errText = "Invalid input. Please try again."
		}
		msg := TextMessage(errText, step.Name)
		e.sendAndLog(ctx, session, msg)
		return msg, nil
	}

	won, err := e.sessions.Terminate(ctx, session, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancelling session: %w", err)
	}
	msg := TextMessage(msgTooManyAttempts, step.Name)
	e.sendAndLog(ctx, session, msg)
	if won {
		e.broadcast(session)
		if err := e.sessions.Save(ctx, session); err != nil {
			e.log.With(sl.Err(err)).Error("saving cancelled session")
		}
	}
	return msg, nil
}

// silentRoute executes non-interactive steps recursively until it lands
// on an interactive step, completes the flow, or exhausts the hop bound.
func (e *Engine) silentRoute(ctx context.Context, d *Definition, step *Step, session *Session, depth int) RouteOutcome {
	if depth >= maxSilentHops {
		e.log.With(
			slog.String("flow", d.Name),
			slog.String("step", step.Name),
		).Error("silent routing exceeded hop bound, completing flow")
		return e.completeOutcome(ctx, session, d)
	}

	switch step.InputType {
	case StepSend:
		msg := e.buildStepMessage(step, session)
		e.sendAndLog(ctx, session, msg)

		next := NextStep(d, step, "", "")
		if next == nil {
			return e.completeOutcome(ctx, session, d)
		}
		if err := e.moveTo(ctx, session, next.Name); err != nil {
			return failedOutcome(err.Error())
		}
		return e.silentRoute(ctx, d, next, session, depth+1)

	case StepJump:
		target, err := e.flows.Get(ctx, step.TargetFlow)
		if err != nil || target == nil {
			e.log.With(slog.String("target", step.TargetFlow)).Error("jump target flow not found")
			return failedOutcome("jump target flow not found: " + step.TargetFlow)
		}
		first := target.FirstStep()
		if first == nil {
			return failedOutcome("jump target flow has no steps: " + target.Name)
		}
		session.CurrentFlow = target.Name
		if err := e.moveTo(ctx, session, first.Name); err != nil {
			return failedOutcome(err.Error())
		}
		return e.silentRoute(ctx, target, first, session, depth+1)

	case StepCondition:
		result, err := e.scripts.EvalCondition(step.Script, session.Snapshot())
		if err != nil {
			e.log.With(slog.String("step", step.Name), sl.Err(err)).Warn("condition script failed")
		}
		nextName := step.ElseNextStep
		if result {
			nextName = step.NextStep
		}
		return e.routeToName(ctx, d, session, nextName, depth)

	case StepRouter:
		value, err := e.scripts.EvalRoute(step.Script, session.Snapshot())
		if err != nil {
			e.log.With(slog.String("step", step.Name), sl.Err(err)).Warn("router script failed")
		}
		return e.routeToName(ctx, d, session, RouteByValue(step, value), depth)
	}

	// Interactive step: hand it back for rendering.
	return interactiveOutcome(d, step)
}

func (e *Engine) routeToName(ctx context.Context, d *Definition, session *Session, nextName string, depth int) RouteOutcome {
	if nextName == "" {
		return e.completeOutcome(ctx, session, d)
	}
	next := d.StepByName(nextName)
	if next == nil {
		e.log.With(slog.String("flow", d.Name), slog.String("step", nextName)).Warn("routed step not found, completing flow")
		return e.completeOutcome(ctx, session, d)
	}
	if err := e.moveTo(ctx, session, next.Name); err != nil {
		return failedOutcome(err.Error())
	}
	return e.silentRoute(ctx, d, next, session, depth+1)
}

func (e *Engine) moveTo(ctx context.Context, session *Session, stepName string) error {
	session.CurrentStep = stepName
	session.Touch()
	if err := e.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("saving step transition: %w", err)
	}
	return nil
}

// resolveOutcome turns a silent-routing outcome into the message sent to
// the contact. A failed outcome degrades to graceful completion.
func (e *Engine) resolveOutcome(ctx context.Context, session *Session, outcome RouteOutcome) (*PendingMessage, error) {
	switch outcome.Kind {
	case OutcomeInteractive:
		msg := e.buildStepMessage(outcome.Step, session)
		e.sendAndLog(ctx, session, msg)
		if err := e.sessions.Save(ctx, session); err != nil {
			return nil, fmt.Errorf("saving session: %w", err)
		}
		return msg, nil

	case OutcomeCompleted:
		return outcome.Message, nil

	default:
		e.log.With(slog.String("reason", outcome.Reason)).Error("silent routing failed, completing flow")
		d, err := e.flows.Get(ctx, session.CurrentFlow)
		if err != nil || d == nil {
			d = &Definition{Name: session.CurrentFlow}
		}
		return e.completeFlow(ctx, session, d)
	}
}

func (e *Engine) completeOutcome(ctx context.Context, session *Session, d *Definition) RouteOutcome {
	msg, err := e.completeFlow(ctx, session, d)
	if err != nil {
		return failedOutcome(err.Error())
	}
	return completedOutcome(msg)
}

// completeFlow terminates the session, fires the completion action and
// sends the completion message. Action failures are logged, never
// propagated; the contact always gets a completion message.
func (e *Engine) completeFlow(ctx context.Context, session *Session, d *Definition) (*PendingMessage, error) {
	won, err := e.sessions.Terminate(ctx, session, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("completing session: %w", err)
	}
	if won {
		e.broadcast(session)
		e.runCompletionAction(ctx, d, session)
	} else {
		e.log.With(
			slog.String("phone", session.PhoneNumber),
			slog.String("flow", d.Name),
		).Warn("session already terminated by a concurrent writer, skipping completion action")
	}

	text := d.CompletionMessage
	if text == "" {
		text = msgDefaultCompletion
	}
	msg := TextMessage(Substitute(text, session.Variables), stepFlowComplete)
	e.sendAndLog(ctx, session, msg)
	// Persist only when this writer owns the terminal transition: saving
	// the losing in-memory snapshot would overwrite the status the
	// concurrent writer just stored.
	if won {
		if err := e.sessions.Save(ctx, session); err != nil {
			e.log.With(sl.Err(err)).Error("saving completed session")
		}
	}
	return msg, nil
}

// sendAndLog records the outbound message in the session log and hands
// it to the transport. Delivery failures are logged, not propagated.
func (e *Engine) sendAndLog(ctx context.Context, session *Session, msg *PendingMessage) {
	if msg == nil {
		return
	}
	session.AddMessage(directionOutgoing, msg.Text, msg.StepName)
	if e.sender == nil {
		return
	}
	if err := e.sender.Send(ctx, session.Account, session.PhoneNumber, msg); err != nil {
		e.log.With(
			slog.String("phone", session.PhoneNumber),
			slog.String("step", msg.StepName),
			sl.Err(err),
		).Error("sending message")
	}
}

// applyFormResponse maps a completed form's fields into session
// variables. Without a mapping all fields are stored directly.
func applyFormResponse(step *Step, session *Session, formResponse map[string]string) {
	if len(step.FormMapping) > 0 {
		for sessionVar, formField := range step.FormMapping {
			if value, ok := formResponse[formField]; ok {
				session.Set(sessionVar, value)
			}
		}
	} else {
		for key, value := range formResponse {
			session.Set(key, value)
		}
	}
	if step.StoreAs != "" {
		session.Set(step.StoreAs, formResponse)
	}
}

func matchesKeyword(keywords, text string) bool {
	if keywords == "" || text == "" {
		return false
	}
	needle := strings.ToLower(strings.TrimSpace(text))
	for _, keyword := range strings.Split(keywords, ",") {
		if k := strings.ToLower(strings.TrimSpace(keyword)); k != "" && k == needle {
			return true
		}
	}
	return false
}

// Direction labels for the session message log.
const (
	directionIncoming = "Incoming"
	directionOutgoing = "Outgoing"
)
