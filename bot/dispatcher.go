// Package bot routes inbound WhatsApp messages to the flow engine, the
// trigger matcher or the AI responder. One message per contact is
// processed at a time; messages from different contacts run in parallel.
package bot

import (
	"context"
	"log/slog"
	"sync"

	"WhatsFlow/bot/flow"
	"WhatsFlow/bot/trigger"
	"WhatsFlow/entity"
	"WhatsFlow/internal/lib/sl"
)

// LockContacts serializes processing per contact phone number.
type LockContacts struct {
	mutex    sync.Mutex
	contacts map[string]*sync.Mutex
}

func (l *LockContacts) Lock(phone string) {
	l.mutex.Lock()

	mutex, exists := l.contacts[phone]
	if !exists {
		mutex = &sync.Mutex{}
		l.contacts[phone] = mutex
	}

	l.mutex.Unlock()

	mutex.Lock()
}

func (l *LockContacts) Unlock(phone string) {
	l.mutex.Lock()

	mutex, exists := l.contacts[phone]
	if !exists {
		l.mutex.Unlock()
		return
	}
	l.mutex.Unlock()

	mutex.Unlock()
}

// Responder produces a free-form AI reply for messages nothing else
// claims.
type Responder interface {
	Reply(ctx context.Context, phone, text string) (string, error)
}

// Recorder persists the inbound side of the durable message log. The
// outbound side is recorded by the sender.
type Recorder interface {
	Record(ctx context.Context, msg *entity.Message) error
}

// Dispatcher is the inbound message pipeline.
type Dispatcher struct {
	engine       *flow.Engine
	matcher      *trigger.Matcher
	sessions     flow.SessionStore
	flows        flow.Store
	lifecycle    *flow.Lifecycle
	sender       flow.Sender
	ai           Responder
	recorder     Recorder
	defaultReply string
	locker       *LockContacts
	log          *slog.Logger
}

// NewDispatcher creates the inbound pipeline. AI responder and message
// recorder are optional and attached via setters.
func NewDispatcher(engine *flow.Engine, matcher *trigger.Matcher, sessions flow.SessionStore, flows flow.Store, lifecycle *flow.Lifecycle, sender flow.Sender, defaultReply string, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		engine:       engine,
		matcher:      matcher,
		sessions:     sessions,
		flows:        flows,
		lifecycle:    lifecycle,
		sender:       sender,
		defaultReply: defaultReply,
		locker:       &LockContacts{contacts: make(map[string]*sync.Mutex)},
		log:          log.With(sl.Module("dispatcher")),
	}
}

func (d *Dispatcher) SetResponder(ai Responder) {
	d.ai = ai
}

func (d *Dispatcher) SetRecorder(recorder Recorder) {
	d.recorder = recorder
}

// HandleMessage processes one inbound message end to end. It blocks
// while an earlier message from the same contact is still in flight.
func (d *Dispatcher) HandleMessage(ctx context.Context, in *entity.InboundMessage) {
	d.locker.Lock(in.PhoneNumber)
	defer d.locker.Unlock(in.PhoneNumber)

	log := d.log.With(slog.String("phone", in.PhoneNumber))

	d.record(ctx, in)

	// Expire before lookup so a contact returning after the idle window
	// never lands in a stale session.
	d.lifecycle.ExpireStale(ctx)

	session, err := d.sessions.Active(ctx, in.PhoneNumber, in.Account)
	if err != nil {
		log.With(sl.Err(err)).Error("loading session")
		return
	}
	if session != nil {
		d.engine.ProcessInput(ctx, session, in.Input(), in.ButtonPayload, in.FormResponse)
		return
	}

	def, err := d.matcher.ResolveFlow(ctx, in.Text, in.ButtonPayload, in.Account)
	if err != nil {
		log.With(sl.Err(err)).Error("resolving flow trigger")
		return
	}
	if def != nil {
		d.startFlow(ctx, def, in)
		return
	}

	rule, err := d.matcher.MatchRule(ctx, in.Text, in.Account)
	if err != nil {
		log.With(sl.Err(err)).Error("matching keyword rules")
		return
	}
	if rule != nil {
		d.applyRule(ctx, rule, in)
		return
	}

	if d.ai != nil && in.Text != "" {
		reply, err := d.ai.Reply(ctx, in.PhoneNumber, in.Text)
		if err != nil {
			log.With(sl.Err(err)).Error("ai responder")
		} else if reply != "" {
			d.reply(ctx, in, flow.TextMessage(reply, ""))
			return
		}
	}

	if d.defaultReply != "" {
		d.reply(ctx, in, flow.TextMessage(d.defaultReply, ""))
	}
}

func (d *Dispatcher) startFlow(ctx context.Context, def *flow.Definition, in *entity.InboundMessage) {
	initial := map[string]any{
		"phone_number": in.PhoneNumber,
		"profile_name": in.ProfileName,
	}
	d.engine.StartFlow(ctx, def, in.PhoneNumber, in.Account, initial)
}

func (d *Dispatcher) applyRule(ctx context.Context, rule *entity.KeywordRule, in *entity.InboundMessage) {
	log := d.log.With(
		slog.String("phone", in.PhoneNumber),
		slog.String("rule", rule.Name),
	)
	log.Info("keyword rule matched")

	switch rule.ResponseType {
	case entity.ReplyText:
		if rule.ResponseText != "" {
			d.reply(ctx, in, flow.TextMessage(rule.ResponseText, ""))
		}
	case entity.ReplyTemplate:
		if rule.Template != "" {
			d.reply(ctx, in, &flow.PendingMessage{Kind: flow.ContentTemplate, Template: rule.Template})
		}
	case entity.ReplyFlow:
		def, err := d.flows.Get(ctx, rule.TriggerFlow)
		if err != nil || def == nil {
			log.With(sl.Err(err)).Error("rule flow not found")
			return
		}
		if !def.Enabled {
			log.Warn("rule flow disabled")
			return
		}
		d.startFlow(ctx, def, in)
	}
}

func (d *Dispatcher) reply(ctx context.Context, in *entity.InboundMessage, msg *flow.PendingMessage) {
	if err := d.sender.Send(ctx, in.Account, in.PhoneNumber, msg); err != nil {
		d.log.With(
			slog.String("phone", in.PhoneNumber),
			sl.Err(err),
		).Error("sending reply")
	}
}

func (d *Dispatcher) record(ctx context.Context, in *entity.InboundMessage) {
	if d.recorder == nil {
		return
	}
	msg := &entity.Message{
		Account:     in.Account,
		PhoneNumber: in.PhoneNumber,
		Direction:   entity.DirectionIncoming,
		Text:        in.Input(),
		ContentType: "text",
		CreatedAt:   in.ReceivedAt,
	}
	if err := d.recorder.Record(ctx, msg); err != nil {
		d.log.With(
			slog.String("phone", in.PhoneNumber),
			sl.Err(err),
		).Error("recording inbound message")
	}
}
