package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"WhatsFlow/internal/lib/sl"
)

// Lifecycle expires idle sessions. ExpireStale runs on a timer and is
// also called inline before session lookups so a contact's next message
// never observes a stale Active session.
type Lifecycle struct {
	sessions SessionStore
	flows    Store
	sender   Sender
	notify   SessionNotifier
	timeout  time.Duration
	enabled  bool
	log      *slog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewLifecycle creates a session lifecycle manager.
func NewLifecycle(sessions SessionStore, flows Store, sender Sender, timeout time.Duration, enabled bool, log *slog.Logger) *Lifecycle {
	return &Lifecycle{
		sessions: sessions,
		flows:    flows,
		sender:   sender,
		timeout:  timeout,
		enabled:  enabled,
		log:      log.With(sl.Module("flow.lifecycle")),
		stop:     make(chan struct{}),
	}
}

// SetNotifier wires the live-monitor feed for timeout transitions.
func (l *Lifecycle) SetNotifier(notify SessionNotifier) {
	l.notify = notify
}

// Start launches the periodic sweep. No-op when the sweep is disabled.
func (l *Lifecycle) Start(interval time.Duration) {
	if !l.enabled {
		return
	}
	ticker := time.NewTicker(interval)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ticker.C:
				l.ExpireStale(context.Background())
			case <-l.stop:
				ticker.Stop()
				l.log.Info("lifecycle sweep stopped")
				return
			}
		}
	}()
	l.log.With(slog.Duration("interval", interval)).Info("lifecycle sweep started")
}

// Stop terminates the periodic sweep.
func (l *Lifecycle) Stop() {
	if !l.enabled {
		return
	}
	close(l.stop)
	l.wg.Wait()
}

// ExpireStale marks idle Active sessions as Timeout and emits each
// flow's timeout message. The terminal transition is conditional, so a
// racing completion simply wins and the notification is skipped.
func (l *Lifecycle) ExpireStale(ctx context.Context) {
	if !l.enabled {
		return
	}

	cutoff := time.Now().Add(-l.timeout)
	stale, err := l.sessions.Stale(ctx, cutoff)
	if err != nil {
		l.log.With(sl.Err(err)).Error("listing stale sessions")
		return
	}

	for i := range stale {
		session := &stale[i]
		won, err := l.sessions.Terminate(ctx, session, StatusTimeout)
		if err != nil {
			l.log.With(
				slog.String("phone", session.PhoneNumber),
				sl.Err(err),
			).Error("expiring session")
			continue
		}
		if !won {
			l.log.With(
				slog.String("phone", session.PhoneNumber),
				slog.String("flow", session.CurrentFlow),
			).Debug("session terminated concurrently, skipping timeout notice")
			continue
		}

		l.log.With(
			slog.String("phone", session.PhoneNumber),
			slog.String("flow", session.CurrentFlow),
		).Info("session timed out")

		if l.notify != nil {
			l.notify.BroadcastSession(session.PhoneNumber, session.CurrentFlow, string(StatusTimeout))
		}
		l.notifyTimeout(ctx, session)
	}
}

func (l *Lifecycle) notifyTimeout(ctx context.Context, session *Session) {
	if session.CurrentFlow == "" || l.sender == nil {
		return
	}
	d, err := l.flows.Get(ctx, session.CurrentFlow)
	if err != nil || d == nil || d.TimeoutMessage == "" {
		return
	}
	msg := TextMessage(Substitute(d.TimeoutMessage, session.Variables), session.CurrentStep)
	if err := l.sender.Send(ctx, session.Account, session.PhoneNumber, msg); err != nil {
		l.log.With(
			slog.String("phone", session.PhoneNumber),
			sl.Err(err),
		).Error("sending timeout message")
	}
}
