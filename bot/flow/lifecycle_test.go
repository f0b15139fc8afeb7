package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpireStaleTimesOutIdleSessions(t *testing.T) {
	d := &Definition{
		Name:           "Support",
		Enabled:        true,
		TimeoutMessage: "Your session expired, {name}. Send hi to start over.",
		Steps: []Step{
			{Name: "Ask", Position: 1, InputType: InputText, Message: "?"},
		},
	}
	flows := &memFlows{flows: map[string]*Definition{d.Name: d}}
	sessions := &memSessions{}
	sender := &memSender{}

	stale := NewSession("1555", "acc", "Support", "Ask", map[string]any{"name": "Sam"})
	stale.LastActive = time.Now().Add(-2 * time.Hour)
	require.NoError(t, sessions.Create(context.Background(), stale))

	fresh := NewSession("1556", "acc", "Support", "Ask", nil)
	require.NoError(t, sessions.Create(context.Background(), fresh))

	l := NewLifecycle(sessions, flows, sender, time.Hour, true, testLogger())
	notify := &memNotifier{}
	l.SetNotifier(notify)
	l.ExpireStale(context.Background())

	require.Equal(t, StatusTimeout, stale.Status)
	require.NotNil(t, stale.CompletedAt)
	require.Equal(t, StatusActive, fresh.Status)

	require.Len(t, sender.sent, 1)
	require.Equal(t, "Your session expired, Sam. Send hi to start over.", sender.sent[0].Text)
	require.Equal(t, []string{"1555 Support Timeout"}, notify.events)

	// a second sweep must not notify again
	l.ExpireStale(context.Background())
	require.Len(t, sender.sent, 1)
	require.Len(t, notify.events, 1)
}

func TestExpireStaleSkipsNoticeWhenSessionAlreadyFinished(t *testing.T) {
	d := &Definition{
		Name:           "Support",
		Enabled:        true,
		TimeoutMessage: "expired",
		Steps:          []Step{{Name: "Ask", Position: 1, InputType: InputText, Message: "?"}},
	}
	flows := &memFlows{flows: map[string]*Definition{d.Name: d}}
	sessions := &memSessions{}
	sender := &memSender{}

	done := NewSession("1555", "acc", "Support", "Ask", nil)
	done.LastActive = time.Now().Add(-2 * time.Hour)
	require.NoError(t, sessions.Create(context.Background(), done))

	l := NewLifecycle(&racingSessions{sessions}, flows, sender, time.Hour, true, testLogger())
	l.ExpireStale(context.Background())

	require.Empty(t, sender.sent)
}

func TestExpireStaleDisabled(t *testing.T) {
	sessions := &memSessions{}
	stale := NewSession("1555", "acc", "Support", "Ask", nil)
	stale.LastActive = time.Now().Add(-2 * time.Hour)
	require.NoError(t, sessions.Create(context.Background(), stale))

	l := NewLifecycle(sessions, &memFlows{}, &memSender{}, time.Hour, false, testLogger())
	l.ExpireStale(context.Background())

	require.Equal(t, StatusActive, stale.Status)
}

// racingSessions simulates a contact finishing the flow between the
// stale listing and the terminal transition.
type racingSessions struct {
	*memSessions
}

func (r *racingSessions) Terminate(_ context.Context, _ *Session, _ SessionStatus) (bool, error) {
	return false, nil
}
