package flow

import (
	"context"
	"time"
)

// SessionStore handles persistence of conversation sessions.
type SessionStore interface {
	// Create inserts a new Active session, superseding (cancelling) any
	// session currently Active for the same (phone, account) pair.
	Create(ctx context.Context, s *Session) error

	// Save persists the session's current state.
	Save(ctx context.Context, s *Session) error

	// Active returns the Active session for the pair, or nil.
	Active(ctx context.Context, phone, account string) (*Session, error)

	// Terminate conditionally moves an Active session to a terminal
	// status. Returns false without error when the session was no longer
	// Active (a concurrent writer won).
	Terminate(ctx context.Context, s *Session, status SessionStatus) (bool, error)

	// Stale returns Active sessions whose last activity predates cutoff.
	Stale(ctx context.Context, cutoff time.Time) ([]Session, error)
}

// Store provides access to authored flow definitions.
type Store interface {
	// Get returns the named flow definition.
	Get(ctx context.Context, name string) (*Definition, error)

	// ListEnabled returns enabled flows visible to the account.
	ListEnabled(ctx context.Context, account string) ([]Definition, error)
}

// Sender delivers a pending message to a contact and records it.
type Sender interface {
	Send(ctx context.Context, account, phone string, msg *PendingMessage) error
}

// ScriptRunner is the sandboxed evaluator for authored step scripts.
// Implementations receive an immutable variable snapshot and must not
// expose any further capability to the script.
type ScriptRunner interface {
	EvalCondition(script string, vars map[string]any) (bool, error)
	EvalRoute(script string, vars map[string]any) (string, error)
	EvalResponse(script string, vars map[string]any, phone string) (any, error)
	Run(script string, vars map[string]any) error
}

// DocumentCreator persists a record produced by the Create Document
// completion action.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, docType string, fields map[string]any) (string, error)
}

// SessionNotifier receives session status transitions for live
// monitoring. Notifications are emitted only by the writer that owns the
// transition, so each change is broadcast once.
type SessionNotifier interface {
	BroadcastSession(phone, flowName, status string)
}
