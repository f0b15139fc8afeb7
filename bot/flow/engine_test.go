package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"WhatsFlow/bot/script"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memFlows struct {
	flows map[string]*Definition
}

func (s *memFlows) Get(_ context.Context, name string) (*Definition, error) {
	d, ok := s.flows[name]
	if !ok {
		return nil, fmt.Errorf("flow not found: %s", name)
	}
	return d, nil
}

func (s *memFlows) ListEnabled(_ context.Context, account string) ([]Definition, error) {
	var out []Definition
	for _, d := range s.flows {
		if d.Enabled && (d.Account == "" || d.Account == account) {
			out = append(out, *d)
		}
	}
	return out, nil
}

type memSessions struct {
	items []*Session
	saves int
}

func (s *memSessions) Create(_ context.Context, session *Session) error {
	for _, existing := range s.items {
		if existing.Status == StatusActive &&
			existing.PhoneNumber == session.PhoneNumber &&
			existing.Account == session.Account {
			existing.Terminate(StatusCancelled)
		}
	}
	session.ID = primitive.NewObjectID()
	s.items = append(s.items, session)
	return nil
}

func (s *memSessions) Save(_ context.Context, session *Session) error {
	s.saves++
	// Replace semantics: the stored document becomes the snapshot, like
	// an upsert by id would do.
	for i, stored := range s.items {
		if stored.ID == session.ID && stored != session {
			snapshot := *session
			s.items[i] = &snapshot
		}
	}
	return nil
}

func (s *memSessions) Active(_ context.Context, phone, account string) (*Session, error) {
	for _, session := range s.items {
		if session.Status == StatusActive && session.PhoneNumber == phone && session.Account == account {
			return session, nil
		}
	}
	return nil, nil
}

func (s *memSessions) Terminate(_ context.Context, session *Session, status SessionStatus) (bool, error) {
	for _, stored := range s.items {
		if stored.ID != session.ID {
			continue
		}
		if stored.Status != StatusActive {
			return false, nil
		}
		stored.Terminate(status)
		session.Status = stored.Status
		session.CompletedAt = stored.CompletedAt
		return true, nil
	}
	if session.Status != StatusActive {
		return false, nil
	}
	session.Terminate(status)
	return true, nil
}

func (s *memSessions) Stale(_ context.Context, cutoff time.Time) ([]Session, error) {
	var out []Session
	for _, session := range s.items {
		if session.Status == StatusActive && session.LastActive.Before(cutoff) {
			out = append(out, *session)
		}
	}
	return out, nil
}

type memNotifier struct {
	events []string
}

func (n *memNotifier) BroadcastSession(phone, flowName, status string) {
	n.events = append(n.events, phone+" "+flowName+" "+status)
}

type memSender struct {
	sent []*PendingMessage
}

func (s *memSender) Send(_ context.Context, _, _ string, msg *PendingMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *memSender) texts() []string {
	var out []string
	for _, msg := range s.sent {
		out = append(out, msg.Text)
	}
	return out
}

type memDocs struct {
	docType string
	fields  map[string]any
}

func (d *memDocs) CreateDocument(_ context.Context, docType string, fields map[string]any) (string, error) {
	d.docType = docType
	d.fields = fields
	return "DOC-0001", nil
}

func newTestEngine(flows map[string]*Definition) (*Engine, *memSessions, *memSender) {
	sessions := &memSessions{}
	sender := &memSender{}
	scripts := script.NewEngine(time.Second, testLogger())
	engine := NewEngine(&memFlows{flows: flows}, sessions, sender, scripts, testLogger())
	return engine, sessions, sender
}

func contactFlow() *Definition {
	return &Definition{
		Name:              "Contact",
		Enabled:           true,
		CancelKeywords:    "cancel,stop",
		InitialMessage:    "Welcome!",
		CompletionMessage: "Hi {name}, age {age}",
		Steps: []Step{
			{Name: "Ask Name", Position: 1, InputType: InputText, Message: "What is your name?", StoreAs: "name"},
			{Name: "Ask Age", Position: 2, InputType: InputNumber, Message: "How old are you, {name}?", StoreAs: "age"},
		},
	}
}

func TestFlowRunsToCompletion(t *testing.T) {
	d := contactFlow()
	engine, sessions, sender := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	msg := engine.StartFlow(ctx, d, "15550001", "acc", nil)
	require.NotNil(t, msg)
	require.Equal(t, "What is your name?", msg.Text)
	require.Equal(t, []string{"Welcome!", "What is your name?"}, sender.texts())

	session, err := sessions.Active(ctx, "15550001", "acc")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, "Ask Name", session.CurrentStep)

	msg = engine.ProcessInput(ctx, session, "Sam", "", nil)
	require.Equal(t, "How old are you, Sam?", msg.Text)
	require.Equal(t, "Sam", session.GetString("name"))

	msg = engine.ProcessInput(ctx, session, "30", "", nil)
	require.Equal(t, "Hi Sam, age 30", msg.Text)
	require.Equal(t, StatusCompleted, session.Status)
	require.NotNil(t, session.CompletedAt)

	active, err := sessions.Active(ctx, "15550001", "acc")
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestInvalidInputRetriesThenCancels(t *testing.T) {
	d := &Definition{
		Name:    "Email",
		Enabled: true,
		Steps: []Step{
			{
				Name: "Ask Email", Position: 1, InputType: InputEmail,
				Message: "Email?", StoreAs: "email",
				RetryOnInvalid: true, MaxRetries: 3,
				ValidationError: "That does not look like an email.",
			},
		},
	}
	engine, _, sender := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550002", "acc", nil)
	session := mustActive(t, engine, "15550002")

	for i := 0; i < 2; i++ {
		msg := engine.ProcessInput(ctx, session, "not-an-email", "", nil)
		require.Equal(t, "That does not look like an email.", msg.Text)
		require.Equal(t, StatusActive, session.Status)
	}
	require.Equal(t, 2, session.StepRetries)

	savesBefore := saves(t, engine)
	msg := engine.ProcessInput(ctx, session, "still wrong", "", nil)
	require.Equal(t, "Too many invalid attempts. Please start again.", msg.Text)
	require.Equal(t, StatusCancelled, session.Status)

	// the terminal acknowledgment lands in the persisted message log
	last := session.Messages[len(session.Messages)-1]
	require.Equal(t, "Too many invalid attempts. Please start again.", last.Text)
	require.Equal(t, savesBefore+1, saves(t, engine))

	// valid input after a retry resets the counter
	d2 := contactFlow()
	engine2, _, _ := newTestEngine(map[string]*Definition{d2.Name: d2})
	engine2.StartFlow(ctx, d2, "15550003", "acc", nil)
	s2 := mustActive(t, engine2, "15550003")
	s2.StepRetries = 2
	engine2.ProcessInput(ctx, s2, "Sam", "", nil)
	require.Equal(t, 0, s2.StepRetries)

	_ = sender
}

func TestCancelKeywordTerminatesSession(t *testing.T) {
	d := contactFlow()
	engine, sessions, _ := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550004", "acc", nil)
	session := mustActive(t, engine, "15550004")

	savesBefore := sessions.saves
	msg := engine.ProcessInput(ctx, session, "  STOP ", "", nil)
	require.Equal(t, "Your request has been cancelled.", msg.Text)
	require.Equal(t, StatusCancelled, session.Status)

	// the terminal acknowledgment lands in the persisted message log
	last := session.Messages[len(session.Messages)-1]
	require.Equal(t, "Your request has been cancelled.", last.Text)
	require.Equal(t, savesBefore+1, sessions.saves)
}

func TestRouterRoutesByScriptValue(t *testing.T) {
	d := &Definition{
		Name:    "Tiered",
		Enabled: true,
		Steps: []Step{
			{Name: "Ask Tier", Position: 1, InputType: InputText, Message: "Tier?", StoreAs: "tier", NextStep: "Route"},
			{
				Name: "Route", Position: 2, InputType: StepRouter,
				Script:          "data.tier",
				ConditionalNext: map[string]string{"vip": "VIP Desk"},
				ElseNextStep:    "Standard Desk",
			},
			{Name: "VIP Desk", Position: 3, InputType: InputText, Message: "Welcome to the VIP desk."},
			{Name: "Standard Desk", Position: 4, InputType: InputText, Message: "Standard queue."},
		},
	}
	engine, _, _ := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550005", "acc", nil)
	session := mustActive(t, engine, "15550005")

	// router lookup is case-insensitive on the script result
	msg := engine.ProcessInput(ctx, session, "VIP", "", nil)
	require.Equal(t, "Welcome to the VIP desk.", msg.Text)
	require.Equal(t, "VIP Desk", session.CurrentStep)
}

func TestSendMessageChainDeliversInOrder(t *testing.T) {
	d := &Definition{
		Name:           "Onboarding",
		Enabled:        true,
		InitialMessage: "Hello!",
		Steps: []Step{
			{Name: "Intro", Position: 1, InputType: StepSend, Message: "We are open 9-17."},
			{Name: "Hours", Position: 2, InputType: StepSend, Message: "Replies may take a minute."},
			{Name: "Ask Topic", Position: 3, InputType: InputText, Message: "What can we help with?"},
		},
	}
	engine, _, sender := newTestEngine(map[string]*Definition{d.Name: d})

	msg := engine.StartFlow(context.Background(), d, "15550006", "acc", nil)
	require.NotNil(t, msg)
	require.Equal(t, []string{
		"Hello!",
		"We are open 9-17.",
		"Replies may take a minute.",
		"What can we help with?",
	}, sender.texts())

	session := mustActive(t, engine, "15550006")
	require.Equal(t, "Ask Topic", session.CurrentStep)
}

func TestSkipConditionSkipsStep(t *testing.T) {
	d := &Definition{
		Name:    "Signup",
		Enabled: true,
		Steps: []Step{
			{Name: "Ask Age", Position: 1, InputType: InputNumber, Message: "Age?", StoreAs: "age"},
			{Name: "Parental Consent", Position: 2, InputType: InputText, Message: "Guardian contact?", SkipCondition: "data.age >= 18"},
			{Name: "Ask Email", Position: 3, InputType: InputEmail, Message: "Email?"},
		},
	}
	engine, _, _ := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550007", "acc", nil)
	session := mustActive(t, engine, "15550007")

	msg := engine.ProcessInput(ctx, session, "30", "", nil)
	require.Equal(t, "Email?", msg.Text)
	require.Equal(t, "Ask Email", session.CurrentStep)
}

func TestJumpSwitchesFlow(t *testing.T) {
	a := &Definition{
		Name:    "A",
		Enabled: true,
		Steps: []Step{
			{Name: "Pick", Position: 1, InputType: InputText, Message: "Pick.", NextStep: "Handover"},
			{Name: "Handover", Position: 2, InputType: StepJump, TargetFlow: "B"},
		},
	}
	b := &Definition{
		Name:    "B",
		Enabled: true,
		Steps: []Step{
			{Name: "B Start", Position: 1, InputType: InputText, Message: "Now in B."},
		},
	}
	engine, _, _ := newTestEngine(map[string]*Definition{"A": a, "B": b})
	ctx := context.Background()

	engine.StartFlow(ctx, a, "15550008", "acc", nil)
	session := mustActive(t, engine, "15550008")

	msg := engine.ProcessInput(ctx, session, "anything", "", nil)
	require.Equal(t, "Now in B.", msg.Text)
	require.Equal(t, "B", session.CurrentFlow)
	require.Equal(t, "B Start", session.CurrentStep)
}

func TestMediaStepFallsBackToPositionalOrder(t *testing.T) {
	d := &Definition{
		Name:    "Claim",
		Enabled: true,
		Steps: []Step{
			{
				Name: "Upload Photo", Position: 1, InputType: InputImage,
				Message: "Send a photo.", StoreAs: "photo",
				ConditionalNext: map[string]string{"retake": "Upload Photo"},
			},
			{Name: "Describe", Position: 2, InputType: InputText, Message: "Describe the damage."},
		},
	}
	engine, _, _ := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550009", "acc", nil)
	session := mustActive(t, engine, "15550009")

	msg := engine.ProcessInput(ctx, session, "files/photo-123.jpg", "", nil)
	require.Equal(t, "Describe the damage.", msg.Text)
	require.Equal(t, "files/photo-123.jpg", session.GetString("photo"))
}

func TestConditionStepBranches(t *testing.T) {
	d := &Definition{
		Name:    "Gate",
		Enabled: true,
		Steps: []Step{
			{Name: "Ask Amount", Position: 1, InputType: InputNumber, Message: "Amount?", StoreAs: "amount", NextStep: "Check"},
			{
				Name: "Check", Position: 2, InputType: StepCondition,
				Script: "data.amount > 1000", NextStep: "Manual Review", ElseNextStep: "Auto Approve",
			},
			{Name: "Manual Review", Position: 3, InputType: InputText, Message: "An agent will review this."},
			{Name: "Auto Approve", Position: 4, InputType: InputText, Message: "Approved automatically."},
		},
	}
	engine, _, _ := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550010", "acc", nil)
	session := mustActive(t, engine, "15550010")

	msg := engine.ProcessInput(ctx, session, "5000", "", nil)
	require.Equal(t, "An agent will review this.", msg.Text)
}

func TestButtonPayloadRoutesVerbatim(t *testing.T) {
	d := &Definition{
		Name:    "Menu",
		Enabled: true,
		Steps: []Step{
			{
				Name: "Main Menu", Position: 1, InputType: InputButton,
				Message: "Choose:",
				Buttons: []Button{{ID: "OPT_SALES", Title: "Sales"}, {ID: "OPT_SUPPORT", Title: "Support"}},
				ConditionalNext: map[string]string{
					"OPT_SALES":   "Sales Step",
					"OPT_SUPPORT": "Support Step",
				},
			},
			{Name: "Sales Step", Position: 2, InputType: InputText, Message: "Sales here."},
			{Name: "Support Step", Position: 3, InputType: InputText, Message: "Support here."},
		},
	}
	engine, _, _ := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550011", "acc", nil)
	session := mustActive(t, engine, "15550011")

	msg := engine.ProcessInput(ctx, session, "Support", "OPT_SUPPORT", nil)
	require.Equal(t, "Support here.", msg.Text)
}

func TestCreateDocumentActionMapsVariables(t *testing.T) {
	d := contactFlow()
	d.OnComplete = ActionCreateDocument
	d.DocumentType = "Lead"
	d.FieldMapping = map[string]string{"customer_name": "name", "customer_age": "age", "missing_field": "nothing"}

	engine, _, _ := newTestEngine(map[string]*Definition{d.Name: d})
	docs := &memDocs{}
	engine.SetDocumentCreator(docs)
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550012", "acc", nil)
	session := mustActive(t, engine, "15550012")
	engine.ProcessInput(ctx, session, "Sam", "", nil)
	engine.ProcessInput(ctx, session, "30", "", nil)

	require.Equal(t, "Lead", docs.docType)
	require.Equal(t, map[string]any{"customer_name": "Sam", "customer_age": "30"}, docs.fields)
}

func TestCallAPIActionPostsVariables(t *testing.T) {
	var got map[string]any
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := contactFlow()
	d.OnComplete = ActionCallAPI
	d.APIEndpoint = server.URL

	engine, _, _ := newTestEngine(map[string]*Definition{d.Name: d})
	engine.SetHTTPClient(server.Client())
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550013", "acc", nil)
	session := mustActive(t, engine, "15550013")
	engine.ProcessInput(ctx, session, "Sam", "", nil)
	engine.ProcessInput(ctx, session, "30", "", nil)

	require.Equal(t, "application/json", contentType)
	require.Equal(t, "Sam", got["name"])
	require.Equal(t, "30", got["age"])
}

func TestStartFlowSupersedesActiveSession(t *testing.T) {
	d := contactFlow()
	engine, sessions, _ := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550014", "acc", nil)
	engine.StartFlow(ctx, d, "15550014", "acc", nil)

	var active int
	for _, s := range sessions.items {
		if s.Status == StatusActive {
			active++
		}
	}
	require.Equal(t, 1, active)
	require.Equal(t, StatusCancelled, sessions.items[0].Status)
}

func TestProcessInputFallsBackOnStorageError(t *testing.T) {
	d := contactFlow()
	engine, _, sender := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550015", "acc", nil)
	session := mustActive(t, engine, "15550015")
	session.CurrentFlow = "Vanished"

	msg := engine.ProcessInput(ctx, session, "hello", "", nil)
	require.Equal(t, "An error occurred. Please try again later.", msg.Text)
	require.Equal(t, msg, sender.sent[len(sender.sent)-1])
}

func TestFormResponseMapsFields(t *testing.T) {
	d := &Definition{
		Name:    "Booking",
		Enabled: true,
		Steps: []Step{
			{
				Name: "Fill Form", Position: 1, InputType: InputForm,
				Message: "Please fill in the form.", FormRef: "123",
				FormMapping: map[string]string{"guest_name": "full_name", "guests": "party_size"},
			},
			{Name: "Confirm", Position: 2, InputType: InputText, Message: "Booked for {guest_name}, party of {guests}."},
		},
	}
	engine, _, _ := newTestEngine(map[string]*Definition{d.Name: d})
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550016", "acc", nil)
	session := mustActive(t, engine, "15550016")

	form := map[string]string{"full_name": "Ada", "party_size": "4"}
	msg := engine.ProcessInput(ctx, session, "form submitted", "", form)
	require.Equal(t, "Booked for Ada, party of 4.", msg.Text)
}

func TestCompletionRaceDoesNotResurrectSession(t *testing.T) {
	d := &Definition{
		Name:    "Ping",
		Enabled: true,
		Steps: []Step{
			{Name: "Ask", Position: 1, InputType: InputText, Message: "Say anything."},
		},
	}
	engine, sessions, _ := newTestEngine(map[string]*Definition{d.Name: d})
	docs := &memDocs{}
	engine.SetDocumentCreator(docs)
	d.OnComplete = ActionCreateDocument
	d.DocumentType = "Ticket"
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550017", "acc", nil)
	session := mustActive(t, engine, "15550017")

	// the sweep terminates the stored session while this input is in
	// flight; the handler still holds an Active snapshot
	expired := *session
	expired.Terminate(StatusTimeout)
	sessions.items[0] = &expired

	msg := engine.ProcessInput(ctx, session, "done", "", nil)
	require.NotNil(t, msg)

	// losing the terminal race must neither overwrite the stored status
	// nor fire the completion action
	require.Equal(t, StatusTimeout, sessions.items[0].Status)
	require.Empty(t, docs.docType)
}

func TestSessionTransitionsAreBroadcast(t *testing.T) {
	d := contactFlow()
	engine, _, _ := newTestEngine(map[string]*Definition{d.Name: d})
	notify := &memNotifier{}
	engine.SetNotifier(notify)
	ctx := context.Background()

	engine.StartFlow(ctx, d, "15550018", "acc", nil)
	session := mustActive(t, engine, "15550018")
	engine.ProcessInput(ctx, session, "Sam", "", nil)
	engine.ProcessInput(ctx, session, "30", "", nil)

	require.Equal(t, []string{
		"15550018 Contact Active",
		"15550018 Contact Completed",
	}, notify.events)
}

func saves(t *testing.T, engine *Engine) int {
	t.Helper()
	sessions, ok := engine.sessions.(*memSessions)
	require.True(t, ok)
	return sessions.saves
}

func mustActive(t *testing.T, engine *Engine, phone string) *Session {
	t.Helper()
	session, err := engine.sessions.Active(context.Background(), phone, "acc")
	require.NoError(t, err)
	require.NotNil(t, session)
	return session
}
