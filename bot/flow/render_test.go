package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"WhatsFlow/bot/script"
)

func TestSubstitute(t *testing.T) {
	vars := map[string]any{"name": "Sam", "age": 30}

	require.Equal(t, "Hi Sam, you are 30.", Substitute("Hi {name}, you are {age}.", vars))

	// unknown tokens stay literal
	require.Equal(t, "Hi {nickname}.", Substitute("Hi {nickname}.", vars))

	require.Equal(t, "plain", Substitute("plain", nil))
}

func renderEngine() *Engine {
	scripts := script.NewEngine(time.Second, testLogger())
	return NewEngine(&memFlows{}, &memSessions{}, &memSender{}, scripts, testLogger())
}

func TestBuildStepMessageShapes(t *testing.T) {
	e := renderEngine()
	session := NewSession("1555", "acc", "F", "S", map[string]any{"name": "Sam"})

	text := e.buildStepMessage(&Step{Name: "S", InputType: InputText, Message: "Hi {name}"}, session)
	require.Equal(t, ContentText, text.Kind)
	require.Equal(t, "Hi Sam", text.Text)

	sel := e.buildStepMessage(&Step{Name: "S", InputType: InputSelect, Message: "Pick:", Options: "Red|Green"}, session)
	require.Equal(t, "Pick:\n\nOptions: Red, Green", sel.Text)

	buttons := e.buildStepMessage(&Step{
		Name: "S", InputType: InputButton, Message: "Choose",
		Buttons: []Button{{ID: "A", Title: "First"}},
	}, session)
	require.Equal(t, ContentInteractive, buttons.Kind)
	require.Len(t, buttons.Buttons, 1)

	form := e.buildStepMessage(&Step{
		Name: "S", InputType: InputForm, Message: "Fill in", FormRef: "321",
	}, session)
	require.Equal(t, ContentFlow, form.Kind)
	require.Equal(t, "Open Form", form.FormCTA)

	tmpl := e.buildStepMessage(&Step{
		Name: "S", MessageType: MessageTemplate, Template: "welcome_v2", Message: "fallback",
	}, session)
	require.Equal(t, ContentTemplate, tmpl.Kind)
	require.Equal(t, "welcome_v2", tmpl.Template)
}

func TestBuildStepMessageScript(t *testing.T) {
	e := renderEngine()
	session := NewSession("1555", "acc", "F", "S", map[string]any{"name": "Sam"})

	plain := e.buildStepMessage(&Step{
		Name: "S", MessageType: MessageScript,
		Script: `response = "Hello " + data.name`,
	}, session)
	require.Equal(t, "Hello Sam", plain.Text)

	shaped := e.buildStepMessage(&Step{
		Name: "S", MessageType: MessageScript,
		Script: `response = {message: "Pick one", buttons: [{id: "A", title: "First"}]}`,
	}, session)
	require.Equal(t, ContentInteractive, shaped.Kind)
	require.Equal(t, "Pick one", shaped.Text)
	require.Equal(t, "A", shaped.Buttons[0].ID)

	// broken script falls back to the rendered message text
	broken := e.buildStepMessage(&Step{
		Name: "S", MessageType: MessageScript, Message: "Fallback for {name}",
		Script: `this is not javascript`,
	}, session)
	require.Equal(t, "Fallback for Sam", broken.Text)
}
