package script

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEngine(timeout time.Duration) *Engine {
	return NewEngine(timeout, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEvalCondition(t *testing.T) {
	e := testEngine(time.Second)

	ok, err := e.EvalCondition("data.age >= 18", map[string]any{"age": 21})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.EvalCondition("data.age >= 18", map[string]any{"age": 12})
	require.NoError(t, err)
	require.False(t, ok)

	// collected input arrives as strings; comparisons still coerce
	ok, err = e.EvalCondition("data.age >= 18", map[string]any{"age": "30"})
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.EvalCondition("not valid {", nil)
	require.Error(t, err)
}

func TestEvalRoute(t *testing.T) {
	e := testEngine(time.Second)

	value, err := e.EvalRoute(`data.tier == "gold" ? "vip" : "standard"`, map[string]any{"tier": "gold"})
	require.NoError(t, err)
	require.Equal(t, "vip", value)

	value, err = e.EvalRoute("undefined", nil)
	require.NoError(t, err)
	require.Equal(t, "", value)

	value, err = e.EvalRoute("null", nil)
	require.NoError(t, err)
	require.Equal(t, "", value)
}

func TestEvalResponse(t *testing.T) {
	e := testEngine(time.Second)

	result, err := e.EvalResponse(`response = "Hi " + data.name + " from " + phone`, map[string]any{"name": "Sam"}, "1555")
	require.NoError(t, err)
	require.Equal(t, "Hi Sam from 1555", result)

	result, err = e.EvalResponse(`response = {message: "pick", buttons: [{id: "a", title: "A"}]}`, nil, "1555")
	require.NoError(t, err)
	shaped, ok := result.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "pick", shaped["message"])

	result, err = e.EvalResponse(`var x = 1`, nil, "1555")
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestRunawayScriptIsInterrupted(t *testing.T) {
	e := testEngine(50 * time.Millisecond)

	start := time.Now()
	_, err := e.EvalCondition("while(true){}", nil)
	require.Error(t, err)
	require.Less(t, time.Since(start), 5*time.Second)
}
