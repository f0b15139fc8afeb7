// Package script evaluates authored flow scripts in a sandbox. Scripts
// receive an immutable variable snapshot as `data` and nothing else; the
// engine never exposes storage or transport capabilities to them.
package script

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dop251/goja"

	"WhatsFlow/internal/lib/sl"
)

const defaultTimeout = 5 * time.Second

// Engine runs authored JavaScript snippets with a wall-clock bound.
type Engine struct {
	timeout time.Duration
	log     *slog.Logger
}

// NewEngine creates a script engine. A non-positive timeout falls back
// to the default bound.
func NewEngine(timeout time.Duration, log *slog.Logger) *Engine {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Engine{
		timeout: timeout,
		log:     log.With(sl.Module("script")),
	}
}

// EvalCondition evaluates a boolean expression against the variables.
func (e *Engine) EvalCondition(src string, vars map[string]any) (bool, error) {
	value, err := e.run(src, vars, "")
	if err != nil {
		return false, err
	}
	return value.ToBoolean(), nil
}

// EvalRoute evaluates a routing expression and normalizes the result to
// a string. Undefined and null yield the empty string.
func (e *Engine) EvalRoute(src string, vars map[string]any) (string, error) {
	value, err := e.run(src, vars, "")
	if err != nil {
		return "", err
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return "", nil
	}
	return value.String(), nil
}

// EvalResponse runs a response-generating script. The script reports its
// result by assigning the `response` variable: a string for plain text
// or an object with message/buttons/template fields.
func (e *Engine) EvalResponse(src string, vars map[string]any, phone string) (any, error) {
	vm := goja.New()
	timer := e.guard(vm)
	defer timer.Stop()

	if err := vm.Set("data", vars); err != nil {
		return nil, fmt.Errorf("binding data: %w", err)
	}
	if err := vm.Set("phone", phone); err != nil {
		return nil, fmt.Errorf("binding phone: %w", err)
	}
	if err := vm.Set("response", goja.Undefined()); err != nil {
		return nil, fmt.Errorf("binding response: %w", err)
	}

	if _, err := vm.RunString(src); err != nil {
		return nil, fmt.Errorf("running response script: %w", err)
	}

	result := vm.Get("response")
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}
	return result.Export(), nil
}

// Run executes a completion script for its side effects on `data` only;
// the snapshot is discarded afterwards, so effects must flow through the
// declared completion sinks instead.
func (e *Engine) Run(src string, vars map[string]any) error {
	_, err := e.run(src, vars, "")
	return err
}

func (e *Engine) run(src string, vars map[string]any, phone string) (goja.Value, error) {
	vm := goja.New()
	timer := e.guard(vm)
	defer timer.Stop()

	if err := vm.Set("data", vars); err != nil {
		return nil, fmt.Errorf("binding data: %w", err)
	}
	if phone != "" {
		if err := vm.Set("phone", phone); err != nil {
			return nil, fmt.Errorf("binding phone: %w", err)
		}
	}

	value, err := vm.RunString(src)
	if err != nil {
		return nil, fmt.Errorf("running script: %w", err)
	}
	return value, nil
}

// guard interrupts the VM when the wall-clock bound elapses.
func (e *Engine) guard(vm *goja.Runtime) *time.Timer {
	return time.AfterFunc(e.timeout, func() {
		e.log.Warn("script exceeded time bound, interrupting")
		vm.Interrupt("script timeout")
	})
}
