package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"WhatsFlow/internal/lib/sl"
)

// runCompletionAction fires the flow's configured side effect exactly
// once per completion. Failures are logged and never block the
// completion message.
func (e *Engine) runCompletionAction(ctx context.Context, d *Definition, session *Session) {
	switch d.OnComplete {
	case ActionCreateDocument:
		e.createDocument(ctx, d, session.Variables)
	case ActionCallAPI:
		e.callAPI(ctx, d.APIEndpoint, session.Variables)
	case ActionRunScript:
		if err := e.scripts.Run(d.Script, session.Snapshot()); err != nil {
			e.log.With(slog.String("flow", d.Name), sl.Err(err)).Error("completion script failed")
		}
	}
}

// createDocument maps collected variables onto the target document's
// fields. Unmapped variables are skipped; an empty result aborts.
func (e *Engine) createDocument(ctx context.Context, d *Definition, vars map[string]any) {
	log := e.log.With(slog.String("flow", d.Name))

	if e.docs == nil {
		log.Error("create document: no document sink configured")
		return
	}
	if d.DocumentType == "" || len(d.FieldMapping) == 0 {
		log.Error("create document: missing document type or field mapping")
		return
	}

	fields := make(map[string]any, len(d.FieldMapping))
	for field, variable := range d.FieldMapping {
		value, ok := vars[variable]
		if !ok {
			log.With(slog.String("variable", variable)).Warn("create document: variable not collected")
			continue
		}
		fields[field] = value
	}

	if len(fields) == 0 {
		log.Error("create document: no variables resolved")
		return
	}

	id, err := e.docs.CreateDocument(ctx, d.DocumentType, fields)
	if err != nil {
		log.With(sl.Err(err)).Error("create document")
		return
	}
	log.With(
		slog.String("type", d.DocumentType),
		slog.String("id", id),
	).Info("document created")
}

// callAPI posts the full variable set as JSON to the configured
// endpoint. Non-2xx responses are logged, not retried.
func (e *Engine) callAPI(ctx context.Context, endpoint string, vars map[string]any) {
	log := e.log.With(slog.String("endpoint", endpoint))

	if endpoint == "" {
		log.Error("call api: no endpoint configured")
		return
	}

	body, err := json.Marshal(vars)
	if err != nil {
		log.With(sl.Err(err)).Error("call api: encoding variables")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.With(sl.Err(err)).Error("call api: building request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		log.With(sl.Err(err)).Error("call api")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.With(slog.Int("status", resp.StatusCode)).Error("call api: non-2xx response")
	}
}
