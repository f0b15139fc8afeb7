package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"WhatsFlow/bot/flow"
	"WhatsFlow/entity"
	"WhatsFlow/internal/lib/sl"
)

// WhatsApp caps reply buttons at three; bigger choice sets go out as a
// list message.
const maxReplyButtons = 3

type sendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
	Template         *template    `json:"template,omitempty"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type interactive struct {
	Type   string    `json:"type"`
	Body   *textPart `json:"body,omitempty"`
	Action *action   `json:"action"`
}

type textPart struct {
	Text string `json:"text"`
}

type action struct {
	Buttons    []replyButton  `json:"buttons,omitempty"`
	Button     string         `json:"button,omitempty"`
	Sections   []listSection  `json:"sections,omitempty"`
	Name       string         `json:"name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type replyButton struct {
	Type  string `json:"type"`
	Reply struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reply"`
}

type listSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []listRow `json:"rows"`
}

type listRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type template struct {
	Name     string `json:"name"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
}

// Send renders a pending message into a Graph API request and delivers
// it. Implements the flow engine's sender contract.
func (b *WhatsAppBot) Send(ctx context.Context, account, phone string, msg *flow.PendingMessage) error {
	req := sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               phone,
	}

	switch msg.Kind {
	case flow.ContentInteractive:
		req.Type = "interactive"
		req.Interactive = buildInteractive(msg)
	case flow.ContentTemplate:
		req.Type = "template"
		req.Template = &template{Name: msg.Template}
		req.Template.Language.Code = "en"
	case flow.ContentFlow:
		req.Type = "interactive"
		req.Interactive = buildFormLaunch(msg)
	default:
		req.Type = "text"
		req.Text = &textBody{Body: msg.Text}
	}

	if err := b.post(ctx, req); err != nil {
		return err
	}

	b.log.Info("message sent",
		slog.String("phone", phone),
		slog.String("kind", string(msg.Kind)),
	)
	b.recordOutgoing(ctx, account, phone, msg)
	return nil
}

func buildInteractive(msg *flow.PendingMessage) *interactive {
	if len(msg.Buttons) <= maxReplyButtons && !needsList(msg.Buttons) {
		act := &action{}
		for _, btn := range msg.Buttons {
			rb := replyButton{Type: "reply"}
			rb.Reply.ID = btn.ID
			rb.Reply.Title = btn.Title
			act.Buttons = append(act.Buttons, rb)
		}
		return &interactive{
			Type:   "button",
			Body:   &textPart{Text: msg.Text},
			Action: act,
		}
	}

	rows := make([]listRow, 0, len(msg.Buttons))
	for _, btn := range msg.Buttons {
		rows = append(rows, listRow{ID: btn.ID, Title: btn.Title, Description: btn.Description})
	}
	return &interactive{
		Type: "list",
		Body: &textPart{Text: msg.Text},
		Action: &action{
			Button:   "Options",
			Sections: []listSection{{Rows: rows}},
		},
	}
}

func needsList(buttons []flow.Button) bool {
	for _, btn := range buttons {
		if btn.Description != "" {
			return true
		}
	}
	return false
}

func buildFormLaunch(msg *flow.PendingMessage) *interactive {
	params := map[string]any{
		"flow_message_version": "3",
		"flow_id":              msg.FormRef,
		"flow_cta":             msg.FormCTA,
	}
	if msg.FormScreen != "" {
		params["flow_action"] = "navigate"
		params["flow_action_payload"] = map[string]any{"screen": msg.FormScreen}
	}
	return &interactive{
		Type: "flow",
		Body: &textPart{Text: msg.Text},
		Action: &action{
			Name:       "flow",
			Parameters: params,
		},
	}
}

func (b *WhatsAppBot) post(ctx context.Context, body sendRequest) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", graphAPIURL, b.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.accessToken)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (b *WhatsAppBot) recordOutgoing(ctx context.Context, account, phone string, msg *flow.PendingMessage) {
	if b.recorder == nil {
		return
	}
	record := &entity.Message{
		Account:     account,
		PhoneNumber: phone,
		Direction:   entity.DirectionOutgoing,
		Text:        msg.Text,
		ContentType: string(msg.Kind),
		StepName:    msg.StepName,
		CreatedAt:   time.Now(),
	}
	if err := b.recorder.Record(ctx, record); err != nil {
		b.log.Error("recording outbound message", slog.String("phone", phone), sl.Err(err))
	}
}
