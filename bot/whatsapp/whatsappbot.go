// Package whatsapp is the WhatsApp Cloud API transport: webhook intake
// with signature verification on one side, Graph API delivery of
// pending messages on the other.
package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"WhatsFlow/entity"
	"WhatsFlow/internal/lib/sl"
)

const graphAPIURL = "https://graph.facebook.com/v21.0"

// Handler consumes parsed inbound messages.
type Handler interface {
	HandleMessage(ctx context.Context, in *entity.InboundMessage)
}

// Recorder persists delivered outbound messages.
type Recorder interface {
	Record(ctx context.Context, msg *entity.Message) error
}

// WhatsAppBot handles WhatsApp messaging via the Graph API.
type WhatsAppBot struct {
	log           *slog.Logger
	accessToken   string
	verifyToken   string
	appSecret     string
	phoneNumberID string
	account       string
	handler       Handler
	recorder      Recorder
	client        *http.Client
}

// WebhookPayload represents the incoming webhook payload from WhatsApp.
type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Metadata         struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WaID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []InboundPayload `json:"messages"`
			} `json:"value"`
			Field string `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

// InboundPayload is one message object inside a webhook payload.
type InboundPayload struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button,omitempty"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply,omitempty"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply,omitempty"`
		NFMReply *struct {
			ResponseJSON string `json:"response_json"`
			Name         string `json:"name"`
		} `json:"nfm_reply,omitempty"`
	} `json:"interactive,omitempty"`
	Image *struct {
		ID       string `json:"id"`
		MimeType string `json:"mime_type"`
		Caption  string `json:"caption"`
	} `json:"image,omitempty"`
	Document *struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	} `json:"document,omitempty"`
}

// NewWhatsAppBot creates a new WhatsApp bot instance.
func NewWhatsAppBot(accessToken, verifyToken, appSecret, phoneNumberID, account string, log *slog.Logger) *WhatsAppBot {
	return &WhatsAppBot{
		log:           log.With(sl.Module("whatsappbot")),
		accessToken:   accessToken,
		verifyToken:   verifyToken,
		appSecret:     appSecret,
		phoneNumberID: phoneNumberID,
		account:       account,
		client:        &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *WhatsAppBot) SetHandler(handler Handler) {
	b.handler = handler
}

func (b *WhatsAppBot) SetRecorder(recorder Recorder) {
	b.recorder = recorder
}

// HandleWebhookVerification handles the GET request for webhook verification.
func (b *WhatsAppBot) HandleWebhookVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == b.verifyToken {
		b.log.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	b.log.Warn("webhook verification failed",
		slog.String("mode", mode),
		slog.Bool("token_match", token == b.verifyToken),
	)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleWebhook handles incoming webhook POST requests.
func (b *WhatsAppBot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		b.log.Error("failed to read request body", sl.Err(err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if b.appSecret != "" {
		signature := r.Header.Get("X-Hub-Signature-256")
		if !b.verifySignature(body, signature) {
			b.log.Warn("invalid webhook signature")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		b.log.Error("failed to parse webhook payload", sl.Err(err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Acknowledge first; Meta retries anything not answered quickly.
	w.WriteHeader(http.StatusOK)

	go b.processPayload(payload)
}

func (b *WhatsAppBot) processPayload(payload WebhookPayload) {
	if payload.Object != "whatsapp_business_account" {
		return
	}
	if b.handler == nil {
		b.log.Warn("no handler attached, dropping payload")
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}

			profiles := make(map[string]string)
			for _, contact := range change.Value.Contacts {
				profiles[contact.WaID] = contact.Profile.Name
			}

			account := change.Value.Metadata.DisplayPhoneNumber
			if account == "" {
				account = b.account
			}

			for _, message := range change.Value.Messages {
				in := parseInbound(&message)
				if in == nil {
					b.log.Debug("unsupported message type", slog.String("type", message.Type))
					continue
				}
				in.Account = account
				in.ProfileName = profiles[message.From]

				b.log.Info("received message",
					slog.String("phone", in.PhoneNumber),
					slog.String("type", message.Type),
				)

				b.handler.HandleMessage(context.Background(), in)
			}
		}
	}
}

// parseInbound flattens one raw payload message into the transport
// independent inbound form. Returns nil for message types the pipeline
// does not consume (reactions, stickers, audio).
func parseInbound(m *InboundPayload) *entity.InboundMessage {
	in := &entity.InboundMessage{
		PhoneNumber: m.From,
		ReceivedAt:  time.Now(),
	}

	switch m.Type {
	case "text":
		if m.Text == nil {
			return nil
		}
		in.Text = m.Text.Body
	case "button":
		if m.Button == nil {
			return nil
		}
		in.Text = m.Button.Text
		in.ButtonPayload = m.Button.Payload
	case "interactive":
		if m.Interactive == nil {
			return nil
		}
		switch {
		case m.Interactive.ButtonReply != nil:
			in.Text = m.Interactive.ButtonReply.Title
			in.ButtonPayload = m.Interactive.ButtonReply.ID
		case m.Interactive.ListReply != nil:
			in.Text = m.Interactive.ListReply.Title
			in.ButtonPayload = m.Interactive.ListReply.ID
		case m.Interactive.NFMReply != nil:
			in.FormResponse = parseFormResponse(m.Interactive.NFMReply.ResponseJSON)
		default:
			return nil
		}
	case "image":
		if m.Image == nil {
			return nil
		}
		in.Text = m.Image.Caption
		in.AttachmentRef = "media/" + m.Image.ID
	case "document":
		if m.Document == nil {
			return nil
		}
		in.Text = m.Document.Filename
		in.AttachmentRef = "media/" + m.Document.ID
	default:
		return nil
	}
	return in
}

// parseFormResponse decodes the nfm_reply response_json blob. Values
// are flattened to strings; the flow_token bookkeeping key is dropped.
func parseFormResponse(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil
	}
	form := make(map[string]string, len(decoded))
	for key, value := range decoded {
		if key == "flow_token" {
			continue
		}
		form[key] = fmt.Sprint(value)
	}
	return form
}

// verifySignature verifies the X-Hub-Signature-256 header.
func (b *WhatsAppBot) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	// Signature format: "sha256=<hex_signature>"
	if len(signature) < 8 || signature[:7] != "sha256=" {
		return false
	}

	expectedSig := signature[7:]
	mac := hmac.New(sha256.New, []byte(b.appSecret))
	mac.Write(body)
	actualSig := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expectedSig), []byte(actualSig))
}
