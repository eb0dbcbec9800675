package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/chat"
	"github.com/relaydesk/relaydesk/internal/relay"
)

const relayTimeout = 2 * time.Minute

// ChatWebhookHandler receives WhatsApp Cloud API callbacks. The POST
// handler acknowledges immediately and relays in the background, the
// provider expects a fast 200 and retries on its own schedule.
type ChatWebhookHandler struct {
	client      *chat.Client
	relay       *relay.Inbound
	verifyToken string
	logger      *slog.Logger
}

func NewChatWebhookHandler(log *slog.Logger, client *chat.Client, inbound *relay.Inbound, verifyToken string) *ChatWebhookHandler {
	return &ChatWebhookHandler{
		client:      client,
		relay:       inbound,
		verifyToken: verifyToken,
		logger:      log.With(slog.String("handler", "chat_webhook")),
	}
}

func (h *ChatWebhookHandler) Register(e *echo.Echo) {
	e.GET("/incoming-chat", h.HandleVerification)
	e.POST("/incoming-chat", h.HandleIncoming)
}

// HandleVerification answers the webhook subscription handshake.
func (h *ChatWebhookHandler) HandleVerification(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		h.logger.Info("chat webhook verified")
		return c.String(http.StatusOK, challenge)
	}

	h.logger.Warn("chat webhook verification failed", slog.String("mode", mode))
	return echo.NewHTTPError(http.StatusForbidden, "verification failed")
}

func (h *ChatWebhookHandler) HandleIncoming(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}

	if !h.client.VerifySignature(body, c.Request().Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("invalid webhook signature")
		return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
	}

	var payload chat.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("bad webhook payload", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "bad payload")
	}

	for _, ev := range h.events(payload) {
		go h.process(ev)
	}
	return c.NoContent(http.StatusOK)
}

func (h *ChatWebhookHandler) events(payload chat.WebhookPayload) []relay.InboundEvent {
	var out []relay.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, msg := range change.Value.Messages {
				ev := relay.InboundEvent{
					ChatAddress: msg.From,
					DisplayName: chat.SenderName(change.Value, msg.From),
					Text:        chat.TextOf(msg),
					MessageID:   msg.ID,
				}
				if m := chat.MediaOf(msg); m != nil {
					ev.Media = append(ev.Media, relay.MediaRef{
						ProviderID:  m.ID,
						Filename:    m.Filename,
						ContentType: m.MimeType,
					})
				}
				if ev.Text == "" && len(ev.Media) == 0 {
					h.logger.Debug("skipping message without content",
						slog.String("type", msg.Type),
						slog.String("message_id", msg.ID))
					continue
				}
				out = append(out, ev)
			}
		}
	}
	return out
}

func (h *ChatWebhookHandler) process(ev relay.InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
	defer cancel()

	if err := h.relay.Relay(ctx, ev); err != nil {
		h.logger.Error("inbound relay failed",
			slog.String("chat_address", ev.ChatAddress),
			slog.String("message_id", ev.MessageID),
			slog.Any("error", err))
	}
}
