package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/relaydesk/relaydesk/internal/mail"
	"github.com/relaydesk/relaydesk/internal/relay"
)

// MailWebhookHandler receives helpdesk-originated emails forwarded by
// the mail provider.
type MailWebhookHandler struct {
	relay      *relay.Outbound
	signingKey string
	logger     *slog.Logger
}

func NewMailWebhookHandler(log *slog.Logger, outbound *relay.Outbound, signingKey string) *MailWebhookHandler {
	return &MailWebhookHandler{
		relay:      outbound,
		signingKey: signingKey,
		logger:     log.With(slog.String("handler", "mail_webhook")),
	}
}

func (h *MailWebhookHandler) Register(e *echo.Echo) {
	e.POST("/helpdesk-outbound", h.HandleOutbound)
}

func (h *MailWebhookHandler) HandleOutbound(c echo.Context) error {
	inbound, err := mail.ParseInbound(c.Request(), h.signingKey)
	if err != nil {
		h.logger.Warn("rejected outbound webhook", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}

	res, err := h.relay.Relay(c.Request().Context(), inbound)
	if err != nil {
		h.logger.Error("outbound relay failed",
			slog.String("recipient", inbound.Recipient),
			slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "relay failed")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"delivered": res.Delivered,
		"case_id":   res.CaseID,
	})
}
