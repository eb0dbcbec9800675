package mail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mg "github.com/mailgun/mailgun-go/v5"
)

// MailgunSender submits mail through the Mailgun messages API.
type MailgunSender struct {
	client *mg.Client
	domain string
	logger *slog.Logger
}

func NewMailgunSender(log *slog.Logger, domain, apiKey, region string) *MailgunSender {
	if log == nil {
		log = slog.Default()
	}
	client := mg.NewMailgun(apiKey)
	if region == "eu" {
		client.SetAPIBase(mg.APIBaseEU)
	}
	return &MailgunSender{
		client: client,
		domain: domain,
		logger: log.With(slog.String("service", "mail_mailgun")),
	}
}

func (s *MailgunSender) Send(ctx context.Context, msg Outbound) (string, error) {
	from := msg.FromAddress
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromAddress)
	}

	m := mg.NewMessage(s.domain, from, msg.Subject, msg.Text, msg.To)
	if msg.InReplyTo != "" {
		m.AddHeader("In-Reply-To", msg.InReplyTo)
	}
	if len(msg.References) > 0 {
		m.AddHeader("References", strings.Join(msg.References, " "))
	}
	for k, v := range msg.Headers {
		m.AddHeader(k, v)
	}
	for _, a := range msg.Attachments {
		m.AddBufferAttachment(a.Filename, a.Data)
	}

	resp, err := s.client.Send(ctx, m)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.logger.Debug("sent email",
		slog.String("to", msg.To),
		slog.String("message_id", resp.ID))
	return resp.ID, nil
}

var _ Sender = (*MailgunSender)(nil)
