package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender submits mail through a plain SMTP account.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	security string
	logger   *slog.Logger
}

func NewSMTPSender(log *slog.Logger, host string, port int, username, password, security string) *SMTPSender {
	if log == nil {
		log = slog.Default()
	}
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		security: security,
		logger:   log.With(slog.String("service", "mail_smtp")),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Outbound) (string, error) {
	m := gomail.NewMsg()
	if msg.FromName != "" {
		if err := m.FromFormat(msg.FromName, msg.FromAddress); err != nil {
			return "", fmt.Errorf("set from: %w", err)
		}
	} else {
		if err := m.From(msg.FromAddress); err != nil {
			return "", fmt.Errorf("set from: %w", err)
		}
	}
	if err := m.To(msg.To); err != nil {
		return "", fmt.Errorf("set to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	m.SetMessageID()

	if msg.InReplyTo != "" {
		m.SetGenHeader(gomail.HeaderInReplyTo, msg.InReplyTo)
	}
	if len(msg.References) > 0 {
		m.SetGenHeader(gomail.HeaderReferences, strings.Join(msg.References, " "))
	}
	for k, v := range msg.Headers {
		m.SetGenHeader(gomail.Header(k), v)
	}

	for _, a := range msg.Attachments {
		opts := []gomail.FileOption{}
		if a.ContentType != "" {
			opts = append(opts, gomail.WithFileContentType(gomail.ContentType(a.ContentType)))
		}
		if err := m.AttachReader(a.Filename, bytes.NewReader(a.Data), opts...); err != nil {
			return "", fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
	}
	switch s.security {
	case "tls":
		opts = append(opts, gomail.WithSSLPort(false), gomail.WithTLSPolicy(gomail.TLSMandatory))
	case "starttls":
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return "", fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.logger.Debug("sent email",
		slog.String("to", msg.To),
		slog.String("message_id", m.GetMessageID()))
	return m.GetMessageID(), nil
}

var _ Sender = (*SMTPSender)(nil)
