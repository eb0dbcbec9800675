package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relaydesk/relaydesk/internal/identity"
	"github.com/relaydesk/relaydesk/internal/mail"
	"github.com/relaydesk/relaydesk/internal/media"
	"github.com/relaydesk/relaydesk/internal/thread"
)

// MediaFetcher downloads a media object from the chat provider.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, mediaID string, maxBytes int64) ([]byte, string, error)
}

// Inbound relays chat messages into the helpdesk's email intake.
type Inbound struct {
	codec         *identity.Codec
	resolver      *thread.Resolver
	fetcher       MediaFetcher
	sender        mail.Sender
	helpdeskInbox string
	maxEmailBytes int64
	logger        *slog.Logger
}

func NewInbound(log *slog.Logger, codec *identity.Codec, resolver *thread.Resolver, fetcher MediaFetcher, sender mail.Sender, helpdeskInbox string, maxEmailBytes int64) *Inbound {
	if log == nil {
		log = slog.Default()
	}
	return &Inbound{
		codec:         codec,
		resolver:      resolver,
		fetcher:       fetcher,
		sender:        sender,
		helpdeskInbox: helpdeskInbox,
		maxEmailBytes: maxEmailBytes,
		logger:        log.With(slog.String("service", "relay_inbound")),
	}
}

// Relay turns one chat message into one email to the helpdesk. Media
// that cannot be fetched or no longer fits the size budget is replaced
// by an omission note in the body; the message itself still goes out.
func (i *Inbound) Relay(ctx context.Context, ev InboundEvent) error {
	chatAddress, err := identity.Normalize(ev.ChatAddress)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", ev.ChatAddress, err)
	}
	proxyAddress, err := i.codec.ToProxyAddress(chatAddress)
	if err != nil {
		return fmt.Errorf("proxy address for %q: %w", chatAddress, err)
	}

	subject := "Chat message from " + chatAddress
	caseID, err := i.resolver.ResolveCaseForInbound(ctx, thread.CaseRequest{
		ChatAddress:  chatAddress,
		ProxyAddress: proxyAddress,
		DisplayName:  ev.DisplayName,
		Subject:      subject,
		InitialBody:  ev.Text,
	})
	if err != nil {
		return fmt.Errorf("resolve case: %w", err)
	}
	if caseID != thread.NoCase {
		subject = fmt.Sprintf("%s [Case #%s]", subject, caseID)
	}

	attachments, notes := i.fetchMedia(ctx, ev.Media)

	body := strings.TrimSpace(ev.Text)
	if body == "" && len(attachments) > 0 {
		body = "(media message)"
	}
	if len(notes) > 0 {
		body = strings.TrimSpace(body + "\n\n" + strings.Join(notes, "\n"))
	}

	msg := mail.Outbound{
		To:          i.helpdeskInbox,
		FromAddress: proxyAddress,
		FromName:    fromName(ev.DisplayName, chatAddress),
		Subject:     subject,
		Text:        body,
		Attachments: attachments,
		Headers:     map[string]string{mail.LoopHeader: "relay"},
	}

	if rec, lookupErr := i.resolver.Lookup(ctx, chatAddress); lookupErr == nil && rec.LastAnchor != "" {
		msg.InReplyTo = rec.LastAnchor
		msg.References = []string{rec.LastAnchor}
	}

	messageID, err := i.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send to helpdesk: %w", err)
	}

	if err := i.resolver.RecordCaseAnchor(ctx, chatAddress, caseID, messageID); err != nil {
		i.logger.Warn("failed to record thread anchor",
			slog.String("chat_address", chatAddress),
			slog.Any("error", err))
	}

	i.logger.Info("relayed chat message to helpdesk",
		slog.String("chat_address", chatAddress),
		slog.String("case_id", caseID),
		slog.Int("attachments", len(attachments)),
		slog.Int("omitted", len(notes)))
	return nil
}

// fetchMedia downloads each referenced media object under a shared byte
// budget. Failed or oversized items become omission notes.
func (i *Inbound) fetchMedia(ctx context.Context, refs []MediaRef) ([]mail.Attachment, []string) {
	if len(refs) == 0 {
		return nil, nil
	}

	budget := media.NewBudget(i.maxEmailBytes)
	var attachments []mail.Attachment
	var notes []string

	for n, ref := range refs {
		name := ref.Filename
		if name == "" {
			name = fmt.Sprintf("attachment-%d", n+1)
		}

		data, contentType, err := i.fetcher.DownloadMedia(ctx, ref.ProviderID, budget.Remaining())
		if err != nil {
			i.logger.Warn("media fetch failed",
				slog.String("media_id", ref.ProviderID),
				slog.Any("error", err))
			notes = append(notes, omissionNote(name, err))
			continue
		}
		if err := budget.Admit(int64(len(data))); err != nil {
			notes = append(notes, omissionNote(name, err))
			continue
		}
		if contentType == "" {
			contentType = ref.ContentType
		}
		attachments = append(attachments, mail.Attachment{
			Filename:    name,
			ContentType: contentType,
			Data:        data,
		})
	}
	return attachments, notes
}

func omissionNote(name string, err error) string {
	switch {
	case isTooLarge(err):
		return fmt.Sprintf("[attachment %q omitted: too large to forward]", name)
	default:
		return fmt.Sprintf("[attachment %q omitted: could not be retrieved]", name)
	}
}

func isTooLarge(err error) bool {
	return errors.Is(err, media.ErrTooLarge)
}

func fromName(displayName, chatAddress string) string {
	if displayName == "" {
		return chatAddress
	}
	return fmt.Sprintf("%s (%s)", displayName, chatAddress)
}
