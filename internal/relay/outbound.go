package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"

	"github.com/relaydesk/relaydesk/internal/helpdesk"
	"github.com/relaydesk/relaydesk/internal/identity"
	mailpkg "github.com/relaydesk/relaydesk/internal/mail"
	"github.com/relaydesk/relaydesk/internal/media"
	"github.com/relaydesk/relaydesk/internal/sanitize"
	"github.com/relaydesk/relaydesk/internal/thread"
)

// ChatSender delivers text and file messages to a chat address.
type ChatSender interface {
	SendText(ctx context.Context, to, text string) error
	SendDocumentLink(ctx context.Context, to, url, filename string) error
}

// CaseAppender records an audit copy of a relayed reply on the case.
type CaseAppender interface {
	AppendMessage(ctx context.Context, art helpdesk.Article) error
}

var caseRefRe = regexp.MustCompile(`\[Case #([A-Za-z0-9-]+)\]`)

// OutboundConfig tunes the helpdesk-to-chat pipeline.
type OutboundConfig struct {
	PublicBaseURL      string
	AllowedSenders     []string
	MaxFileBytes       int64
	MaxAttachments     int
	ReplyChannel       helpdesk.ReplyChannel
	AttributeRepliesTo helpdesk.Attribution
}

// Outbound relays helpdesk reply emails back out to chat.
type Outbound struct {
	codec     *identity.Codec
	resolver  *thread.Resolver
	sanitizer *sanitize.Sanitizer
	chat      ChatSender
	blobs     *media.TempStore
	appender  CaseAppender
	cfg       OutboundConfig
	allowed   map[string]bool
	logger    *slog.Logger
}

func NewOutbound(log *slog.Logger, codec *identity.Codec, resolver *thread.Resolver, sanitizer *sanitize.Sanitizer, chat ChatSender, blobs *media.TempStore, appender CaseAppender, cfg OutboundConfig) *Outbound {
	if log == nil {
		log = slog.Default()
	}
	allowed := make(map[string]bool, len(cfg.AllowedSenders))
	for _, s := range cfg.AllowedSenders {
		allowed[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return &Outbound{
		codec:     codec,
		resolver:  resolver,
		sanitizer: sanitizer,
		chat:      chat,
		blobs:     blobs,
		appender:  appender,
		cfg:       cfg,
		allowed:   allowed,
		logger:    log.With(slog.String("service", "relay_outbound")),
	}
}

// Relay forwards one helpdesk email to the chat user it addresses.
// Loop-marked and auto-generated mail only refreshes the thread anchor.
// Mail from senders outside the allowlist, or addressed outside the
// proxy domain, is dropped.
func (o *Outbound) Relay(ctx context.Context, in *mailpkg.Inbound) (OutboundResult, error) {
	chatAddress := o.codec.FromProxyAddress(in.Recipient)
	if chatAddress == "" {
		o.logger.Debug("recipient outside proxy domain, ignoring",
			slog.String("recipient", in.Recipient))
		return OutboundResult{}, nil
	}
	caseID := caseRef(in.Subject)

	if in.LoopMarker || isAutoGenerated(in.AutoSubmitted) {
		o.recordAnchor(ctx, chatAddress, caseID, in.MessageID)
		o.logger.Info("suppressed auto-generated reply",
			slog.String("chat_address", chatAddress),
			slog.String("auto_submitted", in.AutoSubmitted))
		return OutboundResult{CaseID: caseID}, nil
	}

	if !o.senderAllowed(in.From) {
		o.logger.Warn("sender not allowlisted, dropping reply",
			slog.String("from", in.From))
		return OutboundResult{CaseID: caseID}, nil
	}

	text := in.Text
	if strings.TrimSpace(text) == "" && in.HTML != "" {
		text = sanitize.TextFromHTML(in.HTML)
	}
	text = o.sanitizer.Clean(text)

	if err := o.chat.SendText(ctx, chatAddress, text); err != nil {
		return OutboundResult{CaseID: caseID}, fmt.Errorf("deliver reply to %s: %w", chatAddress, err)
	}

	urls, omitted := o.publishAttachments(ctx, chatAddress, in.Files)

	o.recordAnchor(ctx, chatAddress, caseID, in.MessageID)
	o.auditCopy(ctx, caseID, text)

	o.logger.Info("relayed helpdesk reply to chat",
		slog.String("chat_address", chatAddress),
		slog.String("case_id", caseID),
		slog.Int("attachments", len(urls)),
		slog.Int("omitted", len(omitted)))
	return OutboundResult{
		Delivered:      true,
		CaseID:         caseID,
		AttachmentURLs: urls,
		OmittedFiles:   omitted,
	}, nil
}

func (o *Outbound) senderAllowed(from string) bool {
	if len(o.allowed) == 0 {
		return true
	}
	addr := strings.ToLower(strings.TrimSpace(from))
	if parsed, err := mail.ParseAddress(from); err == nil {
		addr = strings.ToLower(parsed.Address)
	}
	if o.allowed[addr] {
		return true
	}
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		return o.allowed["@"+addr[at+1:]]
	}
	return false
}

// publishAttachments stores each forwardable file in the temporary blob
// store and sends its public URL as a document message. Inline parts,
// oversized files and overflow beyond the attachment cap are skipped.
func (o *Outbound) publishAttachments(ctx context.Context, chatAddress string, files []mailpkg.Attachment) (urls []string, omitted []string) {
	sent := 0
	for _, f := range files {
		if f.Inline {
			continue
		}
		if sent >= o.cfg.MaxAttachments {
			omitted = append(omitted, f.Filename)
			continue
		}
		if int64(len(f.Data)) > o.cfg.MaxFileBytes {
			omitted = append(omitted, f.Filename)
			o.logger.Warn("attachment exceeds chat size limit",
				slog.String("filename", f.Filename),
				slog.Int("bytes", len(f.Data)))
			continue
		}

		blob := o.blobs.Put(f.Filename, f.ContentType, f.Data)
		url := strings.TrimRight(o.cfg.PublicBaseURL, "/") + "/file/" + blob.ID
		if err := o.chat.SendDocumentLink(ctx, chatAddress, url, f.Filename); err != nil {
			o.logger.Warn("attachment delivery failed",
				slog.String("filename", f.Filename),
				slog.Any("error", err))
			omitted = append(omitted, f.Filename)
			continue
		}
		urls = append(urls, url)
		sent++
	}

	if len(omitted) > 0 {
		note := fmt.Sprintf("Some attachments could not be forwarded: %s", strings.Join(omitted, ", "))
		if err := o.chat.SendText(ctx, chatAddress, note); err != nil {
			o.logger.Warn("omission note delivery failed", slog.Any("error", err))
		}
	}
	return urls, omitted
}

func (o *Outbound) recordAnchor(ctx context.Context, chatAddress, caseID, messageID string) {
	if messageID == "" && caseID == "" {
		return
	}
	if err := o.resolver.RecordCaseAnchor(ctx, chatAddress, caseID, messageID); err != nil {
		o.logger.Warn("failed to record thread anchor",
			slog.String("chat_address", chatAddress),
			slog.Any("error", err))
	}
}

// auditCopy mirrors the delivered reply onto the case. Mail-channel
// deployments skip this, the helpdesk already holds the email itself.
func (o *Outbound) auditCopy(ctx context.Context, caseID, text string) {
	if o.appender == nil || caseID == "" || o.cfg.ReplyChannel == helpdesk.ChannelMail {
		return
	}
	art := helpdesk.Article{
		CaseID:      caseID,
		Body:        text,
		Channel:     o.cfg.ReplyChannel,
		Attribution: o.cfg.AttributeRepliesTo,
	}
	if err := o.appender.AppendMessage(ctx, art); err != nil {
		o.logger.Warn("audit copy failed",
			slog.String("case_id", caseID),
			slog.Any("error", err))
	}
}

func caseRef(subject string) string {
	m := caseRefRe.FindStringSubmatch(subject)
	if m == nil {
		return ""
	}
	return m[1]
}

// isAutoGenerated follows RFC 3834: any Auto-Submitted value other than
// "no" marks an automatic response.
func isAutoGenerated(autoSubmitted string) bool {
	v := strings.ToLower(strings.TrimSpace(autoSubmitted))
	return v != "" && v != "no"
}
