package relay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/helpdesk"
	"github.com/relaydesk/relaydesk/internal/identity"
	"github.com/relaydesk/relaydesk/internal/mail"
	"github.com/relaydesk/relaydesk/internal/media"
	"github.com/relaydesk/relaydesk/internal/sanitize"
	"github.com/relaydesk/relaydesk/internal/thread"
)

type fakeChat struct {
	texts []string
	docs  []string
	to    []string
}

func (f *fakeChat) SendText(_ context.Context, to, text string) error {
	f.to = append(f.to, to)
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeChat) SendDocumentLink(_ context.Context, to, url, _ string) error {
	f.to = append(f.to, to)
	f.docs = append(f.docs, url)
	return nil
}

type fakeAppender struct {
	articles []helpdesk.Article
}

func (f *fakeAppender) AppendMessage(_ context.Context, art helpdesk.Article) error {
	f.articles = append(f.articles, art)
	return nil
}

func newOutboundFixture(t *testing.T, cfg OutboundConfig) (*Outbound, *fakeChat, *fakeAppender, *thread.MemoryStore) {
	t.Helper()

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "https://relay.example.com"
	}
	if cfg.MaxFileBytes == 0 {
		cfg.MaxFileBytes = 1 << 20
	}
	if cfg.MaxAttachments == 0 {
		cfg.MaxAttachments = 5
	}
	if cfg.ReplyChannel == "" {
		cfg.ReplyChannel = helpdesk.ChannelNote
	}
	if cfg.AttributeRepliesTo == "" {
		cfg.AttributeRepliesTo = helpdesk.AttributeAgent
	}

	codec := identity.NewCodec("wa.example.com")
	store := thread.NewMemoryStore()
	resolver := thread.NewResolver(nil, store, &fakeSearcher{cases: map[string]string{}}, nil)
	chat := &fakeChat{}
	appender := &fakeAppender{}
	blobs := media.NewTempStore(nil, time.Minute)

	out := NewOutbound(nil, codec, resolver, sanitize.New(0, ""), chat, blobs, appender, cfg)
	return out, chat, appender, store
}

func TestOutboundRelayAgentReply(t *testing.T) {
	t.Parallel()

	out, chat, appender, store := newOutboundFixture(t, OutboundConfig{
		AllowedSenders: []string{"agent@support.example.com"},
	})

	res, err := out.Relay(context.Background(), &mail.Inbound{
		MessageID: "<reply-1@support>",
		From:      "Agent Smith <agent@support.example.com>",
		Recipient: "447911123456@wa.example.com",
		Subject:   "Re: Chat message from +447911123456 [Case #42]",
		Text:      "We've shipped it\n\n> Hello, my order hasn't arrived",
	})
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, "42", res.CaseID)

	require.Equal(t, []string{"+447911123456"}, chat.to)
	require.Equal(t, []string{"We've shipped it"}, chat.texts)

	rec, err := store.Get(context.Background(), "+447911123456")
	require.NoError(t, err)
	require.Equal(t, "42", rec.CaseID)
	require.Equal(t, "<reply-1@support>", rec.LastAnchor)

	require.Len(t, appender.articles, 1)
	require.Equal(t, "42", appender.articles[0].CaseID)
	require.Equal(t, helpdesk.ChannelNote, appender.articles[0].Channel)
}

func TestOutboundRelayForeignRecipientIgnored(t *testing.T) {
	t.Parallel()

	out, chat, _, _ := newOutboundFixture(t, OutboundConfig{})

	res, err := out.Relay(context.Background(), &mail.Inbound{
		From:      "agent@support.example.com",
		Recipient: "billing@other.example.com",
		Text:      "internal mail",
	})
	require.NoError(t, err)
	require.False(t, res.Delivered)
	require.Empty(t, chat.texts)
}

func TestOutboundRelaySenderNotAllowlisted(t *testing.T) {
	t.Parallel()

	out, chat, _, _ := newOutboundFixture(t, OutboundConfig{
		AllowedSenders: []string{"agent@support.example.com"},
	})

	res, err := out.Relay(context.Background(), &mail.Inbound{
		From:      "spoofer@evil.example.com",
		Recipient: "447911123456@wa.example.com",
		Text:      "free money",
	})
	require.NoError(t, err)
	require.False(t, res.Delivered)
	require.Empty(t, chat.texts)
}

func TestOutboundRelayDomainAllowlist(t *testing.T) {
	t.Parallel()

	out, chat, _, _ := newOutboundFixture(t, OutboundConfig{
		AllowedSenders: []string{"@support.example.com"},
	})

	res, err := out.Relay(context.Background(), &mail.Inbound{
		From:      "anyone@support.example.com",
		Recipient: "447911123456@wa.example.com",
		Text:      "hello",
	})
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, []string{"hello"}, chat.texts)
}

func TestOutboundRelaySuppressesAutoReplies(t *testing.T) {
	t.Parallel()

	out, chat, _, store := newOutboundFixture(t, OutboundConfig{})

	res, err := out.Relay(context.Background(), &mail.Inbound{
		MessageID:     "<auto-1@support>",
		From:          "noreply@support.example.com",
		Recipient:     "447911123456@wa.example.com",
		Subject:       "Out of office [Case #42]",
		Text:          "I am away until Monday",
		AutoSubmitted: "auto-replied",
	})
	require.NoError(t, err)
	require.False(t, res.Delivered)
	require.Empty(t, chat.texts)

	// The anchor still advances so later user replies thread correctly.
	rec, err := store.Get(context.Background(), "+447911123456")
	require.NoError(t, err)
	require.Equal(t, "<auto-1@support>", rec.LastAnchor)
}

func TestOutboundRelaySuppressesLoopMarkedMail(t *testing.T) {
	t.Parallel()

	out, chat, _, _ := newOutboundFixture(t, OutboundConfig{})

	res, err := out.Relay(context.Background(), &mail.Inbound{
		From:       "agent@support.example.com",
		Recipient:  "447911123456@wa.example.com",
		Text:       "bounced back",
		LoopMarker: true,
	})
	require.NoError(t, err)
	require.False(t, res.Delivered)
	require.Empty(t, chat.texts)
}

func TestOutboundRelayHTMLFallback(t *testing.T) {
	t.Parallel()

	out, chat, _, _ := newOutboundFixture(t, OutboundConfig{})

	res, err := out.Relay(context.Background(), &mail.Inbound{
		From:      "agent@support.example.com",
		Recipient: "447911123456@wa.example.com",
		HTML:      "<p>Your refund is <b>approved</b></p>",
	})
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Len(t, chat.texts, 1)
	require.Contains(t, chat.texts[0], "Your refund is")
	require.Contains(t, chat.texts[0], "approved")
}

func TestOutboundRelayAttachments(t *testing.T) {
	t.Parallel()

	out, chat, _, _ := newOutboundFixture(t, OutboundConfig{
		MaxFileBytes:   100,
		MaxAttachments: 2,
	})

	res, err := out.Relay(context.Background(), &mail.Inbound{
		From:      "agent@support.example.com",
		Recipient: "447911123456@wa.example.com",
		Text:      "see attached",
		Files: []mail.Attachment{
			{Filename: "logo.png", Data: []byte("png"), Inline: true},
			{Filename: "invoice.pdf", Data: make([]byte, 50)},
			{Filename: "huge.zip", Data: make([]byte, 200)},
			{Filename: "label.pdf", Data: make([]byte, 40)},
			{Filename: "overflow.pdf", Data: make([]byte, 10)},
		},
	})
	require.NoError(t, err)
	require.True(t, res.Delivered)

	// Inline skipped silently, oversized and overflow reported.
	require.Len(t, res.AttachmentURLs, 2)
	require.Equal(t, []string{"huge.zip", "overflow.pdf"}, res.OmittedFiles)
	for _, u := range chat.docs {
		require.True(t, strings.HasPrefix(u, "https://relay.example.com/file/"))
	}
	// Reply text plus the omission note.
	require.Len(t, chat.texts, 2)
	require.Contains(t, chat.texts[1], "huge.zip")
}

func TestOutboundRelayNoAuditForMailChannel(t *testing.T) {
	t.Parallel()

	out, _, appender, _ := newOutboundFixture(t, OutboundConfig{
		ReplyChannel: helpdesk.ChannelMail,
	})

	_, err := out.Relay(context.Background(), &mail.Inbound{
		From:      "agent@support.example.com",
		Recipient: "447911123456@wa.example.com",
		Subject:   "[Case #42]",
		Text:      "hello",
	})
	require.NoError(t, err)
	require.Empty(t, appender.articles)
}
