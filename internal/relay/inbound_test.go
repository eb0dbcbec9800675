package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/identity"
	"github.com/relaydesk/relaydesk/internal/mail"
	"github.com/relaydesk/relaydesk/internal/media"
	"github.com/relaydesk/relaydesk/internal/thread"
)

type fakeMailSender struct {
	sent   []mail.Outbound
	nextID int
	fail   error
}

func (f *fakeMailSender) Send(_ context.Context, msg mail.Outbound) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.nextID++
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("<msg-%d@relay>", f.nextID), nil
}

type fakeFetcher struct {
	blobs map[string][]byte
	fail  map[string]error
}

func (f *fakeFetcher) DownloadMedia(_ context.Context, id string, maxBytes int64) ([]byte, string, error) {
	if err := f.fail[id]; err != nil {
		return nil, "", err
	}
	data, ok := f.blobs[id]
	if !ok {
		return nil, "", media.ErrFetchFailed
	}
	if int64(len(data)) > maxBytes {
		return nil, "", media.ErrTooLarge
	}
	return data, "application/octet-stream", nil
}

type fakeSearcher struct {
	cases map[string]string
}

func (f *fakeSearcher) MostRecentOpenCase(_ context.Context, identityAddress string) (string, error) {
	return f.cases[identityAddress], nil
}

type fakeCreator struct {
	created int
}

func (f *fakeCreator) CreateCase(_ context.Context, _, _, _, _ string) (string, error) {
	f.created++
	return fmt.Sprintf("case-%d", f.created), nil
}

func newInboundFixture(t *testing.T) (*Inbound, *fakeMailSender, *fakeFetcher, *thread.MemoryStore) {
	t.Helper()

	codec := identity.NewCodec("wa.example.com")
	store := thread.NewMemoryStore()
	resolver := thread.NewResolver(nil, store, &fakeSearcher{cases: map[string]string{}}, &fakeCreator{})
	sender := &fakeMailSender{}
	fetcher := &fakeFetcher{blobs: map[string][]byte{}, fail: map[string]error{}}

	return NewInbound(nil, codec, resolver, fetcher, sender, "support@helpdesk.example.com", 64), sender, fetcher, store
}

func TestInboundRelayFirstContact(t *testing.T) {
	t.Parallel()

	relay, sender, _, store := newInboundFixture(t)

	err := relay.Relay(context.Background(), InboundEvent{
		ChatAddress: "+44 7911 123456",
		DisplayName: "Ada Lovelace",
		Text:        "Hello, my order hasn't arrived",
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	require.Equal(t, "support@helpdesk.example.com", msg.To)
	require.Equal(t, "447911123456@wa.example.com", msg.FromAddress)
	require.Equal(t, "Ada Lovelace (+447911123456)", msg.FromName)
	require.Contains(t, msg.Subject, "[Case #case-1]")
	require.Equal(t, "Hello, my order hasn't arrived", msg.Text)
	require.Equal(t, "relay", msg.Headers[mail.LoopHeader])
	require.Empty(t, msg.InReplyTo)

	rec, err := store.Get(context.Background(), "+447911123456")
	require.NoError(t, err)
	require.Equal(t, "case-1", rec.CaseID)
	require.Equal(t, "<msg-1@relay>", rec.LastAnchor)
}

func TestInboundRelayThreadsFollowUps(t *testing.T) {
	t.Parallel()

	relay, sender, _, _ := newInboundFixture(t)

	require.NoError(t, relay.Relay(context.Background(), InboundEvent{
		ChatAddress: "+447911123456",
		Text:        "Hello",
	}))
	require.NoError(t, relay.Relay(context.Background(), InboundEvent{
		ChatAddress: "+447911123456",
		Text:        "Any update?",
	}))

	require.Len(t, sender.sent, 2)
	second := sender.sent[1]
	require.Equal(t, "<msg-1@relay>", second.InReplyTo)
	require.Equal(t, []string{"<msg-1@relay>"}, second.References)
	require.Contains(t, second.Subject, "[Case #case-1]")
}

func TestInboundRelayMediaBudget(t *testing.T) {
	t.Parallel()

	relay, sender, fetcher, _ := newInboundFixture(t)
	fetcher.blobs["m-small"] = make([]byte, 40)
	fetcher.blobs["m-big"] = make([]byte, 60)
	fetcher.blobs["m-tiny"] = make([]byte, 10)
	fetcher.fail["m-broken"] = errors.New("upstream 500")

	err := relay.Relay(context.Background(), InboundEvent{
		ChatAddress: "+447911123456",
		Text:        "photos attached",
		Media: []MediaRef{
			{ProviderID: "m-small", Filename: "a.jpg"},
			{ProviderID: "m-big", Filename: "b.mp4"},
			{ProviderID: "m-broken", Filename: "c.pdf"},
			{ProviderID: "m-tiny", Filename: "d.txt"},
		},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	// 40 + 10 fit the 64-byte budget, the 60-byte file does not.
	require.Len(t, msg.Attachments, 2)
	require.Equal(t, "a.jpg", msg.Attachments[0].Filename)
	require.Equal(t, "d.txt", msg.Attachments[1].Filename)
	require.Contains(t, msg.Text, `[attachment "b.mp4" omitted: too large to forward]`)
	require.Contains(t, msg.Text, `[attachment "c.pdf" omitted: could not be retrieved]`)
}

func TestInboundRelayMediaOnlyMessage(t *testing.T) {
	t.Parallel()

	relay, sender, fetcher, _ := newInboundFixture(t)
	fetcher.blobs["m-1"] = []byte("jpegdata")

	err := relay.Relay(context.Background(), InboundEvent{
		ChatAddress: "+447911123456",
		Media:       []MediaRef{{ProviderID: "m-1", Filename: "photo.jpg"}},
	})
	require.NoError(t, err)
	require.Equal(t, "(media message)", sender.sent[0].Text)
}

func TestInboundRelayInvalidAddress(t *testing.T) {
	t.Parallel()

	relay, sender, _, _ := newInboundFixture(t)

	err := relay.Relay(context.Background(), InboundEvent{
		ChatAddress: "not-a-number",
		Text:        "hi",
	})
	require.ErrorIs(t, err, identity.ErrInvalidAddress)
	require.Empty(t, sender.sent)
}

func TestInboundRelaySendFailure(t *testing.T) {
	t.Parallel()

	relay, sender, _, store := newInboundFixture(t)
	sender.fail = mail.ErrSendFailed

	err := relay.Relay(context.Background(), InboundEvent{
		ChatAddress: "+447911123456",
		Text:        "hi",
	})
	require.ErrorIs(t, err, mail.ErrSendFailed)

	// The resolved case persists, but no anchor was written.
	rec, err := store.Get(context.Background(), "+447911123456")
	require.NoError(t, err)
	require.Empty(t, rec.LastAnchor)
}
