// Package mail carries messages between the relay and the helpdesk's
// email intake: an outbound sender in two flavors (SMTP, Mailgun) and a
// parser for the helpdesk-side inbound webhook.
package mail

import (
	"context"
	"time"
)

// Attachment is a file travelling with a message in either direction.
// Inline parts (signature logos, embedded images) are marked so the
// relay can skip them on the way to chat.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
	Inline      bool
	ContentID   string
}

// Outbound is an email the relay composes on behalf of a chat user.
type Outbound struct {
	To          string
	FromAddress string
	FromName    string
	Subject     string
	Text        string
	Attachments []Attachment
	Headers     map[string]string
	InReplyTo   string
	References  []string
}

// Inbound is a helpdesk-originated email delivered to the relay via the
// provider's forwarding webhook.
type Inbound struct {
	MessageID     string
	From          string
	Recipient     string
	Subject       string
	Text          string
	HTML          string
	AutoSubmitted string
	LoopMarker    bool
	Files         []Attachment
	ReceivedAt    time.Time
}

// Sender delivers an outbound email and returns the provider message id,
// which the relay stores as the thread anchor.
type Sender interface {
	Send(ctx context.Context, msg Outbound) (string, error)
}
