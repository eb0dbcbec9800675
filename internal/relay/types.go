// Package relay implements the two message pipelines of the bridge:
// chat traffic into the helpdesk's email intake, and helpdesk replies
// back out to chat.
package relay

// MediaRef points at a piece of media attached to an inbound chat
// message, to be fetched from the chat provider during relay.
type MediaRef struct {
	ProviderID  string
	Filename    string
	ContentType string
}

// InboundEvent is one chat message after webhook decoding, ready for
// relay to the helpdesk.
type InboundEvent struct {
	ChatAddress string
	DisplayName string
	Text        string
	Media       []MediaRef
	MessageID   string
}

// OutboundResult reports what a helpdesk reply relay actually delivered.
type OutboundResult struct {
	Delivered      bool
	CaseID         string
	AttachmentURLs []string
	OmittedFiles   []string
}
