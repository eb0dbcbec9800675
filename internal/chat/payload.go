package chat

// Webhook payload shapes for the WhatsApp Business Cloud API. Only the
// fields the relay reads are declared.

type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Value Value  `json:"value"`
	Field string `json:"field"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
}

type Contact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Button      *Button      `json:"button,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Image       *Media       `json:"image,omitempty"`
	Video       *Media       `json:"video,omitempty"`
	Audio       *Media       `json:"audio,omitempty"`
	Document    *Media       `json:"document,omitempty"`
	Sticker     *Media       `json:"sticker,omitempty"`
}

type Text struct {
	Body string `json:"body"`
}

type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type Interactive struct {
	Type        string  `json:"type"`
	ButtonReply *Choice `json:"button_reply,omitempty"`
	ListReply   *Choice `json:"list_reply,omitempty"`
}

type Choice struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

// TextOf extracts the human-readable text of a message. Plain text wins,
// then button and interactive reply titles, then a media caption. Returns
// "" for messages that carry no text at all.
func TextOf(m Message) string {
	if m.Text != nil && m.Text.Body != "" {
		return m.Text.Body
	}
	if m.Button != nil && m.Button.Text != "" {
		return m.Button.Text
	}
	if m.Interactive != nil {
		if m.Interactive.ButtonReply != nil && m.Interactive.ButtonReply.Title != "" {
			return m.Interactive.ButtonReply.Title
		}
		if m.Interactive.ListReply != nil && m.Interactive.ListReply.Title != "" {
			return m.Interactive.ListReply.Title
		}
	}
	if media := MediaOf(m); media != nil {
		return media.Caption
	}
	return ""
}

// MediaOf returns the media payload of a message, or nil for text-only
// message types.
func MediaOf(m Message) *Media {
	switch m.Type {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	case "sticker":
		return m.Sticker
	}
	return nil
}

// SenderName resolves the profile name for a message sender from the
// contacts block, or "" when the webhook carried none.
func SenderName(v Value, from string) string {
	for _, c := range v.Contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	return ""
}
