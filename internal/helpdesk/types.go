package helpdesk

import "time"

// ReplyChannel selects how an article appended to a case is typed on the
// helpdesk side. Mail articles trigger the helpdesk's own outbound email,
// messenger articles are recorded as chat traffic, notes are internal only.
type ReplyChannel string

const (
	ChannelMail      ReplyChannel = "mail"
	ChannelMessenger ReplyChannel = "messenger"
	ChannelNote      ReplyChannel = "note"
)

// Attribution decides which party an appended article is credited to.
type Attribution string

const (
	AttributeAgent     Attribution = "agent"
	AttributeRequester Attribution = "requester"
)

// Case is the subset of ticket fields the relay cares about.
type Case struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User identifies a helpdesk requester record.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// Article is a message appended to an existing case.
type Article struct {
	CaseID      string
	Body        string
	Channel     ReplyChannel
	Attribution Attribution
	Internal    bool
}
