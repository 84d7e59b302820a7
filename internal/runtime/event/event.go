// Package event defines the closed set of domain events the relay carries,
// their binary wire decoding and their JSON client frames.
//
// The wire union is open: producers may add variants the relay does not know
// yet, and those decode to a DecodeError. The processing union is closed:
// every DomainEvent is one of the types declared here.
package event

// DomainEvent is implemented only by the variants in this package.
type DomainEvent interface {
	// Kind is the snake_case discriminator used in client frames.
	Kind() string
	// StreamID is the stream the event is scoped to, or "" when unscoped.
	StreamID() string

	isDomainEvent()
}

// KindMessage is the discriminator of Message events.
const KindMessage = "message"

// Message is emitted when a message is posted.
type Message struct {
	MessageID string  `json:"message_id"`
	Text      string  `json:"text"`
	Code      string  `json:"code"`
	User      User    `json:"user"`
	Order     int64   `json:"order"`
	Stream    *Stream `json:"stream"`
}

func (Message) Kind() string { return KindMessage }

func (m Message) StreamID() string {
	if m.Stream == nil {
		return ""
	}
	return m.Stream.StreamID
}

func (Message) isDomainEvent() {}

// User is a denormalized snapshot of the author, carried inline so delivery
// never needs a lookup.
type User struct {
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Abbreviation string `json:"abbr"`
	Color        string `json:"color"`
}

// Stream is the snapshot of the stream a message belongs to.
type Stream struct {
	StreamID  string  `json:"stream_id"`
	MessageID string  `json:"message_id"`
	Text      *string `json:"text"`
	Users     []User  `json:"users"`
}
