package event

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
)

// Field numbers of the wire schema.
const (
	fieldEventMessage protowire.Number = 1

	fieldMessageID     protowire.Number = 1
	fieldMessageText   protowire.Number = 2
	fieldMessageCode   protowire.Number = 3
	fieldMessageUser   protowire.Number = 4
	fieldMessageOrder  protowire.Number = 5
	fieldMessageStream protowire.Number = 6

	fieldUserID        protowire.Number = 1
	fieldUserName      protowire.Number = 2
	fieldUserFirstName protowire.Number = 3
	fieldUserLastName  protowire.Number = 4
	fieldUserAbbr      protowire.Number = 5
	fieldUserColor     protowire.Number = 6

	fieldStreamID        protowire.Number = 1
	fieldStreamMessageID protowire.Number = 2
	fieldStreamText      protowire.Number = 3
	fieldStreamUsers     protowire.Number = 4
)

// Decode turns a raw protobuf payload into a DomainEvent. Malformed payloads
// and envelopes without a known variant fail with *errors.DecodeError.
func Decode(payload []byte) (DomainEvent, error) {
	if len(payload) == 0 {
		return nil, &errspkg.DecodeError{Reason: "empty payload"}
	}

	var decoded DomainEvent
	r := fieldReader{b: payload}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return nil, &errspkg.DecodeError{Reason: "envelope", Err: err}
		}
		switch num {
		case fieldEventMessage:
			raw, err := r.bytes(typ)
			if err != nil {
				return nil, &errspkg.DecodeError{Reason: "envelope", Err: err}
			}
			msg, err := decodeMessage(raw)
			if err != nil {
				return nil, &errspkg.DecodeError{Reason: "message", Err: err}
			}
			decoded = msg
		default:
			if err := r.skip(num, typ); err != nil {
				return nil, &errspkg.DecodeError{Reason: "envelope", Err: err}
			}
		}
	}

	if decoded == nil {
		return nil, &errspkg.DecodeError{Reason: "unrecognized event variant"}
	}
	return decoded, nil
}

func decodeMessage(b []byte) (Message, error) {
	var (
		msg     Message
		hasUser bool
	)
	r := fieldReader{b: b}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return Message{}, err
		}
		switch num {
		case fieldMessageID:
			msg.MessageID, err = r.string(typ)
		case fieldMessageText:
			msg.Text, err = r.string(typ)
		case fieldMessageCode:
			msg.Code, err = r.string(typ)
		case fieldMessageOrder:
			var v uint64
			v, err = r.varint(typ)
			msg.Order = int64(v)
		case fieldMessageUser:
			var raw []byte
			if raw, err = r.bytes(typ); err == nil {
				msg.User, err = decodeUser(raw)
				hasUser = true
			}
		case fieldMessageStream:
			var raw []byte
			if raw, err = r.bytes(typ); err == nil {
				var stream Stream
				stream, err = decodeStream(raw)
				msg.Stream = &stream
			}
		default:
			err = r.skip(num, typ)
		}
		if err != nil {
			return Message{}, err
		}
	}
	if !hasUser {
		return Message{}, fmt.Errorf("user is required")
	}
	return msg, nil
}

func decodeUser(b []byte) (User, error) {
	var user User
	r := fieldReader{b: b}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return User{}, err
		}
		switch num {
		case fieldUserID:
			user.UserID, err = r.string(typ)
		case fieldUserName:
			user.Name, err = r.string(typ)
		case fieldUserFirstName:
			user.FirstName, err = r.string(typ)
		case fieldUserLastName:
			user.LastName, err = r.string(typ)
		case fieldUserAbbr:
			user.Abbreviation, err = r.string(typ)
		case fieldUserColor:
			user.Color, err = r.string(typ)
		default:
			err = r.skip(num, typ)
		}
		if err != nil {
			return User{}, fmt.Errorf("user: %w", err)
		}
	}
	return user, nil
}

func decodeStream(b []byte) (Stream, error) {
	stream := Stream{Users: []User{}}
	r := fieldReader{b: b}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return Stream{}, err
		}
		switch num {
		case fieldStreamID:
			stream.StreamID, err = r.string(typ)
		case fieldStreamMessageID:
			stream.MessageID, err = r.string(typ)
		case fieldStreamText:
			var text string
			if text, err = r.string(typ); err == nil {
				stream.Text = &text
			}
		case fieldStreamUsers:
			var raw []byte
			if raw, err = r.bytes(typ); err == nil {
				var user User
				if user, err = decodeUser(raw); err == nil {
					stream.Users = append(stream.Users, user)
				}
			}
		default:
			err = r.skip(num, typ)
		}
		if err != nil {
			return Stream{}, fmt.Errorf("stream: %w", err)
		}
	}
	return stream, nil
}

// fieldReader walks the fields of one protobuf message.
type fieldReader struct {
	b []byte
}

func (r *fieldReader) done() bool { return len(r.b) == 0 }

func (r *fieldReader) tag() (protowire.Number, protowire.Type, error) {
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	r.b = r.b[n:]
	return num, typ, nil
}

func (r *fieldReader) bytes(typ protowire.Type) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("unexpected wire type %d for length-delimited field", typ)
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *fieldReader) string(typ protowire.Type) (string, error) {
	v, err := r.bytes(typ)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (r *fieldReader) varint(typ protowire.Type) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, fmt.Errorf("unexpected wire type %d for varint field", typ)
	}
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *fieldReader) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, r.b)
	if n < 0 {
		return protowire.ParseError(n)
	}
	r.b = r.b[n:]
	return nil
}
