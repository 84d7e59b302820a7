package event

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encode renders a DomainEvent in the wire format Decode reads. Producers and
// tests use it; the relay itself only decodes.
func Encode(ev DomainEvent) ([]byte, error) {
	switch e := ev.(type) {
	case Message:
		return appendMessageField(nil, fieldEventMessage, e), nil
	case *Message:
		if e == nil {
			return nil, fmt.Errorf("fluxnotify: cannot encode nil message")
		}
		return appendMessageField(nil, fieldEventMessage, *e), nil
	default:
		return nil, fmt.Errorf("fluxnotify: cannot encode event %T", ev)
	}
}

func appendMessageField(b []byte, num protowire.Number, msg Message) []byte {
	var body []byte
	body = appendString(body, fieldMessageID, msg.MessageID)
	body = appendString(body, fieldMessageText, msg.Text)
	body = appendString(body, fieldMessageCode, msg.Code)
	body = appendUserField(body, fieldMessageUser, msg.User)
	if msg.Order != 0 {
		body = protowire.AppendTag(body, fieldMessageOrder, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(msg.Order))
	}
	if msg.Stream != nil {
		body = appendStreamField(body, fieldMessageStream, *msg.Stream)
	}
	return appendBytes(b, num, body)
}

func appendUserField(b []byte, num protowire.Number, user User) []byte {
	var body []byte
	body = appendString(body, fieldUserID, user.UserID)
	body = appendString(body, fieldUserName, user.Name)
	body = appendString(body, fieldUserFirstName, user.FirstName)
	body = appendString(body, fieldUserLastName, user.LastName)
	body = appendString(body, fieldUserAbbr, user.Abbreviation)
	body = appendString(body, fieldUserColor, user.Color)
	return appendBytes(b, num, body)
}

func appendStreamField(b []byte, num protowire.Number, stream Stream) []byte {
	var body []byte
	body = appendString(body, fieldStreamID, stream.StreamID)
	body = appendString(body, fieldStreamMessageID, stream.MessageID)
	if stream.Text != nil {
		body = appendBytes(body, fieldStreamText, []byte(*stream.Text))
	}
	for _, user := range stream.Users {
		body = appendUserField(body, fieldStreamUsers, user)
	}
	return appendBytes(b, num, body)
}

// appendString follows proto3 and omits empty scalars.
func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}
