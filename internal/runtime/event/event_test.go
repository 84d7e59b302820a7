package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
)

func sampleUser() User {
	return User{
		UserID:       "u1",
		Name:         "jdoe",
		FirstName:    "Jane",
		LastName:     "Doe",
		Abbreviation: "JD",
		Color:        "#ff0000",
	}
}

func TestDecodeMessageWithoutStream(t *testing.T) {
	payload, err := Encode(Message{MessageID: "m1", Text: "hi", Code: "c", User: sampleUser(), Order: 1})
	require.NoError(t, err)

	ev, err := Decode(payload)
	require.NoError(t, err)

	msg, ok := ev.(Message)
	require.True(t, ok, "expected Message variant, got %T", ev)
	assert.Equal(t, "m1", msg.MessageID)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, "c", msg.Code)
	assert.Equal(t, int64(1), msg.Order)
	assert.Equal(t, sampleUser(), msg.User)
	assert.Nil(t, msg.Stream)
	assert.Equal(t, "", msg.StreamID())
	assert.Equal(t, KindMessage, msg.Kind())
}

func TestDecodeMessageWithStream(t *testing.T) {
	text := "topic"
	in := Message{
		MessageID: "m2",
		Text:      "reply",
		User:      sampleUser(),
		Order:     -42,
		Stream: &Stream{
			StreamID:  "s1",
			MessageID: "m0",
			Text:      &text,
			Users:     []User{sampleUser(), {UserID: "u2"}},
		},
	}
	payload, err := Encode(in)
	require.NoError(t, err)

	ev, err := Decode(payload)
	require.NoError(t, err)
	msg := ev.(Message)

	assert.Equal(t, int64(-42), msg.Order)
	require.NotNil(t, msg.Stream)
	assert.Equal(t, "s1", msg.StreamID())
	assert.Equal(t, "m0", msg.Stream.MessageID)
	require.NotNil(t, msg.Stream.Text)
	assert.Equal(t, "topic", *msg.Stream.Text)
	assert.Len(t, msg.Stream.Users, 2)
	assert.Equal(t, "u2", msg.Stream.Users[1].UserID)
}

func TestDecodeStreamWithoutTextOrUsers(t *testing.T) {
	payload, err := Encode(&Message{MessageID: "m3", User: sampleUser(), Stream: &Stream{StreamID: "s9"}})
	require.NoError(t, err)

	ev, err := Decode(payload)
	require.NoError(t, err)
	stream := ev.(Message).Stream
	require.NotNil(t, stream)
	assert.Nil(t, stream.Text)
	assert.Empty(t, stream.Users)
	assert.NotNil(t, stream.Users)
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	var user []byte
	user = protowire.AppendTag(user, fieldUserID, protowire.BytesType)
	user = protowire.AppendString(user, "u1")
	user = protowire.AppendTag(user, 42, protowire.Fixed32Type)
	user = protowire.AppendFixed32(user, 7)

	var msg []byte
	msg = protowire.AppendTag(msg, fieldMessageID, protowire.BytesType)
	msg = protowire.AppendString(msg, "m1")
	msg = protowire.AppendTag(msg, 99, protowire.VarintType)
	msg = protowire.AppendVarint(msg, 12345)
	msg = protowire.AppendTag(msg, fieldMessageUser, protowire.BytesType)
	msg = protowire.AppendBytes(msg, user)

	var envelope []byte
	envelope = protowire.AppendTag(envelope, 15, protowire.BytesType)
	envelope = protowire.AppendString(envelope, "metadata")
	envelope = protowire.AppendTag(envelope, fieldEventMessage, protowire.BytesType)
	envelope = protowire.AppendBytes(envelope, msg)

	ev, err := Decode(envelope)
	require.NoError(t, err)
	assert.Equal(t, "m1", ev.(Message).MessageID)
	assert.Equal(t, "u1", ev.(Message).User.UserID)
}

func TestDecodeFailures(t *testing.T) {
	var unknownVariant []byte
	unknownVariant = protowire.AppendTag(unknownVariant, 2, protowire.BytesType)
	unknownVariant = protowire.AppendBytes(unknownVariant, []byte{0x0a, 0x01, 'x'})

	var noUser []byte
	noUser = protowire.AppendTag(noUser, fieldEventMessage, protowire.BytesType)
	noUser = protowire.AppendBytes(noUser, protowire.AppendString(protowire.AppendTag(nil, fieldMessageID, protowire.BytesType), "m1"))

	var wrongType []byte
	wrongType = protowire.AppendTag(wrongType, fieldEventMessage, protowire.VarintType)
	wrongType = protowire.AppendVarint(wrongType, 1)

	tests := []struct {
		name    string
		payload []byte
		reason  string
	}{
		{"empty", nil, "empty payload"},
		{"garbage", []byte{0xff, 0xff, 0xff}, "envelope"},
		{"truncated", []byte{0x0a, 0x10, 0x01}, "envelope"},
		{"unknown variant", unknownVariant, "unrecognized event variant"},
		{"missing user", noUser, "message"},
		{"wrong wire type", wrongType, "envelope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode(tt.payload)
			assert.Nil(t, ev)

			var decodeErr *errspkg.DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
			assert.Equal(t, tt.reason, decodeErr.Reason)
		})
	}
}

func TestFrameMatchesClientWireFormat(t *testing.T) {
	data, err := Frame(Message{MessageID: "m1", Text: "hi", Code: "c", User: sampleUser(), Order: 1})
	require.NoError(t, err)

	want := `{"message":{"message_id":"m1","text":"hi","code":"c",` +
		`"user":{"user_id":"u1","name":"jdoe","first_name":"Jane","last_name":"Doe","abbr":"JD","color":"#ff0000"},` +
		`"order":1,"stream":null}}`
	assert.Equal(t, want, string(data))
}

func TestFrameWithStream(t *testing.T) {
	data, err := Frame(&Message{MessageID: "m1", User: User{UserID: "u1"}, Stream: &Stream{StreamID: "s1", MessageID: "m0", Users: []User{}}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stream":{"stream_id":"s1","message_id":"m0","text":null,"users":[]}`)
}

func TestFrameAndEncodeRejectUnknownVariants(t *testing.T) {
	var nilMessage *Message

	_, err := Frame(nil)
	assert.Error(t, err)
	_, err = Frame(nilMessage)
	assert.Error(t, err)
	_, err = Encode(nil)
	assert.Error(t, err)
	_, err = Encode(nilMessage)
	assert.Error(t, err)
}
