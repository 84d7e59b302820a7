package fluxnotify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTripThroughExports(t *testing.T) {
	msg := Message{
		MessageID: "m1",
		Text:      "hello",
		User:      User{UserID: "u1", Abbreviation: "JD"},
		Order:     3,
	}
	payload, err := Encode(msg)
	require.NoError(t, err)

	decoded, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, msg.MessageID, decoded.(Message).MessageID)

	frame, err := Frame(decoded)
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"abbr":"JD"`)
}

func TestDecodeErrorExport(t *testing.T) {
	_, err := Decode(nil)

	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestNewServiceExportValidatesConfig(t *testing.T) {
	logger := NewJSONServiceLogger(&bytes.Buffer{}, "error")

	_, err := NewService(context.Background(), &Config{SourceKind: SourceChannel}, logger, ServiceDependencies{})

	var validationErr ConfigValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Error(t, ValidateConfig(nil))
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	data, err := Marshal(payload)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, Unmarshal(data, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestShutdownSignalExport(t *testing.T) {
	signal := NewShutdownSignal(nil)
	signal.Fire("test")
	assert.True(t, signal.Fired())
}
