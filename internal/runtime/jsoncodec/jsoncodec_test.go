package jsoncodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	ID       string   `json:"id"`
	Optional *string  `json:"optional"`
	Tags     []string `json:"tags"`
}

func TestMarshalKeepsFieldOrderAndNulls(t *testing.T) {
	data, err := Marshal(testPayload{ID: "m1", Tags: []string{}})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"m1","optional":null,"tags":[]}`, string(data))
}

func TestUnmarshalRoundTrip(t *testing.T) {
	var out testPayload
	require.NoError(t, Unmarshal([]byte(`{"id":"x","tags":["a","b"]}`), &out))
	assert.Equal(t, "x", out.ID)
	assert.Nil(t, out.Optional)
	assert.Equal(t, []string{"a", "b"}, out.Tags)
}

func TestUnmarshalRejectsInvalidJSON(t *testing.T) {
	var out testPayload
	assert.Error(t, Unmarshal([]byte(`{invalid`), &out))
}
