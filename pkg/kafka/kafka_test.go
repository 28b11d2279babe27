package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "search", Value: map[string]int{"total_hits": 3}},
		{Key: "search", Value: "plain"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("search"), msgs[0].Key)
	assert.JSONEq(t, `{"total_hits":3}`, string(msgs[0].Value))
	assert.Equal(t, `"plain"`, string(msgs[1].Value))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Query string `json:"query"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"query":"schools in leeds"}`))
	require.NoError(t, err)
	assert.Equal(t, "schools in leeds", got.Query)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}
