package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:3000", "ws://localhost:3000/ws"},
		{"https://dashboard.example.com", "wss://dashboard.example.com/ws"},
		{"https://dashboard.example.com/", "wss://dashboard.example.com/ws"},
		{"https://example.com/hotel/", "wss://example.com/hotel/ws"},
		{"ws://localhost:3000", "ws://localhost:3000/ws"},
		{"wss://example.com?x=1#frag", "wss://example.com/ws"},
		{"  http://localhost:3000  ", "ws://localhost:3000/ws"},
	}

	for _, tt := range tests {
		got, err := socketURL(tt.base)
		require.NoError(t, err, tt.base)
		assert.Equal(t, tt.want, got, tt.base)
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base  string
		topic string
		want  string
	}{
		{"http://localhost:3000", "7", "http://localhost:3000/api/events/7"},
		{"https://example.com/hotel", "42", "https://example.com/hotel/api/events/42"},
		{"wss://example.com", "7", "https://example.com/api/events/7"},
		{"ws://localhost:3000/", "7", "http://localhost:3000/api/events/7"},
		{"http://localhost:3000", "a b/c", "http://localhost:3000/api/events/a%20b%2Fc"},
	}

	for _, tt := range tests {
		got, err := streamURL(tt.base, tt.topic)
		require.NoError(t, err, tt.base)
		assert.Equal(t, tt.want, got, tt.base)
	}
}

func TestURLErrors(t *testing.T) {
	for _, base := range []string{"", "localhost:3000", "ftp://example.com", "http://", "://bad"} {
		_, err := socketURL(base)
		assert.Error(t, err, "socketURL(%q)", base)
		_, err = streamURL(base, "7")
		assert.Error(t, err, "streamURL(%q)", base)
	}

	_, err := streamURL("http://localhost:3000", "")
	assert.Error(t, err)
}
