package room

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roomServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, listRoomsPath, r.URL.Path)
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims := &accessClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
		assert.NoError(t, err)
		assert.Equal(t, "key", claims.Issuer)
		assert.True(t, claims.Video.RoomList)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestAvailableWithParticipants(t *testing.T) {
	ts := roomServer(t, `{"rooms":[{"name":"empty","num_participants":0},{"name":"lobby","num_participants":2}]}`, 200)
	defer ts.Close()

	c := NewClient(strings.Replace(ts.URL, "http://", "ws://", 1), "key", "secret", time.Second)
	require.NotNil(t, c)
	assert.True(t, c.Available(context.Background()))

	rooms, err := c.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lobby", ActiveRoom(rooms))
}

func TestUnavailableWhenEmptyOrFailing(t *testing.T) {
	empty := roomServer(t, `{"rooms":[{"name":"a","numParticipants":0}]}`, 200)
	defer empty.Close()
	assert.False(t, NewClient(empty.URL, "key", "secret", time.Second).Available(context.Background()))

	failing := roomServer(t, `{}`, 401)
	defer failing.Close()
	assert.False(t, NewClient(failing.URL, "key", "secret", time.Second).Available(context.Background()))

	var none *Client
	assert.False(t, none.Available(context.Background()))
	assert.Nil(t, NewClient("", "key", "secret", time.Second))
}

func TestHTTPBase(t *testing.T) {
	assert.Equal(t, "https://lk.example.com", httpBase("wss://lk.example.com/"))
	assert.Equal(t, "http://localhost:7880", httpBase("ws://localhost:7880"))
	assert.Equal(t, "http://x", httpBase("http://x"))
}

func TestUnsupportedDelegate(t *testing.T) {
	_, err := Unsupported{}.AskVoiceQuestion(context.Background(), "q", "", time.Second)
	assert.ErrorIs(t, err, ErrUnsupported)
}
