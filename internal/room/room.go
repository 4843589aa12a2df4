// Package room checks whether a LiveKit room has someone in it and defines
// how a turn is handed to a room transport.
package room

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voice-mcp-lab/internal/logging"
)

const listRoomsPath = "/twirp/livekit.RoomService/ListRooms"

// ErrUnsupported is returned by the default delegate.
var ErrUnsupported = errors.New("room transport is not supported in this build")

// Room is the subset of a LiveKit room the probe reads.
type Room struct {
	Name            string `json:"name"`
	NumParticipants int    `json:"num_participants"`
}

// Client talks to the LiveKit RoomService over Twirp JSON.
type Client struct {
	URL       string
	APIKey    string
	APISecret string
	HTTP      *http.Client
	now       func() time.Time
}

// NewClient returns nil when url or credentials are missing, which makes the
// room transport unavailable.
func NewClient(url, apiKey, apiSecret string, timeout time.Duration) *Client {
	if url == "" || apiKey == "" || apiSecret == "" {
		return nil
	}
	return &Client{URL: url, APIKey: apiKey, APISecret: apiSecret, HTTP: &http.Client{Timeout: timeout}, now: time.Now}
}

type videoGrant struct {
	RoomList bool `json:"roomList,omitempty"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Video videoGrant `json:"video"`
}

// token signs a short-lived HS256 access token with the roomList grant.
func (c *Client) token() (string, error) {
	now := c.now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.APIKey,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
		Video: videoGrant{RoomList: true},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.APISecret))
}

// httpBase maps ws(s) URLs to their http(s) equivalents.
func httpBase(u string) string {
	u = strings.TrimRight(u, "/")
	switch {
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	}
	return u
}

// ListRooms returns every room on the server.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	tok, err := c.token()
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpBase(c.URL)+listRoomsPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: status %d", resp.StatusCode)
	}
	var out struct {
		Rooms []struct {
			Name                 string `json:"name"`
			NumParticipants      int    `json:"num_participants"`
			NumParticipantsCamel int    `json:"numParticipants"`
		} `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	rooms := make([]Room, 0, len(out.Rooms))
	for _, r := range out.Rooms {
		rooms = append(rooms, Room{Name: r.Name, NumParticipants: max(r.NumParticipants, r.NumParticipantsCamel)})
	}
	return rooms, nil
}

// Available reports whether some room has at least one participant. Any
// error means unavailable.
func (c *Client) Available(ctx context.Context) bool {
	if c == nil {
		return false
	}
	rooms, err := c.ListRooms(ctx)
	if err != nil {
		logging.Debugw("room: transport not available", "err", err)
		return false
	}
	return ActiveRoom(rooms) != ""
}

// ActiveRoom returns the first room with participants, or "".
func ActiveRoom(rooms []Room) string {
	for _, r := range rooms {
		if r.NumParticipants > 0 {
			return r.Name
		}
	}
	return ""
}

// Delegate runs a whole turn over the room transport.
type Delegate interface {
	AskVoiceQuestion(ctx context.Context, question, roomName string, timeout time.Duration) (string, error)
}

// Unsupported is the default Delegate.
type Unsupported struct{}

func (Unsupported) AskVoiceQuestion(context.Context, string, string, time.Duration) (string, error) {
	return "", ErrUnsupported
}
