// Package mcp exposes the voice tools and audio resources over the Model
// Context Protocol and provides a client for calling them.
package mcp

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-mcp-lab/internal/audio"
	"github.com/voice-mcp-lab/internal/logging"
	"github.com/voice-mcp-lab/internal/metrics"
	"github.com/voice-mcp-lab/internal/provider"
	"github.com/voice-mcp-lab/internal/settings"
	"github.com/voice-mcp-lab/internal/turn"
	"github.com/voice-mcp-lab/internal/voice"
)

const ServerName = "voice-mcp"

// Conversation runs voice turns.
type Conversation interface {
	Run(ctx context.Context, req turn.Request) turn.Result
	VoiceChat(ctx context.Context, req turn.ChatRequest) string
}

// Availability probes backends for the status tool.
type Availability interface {
	ProbeAll(ctx context.Context, ds []provider.Descriptor, timeout time.Duration) map[provider.Backend]bool
}

// DeviceLister enumerates audio devices.
type DeviceLister interface {
	Devices() ([]audio.DeviceInfo, error)
}

// Deps is everything the tools reach into. Nil Archive means audio saving
// is off; nil Devices reports no devices.
type Deps struct {
	Turns        Conversation
	Settings     *settings.Service
	Registry     *provider.Registry
	Prober       Availability
	ProbeTimeout time.Duration
	Devices      DeviceLister
	Archive      *voice.Archive
	Metrics      *metrics.Metrics
	LiveKitURL   string
	Version      string
}

// NewServer builds the MCP server with every tool and resource registered.
func NewServer(d Deps) *sdk.Server {
	if d.Version == "" {
		d.Version = "dev"
	}
	s := sdk.NewServer(&sdk.Implementation{Name: ServerName, Version: d.Version}, nil)
	registerConversationTools(s, d)
	registerSettingsTools(s, d)
	registerStatusTools(s, d)
	registerAudioResources(s, d)
	return s
}

// addTool registers fn under tool, counting calls and tagging the log
// context. Tools always answer with text.
func addTool[In any](s *sdk.Server, m *metrics.Metrics, tool *sdk.Tool, fn func(context.Context, In) string) {
	sdk.AddTool(s, tool, func(ctx context.Context, _ *sdk.CallToolRequest, in In) (*sdk.CallToolResult, any, error) {
		m.ToolCall(tool.Name)
		ctx = logging.WithFields(ctx, "tool", tool.Name)
		logging.DebugwCtx(ctx, "mcp: tool called")
		return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: fn(ctx, in)}}}, nil, nil
	})
}

// WebSocketHandler upgrades requests and serves one MCP session per
// connection until the peer goes away.
func WebSocketHandler(server *sdk.Server) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp: websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
			return
		}
		go func() {
			session, err := server.Connect(context.Background(), NewWebSocketTransport(conn), nil)
			if err != nil {
				logging.Errorw("mcp: server connect failed", "err", err)
				_ = conn.Close()
				return
			}
			logging.Infow("mcp: websocket session opened", "remote", r.RemoteAddr)
			if err := session.Wait(); err != nil {
				logging.Debugw("mcp: websocket session ended", "err", err)
			}
		}()
	})
}

// ServeStdio runs server over stdin/stdout until ctx ends or the client
// disconnects.
func ServeStdio(ctx context.Context, server *sdk.Server) error {
	return server.Run(ctx, &sdk.StdioTransport{})
}
