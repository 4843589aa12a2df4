package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-mcp-lab/internal/mcp"
	"github.com/voice-mcp-lab/internal/metrics"
)

type echoArgs struct {
	Message string `json:"message"`
}

func newTestServer(t *testing.T) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	m := metrics.New("test")
	server := sdk.NewServer(&sdk.Implementation{Name: "voice-mcp", Version: "test"}, nil)
	sdk.AddTool(server, &sdk.Tool{Name: "echo"}, func(ctx context.Context, _ *sdk.CallToolRequest, a echoArgs) (*sdk.CallToolResult, any, error) {
		m.ToolCall("echo")
		return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: a.Message}}}, nil, nil
	})
	ts := httptest.NewServer(New(server, m, "test").Router())
	t.Cleanup(ts.Close)
	return ts, m
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	res, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestMetricsAfterWebSocketCall(t *testing.T) {
	ts, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := mcp.NewClientWrapper("httpapi-test", "test")
	if err := client.ConnectWebSocket(ctx, ts.URL+"/mcp/ws"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	out, err := client.CallText(ctx, "echo", map[string]any{"message": "ping"})
	if err != nil || out != "ping" {
		t.Fatalf("echo = %q, %v", out, err)
	}

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request error = %v", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), `test_tool_calls_total{tool="echo"} 1`) {
		t.Fatalf("tool call counter missing from exposition:\n%s", b)
	}
}

func TestUnknownRoute(t *testing.T) {
	ts, _ := newTestServer(t)
	res, err := http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}
