package mcp

import (
	"context"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/voice-mcp-lab/internal/config"
	"github.com/voice-mcp-lab/internal/provider"
	"github.com/voice-mcp-lab/internal/settings"
)

func TestClientWrapperConnectWebSocket(t *testing.T) {
	turns := &fakeTurns{}
	server := NewServer(Deps{
		Turns:    turns,
		Settings: settings.NewService(filepath.Join(t.TempDir(), "s.json"), config.Config{}),
		Registry: provider.NewRegistry(),
	})
	srv := httptest.NewServer(WebSocketHandler(server))
	defer srv.Close()

	wrapper := NewClientWrapper("integration-client", "test")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// http scheme is rewritten to ws
	if err := wrapper.ConnectWebSocket(ctx, srv.URL+"/mcp/ws"); err != nil {
		t.Fatalf("ConnectWebSocket failed: %v", err)
	}
	t.Cleanup(func() { _ = wrapper.Close() })

	out, err := wrapper.CallText(ctx, "converse", map[string]any{"message": "hello", "wait_for_response": false})
	if err != nil {
		t.Fatalf("CallText failed: %v", err)
	}
	if !strings.HasPrefix(out, "✓ Message spoken successfully") {
		t.Fatalf("unexpected reply %q", out)
	}
	if len(turns.reqs) != 1 || turns.reqs[0].Message != "hello" {
		t.Fatalf("turn not dispatched: %+v", turns.reqs)
	}
}

func TestClientWrapperConnectCommand(t *testing.T) {
	binPath := buildCommandServer(t)

	wrapper := NewClientWrapper("integration-client", "test")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := wrapper.ConnectCommand(ctx, "cmd-server", binPath, nil, map[string]string{"LOG_LEVEL": "debug"}); err != nil {
		t.Fatalf("ConnectCommand failed: %v", err)
	}
	t.Cleanup(func() { _ = wrapper.Close() })

	out, err := wrapper.CallText(ctx, "converse", map[string]any{"message": "integration"})
	if err != nil {
		t.Fatalf("CallText failed: %v", err)
	}
	if out != "spoke: integration" {
		t.Fatalf("expected 'spoke: integration', got %q", out)
	}
}

func TestCallBeforeConnect(t *testing.T) {
	w := NewClientWrapper("c", "v")
	if _, err := w.CallText(context.Background(), "converse", nil); err != ErrNotConnected {
		t.Fatalf("want ErrNotConnected, got %v", err)
	}
}

func TestLoadManifestsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.json")
	manifest := `{"mcpServers":{"voice":{"command":"~/bin/voicemcp","args":["serve"]},"remote":{"transport":{"type":"ws","url":"ws://host/mcp/ws"},"enabled":false}}}`
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MCP_CONFIG_PATH", path)

	res, err := LoadManifests()
	if err != nil {
		t.Fatalf("LoadManifests: %v", err)
	}
	if got := strings.Join(res.Order, ","); got != "remote,voice" {
		t.Fatalf("order: want=remote,voice got=%s", got)
	}
	home, _ := os.UserHomeDir()
	if cmd := res.Servers["voice"].Command; cmd != filepath.Join(home, "bin", "voicemcp") {
		t.Fatalf("command not expanded: %s", cmd)
	}
	if res.Servers["remote"].EnabledValue() {
		t.Fatal("remote should be disabled")
	}
	if !res.Servers["voice"].EnabledValue() {
		t.Fatal("voice should default to enabled")
	}
}

func buildCommandServer(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds a helper binary")
	}
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to determine caller")
	}
	serverDir := filepath.Join(filepath.Dir(filename), "testdata", "cmdserver")

	binPath := filepath.Join(t.TempDir(), "cmdserver")
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = serverDir
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, output)
	}
	return binPath
}
