package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/voice-mcp-lab/internal/mcp"
)

func newCallCmd() *cobra.Command {
	var (
		server  string
		command string
		wsURL   string
		timeout time.Duration
		list    bool
	)
	cmd := &cobra.Command{
		Use:   "call [TOOL key=value...]",
		Short: "Call a tool on a voice server",
		Long: `call connects to a server named in an mcpServers manifest (--server), a
command to spawn (--command) or a websocket endpoint (--url), then calls TOOL
with the given arguments. Values are parsed as JSON when possible.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !list && len(args) == 0 {
				return fmt.Errorf("tool name required")
			}
			ctx, stop := signalContext()
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			client := mcp.NewClientWrapper("voicemcp-call", version)
			if err := connect(ctx, client, server, command, wsURL); err != nil {
				return err
			}
			defer client.Close()

			if list {
				names, err := client.ToolNames(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
				return nil
			}
			toolArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}
			out, err := client.CallText(ctx, args[0], toolArgs)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "server name from the mcpServers manifest")
	cmd.Flags().StringVar(&command, "command", "", "server command to spawn, e.g. \"voicemcp serve\"")
	cmd.Flags().StringVar(&wsURL, "url", "", "websocket endpoint, e.g. ws://localhost:8765/mcp/ws")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall call timeout")
	cmd.Flags().BoolVar(&list, "list", false, "list the server's tools instead of calling one")
	return cmd
}

func connect(ctx context.Context, c *mcp.ClientWrapper, server, command, wsURL string) error {
	switch {
	case wsURL != "":
		return c.ConnectWebSocket(ctx, wsURL)
	case command != "":
		parts := strings.Fields(command)
		return c.ConnectCommand(ctx, parts[0], parts[0], parts[1:], nil)
	case server != "":
		m, err := mcp.LoadManifests()
		if err != nil {
			return err
		}
		cfg, ok := m.Servers[server]
		if !ok {
			return fmt.Errorf("server %q not found in %v", server, m.Sources)
		}
		if !cfg.EnabledValue() {
			return fmt.Errorf("server %q is disabled", server)
		}
		if cfg.Transport != nil && cfg.Transport.URL != "" {
			return c.ConnectWebSocket(ctx, cfg.Transport.URL)
		}
		return c.ConnectCommand(ctx, server, cfg.Command, cfg.Args, cfg.Env)
	default:
		return fmt.Errorf("one of --server, --command or --url is required")
	}
}

// parseArgs turns key=value pairs into tool arguments.
func parseArgs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}
