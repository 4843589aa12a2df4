// Command voicemcp is a voice conversation server for MCP clients.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voice-mcp-lab/internal/app"
	"github.com/voice-mcp-lab/internal/config"
	"github.com/voice-mcp-lab/internal/logging"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "voicemcp",
	Short:         "Voice conversations for MCP clients",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `voicemcp speaks to the user through text-to-speech, listens on the
microphone until they stop talking and returns the transcript. It serves
these turns as MCP tools over stdio or a websocket.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

func init() {
	rootCmd.AddCommand(newServeCmd(), newDevicesCmd(), newStatusCmd(), newConverseCmd(), newCallCmd())
}

// loadApp reads configuration and builds an initialized App. The caller
// closes it.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	err := rootCmd.Execute()
	_ = logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "voicemcp:", err)
		os.Exit(1)
	}
}
