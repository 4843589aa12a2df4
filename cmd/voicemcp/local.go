package main

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/voice-mcp-lab/internal/app"
	"github.com/voice-mcp-lab/internal/mcp"
	"github.com/voice-mcp-lab/internal/turn"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input and output devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintln(cmd.OutOrStdout(), mcp.FormatDevices(a.Audio))
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider availability and effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			out, err := callInProcess(ctx, a, "voice_status", nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newConverseCmd() *cobra.Command {
	var (
		listen   bool
		voice    string
		provider string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "converse MESSAGE",
		Short: "Speak a message and optionally listen for the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			res := a.Turns.Run(ctx, turn.Request{
				Message:         args[0],
				WaitForResponse: listen,
				ListenDuration:  duration,
				Transport:       turn.TransportLocal,
				Voice:           voice,
				TTSProvider:     provider,
			})
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().BoolVar(&listen, "listen", false, "record and transcribe a reply")
	cmd.Flags().StringVar(&voice, "voice", "", "TTS voice override")
	cmd.Flags().StringVar(&provider, "provider", "", "TTS provider override (openai, kokoro, gemini)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "maximum listen time (default: saved setting)")
	return cmd
}

// callInProcess runs one tool against this process's own server over an
// in-memory transport.
func callInProcess(ctx context.Context, a *app.App, tool string, args map[string]any) (string, error) {
	ct, st := sdk.NewInMemoryTransports()
	session, err := a.MCPServer(version).Connect(ctx, st, nil)
	if err != nil {
		return "", err
	}
	defer session.Close()
	client := mcp.NewClientWrapper("voicemcp-cli", version)
	if err := client.ConnectTransport(ctx, ct); err != nil {
		return "", err
	}
	defer client.Close()
	return client.CallText(ctx, tool, args)
}
