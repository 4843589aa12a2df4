package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/voice-mcp-lab/internal/httpapi"
	"github.com/voice-mcp-lab/internal/logging"
	"github.com/voice-mcp-lab/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var (
		httpAddr string
		stdio    bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the voice tools over stdio and optionally HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if httpAddr == "" {
				httpAddr = a.Config.HTTPAddr
			}
			if !stdio && httpAddr == "" {
				return errors.New("nothing to serve: pass --http or --stdio")
			}
			server := a.MCPServer(version)

			g, gctx := errgroup.WithContext(ctx)
			if httpAddr != "" {
				api := httpapi.New(server, a.Metrics, version)
				g.Go(func() error { return api.ListenAndServe(httpAddr) })
				g.Go(func() error {
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return api.Shutdown(sctx)
				})
			}
			if stdio {
				g.Go(func() error {
					err := mcp.ServeStdio(gctx, server)
					logging.Infow("serve: stdio session ended", "err", err)
					// the client hanging up ends the process
					stop()
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				})
			}
			logging.Infow("serve: started", "http", httpAddr, "stdio", stdio, "version", version)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "also serve /health, /metrics and /mcp/ws on this address (default VOICE_MCP_HTTP_ADDR)")
	cmd.Flags().BoolVar(&stdio, "stdio", true, "serve MCP on stdin/stdout")
	return cmd
}
