// Command cmdserver is a minimal stdio MCP server used by the client tests.
package main

import (
	"context"
	"log"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type converseArgs struct {
	Message string `json:"message"`
}

func main() {
	server := sdk.NewServer(&sdk.Implementation{Name: "test-voice", Version: "1.0.0"}, nil)
	sdk.AddTool(server, &sdk.Tool{Name: "converse", Description: "pretend to speak"}, func(ctx context.Context, req *sdk.CallToolRequest, args converseArgs) (*sdk.CallToolResult, any, error) {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: "spoke: " + args.Message}},
		}, nil, nil
	})
	if err := server.Run(context.Background(), &sdk.StdioTransport{}); err != nil {
		log.Printf("server exited: %v", err)
	}
}
