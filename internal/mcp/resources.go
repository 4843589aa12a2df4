package mcp

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-mcp-lab/internal/voice"
)

const (
	audioFilesURI     = "audio://files"
	audioFileTemplate = "audio://file/{filename}"
	audioFilePrefix   = "audio://file/"

	savingDisabled = "Audio saving is not enabled. Set VOICE_MCP_SAVE_AUDIO=1 to enable."
)

func registerAudioResources(s *sdk.Server, d Deps) {
	s.AddResource(&sdk.Resource{
		URI:         audioFilesURI,
		Name:        "audio_files",
		Description: "Saved audio files, when audio saving is enabled.",
		MIMEType:    "text/plain",
	}, func(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
		return textResource(req.Params.URI, listAudioFiles(d.Archive)), nil
	})

	s.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: audioFileTemplate,
		Name:        "audio_file",
		Description: "Metadata about one saved audio file.",
		MIMEType:    "text/plain",
	}, func(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
		return textResource(req.Params.URI, describeAudioFile(d.Archive, req.Params.URI)), nil
	})
}

func textResource(uri, text string) *sdk.ReadResourceResult {
	return &sdk.ReadResourceResult{Contents: []*sdk.ResourceContents{{URI: uri, MIMEType: "text/plain", Text: text}}}
}

func listAudioFiles(a *voice.Archive) string {
	if a == nil {
		return savingDisabled
	}
	files, err := a.List()
	if err != nil {
		return fmt.Sprintf("Could not list audio files: %v", err)
	}
	if len(files) == 0 {
		return "No audio files found."
	}
	lines := make([]string, len(files))
	for i, f := range files {
		lines[i] = fmt.Sprintf("- %s (%.1f KB)", f.Name, float64(f.Size)/1024)
	}
	return fmt.Sprintf("Saved audio files in %s:\n%s", a.Dir, strings.Join(lines, "\n"))
}

func describeAudioFile(a *voice.Archive, uri string) string {
	if a == nil {
		return savingDisabled
	}
	name, ok := strings.CutPrefix(uri, audioFilePrefix)
	if !ok || name == "" {
		return "Invalid URI format. Expected: " + audioFileTemplate
	}
	f, err := a.Stat(name)
	if err != nil {
		return "Audio file not found: " + name
	}
	return fmt.Sprintf("Audio file: %s\nSize: %.1f KB\nModified: %s\nPath: %s",
		f.Name, float64(f.Size)/1024, f.ModTime.UTC().Format("2006-01-02T15:04:05Z"), f.Path)
}
