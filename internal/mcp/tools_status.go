package mcp

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-mcp-lab/internal/audio"
	"github.com/voice-mcp-lab/internal/logging"
	"github.com/voice-mcp-lab/internal/provider"
)

type listVoicesArgs struct {
	Provider string `json:"provider,omitempty" jsonschema:"Limit the listing to openai, kokoro or gemini"`
}

var openAIVoiceNotes = [][2]string{
	{"alloy", "Natural and conversational (default)"},
	{"echo", "Smooth and conversational"},
	{"fable", "British accent, authoritative"},
	{"onyx", "Deep and authoritative"},
	{"nova", "Warm and friendly"},
	{"shimmer", "Expressive and engaging"},
}

var kokoroVoiceNotes = [][2]string{
	{"af_sky", "Female - Natural and expressive (recommended)"},
	{"af_sarah", "Female - Warm and friendly"},
	{"am_adam", "Male - Clear and professional"},
	{"af_nicole", "Female - Energetic and upbeat"},
	{"am_michael", "Male - Deep and authoritative"},
	{"bf_emma", "British Female - Sophisticated accent"},
	{"bm_george", "British Male - Distinguished accent"},
}

func registerStatusTools(s *sdk.Server, d Deps) {
	addTool(s, d.Metrics, &sdk.Tool{Name: "check_audio_devices", Description: "List audio input and output devices."},
		func(ctx context.Context, _ noArgs) string {
			return FormatDevices(d.Devices)
		})

	addTool(s, d.Metrics, &sdk.Tool{
		Name:        "voice_status",
		Description: "Show provider availability, effective configuration and audio devices.",
	}, func(ctx context.Context, _ noArgs) string {
		return d.status(ctx)
	})

	addTool(s, d.Metrics, &sdk.Tool{Name: "list_tts_voices", Description: "List TTS voices with descriptions, optionally for one provider."},
		func(ctx context.Context, a listVoicesArgs) string {
			return formatVoiceCatalog(d.Registry, a.Provider)
		})
}

// FormatDevices lists devices the way check_audio_devices reports them.
func FormatDevices(l DeviceLister) string {
	if l == nil {
		return "Error listing audio devices: " + audio.ErrNoDevice.Error()
	}
	all, err := l.Devices()
	if err != nil {
		logging.Errorw("mcp: listing audio devices failed", "err", err)
		return "Error listing audio devices: " + err.Error()
	}
	if len(all) == 0 {
		return "Audio Devices:\n\nNo audio devices found."
	}
	var b strings.Builder
	b.WriteString("Audio Devices:\n")
	for _, dev := range all {
		if dev.DefaultInput {
			fmt.Fprintf(&b, "\nDefault Input: [%d] %s", dev.Index, dev.Name)
		}
	}
	for _, dev := range all {
		if dev.DefaultOutput {
			fmt.Fprintf(&b, "\nDefault Output: [%d] %s", dev.Index, dev.Name)
		}
	}
	b.WriteString("\n\nInput Devices:")
	for _, dev := range audio.InputDevices(all) {
		fmt.Fprintf(&b, "\n  [%d] %s (%d channels)", dev.Index, dev.Name, dev.MaxInputChannels)
	}
	b.WriteString("\n\nOutput Devices:")
	for _, dev := range audio.OutputDevices(all) {
		fmt.Fprintf(&b, "\n  [%d] %s (%d channels)", dev.Index, dev.Name, dev.MaxOutputChannels)
	}
	return b.String()
}

func (d Deps) status(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("Voice Service Status:\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")

	b.WriteString("\nProvider Status:\n")
	all := d.Registry.All()
	up := map[provider.Backend]bool{}
	if d.Prober != nil {
		up = d.Prober.ProbeAll(ctx, all, d.ProbeTimeout)
	}
	for _, desc := range all {
		for _, line := range providerStatusLines(desc, up[desc.Backend]) {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}

	vs, err := d.Settings.Load()
	if err != nil {
		logging.WarnwCtx(ctx, "mcp: settings unavailable for status", "err", err)
	}
	env := d.Settings.Environment()
	b.WriteString("\nConfiguration:\n")
	fmt.Fprintf(&b, "  TTS Voice: %s\n", orAuto(env.TTSVoice))
	fmt.Fprintf(&b, "  TTS Model: %s\n", orAuto(env.TTSModel))
	fmt.Fprintf(&b, "  STT Model: %s\n", orAuto(env.STTModel))
	fmt.Fprintf(&b, "  Prefer Local: %t\n", env.PreferLocal)
	fmt.Fprintf(&b, "  Allow Emotions: %t\n", env.AllowEmotions)
	fmt.Fprintf(&b, "  Auto-start Kokoro: %t\n", vs.AutoStartKokoro)
	fmt.Fprintf(&b, "  Audio Feedback: %s\n", vs.AudioFeedback)
	fmt.Fprintf(&b, "  Opus Compression: %t\n", audio.CompressionAvailable())
	fmt.Fprintf(&b, "  LiveKit URL: %s\n", d.LiveKitURL)

	if d.Devices == nil {
		b.WriteString("\nAudio Devices: Unable to query")
		return b.String()
	}
	devs, err := d.Devices.Devices()
	if err != nil || len(devs) == 0 {
		b.WriteString("\nAudio Devices: Unable to query")
		return b.String()
	}
	b.WriteString("\nAudio Devices:")
	for _, dev := range devs {
		if dev.DefaultInput {
			fmt.Fprintf(&b, "\n  Input: %s", dev.Name)
		}
	}
	for _, dev := range devs {
		if dev.DefaultOutput {
			fmt.Fprintf(&b, "\n  Output: %s", dev.Name)
		}
	}
	return b.String()
}

func providerStatusLines(d provider.Descriptor, available bool) []string {
	mark, state := "❌", "Unavailable"
	if available {
		mark, state = "✅", "Available"
	}
	kind := "TTS"
	if d.Modality == provider.Recognition {
		kind = "STT"
	}
	local := "No"
	if d.Local {
		local = "Yes"
	}
	lines := []string{
		fmt.Sprintf("%s %s (%s)", mark, d.Name, state),
		"   Type: " + kind,
		"   Local: " + local,
	}
	if d.Modality == provider.Synthesis && len(d.Voices) > 0 {
		lines = append(lines, fmt.Sprintf("   Voices: %d", len(d.Voices)))
	}
	if len(d.Capabilities) > 0 {
		caps := make([]string, len(d.Capabilities))
		for i, c := range d.Capabilities {
			caps[i] = string(c)
		}
		lines = append(lines, "   Features: "+strings.Join(caps, ", "))
	}
	return lines
}

func formatVoiceCatalog(reg *provider.Registry, only string) string {
	backends := []provider.Backend{provider.OpenAI, provider.Kokoro, provider.Gemini}
	if only != "" {
		b, ok := provider.ParseBackend(only)
		if !ok || reg.Descriptor(b).Modality != provider.Synthesis {
			return fmt.Sprintf("Error: Unknown provider '%s'. Valid options: 'openai', 'kokoro', 'gemini'", only)
		}
		backends = []provider.Backend{b}
	}

	var b strings.Builder
	b.WriteString("🔊 AVAILABLE TTS VOICES\n")
	b.WriteString(strings.Repeat("=", 40))
	for _, backend := range backends {
		desc := reg.Descriptor(backend)
		switch backend {
		case provider.OpenAI:
			b.WriteString("\n\n📢 OpenAI Voices\n" + strings.Repeat("-", 40))
			b.WriteString("\n\n**Standard Voices** (tts-1, tts-1-hd):")
			for _, v := range desc.Voices {
				fmt.Fprintf(&b, "\n  • %s", v)
			}
			b.WriteString("\n\n**Enhanced Voices** (gpt-4o-mini-tts):")
			for _, v := range []string{"alloy", "echo", "shimmer"} {
				fmt.Fprintf(&b, "\n  • %s - supports emotional expression", v)
			}
			b.WriteString("\n\n**Voice Characteristics**:")
			for _, n := range openAIVoiceNotes {
				fmt.Fprintf(&b, "\n  • %s: %s", n[0], n[1])
			}
		case provider.Kokoro:
			b.WriteString("\n\n🎭 Kokoro Voices\n" + strings.Repeat("-", 40))
			b.WriteString("\n\n**Available Voices**:")
			for _, n := range kokoroVoiceNotes {
				fmt.Fprintf(&b, "\n  • %s: %s", n[0], n[1])
			}
			b.WriteString("\n\n**Voice Naming**:")
			b.WriteString("\n  • af_ = American Female\n  • am_ = American Male\n  • bf_ = British Female\n  • bm_ = British Male")
		case provider.Gemini:
			b.WriteString("\n\n✨ Gemini Voices\n" + strings.Repeat("-", 40))
			fmt.Fprintf(&b, "\n\n**Prebuilt Voices** (%s):", strings.Join(desc.Models, ", "))
			b.WriteString("\n  " + strings.Join(desc.Voices, ", "))
		}
	}
	return b.String()
}
