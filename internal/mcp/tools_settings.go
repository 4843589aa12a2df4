package mcp

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-mcp-lab/internal/logging"
	"github.com/voice-mcp-lab/internal/provider"
	"github.com/voice-mcp-lab/internal/settings"
)

type providerArgs struct {
	Provider string `json:"provider"`
}

type voiceArgs struct {
	Voice string `json:"voice" jsonschema:"Voice name, e.g. nova or alloy for OpenAI, af_sky for Kokoro"`
}

type timeoutArgs struct {
	Timeout float64 `json:"timeout" jsonschema:"Seconds of silence that end a recording"`
}

type durationArgs struct {
	Duration float64 `json:"duration" jsonschema:"Maximum seconds to listen"`
}

type feedbackArgs struct {
	Feedback string `json:"feedback" jsonschema:"chime, voice, both or none"`
}

type allowArgs struct {
	Allow bool `json:"allow"`
}

type settingArgs struct {
	Key   string `json:"key" jsonschema:"Setting name as shown by get_voice_settings, e.g. silence_timeout"`
	Value string `json:"value"`
}

type noArgs struct{}

func orAuto(v string) string {
	if v == "" {
		return "auto"
	}
	return v
}

// FormatSettings renders the saved record for humans.
func FormatSettings(vs settings.VoiceSettings) string {
	var b strings.Builder
	b.WriteString("🎙️ CURRENT VOICE SETTINGS\n")
	b.WriteString(strings.Repeat("=", 50) + "\n")
	b.WriteString("\n🔊 TEXT-TO-SPEECH:\n")
	fmt.Fprintf(&b, "  Provider: %s\n", orAuto(vs.TTSProvider))
	fmt.Fprintf(&b, "  Voice: %s\n", orAuto(vs.TTSVoice))
	fmt.Fprintf(&b, "  Model: %s\n", orAuto(vs.TTSModel))
	b.WriteString("\n🗣️ SPEECH-TO-TEXT:\n")
	fmt.Fprintf(&b, "  Provider: %s\n", orAuto(vs.STTProvider))
	fmt.Fprintf(&b, "  Model: %s\n", orAuto(vs.STTModel))
	b.WriteString("\n⏱️ CONVERSATION:\n")
	fmt.Fprintf(&b, "  Silence timeout: %.1fs\n", vs.SilenceTimeout)
	fmt.Fprintf(&b, "  Max listen duration: %.1fs\n", vs.ListenDuration)
	b.WriteString("\n🔧 AUDIO & OPTIONS:\n")
	fmt.Fprintf(&b, "  Audio feedback: %s\n", vs.AudioFeedback)
	fmt.Fprintf(&b, "  Allow emotions: %t\n", vs.AllowEmotions)
	fmt.Fprintf(&b, "  Auto-start Kokoro: %t\n", vs.AutoStartKokoro)
	fmt.Fprintf(&b, "  Prefer local: %t", vs.PreferLocal)
	if ts := vs.LastUpdated; ts != "" {
		if len(ts) > 19 {
			ts = ts[:19]
		}
		fmt.Fprintf(&b, "\n\n📅 Last updated: %s", ts)
	}
	return b.String()
}

func registerSettingsTools(s *sdk.Server, d Deps) {
	svc, m := d.Settings, d.Metrics

	update := func(ctx context.Context, values map[string]any, ok, failed string) string {
		if err := svc.UpdateMany(values); err != nil {
			logging.WarnwCtx(ctx, "mcp: settings update failed", "err", err)
			return fmt.Sprintf("❌ %s: %v", failed, err)
		}
		return ok
	}

	addTool(s, m, &sdk.Tool{Name: "get_voice_settings", Description: "Show the current voice settings."},
		func(ctx context.Context, _ noArgs) string {
			vs, err := svc.Load()
			if err != nil {
				return fmt.Sprintf("❌ Failed to load settings: %v", err)
			}
			return FormatSettings(vs)
		})

	addTool(s, m, &sdk.Tool{Name: "set_tts_provider", Description: `Set the text-to-speech provider: "openai", "kokoro" or "gemini".`},
		func(ctx context.Context, a providerArgs) string {
			switch a.Provider {
			case "openai", "kokoro", "gemini":
			default:
				return "❌ Invalid TTS provider. Use 'openai', 'kokoro' or 'gemini'."
			}
			return update(ctx, map[string]any{"tts_provider": a.Provider}, "✅ TTS provider set to: "+a.Provider, "Failed to update TTS provider")
		})

	addTool(s, m, &sdk.Tool{Name: "set_tts_voice", Description: "Set the text-to-speech voice."},
		func(ctx context.Context, a voiceArgs) string {
			return update(ctx, map[string]any{"tts_voice": a.Voice}, "✅ TTS voice set to: "+a.Voice, "Failed to update TTS voice")
		})

	addTool(s, m, &sdk.Tool{Name: "set_stt_provider", Description: `Set the speech-to-text provider: "openai" for the API or "local" for Whisper.cpp.`},
		func(ctx context.Context, a providerArgs) string {
			if a.Provider != "openai" && a.Provider != "local" {
				return "❌ Invalid STT provider. Use 'openai' or 'local'."
			}
			return update(ctx, map[string]any{"stt_provider": a.Provider}, "✅ STT provider set to: "+a.Provider, "Failed to update STT provider")
		})

	addTool(s, m, &sdk.Tool{Name: "set_silence_timeout", Description: "Set how many seconds of silence end a recording."},
		func(ctx context.Context, a timeoutArgs) string {
			if a.Timeout < 0.1 || a.Timeout > 60 {
				return "❌ Silence timeout must be between 0.1 and 60 seconds."
			}
			return update(ctx, map[string]any{"silence_timeout": a.Timeout}, fmt.Sprintf("✅ Silence timeout set to: %gs", a.Timeout), "Failed to update silence timeout")
		})

	addTool(s, m, &sdk.Tool{Name: "set_listen_duration", Description: "Set the maximum listen duration in seconds."},
		func(ctx context.Context, a durationArgs) string {
			if a.Duration < 5 || a.Duration > 600 {
				return "❌ Listen duration must be between 5 and 600 seconds."
			}
			return update(ctx, map[string]any{"listen_duration": a.Duration}, fmt.Sprintf("✅ Listen duration set to: %gs", a.Duration), "Failed to update listen duration")
		})

	addTool(s, m, &sdk.Tool{Name: "set_audio_feedback", Description: `Set the listening cue type: "chime", "voice", "both" or "none".`},
		func(ctx context.Context, a feedbackArgs) string {
			switch a.Feedback {
			case settings.FeedbackChime, settings.FeedbackVoice, settings.FeedbackBoth, settings.FeedbackNone:
			default:
				return "❌ Invalid audio feedback. Use 'chime', 'voice', 'both', or 'none'."
			}
			return update(ctx, map[string]any{"audio_feedback": a.Feedback}, "✅ Audio feedback set to: "+a.Feedback, "Failed to update audio feedback")
		})

	addTool(s, m, &sdk.Tool{Name: "set_allow_emotions", Description: "Enable or disable emotional speech (OpenAI gpt-4o-mini-tts only)."},
		func(ctx context.Context, a allowArgs) string {
			status := "disabled"
			if a.Allow {
				status = "enabled"
			}
			return update(ctx, map[string]any{"allow_emotions": a.Allow}, "✅ Emotional TTS "+status, "Failed to update emotion setting")
		})

	addTool(s, m, &sdk.Tool{Name: "set_voice_setting", Description: "Set any voice setting by name."},
		func(ctx context.Context, a settingArgs) string {
			return update(ctx, map[string]any{a.Key: a.Value}, fmt.Sprintf("✅ %s set to: %s", a.Key, a.Value), "Failed to update "+a.Key)
		})

	addTool(s, m, &sdk.Tool{Name: "get_available_voices", Description: "List the voices of each TTS provider."},
		func(ctx context.Context, _ noArgs) string {
			return formatAvailableVoices(d.Registry)
		})

	addTool(s, m, &sdk.Tool{Name: "reset_voice_settings", Description: "Reset all voice settings to their defaults."},
		func(ctx context.Context, _ noArgs) string {
			if err := svc.Reset(); err != nil {
				logging.ErrorwCtx(ctx, "mcp: settings reset failed", "err", err)
				return fmt.Sprintf("❌ Failed to reset settings: %v", err)
			}
			return "✅ Voice settings reset to defaults."
		})

	addTool(s, m, &sdk.Tool{Name: "quick_setup_local", Description: "Use local processing: Kokoro TTS and Whisper.cpp STT."},
		func(ctx context.Context, _ noArgs) string {
			return update(ctx, map[string]any{
				"tts_provider":      "kokoro",
				"tts_voice":         "af_sky",
				"stt_provider":      "local",
				"auto_start_kokoro": true,
				"prefer_local":      true,
			}, "✅ QUICK SETUP: Local processing configured (Kokoro TTS + Whisper STT)", "Failed to setup local configuration")
		})

	addTool(s, m, &sdk.Tool{Name: "quick_setup_cloud", Description: "Use cloud processing: OpenAI TTS and STT."},
		func(ctx context.Context, _ noArgs) string {
			return update(ctx, map[string]any{
				"tts_provider":   "openai",
				"tts_voice":      "nova",
				"stt_provider":   "openai",
				"allow_emotions": true,
				"prefer_local":   false,
			}, "✅ QUICK SETUP: Cloud processing configured (OpenAI TTS + STT)", "Failed to setup cloud configuration")
		})

	addTool(s, m, &sdk.Tool{Name: "quick_setup_hybrid", Description: "Use OpenAI TTS with local Whisper.cpp STT."},
		func(ctx context.Context, _ noArgs) string {
			return update(ctx, map[string]any{
				"tts_provider":   "openai",
				"tts_voice":      "nova",
				"stt_provider":   "local",
				"allow_emotions": true,
				"prefer_local":   true,
			}, "✅ QUICK SETUP: Hybrid processing configured (OpenAI TTS + Local Whisper STT)", "Failed to setup hybrid configuration")
		})
}

func formatAvailableVoices(reg *provider.Registry) string {
	var b strings.Builder
	b.WriteString("🎵 AVAILABLE VOICES\n")
	b.WriteString(strings.Repeat("=", 40) + "\n")
	for _, d := range reg.ListByModality(provider.Synthesis) {
		label := strings.ToUpper(d.Name)
		if d.Local {
			label += " (Local)"
		}
		fmt.Fprintf(&b, "\n%s:\n", label)
		for _, v := range d.Voices {
			fmt.Fprintf(&b, "  • %s\n", v)
		}
	}
	b.WriteString("\n💡 USAGE:\n")
	b.WriteString("Use set_tts_voice('voice_name') to change voice\n")
	b.WriteString("Use set_tts_provider('openai', 'kokoro' or 'gemini') to change provider")
	return b.String()
}
