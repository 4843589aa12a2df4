package mcp

import (
	"context"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-mcp-lab/internal/turn"
)

type converseArgs struct {
	Message            string  `json:"message" jsonschema:"The message to speak"`
	WaitForResponse    *bool   `json:"wait_for_response,omitempty" jsonschema:"Listen for a spoken reply after speaking (default true)"`
	ListenDuration     float64 `json:"listen_duration,omitempty" jsonschema:"Maximum seconds to listen; 0 uses the saved setting"`
	Transport          string  `json:"transport,omitempty" jsonschema:"auto, local or livekit (default auto)"`
	RoomName           string  `json:"room_name,omitempty" jsonschema:"LiveKit room, auto-discovered when empty"`
	Timeout            float64 `json:"timeout,omitempty" jsonschema:"Seconds to wait for a LiveKit reply (default 60)"`
	Voice              string  `json:"voice,omitempty" jsonschema:"Override the TTS voice, e.g. nova or af_sky"`
	TTSProvider        string  `json:"tts_provider,omitempty" jsonschema:"openai, kokoro or gemini"`
	TTSModel           string  `json:"tts_model,omitempty" jsonschema:"e.g. tts-1, tts-1-hd, gpt-4o-mini-tts"`
	TTSInstructions    string  `json:"tts_instructions,omitempty" jsonschema:"Tone or style instructions for models that accept them"`
	AudioFeedback      *bool   `json:"audio_feedback,omitempty" jsonschema:"Play listening cues; false disables them for this call"`
	AudioFeedbackStyle string  `json:"audio_feedback_style,omitempty" jsonschema:"whisper or shout for voice cues"`
}

type askArgs struct {
	Question        string  `json:"question" jsonschema:"The question to ask"`
	Duration        float64 `json:"duration,omitempty" jsonschema:"Maximum seconds to listen; 0 uses the saved setting"`
	Voice           string  `json:"voice,omitempty" jsonschema:"Override the TTS voice"`
	TTSProvider     string  `json:"tts_provider,omitempty" jsonschema:"openai, kokoro or gemini"`
	TTSModel        string  `json:"tts_model,omitempty" jsonschema:"TTS model to use"`
	TTSInstructions string  `json:"tts_instructions,omitempty" jsonschema:"Tone or style instructions"`
}

type chatArgs struct {
	InitialMessage string  `json:"initial_message,omitempty" jsonschema:"Greeting that opens the chat"`
	MaxTurns       int     `json:"max_turns,omitempty" jsonschema:"Maximum number of turns (default 10)"`
	ListenDuration float64 `json:"listen_duration,omitempty" jsonschema:"Maximum seconds to listen per turn"`
	Voice          string  `json:"voice,omitempty" jsonschema:"Override the TTS voice"`
	TTSProvider    string  `json:"tts_provider,omitempty" jsonschema:"openai, kokoro or gemini"`
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func registerConversationTools(s *sdk.Server, d Deps) {
	addTool(s, d.Metrics, &sdk.Tool{
		Name: "converse",
		Description: "Have a voice conversation: speak a message and optionally listen for the response. " +
			"When wait_for_response is true the microphone is recorded and sent to the configured speech-to-text service.",
	}, func(ctx context.Context, a converseArgs) string {
		wait := true
		if a.WaitForResponse != nil {
			wait = *a.WaitForResponse
		}
		return d.Turns.Run(ctx, turn.Request{
			Message:         a.Message,
			WaitForResponse: wait,
			ListenDuration:  seconds(a.ListenDuration),
			Transport:       a.Transport,
			RoomName:        a.RoomName,
			Timeout:         seconds(a.Timeout),
			Voice:           a.Voice,
			TTSProvider:     a.TTSProvider,
			TTSModel:        a.TTSModel,
			TTSInstructions: a.TTSInstructions,
			AudioFeedback:   a.AudioFeedback,
			FeedbackStyle:   a.AudioFeedbackStyle,
		}).Message
	})

	addTool(s, d.Metrics, &sdk.Tool{
		Name:        "ask_voice_question",
		Description: "Ask a question out loud and listen for the answer.",
	}, func(ctx context.Context, a askArgs) string {
		return d.Turns.Run(ctx, turn.Request{
			Message:         a.Question,
			WaitForResponse: true,
			ListenDuration:  seconds(a.Duration),
			Voice:           a.Voice,
			TTSProvider:     a.TTSProvider,
			TTSModel:        a.TTSModel,
			TTSInstructions: a.TTSInstructions,
		}).Message
	})

	addTool(s, d.Metrics, &sdk.Tool{
		Name:        "voice_chat",
		Description: `Start an interactive voice chat. Say "goodbye", "exit" or "end chat" to stop.`,
	}, func(ctx context.Context, a chatArgs) string {
		if a.MaxTurns <= 0 {
			a.MaxTurns = 10
		}
		return d.Turns.VoiceChat(ctx, turn.ChatRequest{
			InitialMessage: a.InitialMessage,
			MaxTurns:       a.MaxTurns,
			ListenDuration: seconds(a.ListenDuration),
			Voice:          a.Voice,
			TTSProvider:    a.TTSProvider,
		})
	})
}
