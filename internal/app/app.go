// Package app wires configuration, settings, backends, audio and the turn
// orchestrator into one process-wide object.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/voice-mcp-lab/internal/audio"
	"github.com/voice-mcp-lab/internal/config"
	"github.com/voice-mcp-lab/internal/logging"
	"github.com/voice-mcp-lab/internal/mcp"
	"github.com/voice-mcp-lab/internal/metrics"
	"github.com/voice-mcp-lab/internal/provider"
	"github.com/voice-mcp-lab/internal/room"
	"github.com/voice-mcp-lab/internal/settings"
	"github.com/voice-mcp-lab/internal/speech"
	"github.com/voice-mcp-lab/internal/turn"
	"github.com/voice-mcp-lab/internal/voice"
)

const cleanInterval = time.Hour

// App owns every long-lived component.
type App struct {
	Config   config.Config
	Metrics  *metrics.Metrics
	Registry *provider.Registry
	Prober   *provider.Prober
	Resolver *provider.Resolver
	Settings *settings.Service
	Audio    *audio.System
	Engine   *audio.Engine
	Clients  *speech.Clients
	Archive  *voice.Archive
	Debug    *voice.Archive
	Pipeline *voice.Pipeline
	Feedback *voice.Feedback
	Room     *room.Client
	Turns    *turn.Orchestrator

	initOnce sync.Once
	initErr  error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the component graph. Nothing touches the network or the
// settings file until Init.
func New(cfg config.Config) (*App, error) {
	sys, err := audio.OpenSystem()
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}

	a := &App{Config: cfg, Audio: sys, Metrics: metrics.New(metrics.Namespace)}
	a.Registry = provider.NewRegistry(provider.WithBaseURL(provider.Kokoro, cfg.KokoroBaseURL))
	a.Prober = provider.NewProber(cfg.ProbeTimeout())
	a.Prober.Observe = func(b provider.Backend, up bool) { a.Metrics.ObserveProbe(b.String(), up) }
	a.Resolver = provider.NewResolver(a.Registry, a.Prober, cfg.ProbeTimeout())
	a.Settings = settings.NewService(cfg.SettingsPath, cfg)

	a.Engine = audio.NewEngine(sys,
		audio.WithSampleRate(cfg.SampleRate),
		audio.WithChannels(cfg.Channels),
		audio.WithThreshold(int(cfg.SilenceThreshold)),
	)
	a.Clients = speech.NewClients(speech.ClientOptions{
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		GeminiAPIKey: cfg.GeminiAPIKey,
		Timeout:      cfg.HTTPTimeout(),
	})
	if cfg.SaveAudio {
		a.Archive = voice.NewArchive(cfg.AudioDir)
	}
	if cfg.Debug {
		a.Debug = voice.NewArchive(cfg.DebugDir)
	}
	a.Pipeline = &voice.Pipeline{
		Clients: a.Clients,
		Player:  voice.DevicePlayer{Out: sys},
		Archive: a.Archive,
		Debug:   a.Debug,
	}
	a.Feedback = &voice.Feedback{
		Mode:       cfg.AudioFeedback,
		Style:      cfg.FeedbackStyle,
		Voice:      cfg.FeedbackVoice,
		Endpoint:   config.DefaultOpenAIBaseURL,
		Out:        sys,
		Speaker:    a.Pipeline,
		SampleRate: cfg.SampleRate,
	}
	a.Room = room.NewClient(cfg.LiveKitURL, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.ProbeTimeout())

	a.Turns = &turn.Orchestrator{
		Settings:      a.Settings,
		Resolver:      a.Resolver,
		Speaker:       a.Pipeline,
		Capture:       a.Engine,
		Recognizers:   a.Clients,
		Cues:          a.Feedback,
		Delegate:      room.Unsupported{},
		Lock:          turn.NewDeviceLock(a.Metrics.SetWaiters),
		Metrics:       a.Metrics,
		Archive:       a.Archive,
		Debug:         a.Debug,
		FeedbackStyle: cfg.FeedbackStyle,
		UploadFormat:  cfg.UploadFormat,
	}
	// a nil *room.Client must not become a non-nil interface
	if a.Room != nil {
		a.Turns.Room = a.Room
	}
	return a, nil
}

// Init loads and applies saved settings, probes local backends and starts
// the archive cleaners. It runs once; later calls return the first result.
func (a *App) Init(ctx context.Context) error {
	a.initOnce.Do(func() { a.initErr = a.init(ctx) })
	return a.initErr
}

func (a *App) init(ctx context.Context) error {
	vs, err := a.Settings.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if _, err := a.Settings.Apply(); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}

	var local []provider.Descriptor
	for _, d := range a.Registry.All() {
		if d.Local {
			local = append(local, d)
		}
	}
	up := a.Prober.ProbeAll(ctx, local, a.Config.ProbeTimeout())
	for _, d := range local {
		logging.Infow("app: local backend", "backend", d.ID(), "available", up[d.Backend], "base_url", d.BaseURL)
	}
	if vs.AutoStartKokoro && !up[provider.Kokoro] {
		logging.Infow("app: auto_start_kokoro is set but Kokoro is not running; start it externally", "base_url", a.Registry.Descriptor(provider.Kokoro).BaseURL)
	}

	cctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	retention := time.Duration(a.Config.AudioRetentionHours) * time.Hour
	for _, arch := range []*voice.Archive{a.Archive, a.Debug} {
		if arch == nil {
			continue
		}
		a.wg.Add(1)
		arch.StartCleaner(cctx, &a.wg, retention, cleanInterval, a.Config.AudioMaxFiles)
	}
	logging.Infow("app: initialized",
		"settings", a.Settings.Path(),
		"save_audio", a.Archive != nil,
		"debug", a.Debug != nil,
		"compression", audio.CompressionAvailable(),
	)
	return nil
}

// MCPServer builds the tool server over this app.
func (a *App) MCPServer(version string) *sdk.Server {
	return mcp.NewServer(mcp.Deps{
		Turns:        a.Turns,
		Settings:     a.Settings,
		Registry:     a.Registry,
		Prober:       a.Prober,
		ProbeTimeout: a.Config.ProbeTimeout(),
		Devices:      a.Audio,
		Archive:      a.Archive,
		Metrics:      a.Metrics,
		LiveKitURL:   a.Config.LiveKitURL,
		Version:      version,
	})
}

// Close stops the cleaners and releases the audio system.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	var errs []error
	if a.Audio != nil {
		errs = append(errs, a.Audio.Close())
	}
	return errors.Join(errs...)
}
