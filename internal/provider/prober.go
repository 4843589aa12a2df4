package provider

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voice-mcp-lab/internal/logging"
)

const DefaultProbeTimeout = 2 * time.Second

// Prober checks whether backends are reachable. Hosted backends are assumed
// up; only local ones cost a round trip.
type Prober struct {
	Client  *http.Client
	Timeout time.Duration
	// Observe, when set, receives every probe outcome.
	Observe func(b Backend, up bool)
}

// NewProber returns a prober with its own client.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{Client: &http.Client{}, Timeout: timeout}
}

// Probe reports whether d answers. Each attempt is bounded by timeout; a zero
// timeout uses the prober default. Errors never escape: anything that is not a
// healthy answer counts as down.
func (p *Prober) Probe(ctx context.Context, d Descriptor, timeout time.Duration) bool {
	if !d.Local {
		p.observe(d.Backend, true)
		return true
	}
	if timeout <= 0 {
		timeout = p.Timeout
	}
	attempts := []struct {
		url string
		ok  func(int) bool
	}{
		{d.BaseURL + "/models", is2xx},
		{d.BaseURL + "/health", is2xx},
		{d.BaseURL, func(code int) bool { return code < 500 }},
	}
	for _, a := range attempts {
		code, err := p.get(ctx, a.url, timeout)
		if err != nil {
			logging.Debugw("probe: attempt failed", "backend", d.ID(), "url", a.url, "err", err)
			continue
		}
		if a.ok(code) {
			logging.Debugw("probe: backend available", "backend", d.ID(), "url", a.url, "status", code)
			p.observe(d.Backend, true)
			return true
		}
	}
	logging.Debugw("probe: backend unavailable", "backend", d.ID(), "base_url", d.BaseURL)
	p.observe(d.Backend, false)
	return false
}

// ProbeAll probes ds concurrently. Probes never touch the audio device so
// they are free to overlap with each other and with running turns.
func (p *Prober) ProbeAll(ctx context.Context, ds []Descriptor, timeout time.Duration) map[Backend]bool {
	var mu sync.Mutex
	out := make(map[Backend]bool, len(ds))
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range ds {
		d := d
		g.Go(func() error {
			up := p.Probe(gctx, d, timeout)
			mu.Lock()
			out[d.Backend] = up
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Prober) get(ctx context.Context, url string, timeout time.Duration) (int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

func (p *Prober) observe(b Backend, up bool) {
	if p.Observe != nil {
		p.Observe(b, up)
	}
}

func is2xx(code int) bool { return code >= 200 && code < 300 }
