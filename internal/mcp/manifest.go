package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Manifest is the mcpServers file format shared with desktop MCP clients.
type Manifest struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig says how to reach one server: a command to spawn, or a
// websocket transport.
type ServerConfig struct {
	Transport *TransportConfig  `json:"transport,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Enabled   *bool             `json:"enabled,omitempty"`
}

type TransportConfig struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

func (s ServerConfig) EnabledValue() bool {
	return s.Enabled == nil || *s.Enabled
}

// Servers is a merged manifest.
type Servers struct {
	Servers map[string]ServerConfig
	Order   []string
	Sources []string
}

// LoadManifests merges the workspace manifest (.voice-mcp/mcp.json) over the
// user one ($XDG_CONFIG_HOME/voice-mcp/mcp.json). MCP_CONFIG_PATH replaces
// both.
func LoadManifests() (Servers, error) {
	res := Servers{Servers: make(map[string]ServerConfig)}
	var paths []string
	if override := os.Getenv("MCP_CONFIG_PATH"); override != "" {
		paths = []string{expandHome(override)}
	} else {
		if p, err := userManifestPath(); err == nil {
			paths = append(paths, p)
		}
		if cwd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(cwd, ".voice-mcp", "mcp.json"))
		}
	}
	for _, p := range paths {
		m, err := readManifest(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return res, err
		}
		for name, cfg := range m.Servers {
			res.Servers[name] = normalize(cfg)
		}
		res.Sources = append(res.Sources, p)
	}
	for name := range res.Servers {
		res.Order = append(res.Order, name)
	}
	sort.Strings(res.Order)
	return res, nil
}

func readManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

func userManifestPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "voice-mcp", "mcp.json"), nil
}

func normalize(cfg ServerConfig) ServerConfig {
	cfg.Command = expandHome(cfg.Command)
	if cfg.Args != nil {
		args := make([]string, len(cfg.Args))
		for i, a := range cfg.Args {
			args[i] = expandHome(a)
		}
		cfg.Args = args
	}
	if len(cfg.Env) > 0 {
		env := make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			env[k] = expandHome(v)
		}
		cfg.Env = env
	}
	if cfg.Transport != nil {
		t := *cfg.Transport
		t.URL = expandHome(t.URL)
		cfg.Transport = &t
	}
	return cfg
}

func expandHome(v string) string {
	if v != "~" && !strings.HasPrefix(v, "~/") {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return v
	}
	return filepath.Join(home, strings.TrimPrefix(v[1:], "/"))
}
