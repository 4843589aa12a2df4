package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voice-mcp-lab/internal/fileio"
	"github.com/voice-mcp-lab/internal/logging"
)

// Sidecar is the JSON record written next to each saved audio file.
type Sidecar struct {
	AudioPath string `json:"audio_path"`
	Kind      string `json:"kind"`
	TurnID    string `json:"turn_id,omitempty"`
	Bytes     int    `json:"bytes"`
	SavedUTC  string `json:"saved_utc"`
}

// Archive saves turn audio into a directory. A nil or empty-dir archive
// drops everything.
type Archive struct {
	Dir string
	now func() time.Time
}

// NewArchive returns nil when dir is empty.
func NewArchive(dir string) *Archive {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &Archive{Dir: dir, now: time.Now}
}

// Save writes data as <timestamp>_<kind>.<ext> plus its sidecar and returns
// the audio path.
func (a *Archive) Save(kind, ext, turnID string, data []byte) (string, error) {
	if a == nil || a.Dir == "" {
		return "", nil
	}
	ts := a.now().UTC()
	base := fmt.Sprintf("%s_%s", ts.Format("20060102T150405.000Z"), kind)
	if turnID != "" {
		base += "_" + turnID
	}
	path := filepath.Join(a.Dir, base+"."+ext)
	if err := fileio.SaveFileAtomic(path, data, 0o644); err != nil {
		logging.Warnw("archive: failed to save audio", "err", err, "path", path, "turn_id", turnID)
		return "", err
	}
	sc, _ := json.Marshal(Sidecar{AudioPath: path, Kind: kind, TurnID: turnID, Bytes: len(data), SavedUTC: ts.Format(time.RFC3339Nano)})
	if err := fileio.SaveFileAtomic(filepath.Join(a.Dir, base+".json"), sc, 0o644); err != nil {
		logging.Debugw("archive: failed to save sidecar", "err", err, "path", path)
	}
	logging.Infow("archive: saved audio", "path", path, "kind", kind, "turn_id", turnID)
	return path, nil
}

// FileInfo describes one saved audio file.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// ErrNotArchived is returned by Stat for names outside the archive.
var ErrNotArchived = errors.New("audio file not found")

// List returns saved audio files sorted by name, sidecars excluded.
func (a *Archive) List() ([]FileInfo, error) {
	if a == nil {
		return nil, nil
	}
	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{Name: e.Name(), Path: filepath.Join(a.Dir, e.Name()), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Stat looks up a single file by base name. Path separators are rejected.
func (a *Archive) Stat(name string) (FileInfo, error) {
	if a == nil || name == "" || name != filepath.Base(name) || name == ".." {
		return FileInfo{}, ErrNotArchived
	}
	path := filepath.Join(a.Dir, name)
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return FileInfo{}, ErrNotArchived
	}
	return FileInfo{Name: name, Path: path, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// StartCleaner prunes the archive every interval, removing pairs older than
// retention and then the oldest pairs beyond maxFiles. Caller must call
// wg.Add(1) first; the goroutine calls wg.Done() on exit.
func (a *Archive) StartCleaner(ctx context.Context, wg *sync.WaitGroup, retention, interval time.Duration, maxFiles int) {
	go func() {
		defer wg.Done()
		if a == nil {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.Prune(retention, maxFiles)
			}
		}
	}()
}

// Prune runs one cleaning pass and returns how many pairs were removed.
func (a *Archive) Prune(retention time.Duration, maxFiles int) int {
	files, err := os.ReadDir(a.Dir)
	if err != nil {
		logging.Debugw("archive: cleanup readDir failed", "err", err)
		return 0
	}
	type pairInfo struct {
		jsonPath  string
		audioPath string
		mod       time.Time
	}
	var pairs []pairInfo
	for _, fi := range files {
		name := fi.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		jsonPath := filepath.Join(a.Dir, name)
		b, err := os.ReadFile(jsonPath)
		if err != nil {
			continue
		}
		var sc Sidecar
		if err := json.Unmarshal(b, &sc); err != nil {
			continue
		}
		st, err := os.Stat(jsonPath)
		if err != nil {
			continue
		}
		pairs = append(pairs, pairInfo{jsonPath: jsonPath, audioPath: sc.AudioPath, mod: st.ModTime()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].mod.Before(pairs[j].mod) })

	remove := func(p pairInfo) {
		_ = os.Remove(p.jsonPath)
		if p.audioPath != "" {
			_ = os.Remove(p.audioPath)
		}
	}
	cutoff := a.now().Add(-retention)
	removed := 0
	for _, p := range pairs {
		if retention > 0 && p.mod.Before(cutoff) {
			remove(p)
			removed++
		}
	}
	if maxFiles > 0 {
		for _, p := range pairs[removed:] {
			if len(pairs)-removed <= maxFiles {
				break
			}
			remove(p)
			removed++
		}
	}
	if removed > 0 {
		logging.Infow("archive: pruned saved audio", "removed", removed, "dir", a.Dir)
	}
	return removed
}
