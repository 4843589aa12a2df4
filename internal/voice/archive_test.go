package voice

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestArchivePruneByCount(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 4; i++ {
		a.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		p, err := a.Save("stt", "wav", "", []byte("data"))
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		// spread modification times so ordering is stable
		mt := base.Add(time.Duration(i) * time.Minute)
		_ = os.Chtimes(p, mt, mt)
		_ = os.Chtimes(p[:len(p)-len(".wav")]+".json", mt, mt)
		paths = append(paths, p)
	}
	a.now = func() time.Time { return base.Add(time.Hour) }

	if n := a.Prune(0, 2); n != 2 {
		t.Fatalf("removed: want=2 got=%d", n)
	}
	for i, p := range paths {
		_, err := os.Stat(p)
		if i < 2 && err == nil {
			t.Fatalf("oldest file %s should be gone", filepath.Base(p))
		}
		if i >= 2 && err != nil {
			t.Fatalf("newest file %s should remain", filepath.Base(p))
		}
	}
}

func TestArchivePruneByAge(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive(dir)
	p, err := a.Save("tts", "wav", "t1", []byte("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	_ = os.Chtimes(p[:len(p)-len(".wav")]+".json", old, old)

	if n := a.Prune(24*time.Hour, 0); n != 1 {
		t.Fatalf("removed: want=1 got=%d", n)
	}
	if _, err := os.Stat(p); err == nil {
		t.Fatalf("expired audio not removed")
	}
}

func TestArchiveStatRejectsTraversal(t *testing.T) {
	a := NewArchive(t.TempDir())
	if _, err := a.Stat("../etc/passwd"); err != ErrNotArchived {
		t.Fatalf("expected ErrNotArchived, got %v", err)
	}
	var nilArchive *Archive
	if p, err := nilArchive.Save("x", "wav", "", nil); p != "" || err != nil {
		t.Fatalf("nil archive should drop silently")
	}
}
