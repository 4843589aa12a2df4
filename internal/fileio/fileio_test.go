package fileio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveFileAtomicCreatesDirsAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	if err := SaveFileAtomic(path, []byte("one"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := SaveFileAtomic(path, []byte("two"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "two" {
		t.Fatalf("content: want=two got=%s", b)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
	fi, _ := os.Stat(path)
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("mode: want=0600 got=%o", fi.Mode().Perm())
	}
}

func TestWriteTemp(t *testing.T) {
	p, err := WriteTemp("voicemcp-*.wav", []byte("RIFF"))
	if err != nil {
		t.Fatalf("WriteTemp: %v", err)
	}
	defer os.Remove(p)
	if filepath.Ext(p) != ".wav" {
		t.Fatalf("ext: want=.wav got=%s", filepath.Ext(p))
	}
}
