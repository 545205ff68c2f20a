package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAcquireCreatesUniqueDirs(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "temp_audio"))

	a, err := store.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := store.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if a.Dir == b.Dir {
		t.Fatalf("expected distinct workspaces, both got %s", a.Dir)
	}
	if a.Path(NormalizedName) == b.Path(NormalizedName) {
		t.Fatal("normalized paths must not be shared between workspaces")
	}
	for _, ws := range []*Workspace{a, b} {
		if info, err := os.Stat(ws.Dir); err != nil || !info.IsDir() {
			t.Fatalf("workspace dir missing: %v", err)
		}
	}
}

func TestWriteFileAndRelease(t *testing.T) {
	store := NewStore(t.TempDir())
	ws, err := store.Acquire()
	if err != nil {
		t.Fatal(err)
	}

	path, n, err := ws.WriteFile("../../etc/voice.mp3", strings.NewReader("ID3 data"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Dir(path) != ws.Dir {
		t.Fatalf("file escaped workspace: %s", path)
	}
	if n != int64(len("ID3 data")) {
		t.Fatalf("expected %d bytes, got %d", len("ID3 data"), n)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected upload removed, stat err=%v", err)
	}
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}
}

func TestWriteFileRejectsEmptyName(t *testing.T) {
	ws, err := NewStore(t.TempDir()).Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Release()

	for _, name := range []string{"", ".", "/"} {
		if _, _, err := ws.WriteFile(name, strings.NewReader("x")); err == nil {
			t.Fatalf("expected error for name %q", name)
		}
	}
}

func TestReleaseToleratesNothingCreated(t *testing.T) {
	var nilWS *Workspace
	if err := nilWS.Release(); err != nil {
		t.Fatalf("nil workspace: %v", err)
	}
	if err := (&Workspace{}).Release(); err != nil {
		t.Fatalf("zero workspace: %v", err)
	}

	ws, err := NewStore(t.TempDir()).Acquire()
	if err != nil {
		t.Fatal(err)
	}
	ws.Track(ws.Path(NormalizedName)) // never written
	if err := ws.Release(); err != nil {
		t.Fatalf("release with missing file: %v", err)
	}
	if err := ws.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestSweep(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	old, err := store.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := old.WriteFile("a.wav", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	fresh, err := store.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	unrelated := filepath.Join(root, "keep-me")
	if err := os.Mkdir(unrelated, 0o755); err != nil {
		t.Fatal(err)
	}

	past := time.Now().Add(-2 * time.Hour)
	for _, p := range []string{old.Dir, unrelated} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if _, err := os.Stat(old.Dir); !os.IsNotExist(err) {
		t.Fatal("expected old workspace removed")
	}
	if _, err := os.Stat(fresh.Dir); err != nil {
		t.Fatal("fresh workspace should survive")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Fatal("non-workspace dirs should survive")
	}
}

func TestSweepMissingRoot(t *testing.T) {
	n, err := NewStore(filepath.Join(t.TempDir(), "absent")).Sweep(time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}
}

func TestUploadName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "voice.mp3", want: "upload.mp3"},
		{in: NormalizedName, want: "upload.wav"},
		{in: "../../etc/passwd", want: "upload"},
		{in: "archive.tar.gz", want: "upload.gz"},
		{in: "noext", want: "upload"},
		{in: "", wantErr: true},
		{in: ".", wantErr: true},
		{in: "..", wantErr: true},
		{in: "/", wantErr: true},
	}
	for _, tt := range tests {
		got, err := UploadName(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("UploadName(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("UploadName(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
		if got == NormalizedName {
			t.Errorf("UploadName(%q) collides with the normalized file", tt.in)
		}
	}
}

func TestTouchKeepsWorkspaceFromSweep(t *testing.T) {
	store := NewStore(t.TempDir())
	ws, err := store.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(ws.Dir, past, past); err != nil {
		t.Fatal(err)
	}

	if err := ws.Touch(); err != nil {
		t.Fatalf("touch: %v", err)
	}
	n, err := store.Sweep(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("touched workspace was swept")
	}
	if _, err := os.Stat(ws.Dir); err != nil {
		t.Fatal("touched workspace should survive")
	}
}
