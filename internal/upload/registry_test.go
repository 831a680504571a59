package upload

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/events"
	"github.com/capydeploy/agent/internal/store"
	"github.com/capydeploy/agent/pkg/protocol"
)

type fakeRegistrar struct {
	records []protocol.TrackedShortcut
}

func (f *fakeRegistrar) Register(s protocol.TrackedShortcut) error {
	f.records = append(f.records, s)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, string, *fakeRegistrar, *eventbus.Bus) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	bus := eventbus.New()
	t.Cleanup(bus.Close)
	registrar := &fakeRegistrar{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	root := t.TempDir()
	return NewRegistry(events.NewPublisher(st, bus), registrar, logger), root, registrar, bus
}

func openSession(t *testing.T, r *Registry, root, game string, totalSize int64, files []protocol.FileEntry) string {
	t.Helper()
	resp, err := r.Open(root, protocol.UploadConfig{GameName: game}, totalSize, files)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return resp.UploadID
}

func TestOpen_CreatesInstallDirectory(t *testing.T) {
	r, root, _, _ := newTestRegistry(t)

	resp, err := r.Open(root, protocol.UploadConfig{GameName: "G"}, 5, []protocol.FileEntry{{Path: "a.bin", Size: 5}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !strings.HasPrefix(resp.UploadID, "upload-") {
		t.Errorf("unexpected upload ID format: %s", resp.UploadID)
	}
	if resp.ChunkSize != 1024*1024 {
		t.Errorf("expected 1 MiB chunk size, got %d", resp.ChunkSize)
	}
	info, err := os.Stat(filepath.Join(root, "G"))
	if err != nil || !info.IsDir() {
		t.Errorf("expected install directory to exist: %v", err)
	}
}

func TestOpen_DefaultsGameName(t *testing.T) {
	r, root, _, _ := newTestRegistry(t)

	openSession(t, r, root, "", 0, nil)
	if _, err := os.Stat(filepath.Join(root, "Unknown")); err != nil {
		t.Errorf("expected fallback install directory: %v", err)
	}
}

func TestWriteChunk_SingleFile(t *testing.T) {
	r, root, _, _ := newTestRegistry(t)
	id := openSession(t, r, root, "G", 5, []protocol.FileEntry{{Path: "a.bin", Size: 5}})

	resp, err := r.WriteChunk(id, "a.bin", 0, []byte("hello"))
	if err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	if resp.BytesWritten != 5 || resp.TotalWritten != 5 {
		t.Errorf("expected 5/5 bytes, got %d/%d", resp.BytesWritten, resp.TotalWritten)
	}
	data, err := os.ReadFile(filepath.Join(root, "G", "a.bin"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("wrong contents: %q", data)
	}
}

func TestWriteChunk_OffsetExtends(t *testing.T) {
	r, root, _, _ := newTestRegistry(t)
	id := openSession(t, r, root, "G", 11, []protocol.FileEntry{{Path: "a.bin", Size: 11}})

	if _, err := r.WriteChunk(id, "a.bin", 0, []byte("hello")); err != nil {
		t.Fatalf("first chunk: %v", err)
	}
	resp, err := r.WriteChunk(id, "a.bin", 5, []byte(" world"))
	if err != nil {
		t.Fatalf("second chunk: %v", err)
	}
	if resp.TotalWritten != 11 {
		t.Errorf("expected 11 total, got %d", resp.TotalWritten)
	}
	data, _ := os.ReadFile(filepath.Join(root, "G", "a.bin"))
	if string(data) != "hello world" {
		t.Errorf("wrong contents: %q", data)
	}
}

func TestWriteChunk_OffsetZeroTruncates(t *testing.T) {
	r, root, _, _ := newTestRegistry(t)
	id := openSession(t, r, root, "G", 0, nil)

	if _, err := r.WriteChunk(id, "a.bin", 0, []byte("a longer first attempt")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if _, err := r.WriteChunk(id, "a.bin", 0, []byte("short")); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "G", "a.bin"))
	if string(data) != "short" {
		t.Errorf("expected truncating rewrite, got %q", data)
	}
}

func TestWriteChunk_CreatesNestedDirectories(t *testing.T) {
	r, root, _, _ := newTestRegistry(t)
	id := openSession(t, r, root, "G", 4, []protocol.FileEntry{{Path: "data/textures/t.bin", Size: 4}})

	if _, err := r.WriteChunk(id, "data/textures/t.bin", 0, []byte("data")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "G", "data", "textures", "t.bin")); err != nil {
		t.Errorf("expected nested file: %v", err)
	}
}

func TestWriteChunk_UnknownSession(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	if _, err := r.WriteChunk("upload-0-0000", "a.bin", 0, []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteChunk_RejectsEscapingPaths(t *testing.T) {
	r, root, _, _ := newTestRegistry(t)
	id := openSession(t, r, root, "G", 0, nil)

	for _, relPath := range []string{"../evil.bin", "sub/../../evil.bin", "/etc/passwd", ""} {
		if _, err := r.WriteChunk(id, relPath, 0, []byte("x")); !errors.Is(err, ErrPathOutsideRoot) {
			t.Errorf("WriteChunk(%q): expected ErrPathOutsideRoot, got %v", relPath, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "evil.bin")); !os.IsNotExist(err) {
		t.Error("escaping write must not create files outside the install path")
	}
}

func TestWriteChunk_EmitsProgress(t *testing.T) {
	r, root, _, bus := newTestRegistry(t)
	id := openSession(t, r, root, "G", 10, []protocol.FileEntry{{Path: "a.bin", Size: 10}})

	ch := bus.Subscribe(eventbus.UploadProgress)
	if _, err := r.WriteChunk(id, "a.bin", 0, []byte("hello")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	select {
	case e := <-ch:
		var p protocol.UploadProgressEvent
		if err := json.Unmarshal(e.Data, &p); err != nil {
			t.Fatalf("unmarshal progress: %v", err)
		}
		if p.UploadID != id || p.TransferredBytes != 5 || p.TotalBytes != 10 {
			t.Errorf("wrong progress: %+v", p)
		}
		if p.Percentage != 50 {
			t.Errorf("expected 50%%, got %v", p.Percentage)
		}
		if p.CurrentFile != "a.bin" {
			t.Errorf("wrong current file: %s", p.CurrentFile)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress event")
	}
}

func TestProgress_EmptyUploadIsComplete(t *testing.T) {
	r, root, _, bus := newTestRegistry(t)
	id := openSession(t, r, root, "G", 0, nil)

	ch := bus.Subscribe(eventbus.UploadProgress)
	if _, err := r.WriteChunk(id, "marker.txt", 0, nil); err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	select {
	case e := <-ch:
		var p protocol.UploadProgressEvent
		if err := json.Unmarshal(e.Data, &p); err != nil {
			t.Fatalf("unmarshal progress: %v", err)
		}
		if p.Percentage != 100 {
			t.Errorf("zero-size upload should report 100%%, got %v", p.Percentage)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress event")
	}
}

func TestComplete_MarksExecutableAndTracksShortcut(t *testing.T) {
	r, root, registrar, bus := newTestRegistry(t)
	id := openSession(t, r, root, "G", 5, []protocol.FileEntry{{Path: "game.sh", Size: 5}})
	if _, err := r.WriteChunk(id, "game.sh", 0, []byte("#!/sh")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	ch := bus.Subscribe(eventbus.CreateShortcut)
	resp, err := r.Complete(id, true, &protocol.ShortcutConfig{Name: "G", Exe: "bin/game.sh"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	installPath := filepath.Join(root, "G")
	if !resp.Success || resp.Path != installPath {
		t.Errorf("wrong result: %+v", resp)
	}

	// The exe resolves by basename under the install path, not by the
	// Hub-side relative path.
	exePath := filepath.Join(installPath, "game.sh")
	info, err := os.Stat(exePath)
	if err != nil {
		t.Fatalf("stat exe: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("expected 0755, got %v", info.Mode().Perm())
	}

	if len(registrar.records) != 1 {
		t.Fatalf("expected 1 tracked shortcut, got %d", len(registrar.records))
	}
	rec := registrar.records[0]
	if rec.AppID != 0 {
		t.Errorf("AppID must start unassigned, got %d", rec.AppID)
	}
	if rec.Exe != exePath {
		t.Errorf("wrong exe: %s", rec.Exe)
	}
	if rec.StartDir != `"`+installPath+`"` {
		t.Errorf("expected quoted startDir, got %s", rec.StartDir)
	}

	select {
	case e := <-ch:
		var sc protocol.ShortcutConfig
		if err := json.Unmarshal(e.Data, &sc); err != nil {
			t.Fatalf("unmarshal shortcut event: %v", err)
		}
		if sc.Exe != exePath {
			t.Errorf("event exe mismatch: %s", sc.Exe)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for create_shortcut event")
	}

	// The session is gone once completed.
	if _, err := r.WriteChunk(id, "late.bin", 0, []byte("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after complete, got %v", err)
	}
}

func TestComplete_WithoutShortcut(t *testing.T) {
	r, root, registrar, _ := newTestRegistry(t)
	id := openSession(t, r, root, "G", 0, nil)

	resp, err := r.Complete(id, false, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if len(registrar.records) != 0 {
		t.Errorf("expected no tracked shortcuts, got %d", len(registrar.records))
	}
}

func TestComplete_UnknownSession(t *testing.T) {
	r, _, _, _ := newTestRegistry(t)

	if _, err := r.Complete("upload-0-0000", false, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCancel_RemovesPartialInstall(t *testing.T) {
	r, root, _, _ := newTestRegistry(t)
	id := openSession(t, r, root, "G", 3*1024*1024, []protocol.FileEntry{{Path: "a.bin", Size: 3 * 1024 * 1024}})

	chunk := make([]byte, 1024)
	for i := 0; i < 3; i++ {
		if _, err := r.WriteChunk(id, "a.bin", int64(i*len(chunk)), chunk); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
	}

	r.Cancel(id)
	if _, err := os.Stat(filepath.Join(root, "G")); !os.IsNotExist(err) {
		t.Error("expected install directory to be removed")
	}
	if _, err := r.WriteChunk(id, "a.bin", 3072, chunk); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after cancel, got %v", err)
	}
	// Cancelling again is a no-op.
	r.Cancel(id)
}

func TestActive_ListsOpenSessions(t *testing.T) {
	r, root, _, _ := newTestRegistry(t)

	if n := len(r.Active()); n != 0 {
		t.Errorf("expected no sessions, got %d", n)
	}
	id := openSession(t, r, root, "G", 0, nil)
	active := r.Active()
	if len(active) != 1 || active[0] != id {
		t.Errorf("expected [%s], got %v", id, active)
	}
}
