// Package upload tracks multi-file game transfers: one session per
// install, offset writes confined to the session's install path, and
// progress events for local subscribers.
package upload

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/capydeploy/agent/internal/eventbus"
	"github.com/capydeploy/agent/internal/events"
	"github.com/capydeploy/agent/internal/metrics"
	"github.com/capydeploy/agent/pkg/protocol"
)

var (
	// ErrNotFound means the upload ID is unknown, already completed or
	// cancelled. The wire maps it to error 404 "Upload not found".
	ErrNotFound = errors.New("upload not found")

	// ErrPathOutsideRoot rejects chunk paths that would escape the
	// session's install directory.
	ErrPathOutsideRoot = errors.New("file path escapes install directory")
)

// ShortcutRegistrar persists tracked shortcut records for completed
// installs.
type ShortcutRegistrar interface {
	Register(protocol.TrackedShortcut) error
}

// Session is one in-flight game transfer.
type Session struct {
	ID          string
	GameName    string
	InstallPath string
	TotalSize   int64
	Files       []protocol.FileEntry

	transferred int64
	currentFile string
	status      string // "active", "complete", "cancelled"
}

// progress reports completion as 0-100. An empty upload is complete by
// definition.
func (s *Session) progress() float64 {
	if s.TotalSize == 0 {
		return 100
	}
	p := float64(s.transferred) * 100 / float64(s.TotalSize)
	if p > 100 {
		p = 100
	}
	return p
}

// resolve maps a Hub-supplied relative path onto disk, refusing
// anything that does not stay strictly under the install path.
func (s *Session) resolve(relPath string) (string, error) {
	if relPath == "" || filepath.IsAbs(relPath) {
		return "", ErrPathOutsideRoot
	}
	full := filepath.Join(s.InstallPath, relPath)
	if !strings.HasPrefix(full, s.InstallPath+string(filepath.Separator)) {
		return "", ErrPathOutsideRoot
	}
	return full, nil
}

// Registry owns the active upload sessions. One Hub drives one stream,
// so chunks arrive sequentially; the lock is for local observers.
type Registry struct {
	events    *events.Publisher
	shortcuts ShortcutRegistrar
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry publishing through pub.
func NewRegistry(pub *events.Publisher, shortcuts ShortcutRegistrar, logger *slog.Logger) *Registry {
	return &Registry{
		events:    pub,
		shortcuts: shortcuts,
		logger:    logger.With("component", "upload"),
		sessions:  make(map[string]*Session),
	}
}

// Open allocates a session under root, creates its install directory
// and announces the install start.
func (r *Registry) Open(root string, cfg protocol.UploadConfig, totalSize int64, files []protocol.FileEntry) (*protocol.InitUploadResponse, error) {
	gameName := cfg.GameName
	if gameName == "" {
		gameName = "Unknown"
	}
	id := fmt.Sprintf("upload-%d-%d", time.Now().Unix(), 1000+rand.Intn(9000))
	installPath := filepath.Join(root, gameName)
	if err := os.MkdirAll(installPath, 0755); err != nil {
		return nil, fmt.Errorf("create install directory: %w", err)
	}

	session := &Session{
		ID:          id,
		GameName:    gameName,
		InstallPath: installPath,
		TotalSize:   totalSize,
		Files:       files,
		status:      "active",
	}
	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()
	metrics.UploadSessionsActive.Inc()

	r.logger.Info("upload started", "uploadId", id, "game", gameName, "totalSize", totalSize, "files", len(files))
	r.publish(eventbus.OperationEvent, protocol.OperationEvent{
		Type:     "install",
		Status:   "start",
		GameName: gameName,
		Progress: 0,
	})

	return &protocol.InitUploadResponse{UploadID: id, ChunkSize: protocol.ChunkSize}, nil
}

// WriteChunk places data at offset within relPath. Offset zero
// truncates; any other offset preserves existing bytes and positions
// the cursor, which permits in-session resumption after a transient
// failure.
func (r *Registry) WriteChunk(uploadID, relPath string, offset int64, data []byte) (*protocol.UploadChunkResponse, error) {
	r.mu.Lock()
	session, ok := r.sessions[uploadID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	full, err := session.resolve(relPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return nil, fmt.Errorf("create chunk directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(full, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", relPath, err)
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s to %d: %w", relPath, offset, err)
	}
	n, err := f.Write(data)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", relPath, err)
	}

	r.mu.Lock()
	session.transferred += int64(n)
	session.currentFile = relPath
	transferred := session.transferred
	percentage := session.progress()
	r.mu.Unlock()
	metrics.UploadBytesWritten.Add(float64(n))

	r.publish(eventbus.UploadProgress, protocol.UploadProgressEvent{
		UploadID:         uploadID,
		TransferredBytes: transferred,
		TotalBytes:       session.TotalSize,
		CurrentFile:      relPath,
		Percentage:       percentage,
	})

	return &protocol.UploadChunkResponse{
		UploadID:     uploadID,
		BytesWritten: int64(n),
		TotalWritten: transferred,
	}, nil
}

// Complete finalizes a session: optionally marks the shortcut target
// executable and records a shortcut with the AppID assignment left to
// the UI, then drops the session.
func (r *Registry) Complete(uploadID string, createShortcut bool, shortcut *protocol.ShortcutConfig) (*protocol.CompleteUploadResponse, error) {
	r.mu.Lock()
	session, ok := r.sessions[uploadID]
	if ok {
		session.status = "complete"
		delete(r.sessions, uploadID)
	}
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	metrics.UploadSessionsActive.Dec()

	r.logger.Info("upload complete", "uploadId", uploadID, "game", session.GameName, "path", session.InstallPath)

	if createShortcut && shortcut != nil && shortcut.Exe != "" {
		exePath := filepath.Join(session.InstallPath, filepath.Base(shortcut.Exe))
		if _, err := os.Stat(exePath); err == nil {
			if err := os.Chmod(exePath, 0o755); err != nil {
				r.logger.Warn("chmod failed", "exe", exePath, "error", err)
			}
		}
		name := shortcut.Name
		if name == "" {
			name = session.GameName
		}
		startDir := `"` + session.InstallPath + `"`
		r.publish(eventbus.CreateShortcut, protocol.ShortcutConfig{
			Name:     name,
			Exe:      exePath,
			StartDir: startDir,
			Artwork:  shortcut.Artwork,
		})
		record := protocol.TrackedShortcut{
			Name:        name,
			Exe:         exePath,
			StartDir:    startDir,
			AppID:       0,
			GameName:    session.GameName,
			InstalledAt: time.Now().Unix(),
		}
		if err := r.shortcuts.Register(record); err != nil {
			r.logger.Warn("register shortcut failed", "game", session.GameName, "error", err)
		}
	}

	r.publish(eventbus.OperationEvent, protocol.OperationEvent{
		Type:     "install",
		Status:   "complete",
		GameName: session.GameName,
		Progress: 100,
	})

	return &protocol.CompleteUploadResponse{Success: true, Path: session.InstallPath}, nil
}

// Cancel aborts a session and removes everything written so far.
// Cancelling an unknown ID is a no-op.
func (r *Registry) Cancel(uploadID string) {
	r.mu.Lock()
	session, ok := r.sessions[uploadID]
	if ok {
		session.status = "cancelled"
		delete(r.sessions, uploadID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	metrics.UploadSessionsActive.Dec()

	if err := os.RemoveAll(session.InstallPath); err != nil {
		r.logger.Warn("cleanup of cancelled upload failed", "uploadId", uploadID, "path", session.InstallPath, "error", err)
		return
	}
	r.logger.Info("upload cancelled", "uploadId", uploadID, "cleaned", session.InstallPath)
}

// Active returns the IDs of sessions still receiving chunks.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) publish(name string, data any) {
	if err := r.events.Publish(name, data); err != nil {
		r.logger.Warn("event publish failed", "event", name, "error", err)
	}
}
