package steam

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/capydeploy/agent/internal/store"
	"github.com/capydeploy/agent/pkg/protocol"
)

// Tracker persists the shortcut records created by completed uploads.
// The UI assigns real AppIDs later; until then records carry AppID 0.
type Tracker struct {
	mu    sync.Mutex
	store *store.Store
}

// NewTracker returns a tracker over the settings store.
func NewTracker(st *store.Store) *Tracker {
	return &Tracker{store: st}
}

// List returns all tracked records.
func (t *Tracker) List() ([]protocol.TrackedShortcut, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

// Register appends a record.
func (t *Tracker) Register(rec protocol.TrackedShortcut) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	records, err := t.load()
	if err != nil {
		return err
	}
	return t.save(append(records, rec))
}

// Assign sets the AppID on every record for gameName. The UI calls
// this once Steam has allocated the shortcut.
func (t *Tracker) Assign(gameName string, appID uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	records, err := t.load()
	if err != nil {
		return err
	}
	changed := false
	for i := range records {
		if records[i].GameName == gameName {
			records[i].AppID = appID
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return t.save(records)
}

// RemoveByAppID drops the record with appID and returns it, or nil when
// no record matches.
func (t *Tracker) RemoveByAppID(appID uint32) (*protocol.TrackedShortcut, error) {
	return t.removeFirst(func(rec protocol.TrackedShortcut) bool {
		return rec.AppID == appID
	})
}

// RemoveByName drops the first record for gameName and returns it, or
// nil when no record matches.
func (t *Tracker) RemoveByName(gameName string) (*protocol.TrackedShortcut, error) {
	return t.removeFirst(func(rec protocol.TrackedShortcut) bool {
		return rec.GameName == gameName
	})
}

func (t *Tracker) removeFirst(match func(protocol.TrackedShortcut) bool) (*protocol.TrackedShortcut, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	records, err := t.load()
	if err != nil {
		return nil, err
	}
	for i, rec := range records {
		if match(rec) {
			removed := rec
			records = append(records[:i], records[i+1:]...)
			if err := t.save(records); err != nil {
				return nil, err
			}
			return &removed, nil
		}
	}
	return nil, nil
}

func (t *Tracker) load() ([]protocol.TrackedShortcut, error) {
	var records []protocol.TrackedShortcut
	if _, err := t.store.GetJSON(store.KeyTrackedShortcuts, &records); err != nil {
		return nil, fmt.Errorf("load tracked shortcuts: %w", err)
	}
	return records, nil
}

func (t *Tracker) save(records []protocol.TrackedShortcut) error {
	if err := t.store.Set(store.KeyTrackedShortcuts, records); err != nil {
		return fmt.Errorf("persist tracked shortcuts: %w", err)
	}
	return nil
}

// UnquotePath strips the surrounding double quotes Steam uses in
// shortcut path fields.
func UnquotePath(path string) string {
	if strings.HasPrefix(path, `"`) && strings.HasSuffix(path, `"`) && len(path) >= 2 {
		return path[1 : len(path)-1]
	}
	return path
}

// RemoveGameDir removes dir recursively, refusing any path that does
// not resolve strictly under root.
func RemoveGameDir(dir, root string) error {
	if dir == "" {
		return fmt.Errorf("empty game directory")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve game directory: %w", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve install root: %w", err)
	}
	if !strings.HasPrefix(abs, absRoot+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %s outside install root %s", abs, absRoot)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("remove game directory: %w", err)
	}
	return nil
}
